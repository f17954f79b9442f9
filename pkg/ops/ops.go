// Package ops defines the WarpOp tagged union, its OpOrigin tiebreaker,
// and the per-worker TickDelta accumulator described in spec §3 and §4.5.
// It also owns the canonical byte encoding used both by the state-root /
// patch-digest hash computations (pkg/commit) and by the on-wire TickPatch
// format (spec §6.D–E).
package ops

import (
	"github.com/flyingrobots/echo/pkg/hashing"
	"github.com/flyingrobots/echo/pkg/ids"
)

// Tag is the WarpOp variant discriminant. Numbering is fixed by spec §4.6
// and MUST NOT be renumbered without a protocol version bump: the merge
// stage's canonical order depends on DeleteEdge (5) sorting before
// DeleteNode (6) so that an op stream which isolates a node before
// deleting it is always replayed in that same order.
type Tag uint8

const (
	TagUpsertNode       Tag = 1
	TagUpsertEdge       Tag = 2
	TagSetAttachment    Tag = 3
	TagRemoveAttachment Tag = 4
	TagDeleteEdge       Tag = 5
	TagDeleteNode       Tag = 6
	// TagOpenPortal is reserved per spec §3; no component in this core
	// emits or interprets it yet.
	TagOpenPortal Tag = 7
)

// WarpOp is a single graph mutation, as described in spec §3. Exactly one
// of the typed fields below is populated, selected by Tag.
type WarpOp struct {
	Tag Tag

	// UpsertNode / DeleteNode
	NodeID   ids.NodeId
	NodeType ids.TypeId

	// UpsertEdge / DeleteEdge
	EdgeID   ids.EdgeId
	EdgeType ids.TypeId
	From     ids.NodeId
	To       ids.NodeId

	// SetAttachment / RemoveAttachment
	OwnerTag   byte // 1 = node owner, 2 = edge owner
	OwnerID    ids.ID
	Key        string
	ValueType  ids.TypeId
	ValueBytes []byte
}

// OpOrigin is the total-order tiebreaker attached to every op a rule
// executor emits (spec §3).
type OpOrigin struct {
	IntentID   ids.Hash
	RuleID     uint32
	MatchIndex uint32
	OpIndex    uint32
}

// TargetKey returns the canonical (tag, target-bytes) pair used to group
// ops in the merge stage (spec §4.6 step 2–3). Two ops with equal TargetKey
// address the same resource.
func (op WarpOp) TargetKey() []byte {
	var buf []byte
	buf = append(buf, byte(op.Tag))
	switch op.Tag {
	case TagUpsertNode, TagDeleteNode:
		buf = append(buf, op.NodeID[:]...)
	case TagUpsertEdge, TagDeleteEdge:
		buf = append(buf, op.EdgeID[:]...)
	case TagSetAttachment, TagRemoveAttachment:
		buf = append(buf, op.OwnerTag)
		buf = append(buf, op.OwnerID[:]...)
		buf = hashing.PutBytesWithLen(buf, []byte(op.Key))
	}
	return buf
}

// CanonicalBytes returns the full canonical payload for op: the raw
// little-endian encoding spec §6.E specifies, with no self-description.
// This is what patch_digest hashes and what a TickPatch persists per op.
func (op WarpOp) CanonicalBytes() []byte {
	buf := []byte{byte(op.Tag)}
	switch op.Tag {
	case TagUpsertNode:
		buf = append(buf, op.NodeID[:]...)
		buf = append(buf, op.NodeType[:]...)
	case TagDeleteNode:
		buf = append(buf, op.NodeID[:]...)
	case TagUpsertEdge:
		buf = append(buf, op.EdgeID[:]...)
		buf = append(buf, op.EdgeType[:]...)
		buf = append(buf, op.From[:]...)
		buf = append(buf, op.To[:]...)
	case TagDeleteEdge:
		buf = append(buf, op.EdgeID[:]...)
	case TagSetAttachment:
		buf = append(buf, op.OwnerTag)
		buf = append(buf, op.OwnerID[:]...)
		buf = hashing.PutBytesWithLen(buf, []byte(op.Key))
		buf = append(buf, op.ValueType[:]...)
		buf = hashing.PutBytesWithLen(buf, op.ValueBytes)
	case TagRemoveAttachment:
		buf = append(buf, op.OwnerTag)
		buf = append(buf, op.OwnerID[:]...)
		buf = hashing.PutBytesWithLen(buf, []byte(op.Key))
	}
	return buf
}

// ValueBytesForOrdering returns the bytes used as the tertiary WarpOpKey
// component (spec §4.6 step 2): the op's full CanonicalBytes (tag, target
// and value payload), used only to order otherwise target-identical ops for stable
// observation, never to decide conflict membership.
func (op WarpOp) ValueBytesForOrdering() []byte {
	return op.CanonicalBytes()
}

// Delta is one worker's thread-local accumulator of (WarpOp, OpOrigin)
// pairs (spec §3's TickDelta). Workers never share a Delta; the merge
// stage is the only place deltas from different workers meet.
type Delta struct {
	Items []Item
}

// Item pairs a WarpOp with the OpOrigin that produced it.
type Item struct {
	Op     WarpOp
	Origin OpOrigin
}

// Append records one (op, origin) pair.
func (d *Delta) Append(op WarpOp, origin OpOrigin) {
	d.Items = append(d.Items, Item{Op: op, Origin: origin})
}
