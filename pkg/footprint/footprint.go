// Package footprint implements spec §4.4: a rule's declared read/write
// resource sets, and the per-tick independence check that accepts or
// rejects each incoming rewrite against the resources already reserved in
// canonical order.
package footprint

import (
	"fmt"

	"github.com/flyingrobots/echo/pkg/graph"
	"github.com/flyingrobots/echo/pkg/ids"
	"github.com/flyingrobots/echo/pkg/ops"
)

// Footprint declares the resources a rule will touch, scoped to a single
// WarpInstance.
type Footprint struct {
	WarpID ids.WarpId

	NRead, NWrite []ids.NodeId
	ERead, EWrite []ids.EdgeId
	ARead, AWrite []graph.AttachmentKey
}

// RejectReason enumerates why an incoming rewrite's footprint was
// rejected (spec §4.4, §7).
type RejectReason int

const (
	NodeConflict RejectReason = iota + 1
	EdgeConflict
	AttachmentConflict
)

func (r RejectReason) String() string {
	switch r {
	case NodeConflict:
		return "NodeConflict"
	case EdgeConflict:
		return "EdgeConflict"
	case AttachmentConflict:
		return "AttachmentConflict"
	default:
		return "Unknown"
	}
}

// ViolationKind enumerates the fatal footprint breaches of spec §4.4/§7:
// an executor touching a resource outside its declared footprint, or
// emitting an op outside its declared warp.
type ViolationKind int

const (
	ViolationOutsideFootprint ViolationKind = iota + 1
	ViolationCrossWarp
)

func (k ViolationKind) String() string {
	switch k {
	case ViolationOutsideFootprint:
		return "OutsideFootprint"
	case ViolationCrossWarp:
		return "CrossWarp"
	default:
		return "Unknown"
	}
}

// ViolationError is spec §4.4/§7's FootprintError::Violation: an
// executor's emitted op reached outside the footprint that authorized it,
// or landed in a different warp than its rewrite declared. This is
// always fatal — the tick that produced it aborts with InternalCorruption
// rather than recording a rejection.
type ViolationError struct {
	Kind ViolationKind
	Op   ops.WarpOp
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("footprint: violation %s on op tag %d", e.Kind, e.Op.Tag)
}

// ConflictSet tracks, within one tick, every node/edge/attachment a
// previously accepted rewrite declared as written, and separately every
// one declared as read. Read/read overlap is allowed, so reads are only
// ever checked against the write sets (in both directions): a new write
// must not collide with an earlier read, and a new read or write must not
// collide with an earlier write.
//
// The maps below are internal bookkeeping, never iterated to produce a
// canonical order (every output the ConflictSet influences is the
// accept/reject partition of the caller-supplied, already canonically
// ordered rewrite sequence) — the same allowance spec §9 gives the
// rule-registry lookup.
type ConflictSet struct {
	writtenNodes       map[ids.NodeId]struct{}
	readNodes          map[ids.NodeId]struct{}
	writtenEdges       map[ids.EdgeId]struct{}
	readEdges          map[ids.EdgeId]struct{}
	writtenAttachments map[graph.AttachmentKey]struct{}
	readAttachments    map[graph.AttachmentKey]struct{}
}

// NewConflictSet returns an empty, tick-scoped conflict set. A fresh
// ConflictSet is constructed at the start of every tick — there is no
// cross-tick state (spec §5).
func NewConflictSet() *ConflictSet {
	return &ConflictSet{
		writtenNodes:       make(map[ids.NodeId]struct{}),
		readNodes:          make(map[ids.NodeId]struct{}),
		writtenEdges:       make(map[ids.EdgeId]struct{}),
		readEdges:          make(map[ids.EdgeId]struct{}),
		writtenAttachments: make(map[graph.AttachmentKey]struct{}),
		readAttachments:    make(map[graph.AttachmentKey]struct{}),
	}
}

// Reserve checks fp for overlap against everything already reserved this
// tick, in the canonical order the caller presents rewrites. On success it
// records fp's reads and writes and returns (0, true). On conflict it
// returns the first reason found and false, recording nothing — a
// rejected rewrite reserves no resources.
func (c *ConflictSet) Reserve(fp Footprint) (RejectReason, bool) {
	for _, n := range fp.NWrite {
		if _, ok := c.writtenNodes[n]; ok {
			return NodeConflict, false
		}
		if _, ok := c.readNodes[n]; ok {
			return NodeConflict, false
		}
	}
	for _, n := range fp.NRead {
		if _, ok := c.writtenNodes[n]; ok {
			return NodeConflict, false
		}
	}
	for _, e := range fp.EWrite {
		if _, ok := c.writtenEdges[e]; ok {
			return EdgeConflict, false
		}
		if _, ok := c.readEdges[e]; ok {
			return EdgeConflict, false
		}
	}
	for _, e := range fp.ERead {
		if _, ok := c.writtenEdges[e]; ok {
			return EdgeConflict, false
		}
	}
	for _, a := range fp.AWrite {
		if _, ok := c.writtenAttachments[a]; ok {
			return AttachmentConflict, false
		}
		if _, ok := c.readAttachments[a]; ok {
			return AttachmentConflict, false
		}
	}
	for _, a := range fp.ARead {
		if _, ok := c.writtenAttachments[a]; ok {
			return AttachmentConflict, false
		}
	}

	for _, n := range fp.NWrite {
		c.writtenNodes[n] = struct{}{}
	}
	for _, n := range fp.NRead {
		c.readNodes[n] = struct{}{}
	}
	for _, e := range fp.EWrite {
		c.writtenEdges[e] = struct{}{}
	}
	for _, e := range fp.ERead {
		c.readEdges[e] = struct{}{}
	}
	for _, a := range fp.AWrite {
		c.writtenAttachments[a] = struct{}{}
	}
	for _, a := range fp.ARead {
		c.readAttachments[a] = struct{}{}
	}
	return 0, true
}

