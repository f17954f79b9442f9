// Package commit implements spec §4.7: applying a merged op stream to the
// mutable store and computing the three hashes that make a tick
// reproducible — state_root, patch_digest, and commit_hash v2.
package commit

import (
	"fmt"

	"github.com/flyingrobots/echo/pkg/graph"
	"github.com/flyingrobots/echo/pkg/hashing"
	"github.com/flyingrobots/echo/pkg/ids"
	"github.com/flyingrobots/echo/pkg/ops"
)

// Corruption wraps any error that constitutes an InternalCorruption per
// spec §7: a StoreError surfacing from Apply, or a MergeError::Conflict
// that escaped the merge stage.
type Corruption struct {
	Cause error
}

func (c *Corruption) Error() string { return fmt.Sprintf("commit: internal corruption: %v", c.Cause) }
func (c *Corruption) Unwrap() error { return c.Cause }

// Apply applies merged ops to warp sequentially, in the order given. Any
// StoreError is wrapped as a Corruption — by the time ops reach here, the
// footprint/merge stages should already have excluded every condition
// that would trigger one.
func Apply(warp *graph.WarpInstance, mergedOps []ops.WarpOp) error {
	for _, op := range mergedOps {
		if err := applyOne(warp, op); err != nil {
			return &Corruption{Cause: err}
		}
	}
	return nil
}

func applyOne(warp *graph.WarpInstance, op ops.WarpOp) error {
	switch op.Tag {
	case ops.TagUpsertNode:
		warp.UpsertNode(graph.NodeRecord{ID: op.NodeID, TypeID: op.NodeType})
		return nil
	case ops.TagUpsertEdge:
		return warp.UpsertEdge(graph.EdgeRecord{ID: op.EdgeID, TypeID: op.EdgeType, From: op.From, To: op.To})
	case ops.TagSetAttachment:
		warp.SetAttachment(graph.OwnerKind(op.OwnerTag), op.OwnerID, op.Key, graph.AttachmentValue{TypeID: op.ValueType, Bytes: op.ValueBytes})
		return nil
	case ops.TagRemoveAttachment:
		warp.RemoveAttachment(graph.OwnerKind(op.OwnerTag), op.OwnerID, op.Key)
		return nil
	case ops.TagDeleteEdge:
		return warp.DeleteEdge(op.EdgeID)
	case ops.TagDeleteNode:
		return warp.DeleteNodeIsolated(op.NodeID)
	default:
		return fmt.Errorf("commit: unknown op tag %d", op.Tag)
	}
}

// StateRoot computes spec §4.7's state_root for one WarpInstance: a BFS
// (here, ascending-NodeId traversal, since no root-seed selection policy
// is in scope for this core) over nodes, their outbound edges, and their
// attachments, all in ascending key order.
func StateRoot(rootID ids.NodeId, warp *graph.WarpInstance) ids.Hash {
	var buf []byte
	buf = append(buf, rootID[:]...)
	buf = hashing.PutU64LE(buf, uint64(warp.NodeCount()))

	for nodeID, node := range warp.NodesInOrder() {
		buf = append(buf, nodeID[:]...)
		buf = append(buf, node.TypeID[:]...)

		var edgeCount uint64
		var edgeBuf []byte
		for e := range warp.EdgesFrom(nodeID) {
			edgeCount++
			edgeBuf = append(edgeBuf, e.ID[:]...)
			edgeBuf = append(edgeBuf, e.TypeID[:]...)
			edgeBuf = append(edgeBuf, e.To[:]...)
		}
		buf = hashing.PutU64LE(buf, edgeCount)
		buf = append(buf, edgeBuf...)

		var attachCount uint64
		var attachBuf []byte
		for key, val := range warp.NodeAttachmentsInOrder(nodeID) {
			attachCount++
			attachBuf = hashing.PutBytesWithLen(attachBuf, []byte(key))
			attachBuf = append(attachBuf, val.TypeID[:]...)
			attachBuf = hashing.PutBytesWithLen(attachBuf, val.Bytes)
		}
		buf = hashing.PutU64LE(buf, attachCount)
		buf = append(buf, attachBuf...)
	}

	return hashing.Sum(hashing.TagStateRoot, buf)
}

// MultiStateRoot computes spec §4.7's per-WarpState root: BLAKE3 over
// TagStateMulti, warp count, then each warp's (warp_id, state_root) pair
// in ascending WarpId order. rootOf supplies the root_id seed per warp;
// StateRoot hashes it as bytes and walks nodes in ascending NodeId order
// whatever its value.
func MultiStateRoot(state *graph.WarpState, rootOf func(ids.WarpId) ids.NodeId) ids.Hash {
	var buf []byte
	buf = hashing.PutU64LE(buf, uint64(state.Len()))

	for warpID, instance := range state.InOrder() {
		root := rootOf(warpID)
		sr := StateRoot(root, instance)
		buf = append(buf, warpID[:]...)
		buf = append(buf, sr[:]...)
	}

	return hashing.Sum(hashing.TagStateMulti, buf)
}

// PatchDigest computes spec §4.7's patch_digest: BLAKE3 over TagPatch,
// op_count, then each op's canonical bytes in the given (already
// canonical) order.
func PatchDigest(mergedOps []ops.WarpOp) ids.Hash {
	var buf []byte
	buf = hashing.PutU64LE(buf, uint64(len(mergedOps)))
	for _, op := range mergedOps {
		buf = append(buf, op.CanonicalBytes()...)
	}
	return hashing.Sum(hashing.TagPatch, buf)
}

// CommitHash computes spec §4.7's commit_hash v2: BLAKE3 over TagCommit,
// parents (ascending when multi-parent), state_root, patch_digest, and
// policy_id.
func CommitHash(parents []ids.Hash, stateRoot, patchDigest ids.Hash, policyID uint32) ids.Hash {
	var buf []byte
	buf = hashing.PutU32LE(buf, uint32(len(parents)))
	for _, p := range parents {
		buf = append(buf, p[:]...)
	}
	buf = append(buf, stateRoot[:]...)
	buf = append(buf, patchDigest[:]...)
	buf = hashing.PutU32LE(buf, policyID)
	return hashing.Sum(hashing.TagCommit, buf)
}
