package graph

import (
	"fmt"
	"iter"

	"github.com/flyingrobots/echo/pkg/ids"
	"github.com/google/btree"
)

// btreeDegree matches the degree the retrieval pack's own ordered-range
// user (Erigon's btree.New(16) call sites) settles on: large enough to
// keep node heights low for graphs in the tens of thousands of nodes,
// small enough that each node's slice comparisons stay cache-friendly.
const btreeDegree = 16

type edgeFromBucket struct {
	owner ids.NodeId
	edges *btree.BTreeG[EdgeRecord]
}

type edgeToBucket struct {
	owner ids.NodeId
	ids   *btree.BTreeG[ids.EdgeId]
}

type edgeIndexEntry struct {
	edgeID ids.EdgeId
	from   ids.NodeId
}

type attachmentEntry struct {
	key   AttachmentKey
	value AttachmentValue
}

func edgeRecordLess(a, b EdgeRecord) bool { return ids.Less(a.ID, b.ID) }

func edgeFromBucketLess(a, b edgeFromBucket) bool { return ids.Less(a.owner, b.owner) }
func edgeToBucketLess(a, b edgeToBucket) bool     { return ids.Less(a.owner, b.owner) }
func edgeIndexLess(a, b edgeIndexEntry) bool      { return ids.Less(a.edgeID, b.edgeID) }
func nodeRecordLess(a, b NodeRecord) bool         { return ids.Less(a.ID, b.ID) }
func attachmentEntryLess(a, b attachmentEntry) bool {
	return AttachmentKeyLess(a.key, b.key)
}

// WarpInstance is a single self-contained graph, as described in spec §3.
// It is the concrete implementation of GraphStore for one WarpId.
type WarpInstance struct {
	nodes           *btree.BTreeG[NodeRecord]
	edgesFrom       *btree.BTreeG[edgeFromBucket]
	edgesTo         *btree.BTreeG[edgeToBucket]
	edgeIndex       *btree.BTreeG[edgeIndexEntry]
	nodeAttachments *btree.BTreeG[attachmentEntry]
	edgeAttachments *btree.BTreeG[attachmentEntry]
}

// NewWarpInstance returns an empty graph, ready for either direct mutation
// in tests or as the target of commit's apply_to_store step.
func NewWarpInstance() *WarpInstance {
	return &WarpInstance{
		nodes:           btree.NewG(btreeDegree, nodeRecordLess),
		edgesFrom:       btree.NewG(btreeDegree, edgeFromBucketLess),
		edgesTo:         btree.NewG(btreeDegree, edgeToBucketLess),
		edgeIndex:       btree.NewG(btreeDegree, edgeIndexLess),
		nodeAttachments: btree.NewG(btreeDegree, attachmentEntryLess),
		edgeAttachments: btree.NewG(btreeDegree, attachmentEntryLess),
	}
}

// ---- Read API (spec §4.1, "Public contract (read)") ----

// Node returns the record for id, if present.
func (w *WarpInstance) Node(id ids.NodeId) (NodeRecord, bool) {
	return w.nodes.Get(NodeRecord{ID: id})
}

// EdgesFrom lazily yields the outbound edges of id in ascending EdgeId
// order.
func (w *WarpInstance) EdgesFrom(id ids.NodeId) iter.Seq[EdgeRecord] {
	return func(yield func(EdgeRecord) bool) {
		bucket, ok := w.edgesFrom.Get(edgeFromBucket{owner: id})
		if !ok {
			return
		}
		bucket.edges.Ascend(func(e EdgeRecord) bool {
			return yield(e)
		})
	}
}

// EdgesTo lazily yields the EdgeIds of edges incoming to id in ascending
// order.
func (w *WarpInstance) EdgesTo(id ids.NodeId) iter.Seq[ids.EdgeId] {
	return func(yield func(ids.EdgeId) bool) {
		bucket, ok := w.edgesTo.Get(edgeToBucket{owner: id})
		if !ok {
			return
		}
		bucket.ids.Ascend(func(e ids.EdgeId) bool {
			return yield(e)
		})
	}
}

// NodeAttachment returns the attachment stored under key on node id, if
// present.
func (w *WarpInstance) NodeAttachment(id ids.NodeId, key string) (AttachmentValue, bool) {
	e, ok := w.nodeAttachments.Get(attachmentEntry{key: AttachmentKey{Owner: id, Key: key}})
	return e.value, ok
}

// EdgeAttachment returns the attachment stored under key on edge id, if
// present.
func (w *WarpInstance) EdgeAttachment(id ids.EdgeId, key string) (AttachmentValue, bool) {
	e, ok := w.edgeAttachments.Get(attachmentEntry{key: AttachmentKey{Owner: id, Key: key}})
	return e.value, ok
}

// NodesInOrder lazily yields every (NodeId, NodeRecord) pair in ascending
// NodeId order — the traversal state_root's BFS-or-ascending fallback
// walks.
func (w *WarpInstance) NodesInOrder() iter.Seq2[ids.NodeId, NodeRecord] {
	return func(yield func(ids.NodeId, NodeRecord) bool) {
		w.nodes.Ascend(func(n NodeRecord) bool {
			return yield(n.ID, n)
		})
	}
}

// NodeCount returns the number of nodes currently stored.
func (w *WarpInstance) NodeCount() int { return w.nodes.Len() }

// Clone returns a copy-on-write snapshot of w: cloning each underlying
// btree is O(1) (the trees share storage until either side mutates a
// node), which is what makes replay's "apply a recorded patch against a
// fresh copy of the predecessor state" affordable per tick.
func (w *WarpInstance) Clone() *WarpInstance {
	return &WarpInstance{
		nodes:           w.nodes.Clone(),
		edgesFrom:       w.edgesFrom.Clone(),
		edgesTo:         w.edgesTo.Clone(),
		edgeIndex:       w.edgeIndex.Clone(),
		nodeAttachments: w.nodeAttachments.Clone(),
		edgeAttachments: w.edgeAttachments.Clone(),
	}
}

// ---- Mutation API (spec §4.1, "Public contract (mutation)") ----
//
// Every method below is callable only from the commit finalize step
// (pkg/commit). Rule executors never see a *WarpInstance — they see a
// GraphView (see view.go), which has no mutation surface at all.

// UpsertNode inserts or replaces a node record.
func (w *WarpInstance) UpsertNode(rec NodeRecord) {
	w.nodes.ReplaceOrInsert(rec)
}

// UpsertEdge inserts or replaces an edge, maintaining edges_from, edges_to,
// and edge_index. Returns StoreError wrapping ErrDanglingEdge if either
// endpoint is absent.
func (w *WarpInstance) UpsertEdge(rec EdgeRecord) error {
	if _, ok := w.nodes.Get(NodeRecord{ID: rec.From}); !ok {
		return &StoreError{Kind: ErrDanglingEdge, EdgeID: rec.ID}
	}
	if _, ok := w.nodes.Get(NodeRecord{ID: rec.To}); !ok {
		return &StoreError{Kind: ErrDanglingEdge, EdgeID: rec.ID}
	}

	// Replacing an existing edge drops it from its old endpoints' buckets
	// first, so a changed from/to leaves no stale reverse-index entry.
	if _, ok := w.edgeIndex.Get(edgeIndexEntry{edgeID: rec.ID}); ok {
		if err := w.DeleteEdge(rec.ID); err != nil {
			return err
		}
	}

	bucket, ok := w.edgesFrom.Get(edgeFromBucket{owner: rec.From})
	if !ok {
		bucket = edgeFromBucket{owner: rec.From, edges: btree.NewG(btreeDegree, edgeRecordLess)}
	} else {
		// Clone before mutating: bucket.edges may still be shared with a
		// WarpInstance this one was Clone()d from, and the top-level
		// edgesFrom tree's COW only protects its own nodes, not the
		// pointer a bucket value carries.
		bucket.edges = bucket.edges.Clone()
	}
	bucket.edges.ReplaceOrInsert(rec)
	w.edgesFrom.ReplaceOrInsert(bucket)

	toBucket, ok := w.edgesTo.Get(edgeToBucket{owner: rec.To})
	if !ok {
		toBucket = edgeToBucket{owner: rec.To, ids: btree.NewG(btreeDegree, ids.Less)}
	} else {
		toBucket.ids = toBucket.ids.Clone()
	}
	toBucket.ids.ReplaceOrInsert(rec.ID)
	w.edgesTo.ReplaceOrInsert(toBucket)

	w.edgeIndex.ReplaceOrInsert(edgeIndexEntry{edgeID: rec.ID, from: rec.From})
	return nil
}

// DeleteNodeIsolated removes a node, rejecting the deletion if any edge
// (incoming or outgoing) still references it.
func (w *WarpInstance) DeleteNodeIsolated(id ids.NodeId) error {
	if bucket, ok := w.edgesFrom.Get(edgeFromBucket{owner: id}); ok && bucket.edges.Len() > 0 {
		return &StoreError{Kind: ErrNodeHasEdges, NodeID: id}
	}
	if bucket, ok := w.edgesTo.Get(edgeToBucket{owner: id}); ok && bucket.ids.Len() > 0 {
		return &StoreError{Kind: ErrNodeHasEdges, NodeID: id}
	}
	w.nodes.Delete(NodeRecord{ID: id})
	return nil
}

// DeleteEdge removes an edge and its reverse-index entries.
func (w *WarpInstance) DeleteEdge(id ids.EdgeId) error {
	entry, ok := w.edgeIndex.Get(edgeIndexEntry{edgeID: id})
	if !ok {
		return &StoreError{Kind: ErrUnknownEdge, EdgeID: id}
	}

	fromBucket, ok := w.edgesFrom.Get(edgeFromBucket{owner: entry.from})
	if ok {
		rec, found := fromBucket.edges.Get(EdgeRecord{ID: id})
		if found {
			fromBucket.edges = fromBucket.edges.Clone()
			fromBucket.edges.Delete(EdgeRecord{ID: id})
			w.edgesFrom.ReplaceOrInsert(fromBucket)

			toBucket, ok := w.edgesTo.Get(edgeToBucket{owner: rec.To})
			if ok {
				toBucket.ids = toBucket.ids.Clone()
				toBucket.ids.Delete(id)
				w.edgesTo.ReplaceOrInsert(toBucket)
			}
		}
	}

	w.edgeIndex.Delete(edgeIndexEntry{edgeID: id})
	return nil
}

// SetAttachment stores value under key on owner (a node or edge id,
// disambiguated by which attachment tree the caller targets).
func (w *WarpInstance) SetAttachment(kind OwnerKind, owner ids.ID, key string, value AttachmentValue) {
	tree := w.attachmentTree(kind)
	tree.ReplaceOrInsert(attachmentEntry{key: AttachmentKey{Owner: owner, Key: key}, value: value})
}

// RemoveAttachment deletes the attachment stored under key on owner, if
// any.
func (w *WarpInstance) RemoveAttachment(kind OwnerKind, owner ids.ID, key string) {
	tree := w.attachmentTree(kind)
	tree.Delete(attachmentEntry{key: AttachmentKey{Owner: owner, Key: key}})
}

// NodeAttachmentsInOrder lazily yields every node attachment in ascending
// (owner, key) order — the order spec §4.7's state_root encoding walks.
func (w *WarpInstance) NodeAttachmentsInOrder(owner ids.NodeId) iter.Seq2[string, AttachmentValue] {
	return w.attachmentsInOrder(w.nodeAttachments, owner)
}

// EdgeAttachmentsInOrder lazily yields every edge attachment in ascending
// (owner, key) order.
func (w *WarpInstance) EdgeAttachmentsInOrder(owner ids.EdgeId) iter.Seq2[string, AttachmentValue] {
	return w.attachmentsInOrder(w.edgeAttachments, owner)
}

func (w *WarpInstance) attachmentsInOrder(tree *btree.BTreeG[attachmentEntry], owner ids.ID) iter.Seq2[string, AttachmentValue] {
	return func(yield func(string, AttachmentValue) bool) {
		lo := attachmentEntry{key: AttachmentKey{Owner: owner, Key: ""}}
		tree.AscendGreaterOrEqual(lo, func(e attachmentEntry) bool {
			if e.key.Owner.Compare(owner) != 0 {
				return false
			}
			return yield(e.key.Key, e.value)
		})
	}
}

func (w *WarpInstance) attachmentTree(kind OwnerKind) *btree.BTreeG[attachmentEntry] {
	switch kind {
	case OwnerNode:
		return w.nodeAttachments
	case OwnerEdge:
		return w.edgeAttachments
	default:
		panic(fmt.Sprintf("graph: unknown owner kind %d", kind))
	}
}
