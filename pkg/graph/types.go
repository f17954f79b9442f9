// Package graph implements the GraphStore / WarpInstance data model from
// spec §3–§4.1: ordered node, edge, and attachment containers for a single
// WarpInstance, with a read API open to every rule executor and a
// restricted mutation API callable only by the commit finalize step.
//
// Every container here iterates in strict ascending key order. That is
// not an optimization choice — it is the determinism contract the rest of
// the engine is built on, so the underlying structure is an explicit
// ordered tree (github.com/google/btree), never Go's built-in map.
package graph

import "github.com/flyingrobots/echo/pkg/ids"

// NodeRecord is the stored form of a graph Node.
type NodeRecord struct {
	ID     ids.NodeId
	TypeID ids.TypeId
}

// EdgeRecord is the stored form of a graph Edge.
type EdgeRecord struct {
	ID     ids.EdgeId
	TypeID ids.TypeId
	From   ids.NodeId
	To     ids.NodeId
}

// AttachmentValue is a tagged opaque byte payload attached under a key to
// a node or an edge.
type AttachmentValue struct {
	TypeID ids.TypeId
	Bytes  []byte
}

// OwnerKind distinguishes a node-owned attachment from an edge-owned one.
// It is not part of AttachmentKey: within a single GraphStore,
// node_attachments and edge_attachments are stored as two separate
// containers, and OwnerKind only selects which of the two an attachment
// operation targets, so AttachmentKey can be used as a single type across
// both.
type OwnerKind uint8

const (
	OwnerNode OwnerKind = 1
	OwnerEdge OwnerKind = 2
)

// AttachmentKey identifies one attachment slot: an owner identifier plus a
// UTF-8 key, compared bytewise per spec §3.
type AttachmentKey struct {
	Owner ids.ID
	Key   string
}

// AttachmentKeyLess orders AttachmentKeys first by owner id, then by key bytes —
// the canonical order spec §4.7's state_root encoding walks attachments
// in.
func AttachmentKeyLess(a, b AttachmentKey) bool {
	if c := a.Owner.Compare(b.Owner); c != 0 {
		return c < 0
	}
	return a.Key < b.Key
}
