package graph

import (
	"fmt"

	"github.com/flyingrobots/echo/pkg/ids"
)

// ErrorKind enumerates the StoreError taxonomy from spec §4.1 and §7.
type ErrorKind int

const (
	// ErrDanglingEdge: an edge upsert named a from/to node that does not
	// exist in this WarpInstance.
	ErrDanglingEdge ErrorKind = iota + 1
	// ErrNodeHasEdges: a node deletion was rejected because at least one
	// incident edge (either direction) still references it.
	ErrNodeHasEdges
	// ErrUnknownEdge: an edge deletion or lookup named an id this
	// WarpInstance has never seen.
	ErrUnknownEdge
)

func (k ErrorKind) String() string {
	switch k {
	case ErrDanglingEdge:
		return "DanglingEdge"
	case ErrNodeHasEdges:
		return "NodeHasEdges"
	case ErrUnknownEdge:
		return "UnknownEdge"
	default:
		return "Unknown"
	}
}

// StoreError is the structured error type every GraphStore mutation
// returns on an invariant-violating request. A StoreError surfacing out of
// commit's apply-to-store step is always an invariant breach: the op
// stream that reached the store should have already satisfied these
// constraints via footprint/merge ordering.
type StoreError struct {
	Kind   ErrorKind
	NodeID ids.NodeId
	EdgeID ids.EdgeId
}

func (e *StoreError) Error() string {
	switch e.Kind {
	case ErrDanglingEdge:
		return fmt.Sprintf("graph: dangling edge %s", e.EdgeID)
	case ErrNodeHasEdges:
		return fmt.Sprintf("graph: node %s has incident edges", e.NodeID)
	case ErrUnknownEdge:
		return fmt.Sprintf("graph: unknown edge %s", e.EdgeID)
	default:
		return "graph: store error"
	}
}
