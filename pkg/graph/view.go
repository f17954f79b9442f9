package graph

import (
	"iter"

	"github.com/flyingrobots/echo/pkg/ids"
)

// GraphView is the read-only handle a rule executor receives over a
// logically-immutable, pre-tick snapshot (spec §4.5). It has no mutation
// surface of any kind: every method here simply forwards to the
// corresponding WarpInstance read method.
type GraphView struct {
	warp *WarpInstance
}

// NewGraphView wraps warp for read-only execution-time access. The engine's
// DrainIntents and Commit each construct one over the store as it stood
// before any op from this tick was applied.
func NewGraphView(warp *WarpInstance) GraphView {
	return GraphView{warp: warp}
}

func (v GraphView) Node(id ids.NodeId) (NodeRecord, bool) { return v.warp.Node(id) }

func (v GraphView) EdgesFrom(id ids.NodeId) iter.Seq[EdgeRecord] { return v.warp.EdgesFrom(id) }

func (v GraphView) EdgesTo(id ids.NodeId) iter.Seq[ids.EdgeId] { return v.warp.EdgesTo(id) }

func (v GraphView) NodeAttachment(id ids.NodeId, key string) (AttachmentValue, bool) {
	return v.warp.NodeAttachment(id, key)
}

func (v GraphView) EdgeAttachment(id ids.EdgeId, key string) (AttachmentValue, bool) {
	return v.warp.EdgeAttachment(id, key)
}

func (v GraphView) NodesInOrder() iter.Seq2[ids.NodeId, NodeRecord] { return v.warp.NodesInOrder() }
