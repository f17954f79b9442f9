package commit

import (
	"testing"

	"github.com/flyingrobots/echo/pkg/graph"
	"github.com/flyingrobots/echo/pkg/ids"
	"github.com/flyingrobots/echo/pkg/ops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func id(b byte) ids.ID {
	var out ids.ID
	out[0] = b
	return out
}

func TestApplySequencesOps(t *testing.T) {
	warp := graph.NewWarpInstance()
	a, b := id(1), id(2)

	err := Apply(warp, []ops.WarpOp{
		{Tag: ops.TagUpsertNode, NodeID: a},
		{Tag: ops.TagUpsertNode, NodeID: b},
		{Tag: ops.TagUpsertEdge, EdgeID: id(3), From: a, To: b},
	})
	require.NoError(t, err)

	rec, ok := warp.Node(a)
	require.True(t, ok)
	assert.Equal(t, a, rec.ID)
}

func TestApplyWrapsStoreErrorAsCorruption(t *testing.T) {
	warp := graph.NewWarpInstance()
	err := Apply(warp, []ops.WarpOp{{Tag: ops.TagDeleteEdge, EdgeID: id(9)}})
	require.Error(t, err)
	var c *Corruption
	require.ErrorAs(t, err, &c)
}

func TestStateRootIsOrderInvariant(t *testing.T) {
	a, b := id(1), id(2)

	warp1 := graph.NewWarpInstance()
	require.NoError(t, Apply(warp1, []ops.WarpOp{
		{Tag: ops.TagUpsertNode, NodeID: a},
		{Tag: ops.TagUpsertNode, NodeID: b},
	}))

	warp2 := graph.NewWarpInstance()
	require.NoError(t, Apply(warp2, []ops.WarpOp{
		{Tag: ops.TagUpsertNode, NodeID: b},
		{Tag: ops.TagUpsertNode, NodeID: a},
	}))

	assert.Equal(t, StateRoot(ids.Zero, warp1), StateRoot(ids.Zero, warp2),
		"state_root walks nodes in ascending NodeId order regardless of insertion order")
}

func TestStateRootChangesWithContent(t *testing.T) {
	warp := graph.NewWarpInstance()
	before := StateRoot(ids.Zero, warp)

	require.NoError(t, Apply(warp, []ops.WarpOp{{Tag: ops.TagUpsertNode, NodeID: id(1)}}))
	after := StateRoot(ids.Zero, warp)

	assert.NotEqual(t, before, after)
}

func TestPatchDigestDeterministic(t *testing.T) {
	mergedOps := []ops.WarpOp{{Tag: ops.TagUpsertNode, NodeID: id(1)}}
	assert.Equal(t, PatchDigest(mergedOps), PatchDigest(mergedOps))
}

func TestCommitHashChangesWithPolicy(t *testing.T) {
	stateRoot, patchDigest := id(1), id(2)
	h1 := CommitHash(nil, stateRoot, patchDigest, 0)
	h2 := CommitHash(nil, stateRoot, patchDigest, 1)
	assert.NotEqual(t, h1, h2)
}
