package inspect

import (
	"context"
	"testing"

	"github.com/flyingrobots/echo/pkg/graph"
	"github.com/flyingrobots/echo/pkg/ids"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAPIKey = "test-api-key-0123456789"

func newTestAPI(t *testing.T, cacheMaxCost int64) (*API, ids.WarpId, ids.NodeId) {
	t.Helper()

	hash, err := HashAPIKey(testAPIKey)
	require.NoError(t, err)

	warp := graph.NewWarpInstance()
	nodeID := ids.FromBytes([]byte("nodenodenodenodenodenodenodenodA"))
	typeID := ids.FromBytes([]byte("typetypetypetypetypetypetypetypA"))
	warp.UpsertNode(graph.NodeRecord{ID: nodeID, TypeID: typeID})
	warp.SetAttachment(graph.OwnerNode, nodeID, "label", graph.AttachmentValue{TypeID: typeID, Bytes: []byte("hello")})

	warpID := ids.FromBytes([]byte("warpwarpwarpwarpwarpwarpwarpwaAA"))
	lookup := func(id ids.WarpId) (graph.GraphView, bool) {
		if id != warpID {
			return graph.GraphView{}, false
		}
		return graph.NewGraphView(warp), true
	}

	api, err := New(Config{APIKeyHash: hash, MaxLimit: 10, CacheMaxCost: cacheMaxCost}, lookup)
	require.NoError(t, err)
	return api, warpID, nodeID
}

func TestAuthorizeRejectsWrongKey(t *testing.T) {
	api, _, _ := newTestAPI(t, 0)
	assert.ErrorIs(t, api.Authorize("wrong-key"), ErrUnauthorized)
	assert.NoError(t, api.Authorize(testAPIKey))
}

func TestAuthorizeRejectsWhenUnconfigured(t *testing.T) {
	api, err := New(Config{MaxLimit: 10}, func(ids.WarpId) (graph.GraphView, bool) { return graph.GraphView{}, false })
	require.NoError(t, err)
	assert.ErrorIs(t, api.Authorize(testAPIKey), ErrUnauthorized)
}

func TestReadNode(t *testing.T) {
	api, warpID, nodeID := newTestAPI(t, 0)
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		rec, ok, err := api.ReadNode(ctx, testAPIKey, warpID, nodeID)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, nodeID, rec.ID)
	})

	t.Run("missing node", func(t *testing.T) {
		_, ok, err := api.ReadNode(ctx, testAPIKey, warpID, ids.Zero)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("unknown warp", func(t *testing.T) {
		_, ok, err := api.ReadNode(ctx, testAPIKey, ids.Zero, nodeID)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("bad key", func(t *testing.T) {
		_, _, err := api.ReadNode(ctx, "nope", warpID, nodeID)
		assert.ErrorIs(t, err, ErrUnauthorized)
	})
}

func TestReadNodeCaches(t *testing.T) {
	api, warpID, nodeID := newTestAPI(t, 1<<10)
	ctx := context.Background()

	rec1, ok, err := api.ReadNode(ctx, testAPIKey, warpID, nodeID)
	require.NoError(t, err)
	require.True(t, ok)

	api.cache.Wait()

	rec2, ok, err := api.ReadNode(ctx, testAPIKey, warpID, nodeID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec1, rec2)
}

func TestReadEdgesFromEnforcesLimit(t *testing.T) {
	api, warpID, nodeID := newTestAPI(t, 0)
	ctx := context.Background()

	_, err := api.ReadEdgesFrom(ctx, testAPIKey, warpID, nodeID, 0)
	assert.ErrorIs(t, err, ErrLimitExceeded)

	_, err = api.ReadEdgesFrom(ctx, testAPIKey, warpID, nodeID, 10_000)
	assert.ErrorIs(t, err, ErrLimitExceeded)

	edges, err := api.ReadEdgesFrom(ctx, testAPIKey, warpID, nodeID, 5)
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func TestReadAttachment(t *testing.T) {
	api, warpID, nodeID := newTestAPI(t, 0)
	ctx := context.Background()

	val, ok, err := api.ReadAttachment(ctx, testAPIKey, warpID, nodeID, "label")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), val.Bytes)

	_, ok, err = api.ReadAttachment(ctx, testAPIKey, warpID, nodeID, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}
