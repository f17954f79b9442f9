package ops

import (
	"testing"

	"github.com/flyingrobots/echo/pkg/ids"
	"github.com/stretchr/testify/assert"
)

func id(b byte) ids.ID {
	var out ids.ID
	out[0] = b
	return out
}

func TestTargetKeyGroupsByResourceNotValue(t *testing.T) {
	a := WarpOp{Tag: TagUpsertNode, NodeID: id(1), NodeType: id(2)}
	b := WarpOp{Tag: TagUpsertNode, NodeID: id(1), NodeType: id(3)}
	assert.Equal(t, a.TargetKey(), b.TargetKey(), "target key ignores value fields")
	assert.NotEqual(t, a.CanonicalBytes(), b.CanonicalBytes())
}

func TestTargetKeyDiffersByTag(t *testing.T) {
	upsert := WarpOp{Tag: TagUpsertNode, NodeID: id(1)}
	del := WarpOp{Tag: TagDeleteNode, NodeID: id(1)}
	assert.NotEqual(t, upsert.TargetKey(), del.TargetKey())
}

func TestTargetKeyAttachmentScopedToOwnerAndKey(t *testing.T) {
	a := WarpOp{Tag: TagSetAttachment, OwnerTag: 1, OwnerID: id(1), Key: "x"}
	b := WarpOp{Tag: TagSetAttachment, OwnerTag: 1, OwnerID: id(1), Key: "y"}
	assert.NotEqual(t, a.TargetKey(), b.TargetKey())

	c := WarpOp{Tag: TagSetAttachment, OwnerTag: 2, OwnerID: id(1), Key: "x"}
	assert.NotEqual(t, a.TargetKey(), c.TargetKey(), "owner kind participates in the key")
}

func TestCanonicalBytesDeterministic(t *testing.T) {
	op := WarpOp{Tag: TagUpsertEdge, EdgeID: id(1), EdgeType: id(2), From: id(3), To: id(4)}
	assert.Equal(t, op.CanonicalBytes(), op.CanonicalBytes())
}

func TestValueBytesForOrderingMatchesCanonicalBytes(t *testing.T) {
	op := WarpOp{Tag: TagSetAttachment, OwnerTag: 1, OwnerID: id(1), Key: "k", ValueBytes: []byte("v")}
	assert.Equal(t, op.CanonicalBytes(), op.ValueBytesForOrdering())
}

func TestDeltaAppendAccumulatesInOrder(t *testing.T) {
	var d Delta
	d.Append(WarpOp{Tag: TagUpsertNode, NodeID: id(1)}, OpOrigin{RuleID: 1})
	d.Append(WarpOp{Tag: TagUpsertNode, NodeID: id(2)}, OpOrigin{RuleID: 2})

	require := assert.New(t)
	require.Len(d.Items, 2)
	require.Equal(id(1), d.Items[0].Op.NodeID)
	require.Equal(uint32(2), d.Items[1].Origin.RuleID)
}
