package footprint

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

func TestConflictSetAllowsReadRead(t *testing.T) {
	cs := NewConflictSet()
	n := id(1)

	_, ok := cs.Reserve(Footprint{NRead: []ids.NodeId{n}})
	require.True(t, ok)

	_, ok = cs.Reserve(Footprint{NRead: []ids.NodeId{n}})
	assert.True(t, ok, "read/read overlap must be allowed")
}

func TestConflictSetRejectsWriteWrite(t *testing.T) {
	cs := NewConflictSet()
	n := id(1)

	_, ok := cs.Reserve(Footprint{NWrite: []ids.NodeId{n}})
	require.True(t, ok)

	reason, ok := cs.Reserve(Footprint{NWrite: []ids.NodeId{n}})
	assert.False(t, ok)
	assert.Equal(t, NodeConflict, reason)
}

func TestConflictSetRejectsReadAgainstWrite(t *testing.T) {
	cs := NewConflictSet()
	n := id(1)

	_, ok := cs.Reserve(Footprint{NWrite: []ids.NodeId{n}})
	require.True(t, ok)

	reason, ok := cs.Reserve(Footprint{NRead: []ids.NodeId{n}})
	assert.False(t, ok)
	assert.Equal(t, NodeConflict, reason)
}

func TestConflictSetRejectsWriteAgainstPriorRead(t *testing.T) {
	cs := NewConflictSet()
	n := id(1)

	_, ok := cs.Reserve(Footprint{NRead: []ids.NodeId{n}})
	require.True(t, ok)

	reason, ok := cs.Reserve(Footprint{NWrite: []ids.NodeId{n}})
	assert.False(t, ok, "a write must not be allowed to land on a resource an earlier rewrite already read")
	assert.Equal(t, NodeConflict, reason)
}

func TestConflictSetRejectedReservationRecordsNothing(t *testing.T) {
	cs := NewConflictSet()
	n, e := id(1), id(2)

	_, ok := cs.Reserve(Footprint{NWrite: []ids.NodeId{n}})
	require.True(t, ok)

	// Conflicting write that also touches an unrelated edge must not
	// partially reserve the edge.
	_, ok = cs.Reserve(Footprint{NWrite: []ids.NodeId{n}, EWrite: []ids.EdgeId{e}})
	require.False(t, ok)

	_, ok = cs.Reserve(Footprint{EWrite: []ids.EdgeId{e}})
	assert.True(t, ok, "a rejected rewrite must not have reserved its edge write")
}

func TestConflictSetEdgesAndAttachmentsIndependent(t *testing.T) {
	cs := NewConflictSet()
	e := id(5)
	a := graph.AttachmentKey{Owner: id(1), Key: "k"}

	_, ok := cs.Reserve(Footprint{EWrite: []ids.EdgeId{e}})
	require.True(t, ok)

	_, ok = cs.Reserve(Footprint{AWrite: []graph.AttachmentKey{a}})
	assert.True(t, ok, "attachment writes must not collide with unrelated edge writes")
}

func TestViolationErrorMessage(t *testing.T) {
	err := &ViolationError{Kind: ViolationCrossWarp, Op: ops.WarpOp{Tag: ops.TagUpsertNode}}
	assert.Contains(t, err.Error(), "CrossWarp")
}

func TestViolationKindString(t *testing.T) {
	assert.Equal(t, "OutsideFootprint", ViolationOutsideFootprint.String())
	assert.Equal(t, "CrossWarp", ViolationCrossWarp.String())
}
