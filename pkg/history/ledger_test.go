package history

import (
	"testing"

	"github.com/flyingrobots/echo/pkg/commit"
	"github.com/flyingrobots/echo/pkg/graph"
	"github.com/flyingrobots/echo/pkg/ids"
	"github.com/flyingrobots/echo/pkg/ops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildEntry commits mergedOps against a fresh WarpInstance the way
// engine.Commit does, and returns the resulting Entry plus the state it
// produced, so tests can feed Replay a correctly-computed baseline before
// corrupting individual fields.
func buildEntry(t *testing.T, tick uint64, mergedOps []ops.WarpOp) (Entry, *graph.WarpInstance) {
	t.Helper()
	warp := graph.NewWarpInstance()
	require.NoError(t, commit.Apply(warp, mergedOps))

	stateRoot := commit.StateRoot(ids.Zero, warp)
	digest := commit.PatchDigest(mergedOps)
	commitHash := commit.CommitHash(nil, stateRoot, digest, 0)

	return Entry{
		Tick: tick,
		Snapshot: Snapshot{
			WarpID:      id(1),
			StateRoot:   stateRoot,
			PatchDigest: digest,
			CommitHash:  commitHash,
			PolicyID:    0,
		},
		Patch: Patch{WarpID: id(1), Tick: tick, Ops: mergedOps, PatchDigest: digest},
	}, warp
}

func TestReplaySucceeds(t *testing.T) {
	entry, want := buildEntry(t, 0, []ops.WarpOp{{Tag: ops.TagUpsertNode, NodeID: id(2)}})

	got, err := Replay(graph.NewWarpInstance(), ids.Zero, entry)
	require.NoError(t, err)
	assert.Equal(t, commit.StateRoot(ids.Zero, want), commit.StateRoot(ids.Zero, got))
}

func TestReplayDetectsPatchDigestMismatch(t *testing.T) {
	entry, _ := buildEntry(t, 0, []ops.WarpOp{{Tag: ops.TagUpsertNode, NodeID: id(2)}})
	entry.Snapshot.PatchDigest = id(99)

	_, err := Replay(graph.NewWarpInstance(), ids.Zero, entry)
	require.Error(t, err)
	var re *ReplayError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, PatchDigestMismatch, re.Kind)
}

func TestReplayDetectsStateRootMismatch(t *testing.T) {
	entry, _ := buildEntry(t, 0, []ops.WarpOp{{Tag: ops.TagUpsertNode, NodeID: id(2)}})
	entry.Snapshot.StateRoot = id(99)

	_, err := Replay(graph.NewWarpInstance(), ids.Zero, entry)
	require.Error(t, err)
	var re *ReplayError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, StateRootMismatch, re.Kind)
}

func TestReplayDetectsCommitHashMismatch(t *testing.T) {
	entry, _ := buildEntry(t, 0, []ops.WarpOp{{Tag: ops.TagUpsertNode, NodeID: id(2)}})
	entry.Snapshot.CommitHash = id(99)

	_, err := Replay(graph.NewWarpInstance(), ids.Zero, entry)
	require.Error(t, err)
	var re *ReplayError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, CommitHashMismatch, re.Kind)
}

func TestReplayAllChainsAcrossTicks(t *testing.T) {
	a, b := id(2), id(3)
	entry0, warp0 := buildEntry(t, 0, []ops.WarpOp{{Tag: ops.TagUpsertNode, NodeID: a}})

	warp1 := warp0.Clone()
	require.NoError(t, commit.Apply(warp1, []ops.WarpOp{{Tag: ops.TagUpsertNode, NodeID: b}}))
	stateRoot1 := commit.StateRoot(ids.Zero, warp1)
	ops1 := []ops.WarpOp{{Tag: ops.TagUpsertNode, NodeID: b}}
	digest1 := commit.PatchDigest(ops1)
	commitHash1 := commit.CommitHash([]ids.Hash{entry0.Snapshot.CommitHash}, stateRoot1, digest1, 0)
	entry1 := Entry{
		Tick: 1,
		Snapshot: Snapshot{
			WarpID:      id(1),
			Parents:     []ids.Hash{entry0.Snapshot.CommitHash},
			StateRoot:   stateRoot1,
			PatchDigest: digest1,
			CommitHash:  commitHash1,
		},
		Patch: Patch{WarpID: id(1), Tick: 1, Ops: ops1, PatchDigest: digest1},
	}

	ledger := NewLedger()
	ledger.Append(entry0)
	ledger.Append(entry1)

	final, err := ReplayAll(ledger, ids.Zero)
	require.NoError(t, err)

	_, ok := final.Node(a)
	assert.True(t, ok)
	_, ok = final.Node(b)
	assert.True(t, ok)
}
