package history

import (
	"fmt"

	"github.com/flyingrobots/echo/pkg/commit"
	"github.com/flyingrobots/echo/pkg/graph"
	"github.com/flyingrobots/echo/pkg/ids"
)

// Ledger is one warp's append-only history: the sequence of HistoryEntry
// values spec §4.8 says a tick appends to, in tick order, never mutated or
// reordered after the fact.
type Ledger struct {
	entries []Entry
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Append adds e to the end of the ledger. Callers are responsible for only
// appending entries whose Tick is exactly Len() — Ledger itself does not
// enforce tick contiguity, since a replay-only ledger built from a
// selected tick range legitimately starts above zero.
func (l *Ledger) Append(e Entry) {
	l.entries = append(l.entries, e)
}

// Len returns the number of entries recorded.
func (l *Ledger) Len() int { return len(l.entries) }

// At returns the entry at position idx (0-based, not by Tick value).
func (l *Ledger) At(idx int) (Entry, bool) {
	if idx < 0 || idx >= len(l.entries) {
		return Entry{}, false
	}
	return l.entries[idx], true
}

// Last returns the most recently appended entry, if any.
func (l *Ledger) Last() (Entry, bool) {
	if len(l.entries) == 0 {
		return Entry{}, false
	}
	return l.entries[len(l.entries)-1], true
}

// ReplayErrorKind enumerates which of the three recomputed hashes
// disagreed with the recorded Snapshot (spec §4.8.4).
type ReplayErrorKind int

const (
	PatchDigestMismatch ReplayErrorKind = iota + 1
	StateRootMismatch
	CommitHashMismatch
)

func (k ReplayErrorKind) String() string {
	switch k {
	case PatchDigestMismatch:
		return "PatchDigestMismatch"
	case StateRootMismatch:
		return "StateRootMismatch"
	case CommitHashMismatch:
		return "CommitHashMismatch"
	default:
		return "Unknown"
	}
}

// ReplayError reports a deterministic-replay failure: re-applying a
// recorded patch against the predecessor state did not reproduce the
// hash the ledger recorded for that tick.
type ReplayError struct {
	Kind     ReplayErrorKind
	Tick     uint64
	Expected ids.Hash
	Actual   ids.Hash
}

func (e *ReplayError) Error() string {
	return fmt.Sprintf("history: replay mismatch at tick %d: %s (expected %s, got %s)",
		e.Tick, e.Kind, e.Expected, e.Actual)
}

// Replay reproduces entry's committed state from prior — the predecessor
// WarpInstance (the tick before entry.Tick, or an empty instance for
// tick 0) — by applying entry.Patch.Ops to a clone of prior and checking
// every hash the original tick recorded, in the order a divergence would
// first become observable: patch_digest (does the op stream itself still
// hash the same), then state_root (does applying it reproduce the same
// graph), then commit_hash (does the full commit identity match).
//
// On success it returns the resulting WarpInstance, ready to serve as the
// predecessor for the next tick's Replay call. prior is never mutated —
// Replay clones it before applying anything.
func Replay(prior *graph.WarpInstance, rootID ids.NodeId, entry Entry) (*graph.WarpInstance, error) {
	digest := commit.PatchDigest(entry.Patch.Ops)
	if digest != entry.Snapshot.PatchDigest {
		return nil, &ReplayError{Kind: PatchDigestMismatch, Tick: entry.Tick, Expected: entry.Snapshot.PatchDigest, Actual: digest}
	}

	next := prior.Clone()
	if err := commit.Apply(next, entry.Patch.Ops); err != nil {
		return nil, &Corruption{Cause: err, Tick: entry.Tick}
	}

	stateRoot := commit.StateRoot(rootID, next)
	if stateRoot != entry.Snapshot.StateRoot {
		return nil, &ReplayError{Kind: StateRootMismatch, Tick: entry.Tick, Expected: entry.Snapshot.StateRoot, Actual: stateRoot}
	}

	commitHash := commit.CommitHash(entry.Snapshot.Parents, stateRoot, digest, entry.Snapshot.PolicyID)
	if commitHash != entry.Snapshot.CommitHash {
		return nil, &ReplayError{Kind: CommitHashMismatch, Tick: entry.Tick, Expected: entry.Snapshot.CommitHash, Actual: commitHash}
	}

	return next, nil
}

// ReplayAll walks every entry in l in order, starting from an empty
// WarpInstance, and returns the final reconstructed state. It stops at
// the first ReplayError or Corruption.
func ReplayAll(l *Ledger, rootID ids.NodeId) (*graph.WarpInstance, error) {
	state := graph.NewWarpInstance()
	for _, e := range l.entries {
		next, err := Replay(state, rootID, e)
		if err != nil {
			return nil, err
		}
		state = next
	}
	return state, nil
}

// Corruption reports that applying a recorded patch's ops to the
// predecessor state hit a StoreError that should have been impossible —
// the patch was recorded from a commit that already validated cleanly
// once, so a failure here means the ledger entry itself, or the supplied
// predecessor state, does not match what actually produced it.
type Corruption struct {
	Cause error
	Tick  uint64
}

func (c *Corruption) Error() string {
	return fmt.Sprintf("history: corruption replaying tick %d: %v", c.Tick, c.Cause)
}
func (c *Corruption) Unwrap() error { return c.Cause }
