// Package engine implements spec §4.8: the tick orchestrator tying
// together ingress, scheduling, footprint reservation, sharded execution,
// delta merge, commit, and the per-warp history ledger into the single
// atomic begin → drain → reserve → execute → merge → apply → hash →
// record cycle spec §2 describes.
package engine

import (
	"fmt"
	"time"

	"github.com/flyingrobots/echo/pkg/commit"
	"github.com/flyingrobots/echo/pkg/executor"
	"github.com/flyingrobots/echo/pkg/footprint"
	"github.com/flyingrobots/echo/pkg/graph"
	"github.com/flyingrobots/echo/pkg/history"
	"github.com/flyingrobots/echo/pkg/ids"
	"github.com/flyingrobots/echo/pkg/intent"
	"github.com/flyingrobots/echo/pkg/merge"
	"github.com/flyingrobots/echo/pkg/ops"
	"github.com/flyingrobots/echo/pkg/scheduler"
)

// Telemetry receives non-hashed tick timing and outcome observations. A
// nil Telemetry is valid; Engine skips every call in that case. pkg/
// telemetry provides an otel-backed implementation; tests typically pass
// nil or a recording stub.
type Telemetry interface {
	TickPhase(warpID ids.WarpId, tick uint64, phase string, d time.Duration)
	TickCommitted(warpID ids.WarpId, tick uint64, commitHash ids.Hash)
	TickAborted(warpID ids.WarpId, tick uint64, err error)
}

// Config carries the engine-wide, explicitly-passed settings spec §9
// insists replace any process-wide initializer: the policy identifier
// baked into every commit hash, and the worker pool width used by every
// tick's execution phase.
type Config struct {
	PolicyID uint32
	Workers  int

	// RootOf optionally supplies the state_root seed per warp (spec
	// §4.7's "root_id"). The default returns ids.Zero for every warp,
	// which is safe because this implementation's StateRoot always
	// walks nodes in ascending-NodeId order regardless of the seed
	// value — the seed only ever participates as hashed bytes.
	RootOf func(ids.WarpId) ids.NodeId
}

func (c Config) rootOf(warpID ids.WarpId) ids.NodeId {
	if c.RootOf == nil {
		return ids.Zero
	}
	return c.RootOf(warpID)
}

// Engine is one running instance of the Echo core: a rule registry, an
// intent log, a scheduler, the live multi-warp state, and one append-only
// Ledger per warp that has ever committed a tick.
type Engine struct {
	cfg       Config
	registry  *Registry
	intents   *intent.Log
	scheduler *scheduler.Scheduler
	state     *graph.WarpState
	ledgers   map[ids.WarpId]*history.Ledger
	telemetry Telemetry

	nextTx uint64
}

// New constructs an engine. registry must not be mutated concurrently
// with ticks in flight; register every rule before the first tick.
func New(cfg Config, registry *Registry, tel Telemetry) *Engine {
	return &Engine{
		cfg:       cfg,
		registry:  registry,
		intents:   intent.NewLog(),
		scheduler: scheduler.NewScheduler(),
		state:     graph.NewWarpState(),
		ledgers:   make(map[ids.WarpId]*history.Ledger),
		telemetry: tel,
	}
}

// Intents exposes the ingress log directly — spec §6.A's write boundary.
func (e *Engine) Intents() *intent.Log { return e.intents }

// Ledger returns the append-only history for warpID, creating an empty
// one on first access.
func (e *Engine) Ledger(warpID ids.WarpId) *history.Ledger {
	l, ok := e.ledgers[warpID]
	if !ok {
		l = history.NewLedger()
		e.ledgers[warpID] = l
	}
	return l
}

// View returns a read-only snapshot handle over warpID's current store
// state, for consumers (pkg/inspect) that only ever read. The bool is
// false only if warpID has never had a tick committed or replayed for it.
func (e *Engine) View(warpID ids.WarpId) (graph.GraphView, bool) {
	warp, ok := e.state.Lookup(warpID)
	if !ok {
		return graph.GraphView{}, false
	}
	return graph.NewGraphView(warp), true
}

// BeginTx opens a new scheduler transaction and returns its id.
func (e *Engine) BeginTx() uint64 {
	txID := e.nextTx
	e.nextTx++
	e.scheduler.Begin(txID)
	return txID
}

// DrainIntents dispatches up to max not-yet-drained intents through every
// registered matcher, in ascending rule_id order, enqueuing a
// PendingRewrite via the scheduler for each match. Matchers see the
// pre-tick view of warpID — the store as it stood before this tick's
// commit, which is the only view that exists until commit runs.
func (e *Engine) DrainIntents(txID uint64, warpID ids.WarpId, max int) {
	e.registry.ensureSorted()

	view := graph.NewGraphView(e.state.Warp(warpID))
	var nonce uint32

	for _, li := range e.intents.DrainForTick(max) {
		for _, entry := range e.registry.entries {
			matches := entry.matcher(view, li)
			for idx, m := range matches {
				e.scheduler.Apply(txID, scheduler.PendingRewrite{
					Scope:      m.Scope,
					RuleID:     entry.ruleID,
					Nonce:      nonce,
					Footprint:  m.Footprint,
					Handle:     m.Handle,
					IntentID:   li.IntentID,
					MatchIndex: uint32(idx),
				})
				nonce++
			}
		}
	}
}

// Result is what Commit returns on success: the HistoryEntry it appended,
// ready for a caller to publish as spec §6.C's output stream.
type Result struct {
	Entry history.Entry
}

// Commit runs spec §4.8's commit sub-pipeline for txID against warpID:
// drain the scheduler, reserve footprints, execute in parallel, merge,
// apply to the store, hash, and append to warpID's ledger. A fatal
// condition (footprint violation or merge conflict escaping the
// footprint model) aborts the tick: the store is left exactly as it was
// before Commit was called, and the ledger gains no entry.
func (e *Engine) Commit(txID uint64, warpID ids.WarpId) (Result, error) {
	tick := uint64(e.Ledger(warpID).Len())
	warp := e.state.Warp(warpID)
	view := graph.NewGraphView(warp)

	schedStart := time.Now()
	accepted := e.scheduler.Drain(txID)
	e.recordPhase(warpID, tick, "schedule", schedStart)

	reserveStart := time.Now()
	acceptedFinal, rejected := e.reserve(warpID, accepted)
	e.recordPhase(warpID, tick, "reserve", reserveStart)

	execStart := time.Now()
	outputs, err := executor.Run(view, warpID, acceptedFinal, e.cfg.Workers)
	e.recordPhase(warpID, tick, "execute", execStart)
	if err != nil {
		e.abort(warpID, tick, err)
		return Result{}, err
	}

	footprints := footprintIndex(acceptedFinal)
	if err := e.checkFootprints(warpID, outputs, footprints); err != nil {
		e.abort(warpID, tick, err)
		return Result{}, err
	}

	for _, out := range outputs {
		for _, rec := range out.Rejected {
			rejected = append(rejected, history.RejectOutcome{
				Scope:  rec.Rewrite.Scope,
				RuleID: rec.Rewrite.RuleID,
				Kind:   history.RejectRuleMatch,
				Detail: rec.Detail,
			})
		}
	}

	mergeStart := time.Now()
	deltas := make([]*ops.Delta, len(outputs))
	for i, out := range outputs {
		deltas[i] = out.Delta
	}
	merged, err := merge.Merge(deltas)
	e.recordPhase(warpID, tick, "merge", mergeStart)
	if err != nil {
		e.abort(warpID, tick, err)
		return Result{}, err
	}

	commitStart := time.Now()
	next := warp.Clone()
	if err := commit.Apply(next, merged.Ops); err != nil {
		e.abort(warpID, tick, err)
		return Result{}, err
	}
	*warp = *next

	stateRoot := commit.StateRoot(e.cfg.rootOf(warpID), warp)
	patchDigest := commit.PatchDigest(merged.Ops)

	parents := e.parentsOf(warpID)
	commitHash := commit.CommitHash(parents, stateRoot, patchDigest, e.cfg.PolicyID)
	e.recordPhase(warpID, tick, "commit", commitStart)

	applied := make([]history.ApplyOutcome, len(merged.Ops))
	for i, op := range merged.Ops {
		applied[i] = history.ApplyOutcome{Op: op, Origin: merged.Origins[i]}
	}

	entry := history.Entry{
		Tick: tick,
		Snapshot: history.Snapshot{
			WarpID:      warpID,
			Parents:     parents,
			StateRoot:   stateRoot,
			PatchDigest: patchDigest,
			CommitHash:  commitHash,
			PolicyID:    e.cfg.PolicyID,
		},
		Receipt: history.Receipt{
			Applied:  applied,
			Rejected: rejected,
		},
		Patch: history.Patch{
			WarpID:      warpID,
			Tick:        tick,
			Ops:         merged.Ops,
			Footprint:   summarize(acceptedFinal),
			PatchDigest: patchDigest,
			PolicyID:    e.cfg.PolicyID,
		},
	}

	e.Ledger(warpID).Append(entry)
	if e.telemetry != nil {
		e.telemetry.TickCommitted(warpID, tick, commitHash)
	}
	return Result{Entry: entry}, nil
}

// ApplyRecordedPatch re-applies a previously recorded HistoryEntry's patch
// to warpID's current store state (spec §4.8 step 4, the replay path). On
// success the store is mutated to match; on a ReplayError the store is
// left untouched.
func (e *Engine) ApplyRecordedPatch(warpID ids.WarpId, entry history.Entry) error {
	warp := e.state.Warp(warpID)
	next, err := history.Replay(warp, e.cfg.rootOf(warpID), entry)
	if err != nil {
		return err
	}
	*warp = *next
	return nil
}

func (e *Engine) reserve(warpID ids.WarpId, accepted []scheduler.PendingRewrite) ([]scheduler.PendingRewrite, []history.RejectOutcome) {
	cs := footprint.NewConflictSet()
	var final []scheduler.PendingRewrite
	var rejected []history.RejectOutcome

	for _, r := range accepted {
		r.Footprint.WarpID = warpID
		reason, ok := cs.Reserve(r.Footprint)
		if !ok {
			rejected = append(rejected, history.RejectOutcome{
				Scope:  r.Scope,
				RuleID: r.RuleID,
				Kind:   history.RejectKindFromFootprint(reason),
				Detail: fmt.Sprintf("footprint: %s", reason),
			})
			continue
		}
		final = append(final, r)
	}
	return final, rejected
}

func (e *Engine) parentsOf(warpID ids.WarpId) []ids.Hash {
	last, ok := e.Ledger(warpID).Last()
	if !ok {
		return nil
	}
	return []ids.Hash{last.Snapshot.CommitHash}
}

func (e *Engine) recordPhase(warpID ids.WarpId, tick uint64, phase string, start time.Time) {
	if e.telemetry != nil {
		e.telemetry.TickPhase(warpID, tick, phase, time.Since(start))
	}
}

func (e *Engine) abort(warpID ids.WarpId, tick uint64, err error) {
	if e.telemetry != nil {
		e.telemetry.TickAborted(warpID, tick, err)
	}
}

// footprintIndex keys a PendingRewrite's footprint by the exact
// (intent_id, rule_id, match_index) triple its emitted ops' OpOrigin will
// carry, so Commit can check each emitted op against the footprint that
// authorized it.
func footprintIndex(accepted []scheduler.PendingRewrite) map[originKey]footprint.Footprint {
	idx := make(map[originKey]footprint.Footprint, len(accepted))
	for _, r := range accepted {
		idx[originKey{intentID: r.IntentID, ruleID: r.RuleID, matchIndex: r.MatchIndex}] = r.Footprint
	}
	return idx
}

type originKey struct {
	intentID   ids.Hash
	ruleID     uint32
	matchIndex uint32
}

// checkFootprints verifies every op every worker emitted stays inside the
// footprint its originating PendingRewrite declared, and inside the
// tick's own warp. A violation here is spec §4.4/§7's
// FootprintError::Violation — fatal, abort the tick.
func (e *Engine) checkFootprints(warpID ids.WarpId, outputs []executor.WorkerOutput, footprints map[originKey]footprint.Footprint) error {
	for _, out := range outputs {
		if out.Delta == nil {
			continue
		}
		for _, item := range out.Delta.Items {
			key := originKey{intentID: item.Origin.IntentID, ruleID: item.Origin.RuleID, matchIndex: item.Origin.MatchIndex}
			fp, ok := footprints[key]
			if !ok {
				return &footprint.ViolationError{Kind: footprint.ViolationOutsideFootprint, Op: item.Op}
			}
			if kind, ok := checkOpInFootprint(item.Op, fp, warpID); !ok {
				return &footprint.ViolationError{Kind: kind, Op: item.Op}
			}
		}
	}
	return nil
}

func checkOpInFootprint(op ops.WarpOp, fp footprint.Footprint, warpID ids.WarpId) (footprint.ViolationKind, bool) {
	if warpID != fp.WarpID {
		return footprint.ViolationCrossWarp, false
	}
	switch op.Tag {
	case ops.TagUpsertNode, ops.TagDeleteNode:
		for _, n := range fp.NWrite {
			if n == op.NodeID {
				return 0, true
			}
		}
	case ops.TagUpsertEdge, ops.TagDeleteEdge:
		for _, edgeID := range fp.EWrite {
			if edgeID == op.EdgeID {
				return 0, true
			}
		}
	case ops.TagSetAttachment, ops.TagRemoveAttachment:
		key := graph.AttachmentKey{Owner: op.OwnerID, Key: op.Key}
		for _, a := range fp.AWrite {
			if a == key {
				return 0, true
			}
		}
	}
	return footprint.ViolationOutsideFootprint, false
}

// summarize builds the FootprintSummary a TickPatch carries, counting
// reads/writes declared across every rewrite the reservation stage
// admitted for execution this tick.
func summarize(accepted []scheduler.PendingRewrite) history.FootprintSummary {
	var s history.FootprintSummary
	for _, r := range accepted {
		s.NodesRead += uint64(len(r.Footprint.NRead))
		s.NodesWritten += uint64(len(r.Footprint.NWrite))
		s.EdgesRead += uint64(len(r.Footprint.ERead))
		s.EdgesWritten += uint64(len(r.Footprint.EWrite))
		s.AttachmentsRead += uint64(len(r.Footprint.ARead))
		s.AttachmentsWritten += uint64(len(r.Footprint.AWrite))
	}
	return s
}
