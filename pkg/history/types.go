// Package history implements spec §4.8's append-only per-warp ledger and
// the replay path that reproduces a tick from its recorded TickPatch.
package history

import (
	"github.com/flyingrobots/echo/pkg/footprint"
	"github.com/flyingrobots/echo/pkg/ids"
	"github.com/flyingrobots/echo/pkg/ops"
)

// Snapshot is spec §3's Snapshot/Commit record for one committed tick.
type Snapshot struct {
	WarpID      ids.WarpId
	Parents     []ids.Hash
	StateRoot   ids.Hash
	PatchDigest ids.Hash
	CommitHash  ids.Hash
	PolicyID    uint32
}

// ApplyOutcome records one op that made it into the final committed
// patch, with the origin that produced it — used for TickReceipt.applied.
type ApplyOutcome struct {
	Op     ops.WarpOp
	Origin ops.OpOrigin
}

// RejectKind distinguishes why a rewrite did not make it into a tick's
// applied set.
type RejectKind int

const (
	RejectRuleMatch RejectKind = iota + 1
	RejectNodeConflict
	RejectEdgeConflict
	RejectAttachmentConflict
)

// RejectOutcome records one rejected rewrite, its reason, and enough
// identity (scope, rule id) to reproduce the rejection deterministically
// from the same inputs (spec §8 property 8).
type RejectOutcome struct {
	Scope  ids.NodeId
	RuleID uint32
	Kind   RejectKind
	Detail string
}

// RejectKindFromFootprint maps a footprint.RejectReason onto the ledger's
// RejectKind space.
func RejectKindFromFootprint(r footprint.RejectReason) RejectKind {
	switch r {
	case footprint.NodeConflict:
		return RejectNodeConflict
	case footprint.EdgeConflict:
		return RejectEdgeConflict
	case footprint.AttachmentConflict:
		return RejectAttachmentConflict
	default:
		return RejectRuleMatch
	}
}

// Timings is the opaque, non-hashed per-tick timing payload spec §3
// reserves on TickReceipt. Nothing in this struct ever participates in a
// canonical or hashed computation. Engine.Commit leaves it zero: phase
// durations are reported to the engine's Telemetry sink (pkg/telemetry)
// instead of being stored here.
type Timings struct {
	IngressNanos   int64
	SchedulerNanos int64
	ExecuteNanos   int64
	MergeNanos     int64
	CommitNanos    int64
}

// Receipt is spec §3's TickReceipt.
type Receipt struct {
	Applied  []ApplyOutcome
	Rejected []RejectOutcome
	Timings  Timings
}

// Entry is spec §3's HistoryEntry: one committed tick's Snapshot, Receipt,
// and Patch, as appended to a warp's ledger.
type Entry struct {
	Tick     uint64
	Snapshot Snapshot
	Receipt  Receipt
	Patch    Patch
}
