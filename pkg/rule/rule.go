// Package rule defines the contract a rewrite rule implements: a pure
// function from (GraphView, scope) to appended WarpOps, executed under
// spec §4.5's BOAW model.
package rule

import (
	"github.com/flyingrobots/echo/pkg/graph"
	"github.com/flyingrobots/echo/pkg/ids"
	"github.com/flyingrobots/echo/pkg/ops"
)

// ExecContext is what a rule executor receives for one PendingRewrite. It
// carries the pre-tick GraphView, the scope node, and the OpOrigin
// components this rule execution will stamp on every op it emits.
//
// ExecContext is not safe for concurrent use by more than one goroutine:
// each accepted rewrite is executed by exactly one worker, and the
// resulting Delta is that worker's thread-local accumulator (spec §4.5).
type ExecContext struct {
	View       graph.GraphView
	Scope      ids.NodeId
	WarpID     ids.WarpId
	IntentID   ids.Hash
	RuleID     uint32
	MatchIndex uint32

	delta   *ops.Delta
	opIndex uint32
}

// NewExecContext constructs the context a single rule invocation runs
// under, writing into delta.
func NewExecContext(view graph.GraphView, scope ids.NodeId, warpID ids.WarpId, intentID ids.Hash, ruleID, matchIndex uint32, delta *ops.Delta) *ExecContext {
	return &ExecContext{
		View:       view,
		Scope:      scope,
		WarpID:     warpID,
		IntentID:   intentID,
		RuleID:     ruleID,
		MatchIndex: matchIndex,
		delta:      delta,
	}
}

// Emit appends op to this rule's delta with an OpOrigin derived from
// (intent_id, rule_id, match_index, op_index) — op_index is this
// ExecContext's private, monotonically increasing counter, per spec §4.5.
func (c *ExecContext) Emit(op ops.WarpOp) {
	origin := ops.OpOrigin{
		IntentID:   c.IntentID,
		RuleID:     c.RuleID,
		MatchIndex: c.MatchIndex,
		OpIndex:    c.opIndex,
	}
	c.opIndex++
	c.delta.Append(op, origin)
}

// ErrorKind enumerates non-fatal execution outcomes a rule reports by
// return value rather than by panicking (spec §4.5, §7 RuleError::Match).
type ErrorKind int

const (
	ErrMatch ErrorKind = iota + 1
)

// Error is the structured failure a rule executor returns instead of
// panicking. A true panic escaping a Func is an InternalCorruption per
// spec §7 — callers of Func MUST recover and translate any panic into the
// tick-abort path themselves; Func implementations should not rely on
// panic for expected failures.
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

// Func is the executable behind a PendingRewrite's Handle. Implementations
// MUST be pure: no host time, no randomness, no allocation of
// non-content-derived identifiers, no iteration over any collection with
// non-deterministic order (spec §4.5).
type Func func(ctx *ExecContext) error
