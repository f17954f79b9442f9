package engine

import (
	"sort"

	"github.com/flyingrobots/echo/pkg/footprint"
	"github.com/flyingrobots/echo/pkg/graph"
	"github.com/flyingrobots/echo/pkg/ids"
	"github.com/flyingrobots/echo/pkg/intent"
	"github.com/flyingrobots/echo/pkg/rule"
)

// Match is one scope a Matcher found for a given intent: the resource the
// rule will rewrite, the footprint it declares over that resource, and
// the pure function that performs the rewrite when the scheduler later
// admits it.
type Match struct {
	Scope     ids.NodeId
	Footprint footprint.Footprint
	Handle    rule.Func
}

// Matcher inspects one logged intent against the pre-tick view and
// returns zero or more Matches for the rule it implements. Matchers MUST
// be pure in exactly the sense spec §4.5 requires of rule executors
// themselves: no host time, no randomness, no iteration order that isn't
// already canonical.
type Matcher func(view graph.GraphView, li intent.LoggedIntent) []Match

type registryEntry struct {
	ruleID  uint32
	matcher Matcher
}

// Registry is the engine's immutable, read-shared rule-id → matcher
// table (spec §5, "Rewrite rule registry: read-shared, immutable for the
// life of the engine"). Dispatch always walks entries in ascending
// rule_id order so that, for a fixed intent stream, the nonce each match
// receives is reproducible run over run.
type Registry struct {
	entries []registryEntry
	sorted  bool
}

// NewRegistry returns an empty rule registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds matcher under ruleID. Registering the same ruleID twice
// replaces the earlier matcher — intended for test setup, not for runtime
// reconfiguration of a live engine.
func (r *Registry) Register(ruleID uint32, matcher Matcher) {
	for i, e := range r.entries {
		if e.ruleID == ruleID {
			r.entries[i].matcher = matcher
			return
		}
	}
	r.entries = append(r.entries, registryEntry{ruleID: ruleID, matcher: matcher})
	r.sorted = false
}

func (r *Registry) ensureSorted() {
	if r.sorted {
		return
	}
	sort.Slice(r.entries, func(i, j int) bool { return r.entries[i].ruleID < r.entries[j].ruleID })
	r.sorted = true
}
