package scheduler

import (
	"testing"

	"github.com/flyingrobots/echo/pkg/footprint"
	"github.com/flyingrobots/echo/pkg/ids"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func id(b byte) ids.ID {
	var out ids.ID
	out[0] = b
	return out
}

func TestDrainOrdersByScopeThenRuleIDThenNonce(t *testing.T) {
	s := NewScheduler()
	s.Begin(1)
	s.Apply(1, PendingRewrite{Scope: id(2), RuleID: 5, Nonce: 0})
	s.Apply(1, PendingRewrite{Scope: id(1), RuleID: 9, Nonce: 0})
	s.Apply(1, PendingRewrite{Scope: id(1), RuleID: 3, Nonce: 0})

	out := s.Drain(1)
	require.Len(t, out, 3)
	assert.Equal(t, id(1), out[0].Scope)
	assert.Equal(t, uint32(3), out[0].RuleID)
	assert.Equal(t, id(1), out[1].Scope)
	assert.Equal(t, uint32(9), out[1].RuleID)
	assert.Equal(t, id(2), out[2].Scope)
}

func TestApplyIsLastWriteWinsPerScopeAndRule(t *testing.T) {
	s := NewScheduler()
	s.Begin(1)
	s.Apply(1, PendingRewrite{Scope: id(1), RuleID: 1, Nonce: 0, MatchIndex: 0})
	s.Apply(1, PendingRewrite{Scope: id(1), RuleID: 1, Nonce: 5, MatchIndex: 9})

	out := s.Drain(1)
	require.Len(t, out, 1)
	assert.Equal(t, uint32(9), out[0].MatchIndex, "the later Apply call must win")
}

func TestDrainDiscardsTransaction(t *testing.T) {
	s := NewScheduler()
	s.Begin(1)
	s.Apply(1, PendingRewrite{Scope: id(1), RuleID: 1})
	s.Drain(1)
	assert.Empty(t, s.Drain(1), "draining an already-drained transaction returns nothing")
}

func TestDrainUnknownTransactionReturnsNil(t *testing.T) {
	s := NewScheduler()
	assert.Nil(t, s.Drain(999))
}

// TestRadixMatchesComparisonSort is the cross-check sortRadix's doc
// comment promises: above radixThreshold, the radix path must produce
// exactly the same order as the comparison path for the same input.
func TestRadixMatchesComparisonSort(t *testing.T) {
	n := radixThreshold + 50
	rewrites := make([]PendingRewrite, n)
	for i := 0; i < n; i++ {
		var scope ids.ID
		scope[0] = byte(i)
		scope[1] = byte(i >> 8)
		rewrites[i] = PendingRewrite{
			Scope:  scope,
			RuleID: uint32(i % 7),
			// Nonce is unique per entry so every canonical key is
			// distinct — sort.Slice is not stable, so a tie between two
			// distinct-identity entries would let the two algorithms
			// legitimately disagree on order without either being wrong.
			Nonce: uint32(n - i),
		}
	}

	comparisonOrder := make([]PendingRewrite, n)
	copy(comparisonOrder, rewrites)
	sortComparison(comparisonOrder)

	radixOrder := make([]PendingRewrite, n)
	copy(radixOrder, rewrites)
	sortRadix(radixOrder)

	for i := range comparisonOrder {
		assert.Equal(t, canonicalKey(comparisonOrder[i]), canonicalKey(radixOrder[i]), "mismatch at index %d", i)
	}
}

func TestReserveFieldsSurviveDrain(t *testing.T) {
	s := NewScheduler()
	s.Begin(1)
	fp := footprint.Footprint{NWrite: []ids.NodeId{id(1)}}
	s.Apply(1, PendingRewrite{Scope: id(1), RuleID: 1, Footprint: fp, IntentID: id(7), MatchIndex: 2})

	out := s.Drain(1)
	require.Len(t, out, 1)
	assert.Equal(t, fp, out[0].Footprint)
	assert.Equal(t, id(7), out[0].IntentID)
}
