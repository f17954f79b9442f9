// Package scheduler implements spec §4.3: collects PendingRewrites raised
// while dispatching intents for one transaction, and drains them in a
// fixed canonical order regardless of application order or nonce reuse.
package scheduler

import (
	"sort"

	"github.com/flyingrobots/echo/pkg/footprint"
	"github.com/flyingrobots/echo/pkg/ids"
	"github.com/flyingrobots/echo/pkg/rule"
)

// PendingRewrite is a queued (rule, scope) awaiting drain (spec §3).
//
// IntentID and MatchIndex are carried alongside the spec's literal
// {scope, rule_id, nonce, footprint, handle} tuple because OpOrigin (spec
// §3) is derived from exactly those two values plus rule_id and a
// per-rule op index — they have to flow through from intent dispatch to
// execution somehow, and PendingRewrite is where this implementation
// threads them.
type PendingRewrite struct {
	Scope      ids.NodeId
	RuleID     uint32
	Nonce      uint32
	Footprint  footprint.Footprint
	Handle     rule.Func
	IntentID   ids.Hash
	MatchIndex uint32
}

// radixThreshold is the N above which Drain switches from a comparison
// sort to the LSD radix sort spec §4.3 permits. Both paths MUST produce
// identical output order for the same input — see scheduler_test.go's
// cross-check.
const radixThreshold = 1024

// canonicalKeyLen is the width of one PendingRewrite's sort key:
// 32 scope bytes + 4 big-endian rule_id bytes + 4 big-endian nonce bytes.
const canonicalKeyLen = ids.Size + 4 + 4

func canonicalKey(r PendingRewrite) [canonicalKeyLen]byte {
	var key [canonicalKeyLen]byte
	copy(key[:ids.Size], r.Scope[:])
	putU32BE(key[ids.Size:ids.Size+4], r.RuleID)
	putU32BE(key[ids.Size+4:], r.Nonce)
	return key
}

func putU32BE(dst []byte, v uint32) {
	dst[0] = byte(v >> 24)
	dst[1] = byte(v >> 16)
	dst[2] = byte(v >> 8)
	dst[3] = byte(v)
}

// dedupeKey identifies a PendingRewrite slot for the last-write-wins
// replacement rule (spec §4.3): re-applying the same (scope, rule_id)
// within a transaction replaces the earlier entry, keeping only the later
// nonce.
type dedupeKey struct {
	scope  ids.NodeId
	ruleID uint32
}

// Transaction accumulates PendingRewrites for one begin/drain cycle.
//
// The dedupe index is a plain Go map keyed on (scope, rule_id): like the
// intent dedupe index, it is never iterated to produce output — Drain
// always re-sorts the surviving values by their full canonical key — so
// it carries none of the non-determinism risk spec §9 warns about for
// canonical/hashed paths.
type Transaction struct {
	id      uint64
	entries map[dedupeKey]PendingRewrite
}

// Scheduler manages the open transactions for one engine tick. In
// practice an engine opens exactly one Transaction per tick, but the type
// supports multiple concurrently open transactions for testing.
type Scheduler struct {
	txs map[uint64]*Transaction
}

// NewScheduler returns an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{txs: make(map[uint64]*Transaction)}
}

// Begin opens a new transaction scope under txID. txID collisions replace
// the prior transaction's accumulated entries.
func (s *Scheduler) Begin(txID uint64) {
	s.txs[txID] = &Transaction{id: txID, entries: make(map[dedupeKey]PendingRewrite)}
}

// Apply enqueues or replaces a PendingRewrite within txID, per the
// last-write-wins rule.
func (s *Scheduler) Apply(txID uint64, r PendingRewrite) {
	tx, ok := s.txs[txID]
	if !ok {
		s.Begin(txID)
		tx = s.txs[txID]
	}
	tx.entries[dedupeKey{scope: r.Scope, ruleID: r.RuleID}] = r
}

// Drain returns txID's accumulated rewrites in canonical order and
// discards the transaction.
func (s *Scheduler) Drain(txID uint64) []PendingRewrite {
	tx, ok := s.txs[txID]
	if !ok {
		return nil
	}
	delete(s.txs, txID)

	out := make([]PendingRewrite, 0, len(tx.entries))
	for _, r := range tx.entries {
		out = append(out, r)
	}

	if len(out) <= radixThreshold {
		sortComparison(out)
	} else {
		sortRadix(out)
	}
	return out
}

func sortComparison(rs []PendingRewrite) {
	sort.Slice(rs, func(i, j int) bool {
		ki, kj := canonicalKey(rs[i]), canonicalKey(rs[j])
		for b := 0; b < canonicalKeyLen; b++ {
			if ki[b] != kj[b] {
				return ki[b] < kj[b]
			}
		}
		return false
	})
}

// sortRadix implements the LSD radix sort spec §4.3 permits for large N:
// 16-bit digits, canonicalKeyLen/2 passes over the big-endian canonical
// key, least-significant digit first. Because every pass is a stable
// counting sort, the final order is identical to sortComparison's.
func sortRadix(rs []PendingRewrite) {
	n := len(rs)
	if n == 0 {
		return
	}
	buf := make([]PendingRewrite, n)
	src, dst := rs, buf

	passes := canonicalKeyLen / 2
	for pass := 0; pass < passes; pass++ {
		byteHi := canonicalKeyLen - 1 - pass*2
		byteLo := byteHi - 1

		var count [65537]int
		digitOf := func(r PendingRewrite) int {
			k := canonicalKey(r)
			return int(k[byteLo])<<8 | int(k[byteHi])
		}

		for _, r := range src {
			count[digitOf(r)+1]++
		}
		for d := 0; d < 65536; d++ {
			count[d+1] += count[d]
		}
		for _, r := range src {
			d := digitOf(r)
			dst[count[d]] = r
			count[d]++
		}
		src, dst = dst, src
	}

	// passes is even (canonicalKeyLen/2 == 20), so src and dst have
	// swapped back to their starting assignment; rs already holds the
	// final order. An odd pass count would leave the final order in buf
	// (now src), so it is copied back into rs here — guarded for
	// robustness if canonicalKeyLen ever changes.
	if passes%2 != 0 {
		copy(rs, src)
	}
}
