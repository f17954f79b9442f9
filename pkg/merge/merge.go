// Package merge implements spec §4.6: flattening every worker's TickDelta
// into one stream, sorting it into the canonical order the rest of the
// engine depends on, and detecting the one condition that should never
// happen if footprints were sound — two rules writing different values to
// the same resource.
package merge

import (
	"bytes"
	"sort"

	"github.com/flyingrobots/echo/pkg/hashing"
	"github.com/flyingrobots/echo/pkg/ops"
)

// Conflict describes a MergeError::Conflict: two or more origins wrote
// different values to the same target. Per spec §4.6/§7 this is a fatal
// invariant breach — footprints should have excluded it — so Merge
// returns it as an error, never a silently-resolved outcome.
type Conflict struct {
	TargetKey []byte
	Origins   []ops.OpOrigin
}

func (c *Conflict) Error() string {
	return "merge: conflicting writes to the same target"
}

// Result is the output of a successful Merge: the canonical, sorted,
// deduped op list (origins stripped, per spec §4.6 step 5) plus the
// representative origin kept per op, for the receipt.
type Result struct {
	Ops     []ops.WarpOp
	Origins []ops.OpOrigin
}

// Merge flattens every delta's items, sorts by (WarpOpKey, OpOrigin), and
// groups by target. A target where every op is byte-identical collapses
// to one representative op (idempotent duplicates, spec §4.1). A target
// with differing bytes is a Conflict.
func Merge(deltas []*ops.Delta) (Result, error) {
	var items []ops.Item
	for _, d := range deltas {
		if d == nil {
			continue
		}
		items = append(items, d.Items...)
	}

	sort.Slice(items, func(i, j int) bool {
		return bytes.Compare(sortKey(items[i]), sortKey(items[j])) < 0
	})

	var result Result
	i := 0
	for i < len(items) {
		j := i + 1
		target := items[i].Op.TargetKey()
		for j < len(items) && bytes.Equal(items[j].Op.TargetKey(), target) {
			j++
		}

		group := items[i:j]
		rep := group[0].Op.CanonicalBytes()
		for _, it := range group[1:] {
			if !bytes.Equal(it.Op.CanonicalBytes(), rep) {
				origins := make([]ops.OpOrigin, len(group))
				for k, it2 := range group {
					origins[k] = it2.Origin
				}
				return Result{}, &Conflict{TargetKey: target, Origins: origins}
			}
		}

		result.Ops = append(result.Ops, group[0].Op)
		result.Origins = append(result.Origins, group[0].Origin)
		i = j
	}

	return result, nil
}

// sortKey is the full (WarpOpKey, OpOrigin) byte key spec §4.6 step 2
// describes: variant tag + target bytes (TargetKey), then value bytes
// (tertiary — orders otherwise target-identical ops without affecting
// conflict detection), then the OpOrigin tiebreaker.
func sortKey(it ops.Item) []byte {
	key := it.Op.TargetKey()
	key = append(key, it.Op.ValueBytesForOrdering()...)
	key = append(key, originBytes(it.Origin)...)
	return key
}

func originBytes(o ops.OpOrigin) []byte {
	buf := append([]byte{}, o.IntentID[:]...)
	buf = hashing.PutU32LE(buf, o.RuleID)
	buf = hashing.PutU32LE(buf, o.MatchIndex)
	buf = hashing.PutU32LE(buf, o.OpIndex)
	return buf
}
