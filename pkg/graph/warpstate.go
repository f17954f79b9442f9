package graph

import (
	"iter"

	"github.com/flyingrobots/echo/pkg/ids"
	"github.com/google/btree"
)

type warpEntry struct {
	id       ids.WarpId
	instance *WarpInstance
}

func warpEntryLess(a, b warpEntry) bool { return ids.Less(a.id, b.id) }

// WarpState is the ordered mapping WarpId → WarpInstance described in
// spec §3. An engine holds exactly one WarpState; each warp inside it
// evolves independently but is hashed together for the multi-warp state
// root (spec §4.7, STATE_ROOT_MULTI_V2).
type WarpState struct {
	warps *btree.BTreeG[warpEntry]
}

// NewWarpState returns an empty multi-warp state.
func NewWarpState() *WarpState {
	return &WarpState{warps: btree.NewG(btreeDegree, warpEntryLess)}
}

// Warp returns the instance for id, creating an empty one on first
// access. This mirrors how a rewrite rule's first write to a new warp
// implicitly provisions it — WarpState never requires an explicit "create
// warp" op.
func (s *WarpState) Warp(id ids.WarpId) *WarpInstance {
	entry, ok := s.warps.Get(warpEntry{id: id})
	if !ok {
		entry = warpEntry{id: id, instance: NewWarpInstance()}
		s.warps.ReplaceOrInsert(entry)
	}
	return entry.instance
}

// Lookup returns the instance for id without creating it.
func (s *WarpState) Lookup(id ids.WarpId) (*WarpInstance, bool) {
	entry, ok := s.warps.Get(warpEntry{id: id})
	return entry.instance, ok
}

// InOrder lazily yields every (WarpId, *WarpInstance) pair in ascending
// WarpId order.
func (s *WarpState) InOrder() iter.Seq2[ids.WarpId, *WarpInstance] {
	return func(yield func(ids.WarpId, *WarpInstance) bool) {
		s.warps.Ascend(func(e warpEntry) bool {
			return yield(e.id, e.instance)
		})
	}
}

// Len returns the number of warps currently provisioned.
func (s *WarpState) Len() int { return s.warps.Len() }
