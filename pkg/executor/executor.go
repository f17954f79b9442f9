// Package executor implements spec §4.5: the Bag-Of-Autonomous-Workers
// (BOAW) sharded parallel executor. Accepted rewrites are pre-partitioned
// into 256 virtual shards, a fixed pool of workers claims shards off a
// shared atomic counter, and each worker executes its claimed items
// against a read-only GraphView, writing only into its own thread-local
// TickDelta.
package executor

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/flyingrobots/echo/pkg/graph"
	"github.com/flyingrobots/echo/pkg/ids"
	"github.com/flyingrobots/echo/pkg/ops"
	"github.com/flyingrobots/echo/pkg/rule"
	"github.com/flyingrobots/echo/pkg/scheduler"
)

// ShardCount is the protocol constant from spec §4.5: 256 virtual shards.
// It MUST NOT change without a version bump — shard_of's output space is
// part of the engine's cross-run determinism contract.
const ShardCount = 256

// ShardOf computes the virtual shard for scope, per spec §4.5:
// u64_le(scope_bytes[0..8]) & 0xFF.
func ShardOf(scope ids.NodeId) uint8 {
	lo := binary.LittleEndian.Uint64(scope[:8])
	return uint8(lo & 0xFF)
}

// RejectReason enumerates non-fatal per-item execution outcomes recorded
// in the tick receipt (spec §7, RuleError::Match).
type RejectReason int

const (
	RejectRuleMatch RejectReason = iota + 1
)

// RejectRecord is one rejected rewrite, carried in the tick receipt.
type RejectRecord struct {
	Rewrite scheduler.PendingRewrite
	Reason  RejectReason
	Detail  string
}

// WorkerOutput is one worker's contribution: its accumulated delta plus
// any items it could not execute (reported by the rule, not by panicking).
type WorkerOutput struct {
	Delta     *ops.Delta
	Rejected  []RejectRecord
}

// Run executes accepted against view using a fixed pool of workers
// workerCount (clamped to [1, 64] per spec §4.5), and returns one
// WorkerOutput per worker. The merged, sorted result (pkg/merge) and
// hence commit_hash is invariant over workerCount and over claim order —
// see spec §8 property 2 and executor_test.go's worker-count-invariance
// check.
//
// A rule Func that panics is a fatal breach (spec §4.5 "cancellation and
// failure"): Run recovers it, marks the tick PanicErr, and stops
// dispatching further shards, but already-running workers still drain to
// completion so no goroutine leaks past Run's return.
func Run(view graph.GraphView, warpID ids.WarpId, accepted []scheduler.PendingRewrite, workerCount int) ([]WorkerOutput, error) {
	if workerCount < 1 {
		workerCount = 1
	}
	if workerCount > 64 {
		workerCount = 64
	}

	shards := partitionByShard(accepted)

	var shardCounter atomic.Uint32
	var panicErr atomic.Value // stores error

	outputs := make([]WorkerOutput, workerCount)
	var wg sync.WaitGroup
	wg.Add(workerCount)

	for w := 0; w < workerCount; w++ {
		w := w
		outputs[w].Delta = &ops.Delta{}
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					panicErr.CompareAndSwap(nil, fmt.Errorf("executor: rule panicked: %v", r))
				}
			}()

			for {
				idx := shardCounter.Add(1) - 1
				if idx >= ShardCount {
					return
				}
				if panicErr.Load() != nil {
					return
				}
				for _, item := range shards[idx] {
					runOne(view, warpID, item, outputs[w].Delta, &outputs[w].Rejected)
				}
			}
		}()
	}

	wg.Wait()

	if v := panicErr.Load(); v != nil {
		return nil, v.(error)
	}
	return outputs, nil
}

func runOne(view graph.GraphView, warpID ids.WarpId, item scheduler.PendingRewrite, delta *ops.Delta, rejected *[]RejectRecord) {
	ctx := rule.NewExecContext(view, item.Scope, warpID, item.IntentID, item.RuleID, item.MatchIndex, delta)
	if err := item.Handle(ctx); err != nil {
		*rejected = append(*rejected, RejectRecord{Rewrite: item, Reason: RejectRuleMatch, Detail: err.Error()})
	}
}

// partitionByShard buckets accepted by ShardOf(scope), preserving the
// relative order rewrites arrive in within each shard. Partitioning
// happens before any worker starts, per spec §4.5.
func partitionByShard(accepted []scheduler.PendingRewrite) [ShardCount][]scheduler.PendingRewrite {
	var shards [ShardCount][]scheduler.PendingRewrite
	for _, r := range accepted {
		s := ShardOf(r.Scope)
		shards[s] = append(shards[s], r)
	}
	return shards
}
