package evictor

import (
	"container/heap"
	"context"
	"time"

	"github.com/IvanBrykalov/rkv/internal/keyspace"
)

// TopShards is how many of the heaviest shards the memory evictor targets
// per over-budget tick, per spec.md §4.4.
const TopShards = 5

// PerTaskBudget bounds how long one shard's eviction task may run before
// yielding, per spec.md §4.4.
const PerTaskBudget = 10 * time.Millisecond

// BudgetCheckEvery is how often (in evictions) an eviction task rechecks
// its elapsed time against PerTaskBudget — checking every eviction would
// add a syscall-shaped time.Now() call to the hottest of hot loops, per
// spec.md §4.4 ("time checked every 10 evictions").
const BudgetCheckEvery = 10

// MemoryEvictor sheds entries from the heaviest shards when global memory
// usage exceeds budget, running policy-selected victims (PopVictim) rather
// than scanning for the "right" key to remove.
type MemoryEvictor struct {
	ks       *keyspace.Keyspace
	budget   int64
	onEvict  func(n int) // metrics hook; may be nil
	spawn    func(fn func())
}

// NewMemoryEvictor constructs a MemoryEvictor. spawn governs how each
// shard's eviction task is launched — production wires a function that
// tracks the goroutine in an errgroup.Group so shutdown can await it
// (spec.md §4.4 "tasks are tracked so shutdown can await them"); tests can
// pass a synchronous spawn (fn()) to keep assertions deterministic.
func NewMemoryEvictor(ks *keyspace.Keyspace, budget int64, spawn func(fn func()), onEvict func(n int)) *MemoryEvictor {
	if spawn == nil {
		spawn = func(fn func()) { fn() }
	}
	return &MemoryEvictor{ks: ks, budget: budget, spawn: spawn, onEvict: onEvict}
}

// Tick runs one memory-pressure cycle. ctx is checked so a shutdown signal
// can cut a long-running tick short between shard tasks.
func (m *MemoryEvictor) Tick(ctx context.Context) {
	if m.budget <= 0 {
		return // unlimited — memory eviction disabled
	}
	total, exceeded := m.ks.GlobalMemoryUsed(m.budget)
	if !exceeded {
		return
	}

	candidates := m.topShards()
	for _, c := range candidates {
		if ctx.Err() != nil {
			return
		}
		shard := c.shard
		m.spawn(func() {
			m.evictFromShard(shard, total)
		})
	}
}

// evictFromShard repeatedly pops and removes the policy's chosen victim
// until the shard is empty, PerTaskBudget elapses, or global memory is back
// under budget (the last two checked every BudgetCheckEvery evictions).
func (m *MemoryEvictor) evictFromShard(shard *keyspace.Shard, totalAtStart int64) {
	start := time.Now()
	evicted := 0
	for {
		key, ok := shard.SampleVictim()
		if !ok {
			break
		}
		shard.Remove(key)
		evicted++
		if evicted%BudgetCheckEvery == 0 {
			if time.Since(start) > PerTaskBudget {
				break
			}
			if total, exceeded := m.ks.GlobalMemoryUsed(m.budget); !exceeded {
				_ = total
				break
			}
		}
	}
	if m.onEvict != nil && evicted > 0 {
		m.onEvict(evicted)
	}
}

type shardCandidate struct {
	db, idx int
	used    int64
	shard   *keyspace.Shard
}

// shardHeap is a min-heap by used memory that keeps the K heaviest shards
// (ties broken by (db,idx), per
// spec.md §4.4), capped at TopShards entries, giving O(n log k) top-K
// selection over every shard in the keyspace. Grounded on the same
// container/* idiom the teacher's 2Q policy uses container/list for — no
// pack dependency ships a third-party heap.
type shardHeap []shardCandidate

func (h shardHeap) Len() int { return len(h) }
func (h shardHeap) Less(i, j int) bool {
	// Min-heap on (used, db, idx) so the *lightest* of the current top-K
	// sits at the root and gets evicted first when a heavier candidate
	// arrives — the standard "keep the top-K, bump the weakest" trick.
	if h[i].used != h[j].used {
		return h[i].used < h[j].used
	}
	if h[i].db != h[j].db {
		return h[i].db < h[j].db
	}
	return h[i].idx < h[j].idx
}
func (h shardHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *shardHeap) Push(x any)        { *h = append(*h, x.(shardCandidate)) }
func (h *shardHeap) Pop() any {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

func (m *MemoryEvictor) topShards() []shardCandidate {
	h := &shardHeap{}
	heap.Init(h)
	m.ks.ForEachShard(func(db, idx int, sh *keyspace.Shard) {
		c := shardCandidate{db: db, idx: idx, used: sh.MemoryUsed(), shard: sh}
		if h.Len() < TopShards {
			heap.Push(h, c)
			return
		}
		if (*h)[0].used < c.used {
			heap.Pop(h)
			heap.Push(h, c)
		}
	})
	out := make([]shardCandidate, h.Len())
	copy(out, *h)
	return out
}
