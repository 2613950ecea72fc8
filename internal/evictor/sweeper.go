// Package evictor implements the two background eviction jobs spec.md §4.4
// describes: the TTL sweeper (probabilistic active expiry) and the memory
// evictor (policy-driven shedding under memory pressure). Both loops are
// grounded directly on spec.md's own algorithm description; their
// goroutine/ticker/shutdown-broadcast shape follows the teacher's general
// background-task idiom (cmd/bench/main.go's worker goroutines, each
// selecting on a done channel every iteration).
package evictor

import (
	"math/rand"
	"time"

	"github.com/IvanBrykalov/rkv/internal/keyspace"
)

// TickInterval is how often both loops run one cycle, per spec.md §4.4.
const TickInterval = 100 * time.Millisecond

// SampleSize bounds the TTL sweeper's work per tick: up to this many
// (db,shard) pairs are probed per cycle, per spec.md §4.4.
const SampleSize = 20

// shardRef addresses one shard by its (db, index) coordinates, the unit the
// sweeper's active-pairs list and the memory evictor's candidate heap both
// work in terms of.
type shardRef struct {
	db  int
	idx int
}

// Sweeper probabilistically expires keys whose TTL has elapsed, without
// requiring every read path to pay for active-expiry bookkeeping.
type Sweeper struct {
	ks   *keyspace.Keyspace
	rng  *rand.Rand
	hits func(removed int) // metrics hook; may be nil
}

// NewSweeper constructs a Sweeper over ks. onRemoved, if non-nil, is called
// once per tick that expired at least one key, with the number of keys
// actually expired that cycle.
func NewSweeper(ks *keyspace.Keyspace, onRemoved func(removed int)) *Sweeper {
	return &Sweeper{
		ks:   ks,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
		hits: onRemoved,
	}
}

// Tick runs one sweep cycle: build the active-pairs list, then sample up to
// SampleSize times, per spec.md §4.4.
func (s *Sweeper) Tick(nowMillis int64) {
	active := s.activePairs()
	if len(active) == 0 {
		return
	}
	removed := 0
	for i := 0; i < SampleSize; i++ {
		if len(active) == 0 {
			break
		}
		pick := s.rng.Intn(len(active))
		ref := active[pick]
		shard := s.ks.ShardAt(ref.db, ref.idx)

		key, ok := shard.SampleRandomKey()
		if !ok {
			// Shard has gone empty since the pairs list was built; drop it
			// and keep sampling, per spec.md §4.4's "if during a scan the
			// chosen shard is empty, remove it from the active-pairs list".
			active[pick] = active[len(active)-1]
			active = active[:len(active)-1]
			continue
		}
		expiresAt, hasTTL, present := shard.PeekExpiry(key)
		if !present || !hasTTL {
			continue
		}
		if nowMillis > expiresAt {
			if shard.Remove(key) {
				removed++
			}
		}
	}
	if s.hits != nil && removed > 0 {
		s.hits(removed)
	}
}

// activePairs returns every (db, shard) coordinate whose shard currently
// holds at least one key.
func (s *Sweeper) activePairs() []shardRef {
	var out []shardRef
	s.ks.ForEachShard(func(db, idx int, sh *keyspace.Shard) {
		if sh.MemoryUsed() > 0 {
			out = append(out, shardRef{db: db, idx: idx})
		}
	})
	return out
}
