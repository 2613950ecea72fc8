// Package keyspace implements the sharded, lock-partitioned keyspace
// (spec.md §4.1 Shard, §4.2 Keyspace): 16 logical databases, each an array
// of shards, with FxHash-based routing and explicit read/write guards.
//
// Grounded on the teacher's cache/cache.go (New(...), getShard, power-of-two
// shard sizing) generalized from one flat shard array into 16 independent
// per-database shard arrays — databases never share a shard, so a key in db
// 3 can never collide with the "same" key in db 0.
package keyspace

import (
	"github.com/IvanBrykalov/rkv/internal/clock"
	"github.com/IvanBrykalov/rkv/internal/policy"
)

// NumDatabases is the fixed count of logical databases, per spec.md §3.
const NumDatabases = 16

// Keyspace owns NumDatabases independent arrays of shards, constructed once
// at startup and never resized.
type Keyspace struct {
	dbs [NumDatabases][]*Shard
}

// New constructs a Keyspace with shardsPerDB shards in each of the 16
// databases, each shard running its own instance of the policy factory.
// shardsPerDB is rounded up to the next power of two (a configuration
// convenience per spec.md §4.2, not a correctness requirement).
func New(shardsPerDB int, polFactory policy.Policy, src clock.Source) *Keyspace {
	n := int(NextPow2(uint64(shardsPerDB)))
	if n < 1 {
		n = 1
	}
	ks := &Keyspace{}
	for db := 0; db < NumDatabases; db++ {
		shards := make([]*Shard, n)
		for i := range shards {
			shards[i] = NewShard(polFactory, src)
		}
		ks.dbs[db] = shards
	}
	return ks
}

// ShardsPerDB returns the shard-array length for one database.
func (ks *Keyspace) ShardsPerDB() int { return len(ks.dbs[0]) }

// ShardIndex returns the shard a key hashes to within its database.
func (ks *Keyspace) ShardIndex(key Key) int {
	return shardIndex(FxHash(key), ks.ShardsPerDB())
}

// ShardAt returns the shard at an explicit (db, index) pair, used by the
// eviction engine and the script sandbox which address shards directly
// rather than by key.
func (ks *Keyspace) ShardAt(db, idx int) *Shard {
	return ks.dbs[db][idx]
}

// ReadGuard vends a reference to the shard holding key in db, for
// read-shaped commands (GET). Named to match spec.md §4.2's
// lock_read(db,key); the shard's own locking still escalates to an
// exclusive critical section internally because LRU/LFU promotion mutates
// shared state on every hit — see internal/keyspace/shard.go.
type ReadGuard struct{ shard *Shard }

// Get reads key through the guard, applying lazy expiry and policy
// promotion per spec.md §4.1.
func (g ReadGuard) Get(key Key) (*Entry, bool) { return g.shard.Get(key) }

// Peek reads key without promoting it or touching hit/miss counters.
func (g ReadGuard) Peek(key Key) (*Entry, bool) { return g.shard.Peek(key) }

// WriteGuard vends a reference to the shard holding key in db, for
// mutating commands (SET/DEL/…). The script sandbox uses LockedWriteGuard
// instead (see LockWriteHeld).
type WriteGuard struct{ shard *Shard }

func (g WriteGuard) Insert(key Key, entry *Entry) { g.shard.Insert(key, entry) }
func (g WriteGuard) Remove(key Key) bool          { return g.shard.Remove(key) }
func (g WriteGuard) Get(key Key) (*Entry, bool)   { return g.shard.Get(key) }
func (g WriteGuard) Peek(key Key) (*Entry, bool)  { return g.shard.Peek(key) }

func (g WriteGuard) InsertConditional(key Key, entry *Entry, nx, xx bool) bool {
	return g.shard.InsertConditional(key, entry, nx, xx)
}
func (g WriteGuard) SetExpiry(key Key, absAtMillis int64) bool {
	return g.shard.SetExpiry(key, absAtMillis)
}
func (g WriteGuard) Mutate(key Key, fn func(cur *Entry) (next *Entry, result any, touch bool)) any {
	return g.shard.Mutate(key, fn)
}

// LockRead vends a ReadGuard for key in db.
func (ks *Keyspace) LockRead(db int, key Key) ReadGuard {
	return ReadGuard{shard: ks.dbs[db][ks.ShardIndex(key)]}
}

// LockWrite vends a WriteGuard for key in db.
func (ks *Keyspace) LockWrite(db int, key Key) WriteGuard {
	return WriteGuard{shard: ks.dbs[db][ks.ShardIndex(key)]}
}

// LockWriteIndexed vends a WriteGuard for an explicit (db, shard index)
// pair, bypassing key hashing. Each operation through it locks the shard
// on its own; the script sandbox, which holds shards locked across a whole
// script, uses LockWriteHeld instead.
func (ks *Keyspace) LockWriteIndexed(db, idx int) WriteGuard {
	return WriteGuard{shard: ks.dbs[db][idx]}
}

// LockedWriteGuard holds a shard's exclusive lock across an arbitrary
// number of operations, for the script sandbox's cross-command atomicity
// contract (spec.md §4.8): a script's whole execution — every Peek/
// Insert/Remove it performs through `call` against a pre-declared key —
// must run as one uninterrupted critical section per shard, not as a
// sequence of independently-locked operations (which is all WriteGuard
// gives). Callers MUST call Unlock exactly once, typically via defer right
// after LockWriteHeld returns.
type LockedWriteGuard struct{ shard *Shard }

// LockWriteHeld acquires and holds shard (db, idx)'s exclusive lock.
func (ks *Keyspace) LockWriteHeld(db, idx int) LockedWriteGuard {
	s := ks.dbs[db][idx]
	s.mu.Lock()
	return LockedWriteGuard{shard: s}
}

// Unlock releases the held lock.
func (g LockedWriteGuard) Unlock() { g.shard.mu.Unlock() }

// Peek reads key without promoting it, assuming the lock is already held.
func (g LockedWriteGuard) Peek(key Key) (*Entry, bool) { return g.shard.peekLocked(key) }

// Insert writes key->entry, assuming the lock is already held.
func (g LockedWriteGuard) Insert(key Key, entry *Entry) { g.shard.insertLocked(key, entry) }

// Remove deletes key if present, assuming the lock is already held.
func (g LockedWriteGuard) Remove(key Key) bool { return g.shard.removeLocked(key) }

// GlobalMemoryUsed sums memory_used across every shard of every database,
// short-circuiting as soon as threshold is exceeded. Never holds more than
// one shard lock at a time, per spec.md §4.4.
func (ks *Keyspace) GlobalMemoryUsed(threshold int64) (total int64, exceeded bool) {
	for db := 0; db < NumDatabases; db++ {
		for _, s := range ks.dbs[db] {
			total += s.MemoryUsed()
			if threshold >= 0 && total > threshold {
				return total, true
			}
		}
	}
	return total, false
}

// ForEachShard calls fn for every (db, shardIndex) pair in the keyspace, in
// db-major, shard-minor order. Used by the memory evictor to build its
// top-K candidate list.
func (ks *Keyspace) ForEachShard(fn func(db, idx int, s *Shard)) {
	for db := 0; db < NumDatabases; db++ {
		for i, s := range ks.dbs[db] {
			fn(db, i, s)
		}
	}
}

// FlushDB removes every key from every shard of db, preserving per-shard
// policy/counter consistency (each key is removed through the normal
// remove path rather than replacing the shard wholesale).
func (ks *Keyspace) FlushDB(db int) {
	for _, s := range ks.dbs[db] {
		s.Clear()
	}
}

// DBSize counts live keys in db. Approximate: lazily-expired keys not yet
// swept still count, the same caveat Redis-family DBSIZE carries.
func (ks *Keyspace) DBSize(db int) int {
	total := 0
	for _, s := range ks.dbs[db] {
		total += s.Len()
	}
	return total
}

// GlobalHitsMisses sums every shard's cumulative hit/miss counters, for
// periodic metrics reporting.
func (ks *Keyspace) GlobalHitsMisses() (hits, misses int64) {
	for db := 0; db < NumDatabases; db++ {
		for _, s := range ks.dbs[db] {
			hits += s.Hits()
			misses += s.Misses()
		}
	}
	return hits, misses
}

// GlobalEntries sums Len() across every shard of every database.
func (ks *Keyspace) GlobalEntries() int {
	total := 0
	for db := 0; db < NumDatabases; db++ {
		for _, s := range ks.dbs[db] {
			total += s.Len()
		}
	}
	return total
}
