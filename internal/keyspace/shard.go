package keyspace

import (
	"sync"

	"github.com/IvanBrykalov/rkv/internal/clock"
	"github.com/IvanBrykalov/rkv/internal/policy"
)

// entryNode is an intrusive doubly linked list element owned by a shard.
// head = MRU, tail = LRU, mirroring the teacher's cache/node.go shape.
type entryNode struct {
	key   Key
	entry *Entry

	prev, next *entryNode
}

// Key implements policy.Node.
func (n *entryNode) Key() string { return string(n.key) }

// Shard is one lock-protected partition of a database's keyspace: a
// key->entry map, a memory counter, and an eviction-policy instance, all
// guarded by a single RWMutex per spec.md §3.
//
// Grounded directly on the teacher's cache/shard.go: same intrusive list
// helpers (insertFront/moveToFront/removeNode/back) and the same policy
// Hooks adapter pattern. The differences are domain-shaped: entries carry
// an absolute-ms TTL and a precomputed DataSize instead of a UnixNano
// deadline and a "cost"; the shard itself no longer self-enforces a
// capacity limit (spec.md gives that job to the eviction engine, C4).
type Shard struct {
	mu sync.RWMutex

	m    map[Key]*entryNode
	head *entryNode // MRU
	tail *entryNode // LRU
	len  int

	memoryUsed int64

	pol   policy.ShardPolicy
	clock clock.Source

	_      [cacheLineSize]byte
	hits   paddedAtomicInt64
	misses paddedAtomicInt64
}

// NewShard constructs a shard bound to a fresh policy instance created from
// the given factory, and to the shared clock source used for expiry checks.
func NewShard(polFactory policy.Policy, src clock.Source) *Shard {
	s := &Shard{
		m:     make(map[Key]*entryNode),
		clock: src,
	}
	s.pol = polFactory.New(shardHooks{s: s})
	return s
}

// Insert writes key->entry, computing the signed memory delta from any
// prior entry and promoting the key via the eviction policy. Overwriting an
// existing key is allowed. Matches spec.md §4.1 "insert".
func (s *Shard) Insert(key Key, entry *Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertLocked(key, entry)
}

func (s *Shard) insertLocked(key Key, entry *Entry) {
	var prevSize int64
	n, exists := s.m[key]
	if exists {
		prevSize = n.entry.DataSize
		n.entry = entry
	} else {
		n = &entryNode{key: key, entry: entry}
		s.m[key] = n
	}
	s.memoryUsed += entry.DataSize - prevSize
	s.pol.OnWrite(n)
}

func (s *Shard) peekLocked(key Key) (*Entry, bool) {
	n, ok := s.m[key]
	if !ok || s.expired(n.entry) {
		return nil, false
	}
	return n.entry, true
}

// Get returns the entry for key, applying lazy-expiry (reporting absent
// without removing the key — removal under a read guard is never allowed,
// per spec.md §9 Open Questions; the TTL sweeper is responsible for
// actually removing expired keys found this way) and promoting the key via
// the eviction policy on a live hit.
func (s *Shard) Get(key Key) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.m[key]
	if !ok {
		s.misses.Add(1)
		return nil, false
	}
	if s.expired(n.entry) {
		s.misses.Add(1)
		return nil, false
	}
	s.pol.OnRead(n)
	s.hits.Add(1)
	return n.entry, true
}

// Peek returns the entry for key without promoting it or touching hit/miss
// counters. Used internally by the script sandbox's overlay reads and by
// read-only commands (EXISTS/TTL) that must not disturb recency order.
func (s *Shard) Peek(key Key) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.m[key]
	if !ok || s.expired(n.entry) {
		return nil, false
	}
	return n.entry, true
}

// Remove deletes key if present, running the policy's on_delete hook before
// decrementing memory_used, per spec.md §3 Lifecycle. Returns true if a key
// was actually removed.
func (s *Shard) Remove(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(key)
}

func (s *Shard) removeLocked(key Key) bool {
	n, ok := s.m[key]
	if !ok {
		return false
	}
	s.pol.OnDelete(n)
	delete(s.m, key)
	s.memoryUsed -= n.entry.DataSize
	return true
}

// SampleVictim asks the eviction policy for the next key it recommends
// evicting (e.g. the LRU head), WITHOUT removing it from the shard map or
// adjusting memory_used. The caller (the memory evictor) follows up with
// Remove(key), which takes the shard lock again, per spec.md §4.4's
// "repeatedly calls pop_victim + remove".
func (s *Shard) SampleVictim() (Key, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.pol.PopVictim()
	if !ok {
		return "", false
	}
	return Key(k), true
}

// SampleRandomKey asks the eviction policy for one key chosen uniformly at
// random from those it tracks, without removing anything. Used by the TTL
// sweeper (spec.md §4.4) to probe for expired keys.
func (s *Shard) SampleRandomKey() (Key, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.pol.SampleRandom()
	if !ok {
		return "", false
	}
	return Key(k), true
}

// PeekExpiry returns the entry's absolute deadline for key without
// promoting or removing it. Used by the TTL sweeper after SampleRandomKey.
func (s *Shard) PeekExpiry(key Key) (expiresAt int64, hasTTL, present bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.m[key]
	if !ok {
		return 0, false, false
	}
	if n.entry.ExpiresAt == nil {
		return 0, false, true
	}
	return *n.entry.ExpiresAt, true, true
}

// Clear removes every key in the shard through the normal remove path, so
// policy state and memory_used stay consistent with spec.md §3's
// invariants (used by FLUSHDB).
func (s *Shard) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.m {
		s.removeLocked(key)
	}
}

// InsertConditional writes key->entry only if the NX/XX precondition holds
// (both false means unconditional), evaluated atomically with the write
// under a single lock acquisition — the conditional form SET NX/XX needs,
// per spec.md §4.5. Returns whether the write happened.
func (s *Shard) InsertConditional(key Key, entry *Entry, nx, xx bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, exists := s.m[key]
	live := exists && !s.expired(n.entry)
	if nx && live {
		return false
	}
	if xx && !live {
		return false
	}

	var prevSize int64
	if exists {
		prevSize = n.entry.DataSize
		n.entry = entry
	} else {
		n = &entryNode{key: key, entry: entry}
		s.m[key] = n
	}
	s.memoryUsed += entry.DataSize - prevSize
	s.pol.OnWrite(n)
	return true
}

// SetExpiry updates just the TTL deadline of an existing, live key, leaving
// its data and memory accounting untouched. Returns whether the key existed
// and was live. Used by EXPIRE/PEXPIRE.
func (s *Shard) SetExpiry(key Key, absAtMillis int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.m[key]
	if !ok || s.expired(n.entry) {
		return false
	}
	cp := *n.entry
	cp.ExpiresAt = &absAtMillis
	n.entry = &cp
	return true
}

// Mutate gives fn exclusive access to the entry currently stored at key
// (nil if absent or lazily expired) under a single lock acquisition. fn
// returns the Entry to store afterward (nil deletes the key, the same
// pointer passed in leaves it unchanged) together with an arbitrary result
// value and whether anything actually changed (touch=false skips the
// policy/memory bookkeeping entirely — a pure read through Mutate, e.g. an
// LRANGE that found nothing to promote).
//
// This is the shard's single entry point for read-modify-write collection
// commands (LPUSH, HSET, SADD, …): it generalizes Insert/Remove's
// lock-once-mutate-once shape to an arbitrary caller-supplied transform
// instead of a fixed whole-entry replacement.
func (s *Shard) Mutate(key Key, fn func(cur *Entry) (next *Entry, result any, touch bool)) any {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.m[key]
	var cur *Entry
	if ok && !s.expired(n.entry) {
		cur = n.entry
	}

	next, result, touch := fn(cur)
	if !touch {
		return result
	}

	if next == nil {
		if ok {
			s.pol.OnDelete(n)
			delete(s.m, key)
			s.memoryUsed -= n.entry.DataSize
		}
		return result
	}

	var prevSize int64
	if ok {
		prevSize = n.entry.DataSize
		n.entry = next
	} else {
		n = &entryNode{key: key, entry: next}
		s.m[key] = n
	}
	s.memoryUsed += next.DataSize - prevSize
	s.pol.OnWrite(n)
	return result
}

// MemoryUsed returns the shard's current memory accounting total under a
// plain read lock — this is the "non-owning read-lock scan" path spec.md
// §4.4 describes for the memory evictor's global observation.
func (s *Shard) MemoryUsed() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.memoryUsed
}

// Len returns the number of resident entries, under a read lock.
func (s *Shard) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.len
}

// Hits and Misses return the shard's cumulative Get-path counters, read
// lock-free off their padded atomics for the metrics poller.
func (s *Shard) Hits() int64   { return s.hits.Load() }
func (s *Shard) Misses() int64 { return s.misses.Load() }

func (s *Shard) expired(e *Entry) bool {
	if e.ExpiresAt == nil {
		return false
	}
	return s.clock.NowMillis() > *e.ExpiresAt
}

// -------------------- intrusive list internals (mu held) --------------------

func (s *Shard) insertFront(n *entryNode) {
	n.prev = nil
	n.next = s.head
	if s.head != nil {
		s.head.prev = n
	}
	s.head = n
	if s.tail == nil {
		s.tail = n
	}
	s.len++
}

func (s *Shard) moveToFront(n *entryNode) {
	if n == s.head {
		return
	}
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if s.tail == n {
		s.tail = n.prev
	}
	n.prev = nil
	n.next = s.head
	if s.head != nil {
		s.head.prev = n
	}
	s.head = n
	if s.tail == nil {
		s.tail = n
	}
}

func (s *Shard) removeNode(n *entryNode) {
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if s.head == n {
		s.head = n.next
	}
	if s.tail == n {
		s.tail = n.prev
	}
	n.prev, n.next = nil, nil
	s.len--
}

func (s *Shard) back() *entryNode { return s.tail }

// -------------------- policy hooks --------------------

// shardHooks adapts the shard's intrusive list operations to policy.Hooks,
// exactly as the teacher's shardHooks adapts cache/shard.go to
// policy/policy.go.
type shardHooks struct{ s *Shard }

func (h shardHooks) MoveToFront(x policy.Node) { h.s.moveToFront(x.(*entryNode)) }
func (h shardHooks) PushFront(x policy.Node)    { h.s.insertFront(x.(*entryNode)) }
func (h shardHooks) Remove(x policy.Node)       { h.s.removeNode(x.(*entryNode)) }
func (h shardHooks) Back() policy.Node {
	if h.s.tail == nil {
		return nil
	}
	return h.s.tail
}
func (h shardHooks) Len() int { return h.s.len }
