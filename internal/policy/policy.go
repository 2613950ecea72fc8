// Package policy defines the narrow behavior contract an eviction policy
// must satisfy, and the hooks a shard exposes so a policy can manipulate
// the shard's intrusive recency list without reaching into shard internals.
//
// Grounded on the teacher's policy/policy.go: same Node/Hooks/ShardPolicy/
// Policy shape, widened with SampleRandom/PopVictim per spec.md §4.3 (the
// teacher's shard self-enforces capacity; spec.md gives that job to a
// separate eviction engine that asks the policy to sample and pop victims).
package policy

// Node is the minimal contract a cache entry must satisfy for a policy. It
// exposes only identity (Key) — policies never need to read or mutate the
// stored value itself, only track keys.
type Node interface {
	Key() string
}

// Hooks expose O(1) list operations a policy can use to manipulate the
// shard's intrusive MRU/LRU list. All calls happen under the shard lock.
type Hooks interface {
	// MoveToFront promotes the node to MRU.
	MoveToFront(Node)
	// PushFront inserts the node at MRU (used on admission).
	PushFront(Node)
	// Remove detaches the node from the list (map bookkeeping is the
	// shard's job).
	Remove(Node)
	// Back returns the current LRU node, or nil if empty.
	Back() Node
	// Len returns the number of resident nodes in the shard.
	Len() int
}

// ShardPolicy is a per-shard eviction policy instance bound to shard hooks.
// All methods are invoked under the shard lock.
type ShardPolicy interface {
	// OnWrite records or refreshes a key (covers both first insertion and
	// update-in-place).
	OnWrite(Node)
	// OnRead marks a key as recently/frequently used.
	OnRead(Node)
	// OnDelete forgets a key (called before the shard decrements its
	// memory counter, per spec.md §3 Lifecycle).
	OnDelete(Node)
	// SampleRandom returns one key tracked by the policy, chosen uniformly
	// at random, in O(1). Returns ("", false) if nothing is tracked.
	SampleRandom() (string, bool)
	// PopVictim selects the key the policy recommends evicting next,
	// removes it from the policy's own structures, and returns it.
	// Returns ("", false) if nothing is tracked.
	PopVictim() (string, bool)
}

// Policy is a factory that creates shard-local policy instances bound to a
// particular shard's hooks.
type Policy interface {
	New(Hooks) ShardPolicy
}
