// Package lru implements the LRU eviction policy — the one policy spec.md
// §4.3 requires every implementation to ship.
//
// Grounded on the teacher's policy/lru/lru.go (move-to-front via
// policy.Hooks), extended with the sample vector + parallel index map
// spec.md §4.3 calls for: "a hash map key -> list-node handle... plus a
// parallel vector of keys for O(1) sample_random... with O(1) removal by
// swap-remove and back-patching the sample-index of the swapped-in key."
package lru

import (
	"math/rand"

	"github.com/IvanBrykalov/rkv/internal/policy"
)

type lruPolicy struct{}

// New returns a Policy factory that constructs per-shard LRU instances.
func New() policy.Policy { return lruPolicy{} }

func (lruPolicy) New(h policy.Hooks) policy.ShardPolicy {
	return &lru{
		h:   h,
		idx: make(map[string]int),
	}
}

// lru tracks, per shard, which keys are resident (via the shard's intrusive
// MRU/LRU list, manipulated through h) and a swap-remove sample vector for
// O(1) random sampling.
type lru struct {
	h    policy.Hooks
	keys []string       // sample vector
	idx  map[string]int // key -> index into keys
}

// OnWrite places a brand-new key at MRU and tracks it for sampling, or
// promotes an already-tracked key to MRU on update.
func (p *lru) OnWrite(n policy.Node) {
	k := n.Key()
	if _, ok := p.idx[k]; ok {
		p.h.MoveToFront(n)
		return
	}
	p.h.PushFront(n)
	p.idx[k] = len(p.keys)
	p.keys = append(p.keys, k)
}

// OnRead promotes the key to MRU.
func (p *lru) OnRead(n policy.Node) {
	if _, ok := p.idx[n.Key()]; ok {
		p.h.MoveToFront(n)
	}
}

// OnDelete forgets the key. Idempotent: a key already forgotten (e.g. by a
// prior PopVictim call in the same eviction cycle) is a no-op, which is
// required because the shard's Remove always calls OnDelete even for keys
// PopVictim already detached from policy state.
func (p *lru) OnDelete(n policy.Node) {
	k := n.Key()
	i, ok := p.idx[k]
	if !ok {
		return
	}
	p.h.Remove(n)
	p.swapRemoveSample(i)
	delete(p.idx, k)
}

// SampleRandom returns one tracked key chosen uniformly at random, O(1).
func (p *lru) SampleRandom() (string, bool) {
	if len(p.keys) == 0 {
		return "", false
	}
	return p.keys[rand.Intn(len(p.keys))], true
}

// PopVictim evicts the LRU head: unlinks it from the shard's intrusive
// list and swap-removes it from the sample vector.
func (p *lru) PopVictim() (string, bool) {
	back := p.h.Back()
	if back == nil {
		return "", false
	}
	k := back.Key()
	p.h.Remove(back)
	if i, ok := p.idx[k]; ok {
		p.swapRemoveSample(i)
		delete(p.idx, k)
	}
	return k, true
}

// swapRemoveSample removes keys[i] by swapping in the last element and
// back-patching its index, per spec.md §4.3.
func (p *lru) swapRemoveSample(i int) {
	last := len(p.keys) - 1
	if i != last {
		moved := p.keys[last]
		p.keys[i] = moved
		p.idx[moved] = i
	}
	p.keys = p.keys[:last]
}

var _ policy.Policy = lruPolicy{}
