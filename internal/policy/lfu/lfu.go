// Package lfu implements an optional Least-Frequently-Used eviction policy,
// satisfying the same policy.Policy contract as lru and twoq.
//
// spec.md §4.3 describes LFU only loosely ("a frequency structure (counter
// per key + buckets by frequency)"); grounded on
// _examples/original_source/src/db/eviction/eviction_alo.rs, which sketches
// an admission/frequency-ladder structure in the original engine, reworked
// here into the classic O(1)-amortized frequency-bucket design (a counter
// per key plus a doubly linked bucket per distinct frequency, same shape
// `container/list` already gives the teacher's twoq ghost queue).
package lfu

import (
	"container/list"
	"math/rand"

	"github.com/IvanBrykalov/rkv/internal/policy"
)

type lfuPolicy struct{}

// New returns a Policy factory that constructs per-shard LFU instances.
func New() policy.Policy { return lfuPolicy{} }

func (lfuPolicy) New(h policy.Hooks) policy.ShardPolicy {
	return &lfu{
		h:       h,
		freqOf:  make(map[string]int),
		elemOf:  make(map[string]*list.Element),
		buckets: make(map[int]*list.List),
		idx:     make(map[string]int),
	}
}

type lfu struct {
	h policy.Hooks

	freqOf  map[string]int
	elemOf  map[string]*list.Element
	buckets map[int]*list.List
	minFreq int

	// sample vector, parallel to lru's, for O(1) SampleRandom.
	keys []string
	idx  map[string]int
}

// OnWrite admits a brand-new key at frequency 1, or bumps an already
// tracked key's frequency (an update counts as a use).
func (p *lfu) OnWrite(n policy.Node) {
	k := n.Key()
	if _, ok := p.freqOf[k]; ok {
		p.bump(n)
		return
	}
	p.h.PushFront(n)
	p.freqOf[k] = 1
	p.elemOf[k] = p.bucket(1).PushBack(k)
	p.minFreq = 1
	p.track(k)
}

// OnRead bumps the key's frequency by one bucket.
func (p *lfu) OnRead(n policy.Node) { p.bump(n) }

func (p *lfu) bump(n policy.Node) {
	k := n.Key()
	f, ok := p.freqOf[k]
	if !ok {
		return
	}
	p.detach(k, f)
	nf := f + 1
	p.freqOf[k] = nf
	p.elemOf[k] = p.bucket(nf).PushBack(k)
	p.h.MoveToFront(n)
}

// OnDelete forgets the key. Idempotent, as required by the shard's Remove
// path (see lru.OnDelete for why).
func (p *lfu) OnDelete(n policy.Node) {
	k := n.Key()
	f, ok := p.freqOf[k]
	if !ok {
		return
	}
	p.detach(k, f)
	delete(p.freqOf, k)
	p.h.Remove(n)
	p.untrack(k)
}

// SampleRandom returns one tracked key uniformly at random.
func (p *lfu) SampleRandom() (string, bool) {
	if len(p.keys) == 0 {
		return "", false
	}
	return p.keys[rand.Intn(len(p.keys))], true
}

// PopVictim evicts a key from the lowest-frequency bucket (oldest entry in
// that bucket, i.e. least frequently *and* least recently used among ties).
func (p *lfu) PopVictim() (string, bool) {
	b, f, ok := p.lowestBucket()
	if !ok {
		return "", false
	}
	front := b.Front()
	k := front.Value.(string)
	b.Remove(front)
	if b.Len() == 0 {
		delete(p.buckets, f)
	}
	delete(p.elemOf, k)
	delete(p.freqOf, k)
	p.untrack(k)
	return k, true
}

func (p *lfu) bucket(f int) *list.List {
	b, ok := p.buckets[f]
	if !ok {
		b = list.New()
		p.buckets[f] = b
	}
	return b
}

func (p *lfu) detach(k string, f int) {
	b, ok := p.buckets[f]
	if !ok {
		return
	}
	if el, ok := p.elemOf[k]; ok {
		b.Remove(el)
	}
	if b.Len() == 0 {
		delete(p.buckets, f)
		if p.minFreq == f {
			p.minFreq = f + 1
		}
	}
}

// lowestBucket finds the non-empty bucket with the smallest frequency. The
// cached minFreq is only ever a lower bound (bumped lazily on detach), so
// this scans forward from it to find the true minimum among a handful of
// distinct frequencies in the common case.
func (p *lfu) lowestBucket() (*list.List, int, bool) {
	if len(p.buckets) == 0 {
		return nil, 0, false
	}
	if b, ok := p.buckets[p.minFreq]; ok {
		return b, p.minFreq, true
	}
	best := -1
	for f := range p.buckets {
		if best == -1 || f < best {
			best = f
		}
	}
	p.minFreq = best
	return p.buckets[best], best, true
}

func (p *lfu) track(k string) {
	if _, ok := p.idx[k]; ok {
		return
	}
	p.idx[k] = len(p.keys)
	p.keys = append(p.keys, k)
}

func (p *lfu) untrack(k string) {
	i, ok := p.idx[k]
	if !ok {
		return
	}
	last := len(p.keys) - 1
	if i != last {
		moved := p.keys[last]
		p.keys[i] = moved
		p.idx[moved] = i
	}
	p.keys = p.keys[:last]
	delete(p.idx, k)
}

var _ policy.Policy = lfuPolicy{}
