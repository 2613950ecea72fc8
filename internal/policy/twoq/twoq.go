// Package twoq implements the 2Q eviction policy, a selectable alternative
// to LRU that resists scan pollution.
//
// Carried over from the teacher's policy/twoq/twoq.go (same A1in/Am/ghost
// admission scheme, built on container/list for the ghost queue), adapted
// from generic K/V nodes to this repo's string-keyed policy.Node/Hooks, and
// extended with the SampleRandom/PopVictim pair spec.md §4.3 requires of
// every policy (the teacher's shard self-enforced capacity instead, so
// 2Q never needed a victim-selection entry point there).
package twoq

import (
	"container/list"
	"math/rand"

	"github.com/IvanBrykalov/rkv/internal/policy"
)

type twoQPolicy struct {
	capIn    int
	capGhost int
}

// New constructs a 2Q policy factory. capIn/capGhost are per-shard sizes
// (teacher convention: capIn ~= 25% of shard capacity, capGhost ~= 50%).
func New(capIn, capGhost int) policy.Policy {
	if capIn < 1 {
		capIn = 1
	}
	if capGhost < 1 {
		capGhost = 1
	}
	return twoQPolicy{capIn: capIn, capGhost: capGhost}
}

func (p twoQPolicy) New(h policy.Hooks) policy.ShardPolicy {
	return &twoQ{
		h:         h,
		capIn:     p.capIn,
		capGhost:  p.capGhost,
		inList:    list.New(),
		inIdx:     make(map[string]*list.Element),
		ghostList: list.New(),
		ghostIdx:  make(map[string]*list.Element),
		residentI: make(map[string]int),
	}
}

// twoQ tracks, per shard:
//   - A1in (younger queue): first-time admissions, own list + index.
//   - Am (mature queue): everything resident but not in A1in; ordering
//     lives in the shard's intrusive list via h.
//   - A1out (ghosts): keys only, recently evicted from A1in.
//   - resident: a flat sample vector of every currently tracked key (A1in
//     ∪ Am), for O(1) SampleRandom.
type twoQ struct {
	h policy.Hooks

	capIn    int
	capGhost int

	inList *list.List
	inIdx  map[string]*list.Element // key -> element (element.Value is policy.Node)

	ghostList *list.List
	ghostIdx  map[string]*list.Element // key -> element (element.Value is key)

	resident  []string
	residentI map[string]int
}

// OnWrite admits a new key (bypassing A1in into Am if it has a ghost entry,
// else into A1in) or promotes an existing key.
func (q *twoQ) OnWrite(n policy.Node) {
	k := n.Key()
	if _, tracked := q.residentI[k]; tracked {
		q.promote(n)
		return
	}

	if ge, ok := q.ghostIdx[k]; ok {
		q.ghostList.Remove(ge)
		delete(q.ghostIdx, k)
		q.h.PushFront(n) // second chance: straight into Am (MRU)
	} else {
		q.h.PushFront(n)
		q.inIdx[k] = q.inList.PushFront(n)
		if q.inList.Len() > q.capIn {
			// Demote the A1in LRU into plain Am membership (it stays
			// resident; only the A1in fast-track status is dropped).
			if lru := q.inList.Back(); lru != nil {
				lk := lru.Value.(policy.Node).Key()
				delete(q.inIdx, lk)
				q.inList.Remove(lru)
			}
		}
	}
	q.track(k)
}

// OnRead promotes the key: leaving A1in (graduating to Am) on first
// re-access, or simple MRU promotion within Am thereafter.
func (p *twoQ) OnRead(n policy.Node) { p.promote(n) }

func (q *twoQ) promote(n policy.Node) {
	k := n.Key()
	if el, ok := q.inIdx[k]; ok {
		q.inList.Remove(el)
		delete(q.inIdx, k)
	}
	q.h.MoveToFront(n)
}

// OnDelete forgets the key entirely and, if it was in A1in, records a
// ghost so a near-term re-admission gets a second chance into Am.
func (q *twoQ) OnDelete(n policy.Node) {
	k := n.Key()
	if !q.untrack(k) {
		return
	}
	if el, ok := q.inIdx[k]; ok {
		q.inList.Remove(el)
		delete(q.inIdx, k)
		q.addGhost(k)
	}
	q.h.Remove(n)
}

func (q *twoQ) addGhost(k string) {
	if old, ok := q.ghostIdx[k]; ok {
		q.ghostList.Remove(old)
	}
	q.ghostIdx[k] = q.ghostList.PushFront(k)
	for q.ghostList.Len() > q.capGhost {
		tail := q.ghostList.Back()
		if tail == nil {
			break
		}
		delete(q.ghostIdx, tail.Value.(string))
		q.ghostList.Remove(tail)
	}
}

// SampleRandom returns one resident key (A1in or Am) uniformly at random.
func (q *twoQ) SampleRandom() (string, bool) {
	if len(q.resident) == 0 {
		return "", false
	}
	return q.resident[rand.Intn(len(q.resident))], true
}

// PopVictim prefers the A1in LRU (scan-resistant: first-touch entries are
// evicted before anything that has proven reuse in Am); if A1in is empty it
// falls back to the shard's intrusive list tail (Am's LRU).
func (q *twoQ) PopVictim() (string, bool) {
	if back := q.inList.Back(); back != nil {
		n := back.Value.(policy.Node)
		k := n.Key()
		q.inList.Remove(back)
		delete(q.inIdx, k)
		q.h.Remove(n)
		q.untrack(k)
		q.addGhost(k)
		return k, true
	}
	back := q.h.Back()
	if back == nil {
		return "", false
	}
	k := back.Key()
	q.h.Remove(back)
	q.untrack(k)
	return k, true
}

func (q *twoQ) track(k string) {
	if _, ok := q.residentI[k]; ok {
		return
	}
	q.residentI[k] = len(q.resident)
	q.resident = append(q.resident, k)
}

func (q *twoQ) untrack(k string) bool {
	i, ok := q.residentI[k]
	if !ok {
		return false
	}
	last := len(q.resident) - 1
	if i != last {
		moved := q.resident[last]
		q.resident[i] = moved
		q.residentI[moved] = i
	}
	q.resident = q.resident[:last]
	delete(q.residentI, k)
	return true
}

var _ policy.Policy = twoQPolicy{}
