package script

import "github.com/IvanBrykalov/rkv/internal/keyspace"

// overlayEntry is one pending write against a single key: either a
// replacement Entry or a tombstone, not yet applied to the underlying
// shard. Mirrors spec.md §4.8 step 3's "Update(Entry) | Tombstone" map
// value.
type overlayEntry struct {
	tombstone bool
	entry     *keyspace.Entry
}

// overlay is the per-script write-buffered view across every shard the
// sandbox pre-locked for one EVAL invocation. Reads check the overlay
// first and fall through to the underlying (already-locked) shard only on
// an overlay miss; writes land in the overlay and are applied to the real
// shards only on commit, so a script that errors partway through leaves
// the keyspace untouched.
type overlay struct {
	db     int
	guards map[int]keyspace.LockedWriteGuard // shard index -> held lock
	shardOf func(key string) (idx int, ok bool)

	pending     map[string]overlayEntry
	memoryDelta int64
}

func newOverlay(db int, guards map[int]keyspace.LockedWriteGuard, shardOf func(string) (int, bool)) *overlay {
	return &overlay{
		db:      db,
		guards:  guards,
		shardOf: shardOf,
		pending: make(map[string]overlayEntry),
	}
}

// get returns the current value of key as the script would observe it:
// the overlay's own pending write if any, otherwise the underlying shard's
// live entry. locked reports whether key is one of the script's declared
// keys (and so on a pre-locked shard); a false here is the "call touched
// an undeclared key" protocol error spec.md §4.8 requires the sandbox to
// refuse.
func (o *overlay) get(key string) (entry *keyspace.Entry, present bool, locked bool) {
	if p, ok := o.pending[key]; ok {
		if p.tombstone {
			return nil, false, true
		}
		return p.entry, true, true
	}
	idx, ok := o.shardOf(key)
	if !ok {
		return nil, false, false
	}
	g, ok := o.guards[idx]
	if !ok {
		return nil, false, false
	}
	e, ok := g.Peek(keyspace.Key(key))
	if !ok {
		return nil, false, true
	}
	return e, true, true
}

// set stages an insert/overwrite of key, tracking the signed memory delta
// relative to whatever the key previously held (overlay or underlying).
func (o *overlay) set(key string, entry *keyspace.Entry) bool {
	prev, hadPrev, locked := o.get(key)
	if !locked {
		return false
	}
	var prevSize int64
	if hadPrev {
		prevSize = prev.DataSize
	}
	o.memoryDelta += entry.DataSize - prevSize
	o.pending[key] = overlayEntry{entry: entry}
	return true
}

// del stages a removal of key. Returns whether the key existed beforehand
// (for commands like DEL/HDEL that report a removed count) and whether the
// key's shard was pre-locked at all.
func (o *overlay) del(key string) (existed, locked bool) {
	prev, hadPrev, locked := o.get(key)
	if !locked {
		return false, false
	}
	if hadPrev {
		o.memoryDelta -= prev.DataSize
	}
	o.pending[key] = overlayEntry{tombstone: true}
	return hadPrev, true
}

// committed describes one mutation the sandbox must replay against both
// the real shard and the AOF, once the overlay is known to have committed
// successfully.
type committed struct {
	key       string
	tombstone bool
	entry     *keyspace.Entry
}

// commit applies every pending overlay write to its underlying (held) shard
// guard and returns the materialized mutations (in map iteration order,
// which is unspecified), for the
// sandbox to translate into AOF records. Must only be called after the
// script has returned successfully; on script error the caller discards
// the overlay instead.
func (o *overlay) commit() []committed {
	out := make([]committed, 0, len(o.pending))
	for key, p := range o.pending {
		idx, _ := o.shardOf(key)
		g := o.guards[idx]
		if p.tombstone {
			g.Remove(keyspace.Key(key))
		} else {
			g.Insert(keyspace.Key(key), p.entry)
		}
		out = append(out, committed{key: key, tombstone: p.tombstone, entry: p.entry})
	}
	return out
}
