package executor

import (
	"github.com/IvanBrykalov/rkv/internal/command"
	"github.com/IvanBrykalov/rkv/internal/keyspace"
)

// Every mutating command in this file goes through Shard.Mutate so the
// read-modify-write is atomic under a single lock acquisition, and always
// builds a fresh List/Hash/Set backing store rather than appending or
// inserting into the previous one in place — entries are treated as
// immutable snapshots elsewhere (Peek/Get hand out *Entry without copying),
// so mutating shared backing storage in place would corrupt a concurrent
// reader holding an older snapshot.

func (e *Executor) execListPush(cc *ConnCtx, cmd *command.Command) Reply {
	key := keyspace.Key(cmd.Key)
	left := cmd.Kind == command.LPush

	result := e.ks.LockWrite(cc.DB, key).Mutate(key, func(cur *keyspace.Entry) (*keyspace.Entry, any, bool) {
		var old []keyspace.Element
		var expiresAt *int64
		if cur != nil {
			if cur.Data.Kind != keyspace.KindList {
				return nil, errWrongType(), false
			}
			old = cur.Data.List
			expiresAt = cur.ExpiresAt
		}
		list := make([]keyspace.Element, len(old), len(old)+len(cmd.Fields))
		copy(list, old)
		for _, f := range cmd.Fields {
			el := keyspace.NewElement(f)
			if left {
				list = append([]keyspace.Element{el}, list...)
			} else {
				list = append(list, el)
			}
		}
		next := keyspace.NewEntry(keyspace.Data{Kind: keyspace.KindList, List: list}, expiresAt)
		return next, intReply(len(list)), true
	})
	return result.(Reply)
}

func (e *Executor) execLLen(cc *ConnCtx, cmd *command.Command) Reply {
	entry, ok := e.ks.LockRead(cc.DB, keyspace.Key(cmd.Key)).Peek(keyspace.Key(cmd.Key))
	if !ok {
		return intReply(0)
	}
	if entry.Data.Kind != keyspace.KindList {
		return errWrongType()
	}
	return intReply(len(entry.Data.List))
}

func (e *Executor) execLRange(cc *ConnCtx, cmd *command.Command) Reply {
	entry, ok := e.ks.LockRead(cc.DB, keyspace.Key(cmd.Key)).Peek(keyspace.Key(cmd.Key))
	if !ok {
		return arrayReply(nil)
	}
	if entry.Data.Kind != keyspace.KindList {
		return errWrongType()
	}
	list := entry.Data.List
	start, stop := normalizeRange(cmd.Start, cmd.Stop, len(list))
	if start > stop {
		return arrayReply(nil)
	}
	out := make([][]byte, 0, stop-start+1)
	for i := start; i <= stop; i++ {
		out = append(out, list[i].Bytes())
	}
	return arrayReply(out)
}

// normalizeRange converts possibly-negative, possibly-out-of-bounds
// start/stop indices (redis-family LRANGE convention: -1 is the last
// element) into clamped, in-bounds inclusive bounds. Returns start > stop
// if the requested range is empty.
func normalizeRange(start, stop int64, n int) (int, int) {
	if n == 0 {
		return 0, -1
	}
	s, e := start, stop
	if s < 0 {
		s += int64(n)
	}
	if e < 0 {
		e += int64(n)
	}
	if s < 0 {
		s = 0
	}
	if e >= int64(n) {
		e = int64(n) - 1
	}
	if s > e {
		return 0, -1
	}
	return int(s), int(e)
}

func (e *Executor) execHSet(cc *ConnCtx, cmd *command.Command) Reply {
	key := keyspace.Key(cmd.Key)
	result := e.ks.LockWrite(cc.DB, key).Mutate(key, func(cur *keyspace.Entry) (*keyspace.Entry, any, bool) {
		var expiresAt *int64
		old := map[string]keyspace.Element(nil)
		if cur != nil {
			if cur.Data.Kind != keyspace.KindHash {
				return nil, errWrongType(), false
			}
			old = cur.Data.Hash
			expiresAt = cur.ExpiresAt
		}
		hash := make(map[string]keyspace.Element, len(old)+len(cmd.Fields)/2)
		for k, v := range old {
			hash[k] = v
		}
		var added int64
		for i := 0; i+1 < len(cmd.Fields); i += 2 {
			field := string(cmd.Fields[i])
			if _, exists := hash[field]; !exists {
				added++
			}
			hash[field] = keyspace.NewElement(cmd.Fields[i+1])
		}
		next := keyspace.NewEntry(keyspace.Data{Kind: keyspace.KindHash, Hash: hash}, expiresAt)
		return next, intReply(added), true
	})
	return result.(Reply)
}

func (e *Executor) execHGet(cc *ConnCtx, cmd *command.Command) Reply {
	entry, ok := e.ks.LockRead(cc.DB, keyspace.Key(cmd.Key)).Peek(keyspace.Key(cmd.Key))
	if !ok {
		return bulkReply(nil)
	}
	if entry.Data.Kind != keyspace.KindHash {
		return errWrongType()
	}
	v, ok := entry.Data.Hash[cmd.Field]
	if !ok {
		return bulkReply(nil)
	}
	return bulkReply(v.Bytes())
}

func (e *Executor) execHDel(cc *ConnCtx, cmd *command.Command) Reply {
	key := keyspace.Key(cmd.Key)
	result := e.ks.LockWrite(cc.DB, key).Mutate(key, func(cur *keyspace.Entry) (*keyspace.Entry, any, bool) {
		if cur == nil {
			return nil, intReply(0), false
		}
		if cur.Data.Kind != keyspace.KindHash {
			return nil, errWrongType(), false
		}
		hash := make(map[string]keyspace.Element, len(cur.Data.Hash))
		for k, v := range cur.Data.Hash {
			hash[k] = v
		}
		var removed int64
		for _, f := range cmd.Fields {
			field := string(f)
			if _, ok := hash[field]; ok {
				delete(hash, field)
				removed++
			}
		}
		if len(hash) == 0 {
			return nil, intReply(removed), true
		}
		next := keyspace.NewEntry(keyspace.Data{Kind: keyspace.KindHash, Hash: hash}, cur.ExpiresAt)
		return next, intReply(removed), true
	})
	return result.(Reply)
}

func (e *Executor) execHGetAll(cc *ConnCtx, cmd *command.Command) Reply {
	entry, ok := e.ks.LockRead(cc.DB, keyspace.Key(cmd.Key)).Peek(keyspace.Key(cmd.Key))
	if !ok {
		return arrayReply(nil)
	}
	if entry.Data.Kind != keyspace.KindHash {
		return errWrongType()
	}
	out := make([][]byte, 0, len(entry.Data.Hash)*2)
	for k, v := range entry.Data.Hash {
		out = append(out, []byte(k), v.Bytes())
	}
	return arrayReply(out)
}

func (e *Executor) execSAdd(cc *ConnCtx, cmd *command.Command) Reply {
	key := keyspace.Key(cmd.Key)
	result := e.ks.LockWrite(cc.DB, key).Mutate(key, func(cur *keyspace.Entry) (*keyspace.Entry, any, bool) {
		var expiresAt *int64
		old := map[string]keyspace.Element(nil)
		if cur != nil {
			if cur.Data.Kind != keyspace.KindSet {
				return nil, errWrongType(), false
			}
			old = cur.Data.Set
			expiresAt = cur.ExpiresAt
		}
		set := make(map[string]keyspace.Element, len(old)+len(cmd.Fields))
		for k, v := range old {
			set[k] = v
		}
		var added int64
		for _, f := range cmd.Fields {
			el := keyspace.NewElement(f)
			member := string(el.Bytes())
			if _, exists := set[member]; !exists {
				added++
			}
			set[member] = el
		}
		next := keyspace.NewEntry(keyspace.Data{Kind: keyspace.KindSet, Set: set}, expiresAt)
		return next, intReply(added), true
	})
	return result.(Reply)
}

func (e *Executor) execSRem(cc *ConnCtx, cmd *command.Command) Reply {
	key := keyspace.Key(cmd.Key)
	result := e.ks.LockWrite(cc.DB, key).Mutate(key, func(cur *keyspace.Entry) (*keyspace.Entry, any, bool) {
		if cur == nil {
			return nil, intReply(0), false
		}
		if cur.Data.Kind != keyspace.KindSet {
			return nil, errWrongType(), false
		}
		set := make(map[string]keyspace.Element, len(cur.Data.Set))
		for k, v := range cur.Data.Set {
			set[k] = v
		}
		var removed int64
		for _, f := range cmd.Fields {
			member := string(keyspace.NewElement(f).Bytes())
			if _, ok := set[member]; ok {
				delete(set, member)
				removed++
			}
		}
		if len(set) == 0 {
			return nil, intReply(removed), true
		}
		next := keyspace.NewEntry(keyspace.Data{Kind: keyspace.KindSet, Set: set}, cur.ExpiresAt)
		return next, intReply(removed), true
	})
	return result.(Reply)
}

func (e *Executor) execSIsMember(cc *ConnCtx, cmd *command.Command) Reply {
	entry, ok := e.ks.LockRead(cc.DB, keyspace.Key(cmd.Key)).Peek(keyspace.Key(cmd.Key))
	if !ok {
		return intReply(0)
	}
	if entry.Data.Kind != keyspace.KindSet {
		return errWrongType()
	}
	member := string(keyspace.NewElement([]byte(cmd.Field)).Bytes())
	if _, ok := entry.Data.Set[member]; ok {
		return intReply(1)
	}
	return intReply(0)
}

func (e *Executor) execSMembers(cc *ConnCtx, cmd *command.Command) Reply {
	entry, ok := e.ks.LockRead(cc.DB, keyspace.Key(cmd.Key)).Peek(keyspace.Key(cmd.Key))
	if !ok {
		return arrayReply(nil)
	}
	if entry.Data.Kind != keyspace.KindSet {
		return errWrongType()
	}
	out := make([][]byte, 0, len(entry.Data.Set))
	for _, v := range entry.Data.Set {
		out = append(out, v.Bytes())
	}
	return arrayReply(out)
}
