package script

import (
	"fmt"
	"strconv"

	"github.com/IvanBrykalov/rkv/internal/clock"
	"github.com/IvanBrykalov/rkv/internal/command"
	"github.com/IvanBrykalov/rkv/internal/keyspace"
)

// runCommand implements the callback side of spec.md §4.8 step 3: it takes
// one already-parsed Command and applies it against the script's overlay
// instead of a live WriteGuard, mirroring internal/executor's dispatch for
// the subset of commands that make sense as a single key-addressed,
// overlay-routable operation. PING/SELECT/DBSIZE/FLUSHDB/EVAL have no
// single target key (or, for FLUSHDB, would need every shard locked) and
// are rejected outright — not because the overlay couldn't represent them,
// but because they fall outside the "declared key, pre-locked shard"
// contract the sandbox enforces.
func runCommand(ov *overlay, src clock.Source, cmd *command.Command) (Value, error) {
	switch cmd.Kind {
	case command.Get:
		return callGet(ov, cmd)
	case command.Set:
		return callSet(ov, src, cmd)
	case command.Del:
		return callDel(ov, cmd)
	case command.Exists:
		return callExists(ov, cmd)
	case command.TTL:
		return callTTL(ov, src, cmd)
	case command.Expire, command.PExpire:
		return callExpire(ov, src, cmd)
	case command.LPush, command.RPush:
		return callListPush(ov, cmd)
	case command.LLen:
		return callLLen(ov, cmd)
	case command.LRange:
		return callLRange(ov, cmd)
	case command.HSet:
		return callHSet(ov, cmd)
	case command.HGet:
		return callHGet(ov, cmd)
	case command.HDel:
		return callHDel(ov, cmd)
	case command.HGetAll:
		return callHGetAll(ov, cmd)
	case command.SAdd:
		return callSAdd(ov, cmd)
	case command.SRem:
		return callSRem(ov, cmd)
	case command.SIsMember:
		return callSIsMember(ov, cmd)
	case command.SMembers:
		return callSMembers(ov, cmd)
	default:
		return nil, fmt.Errorf("command '%s' is not available inside a script", cmd.Name())
	}
}

func errLocked(key string) error {
	return fmt.Errorf("call touches key %q, which is not one of the script's declared keys", key)
}

func errWrong() error { return fmt.Errorf("WRONGTYPE Operation against a key holding the wrong kind of value") }

func scalarValue(e *keyspace.Entry) (Value, error) {
	switch e.Data.Kind {
	case keyspace.KindSimpleString:
		return string(e.Data.Str), nil
	case keyspace.KindSimpleInt:
		return e.Data.Int, nil
	default:
		return nil, errWrong()
	}
}

func callGet(ov *overlay, cmd *command.Command) (Value, error) {
	entry, present, locked := ov.get(cmd.Key)
	if !locked {
		return nil, errLocked(cmd.Key)
	}
	if !present {
		return nil, nil
	}
	return scalarValue(entry)
}

func callSet(ov *overlay, src clock.Source, cmd *command.Command) (Value, error) {
	_, present, locked := ov.get(cmd.Key)
	if !locked {
		return nil, errLocked(cmd.Key)
	}
	if cmd.NX && present {
		return nil, nil
	}
	if cmd.XX && !present {
		return nil, nil
	}
	var expiresAt *int64
	switch {
	case cmd.HasAbsAt:
		v := cmd.AbsAtMillis
		expiresAt = &v
	case cmd.HasTTLMillis:
		v := src.NowMillis() + cmd.TTLMillis
		expiresAt = &v
	}
	entry := keyspace.NewEntry(keyspace.NewScalarData(cmd.Fields[0]), expiresAt)
	if !ov.set(cmd.Key, entry) {
		return nil, errLocked(cmd.Key)
	}
	return OkValue{Msg: "OK"}, nil
}

func callDel(ov *overlay, cmd *command.Command) (Value, error) {
	var n int64
	for _, f := range cmd.Fields {
		existed, locked := ov.del(string(f))
		if !locked {
			return nil, errLocked(string(f))
		}
		if existed {
			n++
		}
	}
	return n, nil
}

func callExists(ov *overlay, cmd *command.Command) (Value, error) {
	var n int64
	for _, f := range cmd.Fields {
		_, present, locked := ov.get(string(f))
		if !locked {
			return nil, errLocked(string(f))
		}
		if present {
			n++
		}
	}
	return n, nil
}

func callTTL(ov *overlay, src clock.Source, cmd *command.Command) (Value, error) {
	entry, present, locked := ov.get(cmd.Key)
	if !locked {
		return nil, errLocked(cmd.Key)
	}
	if !present {
		return int64(-2), nil
	}
	if entry.ExpiresAt == nil {
		return int64(-1), nil
	}
	remaining := *entry.ExpiresAt - src.NowMillis()
	if remaining < 0 {
		return int64(-2), nil
	}
	return remaining / 1000, nil
}

func callExpire(ov *overlay, src clock.Source, cmd *command.Command) (Value, error) {
	entry, present, locked := ov.get(cmd.Key)
	if !locked {
		return nil, errLocked(cmd.Key)
	}
	if !present {
		return int64(0), nil
	}
	var absAt int64
	switch {
	case cmd.HasAbsAt:
		absAt = cmd.AbsAtMillis
	case cmd.Kind == command.Expire:
		absAt = src.NowMillis() + cmd.TTLMillis*1000
	default:
		absAt = src.NowMillis() + cmd.TTLMillis
	}
	next := *entry
	next.ExpiresAt = &absAt
	if !ov.set(cmd.Key, &next) {
		return nil, errLocked(cmd.Key)
	}
	return int64(1), nil
}

func callListPush(ov *overlay, cmd *command.Command) (Value, error) {
	cur, present, locked := ov.get(cmd.Key)
	if !locked {
		return nil, errLocked(cmd.Key)
	}
	var old []keyspace.Element
	var expiresAt *int64
	if present {
		if cur.Data.Kind != keyspace.KindList {
			return nil, errWrong()
		}
		old = cur.Data.List
		expiresAt = cur.ExpiresAt
	}
	list := make([]keyspace.Element, len(old), len(old)+len(cmd.Fields))
	copy(list, old)
	left := cmd.Kind == command.LPush
	for _, f := range cmd.Fields {
		el := keyspace.NewElement(f)
		if left {
			list = append([]keyspace.Element{el}, list...)
		} else {
			list = append(list, el)
		}
	}
	entry := keyspace.NewEntry(keyspace.Data{Kind: keyspace.KindList, List: list}, expiresAt)
	if !ov.set(cmd.Key, entry) {
		return nil, errLocked(cmd.Key)
	}
	return int64(len(list)), nil
}

func callLLen(ov *overlay, cmd *command.Command) (Value, error) {
	entry, present, locked := ov.get(cmd.Key)
	if !locked {
		return nil, errLocked(cmd.Key)
	}
	if !present {
		return int64(0), nil
	}
	if entry.Data.Kind != keyspace.KindList {
		return nil, errWrong()
	}
	return int64(len(entry.Data.List)), nil
}

func callLRange(ov *overlay, cmd *command.Command) (Value, error) {
	entry, present, locked := ov.get(cmd.Key)
	if !locked {
		return nil, errLocked(cmd.Key)
	}
	if !present {
		return []Value{}, nil
	}
	if entry.Data.Kind != keyspace.KindList {
		return nil, errWrong()
	}
	list := entry.Data.List
	start, stop := normalizeRange(cmd.Start, cmd.Stop, len(list))
	if start > stop {
		return []Value{}, nil
	}
	out := make([]Value, 0, stop-start+1)
	for i := start; i <= stop; i++ {
		out = append(out, string(list[i].Bytes()))
	}
	return out, nil
}

// normalizeRange mirrors internal/executor's LRANGE bound clamping exactly
// (redis-family negative-index convention: -1 is the last element).
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

func callHSet(ov *overlay, cmd *command.Command) (Value, error) {
	cur, present, locked := ov.get(cmd.Key)
	if !locked {
		return nil, errLocked(cmd.Key)
	}
	var expiresAt *int64
	old := map[string]keyspace.Element(nil)
	if present {
		if cur.Data.Kind != keyspace.KindHash {
			return nil, errWrong()
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
	entry := keyspace.NewEntry(keyspace.Data{Kind: keyspace.KindHash, Hash: hash}, expiresAt)
	if !ov.set(cmd.Key, entry) {
		return nil, errLocked(cmd.Key)
	}
	return added, nil
}

func callHGet(ov *overlay, cmd *command.Command) (Value, error) {
	entry, present, locked := ov.get(cmd.Key)
	if !locked {
		return nil, errLocked(cmd.Key)
	}
	if !present {
		return nil, nil
	}
	if entry.Data.Kind != keyspace.KindHash {
		return nil, errWrong()
	}
	v, ok := entry.Data.Hash[cmd.Field]
	if !ok {
		return nil, nil
	}
	return string(v.Bytes()), nil
}

func callHDel(ov *overlay, cmd *command.Command) (Value, error) {
	cur, present, locked := ov.get(cmd.Key)
	if !locked {
		return nil, errLocked(cmd.Key)
	}
	if !present {
		return int64(0), nil
	}
	if cur.Data.Kind != keyspace.KindHash {
		return nil, errWrong()
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
		if _, locked := ov.del(cmd.Key); !locked {
			return nil, errLocked(cmd.Key)
		}
		return removed, nil
	}
	entry := keyspace.NewEntry(keyspace.Data{Kind: keyspace.KindHash, Hash: hash}, cur.ExpiresAt)
	if !ov.set(cmd.Key, entry) {
		return nil, errLocked(cmd.Key)
	}
	return removed, nil
}

func callHGetAll(ov *overlay, cmd *command.Command) (Value, error) {
	entry, present, locked := ov.get(cmd.Key)
	if !locked {
		return nil, errLocked(cmd.Key)
	}
	if !present {
		return []Value{}, nil
	}
	if entry.Data.Kind != keyspace.KindHash {
		return nil, errWrong()
	}
	out := make([]Value, 0, len(entry.Data.Hash)*2)
	for k, v := range entry.Data.Hash {
		out = append(out, k, string(v.Bytes()))
	}
	return out, nil
}

func callSAdd(ov *overlay, cmd *command.Command) (Value, error) {
	cur, present, locked := ov.get(cmd.Key)
	if !locked {
		return nil, errLocked(cmd.Key)
	}
	var expiresAt *int64
	old := map[string]keyspace.Element(nil)
	if present {
		if cur.Data.Kind != keyspace.KindSet {
			return nil, errWrong()
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
	entry := keyspace.NewEntry(keyspace.Data{Kind: keyspace.KindSet, Set: set}, expiresAt)
	if !ov.set(cmd.Key, entry) {
		return nil, errLocked(cmd.Key)
	}
	return added, nil
}

func callSRem(ov *overlay, cmd *command.Command) (Value, error) {
	cur, present, locked := ov.get(cmd.Key)
	if !locked {
		return nil, errLocked(cmd.Key)
	}
	if !present {
		return int64(0), nil
	}
	if cur.Data.Kind != keyspace.KindSet {
		return nil, errWrong()
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
		if _, locked := ov.del(cmd.Key); !locked {
			return nil, errLocked(cmd.Key)
		}
		return removed, nil
	}
	entry := keyspace.NewEntry(keyspace.Data{Kind: keyspace.KindSet, Set: set}, cur.ExpiresAt)
	if !ov.set(cmd.Key, entry) {
		return nil, errLocked(cmd.Key)
	}
	return removed, nil
}

func callSIsMember(ov *overlay, cmd *command.Command) (Value, error) {
	entry, present, locked := ov.get(cmd.Key)
	if !locked {
		return nil, errLocked(cmd.Key)
	}
	if !present {
		return int64(0), nil
	}
	if entry.Data.Kind != keyspace.KindSet {
		return nil, errWrong()
	}
	member := string(keyspace.NewElement([]byte(cmd.Field)).Bytes())
	if _, ok := entry.Data.Set[member]; ok {
		return int64(1), nil
	}
	return int64(0), nil
}

func callSMembers(ov *overlay, cmd *command.Command) (Value, error) {
	entry, present, locked := ov.get(cmd.Key)
	if !locked {
		return nil, errLocked(cmd.Key)
	}
	if !present {
		return []Value{}, nil
	}
	if entry.Data.Kind != keyspace.KindSet {
		return nil, errWrong()
	}
	out := make([]Value, 0, len(entry.Data.Set))
	for _, v := range entry.Data.Set {
		out = append(out, string(v.Bytes()))
	}
	return out, nil
}

// valuesToArgs renders a call()'s evaluated Value arguments to the raw
// byte-vector form internal/command.Parse expects, the same canonicalization
// NewElement/NewScalarData apply to wire-received bulks.
func valuesToArgs(name string, args []Value) [][]byte {
	out := make([][]byte, 0, len(args)+1)
	out = append(out, []byte(name))
	for _, a := range args {
		out = append(out, valueToBytes(a))
	}
	return out
}

func valueToBytes(v Value) []byte {
	switch t := v.(type) {
	case string:
		return []byte(t)
	case int64:
		return []byte(strconv.FormatInt(t, 10))
	case nil:
		return nil
	default:
		return nil
	}
}
