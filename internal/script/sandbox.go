// Package script's Sandbox implements spec.md §4.8: EVAL support pre-locks
// every shard a script's declared keys touch, in globally sorted order,
// runs the script against a write-buffered overlay on a dedicated worker,
// and — on success — commits the overlay and logs each mutated key as
// materialized AOF records (see emitAOF: a DEL, then for a key that still
// exists a reconstruction command and, if it has a TTL, a PEXPIREAT; a
// mutation is not logged as a single record). Grounded on internal/executor's dispatch shape
// (internal/script/commands.go mirrors internal/executor/collections.go
// operation-by-operation) and on the teacher's cache/cache.go for the
// "look up shard(s), do the thing, return" control flow, widened here to
// hold several shard locks at once instead of one.
package script

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/IvanBrykalov/rkv/internal/clock"
	"github.com/IvanBrykalov/rkv/internal/command"
	"github.com/IvanBrykalov/rkv/internal/executor"
	"github.com/IvanBrykalov/rkv/internal/keyspace"
)

// DefaultWorkers is the scripting worker pool size spec.md §4.8 names as
// its default ("a pool of workers (default 8)").
const DefaultWorkers = 8

// Sandbox implements executor.ScriptRunner.
type Sandbox struct {
	ks    *keyspace.Keyspace
	clock clock.Source
	aof   executor.AOFAppender
	pool  *workerPool
}

// New constructs a Sandbox with the given worker-pool size (0 selects
// DefaultWorkers). aof may be nil (AOF disabled / replay mode), in which
// case committed mutations are applied to the keyspace but nothing is
// logged — matching internal/executor.Execute's own nil-AOF handling.
func New(ks *keyspace.Keyspace, src clock.Source, aof executor.AOFAppender, workers int) *Sandbox {
	if workers < 1 {
		workers = DefaultWorkers
	}
	return &Sandbox{ks: ks, clock: src, aof: aof, pool: newWorkerPool(workers)}
}

var _ executor.ScriptRunner = (*Sandbox)(nil)

// Run executes script against cc's selected database with the given
// declared keys and extra arguments, per spec.md §4.8 steps 1-6.
func (sb *Sandbox) Run(cc *executor.ConnCtx, script string, keys []string, args [][]byte) (executor.Reply, error) {
	db := cc.DB

	// Step 1: distinct shard indices for the declared keys, sorted ascending.
	shardSet := make(map[int]struct{}, len(keys))
	declared := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		shardSet[sb.ks.ShardIndex(keyspace.Key(k))] = struct{}{}
		declared[k] = struct{}{}
	}
	indices := make([]int, 0, len(shardSet))
	for idx := range shardSet {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	var reply executor.Reply
	var runErr error

	sb.pool.submit(func() {
		// Step 2: acquire write guards in sorted order (deadlock avoidance).
		guards := make(map[int]keyspace.LockedWriteGuard, len(indices))
		for _, idx := range indices {
			guards[idx] = sb.ks.LockWriteHeld(db, idx)
		}
		defer func() {
			for _, g := range guards {
				g.Unlock()
			}
		}()

		shardOf := func(key string) (int, bool) {
			idx := sb.ks.ShardIndex(keyspace.Key(key))
			if _, ok := declared[key]; !ok {
				return idx, false
			}
			_, ok := guards[idx]
			return idx, ok
		}
		ov := newOverlay(db, guards, shardOf)

		e := &env{
			keys: keys,
			argv: args,
			call: func(callArgs []Value) (Value, error) {
				if len(callArgs) == 0 {
					return nil, fmt.Errorf("call requires a command name")
				}
				name, ok := callArgs[0].(string)
				if !ok {
					return nil, fmt.Errorf("call's first argument must be a command name")
				}
				parsed, err := command.Parse(valuesToArgs(name, callArgs[1:]))
				if err != nil {
					return nil, err
				}
				return runCommand(ov, sb.clock, parsed)
			},
		}

		result, err := run(script, e)
		if err != nil {
			runErr = err
			return
		}

		// Step 5: commit on success, emit the AOF records for each mutated key.
		for _, c := range ov.commit() {
			sb.emitAOF(db, c)
		}

		// Step 6: map the return value to a reply frame.
		reply = toReply(result)
	})

	if runErr != nil {
		return nil, runErr
	}
	return reply, nil
}

// emitAOF renders one committed overlay mutation into the AOF records
// needed to reproduce it on replay. A tombstone is a single DEL. An insert
// is a leading DEL (clearing whatever the key held before, since the
// overlay's writes always replace a key's value wholesale rather than
// patching it) followed by the type-appropriate reconstruction command,
// and — if the committed entry carries a TTL — a trailing PEXPIREAT.
func (sb *Sandbox) emitAOF(db int, c committed) {
	if sb.aof == nil {
		return
	}
	if c.tombstone {
		sb.aof.Append(db, &command.Command{Kind: command.Del, Fields: [][]byte{[]byte(c.key)}})
		return
	}
	sb.aof.Append(db, &command.Command{Kind: command.Del, Fields: [][]byte{[]byte(c.key)}})
	sb.aof.Append(db, reconstructCommand(c.key, c.entry))
	if c.entry.ExpiresAt != nil {
		sb.aof.Append(db, &command.Command{
			Kind: command.PExpire, Key: c.key,
			TTLMillis: *c.entry.ExpiresAt, HasAbsAt: true, AbsAtMillis: *c.entry.ExpiresAt,
		})
	}
}

// reconstructCommand builds the single command that, replayed against an
// empty key, reproduces entry's data exactly.
func reconstructCommand(key string, entry *keyspace.Entry) *command.Command {
	switch entry.Data.Kind {
	case keyspace.KindSimpleString:
		return &command.Command{Kind: command.Set, Key: key, Fields: [][]byte{entry.Data.Str}}
	case keyspace.KindSimpleInt:
		return &command.Command{Kind: command.Set, Key: key, Fields: [][]byte{[]byte(strconv.FormatInt(entry.Data.Int, 10))}}
	case keyspace.KindList:
		fields := make([][]byte, len(entry.Data.List))
		for i, el := range entry.Data.List {
			fields[i] = el.Bytes()
		}
		return &command.Command{Kind: command.RPush, Key: key, Fields: fields}
	case keyspace.KindHash:
		fields := make([][]byte, 0, len(entry.Data.Hash)*2)
		for k, v := range entry.Data.Hash {
			fields = append(fields, []byte(k), v.Bytes())
		}
		return &command.Command{Kind: command.HSet, Key: key, Fields: fields}
	case keyspace.KindSet:
		fields := make([][]byte, 0, len(entry.Data.Set))
		for _, v := range entry.Data.Set {
			fields = append(fields, v.Bytes())
		}
		return &command.Command{Kind: command.SAdd, Key: key, Fields: fields}
	default:
		return &command.Command{Kind: command.Del, Fields: [][]byte{[]byte(key)}}
	}
}
