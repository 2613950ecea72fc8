// Package executor implements the command executor (spec.md §4.5): it
// parses nothing itself (internal/command already did that) and instead
// maps a validated Command onto keyspace operations, builds the reply, and
// — for successful writes — hands the command to an AOF appender.
//
// Grounded on the teacher's cache/cache.go, which is itself a thin
// dispatch layer over cache/shard.go; the same "look up the shard, do the
// one thing, return" shape is kept here, widened from two operations
// (Get/Set) to the full command table SPEC_FULL.md §6.2 names.
package executor

import (
	"strconv"

	"github.com/IvanBrykalov/rkv/internal/clock"
	"github.com/IvanBrykalov/rkv/internal/command"
	"github.com/IvanBrykalov/rkv/internal/keyspace"
)

// AOFAppender receives every successful write command, already rewritten
// to use absolute TTL deadlines (spec.md §4.6). Implemented by
// internal/aof.Writer; nil during AOF replay, where re-logging would
// duplicate the very records being replayed.
type AOFAppender interface {
	Append(db int, cmd *command.Command)
}

// ScriptRunner executes EVAL bodies inside the scripting sandbox (spec.md
// §4.8). Implemented by internal/script.Sandbox; left unset (nil) returns
// a fixed error reply for EVAL, which lets every other command in this
// package be exercised and tested well before the sandbox exists.
type ScriptRunner interface {
	Run(cc *ConnCtx, script string, keys []string, args [][]byte) (Reply, error)
}

// Executor is the single place every connection's command loop calls into.
// It is safe for concurrent use by many connections at once — all of its
// own state is immutable after construction; concurrency control lives in
// the keyspace's per-shard locks.
type Executor struct {
	ks     *keyspace.Keyspace
	clock  clock.Source
	aof    AOFAppender
	script ScriptRunner
}

// New constructs an Executor. aof may be nil (replay mode / AOF disabled).
func New(ks *keyspace.Keyspace, src clock.Source, aof AOFAppender) *Executor {
	return &Executor{ks: ks, clock: src, aof: aof}
}

// SetScriptRunner wires the scripting sandbox in after construction, since
// internal/script itself needs a reference to this Executor to run the
// `call(...)` redirections its scripts issue.
func (e *Executor) SetScriptRunner(r ScriptRunner) { e.script = r }

// Execute runs cmd against cc's selected database and returns the reply to
// send back. It never panics on a well-formed Command; malformed input is
// internal/command.Parse's job to reject before this is ever called.
func (e *Executor) Execute(cc *ConnCtx, cmd *command.Command) Reply {
	reply := e.dispatch(cc, cmd)
	if cmd.IsWrite() && e.aof != nil {
		if _, failed := reply.(ErrReply); !failed {
			e.aof.Append(cc.DB, cmd.Rewritten(e.clock.NowMillis()))
		}
	}
	return reply
}

func (e *Executor) dispatch(cc *ConnCtx, cmd *command.Command) Reply {
	switch cmd.Kind {
	case command.Ping:
		if len(cmd.Fields) == 1 {
			return bulkReply(cmd.Fields[0])
		}
		return simpleReply("PONG")

	case command.Select:
		if cmd.DBIndex < 0 || cmd.DBIndex >= keyspace.NumDatabases {
			return ErrReply("ERR DB index is out of range")
		}
		cc.DB = cmd.DBIndex
		return OK

	case command.DBSize:
		return intReply(e.ks.DBSize(cc.DB))

	case command.FlushDB:
		e.ks.FlushDB(cc.DB)
		return OK

	case command.Get:
		return e.execGet(cc, cmd)
	case command.Set:
		return e.execSet(cc, cmd)
	case command.Del:
		return e.execDel(cc, cmd)
	case command.Exists:
		return e.execExists(cc, cmd)
	case command.TTL:
		return e.execTTL(cc, cmd)
	case command.Expire, command.PExpire:
		return e.execExpire(cc, cmd)

	case command.LPush, command.RPush:
		return e.execListPush(cc, cmd)
	case command.LLen:
		return e.execLLen(cc, cmd)
	case command.LRange:
		return e.execLRange(cc, cmd)

	case command.HSet:
		return e.execHSet(cc, cmd)
	case command.HGet:
		return e.execHGet(cc, cmd)
	case command.HDel:
		return e.execHDel(cc, cmd)
	case command.HGetAll:
		return e.execHGetAll(cc, cmd)

	case command.SAdd:
		return e.execSAdd(cc, cmd)
	case command.SRem:
		return e.execSRem(cc, cmd)
	case command.SIsMember:
		return e.execSIsMember(cc, cmd)
	case command.SMembers:
		return e.execSMembers(cc, cmd)

	case command.Eval:
		if e.script == nil {
			return ErrReply("ERR scripting is not enabled")
		}
		r, err := e.script.Run(cc, cmd.Script, cmd.Keys, cmd.Args)
		if err != nil {
			return ErrReply("ERR " + err.Error())
		}
		return r

	default:
		return ErrReply("ERR unknown command")
	}
}

func (e *Executor) execGet(cc *ConnCtx, cmd *command.Command) Reply {
	guard := e.ks.LockRead(cc.DB, keyspace.Key(cmd.Key))
	entry, ok := guard.Get(keyspace.Key(cmd.Key))
	if !ok {
		return bulkReply(nil)
	}
	b, ok := scalarBytes(entry)
	if !ok {
		return errWrongType()
	}
	return bulkReply(b)
}

func (e *Executor) execSet(cc *ConnCtx, cmd *command.Command) Reply {
	expiresAt := e.resolveExpiry(cmd)
	entry := keyspace.NewEntry(keyspace.NewScalarData(cmd.Fields[0]), expiresAt)
	guard := e.ks.LockWrite(cc.DB, keyspace.Key(cmd.Key))
	if cmd.NX || cmd.XX {
		if !guard.InsertConditional(keyspace.Key(cmd.Key), entry, cmd.NX, cmd.XX) {
			return bulkReply(nil)
		}
		return OK
	}
	guard.Insert(keyspace.Key(cmd.Key), entry)
	return OK
}

// resolveExpiry turns a command's TTL option (already validated mutually
// exclusive by internal/command) into an absolute deadline, or nil.
func (e *Executor) resolveExpiry(cmd *command.Command) *int64 {
	switch {
	case cmd.HasAbsAt:
		v := cmd.AbsAtMillis
		return &v
	case cmd.HasTTLMillis:
		v := e.clock.NowMillis() + cmd.TTLMillis
		return &v
	default:
		return nil
	}
}

func (e *Executor) execDel(cc *ConnCtx, cmd *command.Command) Reply {
	var n int64
	for _, f := range cmd.Fields {
		if e.ks.LockWrite(cc.DB, keyspace.Key(f)).Remove(keyspace.Key(f)) {
			n++
		}
	}
	return intReply(n)
}

func (e *Executor) execExists(cc *ConnCtx, cmd *command.Command) Reply {
	var n int64
	for _, f := range cmd.Fields {
		if _, ok := e.ks.LockRead(cc.DB, keyspace.Key(f)).Peek(keyspace.Key(f)); ok {
			n++
		}
	}
	return intReply(n)
}

func (e *Executor) execTTL(cc *ConnCtx, cmd *command.Command) Reply {
	entry, ok := e.ks.LockRead(cc.DB, keyspace.Key(cmd.Key)).Peek(keyspace.Key(cmd.Key))
	if !ok {
		return intReply(-2)
	}
	if entry.ExpiresAt == nil {
		return intReply(-1)
	}
	remaining := *entry.ExpiresAt - e.clock.NowMillis()
	if remaining < 0 {
		return intReply(-2)
	}
	return intReply(remaining / 1000)
}

func (e *Executor) execExpire(cc *ConnCtx, cmd *command.Command) Reply {
	var absAt int64
	switch {
	case cmd.HasAbsAt:
		// PEXPIREAT, as replayed from the AOF or a script commit: already an
		// absolute deadline, nothing left to compute.
		absAt = cmd.AbsAtMillis
	case cmd.Kind == command.Expire:
		absAt = e.clock.NowMillis() + cmd.TTLMillis*1000
	default:
		absAt = e.clock.NowMillis() + cmd.TTLMillis
	}
	ok := e.ks.LockWrite(cc.DB, keyspace.Key(cmd.Key)).SetExpiry(keyspace.Key(cmd.Key), absAt)
	if !ok {
		return intReply(0)
	}
	return intReply(1)
}

// scalarBytes renders a SimpleString/SimpleInt entry to its wire bytes, or
// reports false for any collection-shaped entry.
func scalarBytes(e *keyspace.Entry) ([]byte, bool) {
	switch e.Data.Kind {
	case keyspace.KindSimpleString:
		return e.Data.Str, true
	case keyspace.KindSimpleInt:
		return []byte(strconv.FormatInt(e.Data.Int, 10)), true
	default:
		return nil, false
	}
}
