package executor_test

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/rkv/internal/command"
	"github.com/IvanBrykalov/rkv/internal/executor"
	"github.com/IvanBrykalov/rkv/internal/keyspace"
	"github.com/IvanBrykalov/rkv/internal/policy/lru"
	"github.com/IvanBrykalov/rkv/internal/resp"
)

type fakeClock struct{ ms int64 }

func (c *fakeClock) NowMillis() int64 { return c.ms }

type recordingAppender struct{ calls []recordedCall }

type recordedCall struct {
	db  int
	cmd *command.Command
}

func (a *recordingAppender) Append(db int, cmd *command.Command) {
	a.calls = append(a.calls, recordedCall{db: db, cmd: cmd})
}

func newExecutor(t *testing.T) (*executor.Executor, *fakeClock, *recordingAppender) {
	t.Helper()
	clk := &fakeClock{ms: 1000}
	ks := keyspace.New(4, lru.New(), clk)
	aof := &recordingAppender{}
	return executor.New(ks, clk, aof), clk, aof
}

func parse(t *testing.T, parts ...string) *command.Command {
	t.Helper()
	args := make([][]byte, len(parts))
	for i, p := range parts {
		args[i] = []byte(p)
	}
	c, err := command.Parse(args)
	require.NoError(t, err)
	return c
}

// render encodes a reply to its raw RESP wire bytes, for assertions.
func render(t *testing.T, r executor.Reply) string {
	t.Helper()
	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)
	w := resp.NewWriter(bw)
	require.NoError(t, r.WriteTo(w))
	require.NoError(t, w.Flush())
	return buf.String()
}

func TestSetThenGet(t *testing.T) {
	ex, _, aof := newExecutor(t)
	cc := executor.NewConnCtx("test")

	r := ex.Execute(cc, parse(t, "SET", "k", "v"))
	require.Equal(t, "+OK\r\n", render(t, r))
	require.Len(t, aof.calls, 1)

	r = ex.Execute(cc, parse(t, "GET", "k"))
	require.Equal(t, "$1\r\nv\r\n", render(t, r))
}

func TestGetMissingKey(t *testing.T) {
	ex, _, _ := newExecutor(t)
	cc := executor.NewConnCtx("test")
	r := ex.Execute(cc, parse(t, "GET", "missing"))
	require.Equal(t, "$-1\r\n", render(t, r))
}

func TestSetNXRejectsExisting(t *testing.T) {
	ex, _, _ := newExecutor(t)
	cc := executor.NewConnCtx("test")
	require.Equal(t, "+OK\r\n", render(t, ex.Execute(cc, parse(t, "SET", "k", "v1"))))
	r := ex.Execute(cc, parse(t, "SET", "k", "v2", "NX"))
	require.Equal(t, "$-1\r\n", render(t, r))

	got := ex.Execute(cc, parse(t, "GET", "k"))
	require.Equal(t, "$2\r\nv1\r\n", render(t, got))
}

func TestSetXXRequiresExisting(t *testing.T) {
	ex, _, _ := newExecutor(t)
	cc := executor.NewConnCtx("test")
	r := ex.Execute(cc, parse(t, "SET", "k", "v", "XX"))
	require.Equal(t, "$-1\r\n", render(t, r))
}

func TestExpireAndTTL(t *testing.T) {
	ex, clk, _ := newExecutor(t)
	cc := executor.NewConnCtx("test")
	ex.Execute(cc, parse(t, "SET", "k", "v"))
	ex.Execute(cc, parse(t, "EXPIRE", "k", "10"))

	r := ex.Execute(cc, parse(t, "TTL", "k"))
	require.Equal(t, ":10\r\n", render(t, r))

	clk.ms += 11_000
	r = ex.Execute(cc, parse(t, "GET", "k"))
	require.Equal(t, "$-1\r\n", render(t, r))
}

func TestDelAndExists(t *testing.T) {
	ex, _, _ := newExecutor(t)
	cc := executor.NewConnCtx("test")
	ex.Execute(cc, parse(t, "SET", "k", "v"))

	r := ex.Execute(cc, parse(t, "DEL", "k", "missing"))
	require.Equal(t, ":1\r\n", render(t, r))

	r = ex.Execute(cc, parse(t, "EXISTS", "k"))
	require.Equal(t, ":0\r\n", render(t, r))
}

func TestListPushAndRange(t *testing.T) {
	ex, _, _ := newExecutor(t)
	cc := executor.NewConnCtx("test")
	ex.Execute(cc, parse(t, "RPUSH", "l", "a", "b", "c"))
	ex.Execute(cc, parse(t, "LPUSH", "l", "z"))

	r := ex.Execute(cc, parse(t, "LRANGE", "l", "0", "-1"))
	require.Equal(t, "*4\r\n$1\r\nz\r\n$1\r\na\r\n$1\r\nb\r\n$1\r\nc\r\n", render(t, r))

	r = ex.Execute(cc, parse(t, "LLEN", "l"))
	require.Equal(t, ":4\r\n", render(t, r))
}

func TestListPushWrongType(t *testing.T) {
	ex, _, _ := newExecutor(t)
	cc := executor.NewConnCtx("test")
	ex.Execute(cc, parse(t, "SET", "k", "v"))
	r := ex.Execute(cc, parse(t, "LPUSH", "k", "x"))
	_, isErr := r.(executor.ErrReply)
	require.True(t, isErr)
}

func TestHashRoundTrip(t *testing.T) {
	ex, _, _ := newExecutor(t)
	cc := executor.NewConnCtx("test")
	ex.Execute(cc, parse(t, "HSET", "h", "f1", "v1", "f2", "v2"))

	r := ex.Execute(cc, parse(t, "HGET", "h", "f1"))
	require.Equal(t, "$2\r\nv1\r\n", render(t, r))

	r = ex.Execute(cc, parse(t, "HDEL", "h", "f1"))
	require.Equal(t, ":1\r\n", render(t, r))

	r = ex.Execute(cc, parse(t, "HGET", "h", "f1"))
	require.Equal(t, "$-1\r\n", render(t, r))
}

func TestSetMembershipRoundTrip(t *testing.T) {
	ex, _, _ := newExecutor(t)
	cc := executor.NewConnCtx("test")
	ex.Execute(cc, parse(t, "SADD", "s", "a", "b"))

	r := ex.Execute(cc, parse(t, "SISMEMBER", "s", "a"))
	require.Equal(t, ":1\r\n", render(t, r))

	r = ex.Execute(cc, parse(t, "SREM", "s", "a"))
	require.Equal(t, ":1\r\n", render(t, r))

	r = ex.Execute(cc, parse(t, "SISMEMBER", "s", "a"))
	require.Equal(t, ":0\r\n", render(t, r))
}

func TestSelectOutOfRange(t *testing.T) {
	ex, _, _ := newExecutor(t)
	cc := executor.NewConnCtx("test")
	r := ex.Execute(cc, parse(t, "SELECT", "99"))
	_, isErr := r.(executor.ErrReply)
	require.True(t, isErr)
}

func TestSelectIsolatesKeyspace(t *testing.T) {
	ex, _, _ := newExecutor(t)
	cc := executor.NewConnCtx("test")
	ex.Execute(cc, parse(t, "SET", "k", "db0"))
	ex.Execute(cc, parse(t, "SELECT", "1"))
	r := ex.Execute(cc, parse(t, "GET", "k"))
	require.Equal(t, "$-1\r\n", render(t, r))
}

func TestFlushDB(t *testing.T) {
	ex, _, _ := newExecutor(t)
	cc := executor.NewConnCtx("test")
	ex.Execute(cc, parse(t, "SET", "k", "v"))
	r := ex.Execute(cc, parse(t, "FLUSHDB"))
	require.Equal(t, "+OK\r\n", render(t, r))

	r = ex.Execute(cc, parse(t, "EXISTS", "k"))
	require.Equal(t, ":0\r\n", render(t, r))
}

func TestAOFReceivesAbsoluteTTL(t *testing.T) {
	ex, clk, aof := newExecutor(t)
	clk.ms = 5000
	cc := executor.NewConnCtx("test")
	ex.Execute(cc, parse(t, "SET", "k", "v", "EX", "10"))

	require.Len(t, aof.calls, 1)
	logged := aof.calls[0].cmd
	require.False(t, logged.HasTTLMillis)
	require.True(t, logged.HasAbsAt)
	require.Equal(t, int64(15000), logged.AbsAtMillis)
}
