package script_test

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
	"github.com/IvanBrykalov/rkv/internal/script"
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

func newRig(t *testing.T) (*executor.Executor, *recordingAppender) {
	t.Helper()
	clk := &fakeClock{ms: 1000}
	ks := keyspace.New(4, lru.New(), clk)
	aof := &recordingAppender{}
	ex := executor.New(ks, clk, aof)
	sb := script.New(ks, clk, aof, 2)
	ex.SetScriptRunner(sb)
	return ex, aof
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

func render(t *testing.T, r executor.Reply) string {
	t.Helper()
	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)
	w := resp.NewWriter(bw)
	require.NoError(t, r.WriteTo(w))
	require.NoError(t, w.Flush())
	return buf.String()
}

func TestEvalSetThenGetThroughCall(t *testing.T) {
	ex, aof := newRig(t)
	cc := executor.NewConnCtx("test")

	r := ex.Execute(cc, parse(t, "EVAL", "call('SET', KEYS[1], ARGV[1]); return call('GET', KEYS[1])", "1", "k", "v"))
	require.Equal(t, "$1\r\nv\r\n", render(t, r))

	// One committed mutation -> DEL + SET AOF pair.
	require.Len(t, aof.calls, 2)
	require.Equal(t, command.Del, aof.calls[0].cmd.Kind)
	require.Equal(t, command.Set, aof.calls[1].cmd.Kind)

	got := ex.Execute(cc, parse(t, "GET", "k"))
	require.Equal(t, "$1\r\nv\r\n", render(t, got))
}

func TestEvalReturnsOkTable(t *testing.T) {
	ex, _ := newRig(t)
	cc := executor.NewConnCtx("test")
	r := ex.Execute(cc, parse(t, "EVAL", "call('SET', KEYS[1], ARGV[1]); return {ok='done'}", "1", "k", "v"))
	require.Equal(t, "+done\r\n", render(t, r))
}

func TestEvalScriptErrorLeavesKeyspaceUntouched(t *testing.T) {
	ex, aof := newRig(t)
	cc := executor.NewConnCtx("test")

	ex.Execute(cc, parse(t, "SET", "k", "original"))
	aof.calls = nil

	r := ex.Execute(cc, parse(t, "EVAL",
		"call('SET', KEYS[1], 'clobbered'); return call('LPUSH', KEYS[1], 'x')", "1", "k"))
	_, isErr := r.(executor.ErrReply)
	require.True(t, isErr)
	require.Empty(t, aof.calls)

	got := ex.Execute(cc, parse(t, "GET", "k"))
	require.Equal(t, "$8\r\noriginal\r\n", render(t, got))
}

func TestEvalRejectsCallToUndeclaredKey(t *testing.T) {
	ex, _ := newRig(t)
	cc := executor.NewConnCtx("test")
	r := ex.Execute(cc, parse(t, "EVAL", "return call('GET', 'other-key')", "1", "k"))
	_, isErr := r.(executor.ErrReply)
	require.True(t, isErr)
}

func TestEvalCrossShardKeysBothCommit(t *testing.T) {
	ex, _ := newRig(t)
	cc := executor.NewConnCtx("test")
	// With 4 shards, distinct keys very likely land on different shards;
	// either way both writes must be visible afterward.
	r := ex.Execute(cc, parse(t, "EVAL",
		"call('SET', KEYS[1], ARGV[1]); call('SET', KEYS[2], ARGV[2]); return 'ok'",
		"2", "alpha", "beta", "1", "2"))
	require.Equal(t, "$2\r\nok\r\n", render(t, r))

	require.Equal(t, "$1\r\n1\r\n", render(t, ex.Execute(cc, parse(t, "GET", "alpha"))))
	require.Equal(t, "$1\r\n2\r\n", render(t, ex.Execute(cc, parse(t, "GET", "beta"))))
}

func TestEvalIntegerReturn(t *testing.T) {
	ex, _ := newRig(t)
	cc := executor.NewConnCtx("test")
	r := ex.Execute(cc, parse(t, "EVAL", "return call('SADD', KEYS[1], ARGV[1], ARGV[2])", "1", "s", "a", "b"))
	require.Equal(t, ":2\r\n", render(t, r))
}
