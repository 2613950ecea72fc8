package command_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/rkv/internal/command"
)

func b(ss ...string) [][]byte {
	out := make([][]byte, len(ss))
	for i, s := range ss {
		out[i] = []byte(s)
	}
	return out
}

func TestParseSetWithEX(t *testing.T) {
	c, err := command.Parse(b("SET", "k", "v", "EX", "10"))
	require.NoError(t, err)
	require.Equal(t, command.Set, c.Kind)
	require.True(t, c.HasTTLMillis)
	require.Equal(t, int64(10000), c.TTLMillis)
}

func TestParseSetNXAndXXConflict(t *testing.T) {
	_, err := command.Parse(b("SET", "k", "v", "NX", "XX"))
	require.Error(t, err)
}

func TestParseSetEXAndPXConflict(t *testing.T) {
	_, err := command.Parse(b("SET", "k", "v", "EX", "1", "PX", "100"))
	require.Error(t, err)
}

func TestRewrittenConvertsRelativeToAbsolute(t *testing.T) {
	c, err := command.Parse(b("SET", "k", "v", "EX", "10"))
	require.NoError(t, err)
	rc := c.Rewritten(5000)
	require.True(t, rc.HasAbsAt)
	require.False(t, rc.HasTTLMillis)
	require.Equal(t, int64(15000), rc.AbsAtMillis)
}

func TestParseUnknownCommand(t *testing.T) {
	_, err := command.Parse(b("FROBNICATE", "k"))
	require.Error(t, err)
	var uc *command.ErrUnknownCommand
	require.ErrorAs(t, err, &uc)
}

func TestParseEval(t *testing.T) {
	c, err := command.Parse(b("EVAL", "return 1", "2", "k1", "k2", "arg1"))
	require.NoError(t, err)
	require.Equal(t, command.Eval, c.Kind)
	require.Equal(t, []string{"k1", "k2"}, c.Keys)
	require.Equal(t, 1, len(c.Args))
}

func TestParseEvalTooFewArgs(t *testing.T) {
	_, err := command.Parse(b("EVAL", "return 1", "5", "k1"))
	require.Error(t, err)
}

func TestIsWrite(t *testing.T) {
	set, _ := command.Parse(b("SET", "k", "v"))
	require.True(t, set.IsWrite())
	get, _ := command.Parse(b("GET", "k"))
	require.False(t, get.IsWrite())
}

func TestLRangeParsesBounds(t *testing.T) {
	c, err := command.Parse(b("LRANGE", "k", "-2", "5"))
	require.NoError(t, err)
	require.Equal(t, int64(-2), c.Start)
	require.Equal(t, int64(5), c.Stop)
}

func TestHSetRequiresPairs(t *testing.T) {
	_, err := command.Parse(b("HSET", "k", "f1", "v1", "f2"))
	require.Error(t, err)
}

func TestParseSetRejectsNonPositiveEX(t *testing.T) {
	_, err := command.Parse(b("SET", "k", "v", "EX", "0"))
	require.Error(t, err)
	_, err = command.Parse(b("SET", "k", "v", "PX", "-1"))
	require.Error(t, err)
}

func TestParseExpireRejectsNonPositive(t *testing.T) {
	_, err := command.Parse(b("EXPIRE", "k", "0"))
	require.Error(t, err)
	_, err = command.Parse(b("PEXPIRE", "k", "-5"))
	require.Error(t, err)
}

func TestParsePexpireat(t *testing.T) {
	c, err := command.Parse(b("PEXPIREAT", "k", "5000"))
	require.NoError(t, err)
	require.Equal(t, command.PExpire, c.Kind)
	require.True(t, c.HasAbsAt)
	require.Equal(t, int64(5000), c.AbsAtMillis)
}
