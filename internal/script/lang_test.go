package script

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLexNumbersStringsAndPunctuation(t *testing.T) {
	toks, err := lex(`call('SET', KEYS[1], ARGV[1]); return {ok='done'}`)
	require.NoError(t, err)
	require.Equal(t, tokIdent, toks[0].kind)
	require.Equal(t, "call", toks[0].text)
	require.Equal(t, tokLParen, toks[1].kind)
	require.Equal(t, tokString, toks[2].kind)
	require.Equal(t, "SET", toks[2].text)
	require.Equal(t, tokComma, toks[3].kind)
	require.Equal(t, tokNumber, toks[6].kind)
	require.Equal(t, int64(1), toks[6].num)
	require.Equal(t, tokSemi, toks[14].kind)
	require.Equal(t, tokString, toks[19].kind)
	require.Equal(t, "done", toks[19].text)
}

func TestRunReturnsStringLiteral(t *testing.T) {
	v, err := run(`return 'hello'`, &env{})
	require.NoError(t, err)
	require.Equal(t, "hello", v)
}

func TestRunReturnsKeysAndArgvIndexing(t *testing.T) {
	e := &env{keys: []string{"k1", "k2"}, argv: [][]byte{[]byte("a1")}}
	v, err := run(`return KEYS[1]`, e)
	require.NoError(t, err)
	require.Equal(t, "k1", v)

	v, err = run(`return ARGV[1]`, e)
	require.NoError(t, err)
	require.Equal(t, "a1", v)
}

func TestRunOkAndErrTables(t *testing.T) {
	v, err := run(`return {ok = 'done'}`, &env{})
	require.NoError(t, err)
	require.Equal(t, OkValue{Msg: "done"}, v)

	v, err = run(`return {err = 'boom'}`, &env{})
	require.NoError(t, err)
	require.Equal(t, ErrValue{Msg: "boom"}, v)
}

func TestRunCallInvokesEnvCallback(t *testing.T) {
	var seen []Value
	e := &env{call: func(args []Value) (Value, error) {
		seen = args
		return int64(42), nil
	}}
	v, err := run(`return call('GET', 'k')`, e)
	require.NoError(t, err)
	require.Equal(t, int64(42), v)
	require.Equal(t, []Value{"GET", "k"}, seen)
}

func TestRunMultipleStatementsOnlyLastReturnMatters(t *testing.T) {
	var calls int
	e := &env{call: func(args []Value) (Value, error) {
		calls++
		return nil, nil
	}}
	v, err := run(`call('SET', 'a', '1'); call('SET', 'b', '2'); return 'ok'`, e)
	require.NoError(t, err)
	require.Equal(t, "ok", v)
	require.Equal(t, 2, calls)
}

func TestRunPropagatesCallError(t *testing.T) {
	e := &env{call: func(args []Value) (Value, error) {
		return nil, errWrong()
	}}
	_, err := run(`return call('LPUSH', 'k', 'v')`, e)
	require.Error(t, err)
}

func TestParseRejectsMalformedScript(t *testing.T) {
	_, err := parse(`return (`)
	require.Error(t, err)
}
