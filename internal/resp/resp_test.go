package resp_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/rkv/internal/resp"
)

func TestDecodeCommandComplete(t *testing.T) {
	buf := []byte("*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n")
	args, n, err := resp.DecodeCommand(buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	require.Equal(t, [][]byte{[]byte("SET"), []byte("k"), []byte("v")}, args)
}

func TestDecodeCommandIncomplete(t *testing.T) {
	cases := [][]byte{
		[]byte(""),
		[]byte("*3\r\n"),
		[]byte("*3\r\n$3\r\nSET"),
		[]byte("*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv"),
	}
	for _, buf := range cases {
		_, _, err := resp.DecodeCommand(buf)
		require.ErrorIs(t, err, resp.ErrIncomplete)
	}
}

func TestDecodeCommandNullBulk(t *testing.T) {
	buf := []byte("*2\r\n$3\r\nGET\r\n$-1\r\n")
	args, n, err := resp.DecodeCommand(buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	require.Nil(t, args[1])
}

func TestDecodeCommandProtocolErrors(t *testing.T) {
	cases := []string{
		"not-an-array\r\n",
		"*0\r\n",
		"*1\r\n:5\r\n",
		"*1\r\n$3\r\nabXXXXX",
	}
	for _, c := range cases {
		_, _, err := resp.DecodeCommand([]byte(c))
		if err == resp.ErrIncomplete {
			continue
		}
		var pe *resp.ErrProtocol
		require.ErrorAs(t, err, &pe)
	}
}

func TestDecodeCommandTrailingBytesNotConsumed(t *testing.T) {
	buf := []byte("*1\r\n$4\r\nPING\r\n*1\r\n$4\r\nPING\r\n")
	args, n, err := resp.DecodeCommand(buf)
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("PING")}, args)
	require.Less(t, n, len(buf))

	args2, n2, err := resp.DecodeCommand(buf[n:])
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("PING")}, args2)
	require.Equal(t, len(buf)-n, n2)
}
