package script

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToBulkBytesScalars(t *testing.T) {
	require.Equal(t, []byte("7"), toBulkBytes(int64(7)))
	require.Equal(t, []byte("x"), toBulkBytes("x"))
	require.Nil(t, toBulkBytes(nil))
	require.Equal(t, []byte("1"), toBulkBytes(true))
	require.Nil(t, toBulkBytes(false))
}
