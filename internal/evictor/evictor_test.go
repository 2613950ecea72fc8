package evictor_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/rkv/internal/evictor"
	"github.com/IvanBrykalov/rkv/internal/keyspace"
	"github.com/IvanBrykalov/rkv/internal/policy/lru"
)

type fakeClock struct{ ms int64 }

func (c *fakeClock) NowMillis() int64 { return c.ms }

func TestSweeperExpiresStaleKeys(t *testing.T) {
	clk := &fakeClock{ms: 1000}
	ks := keyspace.New(2, lru.New(), clk)

	expAt := int64(1500)
	ks.LockWrite(0, "k1").Insert("k1", keyspace.NewEntry(keyspace.NewScalarData([]byte("v")), &expAt))

	removed := 0
	s := evictor.NewSweeper(ks, func(n int) { removed += n })

	clk.ms = 2000
	for i := 0; i < 5; i++ {
		s.Tick(clk.ms)
	}
	require.Equal(t, 1, removed)

	_, ok := ks.LockRead(0, "k1").Peek("k1")
	require.False(t, ok)
}

func TestSweeperLeavesLiveKeys(t *testing.T) {
	clk := &fakeClock{ms: 1000}
	ks := keyspace.New(2, lru.New(), clk)
	expAt := int64(5000)
	ks.LockWrite(0, "k1").Insert("k1", keyspace.NewEntry(keyspace.NewScalarData([]byte("v")), &expAt))

	s := evictor.NewSweeper(ks, nil)
	s.Tick(clk.ms)

	_, ok := ks.LockRead(0, "k1").Peek("k1")
	require.True(t, ok)
}

func TestMemoryEvictorShedsUnderPressure(t *testing.T) {
	clk := &fakeClock{ms: 1000}
	ks := keyspace.New(1, lru.New(), clk)
	for i := 0; i < 20; i++ {
		key := keyspace.Key(string(rune('a' + i)))
		ks.LockWrite(0, key).Insert(key, keyspace.NewEntry(keyspace.NewScalarData([]byte("v")), nil))
	}
	before, _ := ks.GlobalMemoryUsed(-1)
	require.Greater(t, before, int64(0))

	m := evictor.NewMemoryEvictor(ks, before/2, nil, nil)
	m.Tick(context.Background())

	after, _ := ks.GlobalMemoryUsed(-1)
	require.Less(t, after, before)
}

func TestMemoryEvictorNoopUnderBudget(t *testing.T) {
	clk := &fakeClock{ms: 1000}
	ks := keyspace.New(1, lru.New(), clk)
	ks.LockWrite(0, "k").Insert("k", keyspace.NewEntry(keyspace.NewScalarData([]byte("v")), nil))

	before, _ := ks.GlobalMemoryUsed(-1)
	m := evictor.NewMemoryEvictor(ks, before*10, nil, nil)
	m.Tick(context.Background())

	after, _ := ks.GlobalMemoryUsed(-1)
	require.Equal(t, before, after)
}
