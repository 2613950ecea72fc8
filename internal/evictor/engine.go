package evictor

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/rkv/internal/keyspace"
)

// Engine runs the TTL sweeper and the memory evictor on their own 100ms
// tickers, both subscribed to the same shutdown context, per spec.md §4.4
// ("cancellation: both loops subscribe to the shutdown broadcast and break
// out before their next cycle").
type Engine struct {
	sweeper *Sweeper
	memory  *MemoryEvictor
}

// New wires a TTL sweeper and a memory evictor over the same keyspace.
// budget <= 0 disables memory eviction entirely (sweeper still runs). The
// memory evictor starts with a synchronous spawn function; Run replaces it
// with one tracked by its own errgroup before entering the tick loop.
func New(ks *keyspace.Keyspace, budget int64, onSweep, onEvict func(n int)) *Engine {
	return &Engine{
		sweeper: NewSweeper(ks, onSweep),
		memory:  NewMemoryEvictor(ks, budget, nil, onEvict),
	}
}

// Run blocks, driving both loops until ctx is cancelled (the app-shutdown
// signal, per spec.md §4.11). Each shard eviction task the memory evictor
// spawns during a tick is joined via an internal errgroup before Run
// returns, satisfying "tasks are tracked so shutdown can await them".
func (e *Engine) Run(ctx context.Context, clock func() int64) error {
	var g errgroup.Group
	sweepSpawn := func(fn func()) { g.Go(func() error { fn(); return nil }) }
	e.memory.spawn = sweepSpawn

	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return g.Wait()
		case <-ticker.C:
			e.sweeper.Tick(clock())
			e.memory.Tick(ctx)
		}
	}
}
