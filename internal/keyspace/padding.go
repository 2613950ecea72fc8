package keyspace

import "sync/atomic"

// cacheLineSize is a reasonable default for most modern CPUs; carried over
// from the teacher's internal/util/padding.go.
const cacheLineSize = 64

// paddedAtomicInt64 is an atomic int64 padded to one cache line, used for
// per-shard hit/miss counters so adjacent shards' hot counters don't false
// share a cache line.
type paddedAtomicInt64 struct {
	atomic.Int64
	_ [cacheLineSize - 8]byte
}
