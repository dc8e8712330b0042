package cacheengine

import "sync/atomic"

// int64Counter is a lock-free monotonic-ish counter. It is a thin named
// wrapper over atomic.Int64 rather than a bare field so Counters reads as a
// list of named counters, matching the atomic-counter style used for
// cache/invalidation/warming tallies elsewhere in the corpus.
type int64Counter struct {
	v atomic.Int64
}

func (c *int64Counter) add(n int64) { c.v.Add(n) }
func (c *int64Counter) load() int64 { return c.v.Load() }
func (c *int64Counter) store(n int64) { c.v.Store(n) }
