package trading

import "sync/atomic"

// execGuard is the per-symbol execution token. A phase acquires it at start
// and releases it on every exit path; a trigger that finds it held is
// skipped, never queued. Skipping a day is cheaper than a duplicate order.
type execGuard struct {
	busy atomic.Bool
}

func (g *execGuard) tryAcquire() bool {
	return g.busy.CompareAndSwap(false, true)
}

func (g *execGuard) release() {
	g.busy.Store(false)
}
