// Package refresh provides the periodic re-fetch loop shared by data layers
// and the generation guard that keeps late results from overwriting newer ones.
package refresh

import (
	"context"
	"sync"
)

// Ticket identifies one in-flight request issued through a Guard.
type Ticket struct {
	gen uint64
}

// Generation returns the ticket's generation number.
func (t Ticket) Generation() uint64 { return t.gen }

// Guard serializes result application for requests that may complete out of
// order. Every request takes a ticket from Begin; Commit applies a result only
// if no newer ticket has been applied and the guard has not been invalidated
// since the ticket was issued.
type Guard struct {
	mu       sync.Mutex
	issued   uint64
	applied  uint64
	floor    uint64
	inflight map[uint64]context.CancelFunc
}

// NewGuard returns an empty guard.
func NewGuard() *Guard {
	return &Guard{inflight: make(map[uint64]context.CancelFunc)}
}

// Begin issues a ticket and a context derived from ctx that is cancelled when
// the request is superseded, ended, or invalidated.
func (g *Guard) Begin(ctx context.Context) (context.Context, Ticket) {
	ctx, cancel := context.WithCancel(ctx)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.issued++
	g.inflight[g.issued] = cancel
	return ctx, Ticket{gen: g.issued}
}

// Commit runs apply under the guard lock if t is newer than every applied
// ticket and the last invalidation. Older in-flight requests are cancelled on
// success since their results can no longer be applied. apply must not call
// back into the guard.
func (g *Guard) Commit(t Ticket, apply func()) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if t.gen <= g.applied || t.gen <= g.floor {
		return false
	}
	g.applied = t.gen
	apply()
	for gen, cancel := range g.inflight {
		if gen < t.gen {
			cancel()
			delete(g.inflight, gen)
		}
	}
	return true
}

// End releases the resources of a finished request. It is safe to call after
// the request was cancelled.
func (g *Guard) End(t Ticket) {
	g.mu.Lock()
	cancel, ok := g.inflight[t.gen]
	delete(g.inflight, t.gen)
	g.mu.Unlock()
	if ok {
		cancel()
	}
}

// Invalidate cancels every in-flight request and rejects their results.
func (g *Guard) Invalidate() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.floor = g.issued
	for gen, cancel := range g.inflight {
		cancel()
		delete(g.inflight, gen)
	}
}

// Applied returns the generation of the last applied result, zero if none.
func (g *Guard) Applied() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.applied
}

// InFlight returns the number of requests that have begun but not ended.
func (g *Guard) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.inflight)
}
