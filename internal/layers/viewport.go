package layers

import (
	"context"
	"sync"

	"github.com/paulmach/orb"

	"github.com/couchcryptid/tribal-hazard-overlays/internal/domain"
)

// Viewport reload outcomes recorded in metrics.
const (
	reloadIssued  = "issued"
	reloadSkipped = "skipped"
)

// viewReload decides whether a settled viewport needs a new bounded query by
// comparing it to the last queried bounds.
type viewReload struct {
	minZoom     float64
	tolerance   float64
	firstAlways bool // the first query ignores minZoom

	mu   sync.Mutex
	last *orb.Bound
}

// claim reports whether v needs a query and records its bounds as queried.
func (r *viewReload) claim(v domain.Viewport) (orb.Bound, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	first := r.last == nil
	if v.Zoom < r.minZoom && !(first && r.firstAlways) {
		return orb.Bound{}, false
	}
	if !first && domain.BoundsWithin(v.Bounds, *r.last, r.tolerance) {
		return orb.Bound{}, false
	}
	b := v.Bounds
	r.last = &b
	return b, true
}

// failed forgets b so the same view is retried on the next settle.
func (r *viewReload) failed(b orb.Bound) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last != nil && *r.last == b {
		r.last = nil
	}
}

// lastQueried returns the bounds of the most recent query.
func (r *viewReload) lastQueried() (orb.Bound, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return orb.Bound{}, false
	}
	return *r.last, true
}

func (r *viewReload) reset() {
	r.mu.Lock()
	r.last = nil
	r.mu.Unlock()
}

// reloadForView runs one view-settled reload for an adapter. It returns
// whether a query was issued.
func (b *base) reloadForView(ctx context.Context, r *viewReload, query func(orb.Bound) Fetcher) (bool, error) {
	bound, ok := r.claim(b.deps.Host.View())
	if !ok {
		b.deps.Metrics.ViewportReloads.WithLabelValues(b.name, reloadSkipped).Inc()
		return false, nil
	}
	b.deps.Metrics.ViewportReloads.WithLabelValues(b.name, reloadIssued).Inc()

	if _, err := b.load(ctx, query(bound)); err != nil {
		r.failed(bound)
		return true, err
	}
	return true, nil
}

// watchView reloads in the background whenever the host's view settles.
// Callers hold b.mu.
func (b *base) watchView(reload func(context.Context) (bool, error)) {
	life := b.life
	b.onRemove(b.deps.Host.OnViewSettled(func(domain.Viewport) {
		b.goTracked(func() {
			_, _ = reload(life)
		})
	}))
}
