// Package layers contains one adapter per data domain. Each adapter fetches
// from its upstream source, normalizes the response to a feature collection,
// renders it with the domain's style and popup rules, and registers the
// result with the map host.
package layers

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/tribal-hazard-overlays/internal/maphost"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/observability"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/overlay"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/refresh"
)

// Layer keys used in URLs and embed parameters.
const (
	KeyTribal  = "tribal"
	KeyFlood   = "flood"
	KeyWeather = "weather"
	KeyGages   = "gages"
	KeyStreams = "streams"
)

// Keys lists every layer key in display order.
var Keys = []string{KeyTribal, KeyFlood, KeyWeather, KeyGages, KeyStreams}

// DisplayNames maps layer keys to overlay names.
var DisplayNames = map[string]string{
	KeyTribal:  "Tribal Boundaries",
	KeyFlood:   "Flood Zones",
	KeyWeather: "Weather Alerts",
	KeyGages:   "River Gages",
	KeyStreams: "Streams",
}

// ErrNotAdded is returned by operations that need the overlay on the map.
var ErrNotAdded = errors.New("overlay not on map")

const publishTimeout = 5 * time.Second

// Snapshot is the rendered state of an overlay after an applied update.
type Snapshot struct {
	Overlay    string
	Generation uint64
	Collection *geojson.FeatureCollection
	At         time.Time
}

// SnapshotSink receives snapshots after every applied update.
type SnapshotSink interface {
	PublishSnapshot(ctx context.Context, s Snapshot) error
}

// Deps are the collaborators shared by every adapter of one map.
type Deps struct {
	Host            *maphost.Host
	Clock           clockwork.Clock
	Logger          *slog.Logger
	Metrics         *observability.Metrics
	Sink            SnapshotSink // optional
	MaxRetries      int
	BoundsTolerance float64
}

// Fetcher loads and renders one overlay update.
type Fetcher func(ctx context.Context) ([]overlay.Feature, error)

// Adapter is the lifecycle shared by every data layer.
type Adapter interface {
	Key() string
	Name() string
	Layer() *overlay.Layer
	Added() bool
	AddToMap(ctx context.Context) error
	RemoveFromMap()
}

// base holds the state every adapter carries: the stable overlay layer, the
// generation guard shared by initial load, refresh ticks and reloads, and the
// lifetime of background work started while the overlay is on the map.
type base struct {
	key   string
	name  string
	deps  Deps
	layer *overlay.Layer
	guard *refresh.Guard

	mu        sync.Mutex
	added     bool
	life      context.Context
	cancel    context.CancelFunc
	loop      *refresh.Loop[[]overlay.Feature]
	disposers []func()

	bgMu     sync.Mutex
	bgClosed bool
	bg       sync.WaitGroup

	// Snapshots queue in install order and one drainer at a time hands them
	// to the sink.
	pubMu    sync.Mutex
	pending  []Snapshot
	draining bool
}

func newBase(key string, deps Deps) base {
	name := DisplayNames[key]
	return base{
		key:   key,
		name:  name,
		deps:  deps,
		layer: overlay.New(name),
		guard: refresh.NewGuard(),
	}
}

func (b *base) Key() string           { return b.key }
func (b *base) Name() string          { return b.name }
func (b *base) Layer() *overlay.Layer { return b.layer }

// Added reports whether the overlay is registered with the host.
func (b *base) Added() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.added
}

// load fetches through the guard and installs the result. Failures are
// surfaced on the host's error indicator and returned.
func (b *base) load(ctx context.Context, fetch Fetcher) (applied bool, err error) {
	done := b.deps.Host.BeginLoading(b.name)

	reqCtx, ticket := b.guard.Begin(ctx)
	defer b.guard.End(ticket)

	features, err := fetch(reqCtx)
	if err != nil {
		if reqCtx.Err() != nil && ctx.Err() == nil {
			// Superseded by a newer request or by removal.
			done(nil)
			return false, nil
		}
		b.deps.Metrics.LoadErrors.WithLabelValues(b.name).Inc()
		b.deps.Logger.Error("overlay load failed", "overlay", b.name, "error", err)
		done(err)
		return false, err
	}

	applied = b.guard.Commit(ticket, func() { b.install(features, ticket.Generation()) })
	if !applied {
		b.deps.Logger.Debug("stale load discarded", "overlay", b.name, "generation", ticket.Generation())
	}
	done(nil)
	return applied, nil
}

// install replaces the layer contents. Runs under the guard lock.
func (b *base) install(features []overlay.Feature, generation uint64) {
	b.layer.Replace(features)
	b.deps.Metrics.OverlayFeatures.WithLabelValues(b.name).Set(float64(len(features)))
	b.deps.Logger.Debug("overlay updated", "overlay", b.name, "feature_count", len(features), "generation", generation)
	b.publish(generation)
}

func (b *base) publish(generation uint64) {
	if b.deps.Sink == nil {
		return
	}
	snap := Snapshot{
		Overlay:    b.key,
		Generation: generation,
		Collection: b.layer.GeoJSON(),
		At:         b.deps.Clock.Now(),
	}

	b.pubMu.Lock()
	b.pending = append(b.pending, snap)
	start := !b.draining
	b.draining = true
	b.pubMu.Unlock()

	if start && !b.goTracked(b.drainSnapshots) {
		b.pubMu.Lock()
		b.pending = nil
		b.draining = false
		b.pubMu.Unlock()
	}
}

// drainSnapshots publishes queued snapshots in order until the queue is empty.
func (b *base) drainSnapshots() {
	for {
		b.pubMu.Lock()
		if len(b.pending) == 0 {
			b.draining = false
			b.pubMu.Unlock()
			return
		}
		snap := b.pending[0]
		b.pending = b.pending[1:]
		b.pubMu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := b.deps.Sink.PublishSnapshot(ctx, snap); err != nil {
			b.deps.Logger.Warn("snapshot publish failed", "overlay", b.name, "generation", snap.Generation, "error", err)
		}
		cancel()
	}
}

// goTracked runs fn in the background; Wait and RemoveFromMap wait for it.
// Work submitted while the overlay is being removed is dropped and goTracked
// returns false.
func (b *base) goTracked(fn func()) bool {
	b.bgMu.Lock()
	defer b.bgMu.Unlock()
	if b.bgClosed {
		return false
	}
	b.bg.Add(1)
	go func() {
		defer b.bg.Done()
		fn()
	}()
	return true
}

// Wait blocks until background reloads and snapshot publishes finish.
func (b *base) Wait() { b.bg.Wait() }

// add runs the initial load and registers the overlay on success. A failed
// initial load leaves nothing on the map; a nil fetch registers an empty layer. setup runs after registration with
// b.mu held. Adding an overlay that is already on the map is a no-op.
func (b *base) add(ctx context.Context, fetch Fetcher, interval time.Duration, refreshFetch Fetcher, setup func()) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.added {
		return nil
	}

	b.bgMu.Lock()
	b.bgClosed = false
	b.bgMu.Unlock()

	if fetch != nil {
		if _, err := b.load(ctx, fetch); err != nil {
			return err
		}
	}
	b.register(ctx, interval, refreshFetch)
	if setup != nil {
		setup()
	}
	b.deps.Logger.Info("overlay added", "overlay", b.name, "feature_count", b.layer.Len())
	return nil
}

// register adds the layer to the host and starts the optional refresh loop.
// Callers hold b.mu.
func (b *base) register(ctx context.Context, interval time.Duration, fetch Fetcher) {
	b.life, b.cancel = context.WithCancel(context.WithoutCancel(ctx))
	b.deps.Host.AddOverlay(b.name, b.layer, true)
	b.added = true

	if interval > 0 && fetch != nil {
		b.loop = refresh.NewLoop[[]overlay.Feature](b.guard, refresh.FetchFunc[[]overlay.Feature](fetch), b.install, refresh.Options{
			Name:       b.name,
			Interval:   interval,
			MaxRetries: b.deps.MaxRetries,
			Clock:      b.deps.Clock,
			Logger:     b.deps.Logger,
			Metrics:    b.deps.Metrics,
		})
		b.loop.Start(b.life)
	}
}

// onRemove registers cleanup to run when the overlay leaves the map.
func (b *base) onRemove(dispose func()) {
	b.disposers = append(b.disposers, dispose)
}

// remove stops the refresh loop, cancels in-flight work, deregisters the
// overlay and clears its data. It is safe to call when never added.
func (b *base) remove() {
	b.guard.Invalidate()

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.added {
		return
	}
	if b.loop != nil {
		b.loop.Stop()
		b.loop = nil
	}
	for _, d := range b.disposers {
		d()
	}
	b.disposers = nil
	b.cancel()
	b.bgMu.Lock()
	b.bgClosed = true
	b.bgMu.Unlock()
	b.bg.Wait()
	b.guard.Invalidate()

	b.deps.Host.RemoveOverlay(b.name)
	b.layer.Clear()
	b.deps.Metrics.OverlayFeatures.WithLabelValues(b.name).Set(0)
	b.added = false
	b.deps.Logger.Info("overlay removed", "overlay", b.name)
}

// RefreshNow runs one refresh tick immediately. It returns ErrNotAdded when
// the overlay has no refresh loop.
func (b *base) RefreshNow(ctx context.Context) error {
	b.mu.Lock()
	loop := b.loop
	b.mu.Unlock()
	if loop == nil {
		return ErrNotAdded
	}
	return loop.RunOnce(ctx)
}
