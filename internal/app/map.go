// Package app assembles map sessions: one host, one adapter per data layer
// and a control panel, created from embed parameters and torn down together.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/tribal-hazard-overlays/internal/controls"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/domain"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/layers"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/maphost"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/observability"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/overlay"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/staticdata"
)

// ErrUnknownLayer is returned for a layer key with no adapter.
var ErrUnknownLayer = errors.New("unknown layer")

// ErrClosed is returned when a layer is enabled on a closed session.
var ErrClosed = errors.New("map closed")

// SnapshotPublisher receives overlay snapshots tagged with their map.
type SnapshotPublisher interface {
	Publish(ctx context.Context, mapID string, s layers.Snapshot) error
}

type mapSink struct {
	id  string
	pub SnapshotPublisher
}

func (s mapSink) PublishSnapshot(ctx context.Context, snap layers.Snapshot) error {
	return s.pub.Publish(ctx, s.id, snap)
}

// Map is one independent map session.
type Map struct {
	ID        string
	CreatedAt time.Time

	Host    *maphost.Host
	Panel   *controls.Panel
	Tribal  *layers.Tribal
	Flood   *layers.Flood
	Weather *layers.Weather
	Gages   *layers.Gages
	Streams *layers.Streams

	adapters map[string]layers.Adapter
	clock    clockwork.Clock
	logger   *slog.Logger

	// life is cancelled by Close so in-flight enables stop waiting on
	// upstream. lifeMu is held for reading by each enable and for writing
	// while Close marks the session closed.
	life   context.Context
	cancel context.CancelFunc
	lifeMu sync.RWMutex
	closed bool

	seenMu   sync.Mutex
	lastSeen time.Time
}

// Deps are the collaborators a map session is built from.
type Deps struct {
	Catalog   *staticdata.Catalog
	Sources   Sources
	Settings  Settings
	Clock     clockwork.Clock
	Logger    *slog.Logger
	Metrics   *observability.Metrics
	Publisher SnapshotPublisher // optional
}

// NewMap builds a session with every adapter constructed but none on the map.
func NewMap(id string, mode controls.Mode, d Deps) *Map {
	logger := d.Logger.With("map_id", id)
	host := maphost.New(d.Catalog, d.Clock, logger)

	ld := layers.Deps{
		Host:            host,
		Clock:           d.Clock,
		Logger:          logger,
		Metrics:         d.Metrics,
		MaxRetries:      d.Settings.MaxRetries,
		BoundsTolerance: d.Settings.BoundsTolerance,
	}
	if d.Publisher != nil {
		ld.Sink = mapSink{id: id, pub: d.Publisher}
	}

	now := d.Clock.Now()
	m := &Map{
		ID:        id,
		CreatedAt: now,
		Host:      host,
		Tribal:    layers.NewTribal(d.Sources.Tribal, d.Catalog, d.Settings.Tribal, ld),
		Flood:     layers.NewFlood(d.Sources.Flood, layers.FloodConfig{RefreshInterval: d.Settings.FloodRefresh}, ld),
		Weather:   layers.NewWeather(d.Sources.Alerts, layers.WeatherConfig{RefreshInterval: d.Settings.WeatherRefresh}, ld),
		Gages:     layers.NewGages(d.Sources.Gages, d.Sources.Stages, layers.GagesConfig{RefreshInterval: d.Settings.GageRefresh}, ld),
		Streams:   layers.NewStreams(d.Sources.Streams, layers.StreamsConfig{}, ld),
		clock:     d.Clock,
		logger:    logger,
		lastSeen:  now,
	}
	m.life, m.cancel = context.WithCancel(context.Background())
	m.adapters = map[string]layers.Adapter{
		layers.KeyTribal:  m.Tribal,
		layers.KeyFlood:   m.Flood,
		layers.KeyWeather: m.Weather,
		layers.KeyGages:   m.Gages,
		layers.KeyStreams: m.Streams,
	}
	m.Panel = controls.NewPanel(mode, d.Catalog, host, m.Tribal, logger)
	return m
}

// Init applies embed parameters: focus the region, enable the requested
// layers concurrently, then focus the tribe. Layer failures do not stop the
// others; they are joined into the returned error and shown on the host's
// error indicator.
func (m *Map) Init(ctx context.Context, p Params) error {
	if p.Region != "" {
		m.Panel.SelectRegion(p.Region, false)
	}

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, key := range p.Layers {
		g.Go(func() error {
			if err := m.EnableLayer(ctx, key); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if p.Tribe != "" {
		if err := m.Panel.SelectTribe(p.Tribe, false); err != nil {
			m.logger.Warn("initial tribe focus failed", "tribe", p.Tribe, "error", err)
		}
	}
	return errors.Join(errs...)
}

// Adapter returns the adapter for a layer key.
func (m *Map) Adapter(key string) (layers.Adapter, error) {
	a, ok := m.adapters[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLayer, key)
	}
	return a, nil
}

// EnableLayer adds a layer to the map. Enabling a layer already on the map
// is a no-op; enabling on a closed session returns ErrClosed.
func (m *Map) EnableLayer(ctx context.Context, key string) error {
	a, err := m.Adapter(key)
	if err != nil {
		return err
	}

	m.lifeMu.RLock()
	defer m.lifeMu.RUnlock()
	if m.closed {
		return ErrClosed
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(m.life, cancel)
	defer stop()

	if err := a.AddToMap(ctx); err != nil {
		return fmt.Errorf("enable %s: %w", key, err)
	}
	return nil
}

// DisableLayer removes a layer from the map.
func (m *Map) DisableLayer(key string) error {
	a, err := m.Adapter(key)
	if err != nil {
		return err
	}
	a.RemoveFromMap()
	return nil
}

// SetVisible toggles a layer that is on the map.
func (m *Map) SetVisible(key string, visible bool) error {
	a, err := m.Adapter(key)
	if err != nil {
		return err
	}
	return m.Host.SetVisible(a.Name(), visible)
}

// FeatureEvent forwards a pointer event on a feature of a layer.
func (m *Map) FeatureEvent(key, featureID string, ev overlay.EventType) error {
	a, err := m.Adapter(key)
	if err != nil {
		return err
	}
	return m.Host.DispatchFeatureEvent(a.Name(), featureID, ev)
}

// ViewSettled records the renderer's view after a pan or zoom. Overlays that
// reload by view react in the background.
func (m *Map) ViewSettled(v domain.Viewport) {
	m.Host.SetView(v.Bounds, v.Zoom)
}

// Touch records an access to the session.
func (m *Map) Touch() {
	m.seenMu.Lock()
	m.lastSeen = m.clock.Now()
	m.seenMu.Unlock()
}

// LastSeen returns the time of the most recent access.
func (m *Map) LastSeen() time.Time {
	m.seenMu.Lock()
	defer m.seenMu.Unlock()
	return m.lastSeen
}

// Closed reports whether Close has been called.
func (m *Map) Closed() bool {
	m.lifeMu.RLock()
	defer m.lifeMu.RUnlock()
	return m.closed
}

// Close removes every layer, stopping refresh loops and in-flight reloads.
// Enables still loading are cancelled and waited for, and later enables fail
// with ErrClosed. It is safe to call more than once.
func (m *Map) Close() {
	m.cancel()

	m.lifeMu.Lock()
	if m.closed {
		m.lifeMu.Unlock()
		return
	}
	m.closed = true
	m.lifeMu.Unlock()

	var g errgroup.Group
	for _, key := range layers.Keys {
		a := m.adapters[key]
		g.Go(func() error {
			a.RemoveFromMap()
			return nil
		})
	}
	_ = g.Wait()
	m.logger.Info("map closed")
}
