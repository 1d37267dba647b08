package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/tribal-hazard-overlays/internal/adapter/arcgis"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/adapter/nws"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/adapter/usgs"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/controls"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/domain"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/layers"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/observability"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/overlay"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/staticdata"
)

type stubAlerts struct{ err error }

func (s stubAlerts) ActiveAlerts(context.Context, nws.AlertQuery) ([]domain.Alert, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []domain.Alert{{
		ID:       "a1",
		Event:    "Flood Watch",
		Severity: domain.SeverityModerate,
		Geometry: orb.Bound{Min: orb.Point{-121, 47}, Max: orb.Point{-120, 48}}.ToPolygon(),
	}}, nil
}

// blockingAlerts holds every request until its context ends.
type blockingAlerts struct {
	started chan struct{}
	once    sync.Once
}

func (b *blockingAlerts) ActiveAlerts(ctx context.Context, _ nws.AlertQuery) ([]domain.Alert, error) {
	b.once.Do(func() { close(b.started) })
	<-ctx.Done()
	return nil, ctx.Err()
}

type stubGages struct{}

func (stubGages) InstantValues(context.Context, usgs.GageQuery) ([]domain.GageSite, error) {
	return []domain.GageSite{{SiteCode: "12500450", Name: "YAKIMA RIVER", Location: orb.Point{-120.5, 46.6}}}, nil
}

type stubQuerier struct{}

func (stubQuerier) Query(context.Context, int, arcgis.QueryOptions) (*geojson.FeatureCollection, error) {
	fc := geojson.NewFeatureCollection()
	f := geojson.NewFeature(orb.Bound{Min: orb.Point{-121, 47}, Max: orb.Point{-120.9, 47.1}}.ToPolygon())
	f.Properties["FLD_ZONE"] = "AE"
	fc.Append(f)
	return fc, nil
}

type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
}

func (p *recordingPublisher) Publish(_ context.Context, mapID string, s layers.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, mapID+"/"+s.Overlay)
	return nil
}

func testDeps(t *testing.T, alerts layers.AlertSource) Deps {
	t.Helper()
	catalog, err := staticdata.Load()
	require.NoError(t, err)
	return Deps{
		Catalog: catalog,
		Sources: Sources{
			Alerts:  alerts,
			Gages:   stubGages{},
			Stages:  staticdata.FloodStages{},
			Flood:   stubQuerier{},
			Tribal:  stubQuerier{},
			Streams: stubQuerier{},
		},
		Settings: Settings{
			WeatherRefresh:  5 * time.Minute,
			GageRefresh:     15 * time.Minute,
			BoundsTolerance: 0.01,
			Tribal:          layers.TribalConfig{Source: layers.TribalSourceStatic},
		},
		Clock:   clockwork.NewFakeClock(),
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics: observability.NewMetricsForTesting(),
	}
}

func TestParseParams(t *testing.T) {
	p, err := ParseParams(url.Values{
		"region":   {"WA"},
		"tribe":    {"yakama"},
		"layers":   {"weather, tribal,weather,,flood"},
		"controls": {"minimal"},
	})
	require.NoError(t, err)
	assert.Equal(t, Params{
		Region:   "wa",
		Tribe:    "yakama",
		Layers:   []string{layers.KeyTribal, layers.KeyFlood, layers.KeyWeather},
		Controls: controls.ModeMinimal,
	}, p)

	p, err = ParseParams(url.Values{})
	require.NoError(t, err)
	assert.Empty(t, p.Layers)
	assert.Equal(t, controls.ModeFull, p.Controls)

	_, err = ParseParams(url.Values{"layers": {"lava"}})
	assert.ErrorContains(t, err, "lava")
	_, err = ParseParams(url.Values{"controls": {"huge"}})
	assert.Error(t, err)
}

func TestInit_RegionWashingtonView(t *testing.T) {
	deps := testDeps(t, stubAlerts{})
	m := NewMap("m1", controls.ModeFull, deps)
	defer m.Close()

	require.NoError(t, m.Init(context.Background(), Params{Region: "wa"}))

	wa, ok := deps.Catalog.Region("wa")
	require.True(t, ok)
	v := m.Host.View()
	assert.Equal(t, wa.Center(), v.Center)
	assert.InDelta(t, wa.Zoom, v.Zoom, 0)
	assert.Equal(t, "wa", m.State().Region)
}

func TestInit_EnablesLayersAndFocusesTribe(t *testing.T) {
	deps := testDeps(t, stubAlerts{})
	pub := &recordingPublisher{}
	deps.Publisher = pub
	m := NewMap("m2", controls.ModeFull, deps)

	err := m.Init(context.Background(), Params{
		Region: "wa",
		Tribe:  "yakama",
		Layers: []string{layers.KeyTribal, layers.KeyWeather, layers.KeyGages},
	})
	require.NoError(t, err)

	st := m.State()
	assert.Equal(t, "yakama", st.SelectedTribe)
	enabled := map[string]bool{}
	for _, o := range st.Overlays {
		enabled[o.Key] = o.Enabled
	}
	assert.Equal(t, map[string]bool{
		layers.KeyTribal: true, layers.KeyFlood: false, layers.KeyWeather: true,
		layers.KeyGages: true, layers.KeyStreams: false,
	}, enabled)

	m.Close()
	m.Close()
	assert.Empty(t, m.Host.Overlays())

	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.ElementsMatch(t, []string{"m2/tribal", "m2/weather", "m2/gages"}, pub.keys)
}

func TestInit_FailedLayerDoesNotStopOthers(t *testing.T) {
	deps := testDeps(t, stubAlerts{err: errors.New("nws down")})
	m := NewMap("m3", controls.ModeNone, deps)
	defer m.Close()

	err := m.Init(context.Background(), Params{Layers: []string{layers.KeyTribal, layers.KeyWeather}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "enable weather")

	assert.True(t, m.Tribal.Added())
	assert.False(t, m.Weather.Added())
	assert.Contains(t, m.State().Error, "Weather Alerts unavailable")
}

func TestMap_LayerOperations(t *testing.T) {
	deps := testDeps(t, stubAlerts{})
	m := NewMap("m4", controls.ModeFull, deps)
	defer m.Close()
	ctx := context.Background()

	require.NoError(t, m.EnableLayer(ctx, layers.KeyTribal))
	require.NoError(t, m.SetVisible(layers.KeyTribal, false))
	o, ok := m.Host.Overlay("Tribal Boundaries")
	require.True(t, ok)
	assert.False(t, o.Visible)

	require.NoError(t, m.FeatureEvent(layers.KeyTribal, "lummi", overlay.EventClick))
	assert.Equal(t, "lummi", m.Tribal.Selected())

	assert.ErrorIs(t, m.EnableLayer(ctx, "lava"), ErrUnknownLayer)
	require.NoError(t, m.DisableLayer(layers.KeyTribal))
	require.NoError(t, m.DisableLayer(layers.KeyTribal))
	assert.Error(t, m.SetVisible(layers.KeyTribal, true))
}

func TestMap_EnableAfterDeleteIsRejected(t *testing.T) {
	deps := testDeps(t, stubAlerts{})
	r := NewRegistry(deps)
	m, err := r.Create(context.Background(), Params{})
	require.NoError(t, err)

	require.True(t, r.Delete(m.ID))
	assert.True(t, m.Closed())

	err = m.Init(context.Background(), Params{Layers: []string{layers.KeyWeather}})
	require.ErrorIs(t, err, ErrClosed)
	assert.False(t, m.Weather.Added())
	assert.Empty(t, m.Host.Overlays())

	m.Close()
	assert.False(t, m.Weather.Added())
}

func TestMap_CloseCancelsInFlightEnable(t *testing.T) {
	alerts := &blockingAlerts{started: make(chan struct{})}
	deps := testDeps(t, alerts)
	m := NewMap("m5", controls.ModeFull, deps)

	errc := make(chan error, 1)
	go func() {
		errc <- m.EnableLayer(context.Background(), layers.KeyWeather)
	}()
	<-alerts.started

	m.Close()

	select {
	case err := <-errc:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("enable did not return after close")
	}
	assert.False(t, m.Weather.Added())
	assert.Empty(t, m.Host.Overlays())
	require.ErrorIs(t, m.EnableLayer(context.Background(), layers.KeyWeather), ErrClosed)
}

func TestRegistry(t *testing.T) {
	deps := testDeps(t, stubAlerts{})
	r := NewRegistry(deps)

	m, err := r.Create(context.Background(), Params{Region: "wa", Layers: []string{layers.KeyWeather}})
	require.NoError(t, err)
	require.NotEmpty(t, m.ID)
	got, ok := r.Get(m.ID)
	require.True(t, ok)
	assert.Same(t, m, got)
	assert.InDelta(t, 1, testutil.ToFloat64(deps.Metrics.ActiveMaps), 0)
	require.NoError(t, r.CheckReadiness(context.Background()))

	_, err = r.Create(context.Background(), Params{})
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())

	assert.True(t, r.Delete(m.ID))
	assert.False(t, r.Delete(m.ID))
	assert.False(t, m.Weather.Added())
	assert.InDelta(t, 1, testutil.ToFloat64(deps.Metrics.ActiveMaps), 0)

	r.Close()
	assert.Zero(t, r.Len())
	assert.InDelta(t, 0, testutil.ToFloat64(deps.Metrics.ActiveMaps), 0)
}

func TestRegistry_SweepClosesIdleSessions(t *testing.T) {
	deps := testDeps(t, stubAlerts{})
	clock := clockwork.NewFakeClock()
	deps.Clock = clock
	deps.Settings.SessionIdleTimeout = 30 * time.Minute
	r := NewRegistry(deps)

	idle, err := r.Create(context.Background(), Params{Region: "wa", Layers: []string{layers.KeyWeather}})
	require.NoError(t, err)
	active, err := r.Create(context.Background(), Params{})
	require.NoError(t, err)

	clock.Advance(20 * time.Minute)
	_, ok := r.Get(active.ID)
	require.True(t, ok)
	assert.Zero(t, r.Sweep())

	clock.Advance(10 * time.Minute)
	assert.Equal(t, 1, r.Sweep())

	_, ok = r.Get(idle.ID)
	assert.False(t, ok)
	assert.True(t, idle.Closed())
	assert.False(t, idle.Weather.Added())
	assert.Equal(t, 1, r.Len())
	assert.InDelta(t, 1, testutil.ToFloat64(deps.Metrics.SessionsExpired), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(deps.Metrics.ActiveMaps), 0)

	r.Close()
}

func TestRegistry_RunSweeper(t *testing.T) {
	deps := testDeps(t, stubAlerts{})
	clock := clockwork.NewFakeClock()
	deps.Clock = clock
	deps.Settings.SessionIdleTimeout = 10 * time.Minute
	r := NewRegistry(deps)

	_, err := r.Create(context.Background(), Params{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.RunSweeper(ctx)
	}()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(5 * time.Minute)
	clock.Advance(5 * time.Minute)
	assert.Eventually(t, func() bool { return r.Len() == 0 }, time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestRegistry_SweepDisabled(t *testing.T) {
	deps := testDeps(t, stubAlerts{})
	clock := clockwork.NewFakeClock()
	deps.Clock = clock
	r := NewRegistry(deps)

	_, err := r.Create(context.Background(), Params{})
	require.NoError(t, err)
	clock.Advance(24 * time.Hour)
	assert.Zero(t, r.Sweep())
	assert.Equal(t, 1, r.Len())

	r.RunSweeper(context.Background())
	r.Close()
}
