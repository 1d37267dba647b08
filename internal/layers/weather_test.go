package layers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/tribal-hazard-overlays/internal/adapter/nws"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/domain"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/style"
)

type fakeAlerts struct {
	mu      sync.Mutex
	queries []nws.AlertQuery
	alerts  []domain.Alert
	err     error
}

func (f *fakeAlerts) ActiveAlerts(_ context.Context, q nws.AlertQuery) ([]domain.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	return f.alerts, f.err
}

func testAlerts(now time.Time) []domain.Alert {
	poly := box(-121, 47, -120, 48).ToPolygon()
	return []domain.Alert{
		{ID: "expired", Event: "Flood Warning", Severity: domain.SeveritySevere, Expires: now.Add(-time.Minute), Geometry: poly},
		{ID: "active", Event: "Flood Warning", Severity: domain.SeveritySevere, Expires: now.Add(time.Hour), Geometry: poly},
		{ID: "no-expiry", Event: "Tornado Warning", Severity: domain.SeverityExtreme, Geometry: poly},
		{ID: "zone-only", Event: "Wind Advisory", Severity: domain.SeverityMinor, Expires: now.Add(time.Hour)},
		{ID: "boundary", Event: "Heat Advisory", Severity: domain.SeverityModerate, Expires: now, Geometry: orb.Point{-120.5, 47.5}},
	}
}

func TestWeather_FetchExcludesExpired(t *testing.T) {
	env := newTestEnv(t)
	src := &fakeAlerts{alerts: testAlerts(env.clock.Now())}
	w := NewWeather(src, WeatherConfig{}, env.deps)

	fc, err := w.Fetch(context.Background(), w.Query())
	require.NoError(t, err)

	ids := make([]any, 0, len(fc.Features))
	for _, f := range fc.Features {
		ids = append(ids, f.ID)
	}
	assert.Equal(t, []any{"active", "no-expiry", "boundary"}, ids)
}

func TestWeather_ToRenderable(t *testing.T) {
	env := newTestEnv(t)
	src := &fakeAlerts{alerts: testAlerts(env.clock.Now())}
	w := NewWeather(src, WeatherConfig{}, env.deps)

	fc, err := w.Fetch(context.Background(), w.Query())
	require.NoError(t, err)
	got := w.ToRenderable(fc)
	require.Len(t, got, 3)

	assert.Equal(t, style.Alert(domain.SeveritySevere), got[0].Style)
	assert.Equal(t, style.AlertDash, got[0].Style.DashArray)
	assert.Empty(t, got[1].Style.DashArray)
	assert.Contains(t, got[1].Popup, "Tornado Warning")
}

func TestWeather_QueryArea(t *testing.T) {
	env := newTestEnv(t)
	w := NewWeather(&fakeAlerts{}, WeatherConfig{Severity: []domain.Severity{domain.SeverityExtreme}}, env.deps)

	assert.Empty(t, w.Query().Area)

	require.True(t, env.host.FocusRegion("wa", false))
	q := w.Query()
	assert.Equal(t, []string{"WA"}, q.Area)
	assert.Equal(t, "WA", q.Values().Get("area"))
	assert.Equal(t, "Extreme", q.Values().Get("severity"))

	require.True(t, env.host.FocusRegion("us", false))
	assert.Empty(t, w.Query().Area)
}

func TestWeather_RefreshReplacesData(t *testing.T) {
	env := newTestEnv(t)
	now := env.clock.Now()
	src := &fakeAlerts{alerts: testAlerts(now)}
	w := NewWeather(src, WeatherConfig{RefreshInterval: 5 * time.Minute}, env.deps)

	require.NoError(t, w.AddToMap(context.Background()))
	require.Equal(t, 3, w.Layer().Len())

	src.mu.Lock()
	src.alerts = src.alerts[:2]
	src.mu.Unlock()

	require.NoError(t, w.RefreshNow(context.Background()))
	assert.Equal(t, 1, w.Layer().Len())
	_, ok := w.Layer().Feature("active")
	assert.True(t, ok)

	w.RemoveFromMap()
	w.Wait()
	assert.Len(t, env.sink.all(), 2)
}
