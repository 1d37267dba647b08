package maphost

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/tribal-hazard-overlays/internal/domain"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/overlay"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/staticdata"
)

func newTestHost(t *testing.T) (*Host, *clockwork.FakeClock) {
	t.Helper()
	catalog, err := staticdata.Load()
	require.NoError(t, err)
	clock := clockwork.NewFakeClock()
	return New(catalog, clock, slog.New(slog.NewTextHandler(io.Discard, nil))), clock
}

func TestFocusRegion_Washington(t *testing.T) {
	h, _ := newTestHost(t)
	assert.Equal(t, StateInitializing, h.State())

	require.True(t, h.FocusRegion("wa", false))

	v := h.View()
	assert.Equal(t, orb.Point{-120.5, 47.4}, v.Center)
	assert.InDelta(t, 7, v.Zoom, 0)
	assert.True(t, v.Bounds.Contains(v.Center))
	assert.Equal(t, StateIdle, h.State())
	assert.Equal(t, "wa", h.Region())
}

func TestFocusRegion_UnknownIsNoOp(t *testing.T) {
	h, _ := newTestHost(t)
	require.True(t, h.FocusRegion("wa", true))
	before := h.View()

	assert.False(t, h.FocusRegion("atlantis", false))
	assert.Equal(t, before, h.View())
	assert.Equal(t, "wa", h.Region())
}

func TestViewListeners(t *testing.T) {
	h, _ := newTestHost(t)
	var got []domain.Viewport
	dispose := h.OnViewSettled(func(v domain.Viewport) { got = append(got, v) })

	b := orb.Bound{Min: orb.Point{-121, 46}, Max: orb.Point{-120, 47}}
	h.SetView(b, 9)
	require.Len(t, got, 1)
	assert.Equal(t, b, got[0].Bounds)
	assert.InDelta(t, 9, got[0].Zoom, 0)

	h.FocusRegion("or", false)
	assert.Len(t, got, 2)

	dispose()
	h.FitBounds(b, false)
	assert.Len(t, got, 2)
	assert.True(t, h.View().Bounds.Contains(b.Min))
}

func TestViewListenerMayReadHost(t *testing.T) {
	h, _ := newTestHost(t)
	var seen domain.Viewport
	h.OnViewSettled(func(domain.Viewport) { seen = h.View() })
	h.FocusRegion("wa", false)
	assert.Equal(t, h.View(), seen)
}

func TestOverlays_AddReplaceRemove(t *testing.T) {
	h, _ := newTestHost(t)
	first := overlay.New("Flood Zones")
	second := overlay.New("Flood Zones")

	h.AddOverlay("Flood Zones", first, true)
	h.AddOverlay("Weather Alerts", overlay.New("Weather Alerts"), true)
	h.AddOverlay("Flood Zones", second, false)

	all := h.Overlays()
	require.Len(t, all, 2)
	assert.Equal(t, "Flood Zones", all[0].Name)
	assert.Same(t, second, all[0].Layer)
	assert.False(t, all[0].Visible)

	assert.True(t, h.RemoveOverlay("Flood Zones"))
	assert.False(t, h.RemoveOverlay("Flood Zones"))
	_, ok := h.Overlay("Flood Zones")
	assert.False(t, ok)
	assert.Len(t, h.Overlays(), 1)
}

func TestSetVisible(t *testing.T) {
	h, _ := newTestHost(t)
	h.AddOverlay("River Gages", overlay.New("River Gages"), true)

	require.NoError(t, h.SetVisible("River Gages", false))
	o, _ := h.Overlay("River Gages")
	assert.False(t, o.Visible)

	assert.ErrorIs(t, h.SetVisible("Streams", true), ErrNoOverlay)
}

func TestDispatchFeatureEvent(t *testing.T) {
	h, _ := newTestHost(t)
	l := overlay.New("Tribal Boundaries")
	l.Replace([]overlay.Feature{{ID: "lummi", Geometry: orb.Point{-122.6, 48.8}}})
	h.AddOverlay("Tribal Boundaries", l, true)

	var clicked string
	l.On(overlay.EventClick, func(e overlay.Event) { clicked = e.Feature.ID })

	require.NoError(t, h.DispatchFeatureEvent("Tribal Boundaries", "lummi", overlay.EventClick))
	assert.Equal(t, "lummi", clicked)
	assert.ErrorIs(t, h.DispatchFeatureEvent("Nope", "lummi", overlay.EventClick), ErrNoOverlay)
	assert.ErrorIs(t, h.DispatchFeatureEvent("Tribal Boundaries", "x", overlay.EventClick), overlay.ErrUnknownFeature)
}

func TestLoadingAndErrorIndicator(t *testing.T) {
	h, clock := newTestHost(t)

	doneA := h.BeginLoading("Weather Alerts")
	doneB := h.BeginLoading("River Gages")
	assert.Equal(t, []string{"River Gages", "Weather Alerts"}, h.Status().Loading)

	doneA(nil)
	doneA(errors.New("ignored second call"))
	doneB(errors.New("status 503"))

	st := h.Status()
	assert.Empty(t, st.Loading)
	assert.Equal(t, "River Gages unavailable: status 503", st.Error)
	assert.Equal(t, clock.Now(), st.ErrorAt)

	clock.Advance(ErrorDisplay - time.Second)
	assert.NotEmpty(t, h.Status().Error)

	clock.Advance(time.Second)
	assert.Empty(t, h.Status().Error)
}

func TestCenterOn(t *testing.T) {
	h, _ := newTestHost(t)
	h.CenterOn(orb.Point{-122.6, 48.8}, 11, true)
	v := h.View()
	assert.Equal(t, orb.Point{-122.6, 48.8}, v.Center)
	assert.InDelta(t, 11, v.Zoom, 0)
	assert.True(t, v.Animated)
}
