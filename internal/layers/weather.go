package layers

import (
	"context"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/tribal-hazard-overlays/internal/adapter/nws"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/domain"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/overlay"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/popup"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/style"
)

// AlertSource is the subset of the NWS client the weather adapter uses.
type AlertSource interface {
	ActiveAlerts(ctx context.Context, q nws.AlertQuery) ([]domain.Alert, error)
}

// WeatherConfig configures the weather alert adapter.
type WeatherConfig struct {
	Severity        []domain.Severity
	Urgency         []string
	Event           []string
	RefreshInterval time.Duration
}

// Weather shows active NWS alerts for the focused region.
type Weather struct {
	base
	alerts AlertSource
	cfg    WeatherConfig
}

// NewWeather creates a weather alert adapter.
func NewWeather(alerts AlertSource, cfg WeatherConfig, deps Deps) *Weather {
	return &Weather{
		base:   newBase(KeyWeather, deps),
		alerts: alerts,
		cfg:    cfg,
	}
}

// Query builds the alert query for the host's focused region. The national
// region and an unfocused map query every area.
func (w *Weather) Query() nws.AlertQuery {
	q := nws.AlertQuery{
		Severity: w.cfg.Severity,
		Urgency:  w.cfg.Urgency,
		Event:    w.cfg.Event,
	}
	if area := regionArea(w.deps.Host.Region()); area != "" {
		q.Area = []string{area}
	}
	return q
}

// regionArea maps a region code to an NWS area code.
func regionArea(region string) string {
	if len(region) != 2 || strings.EqualFold(region, "us") {
		return ""
	}
	return strings.ToUpper(region)
}

// Fetch returns the active alerts matching q. Alerts that expired before now
// and alerts without geometry are excluded.
func (w *Weather) Fetch(ctx context.Context, q nws.AlertQuery) (*geojson.FeatureCollection, error) {
	alerts, err := w.alerts.ActiveAlerts(ctx, q)
	if err != nil {
		return nil, err
	}
	fc := geojson.NewFeatureCollection()
	for _, a := range domain.FilterActive(alerts, w.deps.Clock.Now()) {
		f := a.Feature()
		if f == nil {
			continue
		}
		fc.Append(f)
	}
	return fc, nil
}

// ToRenderable styles each alert by severity and attaches its popup.
func (w *Weather) ToRenderable(fc *geojson.FeatureCollection) []overlay.Feature {
	out := make([]overlay.Feature, 0, len(fc.Features))
	for _, f := range fc.Features {
		sev := domain.ParseSeverity(f.Properties.MustString(domain.PropSeverity, ""))
		out = append(out, overlay.Feature{
			ID:         featureID(f),
			Geometry:   f.Geometry,
			Properties: f.Properties,
			Style:      style.Alert(sev),
			Popup:      popup.Alert(f.Properties),
		})
	}
	return out
}

func (w *Weather) fetch(ctx context.Context) ([]overlay.Feature, error) {
	fc, err := w.Fetch(ctx, w.Query())
	if err != nil {
		return nil, err
	}
	return w.ToRenderable(fc), nil
}

// AddToMap loads the active alerts and starts the refresh loop.
func (w *Weather) AddToMap(ctx context.Context) error {
	return w.add(ctx, w.fetch, w.cfg.RefreshInterval, w.fetch, nil)
}

// RemoveFromMap stops refreshing and deregisters the overlay.
func (w *Weather) RemoveFromMap() { w.remove() }
