package layers

import (
	"context"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/tribal-hazard-overlays/internal/adapter/arcgis"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/domain"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/overlay"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/popup"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/style"
)

// NFHLFloodHazardZones is the NFHL MapServer layer holding S_FLD_HAZ_AR polygons.
const NFHLFloodHazardZones = 28

// FloodMinZoom is the lowest zoom at which a settled view reloads flood zones.
const FloodMinZoom = 8

// FloodConfig configures the flood zone adapter.
type FloodConfig struct {
	LayerID         int
	ZoneFilter      []string // empty loads every zone
	RefreshInterval time.Duration
}

// FloodQuery selects flood zones.
type FloodQuery struct {
	Bounds orb.Bound
	Zones  []string
}

// Flood shows FEMA flood hazard zones for the current view, reloading when
// the view moves and on a refresh interval.
type Flood struct {
	base
	querier arcgis.Querier
	cfg     FloodConfig
	view    viewReload
}

// NewFlood creates a flood zone adapter.
func NewFlood(querier arcgis.Querier, cfg FloodConfig, deps Deps) *Flood {
	if cfg.LayerID == 0 {
		cfg.LayerID = NFHLFloodHazardZones
	}
	return &Flood{
		base:    newBase(KeyFlood, deps),
		querier: querier,
		cfg:     cfg,
		view: viewReload{
			minZoom:     FloodMinZoom,
			tolerance:   deps.BoundsTolerance,
			firstAlways: true,
		},
	}
}

// Fetch queries the NFHL layer for zones intersecting q.Bounds.
func (f *Flood) Fetch(ctx context.Context, q FloodQuery) (*geojson.FeatureCollection, error) {
	b := q.Bounds
	opts := arcgis.QueryOptions{Bounds: &b}
	if len(q.Zones) > 0 {
		opts.Where = arcgis.FieldIn(domain.FieldFloodZone, q.Zones)
	}
	return f.querier.Query(ctx, f.cfg.LayerID, opts)
}

// ToRenderable classifies each zone, styles it by risk tier and attaches its
// popup. Features without a zone code are skipped.
func (f *Flood) ToRenderable(fc *geojson.FeatureCollection) []overlay.Feature {
	out := make([]overlay.Feature, 0, len(fc.Features))
	for _, gf := range fc.Features {
		zone, err := domain.FloodZoneFromFeature(gf)
		if err != nil {
			f.deps.Logger.Debug("skipping flood feature", "error", err)
			continue
		}
		zf := zone.Feature()
		out = append(out, overlay.Feature{
			ID:         featureID(gf),
			Geometry:   zf.Geometry,
			Properties: zf.Properties,
			Style:      style.FloodZone(zone.Tier, zone.SFHA),
			Popup:      popup.FloodZone(zf.Properties),
		})
	}
	return out
}

func (f *Flood) fetcher(b orb.Bound) Fetcher {
	return func(ctx context.Context) ([]overlay.Feature, error) {
		fc, err := f.Fetch(ctx, FloodQuery{Bounds: b, Zones: f.cfg.ZoneFilter})
		if err != nil {
			return nil, err
		}
		return f.ToRenderable(fc), nil
	}
}

// refreshFetch re-queries the last queried bounds.
func (f *Flood) refreshFetch(ctx context.Context) ([]overlay.Feature, error) {
	b, ok := f.view.lastQueried()
	if !ok {
		b = f.deps.Host.View().Bounds
	}
	return f.fetcher(b)(ctx)
}

// AddToMap loads zones for the current view and registers the overlay.
func (f *Flood) AddToMap(ctx context.Context) error {
	if f.Added() {
		return nil
	}
	bound, _ := f.view.claim(f.deps.Host.View())
	err := f.add(ctx, f.fetcher(bound), f.cfg.RefreshInterval, f.refreshFetch, func() {
		f.watchView(f.LoadForCurrentView)
	})
	if err != nil {
		f.view.failed(bound)
	}
	return err
}

// LoadForCurrentView reloads zones when the view has moved beyond the bounds
// tolerance since the last query. It reports whether a query was issued.
func (f *Flood) LoadForCurrentView(ctx context.Context) (bool, error) {
	return f.reloadForView(ctx, &f.view, f.fetcher)
}

// RemoveFromMap stops refreshing and deregisters the overlay.
func (f *Flood) RemoveFromMap() {
	f.remove()
	f.view.reset()
}

// featureID returns the upstream feature ID as a string, or empty.
func featureID(f *geojson.Feature) string {
	switch id := f.ID.(type) {
	case string:
		return id
	case float64:
		return formatNumber(id)
	default:
		return ""
	}
}
