package layers

import (
	"context"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/tribal-hazard-overlays/internal/adapter/usgs"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/domain"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/overlay"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/popup"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/style"
)

// GageSource is the subset of the USGS client the gage adapter uses.
type GageSource interface {
	InstantValues(ctx context.Context, q usgs.GageQuery) ([]domain.GageSite, error)
}

// StageLookup returns flood stage thresholds for a site, or nil.
type StageLookup interface {
	Lookup(siteCode string) *domain.FloodStages
}

// GagesConfig configures the river gage adapter.
type GagesConfig struct {
	ParameterCodes  []string // defaults to discharge and gage height
	RefreshInterval time.Duration
}

// Gages shows USGS river gages with their computed flood status. When the
// map is not focused on a state, gages follow the view, and the layer stays
// empty while the view is larger than USGS accepts.
type Gages struct {
	base
	sites  GageSource
	stages StageLookup
	cfg    GagesConfig
	view   viewReload

	areaMu   sync.Mutex
	lastArea string
}

// NewGages creates a river gage adapter. stages may be nil, in which case
// every site with a gage height reports an unknown status.
func NewGages(sites GageSource, stages StageLookup, cfg GagesConfig, deps Deps) *Gages {
	return &Gages{
		base:   newBase(KeyGages, deps),
		sites:  sites,
		stages: stages,
		cfg:    cfg,
		view: viewReload{
			tolerance:   deps.BoundsTolerance,
			firstAlways: true,
		},
	}
}

// Query selects gages by the focused state, or by the current view bounds
// when the map is not focused on a single state.
func (g *Gages) Query() usgs.GageQuery {
	q := usgs.GageQuery{ParameterCodes: g.cfg.ParameterCodes}
	if area := regionArea(g.deps.Host.Region()); area != "" {
		q.StateCode = area
		return q
	}
	b := g.deps.Host.View().Bounds
	q.BBox = &b
	return q
}

// Fetch returns one feature per site with every reading merged onto it and
// its flood status computed.
func (g *Gages) Fetch(ctx context.Context, q usgs.GageQuery) (*geojson.FeatureCollection, error) {
	sites, err := g.sites.InstantValues(ctx, q)
	if err != nil {
		return nil, err
	}
	fc := geojson.NewFeatureCollection()
	for _, site := range domain.MergeGageSites(sites) {
		site.Status = domain.DetermineFloodStatus(site, g.lookup(site.SiteCode))
		fc.Append(site.Feature())
	}
	return fc, nil
}

func (g *Gages) lookup(site string) *domain.FloodStages {
	if g.stages == nil {
		return nil
	}
	return g.stages.Lookup(site)
}

// ToRenderable colors each gage by flood status and attaches its popup.
func (g *Gages) ToRenderable(fc *geojson.FeatureCollection) []overlay.Feature {
	out := make([]overlay.Feature, 0, len(fc.Features))
	for _, f := range fc.Features {
		status := domain.FloodStatus(f.Properties.MustString(domain.PropFloodStatus, string(domain.FloodStatusUnknown)))
		out = append(out, overlay.Feature{
			ID:         featureID(f),
			Geometry:   f.Geometry,
			Properties: f.Properties,
			Style:      style.Gage(status),
			Popup:      popup.Gage(f.Properties),
		})
	}
	return out
}

func (g *Gages) fetch(ctx context.Context) ([]overlay.Feature, error) {
	q := g.Query()
	if q.BBox != nil && usgs.BBoxArea(*q.BBox) > usgs.MaxBBoxArea {
		g.deps.Logger.Debug("view too large for gage query", "overlay", g.name, "area", usgs.BBoxArea(*q.BBox))
		return nil, nil
	}
	fc, err := g.Fetch(ctx, q)
	if err != nil {
		return nil, err
	}
	return g.ToRenderable(fc), nil
}

// AddToMap loads the gages, starts the refresh loop and reloads as the view
// settles.
func (g *Gages) AddToMap(ctx context.Context) error {
	if g.Added() {
		return nil
	}
	g.claimCurrent()
	err := g.add(ctx, g.fetch, g.cfg.RefreshInterval, g.fetch, func() {
		g.watchView(g.LoadForCurrentView)
	})
	if err != nil {
		g.resetClaims()
	}
	return err
}

// LoadForCurrentView reloads after the view settles: by state when the
// focused state changed, by bounds when the view moved beyond the bounds
// tolerance. It reports whether a load was issued.
func (g *Gages) LoadForCurrentView(ctx context.Context) (bool, error) {
	area := regionArea(g.deps.Host.Region())
	if area == "" {
		g.setArea("")
		return g.reloadForView(ctx, &g.view, func(orb.Bound) Fetcher { return g.fetch })
	}

	if g.setArea(area) == area {
		g.deps.Metrics.ViewportReloads.WithLabelValues(g.name, reloadSkipped).Inc()
		return false, nil
	}
	g.view.reset()
	g.deps.Metrics.ViewportReloads.WithLabelValues(g.name, reloadIssued).Inc()
	if _, err := g.load(ctx, g.fetch); err != nil {
		g.setArea("")
		return true, err
	}
	return true, nil
}

// setArea records the state the layer was loaded for and returns the
// previous one.
func (g *Gages) setArea(area string) string {
	g.areaMu.Lock()
	defer g.areaMu.Unlock()
	prev := g.lastArea
	g.lastArea = area
	return prev
}

func (g *Gages) claimCurrent() {
	area := regionArea(g.deps.Host.Region())
	g.setArea(area)
	if area == "" {
		g.view.claim(g.deps.Host.View())
	}
}

func (g *Gages) resetClaims() {
	g.setArea("")
	g.view.reset()
}

// RemoveFromMap stops refreshing and deregisters the overlay.
func (g *Gages) RemoveFromMap() {
	g.remove()
	g.resetClaims()
}
