package layers

import (
	"context"
	"errors"
	"sync"

	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/tribal-hazard-overlays/internal/adapter/arcgis"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/domain"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/overlay"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/popup"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/staticdata"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/style"
)

// BIALandAreaRepresentations is the BIA LAR MapServer layer.
const BIALandAreaRepresentations = 0

// NationZoom is the zoom used when focusing a nation that has no boundary.
const NationZoom = 9

// Tribal boundary sources.
const (
	TribalSourceStatic = "static"
	TribalSourceLive   = "live"
)

// ErrUnknownTribe is returned when a tribal code matches neither a boundary
// nor a catalog nation.
var ErrUnknownTribe = errors.New("unknown tribe")

// NationLookup resolves tribal codes to catalog entries.
type NationLookup interface {
	Nation(code string) (staticdata.Nation, bool)
}

// TribalConfig configures the tribal boundary adapter.
type TribalConfig struct {
	Source         string // static (default) or live
	BoundariesFile string // static override; empty uses the embedded file
	LayerID        int    // live BIA layer
}

// Tribal shows tribal land boundaries with hover highlighting and single
// selection.
type Tribal struct {
	base
	live    arcgis.Querier // nil for the static source
	nations NationLookup
	cfg     TribalConfig

	selMu    sync.Mutex
	selected string
}

// NewTribal creates a tribal boundary adapter. live is only used when the
// configured source is live.
func NewTribal(live arcgis.Querier, nations NationLookup, cfg TribalConfig, deps Deps) *Tribal {
	if cfg.Source == "" {
		cfg.Source = TribalSourceStatic
	}
	if cfg.LayerID == 0 {
		cfg.LayerID = BIALandAreaRepresentations
	}
	return &Tribal{
		base:    newBase(KeyTribal, deps),
		live:    live,
		nations: nations,
		cfg:     cfg,
	}
}

// Fetch loads the boundaries from the static file, or from the BIA service
// for the current view when the source is live.
func (t *Tribal) Fetch(ctx context.Context) (*geojson.FeatureCollection, error) {
	if t.cfg.Source != TribalSourceLive || t.live == nil {
		return staticdata.Boundaries(t.cfg.BoundariesFile)
	}
	b := t.deps.Host.View().Bounds
	return t.live.Query(ctx, t.cfg.LayerID, arcgis.QueryOptions{Bounds: &b})
}

// ToRenderable keys each territory by its code and applies the default style.
// Features without a name or geometry are skipped.
func (t *Tribal) ToRenderable(fc *geojson.FeatureCollection) []overlay.Feature {
	out := make([]overlay.Feature, 0, len(fc.Features))
	for _, gf := range fc.Features {
		territory, err := domain.TerritoryFromFeature(gf)
		if err != nil {
			t.deps.Logger.Debug("skipping tribal feature", "error", err)
			continue
		}
		f := territory.Feature()
		f.Properties[domain.PropSelection] = string(domain.SelectionDefault)
		out = append(out, overlay.Feature{
			ID:         territory.Code,
			Geometry:   f.Geometry,
			Properties: f.Properties,
			Style:      style.Tribal(domain.SelectionDefault),
			Popup:      popup.Tribal(f.Properties),
		})
	}
	return out
}

func (t *Tribal) fetch(ctx context.Context) ([]overlay.Feature, error) {
	fc, err := t.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return t.ToRenderable(fc), nil
}

// AddToMap loads the boundaries and subscribes to feature events.
func (t *Tribal) AddToMap(ctx context.Context) error {
	return t.add(ctx, t.fetch, 0, nil, t.subscribe)
}

func (t *Tribal) subscribe() {
	t.clearSelection()
	t.onRemove(t.layer.On(overlay.EventHover, func(e overlay.Event) {
		t.Highlight(e.Feature.ID)
	}))
	t.onRemove(t.layer.On(overlay.EventHoverEnd, func(e overlay.Event) {
		t.Unhighlight(e.Feature.ID)
	}))
	t.onRemove(t.layer.On(overlay.EventClick, func(e overlay.Event) {
		if err := t.Select(e.Feature.ID); err != nil {
			t.deps.Logger.Warn("tribal selection failed", "code", e.Feature.ID, "error", err)
		}
	}))
}

// RemoveFromMap unsubscribes from feature events and deregisters the overlay.
func (t *Tribal) RemoveFromMap() {
	t.remove()
	t.clearSelection()
}

func (t *Tribal) clearSelection() {
	t.selMu.Lock()
	t.selected = ""
	t.selMu.Unlock()
}

// Selected returns the code of the selected territory, empty if none.
func (t *Tribal) Selected() string {
	t.selMu.Lock()
	defer t.selMu.Unlock()
	return t.selected
}

// Highlight shows the hover style unless the territory is selected.
func (t *Tribal) Highlight(code string) {
	t.selMu.Lock()
	defer t.selMu.Unlock()
	if code == t.selected {
		return
	}
	t.setState(code, domain.SelectionHighlighted)
}

// Unhighlight restores the default style unless the territory is selected.
func (t *Tribal) Unhighlight(code string) {
	t.selMu.Lock()
	defer t.selMu.Unlock()
	if code == t.selected {
		return
	}
	t.setState(code, domain.SelectionDefault)
}

// Select marks code as the only selected territory, resetting the previous
// selection first.
func (t *Tribal) Select(code string) error {
	t.selMu.Lock()
	defer t.selMu.Unlock()
	if _, ok := t.layer.Feature(code); !ok {
		return ErrUnknownTribe
	}
	if t.selected != "" && t.selected != code {
		t.setState(t.selected, domain.SelectionDefault)
	}
	t.setState(code, domain.SelectionSelected)
	t.selected = code
	return nil
}

// setState restyles one territory. Callers hold selMu.
func (t *Tribal) setState(code string, state domain.SelectionState) {
	if t.layer.SetStyle(code, style.Tribal(state)) {
		t.layer.SetProperty(code, domain.PropSelection, string(state))
	}
}

// FocusTribe selects the territory and fits the view to it. A nation with
// no loaded boundary centers the view on its catalog location instead.
func (t *Tribal) FocusTribe(code string, animate bool) error {
	if f, ok := t.layer.Feature(code); ok && f.Geometry != nil {
		if err := t.Select(code); err != nil {
			return err
		}
		t.deps.Host.FitBounds(f.Geometry.Bound(), animate)
		return nil
	}
	if t.nations != nil {
		if n, ok := t.nations.Nation(code); ok {
			t.deps.Host.CenterOn(n.Center(), NationZoom, animate)
			return nil
		}
	}
	t.deps.Logger.Warn("unknown tribe, ignoring focus", "code", code)
	return ErrUnknownTribe
}
