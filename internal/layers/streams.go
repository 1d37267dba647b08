package layers

import (
	"context"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/tribal-hazard-overlays/internal/adapter/arcgis"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/overlay"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/popup"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/style"
)

// NHDFlowlines is the NHDPlus HR NetworkNHDFlowline layer.
const NHDFlowlines = 3

// StreamsMinZoom is the lowest zoom at which flowlines are queried.
const StreamsMinZoom = 10

var streamFields = []string{"GNIS_NAME", "FTYPE", "FCODE", "StreamOrde", "LengthKM"}

// StreamsConfig configures the stream flowline adapter.
type StreamsConfig struct {
	LayerID int
}

// Streams shows NHDPlus flowlines for the current view once zoomed in far
// enough. It has no refresh loop.
type Streams struct {
	base
	querier arcgis.Querier
	cfg     StreamsConfig
	view    viewReload
}

// NewStreams creates a stream flowline adapter.
func NewStreams(querier arcgis.Querier, cfg StreamsConfig, deps Deps) *Streams {
	if cfg.LayerID == 0 {
		cfg.LayerID = NHDFlowlines
	}
	return &Streams{
		base:    newBase(KeyStreams, deps),
		querier: querier,
		cfg:     cfg,
		view: viewReload{
			minZoom:   StreamsMinZoom,
			tolerance: deps.BoundsTolerance,
		},
	}
}

// Fetch queries flowlines intersecting b.
func (s *Streams) Fetch(ctx context.Context, b orb.Bound) (*geojson.FeatureCollection, error) {
	return s.querier.Query(ctx, s.cfg.LayerID, arcgis.QueryOptions{Bounds: &b, OutFields: streamFields})
}

// ToRenderable applies the flowline style and a generic popup.
func (s *Streams) ToRenderable(fc *geojson.FeatureCollection) []overlay.Feature {
	out := make([]overlay.Feature, 0, len(fc.Features))
	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		out = append(out, overlay.Feature{
			ID:         featureID(f),
			Geometry:   f.Geometry,
			Properties: f.Properties,
			Style:      style.Stream(),
			Popup:      popup.Point(f.Properties),
		})
	}
	return out
}

func (s *Streams) fetcher(b orb.Bound) Fetcher {
	return func(ctx context.Context) ([]overlay.Feature, error) {
		fc, err := s.Fetch(ctx, b)
		if err != nil {
			return nil, err
		}
		return s.ToRenderable(fc), nil
	}
}

// AddToMap loads flowlines for the current view, or registers an empty
// overlay when zoomed out, and reloads as the view settles.
func (s *Streams) AddToMap(ctx context.Context) error {
	if s.Added() {
		return nil
	}
	bound, ok := s.view.claim(s.deps.Host.View())
	var fetch Fetcher
	if ok {
		fetch = s.fetcher(bound)
	}
	err := s.add(ctx, fetch, 0, nil, func() {
		s.watchView(s.LoadForCurrentView)
	})
	if err != nil && ok {
		s.view.failed(bound)
	}
	return err
}

// LoadForCurrentView reloads flowlines when zoomed in and the view has moved
// beyond the bounds tolerance. It reports whether a query was issued.
func (s *Streams) LoadForCurrentView(ctx context.Context) (bool, error) {
	return s.reloadForView(ctx, &s.view, s.fetcher)
}

// RemoveFromMap deregisters the overlay.
func (s *Streams) RemoveFromMap() {
	s.remove()
	s.view.reset()
}
