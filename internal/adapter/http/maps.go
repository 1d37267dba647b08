package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb"

	"github.com/couchcryptid/tribal-hazard-overlays/internal/app"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/controls"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/domain"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/layers"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/maphost"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/overlay"
)

// Inputs

type CreateMapInput struct {
	Region   string `query:"region" doc:"Region code" example:"wa"`
	Tribe    string `query:"tribe" doc:"Tribal code to select and focus" example:"yakama"`
	Layers   string `query:"layers" doc:"Comma separated layers to enable" example:"tribal,flood,weather"`
	Controls string `query:"controls" doc:"Control panel mode: full, minimal or none"`
}

type MapIDInput struct {
	ID string `path:"id" doc:"Map session ID"`
}

type LayerInput struct {
	MapIDInput
	Layer string `path:"layer" enum:"tribal,flood,weather,gages,streams" doc:"Layer key"`
}

type RegionInput struct {
	MapIDInput
	Body struct {
		Code    string `json:"code" doc:"Region code" example:"wa"`
		Animate bool   `json:"animate,omitempty"`
	}
}

type ViewportInput struct {
	MapIDInput
	Body struct {
		West  float64 `json:"west" minimum:"-180" maximum:"180"`
		South float64 `json:"south" minimum:"-90" maximum:"90"`
		East  float64 `json:"east" minimum:"-180" maximum:"180"`
		North float64 `json:"north" minimum:"-90" maximum:"90"`
		Zoom  float64 `json:"zoom" minimum:"0" maximum:"22"`
	}
}

type OverlayInput struct {
	LayerInput
	Body struct {
		Enabled *bool `json:"enabled,omitempty" doc:"Add or remove the layer"`
		Visible *bool `json:"visible,omitempty" doc:"Show or hide the layer"`
	}
}

type FeatureEventInput struct {
	LayerInput
	Feature string `path:"feature" doc:"Feature ID"`
	Event   string `path:"event" enum:"hover,hover_end,click"`
}

type TribeInput struct {
	MapIDInput
	Code    string `path:"code" doc:"Tribal code" example:"yakama"`
	Animate bool   `query:"animate"`
}

// Outputs

type MapOutput struct {
	Body app.MapState
}

type GeoJSONOutput struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

type ControlsOutput struct {
	Body controls.Model
}

func (s *Server) registerMaps(api huma.API) {
	huma.Post(api, "/api/v1/maps", s.createMap, huma.OperationTags("maps"), func(o *huma.Operation) {
		o.DefaultStatus = http.StatusCreated
	})
	huma.Get(api, "/api/v1/maps/{id}", s.getMap, huma.OperationTags("maps"))
	huma.Delete(api, "/api/v1/maps/{id}", s.deleteMap, huma.OperationTags("maps"))
	huma.Post(api, "/api/v1/maps/{id}/region", s.focusRegion, huma.OperationTags("view"))
	huma.Post(api, "/api/v1/maps/{id}/viewport", s.viewSettled, huma.OperationTags("view"))
	huma.Put(api, "/api/v1/maps/{id}/overlays/{layer}", s.putOverlay, huma.OperationTags("overlays"))
	huma.Get(api, "/api/v1/maps/{id}/overlays/{layer}", s.getOverlay, huma.OperationTags("overlays"))
	huma.Post(api, "/api/v1/maps/{id}/overlays/{layer}/features/{feature}/{event}", s.featureEvent, huma.OperationTags("overlays"))
	huma.Post(api, "/api/v1/maps/{id}/tribes/{code}", s.focusTribe, huma.OperationTags("view"))
	huma.Get(api, "/api/v1/maps/{id}/controls", s.getControls, huma.OperationTags("controls"))
}

func (s *Server) lookup(id string) (*app.Map, error) {
	m, ok := s.maps.Get(id)
	if !ok {
		return nil, huma.Error404NotFound("map not found: " + id)
	}
	return m, nil
}

func (s *Server) createMap(ctx context.Context, in *CreateMapInput) (*MapOutput, error) {
	params, err := app.ParseParams(url.Values{
		"region":   {in.Region},
		"tribe":    {in.Tribe},
		"layers":   {in.Layers},
		"controls": {in.Controls},
	})
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	m, err := s.maps.Create(ctx, params)
	if err != nil {
		// Overlays that failed are reported on the session's error indicator.
		s.logger.Warn("map created with unavailable overlays", "map_id", m.ID, "error", err)
	}
	return &MapOutput{Body: m.State()}, nil
}

func (s *Server) getMap(_ context.Context, in *MapIDInput) (*MapOutput, error) {
	m, err := s.lookup(in.ID)
	if err != nil {
		return nil, err
	}
	return &MapOutput{Body: m.State()}, nil
}

func (s *Server) deleteMap(_ context.Context, in *MapIDInput) (*struct{}, error) {
	if !s.maps.Delete(in.ID) {
		return nil, huma.Error404NotFound("map not found: " + in.ID)
	}
	return &struct{}{}, nil
}

func (s *Server) focusRegion(_ context.Context, in *RegionInput) (*MapOutput, error) {
	m, err := s.lookup(in.ID)
	if err != nil {
		return nil, err
	}
	m.Panel.SelectRegion(in.Body.Code, in.Body.Animate)
	return &MapOutput{Body: m.State()}, nil
}

func (s *Server) viewSettled(_ context.Context, in *ViewportInput) (*MapOutput, error) {
	m, err := s.lookup(in.ID)
	if err != nil {
		return nil, err
	}
	b := in.Body
	if b.West > b.East || b.South > b.North {
		return nil, huma.Error422UnprocessableEntity("bounds must satisfy west <= east and south <= north")
	}
	bound := orb.Bound{Min: orb.Point{b.West, b.South}, Max: orb.Point{b.East, b.North}}
	m.ViewSettled(domain.Viewport{Center: bound.Center(), Zoom: b.Zoom, Bounds: bound})
	return &MapOutput{Body: m.State()}, nil
}

func (s *Server) putOverlay(ctx context.Context, in *OverlayInput) (*MapOutput, error) {
	m, err := s.lookup(in.ID)
	if err != nil {
		return nil, err
	}
	if en := in.Body.Enabled; en != nil {
		if *en {
			err = m.EnableLayer(ctx, in.Layer)
		} else {
			err = m.DisableLayer(in.Layer)
		}
		if err != nil {
			return nil, overlayError(err)
		}
	}
	if vis := in.Body.Visible; vis != nil {
		if err := m.SetVisible(in.Layer, *vis); err != nil {
			return nil, overlayError(err)
		}
	}
	return &MapOutput{Body: m.State()}, nil
}

func (s *Server) getOverlay(_ context.Context, in *LayerInput) (*GeoJSONOutput, error) {
	m, err := s.lookup(in.ID)
	if err != nil {
		return nil, err
	}
	a, err := m.Adapter(in.Layer)
	if err != nil {
		return nil, overlayError(err)
	}
	if !a.Added() {
		return nil, huma.Error404NotFound(fmt.Sprintf("%s is not on the map", in.Layer))
	}
	data, err := json.Marshal(a.Layer().GeoJSON())
	if err != nil {
		return nil, huma.Error500InternalServerError("encode overlay", err)
	}
	return &GeoJSONOutput{ContentType: "application/geo+json", Body: data}, nil
}

func (s *Server) featureEvent(_ context.Context, in *FeatureEventInput) (*MapOutput, error) {
	m, err := s.lookup(in.ID)
	if err != nil {
		return nil, err
	}
	ev, err := overlay.ParseEventType(in.Event)
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	if err := m.FeatureEvent(in.Layer, in.Feature, ev); err != nil {
		return nil, overlayError(err)
	}
	return &MapOutput{Body: m.State()}, nil
}

func (s *Server) focusTribe(_ context.Context, in *TribeInput) (*MapOutput, error) {
	m, err := s.lookup(in.ID)
	if err != nil {
		return nil, err
	}
	if err := m.Panel.SelectTribe(in.Code, in.Animate); err != nil {
		if errors.Is(err, layers.ErrUnknownTribe) {
			return nil, huma.Error404NotFound(err.Error())
		}
		return nil, huma.Error409Conflict(err.Error())
	}
	return &MapOutput{Body: m.State()}, nil
}

func (s *Server) getControls(_ context.Context, in *MapIDInput) (*ControlsOutput, error) {
	m, err := s.lookup(in.ID)
	if err != nil {
		return nil, err
	}
	return &ControlsOutput{Body: m.Panel.Model()}, nil
}

// overlayError maps layer errors to API statuses.
func overlayError(err error) error {
	switch {
	case errors.Is(err, app.ErrUnknownLayer), errors.Is(err, overlay.ErrUnknownFeature),
		errors.Is(err, maphost.ErrNoOverlay):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, app.ErrClosed):
		return huma.Error404NotFound("map not found: " + err.Error())
	default:
		// Everything else is an upstream load failure.
		return huma.Error502BadGateway(err.Error())
	}
}
