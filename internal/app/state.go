package app

import (
	"time"

	"github.com/couchcryptid/tribal-hazard-overlays/internal/domain"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/layers"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/maphost"
)

// ViewState is the serialized viewport.
type ViewState struct {
	Center   [2]float64 `json:"center" doc:"Longitude, latitude"`
	Zoom     float64    `json:"zoom"`
	Bounds   [4]float64 `json:"bounds" doc:"West, south, east, north"`
	Animated bool       `json:"animated"`
}

// OverlayState is one layer's entry in the overlay control.
type OverlayState struct {
	Key          string `json:"key"`
	Name         string `json:"name"`
	Enabled      bool   `json:"enabled"`
	Visible      bool   `json:"visible"`
	FeatureCount int    `json:"feature_count"`
}

// MapState is the serialized state of a map session.
type MapState struct {
	ID            string         `json:"id"`
	CreatedAt     time.Time      `json:"created_at"`
	State         maphost.State  `json:"state"`
	Region        string         `json:"region,omitempty"`
	View          ViewState      `json:"view"`
	Overlays      []OverlayState `json:"overlays"`
	Loading       []string       `json:"loading"`
	Error         string         `json:"error,omitempty"`
	SelectedTribe string         `json:"selected_tribe,omitempty"`
	Controls      string         `json:"controls"`
}

// NewViewState serializes a viewport.
func NewViewState(v domain.Viewport) ViewState {
	return ViewState{
		Center:   [2]float64{v.Center.Lon(), v.Center.Lat()},
		Zoom:     v.Zoom,
		Bounds:   [4]float64{v.Bounds.Left(), v.Bounds.Bottom(), v.Bounds.Right(), v.Bounds.Top()},
		Animated: v.Animated,
	}
}

// State snapshots the session.
func (m *Map) State() MapState {
	status := m.Host.Status()
	st := MapState{
		ID:            m.ID,
		CreatedAt:     m.CreatedAt,
		State:         m.Host.State(),
		Region:        m.Host.Region(),
		View:          NewViewState(m.Host.View()),
		Loading:       status.Loading,
		Error:         status.Error,
		SelectedTribe: m.Tribal.Selected(),
		Controls:      string(m.Panel.Mode()),
	}
	for _, key := range layers.Keys {
		a := m.adapters[key]
		ov := OverlayState{Key: key, Name: a.Name()}
		if o, ok := m.Host.Overlay(a.Name()); ok {
			ov.Enabled = true
			ov.Visible = o.Visible
			ov.FeatureCount = o.Layer.Len()
		}
		st.Overlays = append(st.Overlays, ov)
	}
	return st
}
