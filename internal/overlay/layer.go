// Package overlay implements the renderable layer registered with a map host.
// A Layer keeps its identity across data updates so overlay-control entries
// and event subscriptions stay valid when its contents are replaced.
package overlay

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/tribal-hazard-overlays/internal/style"
)

// Property keys added to every rendered feature.
const (
	PropStyle = "style"
	PropPopup = "popup"
)

// EventType is a pointer interaction on a feature.
type EventType string

const (
	EventHover    EventType = "hover"
	EventHoverEnd EventType = "hover_end"
	EventClick    EventType = "click"
)

// ErrUnknownFeature is returned when an event targets a feature not in the layer.
var ErrUnknownFeature = errors.New("unknown feature")

// ParseEventType validates an event name.
func ParseEventType(s string) (EventType, error) {
	switch t := EventType(s); t {
	case EventHover, EventHoverEnd, EventClick:
		return t, nil
	default:
		return "", fmt.Errorf("unknown event type %q", s)
	}
}

// Feature is one styled, popup-bearing record of a layer.
type Feature struct {
	ID         string
	Geometry   orb.Geometry
	Properties geojson.Properties
	Style      style.Style
	Popup      string
}

func (f *Feature) clone() Feature {
	c := *f
	c.Properties = maps.Clone(f.Properties)
	return c
}

// Event is delivered to subscribers.
type Event struct {
	Type    EventType
	Layer   string
	Feature Feature
}

// Handler receives feature events.
type Handler func(Event)

// Layer is a named, mutable set of features.
type Layer struct {
	name string

	mu       sync.RWMutex
	features []*Feature
	index    map[string]int
	handlers map[EventType]map[int]Handler
	nextSub  int
}

// New creates an empty layer.
func New(name string) *Layer {
	return &Layer{
		name:     name,
		index:    make(map[string]int),
		handlers: make(map[EventType]map[int]Handler),
	}
}

// Name returns the layer's display name.
func (l *Layer) Name() string { return l.name }

// Replace clears the layer and adds features in order. Features without an ID
// are keyed by their position.
func (l *Layer) Replace(features []Feature) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.features = make([]*Feature, 0, len(features))
	l.index = make(map[string]int, len(features))
	for i := range features {
		f := features[i]
		if f.ID == "" {
			f.ID = strconv.Itoa(i)
		}
		if _, dup := l.index[f.ID]; dup {
			f.ID = f.ID + "#" + strconv.Itoa(i)
		}
		f.Properties = maps.Clone(f.Properties)
		if f.Properties == nil {
			f.Properties = geojson.Properties{}
		}
		l.index[f.ID] = len(l.features)
		l.features = append(l.features, &f)
	}
}

// Clear removes every feature.
func (l *Layer) Clear() { l.Replace(nil) }

// Len returns the number of features.
func (l *Layer) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.features)
}

// Features returns a copy of the layer's features in order.
func (l *Layer) Features() []Feature {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Feature, len(l.features))
	for i, f := range l.features {
		out[i] = f.clone()
	}
	return out
}

// Feature looks up a feature by ID.
func (l *Layer) Feature(id string) (Feature, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i, ok := l.index[id]
	if !ok {
		return Feature{}, false
	}
	return l.features[i].clone(), true
}

// SetStyle restyles one feature. It reports false when the feature is absent.
func (l *Layer) SetStyle(id string, s style.Style) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	i, ok := l.index[id]
	if !ok {
		return false
	}
	l.features[i].Style = s
	return true
}

// SetProperty sets one attribute on a feature. It reports false when the
// feature is absent.
func (l *Layer) SetProperty(id, key string, value any) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	i, ok := l.index[id]
	if !ok {
		return false
	}
	l.features[i].Properties[key] = value
	return true
}

// Bound returns the bounding box of every feature, and false for an empty layer.
func (l *Layer) Bound() (orb.Bound, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var b orb.Bound
	found := false
	for _, f := range l.features {
		if f.Geometry == nil {
			continue
		}
		if !found {
			b = f.Geometry.Bound()
			found = true
			continue
		}
		b = b.Union(f.Geometry.Bound())
	}
	return b, found
}

// On subscribes h to events of type t. The returned function removes the
// subscription and is safe to call more than once.
func (l *Layer) On(t EventType, h Handler) (dispose func()) {
	l.mu.Lock()
	id := l.nextSub
	l.nextSub++
	if l.handlers[t] == nil {
		l.handlers[t] = make(map[int]Handler)
	}
	l.handlers[t][id] = h
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.handlers[t], id)
			l.mu.Unlock()
		})
	}
}

// Subscribers returns the number of handlers registered for t.
func (l *Layer) Subscribers(t EventType) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.handlers[t])
}

// Emit delivers an event for a feature to every subscriber of t. Handlers run
// on the caller's goroutine without the layer lock held, in subscription order.
func (l *Layer) Emit(t EventType, featureID string) error {
	l.mu.RLock()
	i, ok := l.index[featureID]
	if !ok {
		l.mu.RUnlock()
		return fmt.Errorf("%s: %w: %s", l.name, ErrUnknownFeature, featureID)
	}
	ev := Event{Type: t, Layer: l.name, Feature: l.features[i].clone()}
	ids := make([]int, 0, len(l.handlers[t]))
	for id := range l.handlers[t] {
		ids = append(ids, id)
	}
	handlers := make([]Handler, 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		handlers = append(handlers, l.handlers[t][id])
	}
	l.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
	return nil
}

// GeoJSON renders the layer as a FeatureCollection with style and popup
// attached to each feature's properties.
func (l *Layer) GeoJSON() *geojson.FeatureCollection {
	l.mu.RLock()
	defer l.mu.RUnlock()

	fc := geojson.NewFeatureCollection()
	fc.Features = make([]*geojson.Feature, 0, len(l.features))
	for _, f := range l.features {
		gf := geojson.NewFeature(f.Geometry)
		gf.ID = f.ID
		for k, v := range f.Properties {
			gf.Properties[k] = v
		}
		gf.Properties[PropStyle] = f.Style
		if f.Popup != "" {
			gf.Properties[PropPopup] = f.Popup
		}
		fc.Append(gf)
	}
	return fc
}
