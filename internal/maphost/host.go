// Package maphost owns the state of one map: the viewport, the named overlay
// registry, and the loading and error indicators shown to the user.
package maphost

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"

	"github.com/couchcryptid/tribal-hazard-overlays/internal/domain"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/overlay"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/staticdata"
)

// ErrorDisplay is how long an error stays on the indicator.
const ErrorDisplay = 8 * time.Second

// ErrNoOverlay is returned when an operation names an overlay that is not registered.
var ErrNoOverlay = errors.New("overlay not registered")

// State is the viewport lifecycle state.
type State string

const (
	StateInitializing State = "initializing"
	StateIdle         State = "idle"
)

// RegionLookup resolves region codes to stored views.
type RegionLookup interface {
	Region(code string) (staticdata.Region, bool)
}

// Overlay is a registered layer and its visibility.
type Overlay struct {
	Name    string
	Layer   *overlay.Layer
	Visible bool
}

// Status is the loading and error indicator state.
type Status struct {
	Loading []string  // overlays with a load in progress, sorted
	Error   string    // empty once ErrorDisplay has elapsed
	ErrorAt time.Time // zero when Error is empty
}

// ViewListener is notified after every viewport change.
type ViewListener func(domain.Viewport)

// Host is the map instance shared by every data layer of one session.
type Host struct {
	regions RegionLookup
	clock   clockwork.Clock
	logger  *slog.Logger

	mu        sync.RWMutex
	state     State
	region    string
	view      domain.Viewport
	overlays  map[string]*Overlay
	order     []string
	loading   map[string]int
	lastErr   string
	lastErrAt time.Time
	listeners map[int]ViewListener
	nextID    int
}

// New creates a host showing the whole world until a region is focused.
func New(regions RegionLookup, clock clockwork.Clock, logger *slog.Logger) *Host {
	return &Host{
		regions:   regions,
		clock:     clock,
		logger:    logger,
		state:     StateInitializing,
		view:      domain.ViewportAt(orb.Point{0, 0}, domain.MinZoom),
		overlays:  make(map[string]*Overlay),
		loading:   make(map[string]int),
		listeners: make(map[int]ViewListener),
	}
}

// State returns the viewport state.
func (h *Host) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// Region returns the code of the last focused region, empty if none.
func (h *Host) Region() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.region
}

// View returns the current viewport.
func (h *Host) View() domain.Viewport {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.view
}

// FocusRegion moves the viewport to a region's stored center and zoom. An
// unknown code logs a warning and leaves the view unchanged; the return value
// reports whether the view moved.
func (h *Host) FocusRegion(code string, animate bool) bool {
	r, ok := h.regions.Region(code)
	if !ok {
		h.logger.Warn("unknown region, ignoring focus", "region", code)
		return false
	}
	v := domain.ViewportAt(r.Center(), r.Zoom)
	v.Animated = animate

	h.mu.Lock()
	h.region = r.Code
	h.mu.Unlock()

	h.setView(v)
	h.logger.Debug("focused region", "region", r.Code, "zoom", r.Zoom, "animated", animate)
	return true
}

// FitBounds moves the viewport to the tightest whole zoom containing b.
func (h *Host) FitBounds(b orb.Bound, animate bool) {
	v := domain.ViewportFor(b)
	v.Animated = animate
	h.setView(v)
}

// CenterOn moves the viewport to center at zoom.
func (h *Host) CenterOn(center orb.Point, zoom float64, animate bool) {
	v := domain.ViewportAt(center, zoom)
	v.Animated = animate
	h.setView(v)
}

// SetView records a viewport reported by the renderer after a pan or zoom.
func (h *Host) SetView(b orb.Bound, zoom float64) {
	h.setView(domain.Viewport{Center: b.Center(), Zoom: zoom, Bounds: b})
}

func (h *Host) setView(v domain.Viewport) {
	h.mu.Lock()
	h.view = v
	h.state = StateIdle
	listeners := h.listenersLocked()
	h.mu.Unlock()

	for _, fn := range listeners {
		fn(v)
	}
}

func (h *Host) listenersLocked() []ViewListener {
	ids := make([]int, 0, len(h.listeners))
	for id := range h.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]ViewListener, 0, len(ids))
	for _, id := range ids {
		out = append(out, h.listeners[id])
	}
	return out
}

// OnViewSettled registers fn for viewport changes. Listeners run on the
// goroutine that changed the view. The returned function unregisters fn.
func (h *Host) OnViewSettled(fn ViewListener) (dispose func()) {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.listeners[id] = fn
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.listeners, id)
		h.mu.Unlock()
	}
}

// AddOverlay registers a layer under name, replacing any layer already
// registered under that name.
func (h *Host) AddOverlay(name string, layer *overlay.Layer, visible bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.overlays[name]; exists {
		h.logger.Debug("replacing overlay", "overlay", name)
	} else {
		h.order = append(h.order, name)
	}
	h.overlays[name] = &Overlay{Name: name, Layer: layer, Visible: visible}
}

// RemoveOverlay unregisters name. Removing an absent name is a no-op that
// returns false.
func (h *Host) RemoveOverlay(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.overlays[name]; !ok {
		return false
	}
	delete(h.overlays, name)
	h.order = slices.DeleteFunc(h.order, func(n string) bool { return n == name })
	return true
}

// Overlay returns the registration for name.
func (h *Host) Overlay(name string) (Overlay, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	o, ok := h.overlays[name]
	if !ok {
		return Overlay{}, false
	}
	return *o, true
}

// Overlays returns every registration in the order first added.
func (h *Host) Overlays() []Overlay {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Overlay, 0, len(h.order))
	for _, name := range h.order {
		out = append(out, *h.overlays[name])
	}
	return out
}

// SetVisible toggles an overlay without unregistering it.
func (h *Host) SetVisible(name string, visible bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	o, ok := h.overlays[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoOverlay, name)
	}
	o.Visible = visible
	return nil
}

// DispatchFeatureEvent forwards a pointer event from the renderer to the
// overlay's subscribers.
func (h *Host) DispatchFeatureEvent(name, featureID string, ev overlay.EventType) error {
	o, ok := h.Overlay(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoOverlay, name)
	}
	return o.Layer.Emit(ev, featureID)
}

// BeginLoading marks name as loading. The returned function ends the load and
// reports err on the error indicator when non-nil.
func (h *Host) BeginLoading(name string) (done func(err error)) {
	h.mu.Lock()
	h.loading[name]++
	h.mu.Unlock()

	var once sync.Once
	return func(err error) {
		once.Do(func() {
			h.mu.Lock()
			h.loading[name]--
			if h.loading[name] <= 0 {
				delete(h.loading, name)
			}
			h.mu.Unlock()
			if err != nil {
				h.ReportError(name, err)
			}
		})
	}
}

// ReportError shows err on the error indicator for ErrorDisplay.
func (h *Host) ReportError(name string, err error) {
	h.mu.Lock()
	h.lastErr = fmt.Sprintf("%s unavailable: %v", name, err)
	h.lastErrAt = h.clock.Now()
	h.mu.Unlock()
}

// Status returns the loading and error indicators.
func (h *Host) Status() Status {
	h.mu.RLock()
	defer h.mu.RUnlock()

	loading := make([]string, 0, len(h.loading))
	for name := range h.loading {
		loading = append(loading, name)
	}
	slices.Sort(loading)

	st := Status{Loading: loading}
	if h.lastErr != "" && h.clock.Since(h.lastErrAt) < ErrorDisplay {
		st.Error = h.lastErr
		st.ErrorAt = h.lastErrAt
	}
	return st
}
