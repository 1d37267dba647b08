// Package controls models the embed control panel: the region selector and
// the tribe dropdown, and how each choice drives the map.
package controls

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/couchcryptid/tribal-hazard-overlays/internal/staticdata"
)

// Mode selects how much of the panel is shown.
type Mode string

const (
	ModeFull    Mode = "full"
	ModeMinimal Mode = "minimal"
	ModeNone    Mode = "none"
)

// ParseMode validates a controls parameter. Empty means full.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeFull, nil
	case ModeFull, ModeMinimal, ModeNone:
		return m, nil
	default:
		return "", fmt.Errorf("unknown controls mode %q", s)
	}
}

// Catalog provides the static region and nation lists.
type Catalog interface {
	Regions() []staticdata.Region
	Nations() []staticdata.Nation
	NationsIn(region string) []staticdata.Nation
}

// Viewer moves the map to a region.
type Viewer interface {
	FocusRegion(code string, animate bool) bool
}

// TribeFocuser selects a tribal territory and moves the map to it.
type TribeFocuser interface {
	FocusTribe(code string, animate bool) error
}

// Option is one dropdown entry.
type Option struct {
	Value    string `json:"value"`
	Label    string `json:"label"`
	Selected bool   `json:"selected"`
}

// Model is the rendered panel.
type Model struct {
	Mode    Mode     `json:"mode"`
	Regions []Option `json:"regions,omitempty"`
	Tribes  []Option `json:"tribes,omitempty"`
}

// Panel holds the selector state of one map.
type Panel struct {
	mode    Mode
	catalog Catalog
	viewer  Viewer
	tribes  TribeFocuser
	logger  *slog.Logger

	mu     sync.Mutex
	region string
	tribe  string
}

// NewPanel creates a panel. tribes may be nil when the tribal overlay is not
// available, in which case the tribe dropdown is omitted.
func NewPanel(mode Mode, catalog Catalog, viewer Viewer, tribes TribeFocuser, logger *slog.Logger) *Panel {
	return &Panel{
		mode:    mode,
		catalog: catalog,
		viewer:  viewer,
		tribes:  tribes,
		logger:  logger,
	}
}

// Mode returns the panel mode.
func (p *Panel) Mode() Mode { return p.mode }

// Tribe returns the last selected tribe code.
func (p *Panel) Tribe() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tribe
}

// SelectRegion focuses the map on a region and narrows the tribe dropdown
// to its nations. Unknown regions leave the panel unchanged.
func (p *Panel) SelectRegion(code string, animate bool) bool {
	if !p.viewer.FocusRegion(code, animate) {
		return false
	}
	p.mu.Lock()
	p.region = code
	p.tribe = ""
	p.mu.Unlock()
	return true
}

// SelectTribe focuses the map on a tribe.
func (p *Panel) SelectTribe(code string, animate bool) error {
	if p.tribes == nil {
		return fmt.Errorf("select tribe %q: tribal overlay unavailable", code)
	}
	if err := p.tribes.FocusTribe(code, animate); err != nil {
		return fmt.Errorf("select tribe %q: %w", code, err)
	}
	p.mu.Lock()
	p.tribe = code
	p.mu.Unlock()
	p.logger.Debug("tribe selected", "tribe", code)
	return nil
}

// Model renders the panel for its mode. Minimal shows only the region
// selector; none shows nothing.
func (p *Panel) Model() Model {
	p.mu.Lock()
	region, tribe := p.region, p.tribe
	p.mu.Unlock()

	m := Model{Mode: p.mode}
	if p.mode == ModeNone {
		return m
	}

	for _, r := range p.catalog.Regions() {
		m.Regions = append(m.Regions, Option{Value: r.Code, Label: r.Name, Selected: r.Code == region})
	}
	if p.mode == ModeMinimal || p.tribes == nil {
		return m
	}

	nations := p.catalog.NationsIn(region)
	if len(nations) == 0 {
		nations = p.catalog.Nations()
	}
	for _, n := range nations {
		m.Tribes = append(m.Tribes, Option{Value: n.Code, Label: n.Name, Selected: n.Code == tribe})
	}
	return m
}
