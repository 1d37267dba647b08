package staticdata

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/tribal-hazard-overlays/internal/domain"
)

// FloodStages maps a USGS site code to its stage thresholds.
type FloodStages map[string]domain.FloodStages

// Lookup returns the thresholds for a site, or nil when none are configured.
func (s FloodStages) Lookup(siteCode string) *domain.FloodStages {
	st, ok := s[siteCode]
	if !ok {
		return nil
	}
	return &st
}

// LoadFloodStages reads a YAML file of the form
//
//	sites:
//	  "12113000": {action: 8, minor: 10, moderate: 12, major: 14}
//
// An empty path yields an empty table.
func LoadFloodStages(path string) (FloodStages, error) {
	if path == "" {
		return FloodStages{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read flood stages: %w", err)
	}
	var doc struct {
		Sites map[string]domain.FloodStages `yaml:"sites"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse flood stages: %w", err)
	}
	for site, st := range doc.Sites {
		if err := checkStages(st); err != nil {
			return nil, fmt.Errorf("flood stages for site %s: %w", site, err)
		}
	}
	if doc.Sites == nil {
		return FloodStages{}, nil
	}
	return FloodStages(doc.Sites), nil
}

// checkStages requires defined thresholds to be non-decreasing from action to major.
func checkStages(st domain.FloodStages) error {
	levels := []struct {
		name  string
		value float64
	}{
		{"action", st.Action},
		{"minor", st.Minor},
		{"moderate", st.Moderate},
		{"major", st.Major},
	}
	var prev float64
	prevName := ""
	for _, l := range levels {
		if l.value < 0 {
			return fmt.Errorf("%s stage is negative", l.name)
		}
		if l.value == 0 {
			continue
		}
		if l.value < prev {
			return fmt.Errorf("%s stage %g is below %s stage %g", l.name, l.value, prevName, prev)
		}
		prev, prevName = l.value, l.name
	}
	return nil
}
