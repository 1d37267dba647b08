package app

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/couchcryptid/tribal-hazard-overlays/internal/controls"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/layers"
)

// Params are the embed parameters read once when a map is created.
type Params struct {
	Region   string
	Tribe    string
	Layers   []string // layer keys, deduplicated, in display order
	Controls controls.Mode
}

// ParseParams reads region, tribe, layers and controls. Region and tribe are
// resolved later so an unknown code only logs a warning; unknown layer names
// and controls modes are errors.
func ParseParams(v url.Values) (Params, error) {
	mode, err := controls.ParseMode(v.Get("controls"))
	if err != nil {
		return Params{}, err
	}
	keys, err := ParseLayers(v.Get("layers"))
	if err != nil {
		return Params{}, err
	}
	return Params{
		Region:   strings.ToLower(strings.TrimSpace(v.Get("region"))),
		Tribe:    strings.ToLower(strings.TrimSpace(v.Get("tribe"))),
		Layers:   keys,
		Controls: mode,
	}, nil
}

// ParseLayers parses a comma separated list of layer keys.
func ParseLayers(s string) ([]string, error) {
	want := make(map[string]bool)
	for _, part := range strings.Split(s, ",") {
		key := strings.ToLower(strings.TrimSpace(part))
		if key == "" {
			continue
		}
		if !slices.Contains(layers.Keys, key) {
			return nil, fmt.Errorf("unknown layer %q", key)
		}
		want[key] = true
	}
	var out []string
	for _, key := range layers.Keys {
		if want[key] {
			out = append(out, key)
		}
	}
	return out, nil
}
