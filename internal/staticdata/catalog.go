// Package staticdata holds the embedded region and tribal nation catalogs and
// the default tribal boundary file.
package staticdata

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/tribal-hazard-overlays/internal/domain"
)

var (
	//go:embed data/regions.yaml
	regionsYAML []byte
	//go:embed data/nations.yaml
	nationsYAML []byte
	//go:embed data/tribal_boundaries.geojson
	boundariesGeoJSON []byte
)

// Region is a named map extent the viewport can focus on.
type Region struct {
	Code string  `yaml:"code"`
	Name string  `yaml:"name"`
	Lat  float64 `yaml:"lat"`
	Lon  float64 `yaml:"lon"`
	Zoom float64 `yaml:"zoom"`
}

// Center returns the region center as a lon/lat point.
func (r Region) Center() orb.Point { return orb.Point{r.Lon, r.Lat} }

// Nation is a tribal nation offered by the tribe selector.
type Nation struct {
	Code   string  `yaml:"code"`
	Name   string  `yaml:"name"`
	Region string  `yaml:"region"`
	Lat    float64 `yaml:"lat"`
	Lon    float64 `yaml:"lon"`
}

// Center returns the nation's reference point as a lon/lat point.
func (n Nation) Center() orb.Point { return orb.Point{n.Lon, n.Lat} }

// Catalog indexes regions and nations by code.
type Catalog struct {
	regions []Region
	nations []Nation
	region  map[string]int
	nation  map[string]int
}

// NewCatalog builds a catalog from already-parsed entries. Lookups return the
// first entry for a duplicated code.
func NewCatalog(regions []Region, nations []Nation) *Catalog {
	c := &Catalog{
		regions: regions,
		nations: nations,
		region:  make(map[string]int, len(regions)),
		nation:  make(map[string]int, len(nations)),
	}
	for i, r := range regions {
		if _, ok := c.region[r.Code]; !ok {
			c.region[r.Code] = i
		}
	}
	for i, n := range nations {
		if _, ok := c.nation[n.Code]; !ok {
			c.nation[n.Code] = i
		}
	}
	return c
}

// Load parses the embedded catalogs.
func Load() (*Catalog, error) {
	var regions struct {
		Regions []Region `yaml:"regions"`
	}
	if err := yaml.Unmarshal(regionsYAML, &regions); err != nil {
		return nil, fmt.Errorf("parse regions: %w", err)
	}
	var nations struct {
		Nations []Nation `yaml:"nations"`
	}
	if err := yaml.Unmarshal(nationsYAML, &nations); err != nil {
		return nil, fmt.Errorf("parse nations: %w", err)
	}
	return NewCatalog(regions.Regions, nations.Nations), nil
}

// Regions returns every region in catalog order.
func (c *Catalog) Regions() []Region {
	return append([]Region(nil), c.regions...)
}

// Region looks up a region by code.
func (c *Catalog) Region(code string) (Region, bool) {
	i, ok := c.region[code]
	if !ok {
		return Region{}, false
	}
	return c.regions[i], true
}

// Nations returns every nation in catalog order.
func (c *Catalog) Nations() []Nation {
	return append([]Nation(nil), c.nations...)
}

// Nation looks up a nation by code.
func (c *Catalog) Nation(code string) (Nation, bool) {
	i, ok := c.nation[code]
	if !ok {
		return Nation{}, false
	}
	return c.nations[i], true
}

// NationsIn returns the nations of a region sorted by name.
func (c *Catalog) NationsIn(region string) []Nation {
	var out []Nation
	for _, n := range c.nations {
		if n.Region == region {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Validate reports every catalog problem found: duplicate or empty codes,
// nations referencing unknown regions, and out-of-range coordinates or zooms.
func (c *Catalog) Validate() error {
	var errs []error

	seen := make(map[string]bool, len(c.regions))
	for _, r := range c.regions {
		if r.Code == "" {
			errs = append(errs, fmt.Errorf("region %q: empty code", r.Name))
			continue
		}
		if seen[r.Code] {
			errs = append(errs, fmt.Errorf("region %q: duplicate code", r.Code))
		}
		seen[r.Code] = true
		if r.Zoom < domain.MinZoom || r.Zoom > domain.MaxZoom {
			errs = append(errs, fmt.Errorf("region %q: zoom %g outside [%d, %d]", r.Code, r.Zoom, domain.MinZoom, domain.MaxZoom))
		}
		if err := checkLonLat(r.Lon, r.Lat); err != nil {
			errs = append(errs, fmt.Errorf("region %q: %w", r.Code, err))
		}
	}

	seen = make(map[string]bool, len(c.nations))
	for _, n := range c.nations {
		if n.Code == "" {
			errs = append(errs, fmt.Errorf("nation %q: empty code", n.Name))
			continue
		}
		if seen[n.Code] {
			errs = append(errs, fmt.Errorf("nation %q: duplicate code", n.Code))
		}
		seen[n.Code] = true
		if _, ok := c.Region(n.Region); !ok {
			errs = append(errs, fmt.Errorf("nation %q: unknown region %q", n.Code, n.Region))
		}
		if err := checkLonLat(n.Lon, n.Lat); err != nil {
			errs = append(errs, fmt.Errorf("nation %q: %w", n.Code, err))
		}
	}

	return errors.Join(errs...)
}

func checkLonLat(lon, lat float64) error {
	if lon < -180 || lon > 180 || lat < -90 || lat > 90 {
		return fmt.Errorf("coordinate (%g, %g) out of range", lon, lat)
	}
	return nil
}

// Boundaries returns the tribal boundary collection from path, or the embedded
// default when path is empty.
func Boundaries(path string) (*geojson.FeatureCollection, error) {
	data := boundariesGeoJSON
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read tribal boundaries: %w", err)
		}
		data = b
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parse tribal boundaries: %w", err)
	}
	return fc, nil
}

// ValidateBoundaries checks that every boundary feature yields a territory and
// that territory codes are unique.
func ValidateBoundaries(fc *geojson.FeatureCollection) error {
	var errs []error
	seen := make(map[string]bool, len(fc.Features))
	for i, f := range fc.Features {
		t, err := domain.TerritoryFromFeature(f)
		if err != nil {
			errs = append(errs, fmt.Errorf("feature %d: %w", i, err))
			continue
		}
		if seen[t.Code] {
			errs = append(errs, fmt.Errorf("feature %d: duplicate territory code %q", i, t.Code))
		}
		seen[t.Code] = true
	}
	return errors.Join(errs...)
}
