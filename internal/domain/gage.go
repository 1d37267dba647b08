package domain

import (
	"sort"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// USGS parameter codes requested by default.
const (
	ParamDischarge     = "00060"
	ParamGageHeight    = "00065"
	ParamWaterTemp     = "00010"
	ParamPrecipitation = "00045"
)

// Parameter describes how a USGS parameter code is exposed on a gage feature.
type Parameter struct {
	Code  string
	Key   string
	Label string
	Unit  string
}

var parameters = map[string]Parameter{
	ParamDischarge:     {Code: ParamDischarge, Key: "discharge", Label: "Streamflow", Unit: "ft3/s"},
	ParamGageHeight:    {Code: ParamGageHeight, Key: "gage_height", Label: "Gage height", Unit: "ft"},
	ParamWaterTemp:     {Code: ParamWaterTemp, Key: "water_temp", Label: "Water temperature", Unit: "deg C"},
	ParamPrecipitation: {Code: ParamPrecipitation, Key: "precipitation", Label: "Precipitation", Unit: "in"},
}

// LookupParameter returns the exposure for a parameter code. Unknown codes get
// a generic "param_<code>" key.
func LookupParameter(code string) Parameter {
	if p, ok := parameters[code]; ok {
		return p
	}
	return Parameter{Code: code, Key: "param_" + code, Label: "Parameter " + code}
}

// ParameterByKey finds the exposure whose property key is key.
func ParameterByKey(key string) (Parameter, bool) {
	for _, p := range parameters {
		if p.Key == key {
			return p, true
		}
	}
	if code, ok := strings.CutPrefix(key, "param_"); ok && code != "" {
		return LookupParameter(code), true
	}
	return Parameter{}, false
}

// Reading is the latest observation of one parameter at a site.
type Reading struct {
	Parameter Parameter
	Value     float64
	Unit      string
	Time      time.Time
}

// GageSite is a USGS monitoring location with every reading observed in one fetch.
type GageSite struct {
	SiteCode string
	Name     string
	Location orb.Point // lon, lat
	Readings map[string]Reading // keyed by parameter code
	Status   FloodStatus
}

// Reading returns the reading for a parameter code.
func (g GageSite) Reading(code string) (Reading, bool) {
	r, ok := g.Readings[code]
	return r, ok
}

// MergeGageSites collapses sites sharing a site code into one, combining their
// readings. The first occurrence fixes the output position of a site; later
// duplicates contribute readings and fill a missing name or location.
func MergeGageSites(sites []GageSite) []GageSite {
	index := make(map[string]int, len(sites))
	out := make([]GageSite, 0, len(sites))
	for _, s := range sites {
		i, ok := index[s.SiteCode]
		if !ok {
			merged := s
			merged.Readings = make(map[string]Reading, len(s.Readings))
			for code, r := range s.Readings {
				merged.Readings[code] = r
			}
			index[s.SiteCode] = len(out)
			out = append(out, merged)
			continue
		}
		existing := &out[i]
		if existing.Name == "" {
			existing.Name = s.Name
		}
		if existing.Location == (orb.Point{}) {
			existing.Location = s.Location
		}
		for code, r := range s.Readings {
			if prev, seen := existing.Readings[code]; seen && prev.Time.After(r.Time) {
				continue
			}
			existing.Readings[code] = r
		}
	}
	return out
}

// Feature converts the site into a point feature carrying one property per
// available parameter plus its unit.
func (g GageSite) Feature() *geojson.Feature {
	f := geojson.NewFeature(g.Location)
	f.ID = g.SiteCode
	f.Properties[PropSiteCode] = g.SiteCode
	f.Properties[PropSiteName] = g.Name
	f.Properties[PropFloodStatus] = string(g.Status)

	var latest time.Time
	for _, code := range g.parameterCodes() {
		r := g.Readings[code]
		f.Properties[r.Parameter.Key] = r.Value
		f.Properties[r.Parameter.Key+"_unit"] = r.Unit
		if r.Time.After(latest) {
			latest = r.Time
		}
	}
	setTime(f.Properties, PropObservedAt, latest)
	return f
}

func (g GageSite) parameterCodes() []string {
	codes := make([]string, 0, len(g.Readings))
	for code := range g.Readings {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// FloodStatus is the computed flood state of a gage.
type FloodStatus string

const (
	FloodStatusMajor    FloodStatus = "major"
	FloodStatusModerate FloodStatus = "moderate"
	FloodStatusMinor    FloodStatus = "minor"
	FloodStatusAction   FloodStatus = "action"
	FloodStatusNormal   FloodStatus = "normal"
	FloodStatusUnknown  FloodStatus = "unknown"
	FloodStatusNoData   FloodStatus = "no_data"
)

// FloodStages holds the NWS stage thresholds for a site, in feet. Zero means
// the stage is not defined.
type FloodStages struct {
	Action   float64 `yaml:"action"`
	Minor    float64 `yaml:"minor"`
	Moderate float64 `yaml:"moderate"`
	Major    float64 `yaml:"major"`
}

// DetermineFloodStatus derives a site's flood status from its gage height and
// optional thresholds.
func DetermineFloodStatus(site GageSite, stages *FloodStages) FloodStatus {
	height, ok := site.Reading(ParamGageHeight)
	if !ok {
		return FloodStatusNoData
	}
	if stages == nil {
		return FloodStatusUnknown
	}
	h := height.Value
	switch {
	case stages.Major > 0 && h >= stages.Major:
		return FloodStatusMajor
	case stages.Moderate > 0 && h >= stages.Moderate:
		return FloodStatusModerate
	case stages.Minor > 0 && h >= stages.Minor:
		return FloodStatusMinor
	case stages.Action > 0 && h >= stages.Action:
		return FloodStatusAction
	default:
		return FloodStatusNormal
	}
}
