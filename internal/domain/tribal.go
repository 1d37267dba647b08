package domain

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// SelectionState is the interaction state of a tribal territory.
type SelectionState string

const (
	SelectionDefault     SelectionState = "default"
	SelectionHighlighted SelectionState = "highlighted"
	SelectionSelected    SelectionState = "selected"
)

var (
	territoryCodeKeys = []string{"code", "CODE", "TRIBE_CODE", "LARID"}
	territoryNameKeys = []string{"name", "NAME", "LARName", "NAMELSAD"}
)

// TribalTerritory is a tribal land boundary.
type TribalTerritory struct {
	Code       string
	Name       string
	Geometry   orb.Geometry
	Attributes geojson.Properties
}

// TerritoryFromFeature reads a boundary feature, deriving the code from the
// name when the feature has no code field.
func TerritoryFromFeature(f *geojson.Feature) (TribalTerritory, error) {
	name := firstString(f.Properties, territoryNameKeys)
	if name == "" {
		return TribalTerritory{}, &DataShapeError{Source: "tribal", Field: "name", Reason: "missing display name"}
	}
	if f.Geometry == nil {
		return TribalTerritory{}, &DataShapeError{Source: "tribal", Field: "geometry", Reason: "missing geometry for " + name}
	}
	code := firstString(f.Properties, territoryCodeKeys)
	if code == "" {
		code = TerritoryCode(name)
	}
	return TribalTerritory{
		Code:       strings.ToLower(code),
		Name:       name,
		Geometry:   f.Geometry,
		Attributes: f.Properties,
	}, nil
}

// Feature converts the territory into a feature keyed by its code.
func (t TribalTerritory) Feature() *geojson.Feature {
	f := geojson.NewFeature(t.Geometry)
	f.ID = t.Code
	for k, v := range t.Attributes {
		f.Properties[k] = v
	}
	f.Properties[PropCode] = t.Code
	f.Properties[PropName] = t.Name
	return f
}

// TerritoryCode derives a stable code from a display name: lower case with
// runs of non-alphanumerics collapsed to single hyphens.
func TerritoryCode(name string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	return b.String()
}

func firstString(p geojson.Properties, keys []string) string {
	for _, k := range keys {
		switch v := p[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}
