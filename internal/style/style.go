// Package style holds the per-domain styling rules applied to overlay features.
package style

import "github.com/couchcryptid/tribal-hazard-overlays/internal/domain"

// Style is the rendering hint attached to a feature. Radius applies to point
// markers only.
type Style struct {
	Color       string  `json:"color"`
	FillColor   string  `json:"fillColor,omitempty"`
	Weight      float64 `json:"weight"`
	Opacity     float64 `json:"opacity"`
	FillOpacity float64 `json:"fillOpacity"`
	DashArray   string  `json:"dashArray,omitempty"`
	Radius      float64 `json:"radius,omitempty"`
}

var floodTierColors = map[domain.RiskTier]string{
	domain.RiskHigh:     "#0033CC",
	domain.RiskModerate: "#66A3FF",
	domain.RiskLow:      "#B3D1FF",
	domain.RiskUnknown:  "#999999",
}

// FloodZone styles a flood zone by risk tier. SFHA zones get a heavier stroke
// and a denser fill.
func FloodZone(tier domain.RiskTier, sfha bool) Style {
	color, ok := floodTierColors[tier]
	if !ok {
		color = floodTierColors[domain.RiskUnknown]
	}
	s := Style{
		Color:       color,
		FillColor:   color,
		Weight:      1,
		Opacity:     0.8,
		FillOpacity: 0.25,
	}
	if sfha {
		s.Weight = 2
		s.FillOpacity = 0.5
	}
	return s
}

var severityColors = map[domain.Severity]string{
	domain.SeverityExtreme:  "#8B0000",
	domain.SeveritySevere:   "#FF0000",
	domain.SeverityModerate: "#FFA500",
	domain.SeverityMinor:    "#FFFF00",
	domain.SeverityUnknown:  "#808080",
}

// AlertDash is the outline dash pattern for every severity except Extreme.
const AlertDash = "5, 5"

// Alert styles a weather alert by severity.
func Alert(sev domain.Severity) Style {
	color, ok := severityColors[sev]
	if !ok {
		color = severityColors[domain.SeverityUnknown]
	}
	s := Style{
		Color:       color,
		FillColor:   color,
		Weight:      2,
		Opacity:     0.9,
		FillOpacity: 0.3,
		DashArray:   AlertDash,
	}
	if sev == domain.SeverityExtreme {
		s.DashArray = ""
		s.Weight = 3
	}
	return s
}

// GagePalette is the marker color for each flood status.
var GagePalette = map[domain.FloodStatus]string{
	domain.FloodStatusMajor:    "#8B008B",
	domain.FloodStatusModerate: "#FF0000",
	domain.FloodStatusMinor:    "#FFA500",
	domain.FloodStatusAction:   "#FFFF00",
	domain.FloodStatusNormal:   "#00AA00",
	domain.FloodStatusUnknown:  "#808080",
	domain.FloodStatusNoData:   "#CCCCCC",
}

// Gage styles a river gage marker by flood status.
func Gage(status domain.FloodStatus) Style {
	color, ok := GagePalette[status]
	if !ok {
		color = GagePalette[domain.FloodStatusUnknown]
	}
	return Style{
		Color:       "#333333",
		FillColor:   color,
		Weight:      1,
		Opacity:     1,
		FillOpacity: 0.9,
		Radius:      6,
	}
}

var tribalPresets = map[domain.SelectionState]Style{
	domain.SelectionDefault: {
		Color: "#8B4513", FillColor: "#D2B48C", Weight: 2, Opacity: 0.8, FillOpacity: 0.15,
	},
	domain.SelectionHighlighted: {
		Color: "#D2691E", FillColor: "#F4A460", Weight: 3, Opacity: 1, FillOpacity: 0.3,
	},
	domain.SelectionSelected: {
		Color: "#FF6600", FillColor: "#FFA500", Weight: 4, Opacity: 1, FillOpacity: 0.4,
	},
}

// Tribal returns the preset for a territory selection state.
func Tribal(state domain.SelectionState) Style {
	if s, ok := tribalPresets[state]; ok {
		return s
	}
	return tribalPresets[domain.SelectionDefault]
}

// Stream styles an NHDPlus flowline.
func Stream() Style {
	return Style{Color: "#1E90FF", Weight: 1.5, Opacity: 0.8}
}
