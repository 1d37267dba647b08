package domain

import (
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// RiskTier groups FEMA flood zones by hazard.
type RiskTier string

const (
	RiskHigh     RiskTier = "high"
	RiskModerate RiskTier = "moderate"
	RiskLow      RiskTier = "low"
	RiskUnknown  RiskTier = "unknown"
)

var zoneTiers = map[string]RiskTier{
	"A": RiskHigh, "AE": RiskHigh, "AH": RiskHigh, "AO": RiskHigh,
	"AR": RiskHigh, "A99": RiskHigh, "V": RiskHigh, "VE": RiskHigh,
	"B": RiskModerate, "X500": RiskModerate,
	"C": RiskLow, "X": RiskLow,
	"D": RiskUnknown,
}

// FEMA NFHL attribute names.
const (
	FieldFloodZone   = "FLD_ZONE"
	FieldZoneSubtype = "ZONE_SUBTY"
	FieldSFHA        = "SFHA_TF"
	FieldStaticBFE   = "STATIC_BFE"
)

// FloodZone is a FEMA flood hazard polygon.
type FloodZone struct {
	Zone       string
	Subtype    string
	Tier       RiskTier
	SFHA       bool
	StaticBFE  float64
	Geometry   orb.Geometry
	Attributes geojson.Properties
}

// ZoneTier maps a zone code to its risk tier.
func ZoneTier(zone string) RiskTier {
	if t, ok := zoneTiers[zone]; ok {
		return t
	}
	return RiskUnknown
}

// NormalizeZone upper-cases the zone code and folds shaded X (0.2% annual
// chance) into X500.
func NormalizeZone(zone, subtype string) string {
	zone = strings.ToUpper(strings.TrimSpace(zone))
	if zone == "X" && strings.Contains(strings.ToUpper(subtype), "0.2 PCT") {
		return "X500"
	}
	return zone
}

// FloodZoneFromFeature classifies an NFHL feature.
func FloodZoneFromFeature(f *geojson.Feature) (FloodZone, error) {
	raw, ok := f.Properties[FieldFloodZone].(string)
	if !ok || strings.TrimSpace(raw) == "" {
		return FloodZone{}, &DataShapeError{Source: "fema", Field: FieldFloodZone, Reason: "missing zone code"}
	}
	subtype := f.Properties.MustString(FieldZoneSubtype, "")
	zone := NormalizeZone(raw, subtype)
	tier := ZoneTier(zone)

	sfha := tier == RiskHigh
	switch strings.ToUpper(f.Properties.MustString(FieldSFHA, "")) {
	case "T":
		sfha = true
	case "F":
		sfha = false
	}

	bfe := f.Properties.MustFloat64(FieldStaticBFE, 0)
	if bfe <= -9999 {
		bfe = 0
	}

	return FloodZone{
		Zone:       zone,
		Subtype:    subtype,
		Tier:       tier,
		SFHA:       sfha,
		StaticBFE:  bfe,
		Geometry:   f.Geometry,
		Attributes: f.Properties,
	}, nil
}

// Feature converts the zone back into a feature with normalized properties
// added alongside the original attributes.
func (z FloodZone) Feature() *geojson.Feature {
	f := geojson.NewFeature(z.Geometry)
	for k, v := range z.Attributes {
		f.Properties[k] = v
	}
	f.Properties[PropZone] = z.Zone
	f.Properties[PropZoneSubtype] = z.Subtype
	f.Properties[PropRiskTier] = string(z.Tier)
	f.Properties[PropSFHA] = z.SFHA
	if z.StaticBFE != 0 {
		f.Properties[PropStaticBFE] = z.StaticBFE
	}
	return f
}
