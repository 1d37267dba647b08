package domain

import (
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Severity is the CAP severity of a weather alert.
type Severity string

const (
	SeverityExtreme  Severity = "Extreme"
	SeveritySevere   Severity = "Severe"
	SeverityModerate Severity = "Moderate"
	SeverityMinor    Severity = "Minor"
	SeverityUnknown  Severity = "Unknown"
)

// ParseSeverity normalizes a severity string. Unrecognized values map to SeverityUnknown.
func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "extreme":
		return SeverityExtreme
	case "severe":
		return SeveritySevere
	case "moderate":
		return SeverityModerate
	case "minor":
		return SeverityMinor
	default:
		return SeverityUnknown
	}
}

// Alert is an active NWS weather hazard.
type Alert struct {
	ID          string
	Event       string
	Severity    Severity
	Urgency     string
	Certainty   string
	Headline    string
	Description string
	Instruction string
	AreaDesc    string
	SenderName  string
	Sent        time.Time
	Onset       time.Time
	Expires     time.Time // zero when the alert carries no expiry
	Geometry    orb.Geometry
}

// Expired reports whether the alert expired strictly before now.
func (a Alert) Expired(now time.Time) bool {
	return !a.Expires.IsZero() && a.Expires.Before(now)
}

// FilterActive drops alerts that expired before now, preserving order.
func FilterActive(alerts []Alert, now time.Time) []Alert {
	out := make([]Alert, 0, len(alerts))
	for _, a := range alerts {
		if a.Expired(now) {
			continue
		}
		out = append(out, a)
	}
	return out
}

// Feature converts the alert into a GeoJSON feature. Alerts without geometry
// return nil.
func (a Alert) Feature() *geojson.Feature {
	if a.Geometry == nil {
		return nil
	}
	f := geojson.NewFeature(a.Geometry)
	f.ID = a.ID
	f.Properties[PropID] = a.ID
	f.Properties[PropEvent] = a.Event
	f.Properties[PropSeverity] = string(a.Severity)
	f.Properties[PropUrgency] = a.Urgency
	f.Properties[PropCertainty] = a.Certainty
	f.Properties[PropHeadline] = a.Headline
	f.Properties[PropDescription] = a.Description
	f.Properties[PropInstruction] = a.Instruction
	f.Properties[PropAreaDesc] = a.AreaDesc
	f.Properties[PropSender] = a.SenderName
	setTime(f.Properties, PropSent, a.Sent)
	setTime(f.Properties, PropOnset, a.Onset)
	setTime(f.Properties, PropExpires, a.Expires)
	return f
}

func setTime(p geojson.Properties, key string, t time.Time) {
	if t.IsZero() {
		return
	}
	p[key] = t.UTC().Format(time.RFC3339)
}
