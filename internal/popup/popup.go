// Package popup formats feature attributes into the HTML shown in map popups.
// Every formatter is a pure function of the attribute set.
package popup

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/tribal-hazard-overlays/internal/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.New("").ParseFS(templateFS, "templates/*.html"))

const displayTime = "Jan 2, 2006 15:04 MST"

func render(name string, data any) string {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return template.HTMLEscapeString(fmt.Sprint(data))
	}
	return buf.String()
}

// Tribal formats a tribal territory.
func Tribal(p geojson.Properties) string {
	name := str(p, domain.PropName, "NAME", "LARName", "NAMELSAD")
	if name == "" {
		name = "Tribal land"
	}
	return render("tribal", struct{ Name, Code string }{
		Name: name,
		Code: str(p, domain.PropCode),
	})
}

// FloodZone formats a FEMA flood zone.
func FloodZone(p geojson.Properties) string {
	zone := str(p, domain.PropZone, domain.FieldFloodZone)
	if zone == "" {
		zone = "unknown"
	}
	tier := str(p, domain.PropRiskTier)
	if tier == "" {
		tier = string(domain.ZoneTier(zone))
	}
	data := struct {
		Zone, Subtype, Tier string
		SFHA                bool
		BFE                 string
	}{
		Zone:    zone,
		Subtype: str(p, domain.PropZoneSubtype, domain.FieldZoneSubtype),
		Tier:    tier,
		SFHA:    p.MustBool(domain.PropSFHA, false),
	}
	if bfe, ok := p[domain.PropStaticBFE].(float64); ok && bfe > 0 {
		data.BFE = strconv.FormatFloat(bfe, 'f', -1, 64)
	}
	return render("flood", data)
}

// Alert formats a weather alert.
func Alert(p geojson.Properties) string {
	event := str(p, domain.PropEvent)
	if event == "" {
		event = "Weather alert"
	}
	severity := str(p, domain.PropSeverity)
	if severity == "" {
		severity = string(domain.SeverityUnknown)
	}
	return render("alert", struct {
		Event, Severity, Urgency, Headline, Area string
		Onset, Expires, Instruction, Sender      string
	}{
		Event:       event,
		Severity:    severity,
		Urgency:     str(p, domain.PropUrgency),
		Headline:    str(p, domain.PropHeadline),
		Area:        str(p, domain.PropAreaDesc),
		Onset:       displayTimestamp(str(p, domain.PropOnset)),
		Expires:     displayTimestamp(str(p, domain.PropExpires)),
		Instruction: str(p, domain.PropInstruction),
		Sender:      str(p, domain.PropSender),
	})
}

var statusLabels = map[string]string{
	string(domain.FloodStatusMajor):    "Major flooding",
	string(domain.FloodStatusModerate): "Moderate flooding",
	string(domain.FloodStatusMinor):    "Minor flooding",
	string(domain.FloodStatusAction):   "Action stage",
	string(domain.FloodStatusNormal):   "Normal",
	string(domain.FloodStatusUnknown):  "Unknown (no flood stage)",
	string(domain.FloodStatusNoData):   "No data",
}

type row struct {
	Label, Value, Unit string
}

// Gage formats a river gage with one line per available parameter.
func Gage(p geojson.Properties) string {
	status, ok := statusLabels[str(p, domain.PropFloodStatus)]
	if !ok {
		status = statusLabels[string(domain.FloodStatusUnknown)]
	}

	keys := make([]string, 0, len(p))
	for k := range p {
		if _, ok := p[k+"_unit"]; ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	readings := make([]row, 0, len(keys))
	for _, k := range keys {
		label := k
		if param, ok := domain.ParameterByKey(k); ok {
			label = param.Label
		}
		readings = append(readings, row{Label: label, Value: value(p[k]), Unit: str(p, k+"_unit")})
	}

	name := str(p, domain.PropSiteName)
	if name == "" {
		name = "River gage"
	}
	return render("gage", struct {
		Name, Code, Status string
		Readings           []row
		Observed           string
	}{
		Name:     name,
		Code:     str(p, domain.PropSiteCode),
		Status:   status,
		Readings: readings,
		Observed: displayTimestamp(str(p, domain.PropObservedAt)),
	})
}

// Point formats any feature as a title plus one line per scalar attribute.
func Point(p geojson.Properties) string {
	title := str(p, domain.PropName, "NAME", "GNIS_NAME", "title")
	if title == "" {
		title = "Feature"
	}

	keys := make([]string, 0, len(p))
	for k, v := range p {
		switch v.(type) {
		case string, float64, int, bool:
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	rows := make([]row, 0, len(keys))
	for _, k := range keys {
		if v := value(p[k]); v != "" {
			rows = append(rows, row{Label: k, Value: v})
		}
	}
	return render("point", struct {
		Title string
		Rows  []row
	}{Title: title, Rows: rows})
}

func str(p geojson.Properties, keys ...string) string {
	for _, k := range keys {
		if s, ok := p[k].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}

func value(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

func displayTimestamp(s string) string {
	if s == "" {
		return ""
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return s
	}
	return t.UTC().Format(displayTime)
}
