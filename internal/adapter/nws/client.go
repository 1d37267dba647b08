// Package nws reads active weather alerts from the National Weather Service API.
package nws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/tribal-hazard-overlays/internal/adapter/upstream"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/domain"
)

const source = "nws"

// AlertQuery filters /alerts/active. Empty fields are omitted; multiple values
// are sent comma separated.
type AlertQuery struct {
	Area     []string // two-letter state or marine area codes
	Severity []domain.Severity
	Urgency  []string
	Event    []string
}

// Values encodes the query parameters.
func (q AlertQuery) Values() url.Values {
	v := url.Values{}
	if len(q.Area) > 0 {
		areas := make([]string, len(q.Area))
		for i, a := range q.Area {
			areas[i] = strings.ToUpper(a)
		}
		v.Set("area", strings.Join(areas, ","))
	}
	if len(q.Severity) > 0 {
		sev := make([]string, len(q.Severity))
		for i, s := range q.Severity {
			sev[i] = string(s)
		}
		v.Set("severity", strings.Join(sev, ","))
	}
	if len(q.Urgency) > 0 {
		v.Set("urgency", strings.Join(q.Urgency, ","))
	}
	if len(q.Event) > 0 {
		v.Set("event", strings.Join(q.Event, ","))
	}
	return v
}

// Client reads the NWS alerts endpoint.
type Client struct {
	baseURL string
	http    *upstream.Client
	logger  *slog.Logger
}

// NewClient creates an NWS client rooted at baseURL (https://api.weather.gov).
func NewClient(baseURL string, http *upstream.Client, logger *slog.Logger) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: http, logger: logger}
}

// ActiveAlerts returns the active alerts matching q. Alerts whose properties
// fail to parse are skipped and logged.
func (c *Client) ActiveAlerts(ctx context.Context, q AlertQuery) ([]domain.Alert, error) {
	u := c.baseURL + "/alerts/active"
	if params := q.Values(); len(params) > 0 {
		u += "?" + params.Encode()
	}

	body, err := c.http.Get(ctx, source, u, "application/geo+json")
	if err != nil {
		return nil, err
	}

	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &domain.DataShapeError{Source: source, Field: "features", Reason: err.Error()}
	}
	if resp.Features == nil {
		return nil, &domain.DataShapeError{Source: source, Field: "features", Reason: "missing feature array"}
	}

	alerts := make([]domain.Alert, 0, len(resp.Features))
	for _, f := range resp.Features {
		a, err := f.alert()
		if err != nil {
			c.logger.Warn("skipping malformed alert", "id", f.ID, "error", err)
			continue
		}
		alerts = append(alerts, a)
	}
	return alerts, nil
}

// NWS API response types.

type response struct {
	Features []feature `json:"features"`
}

type feature struct {
	ID         string            `json:"id"`
	Geometry   *geojson.Geometry `json:"geometry"`
	Properties properties        `json:"properties"`
}

type properties struct {
	ID          string `json:"id"`
	AreaDesc    string `json:"areaDesc"`
	Sent        string `json:"sent"`
	Onset       string `json:"onset"`
	Expires     string `json:"expires"`
	Ends        string `json:"ends"`
	Severity    string `json:"severity"`
	Certainty   string `json:"certainty"`
	Urgency     string `json:"urgency"`
	Event       string `json:"event"`
	SenderName  string `json:"senderName"`
	Headline    string `json:"headline"`
	Description string `json:"description"`
	Instruction string `json:"instruction"`
}

func (f feature) alert() (domain.Alert, error) {
	p := f.Properties
	if p.Event == "" {
		return domain.Alert{}, &domain.DataShapeError{Source: source, Field: "event", Reason: "missing"}
	}
	sent, err := parseTime("sent", p.Sent)
	if err != nil {
		return domain.Alert{}, err
	}
	onset, err := parseTime("onset", p.Onset)
	if err != nil {
		return domain.Alert{}, err
	}
	expires, err := parseTime("expires", p.Expires)
	if err != nil {
		return domain.Alert{}, err
	}

	id := p.ID
	if id == "" {
		id = f.ID
	}
	a := domain.Alert{
		ID:          id,
		Event:       p.Event,
		Severity:    domain.ParseSeverity(p.Severity),
		Urgency:     p.Urgency,
		Certainty:   p.Certainty,
		Headline:    p.Headline,
		Description: p.Description,
		Instruction: p.Instruction,
		AreaDesc:    p.AreaDesc,
		SenderName:  p.SenderName,
		Sent:        sent,
		Onset:       onset,
		Expires:     expires,
	}
	if f.Geometry != nil {
		a.Geometry = f.Geometry.Geometry()
	}
	return a, nil
}

func parseTime(field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, &domain.DataShapeError{Source: source, Field: field, Reason: fmt.Sprintf("bad timestamp %q", s)}
	}
	return t, nil
}
