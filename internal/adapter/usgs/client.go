// Package usgs reads instantaneous gage values from the USGS Water Services API.
package usgs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"

	"github.com/couchcryptid/tribal-hazard-overlays/internal/adapter/upstream"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/domain"
)

const source = "usgs"

// Query defaults.
const (
	DefaultSiteStatus = "active"
	DefaultSiteType   = "ST"
)

// DefaultParameterCodes are streamflow and gage height.
var DefaultParameterCodes = []string{domain.ParamDischarge, domain.ParamGageHeight}

// ErrNoLocation is returned for a query with neither a state nor a bounding box.
var ErrNoLocation = errors.New("usgs query needs a state code or bounding box")

// MaxBBoxArea is the largest bBox, in square degrees of longitude by
// latitude, the instantaneous values service accepts.
const MaxBBoxArea = 25.0

// ErrBBoxTooLarge is returned for a bounding box over MaxBBoxArea.
var ErrBBoxTooLarge = errors.New("usgs bounding box exceeds 25 square degrees")

// BBoxArea returns the lon by lat area of b in square degrees.
func BBoxArea(b orb.Bound) float64 {
	return (b.Right() - b.Left()) * (b.Top() - b.Bottom())
}

// GageQuery selects sites for /nwis/iv. BBox takes precedence over StateCode.
type GageQuery struct {
	StateCode      string
	BBox           *orb.Bound
	ParameterCodes []string
	SiteType       string
	SiteStatus     string
}

// Values encodes the query parameters.
func (q GageQuery) Values() (url.Values, error) {
	v := url.Values{}
	v.Set("format", "json")

	codes := q.ParameterCodes
	if len(codes) == 0 {
		codes = DefaultParameterCodes
	}
	v.Set("parameterCd", strings.Join(codes, ","))

	status := q.SiteStatus
	if status == "" {
		status = DefaultSiteStatus
	}
	v.Set("siteStatus", status)

	siteType := q.SiteType
	if siteType == "" {
		siteType = DefaultSiteType
	}
	v.Set("siteType", siteType)

	switch {
	case q.BBox != nil:
		b := *q.BBox
		if area := BBoxArea(b); area > MaxBBoxArea {
			return nil, fmt.Errorf("%w: %.1f", ErrBBoxTooLarge, area)
		}
		v.Set("bBox", fmt.Sprintf("%.6f,%.6f,%.6f,%.6f", b.Left(), b.Bottom(), b.Right(), b.Top()))
	case q.StateCode != "":
		v.Set("stateCd", strings.ToLower(q.StateCode))
	default:
		return nil, ErrNoLocation
	}
	return v, nil
}

// Client reads the USGS instantaneous values service.
type Client struct {
	baseURL string
	http    *upstream.Client
	logger  *slog.Logger
}

// NewClient creates a USGS client rooted at baseURL (https://waterservices.usgs.gov).
func NewClient(baseURL string, http *upstream.Client, logger *slog.Logger) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: http, logger: logger}
}

// InstantValues returns one GageSite per site code carrying the latest value
// of every requested parameter that reported data.
func (c *Client) InstantValues(ctx context.Context, q GageQuery) ([]domain.GageSite, error) {
	params, err := q.Values()
	if err != nil {
		return nil, err
	}

	body, err := c.http.Get(ctx, source, c.baseURL+"/nwis/iv/?"+params.Encode(), "application/json")
	if err != nil {
		return nil, err
	}

	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &domain.DataShapeError{Source: source, Field: "value.timeSeries", Reason: err.Error()}
	}

	sites := make([]domain.GageSite, 0, len(resp.Value.TimeSeries))
	for _, ts := range resp.Value.TimeSeries {
		site, err := ts.site()
		if err != nil {
			c.logger.Warn("skipping malformed time series", "series", ts.Name, "error", err)
			continue
		}
		sites = append(sites, site)
	}
	return domain.MergeGageSites(sites), nil
}

// USGS WaterML-JSON response types.

type response struct {
	Value struct {
		TimeSeries []timeSeries `json:"timeSeries"`
	} `json:"value"`
}

type timeSeries struct {
	Name       string     `json:"name"`
	SourceInfo sourceInfo `json:"sourceInfo"`
	Variable   variable   `json:"variable"`
	Values     []struct {
		Value []observation `json:"value"`
	} `json:"values"`
}

type sourceInfo struct {
	SiteName string `json:"siteName"`
	SiteCode []struct {
		Value string `json:"value"`
	} `json:"siteCode"`
	GeoLocation struct {
		GeogLocation struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"geogLocation"`
	} `json:"geoLocation"`
}

type variable struct {
	VariableCode []struct {
		Value string `json:"value"`
	} `json:"variableCode"`
	Unit struct {
		UnitCode string `json:"unitCode"`
	} `json:"unit"`
	NoDataValue *float64 `json:"noDataValue"`
}

type observation struct {
	Value    string `json:"value"`
	DateTime string `json:"dateTime"`
}

func (ts timeSeries) site() (domain.GageSite, error) {
	if len(ts.SourceInfo.SiteCode) == 0 || ts.SourceInfo.SiteCode[0].Value == "" {
		return domain.GageSite{}, &domain.DataShapeError{Source: source, Field: "sourceInfo.siteCode", Reason: "missing"}
	}
	if len(ts.Variable.VariableCode) == 0 {
		return domain.GageSite{}, &domain.DataShapeError{Source: source, Field: "variable.variableCode", Reason: "missing"}
	}

	geo := ts.SourceInfo.GeoLocation.GeogLocation
	site := domain.GageSite{
		SiteCode: ts.SourceInfo.SiteCode[0].Value,
		Name:     ts.SourceInfo.SiteName,
		Location: orb.Point{geo.Longitude, geo.Latitude},
		Readings: map[string]domain.Reading{},
	}

	if r, ok := ts.latest(); ok {
		site.Readings[r.Parameter.Code] = r
	}
	return site, nil
}

// latest returns the most recent valid observation across every method
// block, skipping no-data sentinels and unparseable values. Among equal
// timestamps the later entry wins.
func (ts timeSeries) latest() (domain.Reading, bool) {
	var (
		best  domain.Reading
		found bool
	)
	for _, block := range ts.Values {
		for _, obs := range block.Value {
			v, err := strconv.ParseFloat(obs.Value, 64)
			if err != nil {
				continue
			}
			if ts.Variable.NoDataValue != nil && v == *ts.Variable.NoDataValue {
				continue
			}
			at, _ := time.Parse(time.RFC3339, obs.DateTime)
			if found && at.Before(best.Time) {
				continue
			}
			best.Value, best.Time = v, at
			found = true
		}
	}
	if !found {
		return domain.Reading{}, false
	}

	best.Parameter = domain.LookupParameter(ts.Variable.VariableCode[0].Value)
	best.Unit = ts.Variable.Unit.UnitCode
	if best.Unit == "" {
		best.Unit = best.Parameter.Unit
	}
	return best, true
}
