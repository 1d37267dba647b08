// Package arcgis queries ArcGIS MapServer layers (FEMA NFHL, BIA LAR, NHDPlus HR)
// for GeoJSON features.
package arcgis

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/tribal-hazard-overlays/internal/adapter/upstream"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/domain"
)

// Querier runs a layer query. Returned collections are shared and must not be
// modified by callers.
type Querier interface {
	Query(ctx context.Context, layerID int, opts QueryOptions) (*geojson.FeatureCollection, error)
}

// QueryOptions restricts a layer query.
type QueryOptions struct {
	Bounds    *orb.Bound // envelope filter in WGS84; nil queries the whole layer
	Where     string     // SQL where clause; empty means 1=1
	OutFields []string   // empty means *
}

// Values encodes the query parameters.
func (o QueryOptions) Values() url.Values {
	v := url.Values{}
	if o.Bounds != nil {
		b := *o.Bounds
		v.Set("geometry", fmt.Sprintf("%s,%s,%s,%s", coord(b.Left()), coord(b.Bottom()), coord(b.Right()), coord(b.Top())))
		v.Set("geometryType", "esriGeometryEnvelope")
		v.Set("inSR", "4326")
		v.Set("spatialRel", "esriSpatialRelIntersects")
	}
	where := o.Where
	if where == "" {
		where = "1=1"
	}
	v.Set("where", where)
	fields := "*"
	if len(o.OutFields) > 0 {
		fields = strings.Join(o.OutFields, ",")
	}
	v.Set("outFields", fields)
	v.Set("outSR", "4326")
	v.Set("f", "geojson")
	return v
}

// key identifies the query for caching.
func (o QueryOptions) key(layerID int) string {
	return strconv.Itoa(layerID) + "?" + o.Values().Encode()
}

func coord(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

// FieldIn builds "FIELD IN ('a','b')" with single quotes escaped.
func FieldIn(field string, values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = "'" + strings.ReplaceAll(v, "'", "''") + "'"
	}
	return field + " IN (" + strings.Join(quoted, ",") + ")"
}

// Client queries one MapServer.
type Client struct {
	source  string
	baseURL string
	http    *upstream.Client
}

// NewClient creates a client for the MapServer at baseURL. source labels
// metrics and errors.
func NewClient(source, baseURL string, http *upstream.Client) *Client {
	return &Client{source: source, baseURL: strings.TrimRight(baseURL, "/"), http: http}
}

// Query runs /{layerID}/query. An error envelope in a 200 response is
// reported as a NetworkError carrying the envelope's code.
func (c *Client) Query(ctx context.Context, layerID int, opts QueryOptions) (*geojson.FeatureCollection, error) {
	u := fmt.Sprintf("%s/%d/query?%s", c.baseURL, layerID, opts.Values().Encode())

	body, err := c.http.Get(ctx, c.source, u, "application/geo+json, application/json")
	if err != nil {
		return nil, err
	}

	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		return nil, &domain.NetworkError{
			Source:     c.source,
			URL:        u,
			StatusCode: envelope.Error.Code,
			Err:        envelope.Error,
		}
	}

	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		return nil, &domain.DataShapeError{Source: c.source, Field: "features", Reason: err.Error()}
	}
	return fc, nil
}

// ArcGIS error response types.

type errorEnvelope struct {
	Error *serviceError `json:"error"`
}

type serviceError struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details"`
}

func (e *serviceError) Error() string {
	if len(e.Details) > 0 {
		return e.Message + ": " + strings.Join(e.Details, "; ")
	}
	return e.Message
}
