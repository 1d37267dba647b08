package arcgis

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/tribal-hazard-overlays/internal/adapter/upstream"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/domain"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/observability"
)

const zonesBody = `{"type":"FeatureCollection","features":[
  {"type":"Feature","geometry":{"type":"Polygon","coordinates":[[[-120.6,46.5],[-120.5,46.5],[-120.5,46.6],[-120.6,46.5]]]},
   "properties":{"FLD_ZONE":"AE","ZONE_SUBTY":null,"SFHA_TF":"T","STATIC_BFE":1050}}
]}`

func testClient(baseURL string) *Client {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient("fema", baseURL, upstream.New(5*time.Second, "test-agent", observability.NewMetricsForTesting(), logger))
}

func TestQueryOptions_Values(t *testing.T) {
	b := orb.Bound{Min: orb.Point{-121, 46}, Max: orb.Point{-120, 47.5}}
	v := QueryOptions{Bounds: &b}.Values()

	assert.Equal(t, "-121.000000,46.000000,-120.000000,47.500000", v.Get("geometry"))
	assert.Equal(t, "esriGeometryEnvelope", v.Get("geometryType"))
	assert.Equal(t, "4326", v.Get("inSR"))
	assert.Equal(t, "esriSpatialRelIntersects", v.Get("spatialRel"))
	assert.Equal(t, "*", v.Get("outFields"))
	assert.Equal(t, "1=1", v.Get("where"))
	assert.Equal(t, "geojson", v.Get("f"))
	assert.Equal(t, "4326", v.Get("outSR"))
}

func TestQueryOptions_NoBounds(t *testing.T) {
	v := QueryOptions{Where: "LARID = 5", OutFields: []string{"LARID", "LARName"}}.Values()
	assert.Empty(t, v.Get("geometry"))
	assert.Empty(t, v.Get("geometryType"))
	assert.Equal(t, "LARID = 5", v.Get("where"))
	assert.Equal(t, "LARID,LARName", v.Get("outFields"))
}

func TestFieldIn(t *testing.T) {
	assert.Equal(t, "FLD_ZONE IN ('AE','X')", FieldIn("FLD_ZONE", []string{"AE", "X"}))
	assert.Equal(t, "NAME IN ('O''Brien')", FieldIn("NAME", []string{"O'Brien"}))
}

func TestClient_Query_ZoneFilter(t *testing.T) {
	var rawQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/28/query", r.URL.Path)
		rawQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(zonesBody))
	}))
	defer srv.Close()

	b := orb.Bound{Min: orb.Point{-121, 46}, Max: orb.Point{-120, 47}}
	fc, err := testClient(srv.URL).Query(context.Background(), 28, QueryOptions{
		Bounds: &b,
		Where:  FieldIn(domain.FieldFloodZone, []string{"AE", "X"}),
	})
	require.NoError(t, err)
	require.Len(t, fc.Features, 1)
	assert.Equal(t, "AE", fc.Features[0].Properties[domain.FieldFloodZone])

	decoded, err := url.QueryUnescape(rawQuery)
	require.NoError(t, err)
	assert.Contains(t, decoded, "where=FLD_ZONE IN ('AE','X')")
}

func TestClient_Query_ErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"Invalid or missing input parameters.","details":["'where' parameter is invalid"]}}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Query(context.Background(), 28, QueryOptions{Where: "nope"})
	var netErr *domain.NetworkError
	require.True(t, errors.As(err, &netErr))
	assert.Equal(t, 400, netErr.StatusCode)
	assert.True(t, strings.Contains(err.Error(), "'where' parameter is invalid"))
}

func TestClient_Query_NotGeoJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>Service unavailable</html>`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Query(context.Background(), 0, QueryOptions{})
	var shapeErr *domain.DataShapeError
	require.True(t, errors.As(err, &shapeErr))
}
