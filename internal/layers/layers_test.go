package layers

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/tribal-hazard-overlays/internal/adapter/arcgis"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/maphost"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/observability"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/staticdata"
)

type testEnv struct {
	host    *maphost.Host
	clock   *clockwork.FakeClock
	metrics *observability.Metrics
	catalog *staticdata.Catalog
	sink    *recordingSink
	deps    Deps
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	catalog, err := staticdata.Load()
	require.NoError(t, err)
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()
	host := maphost.New(catalog, clock, logger)
	sink := &recordingSink{}
	return &testEnv{
		host:    host,
		clock:   clock,
		metrics: metrics,
		catalog: catalog,
		sink:    sink,
		deps: Deps{
			Host:            host,
			Clock:           clock,
			Logger:          logger,
			Metrics:         metrics,
			Sink:            sink,
			BoundsTolerance: 0.01,
		},
	}
}

type recordingSink struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (s *recordingSink) PublishSnapshot(_ context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = append(s.snaps, snap)
	return nil
}

func (s *recordingSink) all() []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Snapshot(nil), s.snaps...)
}

type queryCall struct {
	layerID int
	opts    arcgis.QueryOptions
}

type fakeQuerier struct {
	mu    sync.Mutex
	calls []queryCall
	fc    *geojson.FeatureCollection
	err   error
}

func (q *fakeQuerier) Query(_ context.Context, layerID int, opts arcgis.QueryOptions) (*geojson.FeatureCollection, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls = append(q.calls, queryCall{layerID: layerID, opts: opts})
	if q.err != nil {
		return nil, q.err
	}
	if q.fc == nil {
		return geojson.NewFeatureCollection(), nil
	}
	return q.fc, nil
}

func (q *fakeQuerier) set(fc *geojson.FeatureCollection, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.fc, q.err = fc, err
}

func (q *fakeQuerier) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.calls)
}

func (q *fakeQuerier) last() queryCall {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.calls[len(q.calls)-1]
}

func box(w, s, e, n float64) orb.Bound {
	return orb.Bound{Min: orb.Point{w, s}, Max: orb.Point{e, n}}
}

func polygonFeature(b orb.Bound, props geojson.Properties) *geojson.Feature {
	f := geojson.NewFeature(b.ToPolygon())
	for k, v := range props {
		f.Properties[k] = v
	}
	return f
}

func collection(features ...*geojson.Feature) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, f := range features {
		fc.Append(f)
	}
	return fc
}
