package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/prometheus/client_golang/prometheus/testutil"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/tribal-hazard-overlays/internal/layers"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/observability"
)

type fakeWriter struct {
	msgs []kafkago.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func testSnapshot(at time.Time) layers.Snapshot {
	fc := geojson.NewFeatureCollection()
	f := geojson.NewFeature(orb.Point{-120.5, 46.6})
	f.ID = "12500450"
	fc.Append(f)
	return layers.Snapshot{Overlay: layers.KeyGages, Generation: 7, Collection: fc, At: at}
}

func TestSerializeToMessage(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	msg, err := serializeToMessage("map-1", testSnapshot(now))
	require.NoError(t, err)

	assert.Equal(t, []byte("map-1/gages"), msg.Key)
	require.Len(t, msg.Headers, 3)
	assert.Equal(t, "overlay", msg.Headers[0].Key)
	assert.Equal(t, []byte("gages"), msg.Headers[0].Value)
	assert.Equal(t, []byte("7"), msg.Headers[1].Value)
	assert.Equal(t, "published_at", msg.Headers[2].Key)
	assert.Equal(t, []byte(now.Format(time.RFC3339)), msg.Headers[2].Value)

	var got SnapshotMessage
	require.NoError(t, json.Unmarshal(msg.Value, &got))

	type messageSummary struct {
		MapID        string
		Overlay      string
		Generation   uint64
		FeatureCount int
		PublishedAt  time.Time
	}

	expected := messageSummary{MapID: "map-1", Overlay: "gages", Generation: 7, FeatureCount: 1, PublishedAt: now}
	actual := messageSummary{MapID: got.MapID, Overlay: got.Overlay, Generation: got.Generation, FeatureCount: got.FeatureCount, PublishedAt: got.PublishedAt}
	if diff := cmp.Diff(expected, actual); diff != "" {
		t.Fatalf("message mismatch (-want +got):\n%s", diff)
	}

	fc, err := geojson.UnmarshalFeatureCollection(got.GeoJSON)
	require.NoError(t, err)
	require.Len(t, fc.Features, 1)
	assert.Equal(t, "12500450", fc.Features[0].ID)
}

func TestWriterPublish(t *testing.T) {
	fw := &fakeWriter{}
	metrics := observability.NewMetricsForTesting()
	w := &Writer{writer: fw, metrics: metrics, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	require.NoError(t, w.Publish(context.Background(), "map-1", testSnapshot(time.Now())))
	require.Len(t, fw.msgs, 1)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.SnapshotsPublished), 0)

	fw.err = errors.New("broker unavailable")
	err := w.Publish(context.Background(), "map-1", testSnapshot(time.Now()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "map-1/gages")
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.SnapshotsPublished), 0)
}
