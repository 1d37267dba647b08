package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/tribal-hazard-overlays/internal/config"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/layers"
	"github.com/couchcryptid/tribal-hazard-overlays/internal/observability"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes overlay snapshots to a Kafka topic.
// It implements app.SnapshotPublisher.
type Writer struct {
	writer  messageWriter
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewWriter creates a Kafka producer for the configured snapshot topic.
// Messages are hashed by key so every update of one overlay lands on the same
// partition. Each overlay hands snapshots over one at a time in increasing
// generation, so the partition order follows the generation order.
func NewWriter(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSnapshotTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, metrics: metrics, logger: logger}
}

// Publish serializes and writes one snapshot.
func (w *Writer) Publish(ctx context.Context, mapID string, s layers.Snapshot) error {
	msg, err := serializeToMessage(mapID, s)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write snapshot %s: %w", msg.Key, err)
	}
	w.metrics.SnapshotsPublished.Inc()
	w.logger.Debug("snapshot published", "map_id", mapID, "overlay", s.Overlay, "generation", s.Generation)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// SnapshotMessage is the JSON value of a snapshot message.
type SnapshotMessage struct {
	MapID        string          `json:"map_id"`
	Overlay      string          `json:"overlay"`
	Generation   uint64          `json:"generation"`
	FeatureCount int             `json:"feature_count"`
	PublishedAt  time.Time       `json:"published_at"`
	GeoJSON      json.RawMessage `json:"geojson"`
}

// serializeToMessage marshals a snapshot into a Kafka message keyed by
// map and overlay.
func serializeToMessage(mapID string, s layers.Snapshot) (kafkago.Message, error) {
	fc, err := json.Marshal(s.Collection)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize %s collection: %w", s.Overlay, err)
	}
	count := 0
	if s.Collection != nil {
		count = len(s.Collection.Features)
	}
	data, err := json.Marshal(SnapshotMessage{
		MapID:        mapID,
		Overlay:      s.Overlay,
		Generation:   s.Generation,
		FeatureCount: count,
		PublishedAt:  s.At.UTC(),
		GeoJSON:      fc,
	})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize snapshot: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(mapID + "/" + s.Overlay),
		Value: data,
		Time:  s.At,
		Headers: []kafkago.Header{
			{Key: "overlay", Value: []byte(s.Overlay)},
			{Key: "generation", Value: []byte(strconv.FormatUint(s.Generation, 10))},
			{Key: "published_at", Value: []byte(s.At.UTC().Format(time.RFC3339))},
		},
	}, nil
}
