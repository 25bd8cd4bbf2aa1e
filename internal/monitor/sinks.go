package monitor

import (
	"context"
	"fmt"

	"github.com/nerrad567/giftplanner-core/internal/infrastructure/database"
	"github.com/nerrad567/giftplanner-core/internal/infrastructure/mqtt"
)

// JSONPublisher is the part of *mqtt.Client used by MQTTSink.
type JSONPublisher interface {
	PublishJSON(topic string, v any, retained bool) error
	IsConnected() bool
}

// MQTTSink publishes each sample, retained, on giftplanner/core/database/stats.
type MQTTSink struct {
	publisher JSONPublisher
	topic     string
}

// NewMQTTSink creates a sink publishing through p.
func NewMQTTSink(p JSONPublisher) *MQTTSink {
	return &MQTTSink{publisher: p, topic: mqtt.Topics{}.DatabaseStats()}
}

// Name implements StatsSink.
func (s *MQTTSink) Name() string { return "mqtt" }

// Report implements StatsSink. A disconnected publisher skips the sample;
// the next one after reconnecting replaces the retained message.
func (s *MQTTSink) Report(_ context.Context, sample Sample) error {
	if !s.publisher.IsConnected() {
		return nil
	}
	if err := s.publisher.PublishJSON(s.topic, sample, true); err != nil {
		return fmt.Errorf("publishing cache stats: %w", err)
	}
	return nil
}

// CacheStatsWriter is the part of *influxdb.Client used by InfluxSink.
type CacheStatsWriter interface {
	WriteCacheStats(engineID string, stats database.CacheStats)
}

// InfluxSink writes each sample as a statement_cache point.
type InfluxSink struct {
	writer CacheStatsWriter
}

// NewInfluxSink creates a sink writing through w.
func NewInfluxSink(w CacheStatsWriter) *InfluxSink {
	return &InfluxSink{writer: w}
}

// Name implements StatsSink.
func (s *InfluxSink) Name() string { return "influxdb" }

// Report implements StatsSink. Writes are asynchronous; failures surface
// through the client's error callback, so Report only fails on a cancelled
// context.
func (s *InfluxSink) Report(ctx context.Context, sample Sample) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.writer.WriteCacheStats(sample.EngineID, sample.Cache.Stats())
	return nil
}
