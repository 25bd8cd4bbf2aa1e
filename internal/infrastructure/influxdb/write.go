package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/giftplanner-core/internal/infrastructure/database"
)

// Measurement names written by this package.
const (
	MeasurementCacheStats   = "statement_cache"
	MeasurementEngineHealth = "engine_health"
)

// WriteCacheStats records one statement cache sample for the given engine.
//
// Counters (hits, misses, busy, evictions, rejected) are cumulative since the
// engine was opened; use a derivative in queries for rates.
//
// Example:
//
//	client.WriteCacheStats(engine.ID(), engine.Cache().Stats())
func (c *Client) WriteCacheStats(engineID string, stats database.CacheStats) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(cacheStatsPoint(c.site, engineID, stats, time.Now()))
}

// WriteEngineHealth records the outcome and latency of an engine health check.
func (c *Client) WriteEngineHealth(engineID string, healthy bool, latency time.Duration) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(engineHealthPoint(c.site, engineID, healthy, latency, time.Now()))
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Example:
//
//	client.WritePoint("gift_totals",
//	    map[string]string{"event": "christmas"},
//	    map[string]interface{}{"planned": 12, "bought": 7})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a custom point with a specific timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}

func cacheStatsPoint(site, engineID string, s database.CacheStats, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementCacheStats,
		pointTags(site, engineID),
		map[string]interface{}{
			"capacity":  s.Capacity,
			"entries":   s.Entries,
			"in_use":    s.InUse,
			"hits":      s.Hits,
			"misses":    s.Misses,
			"busy":      s.Busy,
			"evictions": s.Evictions,
			"rejected":  s.Rejected,
			"hit_ratio": hitRatio(s),
		},
		ts,
	)
}

func engineHealthPoint(site, engineID string, healthy bool, latency time.Duration, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementEngineHealth,
		pointTags(site, engineID),
		map[string]interface{}{
			"healthy":    healthy,
			"latency_ms": float64(latency.Microseconds()) / 1000,
		},
		ts,
	)
}

func pointTags(site, engineID string) map[string]string {
	tags := map[string]string{"engine_id": engineID}
	if site != "" {
		tags["site"] = site
	}
	return tags
}

// hitRatio is hits over all lookups, 0 before the first lookup.
func hitRatio(s database.CacheStats) float64 {
	lookups := s.Hits + s.Misses + s.Busy
	if lookups == 0 {
		return 0
	}
	return float64(s.Hits) / float64(lookups)
}
