// Package influxdb provides InfluxDB connectivity for Gift Planner Core.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, health checks and batched writes of database telemetry.
//
// # Measurements
//
//   - statement_cache: capacity, entries, in_use, hits, misses, busy,
//     evictions, rejected and hit_ratio, tagged with engine_id and site
//   - engine_health: healthy and latency_ms from Engine.HealthCheck
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB, cfg.Site.ID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteCacheStats(engine.ID(), engine.Cache().Stats())
//
// # Error Handling
//
// Writes are non-blocking; batch failures are delivered to the callback set
// with SetOnError. Connection and health check errors are returned directly.
package influxdb
