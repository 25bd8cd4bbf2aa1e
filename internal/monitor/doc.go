// Package monitor reports statement cache statistics for a database engine.
//
// A Reporter samples Engine.Cache().Stats() on a ticker and hands each
// Sample to its sinks: MQTTSink publishes a retained JSON document and
// InfluxSink writes a statement_cache point. The reporter only reads the
// cache's counters, which are guarded by the cache's own mutex, so it can
// run beside the goroutine that owns the engine.
//
//	reporter := monitor.NewReporter(engine, monitor.Config{
//	    Site:     cfg.Site.ID,
//	    Interval: cfg.GetMonitorInterval(),
//	    Sinks:    []monitor.StatsSink{monitor.NewMQTTSink(mqttClient)},
//	})
//	reporter.Start(ctx)
//	defer reporter.Stop()
package monitor
