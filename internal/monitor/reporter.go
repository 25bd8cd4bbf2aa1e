package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nerrad567/giftplanner-core/internal/infrastructure/database"
)

// DefaultInterval is used when Config.Interval is zero.
const DefaultInterval = 30 * time.Second

// Engine is the part of *database.Engine the reporter reads.
type Engine interface {
	ID() string
	Path() string
	InTransaction() bool
	Cache() *database.StatementCache
}

// StatsSink receives every sample the reporter takes.
type StatsSink interface {
	// Name identifies the sink in logs.
	Name() string

	// Report delivers one sample. Errors are logged and do not stop reporting.
	Report(ctx context.Context, s Sample) error
}

// Logger is the logging surface the reporter needs.
type Logger interface {
	Debug(msg string, args ...any)
	Error(msg string, args ...any)
}

// Sample is one reading of an engine's statement cache.
type Sample struct {
	EngineID      string      `json:"engine_id"`
	Site          string      `json:"site,omitempty"`
	Path          string      `json:"path"`
	InTransaction bool        `json:"in_transaction"`
	Cache         CacheReport `json:"cache"`
	Timestamp     time.Time   `json:"timestamp"`
}

// CacheReport mirrors database.CacheStats with JSON field names.
type CacheReport struct {
	Capacity  int    `json:"capacity"`
	Entries   int    `json:"entries"`
	InUse     int    `json:"in_use"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Busy      uint64 `json:"busy"`
	Evictions uint64 `json:"evictions"`
	Rejected  uint64 `json:"rejected"`
}

// Stats converts the report back to the cache's own type.
func (c CacheReport) Stats() database.CacheStats {
	return database.CacheStats(c)
}

// Config holds configuration for the reporter.
type Config struct {
	// Site is copied into every sample.
	Site string

	// Interval is how often to sample. Default: 30 seconds.
	Interval time.Duration

	Sinks []StatsSink
}

// Reporter periodically samples an engine's statement cache and fans each
// sample out to its sinks.
type Reporter struct {
	engine   Engine
	site     string
	interval time.Duration
	sinks    []StatsSink

	// Shutdown coordination (stopOnce prevents double-close panics)
	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewReporter creates a reporter for engine. Call Start to begin reporting.
func NewReporter(engine Engine, cfg Config) *Reporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Reporter{
		engine:   engine,
		site:     cfg.Site,
		interval: interval,
		sinks:    cfg.Sinks,
		done:     make(chan struct{}),
	}
}

// SetLogger sets the logger for this reporter.
func (r *Reporter) SetLogger(logger Logger) {
	r.loggerMu.Lock()
	r.logger = logger
	r.loggerMu.Unlock()
}

// Interval returns the sampling interval.
func (r *Reporter) Interval() time.Duration {
	return r.interval
}

// Start begins periodic reporting until ctx is cancelled or Stop is called.
// Only the first call has any effect.
func (r *Reporter) Start(ctx context.Context) {
	r.startOnce.Do(func() {
		r.wg.Add(1)
		go r.reportLoop(ctx)
	})
}

// Stop ends reporting and sends one final sample.
// Safe to call multiple times.
func (r *Reporter) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
		r.wg.Wait()

		//nolint:errcheck // Best-effort during shutdown; sink errors are logged
		r.ReportNow(context.Background())
	})
}

// Sample reads the engine's current state.
func (r *Reporter) Sample() Sample {
	return Sample{
		EngineID:      r.engine.ID(),
		Site:          r.site,
		Path:          r.engine.Path(),
		InTransaction: r.engine.InTransaction(),
		Cache:         CacheReport(r.engine.Cache().Stats()),
		Timestamp:     time.Now().UTC(),
	}
}

// ReportNow takes a sample and delivers it to every sink. Every sink is
// tried; the returned error joins the individual failures.
func (r *Reporter) ReportNow(ctx context.Context) error {
	s := r.Sample()
	r.logDebug("statement cache sample",
		"entries", s.Cache.Entries,
		"in_use", s.Cache.InUse,
		"hits", s.Cache.Hits,
		"misses", s.Cache.Misses,
	)

	var errs []error
	for _, sink := range r.sinks {
		if err := sink.Report(ctx, s); err != nil {
			r.logError("stats sink failed", err, "sink", sink.Name())
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// HandleStatsRequest answers an on-demand request for statistics. Its
// signature matches mqtt.MessageHandler.
func (r *Reporter) HandleStatsRequest(_ string, _ []byte) error {
	return r.ReportNow(context.Background())
}

func (r *Reporter) reportLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	//nolint:errcheck // Sink errors are logged by ReportNow
	r.ReportNow(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case <-ticker.C:
			//nolint:errcheck // Sink errors are logged by ReportNow
			r.ReportNow(ctx)
		}
	}
}

func (r *Reporter) getLogger() Logger {
	r.loggerMu.RLock()
	defer r.loggerMu.RUnlock()
	return r.logger
}

func (r *Reporter) logDebug(msg string, args ...any) {
	if logger := r.getLogger(); logger != nil {
		logger.Debug(msg, args...)
	}
}

func (r *Reporter) logError(msg string, err error, args ...any) {
	if logger := r.getLogger(); logger != nil {
		logger.Error(msg, append([]any{"error", err}, args...)...)
	}
}
