package influxdb_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/giftplanner-core/internal/infrastructure/config"
	"github.com/nerrad567/giftplanner-core/internal/infrastructure/database"
	"github.com/nerrad567/giftplanner-core/internal/infrastructure/influxdb"
)

const testSite = "test-site"

// fakeInflux answers /ping and records line protocol sent to /api/v2/write.
type fakeInflux struct {
	*httptest.Server

	mu      sync.Mutex
	healthy bool
	lines   []string
	query   []string
}

func newFakeInflux(t *testing.T) *fakeInflux {
	t.Helper()
	f := &fakeInflux{healthy: true}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeInflux) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.URL.Path {
	case "/ping":
		if !f.healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case "/api/v2/write":
		body, _ := io.ReadAll(r.Body) //nolint:errcheck // Test server
		f.query = append(f.query, r.URL.RawQuery)
		for _, line := range strings.Split(strings.TrimSpace(string(body)), "\n") {
			if line != "" {
				f.lines = append(f.lines, line)
			}
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeInflux) setHealthy(healthy bool) {
	f.mu.Lock()
	f.healthy = healthy
	f.mu.Unlock()
}

func (f *fakeInflux) written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func (f *fakeInflux) config() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           f.URL,
		Token:         "giftplanner-test-token",
		Org:           "giftplanner",
		Bucket:        "metrics",
		BatchSize:     100,
		FlushInterval: 60, // tests flush explicitly
	}
}

// connect opens a client against f and fails the test on any async write error.
func connect(t *testing.T, f *fakeInflux) *influxdb.Client {
	t.Helper()
	client, err := influxdb.Connect(f.config(), testSite)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() }) //nolint:errcheck // Test cleanup
	client.SetOnError(func(err error) {
		t.Errorf("async write error: %v", err)
	})
	return client
}

func TestConnect(t *testing.T) {
	client := connect(t, newFakeInflux(t))
	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := newFakeInflux(t).config()
	cfg.Enabled = false

	if _, err := influxdb.Connect(cfg, testSite); !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Failures(t *testing.T) {
	t.Run("unreachable", func(t *testing.T) {
		cfg := newFakeInflux(t).config()
		cfg.URL = "http://127.0.0.1:59999"
		if _, err := influxdb.Connect(cfg, testSite); !errors.Is(err, influxdb.ErrConnectionFailed) {
			t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
		}
	})

	t.Run("unhealthy", func(t *testing.T) {
		f := newFakeInflux(t)
		f.setHealthy(false)
		if _, err := influxdb.Connect(f.config(), testSite); !errors.Is(err, influxdb.ErrConnectionFailed) {
			t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
		}
	})
}

func TestConnect_DefaultBatchSettings(t *testing.T) {
	f := newFakeInflux(t)
	for _, size := range []int{0, -5} {
		cfg := f.config()
		cfg.BatchSize = size
		cfg.FlushInterval = size

		client, err := influxdb.Connect(cfg, testSite)
		if err != nil {
			t.Fatalf("Connect() with batch settings %d error = %v", size, err)
		}
		client.Close() //nolint:errcheck // Test cleanup
	}
}

func TestHealthCheck(t *testing.T) {
	f := newFakeInflux(t)
	client := connect(t, f)
	ctx := context.Background()

	if err := client.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	f.setHealthy(false)
	if err := client.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck() should fail when the server is unhealthy")
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	f.setHealthy(true)
	if err := client.HealthCheck(cancelled); err == nil {
		t.Error("HealthCheck() should fail for a cancelled context")
	}
}

func TestWriteCacheStats(t *testing.T) {
	f := newFakeInflux(t)
	client := connect(t, f)

	client.WriteCacheStats("engine-1", database.CacheStats{
		Capacity: 16, Entries: 4, InUse: 1, Hits: 6, Misses: 2,
	})
	client.Flush()

	lines := f.written()
	if len(lines) != 1 {
		t.Fatalf("wrote %d lines, want 1: %v", len(lines), lines)
	}
	line := lines[0]
	if !strings.HasPrefix(line, "statement_cache,engine_id=engine-1,site=test-site ") {
		t.Errorf("line = %q", line)
	}
	for _, field := range []string{"capacity=16i", "hits=6u", "misses=2u", "in_use=1i", "hit_ratio=0.75"} {
		if !strings.Contains(line, field) {
			t.Errorf("line %q missing %s", line, field)
		}
	}

	f.mu.Lock()
	query := f.query[0]
	f.mu.Unlock()
	if !strings.Contains(query, "bucket=metrics") || !strings.Contains(query, "org=giftplanner") {
		t.Errorf("write query = %q", query)
	}
}

func TestWriteEngineHealth(t *testing.T) {
	f := newFakeInflux(t)
	client := connect(t, f)

	client.WriteEngineHealth("engine-2", false, 1500*time.Microsecond)
	client.Flush()

	lines := f.written()
	if len(lines) != 1 {
		t.Fatalf("wrote %d lines, want 1", len(lines))
	}
	if !strings.HasPrefix(lines[0], "engine_health,engine_id=engine-2,site=test-site ") ||
		!strings.Contains(lines[0], "healthy=false") || !strings.Contains(lines[0], "latency_ms=1.5") {
		t.Errorf("line = %q", lines[0])
	}
}

func TestWritePointWithTime(t *testing.T) {
	f := newFakeInflux(t)
	client := connect(t, f)

	ts := time.Date(2026, 12, 24, 18, 0, 0, 0, time.UTC)
	client.WritePointWithTime("gift_totals",
		map[string]string{"event": "christmas"},
		map[string]interface{}{"planned": 12},
		ts,
	)
	client.WritePoint("gift_totals", map[string]string{"event": "birthday"}, map[string]interface{}{"planned": 3})
	client.Flush()

	lines := f.written()
	if len(lines) != 2 {
		t.Fatalf("wrote %d lines, want 2: %v", len(lines), lines)
	}
	want := "gift_totals,event=christmas planned=12i " + strconv.FormatInt(ts.UnixNano(), 10)
	if lines[0] != want {
		t.Errorf("line = %q, want %q", lines[0], want)
	}
}

func TestClose(t *testing.T) {
	f := newFakeInflux(t)
	client, err := influxdb.Connect(f.config(), testSite)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	client.WriteCacheStats("close-test", database.CacheStats{Capacity: 1})
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if len(f.written()) != 1 {
		t.Error("Close() did not flush the pending point")
	}

	// Writes after Close are dropped.
	client.WriteCacheStats("close-test", database.CacheStats{Capacity: 1})
	client.Flush()
	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() after Close error = %v, want ErrNotConnected", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
