package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/giftplanner-core/internal/infrastructure/database"
)

// mockPublisher implements JSONPublisher for testing.
type mockPublisher struct {
	mu        sync.Mutex
	connected bool
	messages  []publishedMessage
	err       error
}

type publishedMessage struct {
	topic    string
	payload  []byte
	retained bool
}

func (m *mockPublisher) PublishJSON(topic string, v any, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.messages = append(m.messages, publishedMessage{topic: topic, payload: payload, retained: retained})
	return nil
}

func (m *mockPublisher) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockPublisher) getMessages() []publishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]publishedMessage, len(m.messages))
	copy(result, m.messages)
	return result
}

// mockWriter implements CacheStatsWriter for testing.
type mockWriter struct {
	mu     sync.Mutex
	writes []database.CacheStats
	ids    []string
}

func (m *mockWriter) WriteCacheStats(engineID string, stats database.CacheStats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = append(m.ids, engineID)
	m.writes = append(m.writes, stats)
}

func (m *mockWriter) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.writes)
}

// failingSink always fails.
type failingSink struct{ err error }

func (f failingSink) Name() string                         { return "failing" }
func (f failingSink) Report(context.Context, Sample) error { return f.err }

// recordingLogger captures error messages.
type recordingLogger struct {
	mu     sync.Mutex
	errors []string
}

func (l *recordingLogger) Debug(string, ...any) {}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func openEngine(t *testing.T) *database.Engine {
	t.Helper()
	e, err := database.Open(database.Config{Path: database.MemoryPath, CacheCapacity: 4}, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { e.Close() }) //nolint:errcheck // Test cleanup
	return e
}

// warmCache runs query twice. The first run misses, compiles and borrows the
// new entry; the second is a plain hit.
func warmCache(t *testing.T, e *database.Engine, query string) {
	t.Helper()
	for i := 0; i < 2; i++ {
		stmt, err := database.NewStatement(e, query)
		if err != nil {
			t.Fatalf("NewStatement() error = %v", err)
		}
		if _, err := stmt.Step(); err != nil {
			t.Fatalf("Step() error = %v", err)
		}
		if err := stmt.Finalize(); err != nil {
			t.Fatalf("Finalize() error = %v", err)
		}
	}
}

func TestNewReporter_DefaultInterval(t *testing.T) {
	r := NewReporter(openEngine(t), Config{})
	if r.Interval() != DefaultInterval {
		t.Errorf("Interval() = %v, want %v", r.Interval(), DefaultInterval)
	}
}

func TestReporter_Sample(t *testing.T) {
	e := openEngine(t)
	warmCache(t, e, "SELECT 42")

	r := NewReporter(e, Config{Site: "home"})
	s := r.Sample()

	if s.EngineID != e.ID() || s.Site != "home" || s.Path != database.MemoryPath {
		t.Errorf("sample identity = %+v", s)
	}
	if s.Cache.Capacity != 4 || s.Cache.Entries != 1 || s.Cache.InUse != 0 {
		t.Errorf("cache = %+v, want capacity 4 with one idle entry", s.Cache)
	}
	if s.Cache.Hits != 2 || s.Cache.Misses != 1 {
		t.Errorf("hits/misses = %d/%d, want 2/1", s.Cache.Hits, s.Cache.Misses)
	}
	if s.Cache.Stats() != e.Cache().Stats() {
		t.Error("CacheReport.Stats() does not round-trip")
	}
}

func TestReporter_ReportNow(t *testing.T) {
	e := openEngine(t)
	pub := &mockPublisher{connected: true}
	writer := &mockWriter{}

	r := NewReporter(e, Config{Sinks: []StatsSink{NewMQTTSink(pub), NewInfluxSink(writer)}})
	if err := r.ReportNow(context.Background()); err != nil {
		t.Fatalf("ReportNow() error = %v", err)
	}

	msgs := pub.getMessages()
	if len(msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(msgs))
	}
	if msgs[0].topic != "giftplanner/core/database/stats" || !msgs[0].retained {
		t.Errorf("message = %s retained=%v", msgs[0].topic, msgs[0].retained)
	}

	var got Sample
	if err := json.Unmarshal(msgs[0].payload, &got); err != nil {
		t.Fatalf("payload is not a Sample: %v", err)
	}
	if got.EngineID != e.ID() || got.Cache.Capacity != 4 {
		t.Errorf("payload = %+v", got)
	}

	if writer.count() != 1 || writer.ids[0] != e.ID() {
		t.Errorf("influx writes = %d (%v)", writer.count(), writer.ids)
	}
}

func TestReporter_SinkFailures(t *testing.T) {
	e := openEngine(t)
	errSink := errors.New("sink down")
	writer := &mockWriter{}
	logger := &recordingLogger{}

	r := NewReporter(e, Config{Sinks: []StatsSink{failingSink{err: errSink}, NewInfluxSink(writer)}})
	r.SetLogger(logger)

	err := r.ReportNow(context.Background())
	if !errors.Is(err, errSink) {
		t.Errorf("ReportNow() error = %v, want errSink", err)
	}
	if writer.count() != 1 {
		t.Error("a failing sink stopped later sinks from reporting")
	}
	if len(logger.errors) != 1 {
		t.Errorf("logged errors = %v, want 1", logger.errors)
	}
}

func TestMQTTSink(t *testing.T) {
	t.Run("skips while disconnected", func(t *testing.T) {
		pub := &mockPublisher{connected: false}
		if err := NewMQTTSink(pub).Report(context.Background(), Sample{}); err != nil {
			t.Errorf("Report() error = %v", err)
		}
		if len(pub.getMessages()) != 0 {
			t.Error("published while disconnected")
		}
	})

	t.Run("wraps publish errors", func(t *testing.T) {
		errPub := errors.New("broker said no")
		pub := &mockPublisher{connected: true, err: errPub}
		err := NewMQTTSink(pub).Report(context.Background(), Sample{})
		if !errors.Is(err, errPub) {
			t.Errorf("Report() error = %v, want errPub", err)
		}
	})
}

func TestInfluxSink_CancelledContext(t *testing.T) {
	writer := &mockWriter{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := NewInfluxSink(writer).Report(ctx, Sample{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Report() error = %v, want context.Canceled", err)
	}
	if writer.count() != 0 {
		t.Error("wrote after cancellation")
	}
}

func TestReporter_StartStop(t *testing.T) {
	e := openEngine(t)
	writer := &mockWriter{}

	r := NewReporter(e, Config{Interval: 10 * time.Millisecond, Sinks: []StatsSink{NewInfluxSink(writer)}})
	r.Start(context.Background())
	r.Start(context.Background()) // second Start is ignored

	deadline := time.Now().Add(2 * time.Second)
	for writer.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if writer.count() < 3 {
		t.Fatalf("reports after start = %d, want at least 3", writer.count())
	}

	r.Stop()
	afterStop := writer.count()
	r.Stop() // safe to call twice

	time.Sleep(30 * time.Millisecond)
	if writer.count() != afterStop {
		t.Errorf("reports continued after Stop: %d -> %d", afterStop, writer.count())
	}
}

func TestReporter_ContextCancelStopsLoop(t *testing.T) {
	e := openEngine(t)
	writer := &mockWriter{}

	ctx, cancel := context.WithCancel(context.Background())
	r := NewReporter(e, Config{Interval: time.Hour, Sinks: []StatsSink{NewInfluxSink(writer)}})
	r.Start(ctx)
	cancel()

	// Stop waits for the loop to exit and sends the final sample.
	r.Stop()
	if writer.count() < 1 {
		t.Error("final sample not reported")
	}
}

func TestReporter_HandleStatsRequest(t *testing.T) {
	pub := &mockPublisher{connected: true}
	r := NewReporter(openEngine(t), Config{Sinks: []StatsSink{NewMQTTSink(pub)}})

	if err := r.HandleStatsRequest("giftplanner/core/database/stats/request", nil); err != nil {
		t.Fatalf("HandleStatsRequest() error = %v", err)
	}
	if len(pub.getMessages()) != 1 {
		t.Errorf("published %d messages, want 1", len(pub.getMessages()))
	}
}
