package audit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncBuffer is a bytes.Buffer safe for concurrent writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) events(t *testing.T) []Event {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []Event
	scanner := bufio.NewScanner(bytes.NewReader(b.buf.Bytes()))
	for scanner.Scan() {
		var e Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("invalid JSON line %q: %v", scanner.Text(), err)
		}
		out = append(out, e)
	}
	return out
}

func newBufferedLogger(t *testing.T, bufferSize int) (*Logger, *syncBuffer) {
	t.Helper()
	out := &syncBuffer{}
	l, err := NewLogger(&LoggerConfig{
		ServiceID:     "scrutiny-test",
		Output:        out,
		BufferSize:    bufferSize,
		FlushInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	l.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return l, out
}

func TestDefaultLoggerConfig(t *testing.T) {
	cfg := DefaultLoggerConfig()

	if cfg.BufferSize != 100 {
		t.Errorf("BufferSize = %d, want 100", cfg.BufferSize)
	}
	if cfg.FlushInterval != 5*time.Second {
		t.Errorf("FlushInterval = %v, want 5s", cfg.FlushInterval)
	}
	if !strings.Contains(cfg.LogFile, ".scrutiny") {
		t.Errorf("LogFile %q should be under .scrutiny", cfg.LogFile)
	}
}

func TestNewLogger_File(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "nested", "audit.log")

	l, err := NewLogger(&LoggerConfig{LogFile: logFile, ServiceID: "svc"})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	l.Info(EventServiceStart, "started", nil)
	if err := l.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var e Event
	if err := json.Unmarshal(bytes.TrimSpace(data), &e); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if e.Type != EventServiceStart {
		t.Errorf("Type = %s, want %s", e.Type, EventServiceStart)
	}
	if e.ServiceID != "svc" {
		t.Errorf("ServiceID = %s, want svc", e.ServiceID)
	}
}

func TestLogger_Defaults(t *testing.T) {
	l, _ := newBufferedLogger(t, 0)
	defer l.Stop()

	if l.config.BufferSize != 100 {
		t.Errorf("BufferSize = %d, want 100", l.config.BufferSize)
	}
}

func TestLogger_BuffersUntilFlush(t *testing.T) {
	l, out := newBufferedLogger(t, 10)

	l.Info(EventServiceStart, "one", nil)
	l.Info(EventServiceStart, "two", nil)

	if got := len(out.events(t)); got != 0 {
		t.Fatalf("events written before flush = %d, want 0", got)
	}

	l.Flush()
	events := out.events(t)
	if len(events) != 2 {
		t.Fatalf("events after flush = %d, want 2", len(events))
	}
	if events[0].Message != "one" || events[1].Message != "two" {
		t.Errorf("events out of order: %q, %q", events[0].Message, events[1].Message)
	}
	if events[0].ID == "" || events[0].ID == events[1].ID {
		t.Errorf("events should carry unique IDs, got %q and %q", events[0].ID, events[1].ID)
	}
	if !events[0].Timestamp.Equal(time.Unix(1_700_000_000, 0)) {
		t.Errorf("Timestamp = %v", events[0].Timestamp)
	}
}

func TestLogger_FlushesWhenBufferFull(t *testing.T) {
	l, out := newBufferedLogger(t, 2)

	l.Info(EventServiceStart, "one", nil)
	l.Info(EventServiceStart, "two", nil)

	if got := len(out.events(t)); got != 2 {
		t.Errorf("events = %d, want 2", got)
	}
}

func TestLogger_Error(t *testing.T) {
	l, out := newBufferedLogger(t, 10)

	l.Error(EventAnalysisFailed, "failed", errors.New("boom"), map[string]interface{}{"k": "v"})
	l.Flush()

	events := out.events(t)
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	if events[0].Severity != SeverityError {
		t.Errorf("Severity = %s, want ERROR", events[0].Severity)
	}
	if events[0].Error != "boom" {
		t.Errorf("Error = %q, want boom", events[0].Error)
	}
	if events[0].Details["k"] != "v" {
		t.Errorf("Details = %v", events[0].Details)
	}
}

func TestLogger_StartStop(t *testing.T) {
	out := &syncBuffer{}
	l, err := NewLogger(&LoggerConfig{Output: out, FlushInterval: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	l.Start()
	l.Start() // no-op
	l.Info(EventServiceStart, "tick", nil)

	deadline := time.Now().Add(2 * time.Second)
	for len(out.events(t)) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if len(out.events(t)) != 1 {
		t.Fatal("flush loop did not write the event")
	}

	l.Info(EventServiceStop, "bye", nil)
	if err := l.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if got := len(out.events(t)); got != 2 {
		t.Errorf("events after Stop = %d, want 2", got)
	}
}

func TestRequestLogger(t *testing.T) {
	l, out := newBufferedLogger(t, 100)
	rl := l.WithRequest("req-1")

	rl.AnalysisRequested("0xc0ffee")
	rl.AnalysisCompleted("0xc0ffee", "High", 3, 1500*time.Millisecond)
	rl.AnalysisFailed("0xdead", errors.New("no code"), time.Second)
	rl.TransactionProcessed("0x123", 4, true)
	rl.BatchProcessed("batch-1", 10, 2, 2*time.Second)
	rl.ValidationError("bad request", errors.New("invalid json"))
	l.Flush()

	events := out.events(t)
	wantTypes := []EventType{
		EventAnalysisRequested,
		EventAnalysisCompleted,
		EventAnalysisFailed,
		EventTransactionProcessed,
		EventBatchProcessed,
		EventValidationError,
	}
	if len(events) != len(wantTypes) {
		t.Fatalf("events = %d, want %d", len(events), len(wantTypes))
	}
	for i, want := range wantTypes {
		if events[i].Type != want {
			t.Errorf("events[%d].Type = %s, want %s", i, events[i].Type, want)
		}
		if events[i].RequestID != "req-1" {
			t.Errorf("events[%d].RequestID = %q, want req-1", i, events[i].RequestID)
		}
		if events[i].ServiceID != "scrutiny-test" {
			t.Errorf("events[%d].ServiceID = %q", i, events[i].ServiceID)
		}
	}

	completed := events[1]
	if completed.Address != "0xc0ffee" {
		t.Errorf("Address = %q", completed.Address)
	}
	if completed.DurationMS != 1500 {
		t.Errorf("DurationMS = %d, want 1500", completed.DurationMS)
	}
	if completed.Details["risk_level"] != "High" {
		t.Errorf("risk_level = %v", completed.Details["risk_level"])
	}
	// JSON numbers decode as float64.
	if completed.Details["findings"] != float64(3) {
		t.Errorf("findings = %v", completed.Details["findings"])
	}

	if events[2].Error != "no code" || events[2].Severity != SeverityError {
		t.Errorf("failed event = %+v", events[2])
	}
	if events[3].TxHash != "0x123" || events[3].Severity != SeverityWarning {
		t.Errorf("transaction event = %+v", events[3])
	}
	if events[4].Severity != SeverityWarning {
		t.Errorf("batch with failures should be WARN, got %s", events[4].Severity)
	}
}

func TestRequestLogger_Nil(t *testing.T) {
	var rl *RequestLogger
	// Must not panic.
	rl.AnalysisRequested("0x1")
	rl.BatchProcessed("b", 1, 0, 0)
}

func TestLogger_ConcurrentLog(t *testing.T) {
	l, out := newBufferedLogger(t, 7)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				l.WithRequest("r").TransactionProcessed("0x1", 1, false)
			}
		}()
	}
	wg.Wait()
	if err := l.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if got := len(out.events(t)); got != 200 {
		t.Errorf("events = %d, want 200", got)
	}
}
