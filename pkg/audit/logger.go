// Package audit provides structured audit logging for analysis requests.
//
// Every request that reaches an engine through the API or the CLI is
// recorded as one or more JSON-lines events: who asked for what, what the
// outcome was, and how long it took. Events are buffered and flushed to the
// audit file periodically and on Stop.
package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of audit event.
type EventType string

const (
	// Lifecycle events
	EventServiceStart EventType = "service_start"
	EventServiceStop  EventType = "service_stop"

	// Analysis events
	EventAnalysisRequested EventType = "analysis_requested"
	EventAnalysisCompleted EventType = "analysis_completed"
	EventAnalysisFailed    EventType = "analysis_failed"

	// Transaction events
	EventTransactionProcessed EventType = "transaction_processed"
	EventBatchProcessed       EventType = "batch_processed"

	// Security events
	EventRateLimited     EventType = "rate_limited"
	EventValidationError EventType = "validation_error"
)

// Severity represents log severity level.
type Severity string

const (
	SeverityDebug    Severity = "DEBUG"
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARN"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

// Event represents an audit event.
type Event struct {
	ID         string                 `json:"id"`
	Timestamp  time.Time              `json:"timestamp"`
	Type       EventType              `json:"type"`
	Severity   Severity               `json:"severity"`
	ServiceID  string                 `json:"service_id,omitempty"`
	RequestID  string                 `json:"request_id,omitempty"`
	Address    string                 `json:"address,omitempty"`
	TxHash     string                 `json:"tx_hash,omitempty"`
	Message    string                 `json:"message"`
	Error      string                 `json:"error,omitempty"`
	DurationMS int64                  `json:"duration_ms,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// LoggerConfig configures the audit logger.
type LoggerConfig struct {
	// ServiceID identifies this process in every event.
	ServiceID string

	// LogFile is the path to the audit log file.
	// Default: ~/.scrutiny/audit.log
	LogFile string

	// Output, when set, receives events instead of LogFile.
	Output io.Writer

	// BufferSize is the number of events to buffer before flushing.
	// Default: 100
	BufferSize int

	// FlushInterval is how often to flush buffered events.
	// Default: 5 seconds
	FlushInterval time.Duration

	// Verbose enables console output of audit events.
	Verbose bool
}

// DefaultLoggerConfig returns sensible defaults.
func DefaultLoggerConfig() *LoggerConfig {
	home, _ := os.UserHomeDir()
	if home == "" {
		home = os.TempDir()
	}

	return &LoggerConfig{
		LogFile:       filepath.Join(home, ".scrutiny", "audit.log"),
		BufferSize:    100,
		FlushInterval: 5 * time.Second,
	}
}

// Logger is the audit logger.
type Logger struct {
	config *LoggerConfig
	out    io.Writer
	file   *os.File
	mu     sync.Mutex

	buffer   []Event
	bufferMu sync.Mutex

	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	now func() time.Time
}

// NewLogger creates a new audit logger.
func NewLogger(config *LoggerConfig) (*Logger, error) {
	if config == nil {
		config = DefaultLoggerConfig()
	}
	cfg := *config

	// Apply defaults for zero values
	if cfg.LogFile == "" {
		cfg.LogFile = DefaultLoggerConfig().LogFile
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}

	l := &Logger{
		config: &cfg,
		buffer: make([]Event, 0, cfg.BufferSize),
		stopCh: make(chan struct{}),
		now:    time.Now,
	}

	if cfg.Output != nil {
		l.out = cfg.Output
		return l, nil
	}

	// Ensure log directory exists
	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	// Open log file for append (0640 = owner read/write, group read)
	file, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	l.file = file
	l.out = file

	return l, nil
}

// Start begins background flushing.
func (l *Logger) Start() {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return
	}
	l.running = true
	l.stopCh = make(chan struct{})
	l.mu.Unlock()

	l.wg.Add(1)
	go l.flushLoop()
}

// Stop stops the logger, flushes remaining events and closes the audit file.
func (l *Logger) Stop() error {
	l.mu.Lock()
	wasRunning := l.running
	if l.running {
		l.running = false
		close(l.stopCh)
	}
	l.mu.Unlock()

	if wasRunning {
		l.wg.Wait()
	}

	// Final flush
	l.Flush()

	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Log records an audit event.
func (l *Logger) Log(event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	event.Timestamp = l.now().UTC()
	if event.ServiceID == "" {
		event.ServiceID = l.config.ServiceID
	}

	l.bufferMu.Lock()
	l.buffer = append(l.buffer, event)
	shouldFlush := len(l.buffer) >= l.config.BufferSize
	l.bufferMu.Unlock()

	if l.config.Verbose {
		l.printEvent(event)
	}

	if shouldFlush {
		l.Flush()
	}
}

// Info logs an informational event.
func (l *Logger) Info(eventType EventType, message string, details map[string]interface{}) {
	l.Log(Event{
		Type:     eventType,
		Severity: SeverityInfo,
		Message:  message,
		Details:  details,
	})
}

// Error logs an error event.
func (l *Logger) Error(eventType EventType, message string, err error, details map[string]interface{}) {
	event := Event{
		Type:     eventType,
		Severity: SeverityError,
		Message:  message,
		Details:  details,
	}
	if err != nil {
		event.Error = err.Error()
	}
	l.Log(event)
}

// Flush writes buffered events to the output.
func (l *Logger) Flush() {
	l.bufferMu.Lock()
	if len(l.buffer) == 0 {
		l.bufferMu.Unlock()
		return
	}
	events := l.buffer
	l.buffer = make([]Event, 0, l.config.BufferSize)
	l.bufferMu.Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			continue
		}
		_, _ = l.out.Write(append(data, '\n'))
	}

	if l.file != nil {
		_ = l.file.Sync()
	}
}

// flushLoop periodically flushes buffered events.
func (l *Logger) flushLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.Flush()
		}
	}
}

// printEvent prints an event to console in human-readable format.
func (l *Logger) printEvent(event Event) {
	timestamp := event.Timestamp.Format("2006-01-02 15:04:05")
	fmt.Printf("[%s] [%s] %s: %s\n", timestamp, event.Severity, event.Type, event.Message)
	if event.Error != "" {
		fmt.Printf("  Error: %s\n", event.Error)
	}
}

// WithRequest returns a logger that stamps every event with requestID.
func (l *Logger) WithRequest(requestID string) *RequestLogger {
	return &RequestLogger{logger: l, requestID: requestID}
}

// =============================================================================
// Request Logger
// =============================================================================

// RequestLogger wraps Logger with the ID of one request. A nil
// *RequestLogger discards everything.
type RequestLogger struct {
	logger    *Logger
	requestID string
}

func (rl *RequestLogger) log(event Event) {
	if rl == nil || rl.logger == nil {
		return
	}
	event.RequestID = rl.requestID
	rl.logger.Log(event)
}

// AnalysisRequested records that a contract analysis was asked for.
func (rl *RequestLogger) AnalysisRequested(address string) {
	rl.log(Event{
		Type:     EventAnalysisRequested,
		Severity: SeverityInfo,
		Address:  address,
		Message:  "Contract analysis requested",
	})
}

// AnalysisCompleted records a finished contract analysis.
func (rl *RequestLogger) AnalysisCompleted(address, risk string, findings int, duration time.Duration) {
	rl.log(Event{
		Type:       EventAnalysisCompleted,
		Severity:   SeverityInfo,
		Address:    address,
		Message:    fmt.Sprintf("Contract analysis completed: risk %s", risk),
		DurationMS: duration.Milliseconds(),
		Details: map[string]interface{}{
			"risk_level": risk,
			"findings":   findings,
		},
	})
}

// AnalysisFailed records a failed contract analysis.
func (rl *RequestLogger) AnalysisFailed(address string, err error, duration time.Duration) {
	event := Event{
		Type:       EventAnalysisFailed,
		Severity:   SeverityError,
		Address:    address,
		Message:    "Contract analysis failed",
		DurationMS: duration.Milliseconds(),
	}
	if err != nil {
		event.Error = err.Error()
	}
	rl.log(event)
}

// TransactionProcessed records one processed transaction.
func (rl *RequestLogger) TransactionProcessed(hash string, entries int, failed bool) {
	severity := SeverityInfo
	if failed {
		severity = SeverityWarning
	}
	rl.log(Event{
		Type:     EventTransactionProcessed,
		Severity: severity,
		TxHash:   hash,
		Message:  "Transaction processed",
		Details: map[string]interface{}{
			"entries": entries,
			"failed":  failed,
		},
	})
}

// BatchProcessed records a processed batch.
func (rl *RequestLogger) BatchProcessed(batchID string, transactions, failed int, duration time.Duration) {
	severity := SeverityInfo
	if failed > 0 {
		severity = SeverityWarning
	}
	rl.log(Event{
		Type:       EventBatchProcessed,
		Severity:   severity,
		Message:    fmt.Sprintf("Batch processed: %d transactions, %d failed", transactions, failed),
		DurationMS: duration.Milliseconds(),
		Details: map[string]interface{}{
			"batch_id":     batchID,
			"transactions": transactions,
			"failed":       failed,
		},
	})
}

// ValidationError records a rejected request.
func (rl *RequestLogger) ValidationError(message string, err error) {
	event := Event{
		Type:     EventValidationError,
		Severity: SeverityWarning,
		Message:  message,
	}
	if err != nil {
		event.Error = err.Error()
	}
	rl.log(event)
}
