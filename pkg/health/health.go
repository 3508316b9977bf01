// Package health provides liveness, readiness and dependency checks for the
// scrutiny service: the chain endpoint, the report store and the disk the
// store lives on.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/scrutinychain/sdk/pkg/provider"
)

// =============================================================================
// Health Check Interface
// =============================================================================

// Checker is the interface for health checks.
type Checker interface {
	// Name returns the check name.
	Name() string

	// Check performs the health check.
	Check(ctx context.Context) CheckResult
}

// CheckFunc adapts a function to Checker under the name "func".
type CheckFunc func(ctx context.Context) CheckResult

func (f CheckFunc) Name() string                          { return "func" }
func (f CheckFunc) Check(ctx context.Context) CheckResult { return f(ctx) }

// =============================================================================
// Health Status Types
// =============================================================================

// Status represents the health status.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
	StatusUnknown   Status = "unknown"
)

// CheckResult holds the result of a health check.
type CheckResult struct {
	Status     Status         `json:"status"`
	Message    string         `json:"message,omitempty"`
	Error      string         `json:"error,omitempty"`
	DurationMS int64          `json:"duration_ms"`
	Timestamp  time.Time      `json:"timestamp"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func unhealthy(format string, args ...any) CheckResult {
	return CheckResult{Status: StatusUnhealthy, Error: fmt.Sprintf(format, args...)}
}

// Response is the aggregated health response.
type Response struct {
	Status        Status                 `json:"status"`
	Timestamp     time.Time              `json:"timestamp"`
	Checks        map[string]CheckResult `json:"checks,omitempty"`
	Version       string                 `json:"version,omitempty"`
	UptimeSeconds int64                  `json:"uptime_seconds,omitempty"`
}

// =============================================================================
// Health Handler
// =============================================================================

// Handler runs registered checks and serves them over HTTP.
type Handler struct {
	mu     sync.RWMutex
	checks map[string]Checker
	ready  bool

	version     string
	timeout     time.Duration
	hideDetails bool
	startTime   time.Time
	now         func() time.Time
}

// HandlerOption configures the health handler.
type HandlerOption func(*Handler)

// WithVersion sets the version reported in responses.
func WithVersion(version string) HandlerOption {
	return func(h *Handler) {
		h.version = version
	}
}

// WithTimeout bounds how long all checks may take together.
func WithTimeout(timeout time.Duration) HandlerOption {
	return func(h *Handler) {
		if timeout > 0 {
			h.timeout = timeout
		}
	}
}

// WithHideDetails reports only the overall status, without version, uptime
// or individual check results.
func WithHideDetails() HandlerOption {
	return func(h *Handler) {
		h.hideDetails = true
	}
}

// NewHandler creates a new health handler. It starts out not ready; call
// SetReady once dependencies are wired.
func NewHandler(opts ...HandlerOption) *Handler {
	h := &Handler{
		checks:    make(map[string]Checker),
		timeout:   5 * time.Second,
		startTime: time.Now(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register adds a check under its own name, replacing any previous check
// with that name.
func (h *Handler) Register(checker Checker) {
	h.RegisterAs(checker.Name(), checker)
}

// RegisterAs adds a check under name.
func (h *Handler) RegisterAs(name string, checker Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = checker
}

// Unregister removes a health check.
func (h *Handler) Unregister(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.checks, name)
}

// SetReady sets the readiness state.
func (h *Handler) SetReady(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready = ready
}

// IsReady returns the readiness state.
func (h *Handler) IsReady() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ready
}

// Check runs all registered checks concurrently and aggregates them. Any
// unhealthy check makes the response unhealthy; otherwise any degraded
// check makes it degraded.
func (h *Handler) Check(ctx context.Context) Response {
	h.mu.RLock()
	checks := make(map[string]Checker, len(h.checks))
	for name, checker := range h.checks {
		checks[name] = checker
	}
	h.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make(map[string]CheckResult, len(checks))
	)
	for name, checker := range checks {
		wg.Go(func() {
			start := h.now()
			result := checker.Check(ctx)
			if result.Status == "" {
				result.Status = StatusUnknown
			}
			result.DurationMS = h.now().Sub(start).Milliseconds()
			result.Timestamp = h.now()

			mu.Lock()
			results[name] = result
			mu.Unlock()
		})
	}
	wg.Wait()

	overall := StatusHealthy
	for _, result := range results {
		switch result.Status {
		case StatusUnhealthy:
			overall = StatusUnhealthy
		case StatusDegraded:
			if overall != StatusUnhealthy {
				overall = StatusDegraded
			}
		}
	}

	response := Response{Status: overall, Timestamp: h.now()}
	if !h.hideDetails {
		response.Checks = results
		response.Version = h.version
		response.UptimeSeconds = int64(h.now().Sub(h.startTime).Seconds())
	}
	return response
}

// =============================================================================
// HTTP Handlers
// =============================================================================

// LivenessHandler answers 200 as long as the process can serve requests.
func (h *Handler) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    StatusHealthy,
			"timestamp": h.now(),
		})
	})
}

// ReadinessHandler answers 503 until SetReady(true) and whenever a check is
// unhealthy.
func (h *Handler) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.IsReady() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status":    StatusUnhealthy,
				"message":   "service not ready",
				"timestamp": h.now(),
			})
			return
		}
		response := h.Check(r.Context())
		writeJSON(w, statusCode(response.Status), response)
	})
}

// HealthHandler serves the full check report. Degraded still answers 200.
func (h *Handler) HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response := h.Check(r.Context())
		writeJSON(w, statusCode(response.Status), response)
	})
}

// RegisterRoutes mounts /healthz, /readyz and healthPath on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux, healthPath string) {
	mux.Handle("GET /healthz", h.LivenessHandler())
	mux.Handle("GET /readyz", h.ReadinessHandler())
	if healthPath != "" {
		mux.Handle("GET "+healthPath, h.HealthHandler())
	}
}

func statusCode(s Status) int {
	switch s {
	case StatusHealthy, StatusDegraded:
		return http.StatusOK
	case StatusUnhealthy:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// =============================================================================
// Built-in Health Checks
// =============================================================================

// PingCheck always succeeds.
type PingCheck struct{}

func (c *PingCheck) Name() string { return "ping" }
func (c *PingCheck) Check(ctx context.Context) CheckResult {
	return CheckResult{Status: StatusHealthy, Message: "pong"}
}

// ChainCheck reports whether the chain endpoint answers and whether its head
// is still advancing. A head that has not moved for longer than StallAfter
// is reported as degraded.
type ChainCheck struct {
	Head       provider.HeadReader
	StallAfter time.Duration

	mu         sync.Mutex
	lastHead   uint64
	lastChange time.Time
	now        func() time.Time
}

// NewChainCheck creates a ChainCheck over head.
func NewChainCheck(head provider.HeadReader, stallAfter time.Duration) *ChainCheck {
	return &ChainCheck{Head: head, StallAfter: stallAfter, now: time.Now}
}

func (c *ChainCheck) Name() string { return "chain" }
func (c *ChainCheck) Check(ctx context.Context) CheckResult {
	if c.Head == nil {
		return CheckResult{Status: StatusUnknown, Message: "no chain provider configured"}
	}

	head, err := c.Head.BlockNumber(ctx)
	if err != nil {
		return unhealthy("block number: %v", err)
	}

	now := time.Now
	if c.now != nil {
		now = c.now
	}

	c.mu.Lock()
	if head != c.lastHead || c.lastChange.IsZero() {
		c.lastHead = head
		c.lastChange = now()
	}
	stalled := now().Sub(c.lastChange)
	c.mu.Unlock()

	result := CheckResult{
		Status:   StatusHealthy,
		Message:  fmt.Sprintf("head at block %d", head),
		Metadata: map[string]any{"block_number": head},
	}
	if c.StallAfter > 0 && stalled > c.StallAfter {
		result.Status = StatusDegraded
		result.Message = fmt.Sprintf("head stuck at block %d for %s", head, stalled.Round(time.Second))
	}
	return result
}

// Pinger is implemented by dependencies that can test their connection,
// such as *store.Store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DatabaseCheck checks the report store connection.
type DatabaseCheck struct {
	Store Pinger
}

func (c *DatabaseCheck) Name() string { return "database" }
func (c *DatabaseCheck) Check(ctx context.Context) CheckResult {
	if c.Store == nil {
		return CheckResult{Status: StatusUnknown, Message: "no store configured"}
	}
	if err := c.Store.Ping(ctx); err != nil {
		return unhealthy("%v", err)
	}
	return CheckResult{Status: StatusHealthy, Message: "connected"}
}

// DiskCheck checks free space on the filesystem holding Path.
type DiskCheck struct {
	Path string
	// MinFreePercent is the minimum free space (0-100); it takes precedence
	// over MinFreeBytes when set.
	MinFreePercent float64
	MinFreeBytes   uint64
}

func (c *DiskCheck) Name() string { return "disk" }
func (c *DiskCheck) Check(ctx context.Context) CheckResult {
	path := c.Path
	if path == "" {
		path = "/"
	}

	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return unhealthy("failed to get disk stats: %v", err)
	}

	totalBytes := stat.Blocks * uint64(stat.Bsize) //nolint:gosec // Bsize is positive
	freeBytes := stat.Bavail * uint64(stat.Bsize)  //nolint:gosec // Bsize is positive
	freePercent := 100.0
	if totalBytes > 0 {
		freePercent = float64(freeBytes) / float64(totalBytes) * 100
	}

	result := CheckResult{
		Metadata: map[string]any{
			"path":         path,
			"total_bytes":  totalBytes,
			"free_bytes":   freeBytes,
			"free_percent": fmt.Sprintf("%.2f%%", freePercent),
		},
	}

	switch {
	case c.MinFreePercent > 0 && freePercent < c.MinFreePercent:
		result.Status = StatusUnhealthy
		result.Error = fmt.Sprintf("disk free space %.2f%% is below threshold %.2f%%", freePercent, c.MinFreePercent)
	case c.MinFreePercent <= 0 && c.MinFreeBytes > 0 && freeBytes < c.MinFreeBytes:
		result.Status = StatusUnhealthy
		result.Error = fmt.Sprintf("disk free space %d bytes is below threshold %d bytes", freeBytes, c.MinFreeBytes)
	default:
		result.Status = StatusHealthy
		result.Message = fmt.Sprintf("disk has %.2f%% free space", freePercent)
	}
	return result
}

// MemoryCheck checks Go heap usage.
type MemoryCheck struct {
	MaxHeapBytes uint64
}

func (c *MemoryCheck) Name() string { return "memory" }
func (c *MemoryCheck) Check(ctx context.Context) CheckResult {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	result := CheckResult{
		Metadata: map[string]any{
			"heap_alloc_bytes": m.HeapAlloc,
			"num_gc":           m.NumGC,
			"goroutines":       runtime.NumGoroutine(),
		},
	}
	if c.MaxHeapBytes > 0 && m.HeapAlloc > c.MaxHeapBytes {
		result.Status = StatusUnhealthy
		result.Error = fmt.Sprintf("heap usage %d bytes exceeds threshold %d bytes", m.HeapAlloc, c.MaxHeapBytes)
		return result
	}
	result.Status = StatusHealthy
	result.Message = fmt.Sprintf("heap: %d MB, goroutines: %d", m.HeapAlloc/1024/1024, runtime.NumGoroutine())
	return result
}

var (
	_ Checker = (*PingCheck)(nil)
	_ Checker = (*ChainCheck)(nil)
	_ Checker = (*DatabaseCheck)(nil)
	_ Checker = (*DiskCheck)(nil)
	_ Checker = (*MemoryCheck)(nil)
	_ Checker = CheckFunc(nil)
)
