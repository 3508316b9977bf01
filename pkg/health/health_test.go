package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type headFunc func(ctx context.Context) (uint64, error)

func (f headFunc) BlockNumber(ctx context.Context) (uint64, error) { return f(ctx) }

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func staticCheck(status Status) CheckFunc {
	return func(ctx context.Context) CheckResult { return CheckResult{Status: status} }
}

func TestHandler(t *testing.T) {
	h := NewHandler(WithVersion("1.0.0"), WithTimeout(time.Second))

	t.Run("Register and check", func(t *testing.T) {
		h.Register(&PingCheck{})

		response := h.Check(context.Background())

		if response.Status != StatusHealthy {
			t.Errorf("Status = %v, want %v", response.Status, StatusHealthy)
		}
		if response.Version != "1.0.0" {
			t.Errorf("Version = %v, want 1.0.0", response.Version)
		}
		if _, ok := response.Checks["ping"]; !ok {
			t.Error("expected 'ping' check in response")
		}
	})

	t.Run("Unregister", func(t *testing.T) {
		h.Unregister("ping")
		response := h.Check(context.Background())

		if len(response.Checks) != 0 {
			t.Errorf("Checks after unregister = %d, want 0", len(response.Checks))
		}
	})

	t.Run("Empty status becomes unknown", func(t *testing.T) {
		h.RegisterAs("blank", CheckFunc(func(ctx context.Context) CheckResult { return CheckResult{} }))
		defer h.Unregister("blank")

		response := h.Check(context.Background())
		if got := response.Checks["blank"].Status; got != StatusUnknown {
			t.Errorf("Status = %v, want %v", got, StatusUnknown)
		}
	})
}

func TestCheckStatusAggregation(t *testing.T) {
	tests := []struct {
		name     string
		statuses []Status
		want     Status
	}{
		{"all healthy", []Status{StatusHealthy, StatusHealthy}, StatusHealthy},
		{"one degraded", []Status{StatusHealthy, StatusDegraded}, StatusDegraded},
		{"one unhealthy", []Status{StatusDegraded, StatusUnhealthy}, StatusUnhealthy},
		{"unknown does not fail", []Status{StatusHealthy, StatusUnknown}, StatusHealthy},
		{"no checks", nil, StatusHealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler()
			for i, s := range tt.statuses {
				h.RegisterAs(string(rune('a'+i)), staticCheck(s))
			}
			if got := h.Check(context.Background()).Status; got != tt.want {
				t.Errorf("Status = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHideDetails(t *testing.T) {
	h := NewHandler(WithVersion("1.0.0"), WithHideDetails())
	h.Register(&PingCheck{})

	response := h.Check(context.Background())
	if response.Checks != nil {
		t.Error("Checks should be hidden")
	}
	if response.Version != "" {
		t.Error("Version should be hidden")
	}
	if response.UptimeSeconds != 0 {
		t.Error("Uptime should be hidden")
	}
}

func TestLivenessHandler(t *testing.T) {
	h := NewHandler()
	h.RegisterAs("down", staticCheck(StatusUnhealthy))

	rec := httptest.NewRecorder()
	h.LivenessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("Code = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestReadinessHandler(t *testing.T) {
	h := NewHandler()

	serve := func() *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		return rec
	}

	if rec := serve(); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("not ready: Code = %d, want 503", rec.Code)
	}

	h.SetReady(true)
	if rec := serve(); rec.Code != http.StatusOK {
		t.Errorf("ready: Code = %d, want 200", rec.Code)
	}

	h.RegisterAs("down", staticCheck(StatusUnhealthy))
	if rec := serve(); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("unhealthy check: Code = %d, want 503", rec.Code)
	}
}

func TestHealthHandler(t *testing.T) {
	h := NewHandler()
	h.RegisterAs("slow", staticCheck(StatusDegraded))

	rec := httptest.NewRecorder()
	h.HealthHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("degraded: Code = %d, want 200", rec.Code)
	}

	var response Response
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if response.Status != StatusDegraded {
		t.Errorf("Status = %v, want degraded", response.Status)
	}
}

func TestRegisterRoutes(t *testing.T) {
	h := NewHandler()
	h.SetReady(true)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux, "/api/health")

	for _, path := range []string{"/healthz", "/readyz", "/api/health"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s: Code = %d, want 200", path, rec.Code)
		}
	}
}

func TestChainCheck(t *testing.T) {
	head := uint64(100)
	now := time.Unix(1_700_000_000, 0)

	c := NewChainCheck(headFunc(func(context.Context) (uint64, error) { return head, nil }), time.Minute)
	c.now = func() time.Time { return now }

	result := c.Check(context.Background())
	if result.Status != StatusHealthy {
		t.Fatalf("Status = %v, want healthy", result.Status)
	}
	if result.Metadata["block_number"] != uint64(100) {
		t.Errorf("block_number = %v", result.Metadata["block_number"])
	}

	now = now.Add(2 * time.Minute)
	if got := c.Check(context.Background()).Status; got != StatusDegraded {
		t.Errorf("stalled head: Status = %v, want degraded", got)
	}

	head = 101
	if got := c.Check(context.Background()).Status; got != StatusHealthy {
		t.Errorf("advanced head: Status = %v, want healthy", got)
	}
}

func TestChainCheck_Error(t *testing.T) {
	c := NewChainCheck(headFunc(func(context.Context) (uint64, error) {
		return 0, errors.New("connection refused")
	}), 0)

	result := c.Check(context.Background())
	if result.Status != StatusUnhealthy {
		t.Errorf("Status = %v, want unhealthy", result.Status)
	}
	if result.Error == "" {
		t.Error("Error should be set")
	}

	if got := (&ChainCheck{}).Check(context.Background()).Status; got != StatusUnknown {
		t.Errorf("nil head: Status = %v, want unknown", got)
	}
}

func TestDatabaseCheck(t *testing.T) {
	tests := []struct {
		name  string
		store Pinger
		want  Status
	}{
		{"connected", pingFunc(func(context.Context) error { return nil }), StatusHealthy},
		{"down", pingFunc(func(context.Context) error { return errors.New("closed") }), StatusUnhealthy},
		{"not configured", nil, StatusUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &DatabaseCheck{Store: tt.store}
			if got := c.Check(context.Background()).Status; got != tt.want {
				t.Errorf("Status = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDiskCheck(t *testing.T) {
	t.Run("temp dir", func(t *testing.T) {
		c := &DiskCheck{Path: t.TempDir()}
		result := c.Check(context.Background())
		if result.Status != StatusHealthy {
			t.Errorf("Status = %v, want healthy (%s)", result.Status, result.Error)
		}
		if _, ok := result.Metadata["free_bytes"]; !ok {
			t.Error("expected free_bytes metadata")
		}
	})

	t.Run("impossible threshold", func(t *testing.T) {
		c := &DiskCheck{Path: t.TempDir(), MinFreePercent: 101}
		if got := c.Check(context.Background()).Status; got != StatusUnhealthy {
			t.Errorf("Status = %v, want unhealthy", got)
		}
	})

	t.Run("missing path", func(t *testing.T) {
		c := &DiskCheck{Path: "/nonexistent/scrutiny/path"}
		if got := c.Check(context.Background()).Status; got != StatusUnhealthy {
			t.Errorf("Status = %v, want unhealthy", got)
		}
	})
}

func TestMemoryCheck(t *testing.T) {
	if got := (&MemoryCheck{}).Check(context.Background()).Status; got != StatusHealthy {
		t.Errorf("Status = %v, want healthy", got)
	}
	if got := (&MemoryCheck{MaxHeapBytes: 1}).Check(context.Background()).Status; got != StatusUnhealthy {
		t.Errorf("tiny limit: Status = %v, want unhealthy", got)
	}
}
