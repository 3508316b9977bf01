package core

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/scrutinychain/sdk/pkg/chain"
	"github.com/scrutinychain/sdk/pkg/errors"
	"github.com/scrutinychain/sdk/pkg/shared/severity"
)

type namedScanner struct {
	ScannerFunc
	name string
}

func (n namedScanner) Name() string { return n.name }

func TestFuncAdapters(t *testing.T) {
	var s Scanner = ScannerFunc(func(ctx context.Context, addr chain.Address) ([]string, error) {
		return []string{"scanned " + addr.String()}, nil
	})
	findings, err := s.Scan(context.Background(), "0x123")
	if err != nil || len(findings) != 1 || findings[0] != "scanned 0x123" {
		t.Errorf("ScannerFunc.Scan() = %v, %v", findings, err)
	}

	var a Analyzer = AnalyzerFunc(func(ctx context.Context, tx *chain.Transaction) (map[string]string, error) {
		return map[string]string{"hash": tx.Hash.String()}, nil
	})
	res, err := a.Analyze(context.Background(), &chain.Transaction{Hash: "0x456"})
	if err != nil || res["hash"] != "0x456" {
		t.Errorf("AnalyzerFunc.Analyze() = %v, %v", res, err)
	}
}

func TestPluginName(t *testing.T) {
	tests := []struct {
		name   string
		plugin any
		want   string
	}{
		{"named", namedScanner{name: "reentrancy"}, "reentrancy"},
		{"empty name", namedScanner{}, "scanner_2"},
		{"unnamed", ScannerFunc(nil), "scanner_2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PluginName(tt.plugin, "scanner", 2); got != tt.want {
				t.Errorf("PluginName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSecurityReport_Clone(t *testing.T) {
	r := &SecurityReport{
		RiskLevel: severity.High,
		Findings:  []string{"High: delegatecall"},
		Metadata:  map[string]string{MetaScannerCount: "1"},
	}
	c := r.Clone()
	c.Findings[0] = "changed"
	c.Metadata[MetaScannerCount] = "9"

	if r.Findings[0] != "High: delegatecall" || r.Metadata[MetaScannerCount] != "1" {
		t.Error("Clone should not share findings or metadata")
	}
	if c.RiskLevel != severity.High {
		t.Errorf("Clone RiskLevel = %v", c.RiskLevel)
	}

	var nilReport *SecurityReport
	if nilReport.Clone() != nil {
		t.Error("Clone of nil should be nil")
	}
	if got := r.Counts().High; got != 1 {
		t.Errorf("Counts().High = %d, want 1", got)
	}
}

func TestResultMap(t *testing.T) {
	m := ResultMap{"a": "1", "b": "2"}
	m.Merge(map[string]string{"b": "3", "c": "4"})

	if m["a"] != "1" || m["b"] != "3" || m["c"] != "4" {
		t.Errorf("Merge() = %v", m)
	}
	if m.HasErrors() {
		t.Error("HasErrors() = true, want false")
	}

	m[AnalyzerErrorKey(12)] = "Analysis failed: boom"
	if !m.HasErrors() {
		t.Error("HasErrors() = false, want true")
	}

	tests := []struct {
		key  string
		want bool
	}{
		{"analyzer_0_error", true},
		{"analyzer_17_error", true},
		{"analyzer__error", false},
		{"analyzer_x_error", false},
		{"analyzer_error", false},
	}
	for _, tt := range tests {
		if got := isAnalyzerErrorKey(tt.key); got != tt.want {
			t.Errorf("isAnalyzerErrorKey(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestBatchReport_Failed(t *testing.T) {
	b := BatchReport{
		"0x2": {KeyError: "Processing failed: boom"},
		"0x1": {KeyError: "Processing failed: boom"},
		"0x3": {"gas_efficiency": "efficient"},
	}
	got := b.Failed()
	if len(got) != 2 || got[0] != "0x1" || got[1] != "0x2" {
		t.Errorf("Failed() = %v", got)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    LogLevel
		wantErr bool
	}{
		{"debug", LogLevelDebug, false},
		{"", LogLevelInfo, false},
		{"WARNING", LogLevelWarn, false},
		{"error", LogLevelError, false},
		{"off", LogLevelSilent, false},
		{"loud", LogLevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLogLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLogLevel(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestDefaultLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	l := NewDefaultLogger("scrutiny", LogLevelWarn)
	l.SetOutput(&buf)

	l.Debug("debug %d", 1)
	l.Info("info %d", 2)
	l.Warn("warn %d", 3)
	l.Error("error %d", 4)

	out := buf.String()
	if strings.Contains(out, "debug 1") || strings.Contains(out, "info 2") {
		t.Errorf("messages below level were written: %q", out)
	}
	if !strings.Contains(out, "[scrutiny] [WARN] warn 3") || !strings.Contains(out, "[scrutiny] [ERROR] error 4") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestLoggerOrNop(t *testing.T) {
	if _, ok := LoggerOrNop(nil).(*NopLogger); !ok {
		t.Error("LoggerOrNop(nil) should return a NopLogger")
	}
	l := NewDefaultLogger("", LogLevelInfo)
	if LoggerOrNop(l) != Logger(l) {
		t.Error("LoggerOrNop should return the given logger")
	}
	if _, ok := LoggerFromVerbose("x", false).(*NopLogger); !ok {
		t.Error("LoggerFromVerbose(false) should return a NopLogger")
	}
}

func TestValidator(t *testing.T) {
	err := NewValidator().
		Required("chain.rpc_url", "").
		URL("server.url", "ftp://host", "http", "https").
		MinDuration("engine.plugin_timeout", -time.Second, 0).
		MaxDuration("chain.request_timeout", time.Hour, time.Minute).
		Min("engine.batch_concurrency", 0, 1).
		OneOf("store.driver", "postgres", []string{"sqlite", "mysql"}).
		Validate()

	if err == nil {
		t.Fatal("Validate() should fail")
	}
	if errors.GetKind(err) != errors.KindConfiguration {
		t.Errorf("GetKind() = %v, want configuration", errors.GetKind(err))
	}
	var verrs ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) != 6 {
		t.Errorf("ValidationErrors = %v", verrs)
	}

	ok := NewValidator().
		Required("chain.rpc_url", "http://localhost:8545").
		URL("chain.rpc_url", "ws://localhost:8546", "http", "https", "ws", "wss").
		OneOf("store.driver", "", []string{"sqlite"}).
		MaxDuration("chain.request_timeout", time.Minute, time.Minute).
		Validate()
	if ok != nil {
		t.Errorf("Validate() = %v, want nil", ok)
	}
}
