// Package config loads the scrutiny service configuration.
//
// Configuration comes from a YAML file (with ${VAR} expansion), then a small
// set of environment overrides, then validation:
//
//	server:
//	  listen: ":8080"
//	chain:
//	  rpc_url: ${ETH_RPC_URL}
//	  rate_limit_rps: 20
//	engine:
//	  plugin_timeout: 30s
//	  scanners: [reentrancy, access-control]
//	  analyzers: [gas, value]
//	store:
//	  driver: sqlite
//	  dsn: /var/lib/scrutiny/scrutiny.db
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/scrutinychain/sdk/pkg/core"
	"github.com/scrutinychain/sdk/pkg/errors"
)

// Environment overrides applied by Load.
const (
	EnvRPCURL   = "SCRUTINY_RPC_URL"
	EnvListen   = "SCRUTINY_LISTEN"
	EnvStoreDSN = "SCRUTINY_STORE_DSN"
	EnvLogLevel = "SCRUTINY_LOG_LEVEL"
)

// Upper bounds accepted by Validate.
const (
	MaxRequestTimeout = 5 * time.Minute
	MaxPluginTimeout  = 10 * time.Minute
)

// Config is the full service configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Chain   ChainConfig   `yaml:"chain"`
	Engine  EngineConfig  `yaml:"engine"`
	Store   StoreConfig   `yaml:"store"`
	Audit   AuditConfig   `yaml:"audit"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Listen       string        `yaml:"listen"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// MaxBatchSize caps the number of transactions in one batch request.
	MaxBatchSize int `yaml:"max_batch_size"`
}

// ChainConfig configures the JSON-RPC provider.
type ChainConfig struct {
	RPCURL         string        `yaml:"rpc_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	RateLimitRPS   float64       `yaml:"rate_limit_rps"` // 0 = unlimited
	RateBurst      int           `yaml:"rate_burst"`
	MaxRetries     int           `yaml:"max_retries"`
	BlockLookback  uint64        `yaml:"block_lookback"`
	// StallAfter marks the chain check degraded when the head stops moving.
	StallAfter time.Duration `yaml:"stall_after"`
}

// EngineConfig selects and tunes the analysis plugins.
type EngineConfig struct {
	PluginTimeout    time.Duration `yaml:"plugin_timeout"`
	BatchConcurrency int           `yaml:"batch_concurrency"`
	Scanners         []string      `yaml:"scanners"`
	Analyzers        []string      `yaml:"analyzers"`
}

// StoreConfig configures report persistence.
type StoreConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Driver      string `yaml:"driver"`
	DSN         string `yaml:"dsn"`
	Compression string `yaml:"compression"`
	// Retention deletes reports older than this on startup; 0 keeps everything.
	Retention time.Duration `yaml:"retention"`
}

// AuditConfig configures the audit trail.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	LogFile string `yaml:"log_file"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Prefix string `yaml:"prefix"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".scrutiny")

	return &Config{
		Server: ServerConfig{
			Listen:       ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			MaxBatchSize: 1000,
		},
		Chain: ChainConfig{
			RequestTimeout: 15 * time.Second,
			RateBurst:      10,
			MaxRetries:     3,
			BlockLookback:  256,
			StallAfter:     2 * time.Minute,
		},
		Engine: EngineConfig{
			PluginTimeout:    30 * time.Second,
			BatchConcurrency: 4,
			Scanners: []string{
				"reentrancy", "selfdestruct", "delegatecall",
				"tx-origin", "integer-overflow", "access-control",
			},
			Analyzers: []string{"gas", "value", "contract-creation", "counterparty"},
		},
		Store: StoreConfig{
			Enabled:     true,
			Driver:      "sqlite",
			DSN:         filepath.Join(dataDir, "scrutiny.db"),
			Compression: "zstd",
		},
		Audit: AuditConfig{
			Enabled: false,
			LogFile: filepath.Join(dataDir, "audit.log"),
		},
		Log: LogConfig{
			Level:  "info",
			Prefix: "[scrutiny]",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "scrutiny",
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path uses the defaults alone.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.E(errors.KindConfiguration, "config.Load", "read config", err)
		}
		if err := cfg.parse(data); err != nil {
			return nil, err
		}
	}

	cfg.ApplyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) parse(data []byte) error {
	// Expand environment variables in config
	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), c); err != nil {
		return errors.E(errors.KindConfiguration, "config.Load", "parse config", err)
	}
	return nil
}

// ApplyEnv applies the SCRUTINY_* overrides found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvRPCURL); ok && v != "" {
		c.Chain.RPCURL = v
	}
	if v, ok := lookup(EnvListen); ok && v != "" {
		c.Server.Listen = v
	}
	if v, ok := lookup(EnvStoreDSN); ok && v != "" {
		c.Store.DSN = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
}

// Validate checks the configuration. Failures are KindConfiguration errors
// listing every invalid field.
func (c *Config) Validate() error {
	v := core.NewValidator().
		Required("server.listen", c.Server.Listen).
		Min("server.max_batch_size", c.Server.MaxBatchSize, 1).
		MinDuration("chain.request_timeout", c.Chain.RequestTimeout, time.Millisecond).
		MaxDuration("chain.request_timeout", c.Chain.RequestTimeout, MaxRequestTimeout).
		Min("chain.max_retries", c.Chain.MaxRetries, 0).
		Min("chain.rate_burst", c.Chain.RateBurst, 1).
		Custom("chain.rate_limit_rps", func() bool { return c.Chain.RateLimitRPS >= 0 }, "must not be negative").
		Min("engine.batch_concurrency", c.Engine.BatchConcurrency, 1).
		MinDuration("engine.plugin_timeout", c.Engine.PluginTimeout, 0).
		MaxDuration("engine.plugin_timeout", c.Engine.PluginTimeout, MaxPluginTimeout).
		OneOf("log.level", strings.ToLower(c.Log.Level), []string{"debug", "info", "warn", "error"})

	if c.Chain.RPCURL != "" {
		v.URL("chain.rpc_url", c.Chain.RPCURL, "http", "https", "ws", "wss")
	}

	if c.Store.Enabled {
		v.OneOf("store.driver", c.Store.Driver, []string{"sqlite", "mysql"}).
			Required("store.dsn", c.Store.DSN).
			OneOf("store.compression", c.Store.Compression, []string{"", "zstd", "gzip", "none"})
	}

	if c.Audit.Enabled {
		v.Required("audit.log_file", c.Audit.LogFile)
	}

	for i, name := range c.Engine.Scanners {
		v.Required(fmt.Sprintf("engine.scanners[%d]", i), name)
	}
	for i, name := range c.Engine.Analyzers {
		v.Required(fmt.Sprintf("engine.analyzers[%d]", i), name)
	}

	return v.Validate()
}
