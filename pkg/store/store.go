// Package store persists security reports and batch reports.
//
// Reports are stored as compressed JSON payloads next to a few indexed
// columns (address, risk level, counts). SQLite (modernc.org/sqlite, pure
// Go) is the default backend; MySQL is supported for shared deployments.
//
// Example usage:
//
//	s, err := store.Open(ctx, store.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
//	rec, err := s.SaveSecurityReport(ctx, address, report)
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "modernc.org/sqlite"             // Pure Go SQLite driver

	"github.com/scrutinychain/sdk/pkg/compress"
	"github.com/scrutinychain/sdk/pkg/errors"
)

// Supported drivers.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Config configures the report store.
type Config struct {
	// Driver is "sqlite" or "mysql".
	Driver string

	// DSN is the SQLite database path or the MySQL data source name.
	DSN string

	// Compression is the payload algorithm: zstd, gzip or none.
	Compression string

	// MaxOpenConns caps the connection pool (MySQL only; SQLite uses 1).
	MaxOpenConns int
}

// DefaultConfig returns a Config for a SQLite database under
// ~/.scrutiny/scrutiny.db with zstd payloads.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Driver:       DriverSQLite,
		DSN:          filepath.Join(home, ".scrutiny", "scrutiny.db"),
		Compression:  string(compress.AlgorithmZSTD),
		MaxOpenConns: 10,
	}
}

// Store is a SQL-backed report store. It is safe for concurrent use.
type Store struct {
	db         *sql.DB
	mu         sync.RWMutex
	cfg        Config
	compressor *compress.Compressor
	now        func() time.Time
}

// Open opens the database, applies the driver settings and creates the
// schema if it does not exist.
func Open(ctx context.Context, cfg *Config) (*Store, error) {
	const op = "store.Open"

	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := *cfg
	c.Driver = strings.ToLower(strings.TrimSpace(c.Driver))
	if c.Driver == "" {
		c.Driver = DriverSQLite
	}

	algo, err := compress.ParseAlgorithm(c.Compression)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	if strings.TrimSpace(c.DSN) == "" {
		return nil, errors.E(errors.KindConfiguration, op, "store dsn is required")
	}

	var db *sql.DB
	switch c.Driver {
	case DriverSQLite:
		db, err = openSQLite(ctx, c.DSN)
	case DriverMySQL:
		db, err = openMySQL(ctx, c.DSN, c.MaxOpenConns)
	default:
		return nil, errors.E(errors.KindConfiguration, op, fmt.Sprintf("unsupported store driver %q", c.Driver))
	}
	if err != nil {
		return nil, errors.E(errors.KindNetwork, op, err)
	}

	s := &Store{
		db:         db,
		cfg:        c,
		compressor: compress.NewCompressor(algo, compress.LevelDefault),
		now:        time.Now,
	}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, errors.E(errors.KindInternal, op, "init schema", err)
	}
	return s, nil
}

func openSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer; WAL lets readers proceed alongside it.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=-16000", // 16MB cache
		"PRAGMA temp_store=MEMORY",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}
	return db, nil
}

func openMySQL(ctx context.Context, dsn string, maxOpen int) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if maxOpen <= 0 {
		maxOpen = 10
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen / 2)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return db, nil
}

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS security_reports (
		id TEXT PRIMARY KEY,
		address TEXT NOT NULL,
		risk_level TEXT NOT NULL,
		findings_count INTEGER NOT NULL,
		fingerprint TEXT NOT NULL,
		original_size INTEGER NOT NULL,
		payload BLOB NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS batch_reports (
		id TEXT PRIMARY KEY,
		tx_count INTEGER NOT NULL,
		failed_count INTEGER NOT NULL,
		original_size INTEGER NOT NULL,
		payload BLOB NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_security_reports_address ON security_reports(address, created_at);
	CREATE INDEX IF NOT EXISTS idx_batch_reports_created_at ON batch_reports(created_at);
	`

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS security_reports (
		id CHAR(36) PRIMARY KEY,
		address VARCHAR(66) NOT NULL,
		risk_level VARCHAR(16) NOT NULL,
		findings_count INT NOT NULL,
		fingerprint CHAR(64) NOT NULL,
		original_size BIGINT NOT NULL,
		payload LONGBLOB NOT NULL,
		created_at BIGINT NOT NULL,
		INDEX idx_security_reports_address (address, created_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS batch_reports (
		id CHAR(36) PRIMARY KEY,
		tx_count INT NOT NULL,
		failed_count INT NOT NULL,
		original_size BIGINT NOT NULL,
		payload LONGBLOB NOT NULL,
		created_at BIGINT NOT NULL,
		INDEX idx_batch_reports_created_at (created_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// initSchema creates the database tables if they don't exist.
func (s *Store) initSchema(ctx context.Context) error {
	if s.cfg.Driver == DriverMySQL {
		for _, stmt := range mysqlSchema {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	}
	_, err := s.db.ExecContext(ctx, sqliteSchema)
	return err
}

// Driver returns the database driver in use.
func (s *Store) Driver() string {
	return s.cfg.Driver
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return errors.E(errors.KindNetwork, "store.Ping", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
