package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/scrutinychain/sdk/pkg/chain"
	"github.com/scrutinychain/sdk/pkg/core"
	"github.com/scrutinychain/sdk/pkg/errors"
	"github.com/scrutinychain/sdk/pkg/shared/fingerprint"
	"github.com/scrutinychain/sdk/pkg/shared/severity"
)

// DefaultListLimit is used when ListSecurityReports is called with limit <= 0.
const DefaultListLimit = 50

// SecurityRecord is a stored security report. Records with equal Fingerprint
// hold the same set of findings.
type SecurityRecord struct {
	ID           string               `json:"id"`
	Address      chain.Address        `json:"address"`
	RiskLevel    severity.Level       `json:"risk_level"`
	Fingerprint  string               `json:"fingerprint"`
	Report       *core.SecurityReport `json:"report"`
	OriginalSize int                  `json:"original_size"`
	StoredSize   int                  `json:"stored_size"`
	CreatedAt    time.Time            `json:"created_at"`
}

// BatchRecord is a stored batch report.
type BatchRecord struct {
	ID           string           `json:"id"`
	TxCount      int              `json:"tx_count"`
	FailedCount  int              `json:"failed_count"`
	Report       core.BatchReport `json:"report"`
	OriginalSize int              `json:"original_size"`
	StoredSize   int              `json:"stored_size"`
	CreatedAt    time.Time        `json:"created_at"`
}

// =============================================================================
// Security reports
// =============================================================================

// SaveSecurityReport stores report for address and returns the new record.
func (s *Store) SaveSecurityReport(ctx context.Context, address chain.Address, report *core.SecurityReport) (*SecurityRecord, error) {
	const op = "store.SaveSecurityReport"
	if report == nil {
		return nil, errors.E(errors.KindValidation, op, "report is nil")
	}

	raw, payload, err := s.encode(report)
	if err != nil {
		return nil, errors.E(errors.KindInternal, op, err)
	}

	rec := &SecurityRecord{
		ID:           newID(),
		Address:      address,
		RiskLevel:    report.RiskLevel,
		Fingerprint:  fingerprint.Report(address.String(), report.Findings),
		Report:       report.Clone(),
		OriginalSize: len(raw),
		StoredSize:   len(payload),
		CreatedAt:    s.now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO security_reports (
			id, address, risk_level, findings_count, fingerprint, original_size, payload, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID, rec.Address.String(), rec.RiskLevel.String(), len(report.Findings), rec.Fingerprint,
		rec.OriginalSize, payload, rec.CreatedAt.UnixNano(),
	)
	if err != nil {
		return nil, errors.E(errors.KindInternal, op, err)
	}
	return rec, nil
}

// LatestSecurityReport returns the most recent report stored for address.
// It returns a KindNotFound error when there is none.
func (s *Store) LatestSecurityReport(ctx context.Context, address chain.Address) (*SecurityRecord, error) {
	recs, err := s.ListSecurityReports(ctx, address, 1)
	if err != nil {
		return nil, errors.Wrap(err, "store.LatestSecurityReport")
	}
	if len(recs) == 0 {
		return nil, errors.E(errors.KindNotFound, "store.LatestSecurityReport", "no report stored for "+address.String())
	}
	return recs[0], nil
}

// ListSecurityReports returns up to limit reports for address, newest first.
func (s *Store) ListSecurityReports(ctx context.Context, address chain.Address, limit int) ([]*SecurityRecord, error) {
	const op = "store.ListSecurityReports"
	if limit <= 0 {
		limit = DefaultListLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, address, fingerprint, original_size, payload, created_at
		FROM security_reports
		WHERE address = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, address.String(), limit)
	if err != nil {
		return nil, errors.E(errors.KindInternal, op, err)
	}
	defer rows.Close()

	var out []*SecurityRecord
	for rows.Next() {
		var (
			rec       SecurityRecord
			addr      string
			payload   []byte
			createdAt int64
		)
		if err := rows.Scan(&rec.ID, &addr, &rec.Fingerprint, &rec.OriginalSize, &payload, &createdAt); err != nil {
			return nil, errors.E(errors.KindInternal, op, err)
		}

		var report core.SecurityReport
		if err := s.decode(payload, &report); err != nil {
			return nil, errors.E(errors.KindInternal, op, "decode report "+rec.ID, err)
		}

		rec.Address = chain.Address(addr)
		rec.Report = &report
		rec.RiskLevel = report.RiskLevel
		rec.StoredSize = len(payload)
		rec.CreatedAt = time.Unix(0, createdAt).UTC()
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.E(errors.KindInternal, op, err)
	}
	return out, nil
}

// =============================================================================
// Batch reports
// =============================================================================

// SaveBatchReport stores a batch report and returns the new record.
func (s *Store) SaveBatchReport(ctx context.Context, report core.BatchReport) (*BatchRecord, error) {
	const op = "store.SaveBatchReport"

	raw, payload, err := s.encode(report)
	if err != nil {
		return nil, errors.E(errors.KindInternal, op, err)
	}

	rec := &BatchRecord{
		ID:           newID(),
		TxCount:      len(report),
		FailedCount:  len(report.Failed()),
		Report:       report,
		OriginalSize: len(raw),
		StoredSize:   len(payload),
		CreatedAt:    s.now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO batch_reports (
			id, tx_count, failed_count, original_size, payload, created_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`,
		rec.ID, rec.TxCount, rec.FailedCount, rec.OriginalSize, payload, rec.CreatedAt.UnixNano(),
	)
	if err != nil {
		return nil, errors.E(errors.KindInternal, op, err)
	}
	return rec, nil
}

// GetBatchReport returns the batch report with the given ID.
func (s *Store) GetBatchReport(ctx context.Context, id string) (*BatchRecord, error) {
	const op = "store.GetBatchReport"

	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		rec       BatchRecord
		payload   []byte
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tx_count, failed_count, original_size, payload, created_at
		FROM batch_reports WHERE id = ?
	`, id).Scan(&rec.ID, &rec.TxCount, &rec.FailedCount, &rec.OriginalSize, &payload, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.E(errors.KindNotFound, op, "no batch report "+id)
	}
	if err != nil {
		return nil, errors.E(errors.KindInternal, op, err)
	}

	if err := s.decode(payload, &rec.Report); err != nil {
		return nil, errors.E(errors.KindInternal, op, "decode batch "+id, err)
	}
	rec.StoredSize = len(payload)
	rec.CreatedAt = time.Unix(0, createdAt).UTC()
	return &rec, nil
}

// =============================================================================
// Maintenance
// =============================================================================

// Cleanup removes reports older than maxAge and returns how many rows were
// deleted.
func (s *Store) Cleanup(ctx context.Context, maxAge time.Duration) (int64, error) {
	const op = "store.Cleanup"

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-maxAge).UnixNano()

	var total int64
	for _, table := range []string{"security_reports", "batch_reports"} {
		result, err := s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE created_at < ?", cutoff)
		if err != nil {
			return total, errors.E(errors.KindInternal, op, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return total, errors.E(errors.KindInternal, op, err)
		}
		total += n
	}
	return total, nil
}

// Stats contains storage statistics.
type Stats struct {
	SecurityReports   int            `json:"security_reports"`
	ReportsByRisk     map[string]int `json:"reports_by_risk"`
	BatchReports      int            `json:"batch_reports"`
	TotalStorageBytes int64          `json:"total_storage_bytes"`
}

// Stats returns storage statistics.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	const op = "store.Stats"

	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &Stats{ReportsByRisk: make(map[string]int)}

	rows, err := s.db.QueryContext(ctx, `
		SELECT risk_level, COUNT(*) FROM security_reports GROUP BY risk_level
	`)
	if err != nil {
		return nil, errors.E(errors.KindInternal, op, err)
	}
	defer rows.Close()

	for rows.Next() {
		var risk string
		var count int
		if err := rows.Scan(&risk, &count); err != nil {
			continue
		}
		stats.ReportsByRisk[risk] = count
		stats.SecurityReports += count
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM batch_reports`).Scan(&stats.BatchReports); err != nil {
		return nil, errors.E(errors.KindInternal, op, err)
	}

	var reportBytes, batchBytes sql.NullInt64
	_ = s.db.QueryRowContext(ctx, `SELECT SUM(LENGTH(payload)) FROM security_reports`).Scan(&reportBytes)
	_ = s.db.QueryRowContext(ctx, `SELECT SUM(LENGTH(payload)) FROM batch_reports`).Scan(&batchBytes)
	stats.TotalStorageBytes = reportBytes.Int64 + batchBytes.Int64

	return stats, nil
}

// =============================================================================
// Helpers
// =============================================================================

func (s *Store) encode(v any) (raw, payload []byte, err error) {
	raw, err = json.Marshal(v)
	if err != nil {
		return nil, nil, err
	}
	payload, err = s.compressor.Compress(raw)
	if err != nil {
		return nil, nil, err
	}
	return raw, payload, nil
}

func (s *Store) decode(payload []byte, v any) error {
	raw, err := s.compressor.Decompress(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// newID returns a time-ordered UUIDv7, falling back to a random UUID.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
