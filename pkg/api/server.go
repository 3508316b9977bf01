// Package api exposes the analysis engines over HTTP.
//
// Engine results are written 1:1 as JSON. Engine errors are written as plain
// text carrying the error message, with the status chosen by
// errors.HTTPStatus.
//
// Routes:
//
//	GET  /api/health                      dependency checks
//	GET  /api/contracts/{address}         analyze a contract (and store the report)
//	GET  /api/contracts/{address}/history stored reports, newest first
//	GET  /api/transactions/{hash}         fetch and process one transaction
//	POST /api/transactions/batch          process a JSON list of transactions
//	GET  /api/batches/{id}                a stored batch report
//	GET  /healthz, /readyz                probes
//	GET  /metrics                         Prometheus metrics
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/scrutinychain/sdk/pkg/audit"
	"github.com/scrutinychain/sdk/pkg/chain"
	"github.com/scrutinychain/sdk/pkg/core"
	"github.com/scrutinychain/sdk/pkg/errors"
	"github.com/scrutinychain/sdk/pkg/health"
	"github.com/scrutinychain/sdk/pkg/metrics"
	"github.com/scrutinychain/sdk/pkg/store"
)

// Defaults for Server.
const (
	DefaultMaxBatchSize = 1000
	DefaultMaxBodyBytes = 8 << 20
	RequestIDHeader     = "X-Request-ID"
	ReportIDHeader      = "X-Report-ID"
	BatchIDHeader       = "X-Batch-ID"
)

// =============================================================================
// Dependencies
// =============================================================================

// ContractAnalyzer is satisfied by *analyzer.SecurityAnalyzer.
type ContractAnalyzer interface {
	Analyze(ctx context.Context, address chain.Address) (*core.SecurityReport, error)
}

// TransactionProcessor is satisfied by *processor.TransactionProcessor.
type TransactionProcessor interface {
	Process(ctx context.Context, tx *chain.Transaction) (core.ResultMap, error)
	ProcessBatch(ctx context.Context, txs []*chain.Transaction) (core.BatchReport, error)
}

// TransactionFetcher looks transactions up by hash.
type TransactionFetcher interface {
	GetTransaction(ctx context.Context, hash chain.Hash) (*chain.Transaction, error)
}

// ReportStore is satisfied by *store.Store.
type ReportStore interface {
	SaveSecurityReport(ctx context.Context, address chain.Address, report *core.SecurityReport) (*store.SecurityRecord, error)
	ListSecurityReports(ctx context.Context, address chain.Address, limit int) ([]*store.SecurityRecord, error)
	SaveBatchReport(ctx context.Context, report core.BatchReport) (*store.BatchRecord, error)
	GetBatchReport(ctx context.Context, id string) (*store.BatchRecord, error)
}

// =============================================================================
// Server
// =============================================================================

// Server serves the analysis API.
type Server struct {
	analyzer  ContractAnalyzer
	processor TransactionProcessor
	txs       TransactionFetcher

	store   ReportStore
	audit   *audit.Logger
	health  *health.Handler
	metrics metrics.Collector
	logger  core.Logger

	maxBatchSize int
	readTimeout  time.Duration
	writeTimeout time.Duration

	handler http.Handler
	now     func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithStore persists analysis results and enables the history routes.
func WithStore(s ReportStore) Option {
	return func(srv *Server) { srv.store = s }
}

// WithAudit records every request in the audit trail.
func WithAudit(l *audit.Logger) Option {
	return func(srv *Server) { srv.audit = l }
}

// WithHealth serves h on the health routes.
func WithHealth(h *health.Handler) Option {
	return func(srv *Server) { srv.health = h }
}

// WithMetrics sets the metrics collector. Its Handler is served on /metrics.
func WithMetrics(c metrics.Collector) Option {
	return func(srv *Server) { srv.metrics = metrics.OrNop(c) }
}

// WithLogger sets the logger.
func WithLogger(l core.Logger) Option {
	return func(srv *Server) { srv.logger = core.LoggerOrNop(l) }
}

// WithMaxBatchSize caps the number of transactions per batch request.
func WithMaxBatchSize(n int) Option {
	return func(srv *Server) {
		if n > 0 {
			srv.maxBatchSize = n
		}
	}
}

// WithTimeouts sets the HTTP server read and write timeouts.
func WithTimeouts(read, write time.Duration) Option {
	return func(srv *Server) {
		srv.readTimeout = read
		srv.writeTimeout = write
	}
}

// NewServer creates a Server over the given engines.
func NewServer(a ContractAnalyzer, p TransactionProcessor, txs TransactionFetcher, opts ...Option) *Server {
	s := &Server{
		analyzer:     a,
		processor:    p,
		txs:          txs,
		metrics:      &metrics.NopCollector{},
		logger:       &core.NopLogger{},
		maxBatchSize: DefaultMaxBatchSize,
		readTimeout:  15 * time.Second,
		writeTimeout: 60 * time.Second,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.health == nil {
		s.health = health.NewHandler()
		s.health.Register(&health.PingCheck{})
		s.health.SetReady(true)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/contracts/{address}", s.handleAnalyzeContract)
	mux.HandleFunc("GET /api/contracts/{address}/history", s.handleContractHistory)
	mux.HandleFunc("GET /api/transactions/{hash}", s.handleTransaction)
	mux.HandleFunc("POST /api/transactions/batch", s.handleBatch)
	mux.HandleFunc("GET /api/batches/{id}", s.handleGetBatch)
	mux.Handle("GET /metrics", s.metrics.Handler())
	s.health.RegisterRoutes(mux, "/api/health")

	s.handler = s.instrument(mux)
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadTimeout:       s.readTimeout,
		WriteTimeout:      s.writeTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return errors.E(errors.KindNetwork, "api.ListenAndServe", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.health.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.E(errors.KindInternal, "api.Shutdown", err)
	}
	return nil
}

// =============================================================================
// Handlers
// =============================================================================

func (s *Server) handleAnalyzeContract(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rl := s.audit.WithRequest(RequestID(ctx))

	address, err := chain.ParseAddress(r.PathValue("address"))
	if err != nil {
		rl.ValidationError("invalid contract address", err)
		writeError(w, err)
		return
	}

	rl.AnalysisRequested(address.String())
	start := s.now()

	report, err := s.analyzer.Analyze(ctx, address)
	if err != nil {
		rl.AnalysisFailed(address.String(), err, s.now().Sub(start))
		writeError(w, err)
		return
	}
	rl.AnalysisCompleted(address.String(), report.RiskLevel.String(), len(report.Findings), s.now().Sub(start))

	if s.store != nil {
		rec, err := s.store.SaveSecurityReport(ctx, address, report)
		if err != nil {
			s.logger.Warn("store report for %s: %v", address, err)
		} else {
			w.Header().Set(ReportIDHeader, rec.ID)
		}
	}

	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleContractHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "report store is not configured", http.StatusNotImplemented)
		return
	}

	address, err := chain.ParseAddress(r.PathValue("address"))
	if err != nil {
		writeError(w, err)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeError(w, errors.E(errors.KindValidation, "api.history", fmt.Sprintf("invalid limit %q", v)))
			return
		}
	}

	records, err := s.store.ListSecurityReports(r.Context(), address, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if records == nil {
		records = []*store.SecurityRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rl := s.audit.WithRequest(RequestID(ctx))

	hash, err := chain.ParseHash(r.PathValue("hash"))
	if err != nil {
		rl.ValidationError("invalid transaction hash", err)
		writeError(w, err)
		return
	}

	tx, err := s.txs.GetTransaction(ctx, hash)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := s.processor.Process(ctx, tx)
	if err != nil {
		writeError(w, err)
		return
	}
	rl.TransactionProcessed(hash.String(), len(result), result.HasErrors())

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rl := s.audit.WithRequest(RequestID(ctx))

	r.Body = http.MaxBytesReader(w, r.Body, DefaultMaxBodyBytes)
	var reqs []*TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		err = errors.E(errors.KindValidation, "api.batch", "invalid request body", err)
		rl.ValidationError("invalid batch body", err)
		writeError(w, err)
		return
	}
	if len(reqs) > s.maxBatchSize {
		err := errors.E(errors.KindValidation, "api.batch",
			fmt.Sprintf("batch of %d transactions exceeds the limit of %d", len(reqs), s.maxBatchSize))
		rl.ValidationError("batch too large", err)
		writeError(w, err)
		return
	}

	txs := make([]*chain.Transaction, len(reqs))
	for i, req := range reqs {
		txs[i] = req.Transaction()
	}

	start := s.now()
	report, err := s.processor.ProcessBatch(ctx, txs)
	if err != nil {
		writeError(w, err)
		return
	}

	batchID := ""
	if s.store != nil {
		rec, err := s.store.SaveBatchReport(ctx, report)
		if err != nil {
			s.logger.Warn("store batch report: %v", err)
		} else {
			batchID = rec.ID
			w.Header().Set(BatchIDHeader, rec.ID)
		}
	}
	rl.BatchProcessed(batchID, len(txs), len(report.Failed()), s.now().Sub(start))

	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "report store is not configured", http.StatusNotImplemented)
		return
	}
	rec, err := s.store.GetBatchReport(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// =============================================================================
// Middleware
// =============================================================================

type ctxKey struct{}

// RequestID returns the request ID stored in ctx, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// instrument assigns a request ID, recovers panics and counts requests per
// route pattern.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		r = r.WithContext(context.WithValue(r.Context(), ctxKey{}, id))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			if v := recover(); v != nil {
				s.logger.Error("request %s %s panicked: %v", r.Method, r.URL.Path, v)
				http.Error(rec, "internal server error", http.StatusInternalServerError)
			}
			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			s.metrics.CounterInc(metrics.HTTPRequestsTotal.Name, "route", route, "status", strconv.Itoa(rec.status))
			s.logger.Debug("%s %s -> %d (%s)", r.Method, r.URL.Path, rec.status, id)
		}()

		next.ServeHTTP(rec, r)
	})
}

// =============================================================================
// Responses
// =============================================================================

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	http.Error(w, errorMessage(err), errors.HTTPStatus(err))
}

// errorMessage joins the human-readable messages in err's chain, without the
// operation prefixes.
func errorMessage(err error) string {
	var e *errors.Error
	for errors.As(err, &e) {
		if e.Message != "" {
			if e.Err != nil {
				return e.Message + ": " + errorMessage(e.Err)
			}
			return e.Message
		}
		if e.Err == nil {
			break
		}
		err = e.Err
	}
	return err.Error()
}
