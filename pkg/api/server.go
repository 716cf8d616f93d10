package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/archive"
	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/compliance"
	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/contracts"
	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/ledger"
	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/routing"
	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/throttle"
)

const maxBodyBytes = 64 << 10

// Decider routes one operation.
type Decider interface {
	Decide(ctx context.Context, req contracts.OperationRequest) (*routing.Decision, error)
}

// Reporter produces compliance reports.
type Reporter interface {
	GenerateHybridComplianceReport(ctx context.Context) (*compliance.HybridReport, error)
	GetComplianceSummary(ctx context.Context) (*compliance.Summary, error)
}

// LedgerAdmin is the read and reset surface of the cost ledger.
type LedgerAdmin interface {
	Totals() ledger.Totals
	ResetShutdown(actor, reason string) bool
	ResetPeriod(actor string) ledger.Totals
}

// Option configures a Server.
type Option func(*Server)

// WithArchive enables ?archive=true on the report endpoint.
func WithArchive(s archive.Store) Option {
	return func(srv *Server) { srv.archive = s }
}

// WithAdminAuth enables the admin endpoints.
func WithAdminAuth(a *AdminAuth) Option {
	return func(srv *Server) { srv.admin = a }
}

// WithRateLimiter limits requests per client IP.
func WithRateLimiter(rl *RateLimiter) Option {
	return func(srv *Server) { srv.limiter = rl }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(srv *Server) {
		if l != nil {
			srv.logger = l
		}
	}
}

// WithPacing makes the decide handler wait out throttle delays before
// answering.
func WithPacing(enabled bool) Option {
	return func(srv *Server) { srv.pace = enabled }
}

// Server is the HTTP front of the router.
type Server struct {
	engine  Decider
	reports Reporter
	ledger  LedgerAdmin
	archive archive.Store
	admin   *AdminAuth
	limiter *RateLimiter
	schema  *jsonschema.Schema
	logger  *slog.Logger
	pace    bool
}

// NewServer wires the handlers.
func NewServer(engine Decider, reports Reporter, l LedgerAdmin, opts ...Option) (*Server, error) {
	schema, err := compileDecideSchema()
	if err != nil {
		return nil, err
	}
	s := &Server{
		engine:  engine,
		reports: reports,
		ledger:  l,
		schema:  schema,
		logger:  slog.Default().With("component", "api"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Handler returns the routed handler with request-id and rate-limit
// middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /v1/decide", s.handleDecide)
	mux.HandleFunc("GET /v1/compliance/report", s.handleReport)
	mux.HandleFunc("GET /v1/compliance/summary", s.handleSummary)
	mux.HandleFunc("GET /v1/ledger", s.handleLedger)
	mux.HandleFunc("POST /v1/admin/shutdown/reset", s.admin.Require(s.handleResetShutdown))
	mux.HandleFunc("POST /v1/admin/period/reset", s.admin.Require(s.handleResetPeriod))

	var h http.Handler = mux
	if s.limiter != nil {
		h = s.limiter.Middleware(h)
	}
	return requestID(h)
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	t := s.ledger.Totals()
	status := "ok"
	if t.ShutdownActive {
		status = "emergency_shutdown"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          status,
		"shutdown_active": t.ShutdownActive,
	})
}

type decideRequest struct {
	OperationType string `json:"operation_type"`
	Priority      string `json:"priority"`
	CorrelationID string `json:"correlation_id"`
	ProviderHint  string `json:"provider_hint"`
	EstimatedCost int64  `json:"estimated_cost_cents"`
}

// toOperation normalizes case and whitespace. Values that do not parse are
// passed through so the engine rejects and audits them.
func (b decideRequest) toOperation() contracts.OperationRequest {
	op := contracts.OperationType(b.OperationType)
	if parsed, err := contracts.ParseOperationType(b.OperationType); err == nil {
		op = parsed
	}
	prio := contracts.Priority(b.Priority)
	if parsed, err := contracts.ParsePriority(b.Priority); err == nil {
		prio = parsed
	}
	return contracts.OperationRequest{
		OperationType: op,
		Priority:      prio,
		CorrelationID: b.CorrelationID,
		ProviderHint:  b.ProviderHint,
		EstimatedCost: contracts.Cents(b.EstimatedCost),
	}
}

func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		WriteError(w, r, http.StatusRequestEntityTooLarge, "Request Entity Too Large", err.Error())
		return
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		WriteBadRequest(w, r, "Invalid JSON: "+err.Error())
		return
	}
	if err := s.schema.Validate(doc); err != nil {
		WriteBadRequest(w, r, "Request does not match schema: "+err.Error())
		return
	}
	var body decideRequest
	if err := json.Unmarshal(raw, &body); err != nil {
		WriteBadRequest(w, r, err.Error())
		return
	}

	d, err := s.engine.Decide(r.Context(), body.toOperation())
	if err != nil {
		WriteError(w, r, http.StatusServiceUnavailable, "Service Unavailable", "request cancelled before a decision was made")
		return
	}
	if !d.Allowed {
		WriteRejection(w, r, d.Kind, d.Reason, d.Request.CorrelationID, d.AuditEventID)
		return
	}
	if d.Throttled {
		w.Header().Set("X-Router-Throttled", "true")
		if d.Delay > 0 {
			w.Header().Set("X-Router-Throttle-Delay-Ms", strconv.FormatInt(d.Delay.Milliseconds(), 10))
			if s.pace {
				if err := throttle.Wait(r.Context(), d.Delay); err != nil {
					return
				}
			}
		}
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.reports.GenerateHybridComplianceReport(r.Context())
	if err != nil {
		WriteInternal(w, r, err)
		return
	}
	if wantArchive(r) {
		if s.archive == nil {
			WriteError(w, r, http.StatusConflict, "Conflict", "report archive is not configured")
			return
		}
		data, err := json.Marshal(report)
		if err != nil {
			WriteInternal(w, r, err)
			return
		}
		uri, err := s.archive.Put(r.Context(), archive.ReportKey(report.ReportID, report.GeneratedAt), data)
		if err != nil {
			WriteInternal(w, r, fmt.Errorf("archive report %s: %w", report.ReportID, err))
			return
		}
		s.logger.InfoContext(r.Context(), "compliance report archived", "report_id", report.ReportID, "uri", uri)
		w.Header().Set("X-Archive-URI", uri)
	}
	writeJSON(w, http.StatusOK, report)
}

func wantArchive(r *http.Request) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get("archive"))
	return err == nil && v
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.reports.GetComplianceSummary(r.Context())
	if err != nil {
		WriteInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleLedger(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ledger.Totals())
}

type resetShutdownRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleResetShutdown(w http.ResponseWriter, r *http.Request, claims *AdminClaims) {
	var body resetShutdownRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		WriteBadRequest(w, r, "Invalid JSON: "+err.Error())
		return
	}
	if strings.TrimSpace(body.Reason) == "" {
		WriteBadRequest(w, r, "reason is required")
		return
	}
	reset := s.ledger.ResetShutdown(claims.Subject, body.Reason)
	writeJSON(w, http.StatusOK, map[string]any{
		"reset":  reset,
		"totals": s.ledger.Totals(),
	})
}

func (s *Server) handleResetPeriod(w http.ResponseWriter, _ *http.Request, claims *AdminClaims) {
	writeJSON(w, http.StatusOK, map[string]any{
		"totals": s.ledger.ResetPeriod(claims.Subject),
	})
}
