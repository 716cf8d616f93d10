// Package api exposes the router over HTTP with RFC 7807 error responses.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/contracts"
)

// ProblemDetail implements RFC 7807 (Problem Details for HTTP APIs).
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	TraceID  string `json:"trace_id,omitempty"`

	// Routing rejections only.
	Kind          contracts.RejectionKind `json:"kind,omitempty"`
	CorrelationID string                  `json:"correlation_id,omitempty"`
	AuditEventID  string                  `json:"audit_event_id,omitempty"`
}

// Error implements the error interface.
func (p *ProblemDetail) Error() string {
	return fmt.Sprintf("%s: %s", p.Title, p.Detail)
}

func problemType(status int) string {
	return fmt.Sprintf("urn:hybridrouter:error:%d", status)
}

func writeProblem(w http.ResponseWriter, p *ProblemDetail) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// WriteError writes an RFC 7807 response enriched with request context.
func WriteError(w http.ResponseWriter, r *http.Request, status int, title, detail string) {
	writeProblem(w, &ProblemDetail{
		Type:     problemType(status),
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
		TraceID:  w.Header().Get("X-Request-ID"),
	})
}

// WriteBadRequest writes a 400 error response.
func WriteBadRequest(w http.ResponseWriter, r *http.Request, detail string) {
	WriteError(w, r, http.StatusBadRequest, "Bad Request", detail)
}

// WriteUnauthorized writes a 401 error response.
func WriteUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	if detail == "" {
		detail = "Authentication required"
	}
	w.Header().Set("WWW-Authenticate", `Bearer realm="hybridrouter"`)
	WriteError(w, r, http.StatusUnauthorized, "Unauthorized", detail)
}

// WriteForbidden writes a 403 error response.
func WriteForbidden(w http.ResponseWriter, r *http.Request, detail string) {
	if detail == "" {
		detail = "Insufficient permissions"
	}
	WriteError(w, r, http.StatusForbidden, "Forbidden", detail)
}

// WriteTooManyRequests writes a 429 error response with Retry-After header.
func WriteTooManyRequests(w http.ResponseWriter, r *http.Request, retryAfterSecs int) {
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSecs))
	WriteError(w, r, http.StatusTooManyRequests, "Too Many Requests", "Rate limit exceeded. Retry after the specified interval.")
}

// WriteInternal writes a 500 error response. err is logged, never sent.
func WriteInternal(w http.ResponseWriter, r *http.Request, err error) {
	slog.Error("internal server error", "path", r.URL.Path, "error", err)
	WriteError(w, r, http.StatusInternalServerError, "Internal Server Error", "An unexpected error occurred. Please try again later.")
}

// StatusForKind maps a routing rejection to its HTTP status.
func StatusForKind(k contracts.RejectionKind) int {
	switch k {
	case contracts.KindInvalidOperationType:
		return http.StatusBadRequest
	case contracts.KindComplianceViolation:
		return http.StatusForbidden
	case contracts.KindBudgetExceeded:
		return http.StatusPaymentRequired
	case contracts.KindNoHealthyRoute, contracts.KindEmergencyShutdownActive:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteRejection writes a routing rejection with its kind and audit ids.
func WriteRejection(w http.ResponseWriter, r *http.Request, kind contracts.RejectionKind, reason, correlationID, auditEventID string) {
	status := StatusForKind(kind)
	writeProblem(w, &ProblemDetail{
		Type:          "urn:hybridrouter:rejection:" + string(kind),
		Title:         http.StatusText(status),
		Status:        status,
		Detail:        reason,
		Instance:      r.URL.Path,
		TraceID:       w.Header().Get("X-Request-ID"),
		Kind:          kind,
		CorrelationID: correlationID,
		AuditEventID:  auditEventID,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
