// Package client provides a typed Go client for the hybrid router HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/api"
	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/compliance"
	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/contracts"
	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/ledger"
	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/routing"
)

// APIError is returned when the API responds with a non-2xx status.
// Routing rejections match the contracts sentinel of their kind with
// errors.Is.
type APIError struct {
	api.ProblemDetail
}

func (e *APIError) Error() string {
	if e.Kind != contracts.KindNone {
		return fmt.Sprintf("router api %d: %s: %s", e.Status, e.Kind, e.Detail)
	}
	return fmt.Sprintf("router api %d: %s", e.Status, e.Detail)
}

// Unwrap exposes the rejection sentinel, if any.
func (e *APIError) Unwrap() error {
	return e.Kind.Sentinel()
}

// Client is a typed client for the router API.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithToken sets the bearer token sent on admin calls.
func WithToken(token string) Option {
	return func(c *Client) { c.Token = token }
}

// WithTimeout sets the HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.HTTPClient.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.HTTPClient = hc
		}
	}
}

// New creates a Client for the router listening at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) (http.Header, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr.ProblemDetail); err != nil {
			apiErr.Title = http.StatusText(resp.StatusCode)
			apiErr.Detail = "unreadable error body"
		}
		apiErr.Status = resp.StatusCode
		return resp.Header, apiErr
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.Header, fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	}
	return resp.Header, nil
}

// Decide calls POST /v1/decide. A rejected operation returns a nil
// decision and an *APIError carrying the rejection kind and audit event id.
func (c *Client) Decide(ctx context.Context, req contracts.OperationRequest) (*routing.Decision, error) {
	var out routing.Decision
	if _, err := c.do(ctx, http.MethodPost, "/v1/decide", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ComplianceReport calls GET /v1/compliance/report. With archive set the
// server stores the report and the returned URI names its location.
func (c *Client) ComplianceReport(ctx context.Context, archive bool) (*compliance.HybridReport, string, error) {
	path := "/v1/compliance/report"
	if archive {
		path += "?" + url.Values{"archive": {"true"}}.Encode()
	}
	var out compliance.HybridReport
	hdr, err := c.do(ctx, http.MethodGet, path, nil, &out)
	if err != nil {
		return nil, "", err
	}
	return &out, hdr.Get("X-Archive-URI"), nil
}

// ComplianceSummary calls GET /v1/compliance/summary.
func (c *Client) ComplianceSummary(ctx context.Context) (*compliance.Summary, error) {
	var out compliance.Summary
	if _, err := c.do(ctx, http.MethodGet, "/v1/compliance/summary", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Ledger calls GET /v1/ledger.
func (c *Client) Ledger(ctx context.Context) (*ledger.Totals, error) {
	var out ledger.Totals
	if _, err := c.do(ctx, http.MethodGet, "/v1/ledger", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ResetShutdown calls POST /v1/admin/shutdown/reset. It reports whether a
// latched shutdown was cleared.
func (c *Client) ResetShutdown(ctx context.Context, reason string) (bool, *ledger.Totals, error) {
	var out struct {
		Reset  bool          `json:"reset"`
		Totals ledger.Totals `json:"totals"`
	}
	body := map[string]string{"reason": reason}
	if _, err := c.do(ctx, http.MethodPost, "/v1/admin/shutdown/reset", body, &out); err != nil {
		return false, nil, err
	}
	return out.Reset, &out.Totals, nil
}

// ResetPeriod calls POST /v1/admin/period/reset.
func (c *Client) ResetPeriod(ctx context.Context) (*ledger.Totals, error) {
	var out struct {
		Totals ledger.Totals `json:"totals"`
	}
	if _, err := c.do(ctx, http.MethodPost, "/v1/admin/period/reset", nil, &out); err != nil {
		return nil, err
	}
	return &out.Totals, nil
}

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status         string `json:"status"`
	ShutdownActive bool   `json:"shutdown_active"`
}

// Health calls GET /health.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	var out HealthStatus
	if _, err := c.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
