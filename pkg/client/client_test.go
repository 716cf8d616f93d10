package client_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/api"
	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/archive"
	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/audit"
	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/client"
	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/compliance"
	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/contracts"
	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/health"
	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/ledger"
	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/routing"
)

const secret = "client-test-secret-0123456789"

type fixture struct {
	url   string
	board *health.Board
	sink  *audit.MemorySink
	auth  *api.AdminAuth
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gate, err := compliance.NewGate()
	require.NoError(t, err)
	l, err := ledger.New(ledger.Config{CombinedBudget: 100, ThrottleThreshold: 90, EmergencyThreshold: 80})
	require.NoError(t, err)
	auth, err := api.NewAdminAuth(secret)
	require.NoError(t, err)
	store, err := archive.NewFileStore(t.TempDir())
	require.NoError(t, err)

	f := &fixture{board: health.NewBoard(), sink: audit.NewMemorySink(), auth: auth}
	s, err := api.NewServer(routing.NewEngine(gate, l, f.board, f.sink), gate, l,
		api.WithAdminAuth(auth), api.WithArchive(store))
	require.NoError(t, err)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	f.url = srv.URL
	return f
}

func TestClient_DecideAllowed(t *testing.T) {
	f := newFixture(t)
	c := client.New(f.url + "/")

	d, err := c.Decide(context.Background(), contracts.OperationRequest{
		OperationType: contracts.OpImplementation,
		CorrelationID: "sdk-1",
	})
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	require.NotNil(t, d.Path)
	assert.Equal(t, contracts.RouteDirect, d.Path.RouteType)
	assert.Equal(t, "sdk-1", d.Request.CorrelationID)
	assert.NotEmpty(t, d.AuditEventID)

	totals, err := c.Ledger(context.Background())
	require.NoError(t, err)
	assert.Equal(t, contracts.Cents(5), totals.Direct)
	assert.Equal(t, contracts.Cents(5), totals.Combined)
}

func TestClient_DecideRejected(t *testing.T) {
	f := newFixture(t)
	f.board.Set(contracts.RouteDirect, health.StatusUnavailable)
	f.board.Set(contracts.RouteIntegration, health.StatusUnavailable)
	c := client.New(f.url)

	d, err := c.Decide(context.Background(), contracts.OperationRequest{OperationType: contracts.OpMetaMonitor})
	assert.Nil(t, d)
	require.ErrorIs(t, err, contracts.ErrNoHealthyRoute)

	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
	assert.Equal(t, contracts.KindNoHealthyRoute, apiErr.Kind)
	assert.NotEmpty(t, apiErr.AuditEventID)
	assert.NotEmpty(t, apiErr.CorrelationID)
	assert.Equal(t, 1, f.sink.Len())
}

func TestClient_EmergencyShutdownAndReset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	anon := client.New(f.url)

	_, err := anon.Decide(ctx, contracts.OperationRequest{OperationType: contracts.OpEmergency, EstimatedCost: 80})
	require.ErrorIs(t, err, contracts.ErrEmergencyShutdownActive)

	h, err := anon.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "emergency_shutdown", h.Status)
	assert.True(t, h.ShutdownActive)

	_, _, err = anon.ResetShutdown(ctx, "budget reviewed")
	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Nil(t, apiErr.Unwrap())

	token, err := f.auth.Issue("ops@example.com", time.Minute)
	require.NoError(t, err)
	admin := client.New(f.url, client.WithToken(token), client.WithTimeout(5*time.Second))

	reset, totals, err := admin.ResetShutdown(ctx, "budget reviewed")
	require.NoError(t, err)
	assert.True(t, reset)
	assert.False(t, totals.ShutdownActive)

	totals, err = admin.ResetPeriod(ctx)
	require.NoError(t, err)
	assert.Zero(t, totals.Combined)

	h, err = anon.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", h.Status)
}

func TestClient_Compliance(t *testing.T) {
	f := newFixture(t)
	c := client.New(f.url)
	ctx := context.Background()

	report, uri, err := c.ComplianceReport(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, uri)
	ok, err := report.Verify()
	require.NoError(t, err)
	assert.True(t, ok)

	_, uri, err = c.ComplianceReport(ctx, true)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, "file://"), uri)

	sum, err := c.ComplianceSummary(ctx)
	require.NoError(t, err)
	assert.Len(t, sum.Providers, len(contracts.KnownProviders))
}

func TestClient_UnreadableErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	_, err := client.New(srv.URL).Ledger(context.Background())
	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, "Bad Gateway", apiErr.Title)
}

func TestClient_ContextCancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.New(f.url).Decide(ctx, contracts.OperationRequest{OperationType: contracts.OpEmergency})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, f.sink.Len())
}
