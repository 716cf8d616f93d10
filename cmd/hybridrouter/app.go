package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	_ "github.com/lib/pq" // Postgres driver

	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/archive"
	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/audit"
	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/compliance"
	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/config"
	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/health"
	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/ledger"
	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/observability"
	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/routing"
	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/throttle"
)

// app is the wired router: one ledger, gate, health checker, audit sink
// and engine per process.
type app struct {
	cfg    *config.Config
	policy *config.Policy
	logger *slog.Logger

	obs          *observability.Provider
	ledger       *ledger.Ledger
	checkpointer *ledger.Checkpointer
	gate         *compliance.Gate
	board        *health.Board
	health       *health.Cache
	sink         *audit.AsyncSink
	engine       *routing.Engine
	archive      archive.Store

	closers []func(context.Context) error
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.LogFormat, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// buildApp wires every component from env config and the policy file.
// Close must be called even when buildApp fails half-way.
func buildApp(ctx context.Context, cfg *config.Config, policy *config.Policy, logger *slog.Logger, auditOut io.Writer) (a *app, err error) {
	a = &app{cfg: cfg, policy: policy, logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close(context.WithoutCancel(ctx))
			a = nil
		}
	}()

	obsCfg := observability.DefaultConfig()
	obsCfg.Enabled = cfg.OTelEnabled
	obsCfg.OTLPEndpoint = cfg.OTelEndpoint
	obsCfg.Insecure = cfg.OTelInsecure
	obsCfg.Environment = cfg.Environment
	obsCfg.ServiceVersion = version
	if a.obs, err = observability.New(ctx, obsCfg); err != nil {
		return a, fmt.Errorf("observability: %w", err)
	}
	a.closers = append(a.closers, a.obs.Shutdown)

	store, err := a.openLedgerStore()
	if err != nil {
		return a, err
	}
	if a.ledger, err = ledger.Open(ctx, store, cfg.LedgerID, policy.Ledger, ledger.WithLogger(logger)); err != nil {
		return a, fmt.Errorf("ledger: %w", err)
	}
	a.checkpointer = ledger.NewCheckpointer(a.ledger, store, cfg.LedgerID, cfg.CheckpointInterval)
	// Closers run in reverse, so the final flush happens before the store closes.
	a.closers = append(a.closers, a.checkpointer.Flush)

	if err = a.obs.RegisterSpendGauge(func() (int64, int64, int64, bool) {
		t := a.ledger.Totals()
		return int64(t.Direct), int64(t.Integration), int64(t.Combined), t.ShutdownActive
	}); err != nil {
		return a, fmt.Errorf("spend gauge: %w", err)
	}

	if a.gate, err = policy.NewGate(compliance.WithLogger(logger)); err != nil {
		return a, fmt.Errorf("compliance: %w", err)
	}

	a.health = health.NewCache(a.healthChecker(), policy.Health.TTL).WithProbeTimeout(policy.Health.ProbeTimeout)

	inner, err := a.openAuditSink(auditOut)
	if err != nil {
		return a, err
	}
	a.sink = audit.NewAsyncSink(inner, cfg.AuditQueueSize)
	a.closers = append(a.closers, a.sink.Close)

	if cfg.ArchiveURI != "" {
		if a.archive, err = archive.Open(ctx, cfg.ArchiveURI); err != nil {
			return a, err
		}
	}

	a.engine = routing.NewEngine(a.gate, a.ledger, a.health, a.sink,
		routing.WithConfig(policy.RoutingConfig()),
		routing.WithPacer(throttle.NewPacer(policy.Throttle)),
		routing.WithObservability(a.obs),
		routing.WithLogger(logger),
	)
	return a, nil
}

func (a *app) openLedgerStore() (ledger.Store, error) {
	switch a.cfg.LedgerStore {
	case "", "memory":
		return ledger.NewMemoryStore(), nil
	case "sqlite":
		s, err := ledger.OpenSQLiteStore(a.cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite ledger store: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return s.Close() })
		return s, nil
	case "postgres":
		db, err := sql.Open("postgres", a.cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to DB: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return db.Close() })
		return ledger.NewPostgresStore(db), nil
	default:
		return nil, fmt.Errorf("unsupported ledger store %q (memory, sqlite, postgres)", a.cfg.LedgerStore)
	}
}

// healthChecker prefers HTTP probes, then the shared Redis board, then a
// local board that starts healthy.
func (a *app) healthChecker() health.Checker {
	if eps := a.policy.HealthEndpoints(); len(eps) > 0 {
		a.logger.Info("health: probing route endpoints", "routes", len(eps))
		return health.NewHTTPProber(eps, a.policy.Health.ProbeTimeout)
	}
	if a.cfg.RedisAddr != "" {
		a.logger.Info("health: using redis board", "addr", a.cfg.RedisAddr)
		rb := health.NewRedisBoard(a.cfg.RedisAddr, a.cfg.RedisPassword, a.cfg.RedisDB, 0)
		a.closers = append(a.closers, func(context.Context) error { return rb.Close() })
		return rb
	}
	a.board = health.NewBoard()
	return a.board
}

// openAuditSink writes to the configured file, or to fallback when none is set.
func (a *app) openAuditSink(fallback io.Writer) (audit.Sink, error) {
	if a.cfg.AuditLogPath == "" || a.cfg.AuditLogPath == "-" {
		return audit.NewWriterSink(fallback), nil
	}
	s, err := audit.OpenFileSink(a.cfg.AuditLogPath)
	if err != nil {
		return nil, fmt.Errorf("audit log: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { return s.Close() })
	return s, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
