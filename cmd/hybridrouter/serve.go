package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/api"
	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/config"
)

// loadApp reads env config and the policy, installs the default logger and
// wires the router. Audit lines without a configured file go to auditOut.
func loadApp(ctx context.Context, policyPath string, logOut, auditOut io.Writer) (*app, error) {
	cfg := config.Load()
	if policyPath == "" {
		policyPath = cfg.PolicyPath
	}
	policy, err := config.LoadPolicy(policyPath)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg, logOut)
	slog.SetDefault(logger)
	return buildApp(ctx, cfg, policy, logger, auditOut)
}

func runServe(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("serve", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var addr, policyPath string
	cmd.StringVar(&addr, "addr", "", "Listen address (default $ROUTER_ADDR or :8080)")
	cmd.StringVar(&policyPath, "policy", "", "Policy YAML file (default $ROUTER_POLICY)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := loadApp(ctx, policyPath, stderr, stdout)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	var checkpointDone chan struct{}
	defer func() {
		stop()
		if checkpointDone != nil {
			<-checkpointDone
		}
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			a.logger.Error("shutdown incomplete", "error", err)
		}
	}()
	if addr == "" {
		addr = a.cfg.Addr
	}

	limiter := api.NewRateLimiter(a.cfg.RateLimitRPS, a.cfg.RateLimitBurst)
	opts := []api.Option{
		api.WithLogger(a.logger),
		api.WithPacing(true),
		api.WithRateLimiter(limiter),
	}
	if a.archive != nil {
		opts = append(opts, api.WithArchive(a.archive))
	}
	if a.cfg.AdminSecret != "" {
		auth, err := api.NewAdminAuth(a.cfg.AdminSecret)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: ROUTER_ADMIN_SECRET: %v\n", err)
			return 1
		}
		opts = append(opts, api.WithAdminAuth(auth))
	} else {
		a.logger.Warn("ROUTER_ADMIN_SECRET not set; admin endpoints are disabled")
	}
	srv, err := api.NewServer(a.engine, a.gate, a.ledger, opts...)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	checkpointDone = make(chan struct{})
	go func() {
		defer close(checkpointDone)
		a.checkpointer.Run(ctx)
	}()
	go limiter.Run(ctx)

	server := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 30 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- server.ListenAndServe() }()

	_, _ = fmt.Fprintf(stdout, "%sHybrid Router %s%s listening on %s (ledger=%s)\n",
		colorBold+colorBlue, version, colorReset, addr, a.cfg.LedgerStore)

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	case <-ctx.Done():
		a.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("http shutdown failed", "error", err)
		}
	}
	return 0
}
