package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/api"
	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/archive"
	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/compliance"
	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/config"
	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/contracts"
	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/health"
)

// withApp runs fn against a freshly wired app and closes it afterwards, so
// ledger changes are checkpointed and queued audit events are written.
// CLI audit lines go to stderr to keep stdout parseable.
func withApp(policyPath string, stderr io.Writer, fn func(ctx context.Context, a *app) int) int {
	ctx := context.Background()
	a, err := loadApp(ctx, policyPath, stderr, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	code := fn(ctx, a)
	closeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := a.Close(closeCtx); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		if code == 0 {
			code = 1
		}
	}
	return code
}

func printJSON(w io.Writer, v any) {
	data, _ := json.MarshalIndent(v, "", "  ")
	_, _ = fmt.Fprintln(w, string(data))
}

// parseHealthOverrides reads "direct=unavailable,integration=degraded".
func parseHealthOverrides(s string) (map[contracts.RouteType]health.Status, error) {
	out := make(map[contracts.RouteType]health.Status)
	if s == "" {
		return out, nil
	}
	for _, pair := range strings.Split(s, ",") {
		route, status, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || !contracts.RouteType(route).Valid() {
			return nil, fmt.Errorf("bad health override %q (want route=status)", pair)
		}
		st, err := health.ParseStatus(status)
		if err != nil {
			return nil, err
		}
		out[contracts.RouteType(route)] = st
	}
	return out, nil
}

func runDecideCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("decide", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var (
		op, priority, hint, correlationID, healthSpec, policyPath string
		cost                                                      int64
		jsonOutput                                                bool
	)
	cmd.StringVar(&op, "op", "", "Operation type (REQUIRED)")
	cmd.StringVar(&priority, "priority", "", "Priority override (critical|high|medium|low)")
	cmd.StringVar(&hint, "hint", "", "Provider hint")
	cmd.StringVar(&correlationID, "correlation", "", "Correlation ID (generated if empty)")
	cmd.Int64Var(&cost, "cost", 0, "Estimated cost in cents (route default if 0)")
	cmd.StringVar(&healthSpec, "health", "", "Local route health, e.g. direct=unavailable")
	cmd.StringVar(&policyPath, "policy", "", "Policy YAML file (default $ROUTER_POLICY)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output the decision as JSON")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if op == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --op is required")
		cmd.Usage()
		return 2
	}
	if cost < 0 {
		_, _ = fmt.Fprintln(stderr, "Error: --cost must not be negative")
		return 2
	}
	overrides, err := parseHealthOverrides(healthSpec)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	return withApp(policyPath, stderr, func(ctx context.Context, a *app) int {
		if len(overrides) > 0 {
			if a.board == nil {
				_, _ = fmt.Fprintln(stderr, "Error: --health needs the local health board (no probes or redis configured)")
				return 2
			}
			for route, st := range overrides {
				a.board.Set(route, st)
			}
		}

		req := contracts.OperationRequest{
			OperationType: contracts.OperationType(op),
			Priority:      contracts.Priority(priority),
			CorrelationID: correlationID,
			ProviderHint:  hint,
			EstimatedCost: contracts.Cents(cost),
		}
		if t, err := contracts.ParseOperationType(op); err == nil {
			req.OperationType = t
		}
		if p, err := contracts.ParsePriority(priority); err == nil {
			req.Priority = p
		}

		d, err := a.engine.Decide(ctx, req)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		if jsonOutput {
			printJSON(stdout, d)
		} else if d.Allowed {
			_, _ = fmt.Fprintf(stdout, "ALLOWED  %s  cost=%s throttled=%t\n", d.Path, d.Reservation.Cost, d.Throttled)
			_, _ = fmt.Fprintf(stdout, "  reason:      %s\n", d.Reason)
			_, _ = fmt.Fprintf(stdout, "  correlation: %s\n", d.Request.CorrelationID)
		} else {
			_, _ = fmt.Fprintf(stdout, "REJECTED %s\n", d.Kind)
			_, _ = fmt.Fprintf(stdout, "  reason:      %s\n", d.Reason)
			_, _ = fmt.Fprintf(stdout, "  correlation: %s\n", d.Request.CorrelationID)
		}
		if !d.Allowed {
			return 1
		}
		return 0
	})
}

func runReportCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("report", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var (
		archiveURI, policyPath string
		jsonOutput, strict     bool
	)
	cmd.StringVar(&archiveURI, "archive", "", "Archive the report to file://, s3:// or gs:// (default $ROUTER_ARCHIVE_URI)")
	cmd.StringVar(&policyPath, "policy", "", "Policy YAML file (default $ROUTER_POLICY)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output the report as JSON")
	cmd.BoolVar(&strict, "strict", false, "Exit 1 when the report is not compliant")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	return withApp(policyPath, stderr, func(ctx context.Context, a *app) int {
		report, err := a.gate.GenerateHybridComplianceReport(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}

		store := a.archive
		if archiveURI != "" {
			if store, err = archive.Open(ctx, archiveURI); err != nil {
				_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
				return 1
			}
		}
		var uri string
		if store != nil {
			data, _ := json.Marshal(report)
			if uri, err = store.Put(ctx, archive.ReportKey(report.ReportID, report.GeneratedAt), data); err != nil {
				_, _ = fmt.Fprintf(stderr, "Error: archive: %v\n", err)
				return 1
			}
		}

		if jsonOutput {
			printJSON(stdout, report)
		} else {
			printReport(stdout, report)
			if uri != "" {
				_, _ = fmt.Fprintf(stdout, "  Archived:    %s\n", uri)
			}
		}
		if strict && !report.Compliant() {
			return 1
		}
		return 0
	})
}

func printReport(w io.Writer, r *compliance.HybridReport) {
	status := "COMPLIANT"
	if !r.Compliant() {
		status = "NOT COMPLIANT"
	}
	_, _ = fmt.Fprintf(w, "Hybrid compliance report %s: %s\n", r.ReportID, status)
	_, _ = fmt.Fprintf(w, "  Generated:   %s\n", r.GeneratedAt.Format(time.RFC3339))
	_, _ = fmt.Fprintf(w, "  Direct:      %s score=%d compliant=%t\n", r.Direct.RoutingPath, r.Direct.ComplianceScore, r.Direct.IsCompliant)
	_, _ = fmt.Fprintf(w, "  Integration: %s score=%d compliant=%t\n", r.Integration.RoutingPath, r.Integration.ComplianceScore, r.Integration.IsCompliant)
	c := r.CrossPath
	_, _ = fmt.Fprintf(w, "  Cross-path:  data=%t audit=%t consent=%t pii=%t\n",
		c.DataConsistency, c.AuditTrailContinuity, c.ConsentPropagation, c.PIIHandlingConsistency)
	for _, issue := range r.CriticalIssues {
		_, _ = fmt.Fprintf(w, "  CRITICAL:    %s\n", issue)
	}
	for _, rec := range r.Recommendations {
		_, _ = fmt.Fprintf(w, "  Recommend:   %s\n", rec)
	}
	for _, na := range r.NextActions {
		_, _ = fmt.Fprintf(w, "  Next [%s] %s (%s, due %s)\n", na.Priority, na.Action, na.RoutingPath, na.DueDate.Format("2006-01-02"))
	}
	_, _ = fmt.Fprintf(w, "  Hash:        %s\n", r.ContentHash)
}

func runSummaryCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("summary", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var (
		policyPath string
		jsonOutput bool
	)
	cmd.StringVar(&policyPath, "policy", "", "Policy YAML file (default $ROUTER_POLICY)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output the summary as JSON")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	return withApp(policyPath, stderr, func(ctx context.Context, a *app) int {
		sum, err := a.gate.GetComplianceSummary(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		if jsonOutput {
			printJSON(stdout, sum)
			return 0
		}
		_, _ = fmt.Fprintf(stdout, "Overall compliance: %d%%\n", sum.OverallCompliance)
		for _, p := range sum.Providers {
			mark := "ok  "
			if !p.Compliant {
				mark = "FAIL"
			}
			_, _ = fmt.Fprintf(stdout, "  %s %-8s score=%d\n", mark, p.Provider, p.Score)
		}
		_, _ = fmt.Fprintf(stdout, "Recent violations: %d\n", sum.RecentViolations)
		_, _ = fmt.Fprintf(stdout, "Pending actions:   %d\n", sum.PendingActions)
		return 0
	})
}

func defaultActor() string {
	if u := os.Getenv("USER"); u != "" {
		return "cli:" + u
	}
	return "cli"
}

func runLedgerCmd(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprintln(stderr, "Usage: hybridrouter ledger <show|reset-shutdown|reset-period> [flags]")
		return 2
	}
	sub := args[0]
	cmd := flag.NewFlagSet("ledger "+sub, flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var (
		actor, reason, policyPath string
		jsonOutput                bool
	)
	cmd.StringVar(&actor, "actor", defaultActor(), "Who performs the reset")
	cmd.StringVar(&reason, "reason", "", "Why the shutdown latch is cleared (reset-shutdown)")
	cmd.StringVar(&policyPath, "policy", "", "Policy YAML file (default $ROUTER_POLICY)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output totals as JSON")
	if err := cmd.Parse(args[1:]); err != nil {
		return 2
	}

	switch sub {
	case "show", "reset-period":
	case "reset-shutdown":
		if strings.TrimSpace(reason) == "" {
			_, _ = fmt.Fprintln(stderr, "Error: --reason is required")
			return 2
		}
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown ledger subcommand: %s\n", sub)
		return 2
	}

	return withApp(policyPath, stderr, func(_ context.Context, a *app) int {
		switch sub {
		case "reset-shutdown":
			if !a.ledger.ResetShutdown(actor, reason) {
				_, _ = fmt.Fprintln(stdout, "Emergency shutdown was not active.")
			} else {
				_, _ = fmt.Fprintln(stdout, "Emergency shutdown cleared.")
			}
		case "reset-period":
			a.ledger.ResetPeriod(actor)
			_, _ = fmt.Fprintln(stdout, "Billing period reset.")
		}
		t := a.ledger.Totals()
		if jsonOutput {
			printJSON(stdout, t)
			return 0
		}
		_, _ = fmt.Fprintf(stdout, "Ledger %s (%s store)\n", a.cfg.LedgerID, a.cfg.LedgerStore)
		_, _ = fmt.Fprintf(stdout, "  Direct:      %s\n", t.Direct)
		_, _ = fmt.Fprintf(stdout, "  Integration: %s\n", t.Integration)
		_, _ = fmt.Fprintf(stdout, "  Combined:    %s of %s (%s remaining)\n", t.Combined, t.Budget, t.Remaining())
		_, _ = fmt.Fprintf(stdout, "  Shutdown:    %t\n", t.ShutdownActive)
		return 0
	})
}

func runAdminTokenCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("admin-token", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var (
		subject string
		ttl     time.Duration
	)
	cmd.StringVar(&subject, "subject", "", "Token subject, recorded as the reset actor (REQUIRED)")
	cmd.DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if subject == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --subject is required")
		return 2
	}
	auth, err := api.NewAdminAuth(config.Load().AdminSecret)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: ROUTER_ADMIN_SECRET: %v\n", err)
		return 1
	}
	token, err := auth.Issue(subject, ttl)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(stdout, token)
	return 0
}
