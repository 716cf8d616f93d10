// Command hybridrouter serves and inspects the hybrid operation router.
package main

import (
	"fmt"
	"io"
	"os"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "0.1.0"

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// startServer is a variable to allow mocking in tests
var startServer = runServe

// Run is the entrypoint for testing
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		return startServer(nil, stdout, stderr)
	}

	switch args[1] {
	case "serve", "server":
		return startServer(args[2:], stdout, stderr)
	case "decide":
		return runDecideCmd(args[2:], stdout, stderr)
	case "report":
		return runReportCmd(args[2:], stdout, stderr)
	case "summary":
		return runSummaryCmd(args[2:], stdout, stderr)
	case "ledger":
		return runLedgerCmd(args[2:], stdout, stderr)
	case "admin-token":
		return runAdminTokenCmd(args[2:], stdout, stderr)
	case "version", "--version":
		_, _ = fmt.Fprintf(stdout, "hybridrouter %s\n", version)
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		if args[1][0] == '-' {
			return startServer(args[1:], stdout, stderr)
		}
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

// ANSI Colors
const (
	colorReset = "\033[0m"
	colorBold  = "\033[1m"
	colorBlue  = "\033[34m"
	colorCyan  = "\033[36m"
	colorGreen = "\033[32m"
	colorGray  = "\033[37m"
)

func printUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintf(w, "%sHybrid Router %s%s\n", colorBold+colorBlue, version, colorReset)
	_, _ = fmt.Fprintf(w, "%sDirect or integration, checked and paid for.%s\n", colorGray, colorReset)
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintf(w, "%sUSAGE:%s\n", colorBold, colorReset)
	_, _ = fmt.Fprintln(w, "  hybridrouter <command> [flags]")
	_, _ = fmt.Fprintln(w, "")

	printSection(w, "ROUTING")
	printCommand(w, "serve", "Run the HTTP router (default)")
	printCommand(w, "decide", "Route one operation (--op, --priority, --hint, --cost, --json)")

	printSection(w, "COMPLIANCE")
	printCommand(w, "report", "Hybrid compliance report (--json, --archive URI, --strict)")
	printCommand(w, "summary", "Provider compliance summary (--json)")

	printSection(w, "COST LEDGER")
	printCommand(w, "ledger", "show | reset-shutdown --reason | reset-period")
	printCommand(w, "admin-token", "Issue an admin JWT (--subject, --ttl)")

	printSection(w, "UTILITIES")
	printCommand(w, "version", "Show version information")
	printCommand(w, "help", "Show this help")
	_, _ = fmt.Fprintln(w, "")
}

func printSection(w io.Writer, title string) {
	_, _ = fmt.Fprintf(w, "%s%s:%s\n", colorBold+colorCyan, title, colorReset)
}

func printCommand(w io.Writer, name, desc string) {
	_, _ = fmt.Fprintf(w, "  %s%-12s%s %s\n", colorGreen, name, colorReset, desc)
}
