// Package cmd wires up the CLI flags and dispatches to the core modes.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"gosock/config"
	"gosock/internal/core"
	"gosock/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X gosock/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// stdout is where --version and --dry-run report.  Tests replace it.
var stdout io.Writer = os.Stdout //nolint:gochecknoglobals

// Execute parses args and runs the selected gosock mode.
//
// Configuration is layered: defaults, then the .env file and GOSOCK_*
// environment, then flags, then positional arguments.
func Execute(ctx context.Context, args []string) error {
	cfg := config.Default()
	if err := config.Load(cfg); err != nil {
		return err
	}
	fs := flag.NewFlagSet("gosock", flag.ContinueOnError)

	// ── connection ───────────────────────────────────────────────
	fs.BoolVarP(&cfg.Listen, "listen", "l", cfg.Listen, "Listen mode (run the server)")
	fs.IntVarP(&cfg.LocalPort, "port", "p", cfg.LocalPort, "Local port: listen port, or source port when connecting")
	fs.BoolVar(&cfg.ReusePort, "reuse-port", cfg.ReusePort, "Set SO_REUSEPORT on the listener")
	fs.IntVar(&cfg.Backlog, "backlog", cfg.Backlog, "listen(2) backlog")

	var timeoutSec int
	fs.IntVarP(&timeoutSec, "timeout", "w", 0, "Connect timeout in seconds")

	// ── connection pool ──────────────────────────────────────────
	fs.IntVar(&cfg.MaxClients, "max-clients", cfg.MaxClients, "Connection pool capacity")
	fs.IntVar(&cfg.RecvBufSize, "recv-buf", cfg.RecvBufSize, "Per-client receive buffer (bytes)")
	fs.IntVar(&cfg.SendBufSize, "send-buf", cfg.SendBufSize, "Per-client send buffer (bytes)")
	fs.DurationVar(&cfg.ClientDeadTime, "dead-time", cfg.ClientDeadTime, "Drop clients silent this long (negative disables)")
	fs.DurationVar(&cfg.ClientSendTime, "flush-time", cfg.ClientSendTime, "Flush buffered replies this old (0 disables)")
	fs.IntVar(&cfg.MaxMessageSize, "max-msg", cfg.MaxMessageSize, "Largest accepted record, header included")
	fs.DurationVar(&cfg.WriteTimeout, "write-timeout", cfg.WriteTimeout, "Give up on a client that will not drain a flush (negative waits forever)")

	// ── event loop ───────────────────────────────────────────────
	fs.DurationVar(&cfg.TickInterval, "tick", cfg.TickInterval, "Liveness and flush check interval")
	fs.Float64Var(&cfg.AcceptRate, "accept-rate", cfg.AcceptRate, "Accepted connections per second (0 = unlimited)")
	fs.IntVar(&cfg.AcceptBurst, "accept-burst", cfg.AcceptBurst, "Burst allowance for --accept-rate")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Serve Prometheus metrics on this address")

	// ── client ───────────────────────────────────────────────────
	fs.DurationVar(&cfg.HeartbeatInterval, "heartbeat", cfg.HeartbeatInterval, "Heartbeat interval when connected (0 disables)")
	fs.BoolVarP(&cfg.Broadcast, "broadcast", "b", cfg.Broadcast, "Send input lines as broadcasts instead of echoes")
	fs.IntVar(&cfg.BenchCount, "bench", cfg.BenchCount, "Send N echo messages and report throughput")
	fs.IntVar(&cfg.BenchSize, "bench-size", cfg.BenchSize, "Payload bytes per --bench message")

	// ── output ───────────────────────────────────────────────────
	var verbose int
	fs.CountVarP(&verbose, "verbose", "v", "Increase verbosity (repeatable)")
	quiet := fs.BoolP("quiet", "q", false, "Only print errors")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log encoding: "console" or "json"`)
	fs.BoolVar(&cfg.DryRun, "dry-run", false, "Validate the configuration and exit")

	var showVersion, showHelp bool
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}

	if showHelp || len(args) == 0 {
		printUsage(fs)
		return nil
	}
	if showVersion {
		fmt.Fprintf(stdout, "gosock %s\n", version)
		return nil
	}

	if timeoutSec > 0 {
		cfg.Timeout = time.Duration(timeoutSec) * time.Second
	}
	cfg.Verbose += verbose
	if *quiet {
		cfg.Verbose = 0
	}

	// ── positional arguments ─────────────────────────────────────
	if err := parsePositional(cfg, fs.Args()); err != nil {
		return err
	}

	// ── validate ─────────────────────────────────────────────────
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.DryRun {
		printSummary(cfg)
		return nil
	}

	// ── build and run ────────────────────────────────────────────
	logger := util.NewLogger(cfg.Verbose)
	logger.SetFormat(util.LogFormat(cfg.LogFormat))

	mode, err := core.Build(cfg, logger)
	if err != nil {
		return err
	}
	return mode.Run(ctx)
}

// ── helpers ──────────────────────────────────────────────────────────

func parsePositional(cfg *config.Config, remaining []string) error {
	if cfg.Listen {
		switch len(remaining) {
		case 0: // gosock -l -p PORT
		case 1: // gosock -l -p PORT 127.0.0.1
			cfg.Host = remaining[0]
		default:
			return fmt.Errorf("too many arguments for listen mode")
		}
		return nil
	}

	// Connect mode: host port
	switch len(remaining) {
	case 0:
		return fmt.Errorf("hostname required (use --help for usage)")
	case 1:
		return fmt.Errorf("port required")
	case 2:
	default:
		return fmt.Errorf("too many arguments for connect mode")
	}
	cfg.Host = remaining[0]
	port, err := config.ParsePort(remaining[1])
	if err != nil {
		return fmt.Errorf("port: %w", err)
	}
	cfg.Port = port
	return nil
}

func printSummary(cfg *config.Config) {
	if cfg.Listen {
		fmt.Fprintf(stdout, "listen %s: %d clients, recv %d / send %d bytes, dead after %v, flush after %v\n",
			util.FormatAddr(cfg.Host, cfg.LocalPort), cfg.MaxClients, cfg.RecvBufSize, cfg.SendBufSize,
			cfg.ClientDeadTime, cfg.ClientSendTime)
		return
	}
	fmt.Fprintf(stdout, "connect %s: heartbeat every %v\n", util.FormatAddr(cfg.Host, cfg.Port), cfg.HeartbeatInterval)
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `gosock – pooled TCP message server v%s

Usage:
  gosock -l -p <port> [options] [bind-ip]      Serve
  gosock [options] <host> <port>               Connect

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Environment:
  Every option can be set as GOSOCK_<NAME> (e.g. GOSOCK_MAX_CLIENTS),
  or in a .env file (GOSOCK_ENV_FILE overrides its path).

Examples:
  gosock -l -p 9000                            Serve on every interface
  gosock -l -p 9000 --metrics-addr :9100 -v    Serve with Prometheus metrics
  gosock localhost 9000                        Interactive echo console
  gosock -b localhost 9000                     Broadcast each line
  gosock --bench 100000 localhost 9000         Measure echo throughput
`)
}
