// Package config defines the runtime configuration for gosock and the
// rules that keep it consistent.
package config

import (
	"fmt"
	"strconv"
	"time"

	"gosock/internal/errors"
	"gosock/internal/frame"
)

// Config holds every tuneable for a single gosock process.  The env
// tags are read by Load with the GOSOCK_ prefix.
type Config struct {
	// ── Connection ───────────────────────────────────────────────────
	Host      string        `env:"HOST"`
	Port      int           `env:"PORT"`       // connect mode: server port
	LocalPort int           `env:"LOCAL_PORT"` // -p: listen port
	Listen    bool          `env:"LISTEN"`
	Timeout   time.Duration `env:"TIMEOUT"` // connect mode: dial timeout
	ReusePort bool          `env:"REUSE_PORT"`
	Backlog   int           `env:"BACKLOG"`

	// ── Connection pool and buffers ──────────────────────────────────
	MaxClients     int           `env:"MAX_CLIENTS"`
	RecvBufSize    int           `env:"RECV_BUFF_SIZE"`
	SendBufSize    int           `env:"SEND_BUFF_SIZE"`
	ClientDeadTime time.Duration `env:"CLIENT_DEAD_TIME"` // negative disables the liveness check
	ClientSendTime time.Duration `env:"CLIENT_SEND_TIME"` // <= 0 disables time-based flushing
	MaxMessageSize int           `env:"MAX_MESSAGE_SIZE"`
	WriteTimeout   time.Duration `env:"WRITE_TIMEOUT"`

	// ── Event loop ───────────────────────────────────────────────────
	TickInterval time.Duration `env:"TICK_INTERVAL"`
	AcceptRate   float64       `env:"ACCEPT_RATE"` // accepts per second, 0 = unlimited
	AcceptBurst  int           `env:"ACCEPT_BURST"`

	// ── Client ───────────────────────────────────────────────────────
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL"`
	Broadcast         bool          `env:"BROADCAST"` // send stdin lines as broadcasts instead of echoes
	BenchCount        int           `env:"BENCH_COUNT"` // > 0 runs a load test instead of the console
	BenchSize         int           `env:"BENCH_SIZE"`

	// ── Output ───────────────────────────────────────────────────────
	MetricsAddr string `env:"METRICS_ADDR"`
	Verbose     int    `env:"VERBOSE"`
	LogFormat   string `env:"LOG_FORMAT"`
	DryRun      bool
}

// Default returns a Config populated from defaults.go.
func Default() *Config {
	return &Config{
		Timeout:           DefaultConnTimeout,
		Backlog:           DefaultBacklog,
		MaxClients:        DefaultMaxClients,
		RecvBufSize:       DefaultRecvBufSize,
		SendBufSize:       DefaultSendBufSize,
		ClientDeadTime:    DefaultClientDeadTime,
		ClientSendTime:    DefaultClientSendTime,
		MaxMessageSize:    DefaultMaxMessageSize,
		WriteTimeout:      DefaultWriteTimeout,
		TickInterval:      DefaultTickInterval,
		AcceptBurst:       DefaultAcceptBurst,
		HeartbeatInterval: DefaultHeartbeatInterval,
		BenchSize:         DefaultBenchSize,
		Verbose:           1,
		LogFormat:         DefaultLogFormat,
	}
}

// ── Port helpers ─────────────────────────────────────────────────────

// ParsePort accepts a decimal port in 1-65535.
func ParsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("port %d out of range 1-65535", port)
	}
	return port, nil
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.
// Every failure is a *errors.ConfigError carrying a hint.
func (c *Config) Validate() error {
	if c.Listen {
		if c.LocalPort == 0 {
			return &errors.ConfigError{
				Field:   "port",
				Message: "listen mode requires a local port",
				Hint:    "use -l -p <port>, e.g. gosock -l -p 9000",
			}
		}
		if c.MaxClients <= 0 {
			return &errors.ConfigError{
				Field: "max-clients", Value: c.MaxClients,
				Message: "the connection pool needs at least one slot",
				Hint:    fmt.Sprintf("the default is %d", DefaultMaxClients),
			}
		}
		if c.ClientDeadTime == 0 {
			return &errors.ConfigError{
				Field: "dead-time", Value: c.ClientDeadTime,
				Message: "a zero dead time would drop every client on the first tick",
				Hint:    "use a negative value to disable the liveness check",
			}
		}
		if c.TickInterval <= 0 {
			return &errors.ConfigError{
				Field: "tick", Value: c.TickInterval,
				Message: "the tick interval must be positive",
				Hint:    "try --tick " + DefaultTickInterval.String(),
			}
		}
		if c.AcceptRate < 0 {
			return &errors.ConfigError{
				Field: "accept-rate", Value: c.AcceptRate,
				Message: "accept rate cannot be negative",
				Hint:    "use 0 for no limit",
			}
		}
	} else {
		if c.Host == "" {
			return &errors.ConfigError{
				Field:   "host",
				Message: "hostname is required",
				Hint:    "use --help for usage",
			}
		}
		if c.Port == 0 {
			return &errors.ConfigError{
				Field:   "port",
				Message: "destination port is required",
				Hint:    "gosock <host> <port>",
			}
		}
		if c.BenchCount < 0 {
			return &errors.ConfigError{
				Field: "bench", Value: c.BenchCount,
				Message: "message count cannot be negative",
			}
		}
		if c.BenchCount > 0 && (c.BenchSize < 0 || c.BenchSize+frame.HeaderSize > c.MaxMessageSize) {
			return &errors.ConfigError{
				Field: "bench-size", Value: c.BenchSize,
				Message: fmt.Sprintf("payload must be between 0 and %d bytes", c.MaxMessageSize-frame.HeaderSize),
				Hint:    "the server drops clients that send records above its --max-msg",
			}
		}
	}

	if c.RecvBufSize < frame.HeaderSize {
		return &errors.ConfigError{
			Field: "recv-buf", Value: c.RecvBufSize,
			Message: fmt.Sprintf("receive buffer must hold at least a %d-byte header", frame.HeaderSize),
		}
	}
	if c.SendBufSize <= 0 {
		return &errors.ConfigError{
			Field: "send-buf", Value: c.SendBufSize,
			Message: "send buffer size must be positive",
		}
	}
	if c.MaxMessageSize < frame.HeaderSize || c.MaxMessageSize > c.RecvBufSize {
		return &errors.ConfigError{
			Field: "max-msg", Value: c.MaxMessageSize,
			Message: fmt.Sprintf("must be between %d and the receive buffer size (%d)", frame.HeaderSize, c.RecvBufSize),
			Hint:    "a record that cannot fit in the receive buffer can never be decoded",
		}
	}

	switch c.LogFormat {
	case "console", "json":
	default:
		return &errors.ConfigError{
			Field: "log-format", Value: c.LogFormat,
			Message: "unknown log format",
			Hint:    `use "console" or "json"`,
		}
	}
	return nil
}
