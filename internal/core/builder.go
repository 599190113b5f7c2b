package core

import (
	"os"

	"golang.org/x/term"

	"gosock/config"
	"gosock/internal/capability"
	"gosock/internal/client"
	"gosock/internal/metrics"
	"gosock/internal/retry"
	"gosock/internal/server"
	"gosock/internal/transport"
	"gosock/util"
)

// Build constructs the appropriate Mode from the given configuration.
func Build(cfg *config.Config, logger *util.Logger) (Mode, error) {
	if cfg.Listen {
		return buildServe(cfg, logger), nil
	}
	return buildConnect(cfg, logger), nil
}

// ── mode builders ────────────────────────────────────────────────────

func buildServe(cfg *config.Config, logger *util.Logger) Mode {
	return &ServeMode{
		Options:     server.OptionsFromConfig(cfg),
		MetricsAddr: cfg.MetricsAddr,
		Metrics:     metrics.New(),
		Logger:      logger,
	}
}

func buildConnect(cfg *config.Config, logger *util.Logger) Mode {
	backoff := retry.DefaultBackoff()
	return &ConnectMode{
		Address: util.FormatAddr(cfg.Host, cfg.Port),
		Client: client.Options{
			Timeout: cfg.Timeout,
			Backoff: backoff,
			Dialer:  &transport.TCPDialer{Timeout: cfg.Timeout, LocalPort: cfg.LocalPort},
			Logger:  logger,
		},
		Capability: buildCapability(cfg),
		Heartbeat:  cfg.HeartbeatInterval,
		Logger:     logger,
	}
}

// buildCapability selects the connect-mode behaviour.
func buildCapability(cfg *config.Config) capability.Capability {
	if cfg.BenchCount > 0 {
		return &capability.Bench{Count: cfg.BenchCount, Size: cfg.BenchSize}
	}
	console := &capability.Console{Broadcast: cfg.Broadcast}
	if term.IsTerminal(int(os.Stdin.Fd())) {
		console.PromptOut = os.Stderr
	}
	return console
}
