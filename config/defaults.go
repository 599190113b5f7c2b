package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, .env files and environment variable loading.

const (
	// DefaultMaxClients is the connection pool capacity.
	DefaultMaxClients = 10000

	// DefaultRecvBufSize is the per-connection receive buffer.
	DefaultRecvBufSize = 10240

	// DefaultSendBufSize is the per-connection send-coalescing buffer.
	DefaultSendBufSize = 10240

	// DefaultClientDeadTime drops a client that has sent nothing for
	// this long.
	DefaultClientDeadTime = 60 * time.Second

	// DefaultClientSendTime is the longest buffered replies may wait
	// before the event loop flushes them.
	DefaultClientSendTime = 200 * time.Millisecond

	// DefaultMaxMessageSize matches the receive buffer so any record
	// that fits can be decoded.
	DefaultMaxMessageSize = DefaultRecvBufSize

	// DefaultWriteTimeout bounds one blocking flush to a slow reader.
	DefaultWriteTimeout = 5 * time.Second

	// DefaultTickInterval is the event loop's wake-up period for
	// liveness and flush checks.
	DefaultTickInterval = 50 * time.Millisecond

	// DefaultAcceptBurst is the limiter bucket size when AcceptRate > 0.
	DefaultAcceptBurst = 64

	// DefaultBacklog is the listen(2) backlog.
	DefaultBacklog = 1024

	// DefaultConnTimeout is the client dial timeout.
	DefaultConnTimeout = 10 * time.Second

	// DefaultHeartbeatInterval keeps a connected client well inside
	// DefaultClientDeadTime.
	DefaultHeartbeatInterval = 20 * time.Second

	// DefaultBenchSize is the payload size of each load-test message.
	DefaultBenchSize = 64

	// DefaultLogFormat is the human-readable console encoding.
	DefaultLogFormat = "console"

	// DefaultEnvFile is read by Load when GOSOCK_ENV_FILE is unset.
	DefaultEnvFile = ".env"
)
