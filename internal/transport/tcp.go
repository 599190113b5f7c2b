package transport

import (
	"context"
	"net"
	"time"

	"gosock/internal/errors"
	"gosock/internal/retry"
)

// TCPDialer establishes plain TCP connections, optionally binding to a
// specific source port.
type TCPDialer struct {
	Timeout   time.Duration
	LocalPort int           // optional source-port binding (0 = ephemeral)
	KeepAlive time.Duration // 0 uses the Go default, negative disables
}

// Dial connects to address.  Failures are returned as
// *errors.NetworkError so callers can ask IsRetryable.
func (d *TCPDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	dialer := net.Dialer{Timeout: d.Timeout, KeepAlive: d.KeepAlive}
	if d.LocalPort > 0 {
		dialer.LocalAddr = &net.TCPAddr{Port: d.LocalPort}
	}

	c, err := dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, errors.Wrap("dial", address, err)
	}
	return c, nil
}

// Close is a no-op for stateless TCP dialers.
func (d *TCPDialer) Close() error { return nil }

// ── Retrying dialer ──────────────────────────────────────────────────

// RetryDialer redials through Backoff while the failure looks
// transient (connection refused while the server restarts, and so on).
type RetryDialer struct {
	Dialer  Dialer
	Backoff *retry.Backoff
	// OnRetry, if set, is told about each failed attempt.
	OnRetry func(attempt int, err error)
}

// Dial implements Dialer.
func (d *RetryDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	b := *d.Backoff
	if b.Retryable == nil {
		b.Retryable = errors.IsRetryable
	}

	var c net.Conn
	err := b.Do(ctx, func(attempt int) error {
		var err error
		c, err = d.Dialer.Dial(ctx, network, address)
		if err != nil && d.OnRetry != nil {
			d.OnRetry(attempt, err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Close closes the wrapped dialer.
func (d *RetryDialer) Close() error { return d.Dialer.Close() }
