// Package errors provides domain-specific error types for gosock.
//
// These types carry structured context (operation, descriptor,
// retryability) that helps the I/O driver decide whether a connection
// must be dropped, and gives better diagnostics than plain string
// wrapping.
package errors

import (
	"errors"
	"fmt"
	"net"
	"syscall"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	// ErrPoolExhausted is returned by Acquire when every slot is in use.
	// The caller should reject the new peer.
	ErrPoolExhausted = errors.New("pool exhausted")

	// ErrWriteFailure marks a failed socket write.  The connection must
	// be treated as dead and closed.
	ErrWriteFailure = errors.New("socket write failed")

	ErrConnClosed          = errors.New("connection is closed")
	ErrRecvBufferFull      = errors.New("receive buffer full")
	ErrWouldBlock          = errors.New("operation would block")
	ErrWriteTimeout        = errors.New("write timed out")
	ErrUnsupportedPlatform = errors.New("event loop not supported on this platform")
)

// ── Structured error types ───────────────────────────────────────────

// WriteError describes a failed write on a socket descriptor.  It
// matches ErrWriteFailure with errors.Is.
type WriteError struct {
	Fd  int    // descriptor the write was issued on
	Op  string // "send" (boundary flush) or "flush"
	N   int    // bytes the write was asked to transfer
	Err error  // underlying error, usually a syscall.Errno
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s fd=%d (%d bytes): %v", e.Op, e.Fd, e.N, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Is reports ErrWriteFailure as a match so callers never need the
// concrete type.
func (e *WriteError) Is(target error) bool { return target == ErrWriteFailure }

// NetworkError represents a failure in a network operation outside
// the connection write path.
type NetworkError struct {
	Op        string // operation: "socket", "bind", "listen", "accept", "read", "dial"
	Addr      string // network address involved
	Err       error  // underlying error
	Retryable bool   // whether the caller should retry
}

func (e *NetworkError) Error() string {
	s := fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
	if e.Retryable {
		s += " (retryable)"
	}
	return s
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // config field name
	Value   interface{} // the invalid value (nil if missing)
	Message string      // human-readable explanation
	Hint    string      // suggestion for the user (optional)
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: --%s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// ── Constructors ─────────────────────────────────────────────────────

// Wrap creates a NetworkError, automatically detecting retryability
// from the underlying error.
func Wrap(op, addr string, err error) *NetworkError {
	return &NetworkError{
		Op:        op,
		Addr:      addr,
		Err:       err,
		Retryable: classifyRetryable(err),
	}
}

// WrapWrite creates a WriteError for a failed write of n bytes on fd.
func WrapWrite(op string, fd, n int, err error) *WriteError {
	return &WriteError{Op: op, Fd: fd, N: n, Err: err}
}

// ── Classification helpers ───────────────────────────────────────────

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrWriteFailure) || errors.Is(err, ErrPoolExhausted) {
		return false
	}
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne.Retryable
	}
	return classifyRetryable(err)
}

// IsPeerGone reports whether err means the remote end has gone away
// (reset, broken pipe, or closed by us).
func IsPeerGone(err error) bool {
	return errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, ErrConnClosed)
}

// classifyRetryable inspects standard library error types.
func classifyRetryable(err error) bool {
	if err == nil {
		return false
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EAGAIN || errno == syscall.EINTR ||
			errno == syscall.ECONNREFUSED || errno == syscall.EMFILE ||
			errno == syscall.ENFILE
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Temporary() //nolint:staticcheck // Temporary is deprecated but still useful
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary() //nolint:staticcheck
	}
	return false
}

// ── Re-exports for convenience ───────────────────────────────────────
//
// These allow callers to use gosock/internal/errors as a drop-in
// replacement for the standard library in common operations.

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }

// New is [errors.New].
func New(text string) error { return errors.New(text) }

// Unwrap is [errors.Unwrap].
func Unwrap(err error) error { return errors.Unwrap(err) }

// Join is [errors.Join].
func Join(errs ...error) error { return errors.Join(errs...) }
