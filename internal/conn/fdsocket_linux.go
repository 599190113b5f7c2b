//go:build linux

package conn

import (
	"io"
	"time"

	"golang.org/x/sys/unix"

	"gosock/internal/errors"
)

// FDSocket is a Socket over a raw, non-blocking stream descriptor.
//
// Reads never block.  Writes behave as blocking writes from the
// caller's point of view: short writes are continued and EAGAIN waits
// for POLLOUT, giving up after the write timeout.
type FDSocket struct {
	fd           int
	writeTimeout time.Duration // <= 0 waits forever
}

// NewFDSocket wraps fd.  The FDSocket owns fd from now on and closes it
// in Close.
func NewFDSocket(fd int, writeTimeout time.Duration) *FDSocket {
	return &FDSocket{fd: fd, writeTimeout: writeTimeout}
}

// Reset rebinds s to a freshly accepted fd so that an FDSocket embedded
// in a pooled value can be reused without allocating.  The previous
// descriptor must already be closed.
func (s *FDSocket) Reset(fd int, writeTimeout time.Duration) {
	s.fd = fd
	s.writeTimeout = writeTimeout
}

// Fd returns the descriptor, or InvalidSocket after Close.
func (s *FDSocket) Fd() int { return s.fd }

// Read reads whatever is pending.  It returns errors.ErrWouldBlock when
// nothing is, and io.EOF once the peer has shut down its side.
func (s *FDSocket) Read(p []byte) (int, error) {
	if s.fd < 0 {
		return 0, errors.ErrConnClosed
	}
	for {
		n, err := unix.Read(s.fd, p)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			return 0, errors.ErrWouldBlock
		case err != nil:
			return 0, err
		case n == 0 && len(p) > 0:
			return 0, io.EOF
		}
		return n, nil
	}
}

// Write transfers all of p.  MSG_NOSIGNAL turns a dead peer into EPIPE
// instead of a signal.
func (s *FDSocket) Write(p []byte) (int, error) {
	if s.fd < 0 {
		return 0, errors.ErrConnClosed
	}
	written := 0
	for written < len(p) {
		n, err := unix.SendmsgN(s.fd, p[written:], nil, nil, unix.MSG_NOSIGNAL)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			if err := s.waitWritable(); err != nil {
				return written, err
			}
			continue
		case err != nil:
			return written, err
		}
		written += n
	}
	return written, nil
}

func (s *FDSocket) waitWritable() error {
	timeout := -1
	if s.writeTimeout > 0 {
		timeout = int(s.writeTimeout / time.Millisecond)
		if timeout == 0 {
			timeout = 1
		}
	}
	fds := []unix.PollFd{{Fd: int32(s.fd), Events: unix.POLLOUT}}
	for {
		n, err := unix.Poll(fds, timeout)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return errors.ErrWriteTimeout
		}
		if fds[0].Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 &&
			fds[0].Revents&unix.POLLOUT == 0 {
			return unix.EPIPE
		}
		return nil
	}
}

// Close closes the descriptor.  Only the first call reaches the
// kernel.
func (s *FDSocket) Close() error {
	if s.fd < 0 {
		return nil
	}
	fd := s.fd
	s.fd = InvalidSocket
	return unix.Close(fd)
}
