// Package conn implements the buffered, pooled representation of one
// TCP peer.
//
// A Conn couples a socket with a fixed-size receive buffer, a
// fixed-size send-coalescing buffer and two elapsed-time accumulators.
// Small messages are batched in the send buffer and written out either
// when it fills up or when the driver decides the buffered data has
// become stale (FlushDue).  The accumulators are fed by the driver with
// externally measured elapsed time; Conn never reads a clock.
//
// A Conn is not safe for concurrent use.  Every call for a given
// connection must come from the goroutine running the event loop.
package conn

import (
	"fmt"
	"io"
	"time"

	"gosock/internal/errors"
)

// InvalidSocket is the handle reported by a Conn with no live socket.
const InvalidSocket = -1

// Socket is the OS endpoint behind a Conn.
//
// Write must either transfer all of p or return an error; a Conn treats
// any error as fatal for the connection.  Read may return
// errors.ErrWouldBlock when no data is pending.
type Socket interface {
	Fd() int
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Limits are the liveness and flush-staleness thresholds.
type Limits struct {
	// DeadTime is the idle time after which a peer is declared dead.
	// Negative disables expiry.
	DeadTime time.Duration

	// FlushTime is how long data may sit in the send buffer before a
	// flush is due.  Zero or negative disables staleness flushes.
	FlushTime time.Duration
}

// Options size the buffers of a Conn.
type Options struct {
	RecvBufSize int
	SendBufSize int
	Limits      Limits
}

// Conn is one buffered peer connection.
type Conn struct {
	sock Socket

	// Receive side.  The framing layer owns recvPos; Conn only appends
	// at it.
	recvBuf []byte
	recvPos int

	// Send side.  sendPos is the first free byte and stays strictly
	// below len(sendBuf) between calls.
	sendBuf []byte
	sendPos int

	heartbeat time.Duration // idle time since the last ResetHeartbeat
	sendAge   time.Duration // time since the send buffer was last drained

	limits Limits
}

// New returns a Conn bound to sock.
func New(sock Socket, o Options) *Conn {
	c := &Conn{}
	c.Reset(sock, o)
	return c
}

// Reset binds sock and returns every buffer, cursor and accumulator to
// its initial state.  Buffers are reused when their size already
// matches, so a pooled Conn is allocated once and recycled in place.
func (c *Conn) Reset(sock Socket, o Options) {
	if o.RecvBufSize <= 0 || o.SendBufSize <= 0 {
		panic(fmt.Sprintf("conn: buffer sizes must be positive (recv=%d send=%d)",
			o.RecvBufSize, o.SendBufSize))
	}
	c.sock = sock
	c.recvBuf = reuse(c.recvBuf, o.RecvBufSize)
	c.recvPos = 0
	c.sendBuf = reuse(c.sendBuf, o.SendBufSize)
	c.sendPos = 0
	c.limits = o.Limits
	c.ResetHeartbeat()
	c.ResetSendAge()
}

func reuse(buf []byte, size int) []byte {
	if len(buf) != size {
		return make([]byte, size)
	}
	clear(buf)
	return buf
}

// Handle returns the socket descriptor, or InvalidSocket once closed.
func (c *Conn) Handle() int {
	if c.sock == nil {
		return InvalidSocket
	}
	return c.sock.Fd()
}

// Closed reports whether the Conn no longer owns a socket.
func (c *Conn) Closed() bool { return c.sock == nil }

// ── Receive buffer ───────────────────────────────────────────────────

// RecvBuf returns the whole receive buffer.  Bytes in [0, RecvPos())
// have been received and not yet consumed by the framing layer.
func (c *Conn) RecvBuf() []byte { return c.recvBuf }

// RecvPos returns the receive cursor.
func (c *Conn) RecvPos() int { return c.recvPos }

// SetRecvPos moves the receive cursor.  pos outside [0, len(RecvBuf())]
// is a programming error and panics.
func (c *Conn) SetRecvPos(pos int) {
	if pos < 0 || pos > len(c.recvBuf) {
		panic(fmt.Sprintf("conn: receive cursor %d out of range [0, %d]", pos, len(c.recvBuf)))
	}
	c.recvPos = pos
}

// Receive performs one read from the socket into the free tail of the
// receive buffer and advances the cursor.  It returns io.EOF when the
// peer has closed its side and errors.ErrRecvBufferFull when the
// framing layer has left no room.
func (c *Conn) Receive() (int, error) {
	if c.sock == nil {
		return 0, errors.ErrConnClosed
	}
	if c.recvPos >= len(c.recvBuf) {
		return 0, errors.ErrRecvBufferFull
	}
	n, err := c.sock.Read(c.recvBuf[c.recvPos:])
	if n > 0 {
		c.recvPos += n
	}
	if err != nil {
		return n, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// ── Send buffer ──────────────────────────────────────────────────────

// Buffered returns the number of bytes waiting in the send buffer.
func (c *Conn) Buffered() int { return c.sendPos }

// SendBufSize returns the capacity of the send buffer.
func (c *Conn) SendBufSize() int { return len(c.sendBuf) }

// Send appends msg to the send buffer.  While msg does not fit, the
// buffer is topped up with the front of msg and written out whole,
// then the cursor and the send-buffer age start over.  A buffer that
// ends up exactly full is written too, so the cursor never rests at
// capacity.  Messages of any length are accepted; byte order on the
// wire always matches call order.
//
// A failed write aborts immediately with an error matching
// errors.ErrWriteFailure.  The part of msg that was not yet copied is
// dropped and the cursor stays at zero; the caller is expected to
// close the connection.
func (c *Conn) Send(msg []byte) error {
	if c.sock == nil {
		return errors.ErrConnClosed
	}
	for c.sendPos+len(msg) >= len(c.sendBuf) {
		n := copy(c.sendBuf[c.sendPos:], msg)
		msg = msg[n:]
		err := c.write(c.sendBuf, "send")
		c.sendPos = 0
		c.ResetSendAge()
		if err != nil {
			return err
		}
	}
	c.sendPos += copy(c.sendBuf[c.sendPos:], msg)
	return nil
}

// Flush writes every buffered byte in one write and empties the
// buffer.  Flushing an empty buffer is a successful no-op.  The cursor
// is reset even when the write fails.
func (c *Conn) Flush() error {
	if c.sendPos == 0 {
		return nil
	}
	if c.sock == nil {
		return errors.ErrConnClosed
	}
	err := c.write(c.sendBuf[:c.sendPos], "flush")
	c.sendPos = 0
	return err
}

func (c *Conn) write(p []byte, op string) error {
	n, err := c.sock.Write(p)
	if err == nil && n < len(p) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return errors.WrapWrite(op, c.sock.Fd(), len(p), err)
	}
	return nil
}

// Close releases the socket.  Calling Close on a closed Conn is a
// no-op.  Buffered, unflushed bytes are discarded.
func (c *Conn) Close() error {
	if c.sock == nil {
		return nil
	}
	sock := c.sock
	c.sock = nil
	c.sendPos = 0
	return sock.Close()
}

// ── Timers ───────────────────────────────────────────────────────────

// ResetHeartbeat marks the peer as just heard from.
func (c *Conn) ResetHeartbeat() { c.heartbeat = 0 }

// ResetSendAge restarts the send-buffer staleness clock.
func (c *Conn) ResetSendAge() { c.sendAge = 0 }

// IsAlive adds elapsed to the idle time and reports whether the peer is
// still within DeadTime.  It never resets the accumulator; call
// ResetHeartbeat when traffic arrives.
func (c *Conn) IsAlive(elapsed time.Duration) bool {
	c.heartbeat += elapsed
	return c.limits.DeadTime < 0 || c.heartbeat < c.limits.DeadTime
}

// FlushDue adds elapsed to the send-buffer age and reports whether it
// has passed FlushTime, meaning the driver should Flush.
func (c *Conn) FlushDue(elapsed time.Duration) bool {
	c.sendAge += elapsed
	return c.limits.FlushTime > 0 && c.sendAge > c.limits.FlushTime
}

// HeartbeatAge returns the accumulated idle time.
func (c *Conn) HeartbeatAge() time.Duration { return c.heartbeat }

// SendAge returns the accumulated send-buffer age.
func (c *Conn) SendAge() time.Duration { return c.sendAge }
