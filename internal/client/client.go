// Package client speaks the gosock protocol over an ordinary net.Conn.
// It backs connect mode and the server's integration tests.
package client

import (
	"bufio"
	"context"
	"io"
	"net"
	"sync"
	"time"

	"gosock/internal/errors"
	"gosock/internal/frame"
	"gosock/internal/retry"
	"gosock/internal/transport"
	"gosock/util"
)

// Options configure Dial.
type Options struct {
	// Timeout bounds each connection attempt.
	Timeout time.Duration
	// Backoff retries refused or otherwise transient dials.  Nil
	// dials once.
	Backoff *retry.Backoff
	// MaxMessageSize rejects larger inbound records.  Zero means
	// frame.DefaultMaxMessageSize.
	MaxMessageSize int
	// Dialer overrides the TCP dialer.
	Dialer transport.Dialer
	Logger *util.Logger
}

// Client is one connection to a gosock server.  Send and Heartbeat may
// run concurrently with Recv; Recv itself must have a single caller.
type Client struct {
	conn net.Conn
	r    *bufio.Reader
	dec  frame.Decoder
	log  *util.Logger

	wmu  sync.Mutex
	wbuf []byte
}

// Dial connects to addr ("host:port").
func Dial(ctx context.Context, addr string, o Options) (*Client, error) {
	logger := o.Logger
	if logger == nil {
		logger = util.NewLogger(0)
	}
	var d transport.Dialer = o.Dialer
	if d == nil {
		d = &transport.TCPDialer{Timeout: o.Timeout}
	}
	if o.Backoff != nil {
		d = &transport.RetryDialer{
			Dialer:  d,
			Backoff: o.Backoff,
			OnRetry: func(attempt int, err error) {
				logger.Verbose("dial %s attempt %d: %v", addr, attempt, err)
			},
		}
	}

	c, err := d.Dial(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	logger.Verbose("connected to %s from %s", c.RemoteAddr(), c.LocalAddr())
	return New(c, o.MaxMessageSize, logger), nil
}

// New wraps an established connection.
func New(c net.Conn, maxMessageSize int, logger *util.Logger) *Client {
	if logger == nil {
		logger = util.NewLogger(0)
	}
	return &Client{
		conn: c,
		r:    bufio.NewReader(c),
		dec:  frame.Decoder{MaxSize: maxMessageSize},
		log:  logger,
	}
}

// LocalAddr returns the client's end of the connection.
func (c *Client) LocalAddr() net.Addr { return c.conn.LocalAddr() }

// RemoteAddr returns the server's address.
func (c *Client) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// Send writes one message.
func (c *Client) Send(cmd frame.Cmd, payload []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	c.wbuf = frame.AppendMessage(c.wbuf[:0], cmd, payload)
	if _, err := c.conn.Write(c.wbuf); err != nil {
		return errors.Wrap("write", c.conn.RemoteAddr().String(), err)
	}
	return nil
}

// Recv blocks for the next message.  The returned message is owned by
// the caller.  io.EOF means the server closed the connection between
// messages; a close in the middle of one is io.ErrUnexpectedEOF.
func (c *Client) Recv() (frame.Message, error) {
	var hdr [frame.HeaderSize]byte
	if _, err := io.ReadFull(c.r, hdr[:]); err != nil {
		return nil, err
	}
	m, _, err := c.dec.Next(hdr[:])
	if err == nil {
		return m.Clone(), nil
	}
	if err != frame.ErrIncomplete {
		return nil, err
	}
	m = make(frame.Message, frame.Message(hdr[:]).Len())
	copy(m, hdr[:])
	if _, err := io.ReadFull(c.r, m[frame.HeaderSize:]); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return m, nil
}

// SetReadDeadline bounds the next Recv.
func (c *Client) SetReadDeadline(t time.Time) error { return c.conn.SetReadDeadline(t) }

// Heartbeat sends CmdHeartbeat every interval until ctx ends or a send
// fails.  It returns nil on cancellation.
func (c *Client) Heartbeat(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if err := c.Send(frame.CmdHeartbeat, nil); err != nil {
				return err
			}
			c.log.Debug("heartbeat sent")
		}
	}
}

// CloseWrite half-closes the connection so the server sees end of
// input while replies can still be read.
func (c *Client) CloseWrite() error {
	if cw, ok := c.conn.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return c.conn.Close()
}

// Close closes the connection.
func (c *Client) Close() error { return c.conn.Close() }
