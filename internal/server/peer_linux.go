//go:build linux

package server

import (
	"gosock/internal/conn"
	"gosock/internal/errors"
	"gosock/internal/frame"
	"gosock/internal/metrics"
	"gosock/internal/pool"
)

// dropReason records why a client is being disconnected.
type dropReason int

const (
	dropNone     dropReason = iota
	dropEOF                 // peer shut down its side
	dropRead                // read error
	dropProtocol            // malformed record
	dropWrite               // write failure
	dropDead                // heartbeat deadline missed
	dropHandler             // handler error or Session.Close
	dropShutdown            // server stopping
)

var dropNames = [...]string{
	dropNone:     "none",
	dropEOF:      "peer closed",
	dropRead:     "read error",
	dropProtocol: "protocol error",
	dropWrite:    "write failed",
	dropDead:     "heartbeat timeout",
	dropHandler:  "closed by handler",
	dropShutdown: "server shutdown",
}

func (r dropReason) String() string { return dropNames[r] }

// graceful reports whether buffered replies should be flushed before
// the descriptor is closed.
func (r dropReason) graceful() bool {
	return r == dropEOF || r == dropHandler || r == dropShutdown
}

// meteredSocket counts every write that reaches the kernel.  It is
// embedded by value in a pooled peer so accepting a client allocates
// nothing once the slot has been used before.
type meteredSocket struct {
	conn.FDSocket
	metrics *metrics.Collector
}

func (s *meteredSocket) Write(p []byte) (int, error) {
	n, err := s.FDSocket.Write(p)
	if n > 0 {
		s.metrics.BytesSent(int64(n))
	}
	return n, err
}

// peer is one pool slot: a connection plus the bookkeeping the event
// loop needs.  It implements Session.
type peer struct {
	conn    conn.Conn
	sock    meteredSocket
	handle  pool.Handle
	srv     *Server
	remote  string
	drop    dropReason
	dropErr error
}

func (p *peer) Fd() int            { return p.conn.Handle() }
func (p *peer) RemoteAddr() string { return p.remote }

func (p *peer) Send(cmd frame.Cmd, payload []byte) error {
	if p.drop != dropNone {
		return errors.ErrConnClosed
	}
	var hdr [frame.HeaderSize]byte
	frame.PutHeader(hdr[:], cmd, len(payload))
	err := p.conn.Send(hdr[:])
	if err == nil && len(payload) > 0 {
		err = p.conn.Send(payload)
	}
	if err != nil {
		p.srv.markDrop(p, dropWrite, err)
		return err
	}
	p.srv.metrics.MessageSent()
	return nil
}

func (p *peer) Flush() error {
	if p.drop != dropNone {
		return errors.ErrConnClosed
	}
	if err := p.conn.Flush(); err != nil {
		p.srv.markDrop(p, dropWrite, err)
		return err
	}
	p.conn.ResetSendAge()
	return nil
}

func (p *peer) Broadcast(cmd frame.Cmd, payload []byte) int {
	return p.srv.broadcast(cmd, payload)
}

func (p *peer) Close() { p.srv.markDrop(p, dropHandler, nil) }
