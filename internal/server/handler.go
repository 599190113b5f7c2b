// Package server runs the gosock event loop: one goroutine that owns
// the listener, the connection pool and every pooled connection, and
// dispatches decoded messages to a Handler.
package server

import (
	"fmt"

	"gosock/internal/frame"
)

// Session is a handler's view of the client that sent a message.  It
// is only valid for the duration of the Handle call.
type Session interface {
	// Fd returns the client's descriptor.
	Fd() int
	// RemoteAddr returns the client's "ip:port".
	RemoteAddr() string
	// Send queues one message in the client's send buffer.  It reaches
	// the wire when the buffer fills, when the flush deadline passes,
	// or on Flush.
	Send(cmd frame.Cmd, payload []byte) error
	// Flush writes whatever is buffered now.
	Flush() error
	// Broadcast queues the message to every live client, the sender
	// included, and returns how many accepted it.
	Broadcast(cmd frame.Cmd, payload []byte) int
	// Close disconnects the client after the current batch, flushing
	// what is buffered first.
	Close()
}

// Handler processes one inbound message.  The message aliases the
// client's receive buffer and must not be retained.  A non-nil error
// disconnects the client.
type Handler interface {
	Handle(s Session, m frame.Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(s Session, m frame.Message) error

// Handle calls f(s, m).
func (f HandlerFunc) Handle(s Session, m frame.Message) error { return f(s, m) }

// ── Router ───────────────────────────────────────────────────────────

// Router dispatches messages by command.
type Router struct {
	routes   map[frame.Cmd]Handler
	notFound Handler
}

// NewRouter returns a router that answers unknown commands with
// CmdError.
func NewRouter() *Router {
	return &Router{
		routes:   make(map[frame.Cmd]Handler),
		notFound: HandlerFunc(unknownCommand),
	}
}

// Route registers h for cmd, replacing any previous handler.
func (r *Router) Route(cmd frame.Cmd, h Handler) *Router {
	r.routes[cmd] = h
	return r
}

// RouteFunc registers f for cmd.
func (r *Router) RouteFunc(cmd frame.Cmd, f func(Session, frame.Message) error) *Router {
	return r.Route(cmd, HandlerFunc(f))
}

// NotFound replaces the handler for unregistered commands.
func (r *Router) NotFound(h Handler) *Router {
	r.notFound = h
	return r
}

// Handle implements Handler.
func (r *Router) Handle(s Session, m frame.Message) error {
	if h, ok := r.routes[m.Cmd()]; ok {
		return h.Handle(s, m)
	}
	return r.notFound.Handle(s, m)
}

// DefaultRouter serves the built-in protocol: heartbeats are answered,
// echoes are returned to the sender, and broadcasts are relayed to
// every live client.
func DefaultRouter() *Router {
	return NewRouter().
		RouteFunc(frame.CmdHeartbeat, func(s Session, _ frame.Message) error {
			return s.Send(frame.CmdHeartbeatReply, nil)
		}).
		RouteFunc(frame.CmdEcho, func(s Session, m frame.Message) error {
			return s.Send(frame.CmdEchoReply, m.Payload())
		}).
		RouteFunc(frame.CmdBroadcast, func(s Session, m frame.Message) error {
			s.Broadcast(frame.CmdBroadcastNotify, m.Payload())
			return nil
		})
}

func unknownCommand(s Session, m frame.Message) error {
	return s.Send(frame.CmdError, []byte(fmt.Sprintf("unknown command %d", uint32(m.Cmd()))))
}
