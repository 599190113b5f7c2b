// Package transport establishes the client side of a gosock
// connection.  Dialers only open the stream; framing lives in
// internal/frame and the conversation in internal/client.
package transport

import (
	"context"
	"net"
)

// Dialer opens outbound stream connections.
type Dialer interface {
	// Dial establishes a connection to the given network address.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close releases any long-lived resources held by the dialer.
	// Stateless dialers return nil.
	Close() error
}
