// Package session binds one client connection to the local I/O it
// serves.
//
// Capabilities operate on a Session rather than on os.Stdin and a
// socket directly, so they can be driven from buffers in tests.
package session

import (
	"io"

	"gosock/internal/client"
	"gosock/util"
)

// Session is the runtime context for one connect-mode connection.
type Session struct {
	Client *client.Client
	Stdin  io.Reader
	Stdout io.Writer
	Logger *util.Logger
}

// New creates a Session bound to c and the given I/O pair.
func New(c *client.Client, stdin io.Reader, stdout io.Writer, logger *util.Logger) *Session {
	return &Session{
		Client: c,
		Stdin:  stdin,
		Stdout: stdout,
		Logger: logger,
	}
}
