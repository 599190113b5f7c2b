package core

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"gosock/internal/capability"
	"gosock/internal/client"
	"gosock/internal/session"
	"gosock/util"
)

// ConnectMode dials a gosock server and runs a capability on the
// connection, keeping it alive with heartbeats.
type ConnectMode struct {
	Address    string
	Client     client.Options
	Capability capability.Capability
	Heartbeat  time.Duration // 0 disables
	Logger     *util.Logger

	// Stdin/Stdout default to os.Stdin/os.Stdout when nil.
	// Override in tests for deterministic I/O.
	Stdin  io.Reader
	Stdout io.Writer
}

func (m *ConnectMode) stdin() io.Reader {
	if m.Stdin != nil {
		return m.Stdin
	}
	return os.Stdin
}

func (m *ConnectMode) stdout() io.Writer {
	if m.Stdout != nil {
		return m.Stdout
	}
	return os.Stdout
}

// Run dials the server, starts the heartbeat and hands a session to
// the capability.  Cancelling ctx closes the connection, which is not
// reported as an error.
func (m *ConnectMode) Run(ctx context.Context) error {
	m.Logger.Verbose("connecting to %s", m.Address)

	c, err := client.Dial(ctx, m.Address, m.Client)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", m.Address, err)
	}
	defer c.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-runCtx.Done()
		c.Close()
	}()

	if m.Heartbeat > 0 {
		go func() {
			if err := c.Heartbeat(runCtx, m.Heartbeat); err != nil {
				m.Logger.Debug("heartbeat stopped: %v", err)
			}
		}()
	}

	sess := session.New(c, m.stdin(), m.stdout(), m.Logger)
	err = m.Capability.Handle(runCtx, sess)
	if ctx.Err() != nil {
		return nil
	}
	return err
}
