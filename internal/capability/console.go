package capability

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"gosock/internal/frame"
	"gosock/internal/session"
)

// Console sends each stdin line as an echo (or broadcast) and prints
// what the server sends back.
type Console struct {
	Broadcast bool
	// PromptOut, when set, receives a "> " prompt before each line.
	// Connect mode sets it only for interactive terminals.
	PromptOut io.Writer
}

// Handle runs until stdin is exhausted and the server has delivered
// its final replies, the server disconnects, or ctx is cancelled.  At
// end of input the connection is half-closed, which makes the server
// flush and disconnect.
func (c *Console) Handle(ctx context.Context, sess *session.Session) error {
	cmd := frame.CmdEcho
	if c.Broadcast {
		cmd = frame.CmdBroadcast
	}

	replies := make(chan error, 1)
	go func() { replies <- printReplies(sess) }()

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(sess.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
		scanErr <- sc.Err()
		close(lines)
	}()

	for {
		c.prompt()
		select {
		case <-ctx.Done():
			return nil
		case err := <-replies:
			return err
		case line, ok := <-lines:
			if !ok {
				if err := <-scanErr; err != nil {
					return fmt.Errorf("reading input: %w", err)
				}
				if err := sess.Client.CloseWrite(); err != nil {
					return err
				}
				select {
				case err := <-replies:
					return err
				case <-ctx.Done():
					return nil
				}
			}
			if err := sess.Client.Send(cmd, []byte(line)); err != nil {
				return err
			}
		}
	}
}

func (c *Console) prompt() {
	if c.PromptOut != nil {
		fmt.Fprint(c.PromptOut, "> ")
	}
}

// printReplies writes replies to stdout until the server closes the
// connection, which is reported as nil.
func printReplies(sess *session.Session) error {
	for {
		m, err := sess.Client.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		switch m.Cmd() {
		case frame.CmdEchoReply:
			fmt.Fprintf(sess.Stdout, "%s\n", m.Payload())
		case frame.CmdBroadcastNotify:
			fmt.Fprintf(sess.Stdout, "[broadcast] %s\n", m.Payload())
		case frame.CmdHeartbeatReply:
			sess.Logger.Debug("heartbeat acknowledged")
		case frame.CmdError:
			sess.Logger.Warn("server error: %s", m.Payload())
		default:
			sess.Logger.Verbose("ignoring %s from server", m.Cmd())
		}
	}
}
