package capability

import (
	"context"
	"fmt"
	"time"

	"gosock/internal/frame"
	"gosock/internal/session"
)

// Bench sends Count echo messages of Size payload bytes as fast as the
// connection allows and waits for every reply.  It exercises the
// server's send coalescing: replies arrive in full-buffer batches or
// at the flush deadline.
type Bench struct {
	Count int
	Size  int
}

// Result summarises a Bench run.
type Result struct {
	Messages int
	Bytes    int64
	Elapsed  time.Duration
}

func (r Result) String() string {
	secs := r.Elapsed.Seconds()
	if secs <= 0 {
		secs = 1e-9
	}
	return fmt.Sprintf("%d messages, %d bytes in %v (%.0f msg/s, %.2f MiB/s)",
		r.Messages, r.Bytes, r.Elapsed.Truncate(time.Microsecond),
		float64(r.Messages)/secs, float64(r.Bytes)/secs/(1<<20))
}

// Handle runs the benchmark and prints a one-line summary to stdout.
func (b *Bench) Handle(ctx context.Context, sess *session.Session) error {
	res, err := b.Run(ctx, sess)
	if err != nil {
		return err
	}
	fmt.Fprintln(sess.Stdout, res)
	return nil
}

// Run performs the benchmark and returns its result.
func (b *Bench) Run(ctx context.Context, sess *session.Session) (Result, error) {
	payload := make([]byte, b.Size)
	for i := range payload {
		payload[i] = byte('a' + i%26)
	}

	start := time.Now()
	sendErr := make(chan error, 1)
	go func() {
		for i := 0; i < b.Count; i++ {
			if ctx.Err() != nil {
				sendErr <- ctx.Err()
				return
			}
			if err := sess.Client.Send(frame.CmdEcho, payload); err != nil {
				sendErr <- err
				return
			}
		}
		sendErr <- nil
	}()

	res := Result{}
	for res.Messages < b.Count {
		m, err := sess.Client.Recv()
		if err != nil {
			return res, fmt.Errorf("after %d of %d replies: %w", res.Messages, b.Count, err)
		}
		if m.Cmd() != frame.CmdEchoReply {
			continue
		}
		if len(m.Payload()) != b.Size {
			return res, fmt.Errorf("reply %d has %d bytes, want %d", res.Messages, len(m.Payload()), b.Size)
		}
		res.Messages++
		res.Bytes += int64(m.Len())
	}
	res.Elapsed = time.Since(start)
	if err := <-sendErr; err != nil {
		return res, err
	}
	sess.Logger.Verbose("bench: %s", res)
	return res, nil
}
