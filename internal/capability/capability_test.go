package capability

import (
	"bytes"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"gosock/internal/client"
	"gosock/internal/frame"
	"gosock/internal/session"
	"gosock/util"
)

// frameEchoServer answers echoes and broadcasts like a lone gosock
// server, and closes once the client half-closes.
func frameEchoServer(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		peer := client.New(conn, 0, nil)
		for {
			m, err := peer.Recv()
			if err != nil {
				return
			}
			switch m.Cmd() {
			case frame.CmdEcho:
				peer.Send(frame.CmdEchoReply, m.Payload()) //nolint:errcheck
			case frame.CmdBroadcast:
				peer.Send(frame.CmdBroadcastNotify, m.Payload()) //nolint:errcheck
			}
		}
	}()
	return ln.Addr().String()
}

func newSession(t *testing.T, addr string, input string) (*session.Session, *bytes.Buffer) {
	t.Helper()
	c, err := client.Dial(context.Background(), addr, client.Options{Timeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	out := &bytes.Buffer{}
	return session.New(c, strings.NewReader(input), out, util.NewLogger(0)), out
}

func TestConsole_EchoesLines(t *testing.T) {
	sess, out := newSession(t, frameEchoServer(t), "hello\nworld\n")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := (&Console{}).Handle(ctx, sess); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if got := out.String(); got != "hello\nworld\n" {
		t.Errorf("output = %q, want %q", got, "hello\nworld\n")
	}
}

func TestConsole_Broadcast(t *testing.T) {
	sess, out := newSession(t, frameEchoServer(t), "to everyone\n")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := (&Console{Broadcast: true}).Handle(ctx, sess); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if got := out.String(); got != "[broadcast] to everyone\n" {
		t.Errorf("output = %q", got)
	}
}

func TestConsole_Prompt(t *testing.T) {
	sess, _ := newSession(t, frameEchoServer(t), "x\n")
	prompt := &bytes.Buffer{}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := (&Console{PromptOut: prompt}).Handle(ctx, sess); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(prompt.String(), "> ") {
		t.Errorf("prompt output = %q", prompt.String())
	}
}

func TestBench_Run(t *testing.T) {
	sess, _ := newSession(t, frameEchoServer(t), "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	b := &Bench{Count: 500, Size: 32}
	res, err := b.Run(ctx, sess)
	if err != nil {
		t.Fatal(err)
	}
	if res.Messages != 500 || res.Bytes != 500*40 {
		t.Errorf("result = %+v", res)
	}
	if !strings.Contains(res.String(), "500 messages") {
		t.Errorf("summary = %q", res.String())
	}
}
