package conn

import (
	"bytes"
	"io"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gosock/internal/errors"
)

// fakeSocket records every physical write and can be told to fail.
type fakeSocket struct {
	fd       int
	writes   [][]byte
	failAt   int // 1-based write number that fails; 0 never
	closes   int
	incoming [][]byte
}

func (f *fakeSocket) Fd() int { return f.fd }

func (f *fakeSocket) Read(p []byte) (int, error) {
	if len(f.incoming) == 0 {
		return 0, io.EOF
	}
	n := copy(p, f.incoming[0])
	if n == len(f.incoming[0]) {
		f.incoming = f.incoming[1:]
	} else {
		f.incoming[0] = f.incoming[0][n:]
	}
	return n, nil
}

func (f *fakeSocket) Write(p []byte) (int, error) {
	if f.failAt > 0 && len(f.writes)+1 == f.failAt {
		f.writes = append(f.writes, nil)
		return 0, syscall.EPIPE
	}
	f.writes = append(f.writes, append([]byte(nil), p...))
	return len(p), nil
}

func (f *fakeSocket) Close() error {
	f.closes++
	return nil
}

func (f *fakeSocket) wire() []byte {
	return bytes.Join(f.writes, nil)
}

func newTestConn(sendSize int) (*Conn, *fakeSocket) {
	sock := &fakeSocket{fd: 9}
	return New(sock, Options{RecvBufSize: 64, SendBufSize: sendSize}), sock
}

func seq(n int, start byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = start + byte(i)
	}
	return b
}

func TestSend_BelowCapacityOnlyBuffers(t *testing.T) {
	c, sock := newTestConn(32)

	total := 0
	for _, n := range []int{5, 10, 1, 15} {
		require.NoError(t, c.Send(seq(n, 0)))
		total += n
		assert.Empty(t, sock.writes, "no physical write below capacity")
		assert.Equal(t, total, c.Buffered())
	}
	assert.Equal(t, 31, c.Buffered())
}

func TestSend_ExactFillFlushes(t *testing.T) {
	c, sock := newTestConn(16)
	require.NoError(t, c.Send(seq(10, 0)))
	require.NoError(t, c.Send(seq(6, 10)))

	require.Len(t, sock.writes, 1)
	assert.Equal(t, seq(16, 0), sock.writes[0])
	assert.Equal(t, 0, c.Buffered())
}

func TestSend_CrossingBoundarySplitsMessage(t *testing.T) {
	c, sock := newTestConn(16)
	require.NoError(t, c.Send(seq(12, 0)))
	require.NoError(t, c.Send(seq(8, 12)))

	require.Len(t, sock.writes, 1)
	assert.Equal(t, seq(16, 0), sock.writes[0])
	assert.Equal(t, 4, c.Buffered())

	require.NoError(t, c.Flush())
	assert.Equal(t, seq(20, 0), sock.wire(), "byte order must survive the split")
}

func TestSend_LargeMessageWrittenInFullBuffers(t *testing.T) {
	c, sock := newTestConn(16)
	msg := seq(16*3+5, 0)
	require.NoError(t, c.Send(msg))

	require.Len(t, sock.writes, 3)
	for _, w := range sock.writes {
		assert.Len(t, w, 16)
	}
	assert.Equal(t, 5, c.Buffered())

	require.NoError(t, c.Flush())
	assert.Equal(t, msg, sock.wire())
}

func TestSend_MultipleOfCapacityLeavesNothingBuffered(t *testing.T) {
	c, sock := newTestConn(16)
	require.NoError(t, c.Send(seq(32, 0)))
	assert.Len(t, sock.writes, 2)
	assert.Equal(t, 0, c.Buffered())
}

func TestSend_BoundaryFlushResetsSendAge(t *testing.T) {
	c, _ := newTestConn(8)
	c.FlushDue(50 * time.Millisecond)
	require.Equal(t, 50*time.Millisecond, c.SendAge())

	require.NoError(t, c.Send(seq(4, 0)))
	assert.Equal(t, 50*time.Millisecond, c.SendAge(), "buffering alone keeps the age")

	require.NoError(t, c.Send(seq(4, 4)))
	assert.Zero(t, c.SendAge())
}

func TestSend_WriteFailureAborts(t *testing.T) {
	c, sock := newTestConn(8)
	sock.failAt = 2

	err := c.Send(seq(30, 0))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrWriteFailure)
	assert.ErrorIs(t, err, syscall.EPIPE)

	var we *errors.WriteError
	require.ErrorAs(t, err, &we)
	assert.Equal(t, 9, we.Fd)
	assert.Equal(t, "send", we.Op)

	assert.Len(t, sock.writes, 2, "no write after the failed one")
	assert.Equal(t, 0, c.Buffered(), "remaining bytes are dropped")
}

func TestSend_Closed(t *testing.T) {
	c, _ := newTestConn(8)
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Send([]byte("x")), errors.ErrConnClosed)
}

func TestFlush(t *testing.T) {
	c, sock := newTestConn(32)

	require.NoError(t, c.Flush())
	assert.Empty(t, sock.writes, "empty flush is a no-op")

	require.NoError(t, c.Send([]byte("hello")))
	require.NoError(t, c.Flush())
	require.Len(t, sock.writes, 1)
	assert.Equal(t, []byte("hello"), sock.writes[0])
	assert.Equal(t, 0, c.Buffered())

	require.NoError(t, c.Flush())
	assert.Len(t, sock.writes, 1)
}

func TestFlush_FailureResetsCursor(t *testing.T) {
	c, sock := newTestConn(32)
	sock.failAt = 1
	require.NoError(t, c.Send([]byte("abc")))

	err := c.Flush()
	require.ErrorIs(t, err, errors.ErrWriteFailure)
	var we *errors.WriteError
	require.ErrorAs(t, err, &we)
	assert.Equal(t, "flush", we.Op)
	assert.Equal(t, 3, we.N)
	assert.Equal(t, 0, c.Buffered())
}

func TestClose_Idempotent(t *testing.T) {
	c, sock := newTestConn(8)
	assert.Equal(t, 9, c.Handle())

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	assert.Equal(t, 1, sock.closes)
	assert.Equal(t, InvalidSocket, c.Handle())
	assert.True(t, c.Closed())
}

func TestIsAlive(t *testing.T) {
	tests := []struct {
		name      string
		deadTime  time.Duration
		steps     int
		wantAlive []bool // result after each 100ms step
	}{
		{
			name:      "strict threshold",
			deadTime:  time.Second,
			steps:     11,
			wantAlive: []bool{true, true, true, true, true, true, true, true, true, false, false},
		},
		{
			name:      "disabled",
			deadTime:  -1,
			steps:     50,
			wantAlive: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sock := &fakeSocket{fd: 1}
			c := New(sock, Options{RecvBufSize: 8, SendBufSize: 8, Limits: Limits{DeadTime: tt.deadTime}})
			for i := 0; i < tt.steps; i++ {
				alive := c.IsAlive(100 * time.Millisecond)
				want := true
				if tt.wantAlive != nil {
					want = tt.wantAlive[i]
				}
				assert.Equal(t, want, alive, "step %d (age %v)", i+1, c.HeartbeatAge())
			}
		})
	}
}

func TestIsAlive_ResetHeartbeat(t *testing.T) {
	sock := &fakeSocket{fd: 1}
	c := New(sock, Options{RecvBufSize: 8, SendBufSize: 8, Limits: Limits{DeadTime: time.Second}})

	assert.True(t, c.IsAlive(900*time.Millisecond))
	c.ResetHeartbeat()
	assert.True(t, c.IsAlive(900*time.Millisecond), "reset must restart the count")
	assert.False(t, c.IsAlive(100*time.Millisecond))
}

func TestFlushDue(t *testing.T) {
	tests := []struct {
		name      string
		flushTime time.Duration
		elapsed   []time.Duration
		want      []bool
	}{
		{
			name:      "due once strictly above threshold",
			flushTime: 200 * time.Millisecond,
			elapsed:   []time.Duration{100 * time.Millisecond, 100 * time.Millisecond, time.Millisecond},
			want:      []bool{false, false, true},
		},
		{
			name:      "zero disables",
			flushTime: 0,
			elapsed:   []time.Duration{time.Hour},
			want:      []bool{false},
		},
		{
			name:      "negative disables",
			flushTime: -time.Second,
			elapsed:   []time.Duration{time.Hour},
			want:      []bool{false},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sock := &fakeSocket{fd: 1}
			c := New(sock, Options{RecvBufSize: 8, SendBufSize: 8, Limits: Limits{FlushTime: tt.flushTime}})
			for i, e := range tt.elapsed {
				assert.Equal(t, tt.want[i], c.FlushDue(e), "step %d", i)
			}
			c.ResetSendAge()
			assert.Zero(t, c.SendAge())
		})
	}
}

func TestReceive(t *testing.T) {
	sock := &fakeSocket{fd: 3, incoming: [][]byte{[]byte("abcd"), []byte("efgh")}}
	c := New(sock, Options{RecvBufSize: 6, SendBufSize: 8})

	n, err := c.Receive()
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 4, c.RecvPos())

	n, err = c.Receive()
	require.NoError(t, err)
	assert.Equal(t, 2, n, "read is capped by free space")
	assert.Equal(t, []byte("abcdef"), c.RecvBuf()[:c.RecvPos()])

	_, err = c.Receive()
	assert.ErrorIs(t, err, errors.ErrRecvBufferFull)

	c.SetRecvPos(0)
	n, err = c.Receive()
	require.NoError(t, err)
	assert.Equal(t, []byte("gh"), c.RecvBuf()[:n])

	_, err = c.Receive()
	assert.ErrorIs(t, err, io.EOF)
}

func TestSetRecvPos_Bounds(t *testing.T) {
	c, _ := newTestConn(8)
	assert.NotPanics(t, func() { c.SetRecvPos(64) })
	assert.Panics(t, func() { c.SetRecvPos(65) })
	assert.Panics(t, func() { c.SetRecvPos(-1) })
}

func TestReset_ReusesBuffers(t *testing.T) {
	c, _ := newTestConn(16)
	require.NoError(t, c.Send([]byte("stale")))
	c.SetRecvPos(10)
	c.IsAlive(time.Second)
	sendBuf := c.sendBuf

	next := &fakeSocket{fd: 11}
	c.Reset(next, Options{RecvBufSize: 64, SendBufSize: 16})

	assert.Equal(t, 11, c.Handle())
	assert.Equal(t, 0, c.Buffered())
	assert.Equal(t, 0, c.RecvPos())
	assert.Zero(t, c.HeartbeatAge())
	assert.Same(t, &sendBuf[0], &c.sendBuf[0], "same-size buffer must be reused")
	assert.Equal(t, make([]byte, 16), c.sendBuf, "reused buffer is zeroed")
}
