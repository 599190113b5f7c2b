// Package metrics provides lightweight, lock-free counters and gauges
// for tracking runtime statistics of a gosock server.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Collector tracks runtime metrics for a gosock process.  The event
// loop writes, the metrics endpoint reads.
type Collector struct {
	connectionsActive   atomic.Int64
	connectionsTotal    atomic.Int64
	connectionsRejected atomic.Int64
	connectionsDead     atomic.Int64
	bytesIn             atomic.Int64
	bytesOut            atomic.Int64
	messagesIn          atomic.Int64
	messagesOut         atomic.Int64
	writes              atomic.Int64
	timedFlushes        atomic.Int64
	acceptPauses        atomic.Int64
	errorsTotal         atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Connection metrics ───────────────────────────────────────────────

// ConnectionOpened increments both the active and total counters.
func (c *Collector) ConnectionOpened() {
	if c == nil {
		return
	}
	c.connectionsActive.Add(1)
	c.connectionsTotal.Add(1)
}

// ConnectionClosed decrements the active connection counter.
func (c *Collector) ConnectionClosed() {
	if c == nil {
		return
	}
	c.connectionsActive.Add(-1)
}

// ConnectionRejected counts a client turned away at accept time
// (pool exhausted or accept rate exceeded).
func (c *Collector) ConnectionRejected() {
	if c == nil {
		return
	}
	c.connectionsRejected.Add(1)
}

// ConnectionDead counts a client dropped for missing its heartbeat.
func (c *Collector) ConnectionDead() {
	if c == nil {
		return
	}
	c.connectionsDead.Add(1)
}

// ActiveConnections returns the current number of open connections.
func (c *Collector) ActiveConnections() int64 {
	if c == nil {
		return 0
	}
	return c.connectionsActive.Load()
}

// TotalConnections returns the lifetime connection count.
func (c *Collector) TotalConnections() int64 {
	if c == nil {
		return 0
	}
	return c.connectionsTotal.Load()
}

// RejectedConnections returns the lifetime rejection count.
func (c *Collector) RejectedConnections() int64 {
	if c == nil {
		return 0
	}
	return c.connectionsRejected.Load()
}

// DeadConnections returns the lifetime heartbeat-timeout count.
func (c *Collector) DeadConnections() int64 {
	if c == nil {
		return 0
	}
	return c.connectionsDead.Load()
}

// ── I/O metrics ──────────────────────────────────────────────────────

// BytesReceived records n bytes read from the network.
func (c *Collector) BytesReceived(n int64) {
	if c == nil {
		return
	}
	c.bytesIn.Add(n)
}

// BytesSent records one write(2) of n bytes.
func (c *Collector) BytesSent(n int64) {
	if c == nil {
		return
	}
	c.bytesOut.Add(n)
	c.writes.Add(1)
}

// MessageReceived counts one decoded inbound message.
func (c *Collector) MessageReceived() {
	if c == nil {
		return
	}
	c.messagesIn.Add(1)
}

// MessageSent counts one message queued to a client.
func (c *Collector) MessageSent() {
	if c == nil {
		return
	}
	c.messagesOut.Add(1)
}

// TimedFlush counts a flush triggered by the send-age deadline rather
// than a full buffer.
func (c *Collector) TimedFlush() {
	if c == nil {
		return
	}
	c.timedFlushes.Add(1)
}

// AcceptPaused counts times the listener was parked after repeated
// accept failures.
func (c *Collector) AcceptPaused() {
	if c == nil {
		return
	}
	c.acceptPauses.Add(1)
}

// TotalBytesIn returns total bytes received.
func (c *Collector) TotalBytesIn() int64 {
	if c == nil {
		return 0
	}
	return c.bytesIn.Load()
}

// TotalBytesOut returns total bytes sent.
func (c *Collector) TotalBytesOut() int64 {
	if c == nil {
		return 0
	}
	return c.bytesOut.Load()
}

// Writes returns the number of writes that reached a socket.
func (c *Collector) Writes() int64 {
	if c == nil {
		return 0
	}
	return c.writes.Load()
}

// MessagesIn returns the number of decoded inbound messages.
func (c *Collector) MessagesIn() int64 {
	if c == nil {
		return 0
	}
	return c.messagesIn.Load()
}

// MessagesOut returns the number of messages queued to clients.
func (c *Collector) MessagesOut() int64 {
	if c == nil {
		return 0
	}
	return c.messagesOut.Load()
}

// TimedFlushes returns the number of deadline-driven flushes.
func (c *Collector) TimedFlushes() int64 {
	if c == nil {
		return 0
	}
	return c.timedFlushes.Load()
}

// AcceptPauses returns the number of times accepting was paused.
func (c *Collector) AcceptPauses() int64 {
	if c == nil {
		return 0
	}
	return c.acceptPauses.Load()
}

// ── Error metrics ────────────────────────────────────────────────────

// RecordError increments the error counter and stores the message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.errorsTotal.Add(1)
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ErrorCount returns the total number of errors recorded.
func (c *Collector) ErrorCount() int64 {
	if c == nil {
		return 0
	}
	return c.errorsTotal.Load()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime              string        `json:"uptime"`
	ConnectionsActive   int64         `json:"connections_active"`
	ConnectionsTotal    int64         `json:"connections_total"`
	ConnectionsRejected int64         `json:"connections_rejected"`
	ConnectionsDead     int64         `json:"connections_dead"`
	BytesIn             int64         `json:"bytes_in"`
	BytesOut            int64         `json:"bytes_out"`
	MessagesIn          int64         `json:"messages_in"`
	MessagesOut         int64         `json:"messages_out"`
	Writes              int64         `json:"writes"`
	TimedFlushes        int64         `json:"timed_flushes"`
	AcceptPauses        int64         `json:"accept_pauses"`
	ErrorsTotal         int64         `json:"errors_total"`
	LastError           string        `json:"last_error,omitempty"`
	LastErrorMessage    string        `json:"last_error_message,omitempty"`
	Process             *ProcessStats `json:"process,omitempty"`
}

// Snapshot returns a copy of all current counters.  It does not sample
// the process; see SnapshotWithProcess.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:              time.Since(c.startTime).Truncate(time.Second).String(),
		ConnectionsActive:   c.connectionsActive.Load(),
		ConnectionsTotal:    c.connectionsTotal.Load(),
		ConnectionsRejected: c.connectionsRejected.Load(),
		ConnectionsDead:     c.connectionsDead.Load(),
		BytesIn:             c.bytesIn.Load(),
		BytesOut:            c.bytesOut.Load(),
		MessagesIn:          c.messagesIn.Load(),
		MessagesOut:         c.messagesOut.Load(),
		Writes:              c.writes.Load(),
		TimedFlushes:        c.timedFlushes.Load(),
		AcceptPauses:        c.acceptPauses.Load(),
		ErrorsTotal:         c.errorsTotal.Load(),
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// SnapshotWithProcess is Snapshot plus a sample of the process's own
// resource usage.  A failed sample leaves Process nil.
func (c *Collector) SnapshotWithProcess() Snapshot {
	s := c.Snapshot()
	if ps, err := SampleProcess(); err == nil {
		s.Process = ps
	}
	return s
}

// JSON returns the snapshot, process sample included, as an indented
// JSON string.
func (c *Collector) JSON() string {
	s := c.SnapshotWithProcess()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}
