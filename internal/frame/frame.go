// Package frame defines the gosock wire format and decodes messages
// out of a connection's receive buffer.
//
// Every message is a fixed header followed by a payload:
//
//	0       4       8
//	+-------+-------+-----------------+
//	| len   | cmd   | payload ...     |
//	+-------+-------+-----------------+
//
// len (uint32, little endian) covers the whole record, header
// included.  cmd (uint32, little endian) selects the handler.
package frame

import (
	"encoding/binary"
	"fmt"

	"gosock/internal/errors"
)

// HeaderSize is the size of the fixed message header.
const HeaderSize = 8

// DefaultMaxMessageSize bounds a single record when no limit is given.
const DefaultMaxMessageSize = 1 << 20

// Cmd identifies a message type.
type Cmd uint32

// Commands understood by the server and client.
const (
	CmdError Cmd = iota
	CmdHeartbeat
	CmdHeartbeatReply
	CmdEcho
	CmdEchoReply
	CmdBroadcast
	CmdBroadcastNotify
)

var cmdNames = map[Cmd]string{
	CmdError:           "error",
	CmdHeartbeat:       "heartbeat",
	CmdHeartbeatReply:  "heartbeat-reply",
	CmdEcho:            "echo",
	CmdEchoReply:       "echo-reply",
	CmdBroadcast:       "broadcast",
	CmdBroadcastNotify: "broadcast-notify",
}

func (c Cmd) String() string {
	if s, ok := cmdNames[c]; ok {
		return s
	}
	return fmt.Sprintf("cmd(%d)", uint32(c))
}

var (
	ErrIncomplete = errors.New("incomplete message")
	ErrMalformed  = errors.New("malformed message")
)

// Message is a view over one encoded record.  It aliases the buffer it
// was decoded from and is only valid until that buffer is reused.
type Message []byte

// Len returns the length field.
func (m Message) Len() int { return int(binary.LittleEndian.Uint32(m[0:4])) }

// Cmd returns the command field.
func (m Message) Cmd() Cmd { return Cmd(binary.LittleEndian.Uint32(m[4:8])) }

// Payload returns the bytes after the header.
func (m Message) Payload() []byte { return m[HeaderSize:m.Len()] }

// Clone copies the message out of the buffer it aliases.
func (m Message) Clone() Message { return append(Message(nil), m...) }

// AppendMessage appends an encoded record to dst.
func AppendMessage(dst []byte, cmd Cmd, payload []byte) []byte {
	var hdr [HeaderSize]byte
	PutHeader(hdr[:], cmd, len(payload))
	dst = append(dst, hdr[:]...)
	return append(dst, payload...)
}

// Encode returns a freshly allocated record.
func Encode(cmd Cmd, payload []byte) Message {
	return AppendMessage(make([]byte, 0, HeaderSize+len(payload)), cmd, payload)
}

// Decoder splits a byte stream into messages.
type Decoder struct {
	// MaxSize rejects records larger than this.  Zero means
	// DefaultMaxMessageSize.
	MaxSize int
}

// Next returns the message at the front of buf and the number of bytes
// it occupies.  It returns ErrIncomplete when buf holds only part of a
// record, and an error wrapping ErrMalformed when the length field is
// impossible.
func (d Decoder) Next(buf []byte) (Message, int, error) {
	if len(buf) < HeaderSize {
		return nil, 0, ErrIncomplete
	}
	n := int(binary.LittleEndian.Uint32(buf[0:4]))
	limit := d.MaxSize
	if limit <= 0 {
		limit = DefaultMaxMessageSize
	}
	if n < HeaderSize || n > limit {
		return nil, 0, fmt.Errorf("%w: length %d outside [%d, %d]", ErrMalformed, n, HeaderSize, limit)
	}
	if len(buf) < n {
		return nil, 0, ErrIncomplete
	}
	return Message(buf[:n]), n, nil
}

// PutHeader writes the header for a payload of payloadLen bytes into
// dst, which must hold at least HeaderSize bytes.
func PutHeader(dst []byte, cmd Cmd, payloadLen int) {
	binary.LittleEndian.PutUint32(dst[0:4], uint32(HeaderSize+payloadLen))
	binary.LittleEndian.PutUint32(dst[4:8], uint32(cmd))
}
