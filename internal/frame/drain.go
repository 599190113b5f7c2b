package frame

// RecvBuffer is the receive side of a connection: a fixed buffer and a
// cursor marking the end of the received bytes.  *conn.Conn satisfies
// it.
type RecvBuffer interface {
	RecvBuf() []byte
	RecvPos() int
	SetRecvPos(pos int)
}

// Drain hands every complete message in b to fn, then moves the
// unconsumed tail to the front of the buffer and rewinds the cursor.
// A record that could never fit in the buffer is reported as
// malformed.
//
// Messages passed to fn alias the receive buffer and must not be kept
// after fn returns.  Draining stops at the first error from fn; the
// messages consumed up to that point are still removed.
func (d Decoder) Drain(b RecvBuffer, fn func(Message) error) (int, error) {
	buf := b.RecvBuf()
	end := b.RecvPos()
	if d.MaxSize <= 0 || d.MaxSize > len(buf) {
		d.MaxSize = len(buf)
	}

	off, count := 0, 0
	var err error
	for {
		m, n, nerr := d.Next(buf[off:end])
		if nerr == ErrIncomplete {
			break
		}
		if nerr != nil {
			err = nerr
			break
		}
		off += n
		count++
		if err = fn(m); err != nil {
			break
		}
	}

	if off > 0 {
		copy(buf, buf[off:end])
		b.SetRecvPos(end - off)
	}
	return count, err
}
