// Package protocol implements the lock-step framing spoken on an established
// connection: single-send replies and the length-prefixed, per-chunk acknowledged
// bulk transfer used in both directions.
//
// There is no framing beyond the ASCII length prefix and no escaping. Every chunk
// costs one round trip, which caps throughput at one chunk per RTT.
package protocol

import (
	"io"
	"net"
	"strconv"
	"strings"
	"time"
)

const (
	Greeting      = "y"
	AckToken      = "OK"
	CompleteToken = "COMPLETE"

	// FrameBufferSize bounds a single command or length frame.
	FrameBufferSize = 1024

	drainWindow = 50 * time.Millisecond
)

// Stream wraps a connection with the transfer protocol. It is not safe for
// concurrent use; the protocol never has more than one outstanding request.
type Stream struct {
	conn net.Conn
	cfg  streamConfig
}

func NewStream(conn net.Conn, opts ...Option) *Stream {
	cfg := defaultStreamConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &Stream{conn: conn, cfg: cfg}
}

func (s *Stream) Send(p []byte) error {
	_, err := s.conn.Write(p)
	return err
}

func (s *Stream) SendAck() error {
	return s.Send([]byte(AckToken))
}

// Recv performs one read of at most max bytes under the stream timeout.
func (s *Stream) Recv(max int) ([]byte, error) {
	return s.RecvWithin(max, s.cfg.timeout)
}

// RecvWithin performs one read of at most max bytes with deadline d. A read that
// returns no data reports io.EOF.
func (s *Stream) RecvWithin(max int, d time.Duration) ([]byte, error) {
	if err := s.setDeadline(d); err != nil {
		return nil, err
	}
	buf := make([]byte, max)
	n, err := s.conn.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	if err == nil {
		err = io.EOF
	}
	return nil, err
}

func (s *Stream) recvExact(n int) ([]byte, error) {
	if err := s.setDeadline(s.cfg.timeout); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(s.conn, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (s *Stream) setDeadline(d time.Duration) error {
	if d <= 0 {
		return s.conn.SetReadDeadline(time.Time{})
	}
	return s.conn.SetReadDeadline(time.Now().Add(d))
}

func (s *Stream) RecvAck() error {
	return s.recvAck(AwaitLengthAck)
}

// recvAck reads exactly len(AckToken) bytes, so a command the peer sends right
// after its last ack is left for the next frame read. On a mismatch the rest of
// the peer's reply is drained into the error.
func (s *Stream) recvAck(state State) error {
	got, err := s.recvExact(len(AckToken))
	if err != nil {
		return err
	}
	if string(got) != AckToken {
		return &Error{State: state, Err: ErrBadAck, Got: s.drain(got)}
	}
	return nil
}

// drain appends whatever the peer already sent after prefix, waiting at most
// drainWindow for it.
func (s *Stream) drain(prefix []byte) string {
	if err := s.setDeadline(drainWindow); err != nil {
		return string(prefix)
	}
	buf := make([]byte, FrameBufferSize)
	n, _ := s.conn.Read(buf)
	return string(prefix) + string(buf[:n])
}

// Expect reads exactly len(token) bytes within d and compares them with token.
// Anything the peer sent after the token stays unread.
func (s *Stream) Expect(token string, d time.Duration) error {
	if err := s.setDeadline(d); err != nil {
		return err
	}
	buf := make([]byte, len(token))
	if _, err := io.ReadFull(s.conn, buf); err != nil {
		return err
	}
	if string(buf) != token {
		return &Error{State: AwaitLengthAck, Err: ErrBadAck, Got: string(buf)}
	}
	return nil
}

// SendChunked transmits payload as a length prefix followed by acknowledged chunks.
// It does not send the COMPLETE sentinel.
func (s *Stream) SendChunked(payload []byte) error {
	return s.SendChunkedFrom(payload, 0)
}

// SendChunkedFrom announces the full length of payload but only transmits the bytes
// from offset on. Resumed uploads use it to skip what the receiver already holds.
func (s *Stream) SendChunkedFrom(payload []byte, offset int64) error {
	if offset < 0 || offset > int64(len(payload)) {
		return &Error{State: AwaitLength, Err: ErrBadLength, Got: strconv.FormatInt(offset, 10)}
	}
	snd := sender{s: s, payload: payload, off: int(offset)}
	return snd.run()
}

// ParseLength decodes a decimal length prefix.
func ParseLength(b []byte) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
	if err != nil || n < 0 {
		return 0, &Error{State: AwaitLength, Err: ErrBadLength, Got: string(b)}
	}
	return n, nil
}

// ReceiveChunks reads chunks into w until received reaches total, acknowledging each
// one. onChunk, if set, runs after a chunk has been written and before it is
// acknowledged. Failures of w are reported as *Error.
func (s *Stream) ReceiveChunks(w io.Writer, received, total int64, onChunk func(received int64)) (int64, error) {
	for received < total {
		want := int(min(int64(s.cfg.chunkSize), total-received))
		var (
			chunk []byte
			err   error
		)
		if s.cfg.exact {
			chunk, err = s.recvExact(want)
		} else {
			chunk, err = s.Recv(want)
		}
		if err != nil {
			return received, err
		}
		if _, err := w.Write(chunk); err != nil {
			return received, &Error{State: RecvChunk, Err: err}
		}
		received += int64(len(chunk))
		if onChunk != nil {
			onChunk(received)
		}
		if err := s.SendAck(); err != nil {
			return received, err
		}
	}
	return received, nil
}
