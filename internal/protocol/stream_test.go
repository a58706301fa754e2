package protocol

import (
	"bytes"
	"errors"
	"net"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPayload(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte('a' + i%26)
	}
	return p
}

// peerReceive plays the receiving side of a send-direction transfer and reports
// the bytes it got and the number of chunks it acknowledged.
func peerReceive(t *testing.T, conn net.Conn) (data []byte, chunks int, err error) {
	buf := make([]byte, FrameBufferSize)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, 0, err
	}
	total, err := strconv.Atoi(string(buf[:n]))
	if err != nil {
		return nil, 0, err
	}
	if _, err := conn.Write([]byte(AckToken)); err != nil {
		return nil, 0, err
	}
	for len(data) < total {
		n, err := conn.Read(buf)
		if err != nil {
			return data, chunks, err
		}
		data = append(data, buf[:n]...)
		chunks++
		if _, err := conn.Write([]byte(AckToken)); err != nil {
			return data, chunks, err
		}
	}
	return data, chunks, nil
}

func TestSendChunkedChunkCount(t *testing.T) {
	for _, size := range []int{0, 1, 1023, 1024, 1025, 2048, 5000} {
		t.Run(strconv.Itoa(size), func(t *testing.T) {
			c1, c2 := net.Pipe()
			defer c1.Close()
			defer c2.Close()

			payload := testPayload(size)
			type result struct {
				data   []byte
				chunks int
				err    error
			}
			done := make(chan result, 1)
			go func() {
				data, chunks, err := peerReceive(t, c2)
				done <- result{data, chunks, err}
			}()

			s := NewStream(c1, WithTimeout(time.Second))
			require.NoError(t, s.SendChunked(payload))

			res := <-done
			require.NoError(t, res.err)
			assert.Equal(t, (size+DefaultChunkSize-1)/DefaultChunkSize, res.chunks)
			assert.True(t, bytes.Equal(payload, res.data), "payload mismatch")
		})
	}
}

func TestSendChunkedBadAck(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	go func() {
		buf := make([]byte, FrameBufferSize)
		c2.Read(buf)
		c2.Write([]byte("NO"))
	}()

	s := NewStream(c1, WithTimeout(time.Second))
	err := s.SendChunked(testPayload(3000))
	require.Error(t, err)
	assert.True(t, IsProtocolError(err))
	assert.ErrorIs(t, err, ErrBadAck)

	var pe *Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, AwaitLengthAck, pe.State)
	assert.Equal(t, "NO", pe.Got)
}

func TestRecvAckLeavesNextFrame(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	go c2.Write([]byte("OKls"))

	s := NewStream(c1, WithTimeout(time.Second))
	require.NoError(t, s.RecvAck())
	next, err := s.Recv(FrameBufferSize)
	require.NoError(t, err)
	assert.Equal(t, "ls", string(next))
}

func TestRecvAckDrainsReply(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	go func() {
		c2.Write([]byte("upload failed"))
		c2.Write([]byte("hello from device"))
	}()

	s := NewStream(c1, WithTimeout(time.Second), WithExactReads())
	err := s.RecvAck()
	assert.ErrorIs(t, err, ErrBadAck)
	var pe *Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "upload failed", pe.Got)

	next, err := s.Recv(FrameBufferSize)
	require.NoError(t, err)
	assert.Equal(t, "hello from device", string(next))
}

func TestSendChunkedAckTimeout(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	go func() {
		buf := make([]byte, FrameBufferSize)
		c2.Read(buf)
		c2.Write([]byte(AckToken))
		c2.Read(buf)
		// Never acknowledge the first chunk.
	}()

	s := NewStream(c1, WithTimeout(50*time.Millisecond))
	err := s.SendChunked(testPayload(2000))
	require.Error(t, err)
	assert.False(t, IsProtocolError(err))
	assert.True(t, errors.Is(err, os.ErrDeadlineExceeded))
}

func TestSendChunkedFrom(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	payload := testPayload(5000)
	done := make(chan []byte, 1)
	go func() {
		buf := make([]byte, FrameBufferSize)
		n, _ := c2.Read(buf)
		assert.Equal(t, "5000", string(buf[:n]))
		c2.Write([]byte(AckToken))
		var got []byte
		for len(got) < 5000-2048 {
			n, err := c2.Read(buf)
			if err != nil {
				break
			}
			got = append(got, buf[:n]...)
			c2.Write([]byte(AckToken))
		}
		done <- got
	}()

	s := NewStream(c1, WithTimeout(time.Second))
	require.NoError(t, s.SendChunkedFrom(payload, 2048))
	assert.Equal(t, payload[2048:], <-done)

	assert.True(t, IsProtocolError(s.SendChunkedFrom(payload, 6000)))
}

func TestParseLength(t *testing.T) {
	for in, want := range map[string]int64{"0": 0, "5000": 5000, " 12\n": 12} {
		n, err := ParseLength([]byte(in))
		require.NoError(t, err, in)
		assert.Equal(t, want, n, in)
	}
	for _, in := range []string{"", "five", "-1", "1.5"} {
		_, err := ParseLength([]byte(in))
		assert.ErrorIs(t, err, ErrBadLength, in)
		assert.True(t, IsProtocolError(err), in)
	}
}

func TestReceiveChunksResume(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	payload := testPayload(5000)
	go func() {
		buf := make([]byte, len(AckToken))
		for off := 2048; off < len(payload); off += DefaultChunkSize {
			end := min(off+DefaultChunkSize, len(payload))
			if _, err := c2.Write(payload[off:end]); err != nil {
				return
			}
			if _, err := c2.Read(buf); err != nil {
				return
			}
		}
	}()

	var (
		sink      bytes.Buffer
		positions []int64
	)
	s := NewStream(c1, WithTimeout(time.Second))
	got, err := s.ReceiveChunks(&sink, 2048, 5000, func(received int64) {
		positions = append(positions, received)
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5000), got)
	assert.Equal(t, payload[2048:], sink.Bytes())
	assert.Equal(t, []int64{3072, 4096, 5000}, positions)
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) { return 0, errors.New("disk full") }

func TestReceiveChunksSinkFailure(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	go c2.Write(testPayload(100))

	s := NewStream(c1, WithTimeout(time.Second))
	_, err := s.ReceiveChunks(failingWriter{}, 0, 100, nil)
	require.Error(t, err)
	assert.True(t, IsProtocolError(err))
}

func TestRecvEOF(t *testing.T) {
	c1, c2 := net.Pipe()
	c2.Close()
	defer c1.Close()

	s := NewStream(c1)
	_, err := s.Recv(FrameBufferSize)
	assert.Error(t, err)
}

func TestExpect(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	s := NewStream(c1)
	go c2.Write([]byte("OKhello"))
	require.NoError(t, s.Expect(AckToken, time.Second))

	rest, err := s.Recv(FrameBufferSize)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(rest))

	go c2.Write([]byte("NO"))
	err = s.Expect(AckToken, time.Second)
	assert.ErrorIs(t, err, ErrBadAck)

	err = s.Expect(AckToken, 20*time.Millisecond)
	assert.ErrorIs(t, err, os.ErrDeadlineExceeded)
}
