package network

import (
	"bytes"
	"context"
	"devctl/internal/domain"
	"devctl/internal/protocol"
	"devctl/pkg/config"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/log"
)

// replyBufferSize bounds a single textual reply. Replies such as help and ls can
// be longer than a command frame.
const replyBufferSize = 64 * 1024

var errNotConnected = errors.New("not connected to server")

// ReplyError carries a reply that was not the one the protocol step expected,
// such as "file not found" in place of a length prefix.
type ReplyError struct {
	Reply string
}

func (e *ReplyError) Error() string {
	return "server replied: " + e.Reply
}

type TCPClient struct {
	config *config.ClientConfig
	conn   net.Conn
	stream *protocol.Stream
}

func NewTCPClient(cfg *config.ClientConfig) *TCPClient {
	return &TCPClient{config: cfg}
}

// Connect dials addr and completes the handshake.
func (c *TCPClient) Connect(ctx context.Context, addr string) error {
	dialer := net.Dialer{Timeout: c.config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	if err := setKeepAlive(conn, c.config.KeepAlive, c.config.KeepAliveIdle, c.config.KeepAliveCount, c.config.KeepAliveIntvl); err != nil {
		log.Warn("Failed to set keepalive", "err", err)
	}

	stream := protocol.NewStream(conn,
		protocol.WithTimeout(c.config.Timeout),
		protocol.WithChunkSize(c.config.ChunkSize),
		protocol.WithExactReads(),
	)
	if err := stream.Expect(protocol.Greeting, c.config.Timeout); err != nil {
		conn.Close()
		return fmt.Errorf("%w: %v", domain.ErrHandshake, err)
	}
	if err := stream.SendAck(); err != nil {
		conn.Close()
		return fmt.Errorf("%w: %v", domain.ErrHandshake, err)
	}

	c.conn, c.stream = conn, stream
	log.Debug("Connected to server", "addr", addr)
	return nil
}

func (c *TCPClient) Disconnect() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn, c.stream = nil, nil
	return err
}

// SendCommand sends one command line and returns the device's reply.
func (c *TCPClient) SendCommand(line string) (string, error) {
	if c.stream == nil {
		return "", errNotConnected
	}
	if err := c.stream.Send([]byte(line)); err != nil {
		return "", fmt.Errorf("failed to send command: %w", err)
	}
	return c.readReply()
}

func (c *TCPClient) readReply() (string, error) {
	b, err := c.stream.Recv(replyBufferSize)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	return string(b), nil
}

// Cat fetches the content of a device file.
func (c *TCPClient) Cat(name string) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := c.receive("cat "+name, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DebugLog fetches the device's diagnostic log.
func (c *TCPClient) DebugLog() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := c.receive("debug log", &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Download copies a device file into w and waits for the completion sentinel.
func (c *TCPClient) Download(remote string, w io.Writer) (int64, error) {
	n, err := c.receive("get "+remote, w)
	if err != nil {
		return n, err
	}
	reply, err := c.readReply()
	if err != nil {
		return n, err
	}
	if reply != protocol.CompleteToken {
		return n, &ReplyError{Reply: reply}
	}
	return n, nil
}

func (c *TCPClient) DownloadFile(remote, localPath string) (int64, error) {
	f, err := os.Create(localPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()
	return c.Download(remote, f)
}

func (c *TCPClient) receive(cmd string, w io.Writer) (int64, error) {
	reply, err := c.SendCommand(cmd)
	if err != nil {
		return 0, err
	}
	total, err := protocol.ParseLength([]byte(reply))
	if err != nil {
		return 0, &ReplyError{Reply: reply}
	}
	if err := c.stream.SendAck(); err != nil {
		return 0, err
	}
	return c.stream.ReceiveChunks(w, 0, total, nil)
}

// Upload sends payload as the device file remote. When the device holds a partial
// upload of remote it only sends the missing tail. It returns the device's final
// reply.
func (c *TCPClient) Upload(payload []byte, remote string) (string, error) {
	reply, err := c.SendCommand("upload " + remote)
	if err != nil {
		return "", err
	}

	var offset int64
	switch {
	case reply == "READY":
	case strings.HasPrefix(reply, "RESUME:"):
		pos, total, ok := ParsePosition(reply, "RESUME:")
		if !ok {
			return "", &ReplyError{Reply: reply}
		}
		if total != int64(len(payload)) {
			log.Warn("Partial upload on device has a different size", "name", remote, "device", total, "local", len(payload))
		}
		offset = min(pos, int64(len(payload)))
		log.Info("Resuming upload", "name", remote, "from", offset)
	default:
		return "", &ReplyError{Reply: reply}
	}

	if err := c.stream.SendChunkedFrom(payload, offset); err != nil {
		// The device answers a rejected length with its failure reply.
		var pe *protocol.Error
		if errors.As(err, &pe) && errors.Is(err, protocol.ErrBadAck) && pe.Got != "" {
			return "", &ReplyError{Reply: pe.Got}
		}
		return "", fmt.Errorf("upload failed: %w", err)
	}
	return c.readReply()
}

func (c *TCPClient) UploadFile(localPath, remote string) (string, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	return c.Upload(data, remote)
}

// Resume asks whether the device holds a partial upload of name.
func (c *TCPClient) Resume(name string) (*domain.TransferState, error) {
	reply, err := c.SendCommand("resume " + name)
	if err != nil {
		return nil, err
	}
	if reply == "NOTFOUND" {
		return nil, nil
	}
	pos, total, ok := ParsePosition(reply, "FOUND:")
	if !ok {
		return nil, &ReplyError{Reply: reply}
	}
	return &domain.TransferState{Filename: name, Position: pos, TotalSize: total}, nil
}

// ParsePosition decodes "<prefix><position>:<total>".
func ParsePosition(reply, prefix string) (pos, total int64, ok bool) {
	rest, found := strings.CutPrefix(reply, prefix)
	if !found {
		return 0, 0, false
	}
	p, t, found := strings.Cut(rest, ":")
	if !found {
		return 0, 0, false
	}
	pos, err := strconv.ParseInt(p, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	total, err = strconv.ParseInt(t, 10, 64)
	if err != nil || pos < 0 || pos > total {
		return 0, 0, false
	}
	return pos, total, true
}
