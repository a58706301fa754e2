package network

import (
	"context"
	"devctl/internal/domain"
	"devctl/internal/protocol"
	"devctl/pkg/config"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/mclock"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"golang.org/x/net/netutil"
)

var (
	_ domain.Server            = (*TCPServer)(nil)
	_ domain.ConnectionManager = (*TCPConnectionManager)(nil)
)

// TCPServer accepts one connection at a time and serves it to completion before
// accepting the next. Between accepts it runs the periodic system monitor.
type TCPServer struct {
	config  *config.ServerConfig
	connMgr domain.ConnectionManager
	clock   mclock.Clock
	monitor func()
	log     log.Logger

	mu       sync.Mutex
	listener net.Listener
	tcpLn    *net.TCPListener
}

func NewTCPServer(cfg *config.ServerConfig, connMgr domain.ConnectionManager) *TCPServer {
	return &TCPServer{
		config:  cfg,
		connMgr: connMgr,
		clock:   mclock.System{},
		log:     log.New("component", "server"),
	}
}

// SetMonitor installs fn to run every MonitorInterval at the top of the accept loop.
func (s *TCPServer) SetMonitor(fn func()) {
	s.monitor = fn
}

func (s *TCPServer) SetClock(c mclock.Clock) {
	s.clock = c
}

// Listen binds addr. A listener bound to port 0 reports its port through Addr.
func (s *TCPServer) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	if tcpLn, ok := ln.(*net.TCPListener); ok {
		s.tcpLn = tcpLn
		s.listener = &keepAliveListener{TCPListener: tcpLn, tune: s.connMgr.SetKeepAlive}
	}
	s.listener = netutil.LimitListener(s.listener, 1)
	s.mu.Unlock()

	s.log.Info("Server listening", "addr", ln.Addr())
	return nil
}

func (s *TCPServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *TCPServer) Start(ctx context.Context, addr string) error {
	if err := s.Listen(addr); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve runs the accept loop until ctx is done or a client requests a reboot, in
// which case domain.ErrReboot is returned.
func (s *TCPServer) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln, tcpLn := s.listener, s.tcpLn
	s.mu.Unlock()
	if ln == nil {
		return errors.New("server is not listening")
	}
	defer s.Stop()

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	lastMonitor := s.clock.Now()
	for {
		if ctx.Err() != nil {
			return nil
		}
		if s.monitor != nil && s.config.MonitorInterval > 0 {
			if now := s.clock.Now(); time.Duration(now-lastMonitor) >= s.config.MonitorInterval {
				s.monitor()
				lastMonitor = now
			}
		}

		s.setAcceptDeadline(tcpLn)
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Warn("Accept failed", "err", err)
			s.backoff(ctx)
			continue
		}

		err = s.connMgr.HandleConnection(ctx, conn)
		switch {
		case errors.Is(err, domain.ErrReboot):
			s.log.Warn("Reboot requested by client")
			return domain.ErrReboot
		case err != nil && ctx.Err() == nil:
			s.log.Warn("Session ended with error", "err", err)
			s.backoff(ctx)
		}
	}
}

// setAcceptDeadline wakes the accept loop once per monitor interval.
func (s *TCPServer) setAcceptDeadline(ln *net.TCPListener) {
	if ln == nil {
		return
	}
	if s.monitor == nil || s.config.MonitorInterval <= 0 {
		ln.SetDeadline(time.Time{})
		return
	}
	ln.SetDeadline(time.Now().Add(s.config.MonitorInterval))
}

func (s *TCPServer) backoff(ctx context.Context) {
	if s.config.AcceptBackoff <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-s.clock.After(s.config.AcceptBackoff):
	}
}

func (s *TCPServer) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	err := s.listener.Close()
	s.listener = nil
	s.tcpLn = nil
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// keepAliveListener applies socket options to accepted connections before the
// one-slot limiter wraps them.
type keepAliveListener struct {
	*net.TCPListener
	tune func(net.Conn) error
}

func (l *keepAliveListener) Accept() (net.Conn, error) {
	conn, err := l.TCPListener.Accept()
	if err != nil {
		return nil, err
	}
	if err := l.tune(conn); err != nil {
		log.Warn("Failed to set keepalive", "addr", conn.RemoteAddr(), "err", err)
	}
	return conn, nil
}

type TCPConnectionManager struct {
	config   *config.ServerConfig
	handler  domain.CommandHandler
	feedback domain.Feedback
}

func NewTCPConnectionManager(cfg *config.ServerConfig, handler domain.CommandHandler, feedback domain.Feedback) *TCPConnectionManager {
	return &TCPConnectionManager{
		config:   cfg,
		handler:  handler,
		feedback: feedback,
	}
}

// HandleConnection performs the handshake and then dispatches commands until the
// client leaves. A returned error means the connection broke or a reboot was
// requested; a failed handshake is not an error.
func (cm *TCPConnectionManager) HandleConnection(ctx context.Context, conn net.Conn) error {
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	sess := &domain.Session{
		ID:         uuid.NewString(),
		RemoteAddr: conn.RemoteAddr().String(),
	}
	sess.Log = log.New("session", sess.ID[:8], "addr", sess.RemoteAddr)

	stream := protocol.NewStream(conn,
		protocol.WithTimeout(cm.config.TransferTimeout),
		protocol.WithChunkSize(cm.config.ChunkSize),
	)
	sess.Stream = stream

	if err := cm.handshake(stream); err != nil {
		sess.Log.Info("Handshake failed", "err", err)
		return nil
	}
	sess.Log.Info("Client connected")

	if cm.feedback != nil {
		cm.feedback.Set(true)
		defer cm.feedback.Set(false)
	}

	for {
		frame, err := stream.RecvWithin(protocol.FrameBufferSize, cm.config.SessionTimeout)
		if err != nil {
			if errors.Is(err, io.EOF) {
				sess.Log.Info("Client disconnected")
				return nil
			}
			return fmt.Errorf("read command: %w", err)
		}

		cont, err := cm.handler.HandleCommand(ctx, sess, trimLineEnd(frame))
		if err != nil {
			return err
		}
		if !cont {
			sess.Log.Info("Session closed")
			return nil
		}
	}
}

func (cm *TCPConnectionManager) handshake(stream *protocol.Stream) error {
	if err := stream.Send([]byte(protocol.Greeting)); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrHandshake, err)
	}
	if err := stream.Expect(protocol.AckToken, cm.config.HandshakeTimeout); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrHandshake, err)
	}
	return nil
}

func (cm *TCPConnectionManager) SetKeepAlive(conn net.Conn) error {
	return setKeepAlive(conn, cm.config.KeepAlive, cm.config.KeepAliveIdle, cm.config.KeepAliveCount, cm.config.KeepAliveIntvl)
}

// trimLineEnd drops one trailing "\n" or "\r\n".
func trimLineEnd(b []byte) []byte {
	n := len(b)
	if n > 0 && b[n-1] == '\n' {
		n--
		if n > 0 && b[n-1] == '\r' {
			n--
		}
	}
	return b[:n]
}
