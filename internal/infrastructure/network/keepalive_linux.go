//go:build linux

package network

import (
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// setKeepAlive enables TCP keepalive on conn and tunes the probe idle time, count
// and interval at the socket level.
func setKeepAlive(conn net.Conn, keepAlive bool, idle time.Duration, count int, intvl time.Duration) error {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	if err := tcpConn.SetKeepAlive(keepAlive); err != nil {
		return err
	}
	if !keepAlive {
		return nil
	}

	raw, err := tcpConn.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		opts := []struct {
			opt, val int
		}{
			{unix.TCP_KEEPIDLE, seconds(idle)},
			{unix.TCP_KEEPINTVL, seconds(intvl)},
			{unix.TCP_KEEPCNT, count},
		}
		for _, o := range opts {
			if o.val <= 0 {
				continue
			}
			if sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, o.opt, o.val); sockErr != nil {
				return
			}
		}
	})
	if err != nil {
		return err
	}
	return sockErr
}

func seconds(d time.Duration) int {
	s := int(d / time.Second)
	if s < 1 && d > 0 {
		s = 1
	}
	return s
}
