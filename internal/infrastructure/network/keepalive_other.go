//go:build !linux

package network

import (
	"net"
	"time"
)

// setKeepAlive falls back to the portable knobs; probe count and interval keep
// their system defaults.
func setKeepAlive(conn net.Conn, keepAlive bool, idle time.Duration, count int, intvl time.Duration) error {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	if err := tcpConn.SetKeepAlive(keepAlive); err != nil {
		return err
	}
	if !keepAlive || idle <= 0 {
		return nil
	}
	return tcpConn.SetKeepAlivePeriod(idle)
}
