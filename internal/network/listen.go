package network

import (
	"net"
	"syscall"
	"time"
)

// keepAlivePeriod is how often the kernel checks on a silent client. The idle
// timeout usually fires first; this catches peers that vanished mid-write.
const keepAlivePeriod = 30 * time.Second

// ReuseAddrListenConfig returns the listen config shared by the game port
// and the API. SO_REUSEADDR lets a restarted server bind while old client
// sockets sit in TIME_WAIT.
func ReuseAddrListenConfig() net.ListenConfig {
	return net.ListenConfig{
		KeepAlive: keepAlivePeriod,
		Control: func(_, _ string, c syscall.RawConn) error {
			var opErr error
			if err := c.Control(func(fd uintptr) {
				opErr = setReuseAddr(fd)
			}); err != nil {
				return err
			}
			return opErr
		},
	}
}
