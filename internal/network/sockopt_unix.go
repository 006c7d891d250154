//go:build linux || darwin

package network

import (
	"log"
	"syscall"

	"golang.org/x/sys/unix"
)

// IPTOS_LOWDELAY from netinet/ip.h.
const iptosLowDelay = 0x10

// controlSocket disables Nagle and marks the socket low-delay before connect.
// Input events are tiny and latency-sensitive.
func controlSocket(network, address string, rc syscall.RawConn) error {
	var sockErr error
	err := rc.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
		if network == "tcp4" {
			if err := unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_TOS, iptosLowDelay); err != nil {
				log.Printf("Network: Could not set IP_TOS on %s: %v", address, err)
			}
		}
	})
	if err != nil {
		return err
	}
	return sockErr
}
