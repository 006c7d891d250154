//go:build !linux && !darwin

package network

import "syscall"

// controlSocket is a no-op here; Go enables TCP_NODELAY on its own.
func controlSocket(network, address string, rc syscall.RawConn) error {
	return nil
}
