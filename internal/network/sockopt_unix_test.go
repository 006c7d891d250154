//go:build linux || darwin

package network

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestControlSocketSetsLowDelay(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	d := net.Dialer{Control: controlSocket}
	conn, err := d.Dial("tcp4", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	rc, err := conn.(*net.TCPConn).SyscallConn()
	require.NoError(t, err)

	var noDelay, tos int
	var noDelayErr, tosErr error
	require.NoError(t, rc.Control(func(fd uintptr) {
		noDelay, noDelayErr = unix.GetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY)
		tos, tosErr = unix.GetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_TOS)
	}))
	require.NoError(t, noDelayErr)
	require.NoError(t, tosErr)
	assert.NotZero(t, noDelay)
	assert.Equal(t, iptosLowDelay, tos&0xFC)
}
