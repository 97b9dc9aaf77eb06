package runtime

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// ListenReusePort creates a non-blocking, listening TCP socket bound to
// address with SO_REUSEPORT set, so that every worker's own call to this
// function against the same address gets its own socket with the kernel
// load-balancing inbound connections across all of them — the TCP
// analogue of the teacher spawning N queue runners against one ublk char
// device, each pulling FETCH_REQs from the same kernel-maintained queue.
func ListenReusePort(address string) (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", address)
	if err != nil {
		return -1, fmt.Errorf("runtime: resolve %q: %w", address, err)
	}

	family := unix.AF_INET
	if addr.IP != nil && addr.IP.To4() == nil {
		family = unix.AF_INET6
	}

	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("runtime: socket: %w", err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("runtime: SO_REUSEADDR: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("runtime: SO_REUSEPORT: %w", err)
	}

	var sa unix.Sockaddr
	if family == unix.AF_INET6 {
		var ip [16]byte
		copy(ip[:], addr.IP.To16())
		sa = &unix.SockaddrInet6{Port: addr.Port, Addr: ip}
	} else {
		var ip [4]byte
		if addr.IP != nil {
			copy(ip[:], addr.IP.To4())
		}
		sa = &unix.SockaddrInet4{Port: addr.Port, Addr: ip}
	}

	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("runtime: bind %s: %w", address, err)
	}
	if err := unix.Listen(fd, listenBacklog); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("runtime: listen: %w", err)
	}

	return fd, nil
}

const listenBacklog = 1024
