//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package readiness

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// kqueuePoller is the BSD-family poller implementation, the functional
// (slower, per spec.md §1) fallback path on kernels without io_uring.
type kqueuePoller struct {
	kq int
}

func newPoller() (poller, error) {
	fd, err := unix.Kqueue()
	if err != nil {
		return nil, fmt.Errorf("readiness: kqueue: %w", err)
	}
	return &kqueuePoller{kq: fd}, nil
}

func (p *kqueuePoller) register(fd int, writable bool) error {
	changes := []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_ADD},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_ADD | unix.EV_DISABLE},
	}
	if writable {
		changes[0].Flags = unix.EV_ADD | unix.EV_DISABLE
		changes[1].Flags = unix.EV_ADD
	}
	_, err := unix.Kevent(p.kq, changes, nil, nil)
	return err
}

func (p *kqueuePoller) Add(fd int, writable bool) error {
	return p.register(fd, writable)
}

func (p *kqueuePoller) Modify(fd int, writable bool) error {
	return p.register(fd, writable)
}

func (p *kqueuePoller) Remove(fd int) error {
	changes := []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE},
	}
	_, err := unix.Kevent(p.kq, changes, nil, nil)
	return err
}

func (p *kqueuePoller) Wait(events []event, timeoutMillis int) (int, error) {
	raw := make([]unix.Kevent_t, len(events))
	var ts *unix.Timespec
	if timeoutMillis >= 0 {
		t := unix.NsecToTimespec(int64(timeoutMillis) * 1_000_000)
		ts = &t
	}
	n, err := unix.Kevent(p.kq, nil, raw, ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("readiness: kevent: %w", err)
	}
	for i := 0; i < n; i++ {
		ev := raw[i]
		out := event{fd: int(ev.Ident), hangup: ev.Flags&unix.EV_EOF != 0}
		switch ev.Filter {
		case unix.EVFILT_READ:
			out.readable = true
		case unix.EVFILT_WRITE:
			out.writable = true
		}
		events[i] = out
	}
	return n, nil
}

func (p *kqueuePoller) Close() error {
	return unix.Close(p.kq)
}
