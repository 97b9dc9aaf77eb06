package readiness

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/corecache/internal/bufpool"
	"github.com/ehrlich-b/corecache/internal/conn"
	"github.com/ehrlich-b/corecache/internal/dispatch"
	"github.com/ehrlich-b/corecache/internal/protocol"
	corecacheruntime "github.com/ehrlich-b/corecache/internal/runtime"
)

// pollTimeoutMillis bounds how long Wait blocks between idle-connection
// sweeps and ctx-cancellation checks.
const pollTimeoutMillis = 1000

// Loop is the readiness backend's event loop: one poller, one listener
// socket, one buffer pool and connection registry, all owned by a single
// worker goroutine that never shares them with another thread.
type Loop struct {
	cfg        corecacheruntime.WorkerConfig
	listenFD   int
	poller     poller
	pool       *bufpool.Pool
	registry   *conn.Registry
	dispatcher *dispatch.Dispatcher
	parser     protocol.Parser
	fdToSlot   map[int]uint32
	maxChain   int
}

// New builds the readiness backend for one worker. It satisfies
// runtime.BackendFactory.
func New(cfg corecacheruntime.WorkerConfig) (corecacheruntime.Backend, error) {
	listenFD, err := corecacheruntime.ListenReusePort(cfg.Listen)
	if err != nil {
		return nil, err
	}

	p, err := newPoller()
	if err != nil {
		unix.Close(listenFD)
		return nil, err
	}
	if err := p.Add(listenFD, false); err != nil {
		p.Close()
		unix.Close(listenFD)
		return nil, fmt.Errorf("readiness: register listener: %w", err)
	}

	pool := bufpool.NewPool(cfg.PoolBuffers, cfg.BufferSize)
	registry := conn.NewRegistry(cfg.MaxConnections)
	dispatcher := dispatch.New(cfg.Storage, cfg.Protocol, pool, cfg.MaxChainBuffers())

	return &Loop{
		cfg:        cfg,
		listenFD:   listenFD,
		poller:     p,
		pool:       pool,
		registry:   registry,
		dispatcher: dispatcher,
		parser:     corecacheruntime.ParserFor(cfg.Protocol),
		fdToSlot:   make(map[int]uint32, cfg.MaxConnections),
		maxChain:   cfg.MaxChainBuffers(),
	}, nil
}

// Run drives the accept/read/parse/dispatch/write loop until ctx is
// cancelled.
func (l *Loop) Run(ctx context.Context) error {
	defer l.shutdown()

	events := make([]event, l.cfg.BatchSize)
	if len(events) == 0 {
		events = make([]event, 64)
	}

	lastSweep := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		n, err := l.poller.Wait(events, pollTimeoutMillis)
		if err != nil {
			return fmt.Errorf("readiness: worker %d: %w", l.cfg.ID, err)
		}

		for i := 0; i < n; i++ {
			ev := events[i]
			if ev.fd == l.listenFD {
				l.acceptLoop()
				continue
			}
			slot, ok := l.fdToSlot[ev.fd]
			if !ok {
				continue
			}
			c := l.registry.Get(slot)
			if c == nil {
				continue
			}
			if ev.hangup {
				l.closeConn(slot, c)
				continue
			}
			if ev.readable && c.Data == conn.DataStateReading {
				l.handleReadable(slot, c)
			}
			if c.GetPhase() != conn.PhaseClosing && ev.writable && c.Data == conn.DataStateWriting {
				l.handleWritable(slot, c)
			}
		}

		if l.cfg.IdleTimeout > 0 && time.Since(lastSweep) > l.cfg.IdleTimeout/2 {
			l.reapIdle()
			lastSweep = time.Now()
		}
	}
}

func (l *Loop) acceptLoop() {
	for {
		fd, _, err := unix.Accept4(l.listenFD, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if err == unix.EAGAIN {
				return
			}
			if l.cfg.Logger != nil {
				l.cfg.Logger.Warn("accept failed", "worker", l.cfg.ID, "err", err)
			}
			return
		}

		c := conn.NewConn(fd, l.cfg.Protocol)
		slot, ok := l.registry.Acquire(c)
		if !ok {
			unix.Close(fd)
			if l.cfg.Logger != nil {
				l.cfg.Logger.Warn("connection limit reached, refusing", "worker", l.cfg.ID)
			}
			continue
		}
		if err := l.poller.Add(fd, false); err != nil {
			l.registry.Release(slot)
			unix.Close(fd)
			continue
		}
		l.fdToSlot[fd] = slot
		c.Transition(conn.PhaseEstablished)
		if l.cfg.Observer != nil {
			l.cfg.Observer.ObserveConnOpened()
		}
	}
}

func (l *Loop) handleReadable(slot uint32, c *conn.Conn) {
	for {
		dst, ok := corecacheruntime.ReadTarget(c, l.pool)
		escalated := !ok && c.Chain != nil
		if escalated {
			// Escalated: read into scratch space and append it to the chain.
			dst, ok = make([]byte, l.pool.BufSize()), true
		}
		if !ok {
			if corecacheruntime.NeedsEscalation(c, l.pool) {
				if !corecacheruntime.Escalate(c, l.pool, l.maxChain) {
					l.closeConn(slot, c)
					return
				}
				continue
			}
			return // pool exhausted; retry on the next readiness notification
		}

		n, err := unix.Read(c.FD, dst)
		if err != nil {
			if err == unix.EAGAIN {
				return
			}
			l.closeConn(slot, c)
			return
		}
		if n == 0 {
			l.closeConn(slot, c)
			return
		}
		if escalated {
			if !corecacheruntime.AppendChain(c, dst[:n]) {
				l.closeConn(slot, c)
				return
			}
		} else {
			corecacheruntime.CommitRead(c, n)
		}
		c.Touch(time.Now())
		if l.cfg.Observer != nil {
			l.cfg.Observer.ObserveBytesIn(uint64(n))
		}

		if l.drainCommands(slot, c) {
			return // a response is now armed, or the connection closed
		}

		if n < len(dst) {
			return // short read: socket drained for now
		}
	}
}

// drainCommands parses and dispatches as many pipelined commands as are
// fully present in c's accumulated bytes. It stops at the first one that
// arms a response (this connection design holds a single pending
// response at a time) and returns true if the caller should stop reading
// — either because a write was armed or the connection was closed.
func (l *Loop) drainCommands(slot uint32, c *conn.Conn) bool {
	for {
		start := time.Now()
		result, op, ok, fatal := corecacheruntime.Step(c, l.pool, l.parser, l.cfg.MaxValueSize, l.dispatcher)
		if fatal != nil {
			l.sendFatalReply(c, fatal)
			l.closeConn(slot, c)
			return true
		}
		if !ok {
			return false
		}

		switch result.Kind {
		case dispatch.KindNoReply:
			if l.cfg.Observer != nil {
				l.cfg.Observer.ObserveCommand(corecacheruntime.OpName(op), uint64(time.Since(start)), true)
			}
			continue
		case dispatch.KindClose:
			l.closeConn(slot, c)
			return true
		case dispatch.KindResponse:
			c.SetPendingBytes(result.Bytes)
		case dispatch.KindLargeResponse:
			c.SetPendingChain(result.Chain)
		}

		if l.cfg.Observer != nil {
			l.cfg.Observer.ObserveCommand(corecacheruntime.OpName(op), uint64(time.Since(start)), true)
		}

		l.handleWritable(slot, c)
		return true
	}
}

func (l *Loop) handleWritable(slot uint32, c *conn.Conn) {
	for c.Data == conn.DataStateWriting {
		var n int
		var err error

		if chain := c.PendingChain(); chain != nil {
			var n64 int64
			n64, err = chain.WriteTo(c.FD)
			n = int(n64)
		} else {
			buf := c.PendingBytes()
			off := c.WriteOffset()
			if off >= len(buf) {
				n = 0
			} else {
				n, err = unix.Write(c.FD, buf[off:])
			}
		}

		if n > 0 {
			c.AdvanceWrite(n)
			if l.cfg.Observer != nil {
				l.cfg.Observer.ObserveBytesOut(uint64(n))
			}
		}
		if err != nil {
			if err == unix.EAGAIN {
				if perr := l.poller.Modify(c.FD, true); perr != nil && l.cfg.Logger != nil {
					l.cfg.Logger.Warn("poller modify failed", "worker", l.cfg.ID, "err", perr)
				}
				return
			}
			l.closeConn(slot, c)
			return
		}

		if l.writeComplete(c) {
			c.FinishWrite()
			if perr := l.poller.Modify(c.FD, false); perr != nil && l.cfg.Logger != nil {
				l.cfg.Logger.Warn("poller modify failed", "worker", l.cfg.ID, "err", perr)
			}
			if l.drainCommands(slot, c) {
				return
			}
			return
		}
	}
}

func (l *Loop) writeComplete(c *conn.Conn) bool {
	if chain := c.PendingChain(); chain != nil {
		return chain.Len() == 0 || c.WriteOffset() >= chain.Len()
	}
	return c.WriteOffset() >= len(c.PendingBytes())
}

// sendFatalReply best-effort writes the protocol-appropriate error line
// for a fatal parse outcome before the connection closes (spec.md §7:
// framing errors "emit protocol-specific error, then close"). The socket
// is non-blocking, so a handful of short retries absorb transient EAGAIN;
// this is an already-closing path, not the hot path, so blocking briefly
// here does not affect steady-state latency.
func (l *Loop) sendFatalReply(c *conn.Conn, fatal error) {
	reply := corecacheruntime.ErrorReplyFor(c.Protocol, fatal)
	if reply == nil {
		return
	}
	for off := 0; off < len(reply); {
		n, err := unix.Write(c.FD, reply[off:])
		if n > 0 {
			off += n
			continue
		}
		if err == unix.EAGAIN {
			time.Sleep(time.Millisecond)
			continue
		}
		return
	}
}

func (l *Loop) closeConn(slot uint32, c *conn.Conn) {
	if c.GetPhase() == conn.PhaseClosing {
		return
	}
	c.Transition(conn.PhaseClosing)
	l.poller.Remove(c.FD)
	delete(l.fdToSlot, c.FD)
	corecacheruntime.ReleaseAccum(c, l.pool)
	if chain := c.PendingChain(); chain != nil {
		chain.Release()
	}
	unix.Close(c.FD)
	l.registry.Release(slot)
	if l.cfg.Observer != nil {
		l.cfg.Observer.ObserveConnClosed()
	}
}

func (l *Loop) reapIdle() {
	now := time.Now()
	var stale []uint32
	l.registry.Each(func(idx uint32, c *conn.Conn) {
		if c.IdleSince(now) > l.cfg.IdleTimeout {
			stale = append(stale, idx)
		}
	})
	for _, idx := range stale {
		if c := l.registry.Get(idx); c != nil {
			l.closeConn(idx, c)
		}
	}
}

func (l *Loop) shutdown() {
	l.registry.Each(func(idx uint32, c *conn.Conn) {
		l.closeConn(idx, c)
	})
	l.poller.Close()
	unix.Close(l.listenFD)
}
