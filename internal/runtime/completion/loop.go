//go:build linux

// Package completion implements the completion-based I/O backend
// (spec.md §4.7): a single io_uring instance per worker, seeded with a
// multishot accept and a kernel-managed provided-buffer ring for recv, so
// the worker blocks in one submit_and_wait syscall instead of polling
// readiness and then issuing a separate read. It is Linux-only, the same
// constraint the teacher's real-ring build (internal/uring/iouring.go,
// gated by the "giouring" build tag) carries for its URING_CMD path.
package completion

import (
	"context"
	"fmt"
	"time"

	"github.com/pawelgaczynski/giouring"
	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/corecache/internal/bufpool"
	"github.com/ehrlich-b/corecache/internal/conn"
	"github.com/ehrlich-b/corecache/internal/dispatch"
	"github.com/ehrlich-b/corecache/internal/protocol"
	corecacheruntime "github.com/ehrlich-b/corecache/internal/runtime"
)

// userData tags every submitted SQE with an opcode (top byte) and a
// registry slot or listener marker (low 32 bits), so a completion can be
// routed back to the right connection without a separate lookup table.
const (
	tagAccept byte = 1
	tagRecv   byte = 2
	tagSend   byte = 3

	bufGroupID = uint16(0)
)

func packUserData(tag byte, slot uint32) uint64 {
	return uint64(tag)<<56 | uint64(slot)
}

func unpackUserData(ud uint64) (byte, uint32) {
	return byte(ud >> 56), uint32(ud & 0xFFFFFFFF)
}

// Loop is the completion backend's event loop: one io_uring ring, one
// provided-buffer ring backing recv, and the same dispatcher/registry/pool
// machinery the readiness backend uses.
type Loop struct {
	cfg        corecacheruntime.WorkerConfig
	listenFD   int
	ring       *giouring.Ring
	pool       *bufpool.Pool
	registry   *conn.Registry
	dispatcher *dispatch.Dispatcher
	parser     protocol.Parser
	maxChain   int
}

// New builds the completion backend for one worker. It satisfies
// runtime.BackendFactory. It returns an error on any kernel that lacks
// io_uring ring + provided-buffer-ring support, per spec.md's "completion
// is valid only where the kernel supports it" constraint.
func New(cfg corecacheruntime.WorkerConfig) (corecacheruntime.Backend, error) {
	listenFD, err := corecacheruntime.ListenReusePort(cfg.Listen)
	if err != nil {
		return nil, err
	}

	ring, err := giouring.CreateRing(uint32(cfg.RingSize))
	if err != nil {
		unix.Close(listenFD)
		return nil, corecacheruntime.ErrRingUnsupported(err)
	}

	pool := bufpool.NewPool(cfg.PoolBuffers, cfg.BufferSize)
	if err := registerBufRing(ring, pool); err != nil {
		ring.QueueExit()
		unix.Close(listenFD)
		return nil, fmt.Errorf("completion: provided buffer ring: %w", err)
	}

	registry := conn.NewRegistry(cfg.MaxConnections)
	dispatcher := dispatch.New(cfg.Storage, cfg.Protocol, pool, cfg.MaxChainBuffers())

	l := &Loop{
		cfg:        cfg,
		listenFD:   listenFD,
		ring:       ring,
		pool:       pool,
		registry:   registry,
		dispatcher: dispatcher,
		parser:     corecacheruntime.ParserFor(cfg.Protocol),
		maxChain:   cfg.MaxChainBuffers(),
	}
	return l, nil
}

// registerBufRing hands every pool buffer to the kernel as a provided
// buffer in group bufGroupID, so a completed recv arrives with a
// kernel-chosen buffer index instead of requiring the caller to supply
// one per submission.
func registerBufRing(ring *giouring.Ring, pool *bufpool.Pool) error {
	n := pool.Cap()
	br, err := ring.SetupBufRing(uint32(n), bufGroupID, 0)
	if err != nil {
		return err
	}
	mask := giouring.BufferRingMask(uint32(n))
	for i := 0; i < n; i++ {
		br.BufRingAdd(uint16(i), pool.Bytes(uint32(i)), bufGroupID, mask, uint16(i))
	}
	br.BufRingAvail(uint16(n))
	return nil
}

func (l *Loop) submitAccept() {
	sqe := l.ring.GetSQE()
	sqe.PrepareMultishotAccept(l.listenFD, 0, 0, unix.SOCK_NONBLOCK)
	sqe.UserData = packUserData(tagAccept, 0)
}

func (l *Loop) submitRecv(c *conn.Conn, slot uint32) {
	sqe := l.ring.GetSQE()
	sqe.PrepareRecv(c.FD, nil, uint32(l.cfg.BufferSize), 0)
	sqe.Flags |= giouring.SqeBufferSelect
	sqe.BufIG = bufGroupID
	sqe.UserData = packUserData(tagRecv, slot)
}

func (l *Loop) submitSend(c *conn.Conn, slot uint32, data []byte) {
	sqe := l.ring.GetSQE()
	sqe.PrepareSend(c.FD, data, uint32(len(data)), 0)
	sqe.UserData = packUserData(tagSend, slot)
}

// Run seeds the ring with a multishot accept, then alternates
// submit_and_wait with CQE draining until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	defer l.shutdown()

	l.submitAccept()
	if _, err := l.ring.Submit(); err != nil {
		return fmt.Errorf("completion: worker %d: initial submit: %w", l.cfg.ID, err)
	}

	cqes := make([]*giouring.CompletionQueueEvent, l.cfg.BatchSize)
	if len(cqes) == 0 {
		cqes = make([]*giouring.CompletionQueueEvent, 64)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		timeout := unix.NsecToTimespec(int64(time.Second))
		_, err := l.ring.SubmitAndWaitTimeout(1, &timeout, nil)
		if err != nil {
			if err == unix.EINTR || err == unix.ETIME {
				continue
			}
			return fmt.Errorf("completion: worker %d: submit_and_wait: %w", l.cfg.ID, err)
		}

		n := l.ring.PeekBatchCQE(cqes)
		for i := 0; i < n; i++ {
			l.handleCQE(cqes[i])
		}
		l.ring.CQAdvance(uint32(n))

		l.reapIdle()
	}
}

func (l *Loop) handleCQE(cqe *giouring.CompletionQueueEvent) {
	tag, slot := unpackUserData(cqe.UserData)
	switch tag {
	case tagAccept:
		l.handleAccept(cqe)
	case tagRecv:
		l.handleRecvCompletion(slot, cqe)
	case tagSend:
		l.handleSendCompletion(slot, cqe)
	}
}

func (l *Loop) handleAccept(cqe *giouring.CompletionQueueEvent) {
	if cqe.Res < 0 {
		if l.cfg.Logger != nil {
			l.cfg.Logger.Warn("multishot accept completion error", "worker", l.cfg.ID, "res", cqe.Res)
		}
		if cqe.Flags&giouring.CQEFMore == 0 {
			l.submitAccept() // multishot accept terminated; re-arm
		}
		return
	}

	fd := int(cqe.Res)
	c := conn.NewConn(fd, l.cfg.Protocol)
	slot, ok := l.registry.Acquire(c)
	if !ok {
		unix.Close(fd)
		if l.cfg.Logger != nil {
			l.cfg.Logger.Warn("connection limit reached, refusing", "worker", l.cfg.ID)
		}
	} else {
		c.Transition(conn.PhaseEstablished)
		if l.cfg.Observer != nil {
			l.cfg.Observer.ObserveConnOpened()
		}
		l.submitRecv(c, slot)
	}

	if cqe.Flags&giouring.CQEFMore == 0 {
		l.submitAccept() // kernel stopped delivering multishot accepts; re-arm
	}
}

func (l *Loop) handleRecvCompletion(slot uint32, cqe *giouring.CompletionQueueEvent) {
	c := l.registry.Get(slot)
	if c == nil {
		return
	}
	if cqe.Res <= 0 {
		l.closeConn(slot, c)
		return
	}

	bufIdx := uint32(cqe.Flags >> giouring.CQEBufferShift)
	n := int(cqe.Res)

	if idx, fill, has := c.AccumBuffer(); has && idx == bufIdx {
		c.SetAccumBuffer(idx, fill+n)
	} else if c.Chain != nil {
		corecacheruntime.AppendChain(c, l.pool.Bytes(bufIdx)[:n])
	} else {
		c.SetAccumBuffer(bufIdx, n)
	}
	c.Touch(time.Now())
	if l.cfg.Observer != nil {
		l.cfg.Observer.ObserveBytesIn(uint64(n))
	}

	if l.drainCommands(slot, c) {
		return
	}
	l.submitRecv(c, slot)
}

func (l *Loop) drainCommands(slot uint32, c *conn.Conn) bool {
	for {
		start := time.Now()
		result, op, ok, fatal := corecacheruntime.Step(c, l.pool, l.parser, l.cfg.MaxValueSize, l.dispatcher)
		if fatal != nil {
			if reply := corecacheruntime.ErrorReplyFor(c.Protocol, fatal); reply != nil {
				c.SetPendingBytes(reply)
				c.CloseAfterWrite = true
				l.submitSend(c, slot, reply)
				return true
			}
			l.closeConn(slot, c)
			return true
		}
		if !ok {
			return false
		}

		if l.cfg.Observer != nil {
			l.cfg.Observer.ObserveCommand(corecacheruntime.OpName(op), uint64(time.Since(start)), true)
		}

		switch result.Kind {
		case dispatch.KindNoReply:
			continue
		case dispatch.KindClose:
			l.closeConn(slot, c)
			return true
		case dispatch.KindResponse:
			c.SetPendingBytes(result.Bytes)
			l.submitSend(c, slot, result.Bytes)
			return true
		case dispatch.KindLargeResponse:
			c.SetPendingChain(result.Chain)
			l.submitSend(c, slot, result.Chain.AsContiguous())
			return true
		}
	}
}

func (l *Loop) handleSendCompletion(slot uint32, cqe *giouring.CompletionQueueEvent) {
	c := l.registry.Get(slot)
	if c == nil {
		return
	}
	if cqe.Res < 0 {
		l.closeConn(slot, c)
		return
	}

	n := int(cqe.Res)
	c.AdvanceWrite(n)
	if l.cfg.Observer != nil {
		l.cfg.Observer.ObserveBytesOut(uint64(n))
	}

	if l.writeRemaining(c) > 0 {
		l.submitSend(c, slot, l.writeTail(c))
		return
	}

	closeAfter := c.CloseAfterWrite
	c.FinishWrite()
	if closeAfter {
		l.closeConn(slot, c)
		return
	}
	if l.drainCommands(slot, c) {
		return
	}
	l.submitRecv(c, slot)
}

func (l *Loop) writeRemaining(c *conn.Conn) int {
	if chain := c.PendingChain(); chain != nil {
		return chain.Len() - c.WriteOffset()
	}
	return len(c.PendingBytes()) - c.WriteOffset()
}

func (l *Loop) writeTail(c *conn.Conn) []byte {
	off := c.WriteOffset()
	if chain := c.PendingChain(); chain != nil {
		return chain.AsContiguous()[off:]
	}
	return c.PendingBytes()[off:]
}

func (l *Loop) closeConn(slot uint32, c *conn.Conn) {
	if c.GetPhase() == conn.PhaseClosing {
		return
	}
	c.Transition(conn.PhaseClosing)
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
	if l.cfg.IdleTimeout <= 0 {
		return
	}
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
	l.ring.QueueExit()
	unix.Close(l.listenFD)
}
