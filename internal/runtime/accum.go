package runtime

import (
	"errors"
	"fmt"

	"github.com/ehrlich-b/corecache/internal/bufpool"
	"github.com/ehrlich-b/corecache/internal/conn"
	"github.com/ehrlich-b/corecache/internal/dispatch"
	"github.com/ehrlich-b/corecache/internal/protocol"
)

// ErrProtocolViolation and ErrValueTooLarge are the two fatal parse
// outcomes both backends must react to by closing the connection rather
// than waiting for more bytes.
var (
	ErrProtocolViolation = errors.New("runtime: protocol framing violation")
	ErrValueTooLarge     = errors.New("runtime: declared value exceeds admission ceiling")
)

// ErrRingUnsupported wraps a ring-setup failure from the completion
// backend, reported when the running kernel lacks io_uring or
// provided-buffer-ring support (spec.md: completion is valid only where
// the kernel supports it). Nothing falls back to the readiness backend
// automatically: the error is returned from corecache.New.
func ErrRingUnsupported(cause error) error {
	return fmt.Errorf("runtime: io_uring unsupported on this kernel: %w", cause)
}

// ReadTarget returns where the next inbound read for c should land: room
// remaining in its flat accumulation buffer, acquiring one from pool if c
// doesn't have one yet. ok is false when the buffer is full (the caller
// must Escalate first) or the pool is exhausted. Only valid while c has no
// overflow Chain; once Escalate has run, reads go through AppendChain
// instead.
func ReadTarget(c *conn.Conn, pool *bufpool.Pool) (dst []byte, ok bool) {
	if c.Chain != nil {
		return nil, false
	}
	idx, fill, has := c.AccumBuffer()
	if !has {
		acquired, acquireOK := pool.Acquire()
		if !acquireOK {
			return nil, false
		}
		idx = acquired
		fill = 0
		c.SetAccumBuffer(idx, fill)
	}
	buf := pool.Bytes(idx)
	if fill >= len(buf) {
		return nil, false
	}
	return buf[fill:], true
}

// CommitRead records that n more bytes landed in the slice a prior
// ReadTarget call returned.
func CommitRead(c *conn.Conn, n int) {
	idx, fill, has := c.AccumBuffer()
	if !has {
		return
	}
	c.SetAccumBuffer(idx, fill+n)
}

// NeedsEscalation reports whether c's flat accumulation buffer is full
// without yet holding a complete command, meaning the caller must
// Escalate to a multi-chunk Chain before it can read any more.
func NeedsEscalation(c *conn.Conn, pool *bufpool.Pool) bool {
	if c.Chain != nil {
		return false
	}
	_, fill, has := c.AccumBuffer()
	return has && fill >= pool.BufSize()
}

// Escalate migrates a full flat accumulation buffer into a Chain capable
// of holding up to maxChainBuffers pool buffers, the path a value larger
// than one buffer takes per spec.md's BufferChain design. It returns false
// only if the pool itself has no free buffers left for the first chunk.
func Escalate(c *conn.Conn, pool *bufpool.Pool, maxChainBuffers int) bool {
	idx, fill, has := c.AccumBuffer()
	if !has {
		c.Chain = bufpool.NewChain(pool, maxChainBuffers)
		return true
	}
	data := append([]byte(nil), pool.Bytes(idx)[:fill]...)
	pool.Release(idx)
	c.ClearAccumBuffer()

	ch := bufpool.NewChain(pool, maxChainBuffers)
	if !ch.Append(data) {
		return false
	}
	c.Chain = ch
	return true
}

// AppendChain copies data into c's overflow chain. It returns false when
// the chain has reached its configured chunk ceiling, meaning the value
// being read exceeds the admission limit and the connection must close.
func AppendChain(c *conn.Conn, data []byte) bool {
	return c.Chain.Append(data)
}

// CurrentBytes returns the bytes accumulated so far for c, ready to hand
// to a Parser. Returns nil if nothing has been read yet.
func CurrentBytes(c *conn.Conn, pool *bufpool.Pool) []byte {
	if c.Chain != nil {
		return c.Chain.AsContiguous()
	}
	idx, fill, has := c.AccumBuffer()
	if !has {
		return nil
	}
	return pool.Bytes(idx)[:fill]
}

// Compact drops the first consumed bytes from c's accumulated input after
// a complete command has been parsed out of it, keeping any pipelined
// remainder (a second command that arrived in the same read) ready for
// the next parse attempt.
func Compact(c *conn.Conn, pool *bufpool.Pool, consumed int) {
	if c.Chain != nil {
		all := c.Chain.AsContiguous()
		c.Chain.Release()
		c.Chain = nil
		if consumed >= len(all) {
			return
		}
		remaining := all[consumed:]
		if len(remaining) > pool.BufSize() {
			ch := bufpool.NewChain(pool, 0)
			if ch.Append(remaining) {
				c.Chain = ch
			}
			return
		}
		idx, ok := pool.Acquire()
		if !ok {
			return
		}
		n := copy(pool.Bytes(idx), remaining)
		c.SetAccumBuffer(idx, n)
		return
	}

	idx, fill, has := c.AccumBuffer()
	if !has {
		return
	}
	remaining := fill - consumed
	if remaining <= 0 {
		pool.Release(idx)
		c.ClearAccumBuffer()
		return
	}
	buf := pool.Bytes(idx)
	copy(buf[:remaining], buf[consumed:fill])
	c.SetAccumBuffer(idx, remaining)
}

// ReleaseAccum frees whatever input-side buffer c currently holds. Used
// when closing a connection regardless of parse state.
func ReleaseAccum(c *conn.Conn, pool *bufpool.Pool) {
	if c.Chain != nil {
		c.Chain.Release()
		c.Chain = nil
	}
	if idx, _, has := c.AccumBuffer(); has {
		pool.Release(idx)
		c.ClearAccumBuffer()
	}
}

// Step attempts to parse and dispatch exactly one complete command out of
// c's currently accumulated bytes. ok reports whether a command was
// dispatched (result and op are then valid and the caller should arm a
// write and record the command's metrics); fatal is non-nil if the
// connection must be closed outright.
func Step(c *conn.Conn, pool *bufpool.Pool, parser protocol.Parser, maxValueSize int, d *dispatch.Dispatcher) (result dispatch.Result, op protocol.Op, ok bool, fatal error) {
	buf := CurrentBytes(c, pool)
	if buf == nil {
		return dispatch.Result{}, protocol.OpUnknown, false, nil
	}

	v := parser.Parse(buf, maxValueSize)
	switch v.Kind {
	case protocol.VerdictComplete:
		result = d.Dispatch(v.Command, &c.RESP3)
		Compact(c, pool, v.Consumed)
		return result, v.Command.Op, true, nil
	case protocol.VerdictSemanticError:
		// Framing stayed in sync (Consumed is known): reply and keep the
		// connection in Reading rather than closing it, per the
		// semantic/framing error distinction.
		reply := SemanticReplyFor(c.Protocol, v.Err)
		Compact(c, pool, v.Consumed)
		if reply == nil {
			return dispatch.Result{Kind: dispatch.KindNoReply}, protocol.OpUnknown, true, nil
		}
		return dispatch.Result{Kind: dispatch.KindResponse, Bytes: reply}, protocol.OpUnknown, true, nil
	case protocol.VerdictError:
		return dispatch.Result{}, protocol.OpUnknown, false, ErrProtocolViolation
	case protocol.VerdictValueTooLarge:
		return dispatch.Result{}, protocol.OpUnknown, false, ErrValueTooLarge
	default:
		return dispatch.Result{}, protocol.OpUnknown, false, nil
	}
}

// OpName maps a parsed command's Op to the short metrics label
// RecordCommand/ObserveCommand expects.
func OpName(op protocol.Op) string {
	switch op {
	case protocol.OpGet, protocol.OpGets:
		return "get"
	case protocol.OpSet, protocol.OpAdd, protocol.OpReplace, protocol.OpAppend, protocol.OpPrepend, protocol.OpCAS:
		return "set"
	case protocol.OpDelete:
		return "delete"
	default:
		return "other"
	}
}
