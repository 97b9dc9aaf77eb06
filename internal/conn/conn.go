// Package conn holds the per-connection state machine and the fixed-size
// connection registry that owns connection slots. The two-level state
// machine (control plane / data plane) mirrors the teacher's TagState
// machine in internal/queue/runner.go: a small enum of valid states per
// slot, with transitions validated rather than assumed.
package conn

import (
	"fmt"
	"time"

	"github.com/ehrlich-b/corecache/internal/bufpool"
)

// Phase is the connection's control-plane state.
type Phase int

const (
	PhaseAccepting Phase = iota
	PhaseEstablished
	PhaseClosing
)

func (p Phase) String() string {
	switch p {
	case PhaseAccepting:
		return "accepting"
	case PhaseEstablished:
		return "established"
	case PhaseClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// Protocol identifies which wire dialect a connection speaks. It is
// pinned at accept time (per listener) except for the RESP subset, whose
// connections may switch between RESP2 and RESP3 framing mid-session via
// HELLO.
type Protocol int

const (
	ProtocolTextCache Protocol = iota
	ProtocolRESP
	ProtocolPing
	ProtocolEcho
)

// DataState is the connection's data-plane state: either accumulating
// bytes read from the socket, or draining a pending response.
type DataState int

const (
	DataStateReading DataState = iota
	DataStateWriting
)

// validTransition reports whether moving from 'from' to 'to' is a legal
// Phase transition per the Accepting -> Established -> Closing ordering;
// Closing is terminal.
func validTransition(from, to Phase) bool {
	switch from {
	case PhaseAccepting:
		return to == PhaseEstablished || to == PhaseClosing
	case PhaseEstablished:
		return to == PhaseClosing
	case PhaseClosing:
		return false
	default:
		return false
	}
}

// Conn is one connection's full state: its socket descriptor, wire
// protocol, control-plane phase, and data-plane read/write state. Exactly
// one of the chain fields is meaningful at a time, selected by DataState.
type Conn struct {
	FD       int
	Protocol Protocol
	RESP3    bool // only meaningful when Protocol == ProtocolRESP

	phase Phase

	Data DataState

	// Reading state: bytes accumulated into accumIdx, not yet a complete
	// command. accumFill is how many bytes of that buffer are valid.
	accumIdx  uint32
	accumFill int
	hasAccum  bool

	// Large-value accumulation spanning multiple pool buffers.
	Chain *bufpool.Chain

	// Writing state: a pending response, either a small contiguous slice
	// or a Chain, plus how much of it has already been written.
	pendingBytes []byte
	pendingChain *bufpool.Chain
	writeOffset  int

	// ExpectedTotal is the full length of an in-flight multi-chunk value
	// read (textcache "set" payload length, RESP bulk string length); 0
	// when no such read is in progress.
	ExpectedTotal int

	// CloseAfterWrite marks a pending response as a fatal-error reply: once
	// it fully drains, the caller closes the connection instead of
	// returning to Reading (spec.md §7: framing/admission errors "emit
	// protocol-specific error, then close").
	CloseAfterWrite bool

	LastActivity time.Time
}

// NewConn creates a connection in PhaseAccepting for fd speaking proto.
func NewConn(fd int, proto Protocol) *Conn {
	return &Conn{FD: fd, Protocol: proto, phase: PhaseAccepting, LastActivity: time.Now()}
}

// GetPhase returns the connection's current control-plane phase.
func (c *Conn) GetPhase() Phase {
	return c.phase
}

// Transition moves the connection to phase to, panicking on an invalid
// transition the same way the teacher's runner panics on an out-of-order
// tag-state change rather than silently accepting it.
func (c *Conn) Transition(to Phase) {
	if !validTransition(c.phase, to) {
		panic(fmt.Sprintf("conn: invalid transition %s -> %s", c.phase, to))
	}
	c.phase = to
}

// SetAccumBuffer records which pool buffer index is being used to
// accumulate inbound bytes, and how many bytes are already filled.
func (c *Conn) SetAccumBuffer(idx uint32, fill int) {
	c.accumIdx = idx
	c.accumFill = fill
	c.hasAccum = true
}

// AccumBuffer returns the current accumulation buffer index, fill count,
// and whether one is set.
func (c *Conn) AccumBuffer() (idx uint32, fill int, ok bool) {
	return c.accumIdx, c.accumFill, c.hasAccum
}

// ClearAccumBuffer marks the connection as no longer holding an
// accumulation buffer (it has been recycled to its pool).
func (c *Conn) ClearAccumBuffer() {
	c.hasAccum = false
	c.accumIdx = 0
	c.accumFill = 0
}

// SetPendingBytes arms the connection to write a small contiguous
// response.
func (c *Conn) SetPendingBytes(b []byte) {
	c.pendingBytes = b
	c.pendingChain = nil
	c.writeOffset = 0
	c.Data = DataStateWriting
}

// SetPendingChain arms the connection to write a large, chunked response.
func (c *Conn) SetPendingChain(ch *bufpool.Chain) {
	c.pendingChain = ch
	c.pendingBytes = nil
	c.writeOffset = 0
	c.Data = DataStateWriting
}

// PendingBytes and PendingChain expose the current write-side payload.
func (c *Conn) PendingBytes() []byte          { return c.pendingBytes }
func (c *Conn) PendingChain() *bufpool.Chain  { return c.pendingChain }
func (c *Conn) WriteOffset() int              { return c.writeOffset }
func (c *Conn) AdvanceWrite(n int)            { c.writeOffset += n }

// FinishWrite clears write-side state and returns to Reading once a
// pending response has been fully flushed.
func (c *Conn) FinishWrite() {
	c.pendingBytes = nil
	if c.pendingChain != nil {
		c.pendingChain.Release()
		c.pendingChain = nil
	}
	c.writeOffset = 0
	c.Data = DataStateReading
}

// Touch records read/write activity for the idle-connection reaper.
func (c *Conn) Touch(now time.Time) {
	c.LastActivity = now
}

// IdleSince reports how long the connection has gone without activity.
func (c *Conn) IdleSince(now time.Time) time.Duration {
	return now.Sub(c.LastActivity)
}
