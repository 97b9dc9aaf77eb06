package conn

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPhaseTransitions(t *testing.T) {
	c := NewConn(3, ProtocolTextCache)
	assert.Equal(t, PhaseAccepting, c.GetPhase())

	c.Transition(PhaseEstablished)
	assert.Equal(t, PhaseEstablished, c.GetPhase())

	c.Transition(PhaseClosing)
	assert.Equal(t, PhaseClosing, c.GetPhase())
}

func TestInvalidTransitionPanics(t *testing.T) {
	c := NewConn(3, ProtocolTextCache)
	c.Transition(PhaseEstablished)
	c.Transition(PhaseClosing)

	assert.Panics(t, func() { c.Transition(PhaseEstablished) })
}

func TestSkippingEstablishedToClosingIsValid(t *testing.T) {
	// A connection can be refused/closed before it is ever Established.
	c := NewConn(3, ProtocolTextCache)
	assert.NotPanics(t, func() { c.Transition(PhaseClosing) })
}

func TestAccumBufferLifecycle(t *testing.T) {
	c := NewConn(3, ProtocolRESP)
	_, _, ok := c.AccumBuffer()
	assert.False(t, ok)

	c.SetAccumBuffer(7, 42)
	idx, fill, ok := c.AccumBuffer()
	assert.True(t, ok)
	assert.Equal(t, uint32(7), idx)
	assert.Equal(t, 42, fill)

	c.ClearAccumBuffer()
	_, _, ok = c.AccumBuffer()
	assert.False(t, ok)
}

func TestPendingBytesLifecycle(t *testing.T) {
	c := NewConn(3, ProtocolPing)
	c.SetPendingBytes([]byte("+PONG\r\n"))
	assert.Equal(t, DataStateWriting, c.Data)
	assert.Equal(t, []byte("+PONG\r\n"), c.PendingBytes())

	c.AdvanceWrite(3)
	assert.Equal(t, 3, c.WriteOffset())

	c.FinishWrite()
	assert.Equal(t, DataStateReading, c.Data)
	assert.Nil(t, c.PendingBytes())
}
