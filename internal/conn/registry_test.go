package conn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryAcquireRelease(t *testing.T) {
	r := NewRegistry(2)
	c1 := NewConn(10, ProtocolTextCache)
	c2 := NewConn(11, ProtocolTextCache)

	idx1, ok := r.Acquire(c1)
	require.True(t, ok)
	idx2, ok := r.Acquire(c2)
	require.True(t, ok)
	assert.Equal(t, 2, r.Len())

	_, ok = r.Acquire(NewConn(12, ProtocolTextCache))
	assert.False(t, ok, "registry is at capacity and must refuse, not grow")

	r.Release(idx1)
	assert.Equal(t, 1, r.Len())

	idx3, ok := r.Acquire(NewConn(13, ProtocolTextCache))
	require.True(t, ok, "a released slot must be reusable")
	assert.Equal(t, idx1, idx3)

	assert.Equal(t, c2, r.Get(idx2))
}

func TestRegistryDoubleReleasePanics(t *testing.T) {
	r := NewRegistry(1)
	idx, ok := r.Acquire(NewConn(1, ProtocolTextCache))
	require.True(t, ok)

	r.Release(idx)
	assert.Panics(t, func() { r.Release(idx) })
}

func TestRegistryEach(t *testing.T) {
	r := NewRegistry(4)
	c1 := NewConn(1, ProtocolTextCache)
	c2 := NewConn(2, ProtocolTextCache)
	r.Acquire(c1)
	r.Acquire(c2)

	seen := 0
	r.Each(func(idx uint32, c *Conn) { seen++ })
	assert.Equal(t, 2, seen)
}
