package bufpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolAcquireReleaseRoundTrip(t *testing.T) {
	p := NewPool(4, 16)
	assert.Equal(t, 4, p.Cap())
	assert.Equal(t, 16, p.BufSize())
	assert.Equal(t, 4, p.Available())

	idx, ok := p.Acquire()
	require.True(t, ok)
	assert.Equal(t, 3, p.Available())

	p.Release(idx)
	assert.Equal(t, 4, p.Available())
}

func TestPoolExhaustion(t *testing.T) {
	p := NewPool(2, 8)

	_, ok1 := p.Acquire()
	_, ok2 := p.Acquire()
	_, ok3 := p.Acquire()

	assert.True(t, ok1)
	assert.True(t, ok2)
	assert.False(t, ok3, "pool never grows past its configured capacity")
}

func TestPoolDoubleReleasePanics(t *testing.T) {
	p := NewPool(1, 8)
	idx, ok := p.Acquire()
	require.True(t, ok)

	p.Release(idx)
	assert.Panics(t, func() { p.Release(idx) })
}

func TestPoolNeverAllocatesBeyondCapacity(t *testing.T) {
	p := NewPool(8, 1024)
	acquired := make([]uint32, 0, 8)
	for {
		idx, ok := p.Acquire()
		if !ok {
			break
		}
		acquired = append(acquired, idx)
	}
	assert.Len(t, acquired, 8)
	for _, idx := range acquired {
		p.Release(idx)
	}
	assert.Equal(t, 8, p.Available())
}
