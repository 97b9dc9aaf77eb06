package bufpool

import (
	"golang.org/x/sys/unix"
)

// Chain is an ordered sequence of pool buffers that together form one
// logical byte stream — a value too large to fit in a single pool buffer,
// or a response being assembled incrementally. It is the same segmented
// idea as Jille-throughputbuffer's Buffer (a list of chunks rather than one
// contiguous allocation, so a large value never forces an oversized
// one-off allocation outside the pool), adapted to index into a fixed
// bufpool.Pool instead of holding independently refcounted chunks.
type Chain struct {
	pool    *Pool
	indices []uint32
	lens    []int // bytes used in the corresponding buffer
	maxLen  int   // cap on len(indices); 0 means unbounded
}

// NewChain creates an empty chain drawing buffers from pool. maxChunks
// bounds how many buffers the chain may hold at once; callers size this
// from a configured max value size (ceil(maxValueSize/bufSize)) so a
// single oversized value can never monopolize the whole pool.
func NewChain(pool *Pool, maxChunks int) *Chain {
	return &Chain{pool: pool, maxLen: maxChunks}
}

// Len returns the total number of bytes held across all chunks.
func (c *Chain) Len() int {
	total := 0
	for _, n := range c.lens {
		total += n
	}
	return total
}

// NumChunks returns how many pool buffers the chain currently holds.
func (c *Chain) NumChunks() int {
	return len(c.indices)
}

// Append copies data into the chain, acquiring new buffers from the pool
// as needed. It returns false without partially appending if the chain
// would need more buffers than maxLen allows or the pool is exhausted.
func (c *Chain) Append(data []byte) bool {
	if c.maxLen > 0 {
		need := c.spaceNeeded(len(data))
		if len(c.indices)+need > c.maxLen {
			return false
		}
	}

	prevTail, prevLen := len(c.lens)-1, 0
	if prevTail >= 0 {
		prevLen = c.lens[prevTail]
	}
	acquired := make([]uint32, 0, 4)
	ok := true
	for len(data) > 0 {
		var idx uint32
		var fresh bool
		if n := len(c.lens); n > 0 && c.lens[n-1] < c.pool.BufSize() {
			idx = c.indices[n-1]
			fresh = false
		} else {
			var acquireOK bool
			idx, acquireOK = c.pool.Acquire()
			if !acquireOK {
				ok = false
				break
			}
			acquired = append(acquired, idx)
			fresh = true
		}

		buf := c.pool.Bytes(idx)
		var offset int
		if fresh {
			offset = 0
			c.indices = append(c.indices, idx)
			c.lens = append(c.lens, 0)
		} else {
			offset = c.lens[len(c.lens)-1]
		}

		room := len(buf) - offset
		n := len(data)
		if n > room {
			n = room
		}
		copy(buf[offset:offset+n], data[:n])
		c.lens[len(c.lens)-1] = offset + n
		data = data[n:]
	}

	if !ok {
		for i := len(acquired) - 1; i >= 0; i-- {
			c.removeTrailing(acquired[i])
		}
		if prevTail >= 0 {
			c.lens[prevTail] = prevLen
		}
		return false
	}
	return true
}

// removeTrailing drops a just-acquired, now-unwanted buffer from the tail
// of the chain and returns it to the pool. Used to unwind a partially
// failed Append.
func (c *Chain) removeTrailing(idx uint32) {
	n := len(c.indices)
	if n == 0 || c.indices[n-1] != idx {
		return
	}
	c.indices = c.indices[:n-1]
	c.lens = c.lens[:n-1]
	c.pool.Release(idx)
}

func (c *Chain) spaceNeeded(n int) int {
	bufSize := c.pool.BufSize()
	if bufSize == 0 {
		return 0
	}
	room := 0
	if last := len(c.lens); last > 0 {
		room = bufSize - c.lens[last-1]
	}
	if n <= room {
		return 0
	}
	remaining := n - room
	return (remaining + bufSize - 1) / bufSize
}

// Chunks returns the chain's contents as a slice of byte slices, each
// referencing pool-owned memory directly (no copy). The returned slices
// are valid only until the chain is released.
func (c *Chain) Chunks() [][]byte {
	out := make([][]byte, len(c.indices))
	for i, idx := range c.indices {
		out[i] = c.pool.Bytes(idx)[:c.lens[i]]
	}
	return out
}

// AsContiguous copies the chain's contents into a single newly allocated
// slice. Use sparingly — it defeats the purpose of chunked storage for
// large values — but it is the simplest path for callers that need a
// single []byte (e.g. parsing a small command that happened to straddle a
// chunk boundary).
func (c *Chain) AsContiguous() []byte {
	out := make([]byte, 0, c.Len())
	for _, chunk := range c.Chunks() {
		out = append(out, chunk...)
	}
	return out
}

// WriteTo writes the chain's chunks to fd using a single scatter-gather
// writev(2) call where possible, the same approach
// Jille-throughputbuffer's Buffer.WriteTo takes to avoid an intermediate
// copy when flushing a multi-chunk value to a socket.
func (c *Chain) WriteTo(fd int) (int64, error) {
	chunks := c.Chunks()
	if len(chunks) == 0 {
		return 0, nil
	}

	var total int64
	for len(chunks) > 0 {
		n, err := unix.Writev(fd, chunks)
		if n > 0 {
			total += int64(n)
			chunks = dropWritten(chunks, n)
		}
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				continue
			}
			return total, err
		}
		if n == 0 {
			break
		}
	}
	return total, nil
}

func dropWritten(chunks [][]byte, n int) [][]byte {
	for n > 0 && len(chunks) > 0 {
		if n >= len(chunks[0]) {
			n -= len(chunks[0])
			chunks = chunks[1:]
		} else {
			chunks[0] = chunks[0][n:]
			n = 0
		}
	}
	return chunks
}

// Release returns every buffer the chain holds back to its pool and
// resets the chain to empty. The chain may be reused after Release.
func (c *Chain) Release() {
	for _, idx := range c.indices {
		c.pool.Release(idx)
	}
	c.indices = c.indices[:0]
	c.lens = c.lens[:0]
}
