package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/corecache/internal/interfaces"
)

func TestSetGetRoundTrip(t *testing.T) {
	st := New(Config{})
	require.NoError(t, st.Set([]byte("foo"), []byte("bar"), 0, 0))

	e, ok := st.Get([]byte("foo"))
	require.True(t, ok)
	assert.Equal(t, []byte("bar"), e.Value)

	_, ok = st.Get([]byte("missing"))
	assert.False(t, ok)
}

func TestCASContention(t *testing.T) {
	st := New(Config{})
	require.NoError(t, st.Set([]byte("foo"), []byte("bar"), 0, 0))

	e, ok := st.Get([]byte("foo"))
	require.True(t, ok)
	tok := e.CAS

	res, err := st.CAS([]byte("foo"), []byte("baz"), 0, 0, tok)
	require.NoError(t, err)
	assert.Equal(t, interfaces.CASStored, res)

	res, err = st.CAS([]byte("foo"), []byte("qux"), 0, 0, tok)
	require.NoError(t, err)
	assert.Equal(t, interfaces.CASExists, res)
}

func TestAddReplace(t *testing.T) {
	st := New(Config{})

	res, err := st.Add([]byte("k"), []byte("v1"), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, interfaces.StoreStored, res)

	res, err = st.Add([]byte("k"), []byte("v2"), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, interfaces.StoreNotStored, res)

	res, err = st.Replace([]byte("nope"), []byte("v"), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, interfaces.StoreNotStored, res)
}

func TestAppendPrepend(t *testing.T) {
	st := New(Config{})
	require.NoError(t, st.Set([]byte("k"), []byte("mid"), 0, 0))

	_, err := st.Append([]byte("k"), []byte("-end"))
	require.NoError(t, err)
	_, err = st.Prepend([]byte("k"), []byte("start-"))
	require.NoError(t, err)

	e, ok := st.Get([]byte("k"))
	require.True(t, ok)
	assert.Equal(t, "start-mid-end", string(e.Value))
}

func TestDeleteIdempotent(t *testing.T) {
	st := New(Config{})
	require.NoError(t, st.Set([]byte("k"), []byte("v"), 0, 0))

	res, err := st.Delete([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, interfaces.DeleteDeleted, res)

	res, err = st.Delete([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, interfaces.DeleteNotFound, res)
}

func TestIncrDecr(t *testing.T) {
	st := New(Config{})
	require.NoError(t, st.Set([]byte("n"), []byte("10"), 0, 0))

	res, err := st.Incr([]byte("n"), 5)
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, uint64(15), res.Value)

	res, err = st.Decr([]byte("n"), 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), res.Value) // clamps at zero, never underflows

	require.NoError(t, st.Set([]byte("s"), []byte("not-a-number"), 0, 0))
	res, err = st.Incr([]byte("s"), 1)
	require.NoError(t, err)
	assert.True(t, res.NonNumeric)
}

func TestExpiration(t *testing.T) {
	st := New(Config{})
	fakeNow := int64(1000)
	st.nowFunc = func() int64 { return fakeNow }

	require.NoError(t, st.Set([]byte("k"), []byte("v"), 0, fakeNow+1))
	_, ok := st.Get([]byte("k"))
	require.True(t, ok)

	fakeNow += 2
	_, ok = st.Get([]byte("k"))
	assert.False(t, ok)
}

func TestFlushAllImmediate(t *testing.T) {
	st := New(Config{})
	require.NoError(t, st.Set([]byte("a"), []byte("1"), 0, 0))
	require.NoError(t, st.Set([]byte("b"), []byte("2"), 0, 0))

	st.FlushAll(0)

	_, ok := st.Get([]byte("a"))
	assert.False(t, ok)
	_, ok = st.Get([]byte("b"))
	assert.False(t, ok)
}

func TestEvictionUnderMemoryPressure(t *testing.T) {
	st := New(Config{NumShards: 1, MaxMemory: 256})

	for i := 0; i < 20; i++ {
		require.NoError(t, st.Set([]byte{byte(i)}, make([]byte, 32), 0, 0))
	}

	stats := st.Stats()
	assert.NotEqual(t, "0", stats["evictions"])
}

func TestMaxValueSizeRejectsOversizedWrites(t *testing.T) {
	st := New(Config{MaxValueSize: 8})

	err := st.Set([]byte("k"), make([]byte, 9), 0, 0)
	assert.ErrorIs(t, err, ErrValueTooLarge)

	_, err = st.Add([]byte("k"), make([]byte, 9), 0, 0)
	assert.ErrorIs(t, err, ErrValueTooLarge)

	_, err = st.Replace([]byte("k"), make([]byte, 9), 0, 0)
	assert.ErrorIs(t, err, ErrValueTooLarge)

	require.NoError(t, st.Set([]byte("k"), []byte("v"), 0, 0))
	e, ok := st.Get([]byte("k"))
	require.True(t, ok)
	cas := e.CAS

	_, err = st.CAS([]byte("k"), make([]byte, 9), 0, 0, cas)
	assert.ErrorIs(t, err, ErrValueTooLarge)

	_, err = st.Append([]byte("k"), make([]byte, 9))
	assert.ErrorIs(t, err, ErrValueTooLarge)

	_, err = st.Prepend([]byte("k"), make([]byte, 9))
	assert.ErrorIs(t, err, ErrValueTooLarge)

	// a within-budget write still succeeds
	require.NoError(t, st.Set([]byte("k"), make([]byte, 8), 0, 0))
}

func TestFlushAllDelayed(t *testing.T) {
	st := New(Config{})
	fakeNow := int64(1000)
	st.nowFunc = func() int64 { return fakeNow }

	require.NoError(t, st.Set([]byte("k"), []byte("v"), 0, 0))
	st.FlushAll(2 * time.Second)

	_, ok := st.Get([]byte("k"))
	require.True(t, ok, "not yet expired")

	fakeNow += 3
	_, ok = st.Get([]byte("k"))
	assert.False(t, ok, "expired after delay elapses")
}
