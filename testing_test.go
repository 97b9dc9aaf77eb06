package corecache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/corecache/internal/interfaces"
)

func TestMockStorageSetGet(t *testing.T) {
	m := NewMockStorage()

	require.NoError(t, m.Set([]byte("k"), []byte("v"), 0, 0))
	e, ok := m.Get([]byte("k"))
	require.True(t, ok)
	assert.Equal(t, []byte("v"), e.Value)
	assert.Equal(t, 1, m.CallCounts()["set"])
	assert.Equal(t, 1, m.CallCounts()["get"])
}

func TestMockStorageAddReplace(t *testing.T) {
	m := NewMockStorage()

	res, err := m.Add([]byte("k"), []byte("v1"), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, interfaces.StoreStored, res)

	res, err = m.Add([]byte("k"), []byte("v2"), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, interfaces.StoreNotStored, res)

	res, err = m.Replace([]byte("missing"), []byte("v"), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, interfaces.StoreNotStored, res)
}

func TestMockStorageAppendPrepend(t *testing.T) {
	m := NewMockStorage()
	require.NoError(t, m.Set([]byte("k"), []byte("mid"), 0, 0))

	_, err := m.Append([]byte("k"), []byte("-end"))
	require.NoError(t, err)
	_, err = m.Prepend([]byte("k"), []byte("start-"))
	require.NoError(t, err)

	e, _ := m.Get([]byte("k"))
	assert.Equal(t, "start-mid-end", string(e.Value))
}

func TestMockStorageCAS(t *testing.T) {
	m := NewMockStorage()
	require.NoError(t, m.Set([]byte("k"), []byte("v1"), 0, 0))
	e, _ := m.Get([]byte("k"))

	res, err := m.CAS([]byte("k"), []byte("v2"), 0, 0, e.CAS+1)
	require.NoError(t, err)
	assert.Equal(t, interfaces.CASExists, res)

	res, err = m.CAS([]byte("k"), []byte("v2"), 0, 0, e.CAS)
	require.NoError(t, err)
	assert.Equal(t, interfaces.CASStored, res)

	res, err = m.CAS([]byte("missing"), []byte("v"), 0, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, interfaces.CASNotFound, res)
}

func TestMockStorageDelete(t *testing.T) {
	m := NewMockStorage()
	require.NoError(t, m.Set([]byte("k"), []byte("v"), 0, 0))

	res, err := m.Delete([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, interfaces.DeleteDeleted, res)

	res, err = m.Delete([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, interfaces.DeleteNotFound, res)
}

func TestMockStorageIncrDecr(t *testing.T) {
	m := NewMockStorage()
	require.NoError(t, m.Set([]byte("n"), []byte("10"), 0, 0))

	res, err := m.Incr([]byte("n"), 5)
	require.NoError(t, err)
	assert.Equal(t, uint64(15), res.Value)

	res, err = m.Decr([]byte("n"), 20)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), res.Value) // clamped at zero, never negative

	require.NoError(t, m.Set([]byte("s"), []byte("abc"), 0, 0))
	res, err = m.Incr([]byte("s"), 1)
	require.NoError(t, err)
	assert.True(t, res.NonNumeric)

	res, err = m.Incr([]byte("missing"), 1)
	require.NoError(t, err)
	assert.False(t, res.Found)
}

func TestMockStorageFlushAllAndReset(t *testing.T) {
	m := NewMockStorage()
	require.NoError(t, m.Set([]byte("k"), []byte("v"), 0, 0))

	m.FlushAll(0)
	_, ok := m.Get([]byte("k"))
	assert.False(t, ok)

	require.NoError(t, m.Set([]byte("k2"), []byte("v2"), 0, 0))
	m.Reset()
	assert.Equal(t, 0, m.CallCounts()["set"])
	_, ok = m.Get([]byte("k2"))
	assert.False(t, ok)
}

func TestMockStorageStats(t *testing.T) {
	m := NewMockStorage()
	require.NoError(t, m.Set([]byte("k"), []byte("v"), 0, 0))
	_, _ = m.Get([]byte("k"))

	stats := m.Stats()
	assert.Equal(t, "1", stats["curr_items"])
	assert.Equal(t, "1", stats["get_calls"])
	assert.Equal(t, "1", stats["set_calls"])
}
