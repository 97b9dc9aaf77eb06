package corecache

import (
	"sync"
	"time"

	"github.com/ehrlich-b/corecache/internal/interfaces"
)

// MockStorage provides a mock implementation of interfaces.Storage for
// testing the protocol/dispatch layers without the real sharded engine.
// It tracks method call counts for assertions, the same shape the
// teacher's MockBackend gives Read/Write/Flush/Sync.
type MockStorage struct {
	mu   sync.RWMutex
	data map[string]interfaces.Entry

	casSeq uint64

	getCalls    int
	setCalls    int
	deleteCalls int
	casCalls    int
	incrCalls   int
	flushCalls  int
}

// NewMockStorage creates an empty mock storage instance.
func NewMockStorage() *MockStorage {
	return &MockStorage{data: make(map[string]interfaces.Entry)}
}

func (m *MockStorage) nextCAS() uint64 {
	m.casSeq++
	return m.casSeq
}

// Get implements interfaces.Storage.
func (m *MockStorage) Get(key []byte) (interfaces.Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	e, ok := m.data[string(key)]
	return e, ok
}

// Set implements interfaces.Storage.
func (m *MockStorage) Set(key, value []byte, flags uint32, exptime int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCalls++
	m.data[string(key)] = interfaces.Entry{
		Value: append([]byte(nil), value...), Flags: flags, Exptime: exptime, CAS: m.nextCAS(),
	}
	return nil
}

// Add implements interfaces.Storage.
func (m *MockStorage) Add(key, value []byte, flags uint32, exptime int64) (interfaces.StoreResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCalls++
	if _, exists := m.data[string(key)]; exists {
		return interfaces.StoreNotStored, nil
	}
	m.data[string(key)] = interfaces.Entry{
		Value: append([]byte(nil), value...), Flags: flags, Exptime: exptime, CAS: m.nextCAS(),
	}
	return interfaces.StoreStored, nil
}

// Replace implements interfaces.Storage.
func (m *MockStorage) Replace(key, value []byte, flags uint32, exptime int64) (interfaces.StoreResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCalls++
	if _, exists := m.data[string(key)]; !exists {
		return interfaces.StoreNotStored, nil
	}
	m.data[string(key)] = interfaces.Entry{
		Value: append([]byte(nil), value...), Flags: flags, Exptime: exptime, CAS: m.nextCAS(),
	}
	return interfaces.StoreStored, nil
}

func (m *MockStorage) concat(key, value []byte, prepend bool) (interfaces.StoreResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCalls++
	e, ok := m.data[string(key)]
	if !ok {
		return interfaces.StoreNotStored, nil
	}
	var combined []byte
	if prepend {
		combined = append(append([]byte(nil), value...), e.Value...)
	} else {
		combined = append(append([]byte(nil), e.Value...), value...)
	}
	e.Value = combined
	e.CAS = m.nextCAS()
	m.data[string(key)] = e
	return interfaces.StoreStored, nil
}

// Append implements interfaces.Storage.
func (m *MockStorage) Append(key, value []byte) (interfaces.StoreResult, error) {
	return m.concat(key, value, false)
}

// Prepend implements interfaces.Storage.
func (m *MockStorage) Prepend(key, value []byte) (interfaces.StoreResult, error) {
	return m.concat(key, value, true)
}

// CAS implements interfaces.Storage.
func (m *MockStorage) CAS(key, value []byte, flags uint32, exptime int64, cas uint64) (interfaces.CASResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.casCalls++
	e, ok := m.data[string(key)]
	if !ok {
		return interfaces.CASNotFound, nil
	}
	if e.CAS != cas {
		return interfaces.CASExists, nil
	}
	m.data[string(key)] = interfaces.Entry{
		Value: append([]byte(nil), value...), Flags: flags, Exptime: exptime, CAS: m.nextCAS(),
	}
	return interfaces.CASStored, nil
}

// Delete implements interfaces.Storage.
func (m *MockStorage) Delete(key []byte) (interfaces.DeleteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls++
	if _, ok := m.data[string(key)]; !ok {
		return interfaces.DeleteNotFound, nil
	}
	delete(m.data, string(key))
	return interfaces.DeleteDeleted, nil
}

func (m *MockStorage) incrDecr(key []byte, delta uint64, decr bool) (interfaces.IncrResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.incrCalls++
	e, ok := m.data[string(key)]
	if !ok {
		return interfaces.IncrResult{Found: false}, nil
	}
	var n uint64
	for _, c := range e.Value {
		if c < '0' || c > '9' {
			return interfaces.IncrResult{Found: true, NonNumeric: true}, nil
		}
	}
	for _, c := range e.Value {
		n = n*10 + uint64(c-'0')
	}
	if decr {
		if delta > n {
			n = 0
		} else {
			n -= delta
		}
	} else {
		n += delta
	}
	e.Value = []byte(itoa(n))
	e.CAS = m.nextCAS()
	m.data[string(key)] = e
	return interfaces.IncrResult{Value: n, Found: true}, nil
}

func itoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// Incr implements interfaces.Storage.
func (m *MockStorage) Incr(key []byte, delta uint64) (interfaces.IncrResult, error) {
	return m.incrDecr(key, delta, false)
}

// Decr implements interfaces.Storage.
func (m *MockStorage) Decr(key []byte, delta uint64) (interfaces.IncrResult, error) {
	return m.incrDecr(key, delta, true)
}

// FlushAll implements interfaces.Storage. delay is ignored: the mock
// flushes immediately regardless of a scheduled delay, since tests don't
// need real deferred-flush timing.
func (m *MockStorage) FlushAll(delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushCalls++
	m.data = make(map[string]interfaces.Entry)
}

// Stats implements interfaces.Storage.
func (m *MockStorage) Stats() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]string{
		"curr_items": itoa(uint64(len(m.data))),
		"get_calls":  itoa(uint64(m.getCalls)),
		"set_calls":  itoa(uint64(m.setCalls)),
	}
}

// CallCounts returns how many times each operation group has been invoked,
// for test assertions.
func (m *MockStorage) CallCounts() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]int{
		"get":    m.getCalls,
		"set":    m.setCalls,
		"delete": m.deleteCalls,
		"cas":    m.casCalls,
		"incr":   m.incrCalls,
		"flush":  m.flushCalls,
	}
}

// Reset clears all stored data and call counters.
func (m *MockStorage) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string]interfaces.Entry)
	m.getCalls, m.setCalls, m.deleteCalls, m.casCalls, m.incrCalls, m.flushCalls = 0, 0, 0, 0, 0, 0
}

var _ interfaces.Storage = (*MockStorage)(nil)
