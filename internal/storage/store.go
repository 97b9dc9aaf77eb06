// Package storage implements the sharded in-memory key/value engine that
// the request dispatcher invokes as its Storage collaborator.
//
// The sharding strategy is lifted directly from the teacher repo's
// backend/mem.go: fixed shard count, short critical sections, per-shard
// locking so that worker progress is never globally serialized. Where the
// teacher shards by byte offset (a block device has no concept of "key"),
// this engine shards by the xxhash of the key.
package storage

import (
	"container/list"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/ehrlich-b/corecache/internal/constants"
	"github.com/ehrlich-b/corecache/internal/interfaces"
)

// entry is one stored record. lruElem links it into its shard's recency
// list; approxSize feeds the memory accounting used for eviction.
type entry struct {
	key       string
	value     []byte
	flags     uint32
	exptime   int64 // unix seconds, 0 = no expiration
	cas       uint64
	approxSize int64
	lruElem   *list.Element
}

func (e *entry) expired(now int64) bool {
	return e.exptime != 0 && e.exptime <= now
}

// ErrValueTooLarge is returned by any write path whose value (or, for
// Append/Prepend, resulting concatenated value) exceeds the Store's
// configured MaxValueSize. The protocol layer already enforces the same
// ceiling during admission, but spec.md §6.1 requires Storage to enforce
// it independently as defense in depth — a Storage swapped in behind a
// different or buggy protocol-layer check must not silently accept an
// oversized value.
var ErrValueTooLarge = errors.New("storage: value exceeds max_value_size")

func approxSize(key string, value []byte) int64 {
	return int64(len(key)) + int64(len(value)) + 48 // struct + map overhead estimate
}

// shard is one independently-locked bucket of the key space.
type shard struct {
	mu       sync.RWMutex
	items    map[string]*entry
	lru      *list.List // front = most recently used
	usedSize int64
}

func newShard() *shard {
	return &shard{
		items: make(map[string]*entry),
		lru:   list.New(),
	}
}

func (s *shard) touch(e *entry) {
	s.lru.MoveToFront(e.lruElem)
}

func (s *shard) insert(e *entry) {
	e.lruElem = s.lru.PushFront(e)
	s.items[e.key] = e
	s.usedSize += e.approxSize
}

func (s *shard) remove(e *entry) {
	s.lru.Remove(e.lruElem)
	delete(s.items, e.key)
	s.usedSize -= e.approxSize
}

// Store is a sharded, thread-safe key/value engine with LRU eviction,
// lazy TTL expiration, and CAS tokens. It satisfies interfaces.Storage.
type Store struct {
	shards       []*shard
	mask         uint64
	maxMemory    int64
	maxValueSize int64
	casSeq       atomic.Uint64
	nowFunc      func() int64

	statsGets    atomic.Uint64
	statsHits    atomic.Uint64
	statsMisses  atomic.Uint64
	statsSets    atomic.Uint64
	statsDeletes atomic.Uint64
	statsEvicted atomic.Uint64
	statsExpired atomic.Uint64
}

// Config configures a new Store.
type Config struct {
	// NumShards must be a power of two; 0 selects constants.DefaultStorageShards.
	NumShards int
	// MaxMemory bounds the approximate total bytes held before the LRU
	// evicts the least-recently-used entries, spread proportionally across
	// shards. 0 disables the memory-driven eviction (size-unbounded).
	MaxMemory int64
	// MaxValueSize bounds how large a single stored value may be,
	// enforced independently of whatever admission check the protocol
	// layer already performed. 0 disables the check (size-unbounded).
	MaxValueSize int64
}

// New creates a Store per Config.
func New(cfg Config) *Store {
	n := cfg.NumShards
	if n <= 0 {
		n = constants.DefaultStorageShards
	}
	// round up to a power of two
	p := 1
	for p < n {
		p <<= 1
	}
	n = p

	st := &Store{
		shards:       make([]*shard, n),
		mask:         uint64(n - 1),
		maxMemory:    cfg.MaxMemory,
		maxValueSize: cfg.MaxValueSize,
		nowFunc:      func() int64 { return time.Now().Unix() },
	}
	for i := range st.shards {
		st.shards[i] = newShard()
	}
	return st
}

func (s *Store) shardFor(key []byte) *shard {
	h := xxhash.Sum64(key)
	return s.shards[h&s.mask]
}

// checkValueSize reports ErrValueTooLarge if n exceeds the configured
// ceiling. Callers run this before acquiring any shard lock.
func (s *Store) checkValueSize(n int) error {
	if s.maxValueSize > 0 && int64(n) > s.maxValueSize {
		return ErrValueTooLarge
	}
	return nil
}

func (s *Store) shardMemoryBudget() int64 {
	if s.maxMemory <= 0 {
		return 0
	}
	return s.maxMemory / int64(len(s.shards))
}

// evictLocked evicts from the tail of sh's LRU until usedSize is within
// budget. Caller must hold sh.mu for writing.
func (s *Store) evictLocked(sh *shard) {
	budget := s.shardMemoryBudget()
	if budget <= 0 {
		return
	}
	for sh.usedSize > budget {
		tail := sh.lru.Back()
		if tail == nil {
			return
		}
		e := tail.Value.(*entry)
		sh.remove(e)
		s.statsEvicted.Add(1)
	}
}

// Get implements interfaces.Storage.
func (s *Store) Get(key []byte) (interfaces.Entry, bool) {
	s.statsGets.Add(1)
	sh := s.shardFor(key)
	now := s.nowFunc()

	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.items[string(key)]
	if !ok {
		s.statsMisses.Add(1)
		return interfaces.Entry{}, false
	}
	if e.expired(now) {
		sh.remove(e)
		s.statsExpired.Add(1)
		s.statsMisses.Add(1)
		return interfaces.Entry{}, false
	}
	sh.touch(e)
	s.statsHits.Add(1)

	out := make([]byte, len(e.value))
	copy(out, e.value)
	return interfaces.Entry{Value: out, Flags: e.flags, CAS: e.cas, Exptime: e.exptime}, true
}

func (s *Store) nextCAS() uint64 {
	return s.casSeq.Add(1)
}

// Set implements interfaces.Storage.
func (s *Store) Set(key, value []byte, flags uint32, exptime int64) error {
	if err := s.checkValueSize(len(value)); err != nil {
		return err
	}
	s.statsSets.Add(1)
	sh := s.shardFor(key)
	k := string(key)
	v := append([]byte(nil), value...)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	if existing, ok := sh.items[k]; ok {
		sh.usedSize -= existing.approxSize
		existing.value = v
		existing.flags = flags
		existing.exptime = exptime
		existing.cas = s.nextCAS()
		existing.approxSize = approxSize(k, v)
		sh.usedSize += existing.approxSize
		sh.touch(existing)
	} else {
		e := &entry{key: k, value: v, flags: flags, exptime: exptime, cas: s.nextCAS(), approxSize: approxSize(k, v)}
		sh.insert(e)
	}
	s.evictLocked(sh)
	return nil
}

// Add implements interfaces.Storage.
func (s *Store) Add(key, value []byte, flags uint32, exptime int64) (interfaces.StoreResult, error) {
	if err := s.checkValueSize(len(value)); err != nil {
		return interfaces.StoreNotStored, err
	}
	sh := s.shardFor(key)
	k := string(key)
	now := s.nowFunc()

	sh.mu.Lock()
	defer sh.mu.Unlock()

	if e, ok := sh.items[k]; ok && !e.expired(now) {
		return interfaces.StoreNotStored, nil
	} else if ok {
		sh.remove(e)
	}

	v := append([]byte(nil), value...)
	e := &entry{key: k, value: v, flags: flags, exptime: exptime, cas: s.nextCAS(), approxSize: approxSize(k, v)}
	sh.insert(e)
	s.evictLocked(sh)
	return interfaces.StoreStored, nil
}

// Replace implements interfaces.Storage.
func (s *Store) Replace(key, value []byte, flags uint32, exptime int64) (interfaces.StoreResult, error) {
	if err := s.checkValueSize(len(value)); err != nil {
		return interfaces.StoreNotStored, err
	}
	sh := s.shardFor(key)
	k := string(key)
	now := s.nowFunc()

	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.items[k]
	if !ok || e.expired(now) {
		return interfaces.StoreNotStored, nil
	}

	v := append([]byte(nil), value...)
	sh.usedSize -= e.approxSize
	e.value = v
	e.flags = flags
	e.exptime = exptime
	e.cas = s.nextCAS()
	e.approxSize = approxSize(k, v)
	sh.usedSize += e.approxSize
	sh.touch(e)
	s.evictLocked(sh)
	return interfaces.StoreStored, nil
}

func (s *Store) concat(key []byte, value []byte, prepend bool) (interfaces.StoreResult, error) {
	sh := s.shardFor(key)
	k := string(key)
	now := s.nowFunc()

	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.items[k]
	if !ok || e.expired(now) {
		return interfaces.StoreNotStored, nil
	}
	if err := s.checkValueSize(len(e.value) + len(value)); err != nil {
		return interfaces.StoreNotStored, err
	}

	sh.usedSize -= e.approxSize
	if prepend {
		e.value = append(append([]byte(nil), value...), e.value...)
	} else {
		e.value = append(append([]byte(nil), e.value...), value...)
	}
	e.cas = s.nextCAS()
	e.approxSize = approxSize(k, e.value)
	sh.usedSize += e.approxSize
	sh.touch(e)
	s.evictLocked(sh)
	return interfaces.StoreStored, nil
}

// Append implements interfaces.Storage.
func (s *Store) Append(key, value []byte) (interfaces.StoreResult, error) {
	return s.concat(key, value, false)
}

// Prepend implements interfaces.Storage.
func (s *Store) Prepend(key, value []byte) (interfaces.StoreResult, error) {
	return s.concat(key, value, true)
}

// CAS implements interfaces.Storage.
func (s *Store) CAS(key, value []byte, flags uint32, exptime int64, cas uint64) (interfaces.CASResult, error) {
	if err := s.checkValueSize(len(value)); err != nil {
		return interfaces.CASNotFound, err
	}
	sh := s.shardFor(key)
	k := string(key)
	now := s.nowFunc()

	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.items[k]
	if !ok || e.expired(now) {
		return interfaces.CASNotFound, nil
	}
	if e.cas != cas {
		return interfaces.CASExists, nil
	}

	v := append([]byte(nil), value...)
	sh.usedSize -= e.approxSize
	e.value = v
	e.flags = flags
	e.exptime = exptime
	e.cas = s.nextCAS()
	e.approxSize = approxSize(k, v)
	sh.usedSize += e.approxSize
	sh.touch(e)
	s.evictLocked(sh)
	return interfaces.CASStored, nil
}

// Delete implements interfaces.Storage.
func (s *Store) Delete(key []byte) (interfaces.DeleteResult, error) {
	s.statsDeletes.Add(1)
	sh := s.shardFor(key)
	k := string(key)
	now := s.nowFunc()

	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.items[k]
	if !ok {
		return interfaces.DeleteNotFound, nil
	}
	wasExpired := e.expired(now)
	sh.remove(e)
	if wasExpired {
		return interfaces.DeleteNotFound, nil
	}
	return interfaces.DeleteDeleted, nil
}

func (s *Store) incrDecr(key []byte, delta uint64, decr bool) (interfaces.IncrResult, error) {
	sh := s.shardFor(key)
	k := string(key)
	now := s.nowFunc()

	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.items[k]
	if !ok || e.expired(now) {
		return interfaces.IncrResult{Found: false}, nil
	}

	cur, valid := parseUint(e.value)
	if !valid {
		return interfaces.IncrResult{Found: true, NonNumeric: true}, nil
	}

	var next uint64
	if decr {
		if delta > cur {
			next = 0
		} else {
			next = cur - delta
		}
	} else {
		next = cur + delta
	}

	newVal := []byte(formatUint(next))
	sh.usedSize -= e.approxSize
	e.value = newVal
	e.cas = s.nextCAS()
	e.approxSize = approxSize(k, newVal)
	sh.usedSize += e.approxSize
	sh.touch(e)

	return interfaces.IncrResult{Value: next, Found: true}, nil
}

// Incr implements interfaces.Storage.
func (s *Store) Incr(key []byte, delta uint64) (interfaces.IncrResult, error) {
	return s.incrDecr(key, delta, false)
}

// Decr implements interfaces.Storage.
func (s *Store) Decr(key []byte, delta uint64) (interfaces.IncrResult, error) {
	return s.incrDecr(key, delta, true)
}

// FlushAll implements interfaces.Storage. delay of 0 flushes immediately;
// a positive delay caps every item's expiration at now+delay, walking
// every item of every shard under its lock; the items are then removed
// lazily once that time has passed, like memcached's delayed flush_all.
func (s *Store) FlushAll(delay time.Duration) {
	if delay <= 0 {
		for _, sh := range s.shards {
			sh.mu.Lock()
			sh.items = make(map[string]*entry)
			sh.lru = list.New()
			sh.usedSize = 0
			sh.mu.Unlock()
		}
		return
	}

	cutoff := s.nowFunc() + int64(delay/time.Second)
	for _, sh := range s.shards {
		sh.mu.Lock()
		for _, e := range sh.items {
			if e.exptime == 0 || e.exptime > cutoff {
				e.exptime = cutoff
			}
		}
		sh.mu.Unlock()
	}
}

// Stats implements interfaces.Storage.
func (s *Store) Stats() map[string]string {
	var itemCount, usedBytes int64
	for _, sh := range s.shards {
		sh.mu.RLock()
		itemCount += int64(len(sh.items))
		usedBytes += sh.usedSize
		sh.mu.RUnlock()
	}
	return map[string]string{
		"curr_items":    formatUint(uint64(itemCount)),
		"bytes":         formatUint(uint64(usedBytes)),
		"cmd_get":       formatUint(s.statsGets.Load()),
		"get_hits":      formatUint(s.statsHits.Load()),
		"get_misses":    formatUint(s.statsMisses.Load()),
		"cmd_set":       formatUint(s.statsSets.Load()),
		"delete_hits":   formatUint(s.statsDeletes.Load()),
		"evictions":     formatUint(s.statsEvicted.Load()),
		"expired_unfetched": formatUint(s.statsExpired.Load()),
	}
}

var _ interfaces.Storage = (*Store)(nil)
