// Package interfaces provides internal interface definitions for corecache.
// These are separate from the public interfaces to avoid circular imports
// between the root package and internal packages.
package interfaces

import "time"

// Entry is the value record returned by a successful Get/Gets.
type Entry struct {
	Value   []byte
	Flags   uint32
	CAS     uint64
	Exptime int64 // unix seconds; 0 means no expiration
}

// CASResult enumerates the outcome of a compare-and-swap store.
type CASResult int

const (
	CASStored CASResult = iota
	CASExists
	CASNotFound
)

// DeleteResult enumerates the outcome of a delete.
type DeleteResult int

const (
	DeleteDeleted DeleteResult = iota
	DeleteNotFound
)

// StoreResult enumerates the outcome of a set/add/replace/append/prepend.
type StoreResult int

const (
	StoreStored StoreResult = iota
	StoreNotStored
)

// IncrResult carries the outcome of an incr/decr.
type IncrResult struct {
	Value     uint64
	Found     bool
	NonNumeric bool
}

// Storage is the collaborator the request dispatcher invokes. Spec.md §6.1
// keeps its eviction policy, expiration, and internal concurrency opaque;
// this repository's internal/storage package is one concrete, synchronous,
// thread-safe implementation of it.
type Storage interface {
	Get(key []byte) (Entry, bool)
	Set(key, value []byte, flags uint32, exptime int64) error
	Add(key, value []byte, flags uint32, exptime int64) (StoreResult, error)
	Replace(key, value []byte, flags uint32, exptime int64) (StoreResult, error)
	Append(key, value []byte) (StoreResult, error)
	Prepend(key, value []byte) (StoreResult, error)
	CAS(key, value []byte, flags uint32, exptime int64, cas uint64) (CASResult, error)
	Delete(key []byte) (DeleteResult, error)
	Incr(key []byte, delta uint64) (IncrResult, error)
	Decr(key []byte, delta uint64) (IncrResult, error)
	FlushAll(delay time.Duration)
	Stats() map[string]string
}

// Logger interface for optional logging.
type Logger interface {
	Printf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// Observer interface for metrics collection. Implementations must be
// thread-safe: methods are called directly from worker event loops.
type Observer interface {
	ObserveCommand(op string, latencyNs uint64, success bool)
	ObserveBytesIn(n uint64)
	ObserveBytesOut(n uint64)
	ObserveConnOpened()
	ObserveConnClosed()
}
