package corecache

import "github.com/ehrlich-b/corecache/internal/constants"

// Re-exported defaults for callers embedding corecache as a library rather
// than driving it through cmd/corecache-server's CLI, the same
// re-export-from-internal pattern the teacher's root constants.go uses.
const (
	DefaultBufferSize              = constants.DefaultBufferSize
	DefaultMaxConnectionsPerWorker = constants.DefaultMaxConnectionsPerWorker
	DefaultMaxValueSize            = constants.DefaultMaxValueSize
	DefaultRingSize                = constants.DefaultRingSize
	DefaultBatchSize               = constants.DefaultBatchSize
	DefaultMaxMemory               = constants.DefaultMaxMemory
	MaxKeyLength                   = constants.MaxKeyLength
	MaxMultiGetKeys                = constants.MaxMultiGetKeys
	DefaultStorageShards           = constants.DefaultStorageShards
	Version                        = constants.Version
)

// DefaultIdleTimeout closes connections that sit in Reading with no byte
// progress for this long.
var DefaultIdleTimeout = constants.DefaultIdleTimeout
