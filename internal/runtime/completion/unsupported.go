//go:build !linux

package completion

import (
	"errors"

	corecacheruntime "github.com/ehrlich-b/corecache/internal/runtime"
)

// New reports the completion backend as unavailable outside Linux: no
// other Unix in spec.md's scope exposes io_uring, so non-Linux builds get
// only the readiness backend (spec.md §1's "functional, slower" BSD
// fallback).
func New(corecacheruntime.WorkerConfig) (corecacheruntime.Backend, error) {
	return nil, errors.New("completion: io_uring backend is only available on Linux")
}
