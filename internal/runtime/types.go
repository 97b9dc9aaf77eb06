// Package runtime holds the worker/supervisor scaffolding shared by both
// I/O backends (internal/runtime/readiness, internal/runtime/completion):
// the per-worker configuration, the Backend interface each event loop
// implements, CPU pinning, and the SO_REUSEPORT listener helper that lets
// N workers share one bind address the way the teacher spawns N queue
// runners against one ublk char device (internal/queue/runner.go).
package runtime

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/ehrlich-b/corecache/internal/conn"
	"github.com/ehrlich-b/corecache/internal/interfaces"
	"github.com/ehrlich-b/corecache/internal/logging"
)

// WorkerConfig is everything one worker needs to run its event loop,
// independent of which backend (readiness or completion) implements it.
type WorkerConfig struct {
	ID int

	Listen   string
	Protocol conn.Protocol

	BufferSize     int
	PoolBuffers    int
	MaxConnections int
	MaxValueSize   int
	BatchSize      int
	RingSize       int
	IdleTimeout    time.Duration

	Storage  interfaces.Storage
	Logger   *logging.Logger
	Observer interfaces.Observer

	PinCPU bool
	CPU    int
}

// MaxChainBuffers is how many pool buffers a single large-value BufferChain
// may hold at once, per spec.md §4.2's ceil(max_value_size/buffer_size)
// bound.
func (c WorkerConfig) MaxChainBuffers() int {
	if c.BufferSize <= 0 {
		return 0
	}
	return (c.MaxValueSize + c.BufferSize - 1) / c.BufferSize
}

// Backend is one I/O engine's event loop. Run blocks until ctx is
// cancelled or a fatal error occurs; it owns accept, read, parse,
// dispatch, and write for every connection on this worker.
type Backend interface {
	Run(ctx context.Context) error
}

// BackendFactory constructs a Backend for one worker's configuration.
// corecache.New (via backendFactoryFor) selects readiness.New or completion.New based on
// the configured runtime so this package never imports either backend
// directly (avoids a readiness/completion <-> runtime import cycle).
type BackendFactory func(WorkerConfig) (Backend, error)

// Worker owns one backend instance, pinned to one CPU the way the
// teacher's queue.Runner.ioLoop pins itself via runtime.LockOSThread +
// unix.SchedSetaffinity before touching its ring.
type Worker struct {
	cfg     WorkerConfig
	backend Backend
}

// NewWorker builds the backend for cfg via factory.
func NewWorker(cfg WorkerConfig, factory BackendFactory) (*Worker, error) {
	b, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("runtime: worker %d: %w", cfg.ID, err)
	}
	return &Worker{cfg: cfg, backend: b}, nil
}

// Run pins the calling goroutine to an OS thread (and, if configured, to a
// specific CPU) and runs the worker's backend until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if w.cfg.PinCPU {
		if err := pinCurrentThread(w.cfg.CPU); err != nil && w.cfg.Logger != nil {
			w.cfg.Logger.Warn("failed to set CPU affinity", "worker", w.cfg.ID, "cpu", w.cfg.CPU, "err", err)
		}
	}

	if w.cfg.Logger != nil {
		w.cfg.Logger.Info("worker starting", "worker", w.cfg.ID, "listen", w.cfg.Listen, "protocol", w.cfg.Protocol)
	}
	return w.backend.Run(ctx)
}
