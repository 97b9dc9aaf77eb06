package runtime

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/ehrlich-b/corecache/internal/logging"
)

// Supervisor spawns N workers bound to the same address and runs them
// until one exits or ctx is cancelled, the same top-level shape as the
// teacher's CreateAndServe spawning one queue.Runner per queue and tearing
// all of them down if any one fails to start.
type Supervisor struct {
	workers []*Worker
	logger  *logging.Logger
}

// NewSupervisor builds n workers, each configured by cfgFn(id) and backed
// by factory. n<=0 selects one worker per logical CPU.
func NewSupervisor(n int, logger *logging.Logger, cfgFn func(id int) WorkerConfig, factory BackendFactory) (*Supervisor, error) {
	if n <= 0 {
		n = runtime.NumCPU()
	}

	workers := make([]*Worker, 0, n)
	for i := 0; i < n; i++ {
		cfg := cfgFn(i)
		w, err := NewWorker(cfg, factory)
		if err != nil {
			return nil, fmt.Errorf("runtime: supervisor: %w", err)
		}
		workers = append(workers, w)
	}

	return &Supervisor{workers: workers, logger: logger}, nil
}

// Run starts every worker and blocks until ctx is cancelled or any single
// worker returns a fatal error, at which point every other worker is
// cancelled too and Run returns the first error observed (spec.md §7:
// "Fatal worker error ... bubble to the supervisor, which may terminate
// the process").
func (s *Supervisor) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make(chan error, len(s.workers))
	var wg sync.WaitGroup
	for _, w := range s.workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			errs <- w.Run(ctx)
		}(w)
	}

	go func() {
		wg.Wait()
		close(errs)
	}()

	var firstErr error
	for err := range errs {
		if err != nil && firstErr == nil {
			firstErr = err
			if s.logger != nil {
				s.logger.Error("worker exited with error, shutting down", "err", err)
			}
			cancel()
		}
	}
	return firstErr
}

// NumWorkers reports how many workers this supervisor owns.
func (s *Supervisor) NumWorkers() int {
	return len(s.workers)
}
