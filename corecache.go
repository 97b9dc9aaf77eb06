// Package corecache provides the server's public API: wiring storage,
// logging, metrics, and the worker runtime into a single running
// instance.
package corecache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ehrlich-b/corecache/internal/config"
	"github.com/ehrlich-b/corecache/internal/conn"
	"github.com/ehrlich-b/corecache/internal/interfaces"
	"github.com/ehrlich-b/corecache/internal/logging"
	"github.com/ehrlich-b/corecache/internal/runtime"
	"github.com/ehrlich-b/corecache/internal/runtime/completion"
	"github.com/ehrlich-b/corecache/internal/runtime/readiness"
	"github.com/ehrlich-b/corecache/internal/storage"
)

// Options configures a Server beyond what Config already carries: the
// collaborators CreateAndServe's single Device struct used to accept
// directly (Logger, Observer), generalized here to a worker-pool server.
type Options struct {
	// Context for cancellation (if nil, uses context.Background()).
	Context context.Context

	// Logger receives structured startup/shutdown/error messages. Falls
	// back to logging.Default() if nil.
	Logger *logging.Logger

	// Observer receives per-command/per-connection metrics. Falls back to
	// a MetricsObserver wrapping a fresh Metrics if nil.
	Observer Observer

	// Storage overrides the default sharded in-memory engine. Tests and
	// embedders that want their own Storage implementation set this.
	Storage interfaces.Storage
}

// Server is a running corecache instance: one Storage engine shared by N
// workers, each with its own listener socket (SO_REUSEPORT), buffer pool,
// connection registry, and I/O backend.
type Server struct {
	cfg        *config.Config
	storage    interfaces.Storage
	metrics    *Metrics
	observer   Observer
	logger     *logging.Logger
	supervisor *runtime.Supervisor

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	started bool
	runErr  error
	done    chan struct{}
}

// New builds a Server from cfg without starting it. Call Run to start
// serving.
func New(cfg *config.Config, options *Options) (*Server, error) {
	if cfg == nil {
		return nil, NewError("corecache.New", ErrCodeInvalidConfig, "nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, WrapError("corecache.New", err)
	}

	if options == nil {
		options = &Options{}
	}
	ctx := options.Context
	if ctx == nil {
		ctx = context.Background()
	}

	logger := options.Logger
	if logger == nil {
		logger = logging.Default()
	}

	metrics := NewMetrics()
	observer := options.Observer
	if observer == nil {
		observer = NewMetricsObserver(metrics)
	}

	store := options.Storage
	if store == nil {
		store = storage.New(storage.Config{
			MaxMemory:    cfg.MaxMemory,
			MaxValueSize: cfg.MaxValueSize,
		})
	}

	proto, err := protocolFor(cfg.Protocol)
	if err != nil {
		return nil, err
	}

	factory := backendFactoryFor(cfg.Runtime)

	supCtx, cancel := context.WithCancel(ctx)
	sup, err := runtime.NewSupervisor(cfg.Workers, logger, func(id int) runtime.WorkerConfig {
		return runtime.WorkerConfig{
			ID:             id,
			Listen:         cfg.Listen,
			Protocol:       proto,
			BufferSize:     int(cfg.BufferSize),
			PoolBuffers:    cfg.MaxConnections * 2,
			MaxConnections: cfg.MaxConnections,
			MaxValueSize:   int(cfg.MaxValueSize),
			BatchSize:      cfg.BatchSize,
			RingSize:       cfg.RingSize,
			IdleTimeout:    time.Duration(cfg.IdleTimeoutSecs) * time.Second,
			Storage:        store,
			Logger:         logger,
			Observer:       observer,
			PinCPU:         cfg.Runtime == config.RuntimeCompletion || cfg.Runtime == config.RuntimeReadiness,
			CPU:            id,
		}
	}, factory)
	if err != nil {
		cancel()
		return nil, WrapError("corecache.New", err)
	}

	return &Server{
		cfg:        cfg,
		storage:    store,
		metrics:    metrics,
		observer:   observer,
		logger:     logger,
		supervisor: sup,
		ctx:        supCtx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}, nil
}

func protocolFor(p config.Protocol) (conn.Protocol, error) {
	switch p {
	case config.ProtocolTextCache:
		return conn.ProtocolTextCache, nil
	case config.ProtocolRESP:
		return conn.ProtocolRESP, nil
	case config.ProtocolPing:
		return conn.ProtocolPing, nil
	case config.ProtocolEcho:
		return conn.ProtocolEcho, nil
	default:
		return 0, NewError("corecache.New", ErrCodeInvalidConfig, fmt.Sprintf("unknown protocol %q", p))
	}
}

func backendFactoryFor(r config.Runtime) runtime.BackendFactory {
	if r == config.RuntimeCompletion {
		return completion.New
	}
	return readiness.New
}

// Run starts every worker and blocks until the server's context is
// cancelled (via Shutdown or the Options.Context passed to New) or a
// worker returns a fatal error.
func (s *Server) Run() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return NewError("corecache.Run", ErrCodeInvalidConfig, "server already started")
	}
	s.started = true
	s.mu.Unlock()

	s.logger.Info("corecache starting", "listen", s.cfg.Listen, "protocol", s.cfg.Protocol, "runtime", s.cfg.Runtime, "workers", s.supervisor.NumWorkers())
	err := s.supervisor.Run(s.ctx)
	s.metrics.Stop()
	s.mu.Lock()
	s.runErr = err
	s.mu.Unlock()
	close(s.done)
	return err
}

// Shutdown cancels the server's context, stopping every worker, and waits
// for Run to return or ctx to expire first.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	select {
	case <-s.done:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.runErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Metrics returns the server's metrics collector. It is never nil; when a
// custom Observer was supplied to New, the server reports to that Observer
// and this collector is not updated.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Storage returns the Storage engine this server dispatches against.
func (s *Server) Storage() interfaces.Storage {
	return s.storage
}

// NumWorkers reports how many workers this server is running.
func (s *Server) NumWorkers() int {
	return s.supervisor.NumWorkers()
}
