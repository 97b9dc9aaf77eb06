// Package config parses the server's CLI surface. It mirrors the
// teacher's cmd/ublk-mem/main.go flag layout (a flat flag.FlagSet, no
// subcommands) but replaces its hand-rolled parseSize/formatSize helpers
// with github.com/dustin/go-humanize, which the pack already pulls in
// for exactly this "64M"/"1G"-style size parsing.
package config

import (
	"flag"
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/ehrlich-b/corecache/internal/constants"
)

// Protocol identifies which wire dialect every connection on this process
// speaks, selected once at startup per spec.md §6.3.
type Protocol string

const (
	ProtocolTextCache Protocol = "text-cache"
	ProtocolRESP      Protocol = "resp"
	ProtocolPing      Protocol = "ping"
	ProtocolEcho      Protocol = "echo"
)

// Runtime identifies which I/O backend a worker uses.
type Runtime string

const (
	RuntimeReadiness  Runtime = "readiness"
	RuntimeCompletion Runtime = "completion"
)

// Config holds every option named in spec.md §6.3.
type Config struct {
	Listen           string
	Protocol         Protocol
	Runtime          Runtime
	Workers          int
	RingSize         int
	BufferSize       int64
	MaxConnections   int
	BatchSize        int
	MaxValueSize     int64
	MaxMemory        int64
	DefaultTTLSecs   int64
	LogLevel         string
	IdleTimeoutSecs  int64
}

// Parse parses args (normally os.Args[1:]) into a Config, applying the
// same defaults spec.md §6.3 and internal/constants specify.
func Parse(args []string) (*Config, error) {
	fs := flag.NewFlagSet("corecache-server", flag.ContinueOnError)

	listen := fs.String("listen", "0.0.0.0:11311", "bind endpoint")
	protocol := fs.String("protocol", string(ProtocolTextCache), "wire protocol: text-cache, resp, ping, echo")
	runtimeFlag := fs.String("runtime", string(RuntimeReadiness), "I/O backend: readiness, completion")
	workers := fs.Int("workers", 0, "worker count; 0 = one per logical CPU")
	ringSize := fs.Int("ring_size", constants.DefaultRingSize, "completion-backend submission queue depth")
	bufferSize := fs.String("buffer_size", humanize.IBytes(uint64(constants.DefaultBufferSize)), "size of every pool buffer")
	maxConnections := fs.Int("max_connections", constants.DefaultMaxConnectionsPerWorker, "per-worker connection cap")
	batchSize := fs.Int("batch_size", constants.DefaultBatchSize, "completion-backend drain bound")
	maxValueSize := fs.String("max_value_size", humanize.IBytes(uint64(constants.DefaultMaxValueSize)), "largest value the server will accept")
	maxMemory := fs.String("max_memory", humanize.IBytes(uint64(constants.DefaultMaxMemory)), "forwarded to storage")
	defaultTTL := fs.Int64("default_ttl", 0, "seconds (0 = no expiration); parsed only, not passed to storage, which applies no default TTL")
	logLevel := fs.String("log_level", "info", "debug, info, warn, error")
	idleTimeout := fs.Int64("idle_timeout", int64(constants.DefaultIdleTimeout.Seconds()), "seconds of read inactivity before a connection is reaped")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	bufSize, err := humanize.ParseBytes(*bufferSize)
	if err != nil {
		return nil, fmt.Errorf("config: invalid buffer_size %q: %w", *bufferSize, err)
	}
	maxVal, err := humanize.ParseBytes(*maxValueSize)
	if err != nil {
		return nil, fmt.Errorf("config: invalid max_value_size %q: %w", *maxValueSize, err)
	}
	maxMem, err := humanize.ParseBytes(*maxMemory)
	if err != nil {
		return nil, fmt.Errorf("config: invalid max_memory %q: %w", *maxMemory, err)
	}

	cfg := &Config{
		Listen:          *listen,
		Protocol:        Protocol(*protocol),
		Runtime:         Runtime(*runtimeFlag),
		Workers:         *workers,
		RingSize:        *ringSize,
		BufferSize:      int64(bufSize),
		MaxConnections:  *maxConnections,
		BatchSize:       *batchSize,
		MaxValueSize:    int64(maxVal),
		MaxMemory:       int64(maxMem),
		DefaultTTLSecs:  *defaultTTL,
		LogLevel:        *logLevel,
		IdleTimeoutSecs: *idleTimeout,
	}
	return cfg, cfg.Validate()
}

// Validate rejects configurations the runtime cannot act on.
func (c *Config) Validate() error {
	switch c.Protocol {
	case ProtocolTextCache, ProtocolRESP, ProtocolPing, ProtocolEcho:
	default:
		return fmt.Errorf("config: unknown protocol %q", c.Protocol)
	}
	switch c.Runtime {
	case RuntimeReadiness, RuntimeCompletion:
	default:
		return fmt.Errorf("config: unknown runtime %q", c.Runtime)
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("config: buffer_size must be positive")
	}
	if c.MaxValueSize <= 0 {
		return fmt.Errorf("config: max_value_size must be positive")
	}
	if c.MaxConnections <= 0 {
		return fmt.Errorf("config: max_connections must be positive")
	}
	return nil
}

// FormatSize renders a byte count the same human-readable way the config
// flags accept, for logging.
func FormatSize(n int64) string {
	return humanize.IBytes(uint64(n))
}
