//go:build !integration

// Package unit covers the public corecache API (config parsing, Server
// construction, error wiring) as a black box, separate from the
// per-package unit tests that live alongside each internal package.
package unit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/corecache"
	"github.com/ehrlich-b/corecache/internal/config"
)

func validConfig() *config.Config {
	return &config.Config{
		Listen:         "127.0.0.1:0",
		Protocol:       config.ProtocolTextCache,
		Runtime:        config.RuntimeReadiness,
		Workers:        1,
		BufferSize:     64 << 10,
		MaxConnections: 8,
		MaxValueSize:   1 << 20,
		MaxMemory:      16 << 20,
	}
}

func TestNewRejectsNilConfig(t *testing.T) {
	_, err := corecache.New(nil, nil)
	require.Error(t, err)
	var cerr *corecache.Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, corecache.ErrCodeInvalidConfig, cerr.Code)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Protocol = "nonsense"
	_, err := corecache.New(cfg, nil)
	require.Error(t, err)
}

func TestNewWiresMockStorage(t *testing.T) {
	mock := corecache.NewMockStorage()
	srv, err := corecache.New(validConfig(), &corecache.Options{Storage: mock})
	require.NoError(t, err)
	assert.Same(t, mock, srv.Storage())
	assert.Equal(t, 1, srv.NumWorkers())
}

func TestNumWorkersDefaultsToOnePerCPUWhenZero(t *testing.T) {
	cfg := validConfig()
	cfg.Workers = 0
	srv, err := corecache.New(cfg, &corecache.Options{Storage: corecache.NewMockStorage()})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, srv.NumWorkers(), 1)
}

func TestShutdownBeforeRunReturnsPromptly(t *testing.T) {
	srv, err := corecache.New(validConfig(), &corecache.Options{Storage: corecache.NewMockStorage()})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- srv.Run() }()

	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	_ = srv.Shutdown(ctx)
	<-done
}

func TestConfigParseDefaults(t *testing.T) {
	cfg, err := config.Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, config.ProtocolTextCache, cfg.Protocol)
	assert.Equal(t, config.RuntimeReadiness, cfg.Runtime)
	assert.Greater(t, cfg.BufferSize, int64(0))
}

func TestConfigParseRejectsBadSize(t *testing.T) {
	_, err := config.Parse([]string{"--max_value_size", "not-a-size"})
	require.Error(t, err)
}

func TestConfigParseHumanSizes(t *testing.T) {
	cfg, err := config.Parse([]string{"--buffer_size", "128KiB", "--max_value_size", "4MiB"})
	require.NoError(t, err)
	assert.Equal(t, int64(128*1024), cfg.BufferSize)
	assert.Equal(t, int64(4*1024*1024), cfg.MaxValueSize)
}

func TestMockStorageRoundTrip(t *testing.T) {
	m := corecache.NewMockStorage()
	require.NoError(t, m.Set([]byte("k"), []byte("v"), 0, 0))
	e, ok := m.Get([]byte("k"))
	require.True(t, ok)
	assert.Equal(t, []byte("v"), e.Value)
	assert.Equal(t, 1, m.CallCounts()["set"])
	assert.Equal(t, 1, m.CallCounts()["get"])
}

func TestMetricsObserverRecordsCommands(t *testing.T) {
	metrics := corecache.NewMetrics()
	obs := corecache.NewMetricsObserver(metrics)
	obs.ObserveCommand("get", 1500, true)
	obs.ObserveConnOpened()
	obs.ObserveBytesIn(10)
	obs.ObserveBytesOut(20)

	snap := metrics.Snapshot()
	assert.Equal(t, uint64(1), snap.GetOps)
	assert.Equal(t, uint64(1), snap.ConnsOpened)
	assert.Equal(t, uint64(10), snap.BytesIn)
	assert.Equal(t, uint64(20), snap.BytesOut)
}
