package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, ProtocolTextCache, cfg.Protocol)
	assert.Equal(t, RuntimeReadiness, cfg.Runtime)
	assert.Greater(t, cfg.MaxValueSize, int64(0))
}

func TestParseSizeFlags(t *testing.T) {
	cfg, err := Parse([]string{"-buffer_size=128KiB", "-max_value_size=4MiB", "-max_memory=1GiB"})
	require.NoError(t, err)
	assert.Equal(t, int64(128*1024), cfg.BufferSize)
	assert.Equal(t, int64(4*1024*1024), cfg.MaxValueSize)
	assert.Equal(t, int64(1024*1024*1024), cfg.MaxMemory)
}

func TestParseRejectsUnknownProtocol(t *testing.T) {
	_, err := Parse([]string{"-protocol=carrier-pigeon"})
	assert.Error(t, err)
}

func TestParseRejectsUnknownRuntime(t *testing.T) {
	_, err := Parse([]string{"-runtime=quantum"})
	assert.Error(t, err)
}

func TestParseRejectsBadSize(t *testing.T) {
	_, err := Parse([]string{"-buffer_size=not-a-size"})
	assert.Error(t, err)
}
