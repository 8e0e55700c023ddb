package cfg

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetVersion(t *testing.T) {
	if GetVersion() == "" {
		t.Error("GetVersion should never return empty string")
	}

	version := GetVersion()
	if version != "dev" && version != "unknown" {
		// This is fine, version could be set at build time
		t.Logf("Version: %s", version)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load([]string{"--timezone", "UTC"})
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "./data/match-watch.db", cfg.DBPath)
	assert.Equal(t, 8*time.Hour, cfg.PollCeiling)
	assert.Equal(t, 20*time.Minute, cfg.AfterResult)
	assert.Equal(t, 90*time.Minute, cfg.KickoffBuffer)
	assert.Equal(t, 10*time.Minute, cfg.OverdueDelay)
	assert.Equal(t, 3*time.Hour, cfg.RetryDelay)
	assert.Equal(t, 24*time.Hour, cfg.AbandonDelay)
	assert.Equal(t, 3, cfg.RetryThreshold)
	assert.Equal(t, 10*time.Second, cfg.StartupJitter)
	assert.Equal(t, 24*time.Hour, cfg.SweepInterval)
	assert.Equal(t, 64, cfg.SweepThreshold)
	assert.Equal(t, 8, cfg.FanoutConcurrency)
	assert.False(t, cfg.Debug)

	assert.Same(t, cfg, Get())
}

func TestLoadFlags(t *testing.T) {
	cfg, err := load([]string{
		"--timezone", "UTC",
		"--port", "9090",
		"--retry-delay", "45m",
		"--sweep-threshold", "10",
		"--api-key", "secret",
		"--debug",
	})
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 45*time.Minute, cfg.RetryDelay)
	assert.Equal(t, 10, cfg.SweepThreshold)
	assert.Equal(t, "secret", cfg.APIAccessKey)
	assert.True(t, cfg.Debug)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := [][]string{
		{"--poll-ceiling", "0s"},
		{"--retry-threshold", "0"},
		{"--fanout-concurrency", "0"},
		{"--retry-delay", "soon"},
	}

	for _, args := range tests {
		t.Run(args[0], func(t *testing.T) {
			_, err := load(append([]string{"--timezone", "UTC"}, args...))
			assert.Error(t, err)
		})
	}
}
