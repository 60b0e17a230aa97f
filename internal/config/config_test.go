package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LIGHTHOUSE_DATA_DIR", "/srv/lh")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "docker", cfg.Engine)
	assert.Equal(t, "file", cfg.Store)
	assert.Equal(t, "/srv/lh/config.yaml", cfg.StoreFile)
	assert.Equal(t, 2*time.Second, cfg.HealthInterval)
	assert.Equal(t, time.Hour, cfg.HealthTimeout)
	assert.Equal(t, 2*time.Second, cfg.ProgressInterval)
	assert.Equal(t, "lighthouse", cfg.CertResolver)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LIGHTHOUSE_ENGINE", "memory")
	t.Setenv("LIGHTHOUSE_HEALTH_INTERVAL", "5s")
	t.Setenv("LIGHTHOUSE_HEALTH_TIMEOUT", "10m")
	t.Setenv("LIGHTHOUSE_REDIS_DB", "3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Engine)
	assert.Equal(t, 5*time.Second, cfg.HealthInterval)
	assert.Equal(t, 10*time.Minute, cfg.HealthTimeout)
	assert.Equal(t, 3, cfg.RedisDB)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "unknown engine", key: "LIGHTHOUSE_ENGINE", value: "podman"},
		{name: "unknown store", key: "LIGHTHOUSE_STORE", value: "etcd"},
		{name: "timeout shorter than interval", key: "LIGHTHOUSE_HEALTH_TIMEOUT", value: "1s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestMustDurationFallsBackOnGarbage(t *testing.T) {
	t.Setenv("TEST_DURATION", "soon")
	assert.Equal(t, 3*time.Second, mustDuration("TEST_DURATION", 3*time.Second))
}
