package app

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melih/lighthouse/internal/adapters/memory"
	"github.com/melih/lighthouse/internal/adapters/store"
	"github.com/melih/lighthouse/internal/config"
	"github.com/melih/lighthouse/internal/core/domain"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		LogLevel:         "error",
		Engine:           "memory",
		DataDir:          dir,
		Network:          "lighthouse",
		ProxyName:        "lighthouse-proxy",
		ProxyImage:       "traefik:latest",
		CertResolver:     "lighthouse",
		ProgressInterval: time.Millisecond,
		HealthInterval:   time.Millisecond,
		HealthTimeout:    100 * time.Millisecond,
		DotenvFile:       ".env",
		Store:            "file",
		StoreFile:        filepath.Join(dir, "config.yaml"),
		MetricsFile:      filepath.Join(dir, "lighthouse.prom"),
	}
}

func TestDryRunDeploysRoutedService(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(cfg, io.Discard)
	require.NoError(t, err)

	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "Dockerfile"), []byte("FROM alpine\n"), 0o644))

	err = a.Orchestrator.Execute(context.Background(), &domain.ServiceSpec{
		Name:   "web",
		Path:   src,
		Domain: []string{"web.example.com"},
		Ports:  []domain.PortMapping{{HostPort: 2222, ContainerPort: 22}},
	})
	require.NoError(t, err)

	engine, ok := a.Runner.(*memory.Engine)
	require.True(t, ok)
	assert.True(t, engine.HasNetwork("lighthouse"))

	px, ok := engine.Options("lighthouse-proxy")
	require.True(t, ok, "proxy is started for routed services")
	assert.Contains(t, px.Cmd, "--entrypoints.tcp2222.address=:2222/tcp")

	web, ok := engine.Options("web")
	require.True(t, ok)
	assert.Equal(t, "true", web.Labels["traefik.enable"])

	require.NoError(t, a.Close())

	// the persisted store is untouched by a dry run
	persisted, err := store.NewFile(cfg.StoreFile).Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, persisted.Proxy.Ports)

	metrics, err := os.ReadFile(cfg.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), `lighthouse_deployments_total{result="success",service="web"} 1`)
}

func TestNewRejectsUnreachableRedis(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store = "redis"
	cfg.RedisAddr = "127.0.0.1:1"
	cfg.RedisKey = "lighthouse:settings"
	cfg.RedisConnectTimeout = 50 * time.Millisecond
	cfg.RedisRetryInterval = 10 * time.Millisecond
	cfg.RedisMaxWait = 20 * time.Millisecond

	_, err := New(cfg, io.Discard)
	assert.Error(t, err)
}
