package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melih/lighthouse/internal/events"
)

func TestCollectorRecordsEvents(t *testing.T) {
	c := New()
	bus := events.NewBus()
	c.Subscribe(bus)

	bus.Emit(events.Event{Kind: events.DeploySuccessfully, Service: "api", Elapsed: 12 * time.Second})
	bus.Emit(events.Event{Kind: events.DeployFailure, Service: "api", Err: errors.New("boom"), Elapsed: time.Second})
	bus.Emit(events.Event{Kind: events.DeploySuccessfully, Service: "api", Elapsed: 3 * time.Second})
	bus.Emit(events.Event{Kind: events.ImageTransferProgress, Service: "api", Bytes: 2048})
	bus.Emit(events.Event{Kind: events.ProxyAfterReload, Ports: []int{5432, 6379}})
	bus.Emit(events.Event{Kind: events.DeployStarted, Service: "api"})

	assert.Equal(t, 2.0, testutil.ToFloat64(c.DeploymentsTotal.WithLabelValues("api", ResultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.DeploymentsTotal.WithLabelValues("api", ResultFailure)))
	assert.Equal(t, 2048.0, testutil.ToFloat64(c.TransferredBytes.WithLabelValues("api")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ProxyReloadsTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.PublishedPorts))
	assert.Equal(t, 2, testutil.CollectAndCount(c.DeploymentSeconds))
}

func TestWriteTextfile(t *testing.T) {
	c := New()
	c.Handle(events.Event{Kind: events.DeploySuccessfully, Service: "web", Elapsed: time.Second})

	path := filepath.Join(t.TempDir(), "lighthouse.prom")
	require.NoError(t, c.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `lighthouse_deployments_total{result="success",service="web"} 1`)
}
