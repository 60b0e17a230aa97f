// Package metrics turns lifecycle events into Prometheus metrics. A CLI run
// is short-lived, so metrics are written to a node-exporter textfile instead
// of being scraped.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/melih/lighthouse/internal/events"
)

const namespace = "lighthouse"

// Result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Collector holds the metrics of one process.
type Collector struct {
	registry *prometheus.Registry

	// DeploymentsTotal counts finished deployments by service and result.
	DeploymentsTotal *prometheus.CounterVec
	// DeploymentSeconds measures deployments from start to outcome.
	DeploymentSeconds *prometheus.HistogramVec
	// TransferredBytes is the last reported image transfer size per service.
	TransferredBytes *prometheus.GaugeVec
	// ProxyReloadsTotal counts proxy container recreations.
	ProxyReloadsTotal prometheus.Counter
	// PublishedPorts is the number of raw ports the proxy publishes.
	PublishedPorts prometheus.Gauge
}

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		DeploymentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deployments_total",
			Help:      "Finished deployments by service and result",
		}, []string{"service", "result"}),
		DeploymentSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "deployment_duration_seconds",
			Help:      "Deployment duration in seconds",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"service", "result"}),
		TransferredBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "image_transferred_bytes",
			Help:      "Bytes moved by the last image transfer",
		}, []string{"service"}),
		ProxyReloadsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "proxy",
			Name:      "reloads_total",
			Help:      "Proxy container recreations",
		}),
		PublishedPorts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "proxy",
			Name:      "published_ports",
			Help:      "Raw TCP/UDP ports published by the proxy",
		}),
	}
	c.registry.MustRegister(
		c.DeploymentsTotal,
		c.DeploymentSeconds,
		c.TransferredBytes,
		c.ProxyReloadsTotal,
		c.PublishedPorts,
	)
	return c
}

// Registry exposes the collector's registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Subscribe records the events of bus.
func (c *Collector) Subscribe(bus *events.Bus) {
	bus.Subscribe(c.Handle,
		events.DeploySuccessfully,
		events.DeployFailure,
		events.ImageTransferProgress,
		events.ProxyAfterReload,
	)
}

// Handle records one event.
func (c *Collector) Handle(e events.Event) {
	switch e.Kind {
	case events.DeploySuccessfully:
		c.deployment(e.Service, ResultSuccess, e)
	case events.DeployFailure:
		c.deployment(e.Service, ResultFailure, e)
	case events.ImageTransferProgress:
		c.TransferredBytes.WithLabelValues(e.Service).Set(float64(e.Bytes))
	case events.ProxyAfterReload:
		c.ProxyReloadsTotal.Inc()
		c.PublishedPorts.Set(float64(len(e.Ports)))
	}
}

func (c *Collector) deployment(service, result string, e events.Event) {
	c.DeploymentsTotal.WithLabelValues(service, result).Inc()
	c.DeploymentSeconds.WithLabelValues(service, result).Observe(e.Elapsed.Seconds())
}

// WriteTextfile writes every metric to path in the Prometheus text format.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
