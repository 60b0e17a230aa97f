// Package rollout starts a deployment's container next to the incumbent,
// waits for it to become healthy and swaps the two by renaming.
package rollout

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/melih/lighthouse/internal/besteffort"
	"github.com/melih/lighthouse/internal/core/domain"
	"github.com/melih/lighthouse/internal/core/ports"
	"github.com/melih/lighthouse/internal/logger"
	"github.com/melih/lighthouse/internal/proxy"
)

// Default health gate bounds.
const (
	DefaultInterval = 2 * time.Second
	DefaultTimeout  = time.Hour
)

var (
	// ErrUnhealthy means the new container stopped or reported unhealthy.
	ErrUnhealthy = errors.New("container is unhealthy")
	// ErrHealthTimeout means the new container did not become healthy in time.
	ErrHealthTimeout = errors.New("container health check timed out")
)

// Proxy is the part of the proxy manager the gate needs.
type Proxy interface {
	EnsureNetwork(ctx context.Context) error
	Ensure(ctx context.Context) error
}

// PortReconciler publishes raw ports on the proxy.
type PortReconciler interface {
	Reconcile(ctx context.Context, op proxy.Op, ports []int) ([]int, error)
}

// StartRequest describes one container rollout.
type StartRequest struct {
	Service      string
	DeploymentID string
	Options      domain.ContainerOptions
	Routed       bool  // the container carries routing labels
	HostPorts    []int // raw ports the proxy must publish
	Interval     time.Duration
	Timeout      time.Duration
}

// Gate performs health-gated container swaps.
type Gate struct {
	engine   ports.ContainerEngine
	proxy    Proxy
	ports    PortReconciler
	log      logger.Logger
	interval time.Duration
	timeout  time.Duration
}

// NewGate returns a gate. Non-positive bounds use the defaults. proxy and
// reconciler may be nil when no service is ever routed.
func NewGate(engine ports.ContainerEngine, px Proxy, reconciler PortReconciler, interval, timeout time.Duration, log logger.Logger) *Gate {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Gate{
		engine:   engine,
		proxy:    px,
		ports:    reconciler,
		log:      log.With(logger.String("component", "rollout")),
		interval: interval,
		timeout:  timeout,
	}
}

// Start creates the new container under <service>-<id>, waits for it to be
// healthy and renames it to <service>. The incumbent keeps serving until the
// swap and is restored if anything fails. The new container is never removed
// on failure.
func (g *Gate) Start(ctx context.Context, req StartRequest) (err error) {
	name := req.Service
	candidate := name + "-" + req.DeploymentID
	log := g.log.With(logger.String("service", name), logger.String("container", candidate))

	defer func() {
		_ = besteffort.Do(log, "prune inconsistent containers", func() error {
			return g.PruneInconsistent(context.WithoutCancel(ctx), name, req.DeploymentID)
		})
	}()

	incumbent, err := g.incumbent(ctx, name)
	if err != nil {
		return fmt.Errorf("start container %s failure: %w", candidate, err)
	}

	if err := g.prepare(ctx, req); err != nil {
		return fmt.Errorf("start container %s failure: %w", candidate, err)
	}

	log.Info("starting container")
	id, err := g.engine.CreateContainer(ctx, candidate, req.Options)
	if err != nil {
		return fmt.Errorf("start container %s failure: %w", candidate, err)
	}

	renamedAside := false
	fail := func(cause error) error {
		g.rollback(context.WithoutCancel(ctx), log, name, id, incumbent, renamedAside)
		return fmt.Errorf("start container %s failure: %w", candidate, cause)
	}

	if err := g.engine.StartContainer(ctx, id); err != nil {
		return fail(err)
	}
	if err := g.wait(ctx, log, id, req); err != nil {
		return fail(err)
	}

	if incumbent != nil {
		_ = besteffort.Do(log, "stop incumbent", func() error {
			return g.engine.StopContainer(ctx, incumbent.ID)
		})
		aside := name + "-" + strconv.FormatInt(time.Now().UnixMilli(), 10)
		renamedAside = besteffort.Do(log, "rename incumbent aside", func() error {
			return g.engine.RenameContainer(ctx, incumbent.ID, aside)
		}) == nil
	}
	if err := g.engine.RenameContainer(ctx, id, name); err != nil {
		return fail(err)
	}

	log.Info("container started")
	return nil
}

// prepare makes sure the network, published ports and proxy the container
// depends on exist before it is created.
func (g *Gate) prepare(ctx context.Context, req StartRequest) error {
	if g.proxy != nil && req.Options.Network != "" {
		if err := g.proxy.EnsureNetwork(ctx); err != nil {
			return err
		}
	}
	if g.ports != nil && len(req.HostPorts) > 0 {
		if _, err := g.ports.Reconcile(ctx, proxy.Insert, req.HostPorts); err != nil {
			return err
		}
	}
	if g.proxy != nil && (req.Routed || len(req.HostPorts) > 0) {
		if err := g.proxy.Ensure(ctx); err != nil {
			return err
		}
	}
	return nil
}

// wait polls the container until it is running and healthy (or has no health
// check), fails fast when it is anything else, and gives up after the timeout.
func (g *Gate) wait(ctx context.Context, log logger.Logger, id string, req StartRequest) error {
	interval, timeout := req.Interval, req.Timeout
	if interval <= 0 {
		interval = g.interval
	}
	if timeout <= 0 {
		timeout = g.timeout
	}
	iterations := int(timeout / interval)
	if iterations < 1 {
		iterations = 1
	}

	start := time.Now()
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for i := 1; i <= iterations; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		c, err := g.engine.InspectContainer(ctx, id)
		if err != nil {
			return err
		}
		status := strings.ToLower(c.Status)
		health := strings.ToLower(c.Health)
		if status != domain.StatusCreated && health != domain.HealthStarting {
			if c.Active() {
				return nil
			}
			return fmt.Errorf("status %q health %q: %w", status, health, ErrUnhealthy)
		}

		if i%10 == 0 {
			log.Info("waiting for container to become healthy",
				logger.Duration("elapsed", time.Since(start).Round(time.Second)),
				logger.String("status", status),
				logger.String("health", health))
		}
		timer.Reset(interval)
	}
	return fmt.Errorf("not healthy after %v: %w", timeout, ErrHealthTimeout)
}

// rollback stops the failed candidate and puts the incumbent back in service
// under its canonical name. Every step is best-effort.
func (g *Gate) rollback(ctx context.Context, log logger.Logger, name, candidateID string, incumbent *domain.Container, renamedAside bool) {
	log.Warn("rolling back")
	_ = besteffort.Do(log, "stop failed container", func() error {
		return g.engine.StopContainer(ctx, candidateID)
	})
	if incumbent == nil {
		return
	}
	_ = besteffort.Do(log, "restart incumbent", func() error {
		return g.engine.StartContainer(ctx, incumbent.ID)
	})
	if renamedAside {
		_ = besteffort.Do(log, "restore incumbent name", func() error {
			return g.engine.RenameContainer(ctx, incumbent.ID, name)
		})
	}
}

// PruneInconsistent removes containers labelled as service whose name is not
// the service name, leftovers of earlier swaps. Containers of deployment keepID
// are kept.
func (g *Gate) PruneInconsistent(ctx context.Context, service, keepID string) error {
	containers, err := g.engine.ListContainers(ctx, map[string]string{domain.LabelName: service})
	if err != nil {
		return err
	}

	var errs []error
	for _, c := range containers {
		if c.Name == service || c.Labels[domain.LabelID] == keepID {
			continue
		}
		g.log.Debug("removing inconsistent container",
			logger.String("service", service), logger.String("container", c.Name))
		if err := g.engine.RemoveContainer(ctx, c.ID); err != nil && !errors.Is(err, ports.ErrNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// incumbent returns the container currently serving service, or nil. The
// daemon also resolves ID prefixes, so a match must carry the service label.
func (g *Gate) incumbent(ctx context.Context, service string) (*domain.Container, error) {
	c, err := g.engine.InspectContainer(ctx, service)
	if errors.Is(err, ports.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if c.Labels[domain.LabelName] != service {
		return nil, nil
	}
	return c, nil
}
