// Package proxy keeps the shared Traefik container in line with the
// persisted proxy settings and generates the routing labels services carry.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/melih/lighthouse/internal/besteffort"
	"github.com/melih/lighthouse/internal/core/domain"
	"github.com/melih/lighthouse/internal/core/ports"
	"github.com/melih/lighthouse/internal/events"
	"github.com/melih/lighthouse/internal/logger"
	"github.com/melih/lighthouse/internal/placeholder"
	"github.com/melih/lighthouse/internal/version"
)

// Options configures the proxy container.
type Options struct {
	Name         string // container name, ex: lighthouse-proxy
	Image        string // ex: traefik:latest
	Network      string // shared network joined by proxy and services
	DataDir      string // host directory mounted as /etc/traefik
	CertResolver string
	ACMEEmail    string
}

// Manager creates and reloads the shared proxy container.
type Manager struct {
	engine ports.Engine
	store  ports.SettingsStore
	bus    *events.Bus
	log    logger.Logger
	opts   Options

	group singleflight.Group
	// reload serializes proxy recreation
	reload chan struct{}
}

func NewManager(engine ports.Engine, store ports.SettingsStore, bus *events.Bus, log logger.Logger, opts Options) *Manager {
	return &Manager{
		engine: engine,
		store:  store,
		bus:    bus,
		log:    log.With(logger.String("component", "proxy")),
		opts:   opts,
		reload: make(chan struct{}, 1),
	}
}

// Network returns the shared network name.
func (m *Manager) Network() string { return m.opts.Network }

// LabelOptions returns the host-wide values routing labels depend on.
func (m *Manager) LabelOptions() LabelOptions {
	return LabelOptions{CertResolver: m.opts.CertResolver, Network: m.opts.Network}
}

// EnsureNetwork creates the shared network once, even under concurrent first use.
func (m *Manager) EnsureNetwork(ctx context.Context) error {
	_, err, _ := m.group.Do("network", func() (any, error) {
		return nil, m.engine.EnsureNetwork(ctx, m.opts.Network)
	})
	return err
}

// Ensure creates the proxy when it does not exist. An existing proxy is never
// recreated here, whatever its state.
func (m *Manager) Ensure(ctx context.Context) error {
	_, err, _ := m.group.Do("proxy", func() (any, error) {
		_, err := m.engine.InspectContainer(ctx, m.opts.Name)
		if err == nil {
			return nil, nil
		}
		if !errors.Is(err, ports.ErrNotFound) {
			return nil, err
		}
		m.log.Info("proxy not found, creating it")
		return nil, m.Reload(ctx)
	})
	return err
}

// Reload removes the proxy container and creates it again from the persisted
// settings. It briefly interrupts traffic.
func (m *Manager) Reload(ctx context.Context) error {
	select {
	case m.reload <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-m.reload }()

	settings, err := m.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load proxy settings: %w", err)
	}

	m.bus.Emit(events.Event{Kind: events.ProxyBeforeReload, Service: m.opts.Name, Ports: settings.Proxy.Ports})
	m.log.Debug("proxy reloading started", logger.Ints("ports", settings.Proxy.Ports))

	if err := m.EnsureNetwork(ctx); err != nil {
		return err
	}
	_ = besteffort.Do(m.log, "remove proxy", func() error {
		return m.engine.RemoveContainer(ctx, m.opts.Name)
	})
	_ = besteffort.Do(m.log, "pull proxy image", func() error {
		return m.engine.PullImage(ctx, m.opts.Image)
	})

	id, err := m.engine.CreateContainer(ctx, m.opts.Name, m.containerOptions(settings))
	if err != nil {
		return fmt.Errorf("failed to create proxy: %w", err)
	}
	if err := m.engine.StartContainer(ctx, id); err != nil {
		return fmt.Errorf("failed to start proxy: %w", err)
	}

	m.bus.Emit(events.Event{Kind: events.ProxyAfterReload, Service: m.opts.Name, Ports: settings.Proxy.Ports})
	m.log.Info("proxy reloaded", logger.Ints("ports", settings.Proxy.Ports))
	return nil
}

func (m *Manager) containerOptions(s *domain.Settings) domain.ContainerOptions {
	lookup := placeholder.Map(s.Secrets)

	labels := placeholder.ResolveMap(s.Proxy.Labels, lookup)
	labels[domain.LabelName] = m.opts.Name
	labels[domain.LabelID] = m.opts.Name
	labels[domain.LabelVersion] = version.Version

	bindings := []domain.PortBinding{
		{HostPort: 80, ContainerPort: 80, Proto: "tcp"},
		{HostPort: 443, ContainerPort: 443, Proto: "tcp"},
		{HostPort: 443, ContainerPort: 443, Proto: "udp"},
	}
	for _, p := range s.Proxy.Ports {
		bindings = append(bindings,
			domain.PortBinding{HostPort: p, ContainerPort: p, Proto: "tcp"},
			domain.PortBinding{HostPort: p, ContainerPort: p, Proto: "udp"},
		)
	}

	return domain.ContainerOptions{
		Image:   m.opts.Image,
		Cmd:     Flags(m.opts, s.Proxy),
		Env:     placeholder.ResolveMap(s.Proxy.Envs, lookup),
		Labels:  labels,
		Restart: "always",
		Network: m.opts.Network,
		Binds: []string{
			filepath.Join(m.opts.DataDir, "proxy") + ":/etc/traefik",
			"/var/run/docker.sock:/var/run/docker.sock",
		},
		Ports: bindings,
	}
}

// Flags renders the Traefik command line: fixed entrypoints and providers,
// the operator's extra args, then one tcp and one udp entrypoint per port.
// Duplicates keep their first position.
func Flags(opts Options, s domain.ProxySettings) []string {
	var flags []string
	seen := map[string]struct{}{}
	add := func(f string) {
		if _, ok := seen[f]; ok {
			return
		}
		seen[f] = struct{}{}
		flags = append(flags, f)
	}

	resolver := "--certificatesresolvers." + opts.CertResolver + ".acme"
	add("--ping")
	add("--entrypoints.http.address=:80")
	add("--entrypoints.https.address=:443")
	add("--providers.docker.exposedbydefault=false")
	add("--providers.docker.endpoint=unix:///var/run/docker.sock")
	if opts.Network != "" {
		add("--providers.docker.network=" + opts.Network)
	}
	if opts.ACMEEmail != "" {
		add(resolver + ".email=" + opts.ACMEEmail)
	}
	add(resolver + ".httpchallenge.entrypoint=http")
	add(resolver + ".storage=/etc/traefik/acme.json")
	for _, a := range s.Args {
		add("--" + strings.TrimPrefix(a, "--"))
	}
	for _, p := range s.Ports {
		port := strconv.Itoa(p)
		add("--entrypoints.tcp" + port + ".address=:" + port + "/tcp")
		add("--entrypoints.udp" + port + ".address=:" + port + "/udp")
	}
	return flags
}
