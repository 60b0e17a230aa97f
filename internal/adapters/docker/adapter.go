package docker

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	"github.com/docker/go-units"

	"github.com/melih/lighthouse/internal/core/domain"
	"github.com/melih/lighthouse/internal/core/ports"
)

// Adapter implements ports.Engine using the Docker SDK
type Adapter struct {
	cli *client.Client
	out io.Writer
}

var _ ports.Engine = (*Adapter)(nil)

// NewAdapter creates a Docker adapter. An empty host uses DOCKER_HOST.
// Build and load progress is written to out.
func NewAdapter(host string, out io.Writer) (*Adapter, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	if out == nil {
		out = io.Discard
	}
	return &Adapter{cli: cli, out: out}, nil
}

// Endpoint returns the daemon host the client talks to.
func (a *Adapter) Endpoint() string {
	return a.cli.DaemonHost()
}

// Close releases the underlying HTTP transport.
func (a *Adapter) Close() error {
	return a.cli.Close()
}

// ListContainers returns running and stopped containers carrying all labels
func (a *Adapter) ListContainers(ctx context.Context, labels map[string]string) ([]domain.Container, error) {
	args := filters.NewArgs()
	for k, v := range labels {
		args.Add("label", k+"="+v)
	}
	containers, err := a.cli.ContainerList(ctx, container.ListOptions{All: true, Filters: args})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	result := make([]domain.Container, 0, len(containers))
	for _, c := range containers {
		// Use the first name if available, remove slash
		name := ""
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		result = append(result, domain.Container{
			ID:      c.ID,
			Name:    name,
			Image:   c.Image,
			Status:  c.State,
			Health:  healthFromStatus(c.Status),
			Labels:  c.Labels,
			Created: time.Unix(c.Created, 0),
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Created.After(result[j].Created) })
	return result, nil
}

// InspectContainer returns ports.ErrNotFound when nameOrID does not exist
func (a *Adapter) InspectContainer(ctx context.Context, nameOrID string) (*domain.Container, error) {
	info, err := a.cli.ContainerInspect(ctx, nameOrID)
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, fmt.Errorf("container %s: %w", nameOrID, ports.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to inspect container %s: %w", nameOrID, err)
	}

	c := &domain.Container{
		ID:   info.ID,
		Name: strings.TrimPrefix(info.Name, "/"),
	}
	if info.Config != nil {
		c.Image = info.Config.Image
		c.Labels = info.Config.Labels
	}
	if info.State != nil {
		c.Status = info.State.Status
		if info.State.Health != nil {
			c.Health = info.State.Health.Status
		}
	}
	if created, err := time.Parse(time.RFC3339Nano, info.Created); err == nil {
		c.Created = created
	}
	return c, nil
}

// CreateContainer creates (but does not start) a container named name
func (a *Adapter) CreateContainer(ctx context.Context, name string, opts domain.ContainerOptions) (string, error) {
	cfg, host, err := containerConfig(opts)
	if err != nil {
		return "", err
	}

	var netCfg *network.NetworkingConfig
	if opts.Network != "" {
		host.NetworkMode = container.NetworkMode(opts.Network)
		netCfg = &network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{opts.Network: {}},
		}
	}

	resp, err := a.cli.ContainerCreate(ctx, cfg, host, netCfg, nil, name)
	if err != nil {
		return "", fmt.Errorf("failed to create container %s: %w", name, err)
	}

	for _, n := range opts.Networks {
		if n == opts.Network {
			continue
		}
		if err := a.EnsureNetwork(ctx, n); err != nil {
			return resp.ID, err
		}
		if err := a.cli.NetworkConnect(ctx, n, resp.ID, &network.EndpointSettings{}); err != nil {
			return resp.ID, fmt.Errorf("failed to connect %s to network %s: %w", name, n, err)
		}
	}
	return resp.ID, nil
}

// StartContainer starts a created or stopped container
func (a *Adapter) StartContainer(ctx context.Context, id string) error {
	if err := a.cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start container %s: %w", id, err)
	}
	return nil
}

// StopContainer stops a running container
func (a *Adapter) StopContainer(ctx context.Context, id string) error {
	// Timeout can be configurable, but keeping it simple for now
	timeout := 10
	if err := a.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("failed to stop container %s: %w", id, err)
	}
	return nil
}

// RemoveContainer force-removes a container and its anonymous volumes
func (a *Adapter) RemoveContainer(ctx context.Context, id string) error {
	err := a.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true, RemoveVolumes: true})
	if err != nil {
		if client.IsErrNotFound(err) {
			return fmt.Errorf("container %s: %w", id, ports.ErrNotFound)
		}
		return fmt.Errorf("failed to remove container %s: %w", id, err)
	}
	return nil
}

// RenameContainer gives a container a new name
func (a *Adapter) RenameContainer(ctx context.Context, id, name string) error {
	if err := a.cli.ContainerRename(ctx, id, name); err != nil {
		return fmt.Errorf("failed to rename container %s to %s: %w", id, name, err)
	}
	return nil
}

// ContainerLogs returns the container's stdout and stderr as one plain stream
func (a *Adapter) ContainerLogs(ctx context.Context, id string, follow bool, tail string) (io.ReadCloser, error) {
	info, err := a.cli.ContainerInspect(ctx, id)
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, fmt.Errorf("container %s: %w", id, ports.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to inspect container %s: %w", id, err)
	}

	options := container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     follow,
		Tail:       tail,
		Timestamps: true,
	}
	rc, err := a.cli.ContainerLogs(ctx, id, options)
	if err != nil {
		return nil, fmt.Errorf("failed to get logs of %s: %w", id, err)
	}
	if info.Config != nil && info.Config.Tty {
		return rc, nil
	}

	// Non-TTY logs are multiplexed with 8-byte frame headers.
	pr, pw := io.Pipe()
	go func() {
		_, err := stdcopy.StdCopy(pw, pw, rc)
		rc.Close()
		pw.CloseWithError(err)
	}()
	return pr, nil
}

// EnsureNetwork creates a bridge network when none with that name exists
func (a *Adapter) EnsureNetwork(ctx context.Context, name string) error {
	existing, err := a.cli.NetworkList(ctx, types.NetworkListOptions{
		Filters: filters.NewArgs(filters.Arg("name", name)),
	})
	if err != nil {
		return fmt.Errorf("failed to list networks: %w", err)
	}
	// the name filter matches substrings
	for _, n := range existing {
		if n.Name == name {
			return nil
		}
	}
	if _, err := a.cli.NetworkCreate(ctx, name, types.NetworkCreate{Driver: "bridge"}); err != nil {
		return fmt.Errorf("failed to create network %s: %w", name, err)
	}
	return nil
}

// PruneNetworks removes networks no container uses
func (a *Adapter) PruneNetworks(ctx context.Context) error {
	if _, err := a.cli.NetworksPrune(ctx, filters.NewArgs()); err != nil {
		return fmt.Errorf("failed to prune networks: %w", err)
	}
	return nil
}

// PruneVolumes removes anonymous volumes no container uses
func (a *Adapter) PruneVolumes(ctx context.Context) error {
	if _, err := a.cli.VolumesPrune(ctx, filters.NewArgs()); err != nil {
		return fmt.Errorf("failed to prune volumes: %w", err)
	}
	return nil
}

func containerConfig(opts domain.ContainerOptions) (*container.Config, *container.HostConfig, error) {
	cfg := &container.Config{
		Image:      opts.Image,
		Cmd:        opts.Cmd,
		Entrypoint: opts.Entrypoint,
		Env:        envList(opts.Env),
		Labels:     opts.Labels,
		Hostname:   opts.Hostname,
		User:       opts.User,
		WorkingDir: opts.Workdir,
	}
	if hc := opts.Healthcheck; hc != nil {
		cfg.Healthcheck = &container.HealthConfig{
			Test:        hc.Test,
			Interval:    hc.Interval,
			Timeout:     hc.Timeout,
			StartPeriod: hc.StartPeriod,
			Retries:     hc.Retries,
		}
	}

	host := &container.HostConfig{
		Binds:      opts.Binds,
		DNS:        opts.DNS,
		ExtraHosts: hostList(opts.ExtraHosts),
		GroupAdd:   opts.GroupAdd,
		Privileged: opts.Privileged,
		CapAdd:     opts.CapAdd,
		CapDrop:    opts.CapDrop,
	}
	if opts.Restart != "" {
		host.RestartPolicy = container.RestartPolicy{Name: container.RestartPolicyMode(opts.Restart)}
	}
	if opts.Init {
		enabled := true
		host.Init = &enabled
	}
	if opts.CPU != "" {
		cpus, err := strconv.ParseFloat(opts.CPU, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid cpu limit %q: %w", opts.CPU, err)
		}
		host.NanoCPUs = int64(cpus * 1e9)
	}
	if opts.Memory != "" {
		mem, err := units.RAMInBytes(opts.Memory)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid memory limit %q: %w", opts.Memory, err)
		}
		host.Memory = mem
	}
	if opts.OOMKillDisable {
		disable := true
		host.OomKillDisable = &disable
	}

	if len(opts.Ports) > 0 {
		exposed, bindings, err := portMap(opts.Ports)
		if err != nil {
			return nil, nil, err
		}
		cfg.ExposedPorts = exposed
		host.PortBindings = bindings
	}
	return cfg, host, nil
}

func portMap(bindings []domain.PortBinding) (nat.PortSet, nat.PortMap, error) {
	exposed := nat.PortSet{}
	published := nat.PortMap{}
	for _, b := range bindings {
		proto := b.Proto
		if proto == "" {
			proto = "tcp"
		}
		port, err := nat.NewPort(proto, strconv.Itoa(b.ContainerPort))
		if err != nil {
			return nil, nil, fmt.Errorf("invalid port %d/%s: %w", b.ContainerPort, proto, err)
		}
		exposed[port] = struct{}{}
		published[port] = append(published[port], nat.PortBinding{HostPort: strconv.Itoa(b.HostPort)})
	}
	return exposed, published, nil
}

func envList(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

func hostList(hosts map[string]string) []string {
	out := make([]string, 0, len(hosts))
	for host, ip := range hosts {
		out = append(out, host+":"+ip)
	}
	sort.Strings(out)
	return out
}

// healthFromStatus extracts the health state from a list status such as
// "Up 3 minutes (healthy)".
func healthFromStatus(status string) string {
	switch {
	case strings.Contains(status, "(health: starting)"):
		return domain.HealthStarting
	case strings.Contains(status, "(healthy)"):
		return domain.HealthHealthy
	case strings.Contains(status, "(unhealthy)"):
		return domain.HealthUnhealthy
	}
	return ""
}
