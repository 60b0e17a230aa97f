package deploy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/melih/lighthouse/internal/core/domain"
	"github.com/melih/lighthouse/internal/events"
	"github.com/melih/lighthouse/internal/logger"
	"github.com/melih/lighthouse/internal/pipeline"
	"github.com/melih/lighthouse/internal/placeholder"
	"github.com/melih/lighthouse/internal/rollout"
)

// Deployment is one attempt at rolling out a service. Buildpacks drive it
// through its Build, Pull, Start and Deploy helpers.
type Deployment struct {
	ID      string
	Spec    *domain.ServiceSpec
	Pack    Buildpack
	Source  string // the operator's source tree, or the clone of a remote one
	Workdir string // private copy of Source the image is built from
	Log     logger.Logger

	o      *Orchestrator
	lookup placeholder.Lookup
	cloned bool
}

// Path joins name onto the working directory.
func (d *Deployment) Path(name string) string {
	return filepath.Join(d.Workdir, name)
}

// Exists reports whether name exists in the working directory.
func (d *Deployment) Exists(name string) bool {
	_, err := os.Stat(d.Path(name))
	return err == nil
}

// WriteFile writes data to name inside the working directory.
func (d *Deployment) WriteFile(name string, data []byte) error {
	path := d.Path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// DockerfileName is the Dockerfile the build uses, relative to the working directory.
func (d *Deployment) DockerfileName() string {
	if d.Spec.File != "" {
		return d.Spec.File
	}
	return "Dockerfile"
}

// WriteDockerfile replaces the build's Dockerfile with content.
func (d *Deployment) WriteDockerfile(content string) error {
	return d.WriteFile(d.DockerfileName(), []byte(content))
}

// Lookup resolves placeholders against the source dotenv file, then the
// service secrets, then the global secrets.
func (d *Deployment) Lookup() placeholder.Lookup {
	if d.lookup == nil {
		return placeholder.Map(nil)
	}
	return d.lookup
}

// Resolve substitutes placeholders in text using Lookup.
func (d *Deployment) Resolve(text string) string {
	return placeholder.Resolve(text, d.Lookup())
}

// Build builds the working directory into the deployment image and makes it
// available on the runner. It returns the image reference.
func (d *Deployment) Build(ctx context.Context) (string, error) {
	lookup := d.Lookup()

	args := placeholder.ResolveMap(d.Spec.BuildArgs, lookup)
	for k, v := range placeholder.ResolveMap(d.Spec.Secrets, lookup) {
		if _, ok := args[k]; !ok {
			args[k] = v
		}
	}

	return d.o.pipeline.Build(ctx, pipeline.BuildRequest{
		Service:      d.Spec.Name,
		DeploymentID: d.ID,
		ContextDir:   d.Workdir,
		Options: domain.BuildOptions{
			Dockerfile: d.DockerfileName(),
			Args:       args,
			Labels: map[string]string{
				domain.LabelName: d.Spec.Name,
				domain.LabelID:   d.ID,
			},
			Hosts:   d.Spec.Hosts,
			Pull:    d.Spec.Pull,
			NoCache: !d.Spec.CacheEnabled(),
		},
		Progress: func(bytes int64) {
			d.o.bus.Emit(events.Event{
				Kind:         events.ImageTransferProgress,
				Service:      d.Spec.Name,
				DeploymentID: d.ID,
				Bytes:        bytes,
			})
		},
	})
}

// Pull fetches a prebuilt image onto the runner.
func (d *Deployment) Pull(ctx context.Context, ref string) error {
	return d.o.pipeline.Pull(ctx, ref)
}

// Start runs image behind the health gate.
func (d *Deployment) Start(ctx context.Context, image string) error {
	opts := rollout.ContainerOptions(d.Spec, image, d.ID, rollout.Environment{
		Lookup:  d.Lookup(),
		DataDir: d.o.opts.DataDir,
		Network: d.o.opts.Network,
		Proxy:   d.o.opts.Labels,
	})
	return d.o.gate.Start(ctx, rollout.StartRequest{
		Service:      d.Spec.Name,
		DeploymentID: d.ID,
		Options:      opts,
		Routed:       d.Spec.Routed(),
		HostPorts:    d.Spec.HostPorts(),
		Interval:     d.Spec.Rollout.Interval,
		Timeout:      d.Spec.Rollout.Timeout,
	})
}

// Deploy builds the working directory and starts the resulting image.
func (d *Deployment) Deploy(ctx context.Context) error {
	image, err := d.Build(ctx)
	if err != nil {
		return err
	}
	return d.Start(ctx, image)
}
