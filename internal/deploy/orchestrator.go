// Package deploy runs a service's deployment lifecycle: unpack the source,
// run the buildpack hooks, purge leftovers and report the outcome.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/melih/lighthouse/internal/adapters/git"
	"github.com/melih/lighthouse/internal/besteffort"
	"github.com/melih/lighthouse/internal/core/domain"
	"github.com/melih/lighthouse/internal/core/ports"
	"github.com/melih/lighthouse/internal/events"
	"github.com/melih/lighthouse/internal/logger"
	"github.com/melih/lighthouse/internal/pipeline"
	"github.com/melih/lighthouse/internal/placeholder"
	"github.com/melih/lighthouse/internal/proxy"
	"github.com/melih/lighthouse/internal/rollout"
	"github.com/melih/lighthouse/internal/workspace"
)

// DefaultDotenv is the dotenv file read from the source root.
const DefaultDotenv = ".env"

// CloneFunc fetches a remote source into a local directory the caller removes.
type CloneFunc func(ctx context.Context, url string) (string, error)

// Options configure an Orchestrator.
type Options struct {
	DataDir string             // relative volume host paths live under <DataDir>/volumes
	Network string             // shared network joined by services and the proxy
	Labels  proxy.LabelOptions // routing label parameters
	Dotenv  string             // dotenv file name in the source root
}

// Deps are the collaborators of an Orchestrator. Clone is optional.
type Deps struct {
	Runner   ports.Engine
	Pipeline *pipeline.Pipeline
	Gate     *rollout.Gate
	Store    ports.SettingsStore
	Packs    PackResolver
	Bus      *events.Bus
	Log      logger.Logger
	Clone    CloneFunc
}

// Orchestrator executes deployments. Deployments of one service are
// serialized; different services may deploy concurrently.
type Orchestrator struct {
	runner   ports.Engine
	pipeline *pipeline.Pipeline
	gate     *rollout.Gate
	store    ports.SettingsStore
	packs    PackResolver
	bus      *events.Bus
	log      logger.Logger
	clone    CloneFunc
	opts     Options

	services *Registry
	locks    keyedMutex
}

// New returns an orchestrator.
func New(deps Deps, opts Options) *Orchestrator {
	if opts.Dotenv == "" {
		opts.Dotenv = DefaultDotenv
	}
	clone := deps.Clone
	if clone == nil {
		clone = func(ctx context.Context, url string) (string, error) {
			return git.Clone(ctx, url, nil)
		}
	}
	return &Orchestrator{
		runner:   deps.Runner,
		pipeline: deps.Pipeline,
		gate:     deps.Gate,
		store:    deps.Store,
		packs:    deps.Packs,
		bus:      deps.Bus,
		log:      deps.Log.With(logger.String("component", "deploy")),
		clone:    clone,
		opts:     opts,
		services: NewRegistry(),
	}
}

// Services returns the registry ExecuteAll deploys from.
func (o *Orchestrator) Services() *Registry { return o.services }

// Execute deploys spec. Failures are returned as *Error.
func (o *Orchestrator) Execute(ctx context.Context, spec *domain.ServiceSpec) error {
	if err := spec.Validate(); err != nil {
		return &Error{Service: spec.Name, Err: err}
	}
	pack, err := o.packs(spec)
	if err != nil {
		return &Error{Service: spec.Name, Err: err}
	}

	uid, err := uuid.NewV7()
	if err != nil {
		return &Error{Service: spec.Name, Err: fmt.Errorf("failed to generate deployment id: %w", err)}
	}
	id := uid.String()

	unlock := o.locks.Lock(spec.Name)
	defer unlock()

	d := &Deployment{
		ID:   id,
		Spec: spec,
		Pack: pack,
		Log: o.log.With(
			logger.String("service", spec.Name),
			logger.String("deployment", id),
			logger.String("pack", pack.Name()),
		),
		o: o,
	}

	start := time.Now()
	o.emit(d, events.DeployStarted, nil, 0)
	d.Log.Info("deployment started")

	err = o.run(ctx, d)
	o.cleanup(d)

	elapsed := time.Since(start)
	if err != nil {
		d.Log.Error("deployment failed", logger.Error(err), logger.Duration("elapsed", elapsed))
		o.emit(d, events.DeployFailure, err, elapsed)
		return &Error{Service: spec.Name, Err: err}
	}
	d.Log.Info("deployment succeeded", logger.Duration("elapsed", elapsed))
	o.emit(d, events.DeploySuccessfully, nil, elapsed)
	return nil
}

func (o *Orchestrator) run(ctx context.Context, d *Deployment) error {
	o.emit(d, events.DeployBeforeUnpack, nil, 0)
	if err := o.unpack(ctx, d); err != nil {
		return err
	}
	o.emit(d, events.DeployAfterUnpack, nil, 0)

	o.emit(d, events.DeployBeforeInit, nil, 0)
	if h, ok := d.Pack.(Initializer); ok {
		if err := h.Init(ctx, d); err != nil {
			return fmt.Errorf("init failure: %w", err)
		}
	}
	o.emit(d, events.DeployAfterInit, nil, 0)

	o.emit(d, events.DeployBeforeBuild, nil, 0)
	if h, ok := d.Pack.(Builder); ok {
		if err := h.Build(ctx, d); err != nil {
			return fmt.Errorf("build failure: %w", err)
		}
	}
	o.emit(d, events.DeployAfterBuild, nil, 0)

	o.emit(d, events.DeployBeforePurge, nil, 0)
	if err := o.purge(ctx); err != nil {
		return fmt.Errorf("purge failure: %w", err)
	}
	o.emit(d, events.DeployAfterPurge, nil, 0)

	o.emit(d, events.DeployBeforeDestroy, nil, 0)
	if h, ok := d.Pack.(Destroyer); ok {
		if err := h.Destroy(ctx, d); err != nil {
			return fmt.Errorf("destroy failure: %w", err)
		}
	}
	o.emit(d, events.DeployAfterDestroy, nil, 0)
	return nil
}

// unpack copies the source into a private working directory and builds the
// placeholder lookup.
func (o *Orchestrator) unpack(ctx context.Context, d *Deployment) error {
	source := d.Spec.Path
	if source == "" {
		source = "."
	}
	if git.IsURL(source) {
		d.Log.Info("cloning source", logger.String("url", source))
		dir, err := o.clone(ctx, source)
		if err != nil {
			return fmt.Errorf("unpack failure: %w", err)
		}
		d.Source = dir
		d.cloned = true
	} else {
		abs, err := filepath.Abs(source)
		if err != nil {
			return fmt.Errorf("unpack failure: %w", err)
		}
		d.Source = abs
	}

	workdir, err := os.MkdirTemp("", "deploy-"+d.Spec.Name+"-*")
	if err != nil {
		return fmt.Errorf("unpack failure: %w", err)
	}
	d.Workdir = workdir

	if err := workspace.Copy(d.Source, d.Workdir); err != nil {
		return fmt.Errorf("unpack failure: %w", err)
	}

	dotenv, err := placeholder.Dotenv(filepath.Join(d.Source, o.opts.Dotenv))
	if err != nil {
		return fmt.Errorf("unpack failure: %w", err)
	}
	settings, err := o.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("unpack failure: %w", err)
	}
	d.lookup = placeholder.Chain(
		dotenv,
		placeholder.Map(settings.ServiceSecrets(d.Spec.Name)),
		placeholder.Map(settings.Secrets),
	)
	return nil
}

// purge removes dangling images, unused volumes and unused networks on the
// runner.
func (o *Orchestrator) purge(ctx context.Context) error {
	return errors.Join(
		o.runner.PruneImages(ctx),
		o.runner.PruneVolumes(ctx),
		o.runner.PruneNetworks(ctx),
	)
}

func (o *Orchestrator) cleanup(d *Deployment) {
	if d.Workdir != "" {
		_ = besteffort.Do(d.Log, "remove working directory", func() error {
			return os.RemoveAll(d.Workdir)
		})
	}
	if d.cloned {
		_ = besteffort.Do(d.Log, "remove cloned source", func() error {
			return os.RemoveAll(d.Source)
		})
	}
}

func (o *Orchestrator) emit(d *Deployment, kind events.Kind, err error, elapsed time.Duration) {
	o.bus.Emit(events.Event{
		Kind:         kind,
		Service:      d.Spec.Name,
		DeploymentID: d.ID,
		Err:          err,
		Elapsed:      elapsed,
	})
}
