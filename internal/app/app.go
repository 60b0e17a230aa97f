package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/melih/lighthouse/internal/adapters/docker"
	"github.com/melih/lighthouse/internal/adapters/memory"
	"github.com/melih/lighthouse/internal/adapters/store"
	"github.com/melih/lighthouse/internal/buildpack"
	"github.com/melih/lighthouse/internal/config"
	"github.com/melih/lighthouse/internal/core/ports"
	"github.com/melih/lighthouse/internal/deploy"
	"github.com/melih/lighthouse/internal/events"
	"github.com/melih/lighthouse/internal/logger"
	"github.com/melih/lighthouse/internal/metrics"
	"github.com/melih/lighthouse/internal/pipeline"
	"github.com/melih/lighthouse/internal/proxy"
	"github.com/melih/lighthouse/internal/rollout"
	"github.com/melih/lighthouse/internal/version"
)

// redisPingTimeout bounds each connection attempt to Redis.
const redisPingTimeout = 2 * time.Second

// App holds every wired component of one CLI run.
type App struct {
	Config       *config.Config
	Log          logger.Logger
	Bus          *events.Bus
	Runner       ports.Engine
	Store        ports.SettingsStore
	Proxy        *proxy.Manager
	Reconciler   *proxy.Reconciler
	Gate         *rollout.Gate
	Packs        *buildpack.Registry
	Orchestrator *deploy.Orchestrator
	Metrics      *metrics.Collector

	closers []io.Closer
}

// New wires the application from cfg. Build and pull progress of the docker
// engines is written to out.
func New(cfg *config.Config, out io.Writer) (*App, error) {
	log := logger.New(cfg.LogLevel, cfg.PrettyLog)
	log.Debug("lighthouse starting",
		logger.String("version", version.Version),
		logger.String("commit", version.Commit),
		logger.String("go", version.GoVersion))

	a := &App{Config: cfg, Log: log, Bus: events.NewBus()}

	builder, runner, err := a.engines(out)
	if err != nil {
		return nil, errors.Join(err, a.Close())
	}
	a.Runner = runner

	st, err := a.store()
	if err == nil && cfg.Engine == "memory" {
		st, err = a.scratchStore(st)
	}
	if err != nil {
		return nil, errors.Join(err, a.Close())
	}
	a.Store = st

	a.Metrics = metrics.New()
	a.Metrics.Subscribe(a.Bus)

	a.Proxy = proxy.NewManager(runner, st, a.Bus, log, proxy.Options{
		Name:         cfg.ProxyName,
		Image:        cfg.ProxyImage,
		Network:      cfg.Network,
		DataDir:      cfg.DataDir,
		CertResolver: cfg.CertResolver,
		ACMEEmail:    cfg.ACMEEmail,
	})
	a.Reconciler = proxy.NewReconciler(st, a.Proxy, log)
	a.Gate = rollout.NewGate(runner, a.Proxy, a.Reconciler, cfg.HealthInterval, cfg.HealthTimeout, log)
	pipe := pipeline.New(builder, runner, cfg.ProgressInterval, log)

	a.Packs = buildpack.NewRegistry()
	a.Orchestrator = deploy.New(deploy.Deps{
		Runner:   runner,
		Pipeline: pipe,
		Gate:     a.Gate,
		Store:    st,
		Packs:    a.Packs.Resolve,
		Bus:      a.Bus,
		Log:      log,
	}, deploy.Options{
		DataDir: cfg.DataDir,
		Network: cfg.Network,
		Labels:  a.Proxy.LabelOptions(),
		Dotenv:  cfg.DotenvFile,
	})
	return a, nil
}

// engines returns the builder and runner engines. They are the same client
// when both hosts match.
func (a *App) engines(out io.Writer) (ports.Engine, ports.Engine, error) {
	cfg := a.Config
	if cfg.Engine == "memory" {
		a.Log.Info("using in-memory engine, nothing is deployed")
		e := memory.New("memory://" + cfg.BuilderHost)
		return e, e, nil
	}

	builder, err := docker.NewAdapter(cfg.BuilderHost, out)
	if err != nil {
		return nil, nil, err
	}
	a.closers = append(a.closers, builder)

	if cfg.RunnerHost == "" || cfg.RunnerHost == cfg.BuilderHost {
		return builder, builder, nil
	}
	runner, err := docker.NewAdapter(cfg.RunnerHost, out)
	if err != nil {
		return nil, nil, err
	}
	a.closers = append(a.closers, runner)
	a.Log.Info("building and running on separate daemons",
		logger.String("builder", builder.Endpoint()),
		logger.String("runner", runner.Endpoint()))
	return builder, runner, nil
}

func (a *App) store() (ports.SettingsStore, error) {
	cfg := a.Config
	if cfg.Store == "file" {
		return store.NewFile(cfg.StoreFile), nil
	}

	a.Log.Infof("Connecting to Redis at %s", cfg.RedisAddr)
	client, err := store.Connect(store.ConnectOptions{
		Addr:           cfg.RedisAddr,
		User:           cfg.RedisUser,
		Password:       cfg.RedisPassword,
		RedisDB:        cfg.RedisDB,
		ConnectTimeout: cfg.RedisConnectTimeout,
		RetryInterval:  cfg.RedisRetryInterval,
		MaxWait:        cfg.RedisMaxWait,
		PingTimeout:    redisPingTimeout,
	}, a.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	rs := store.NewRedis(client, cfg.RedisKey)
	a.closers = append(a.closers, rs)
	return rs, nil
}

// scratchStore copies the settings into a temporary file store so dry runs
// never change the persisted proxy ports.
func (a *App) scratchStore(src ports.SettingsStore) (ports.SettingsStore, error) {
	ctx := context.Background()
	settings, err := src.Load(ctx)
	if err != nil {
		return nil, err
	}
	dir, err := os.MkdirTemp("", "lighthouse-dry-run-*")
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closerFunc(func() error { return os.RemoveAll(dir) }))

	scratch := store.NewFile(filepath.Join(dir, "config.yaml"))
	if err := scratch.Save(ctx, settings); err != nil {
		return nil, err
	}
	return scratch, nil
}

// Close writes the metrics textfile when configured and releases clients.
func (a *App) Close() error {
	var errs []error
	if a.Metrics != nil && a.Config.MetricsFile != "" {
		errs = append(errs, a.Metrics.WriteTextfile(a.Config.MetricsFile))
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	a.closers = nil
	if err := a.Log.Sync(); err != nil {
		a.Log.Debug("logger sync failed", logger.Error(err))
	}
	return errors.Join(errs...)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
