package deploy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melih/lighthouse/internal/adapters/memory"
	"github.com/melih/lighthouse/internal/adapters/store"
	"github.com/melih/lighthouse/internal/core/domain"
	"github.com/melih/lighthouse/internal/events"
	"github.com/melih/lighthouse/internal/logger"
	"github.com/melih/lighthouse/internal/pipeline"
	"github.com/melih/lighthouse/internal/rollout"
)

// testPack writes a Dockerfile and deploys it.
type testPack struct {
	workdir   string
	destroyed bool
}

func (p *testPack) Name() string { return "test" }

func (p *testPack) Init(_ context.Context, d *Deployment) error {
	p.workdir = d.Workdir
	if d.Exists(d.DockerfileName()) {
		return nil
	}
	return d.WriteDockerfile("FROM scratch\n")
}

func (p *testPack) Build(ctx context.Context, d *Deployment) error {
	return d.Deploy(ctx)
}

func (p *testPack) Destroy(context.Context, *Deployment) error {
	p.destroyed = true
	return nil
}

type harness struct {
	engine *memory.Engine
	store  *store.File
	pack   *testPack
	orch   *Orchestrator

	mu     sync.Mutex
	events []events.Event
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		engine: memory.New("local"),
		store:  store.NewFile(filepath.Join(t.TempDir(), "config.yaml")),
		pack:   &testPack{},
	}
	log := logger.NewNop()
	bus := events.NewBus()
	bus.Subscribe(func(e events.Event) {
		h.mu.Lock()
		h.events = append(h.events, e)
		h.mu.Unlock()
	})

	h.orch = New(Deps{
		Runner:   h.engine,
		Pipeline: pipeline.New(h.engine, h.engine, time.Millisecond, log),
		Gate:     rollout.NewGate(h.engine, nil, nil, time.Millisecond, 50*time.Millisecond, log),
		Store:    h.store,
		Packs:    func(*domain.ServiceSpec) (Buildpack, error) { return h.pack, nil },
		Bus:      bus,
		Log:      log,
	}, Options{DataDir: "/var/lighthouse"})
	return h
}

func (h *harness) kinds() []events.Kind {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]events.Kind, 0, len(h.events))
	for _, e := range h.events {
		out = append(out, e.Kind)
	}
	return out
}

func (h *harness) last() events.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.events[len(h.events)-1]
}

func sourceDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func containers(t *testing.T, engine *memory.Engine, service string) map[string]domain.Container {
	t.Helper()
	all, err := engine.ListContainers(context.Background(), map[string]string{domain.LabelName: service})
	require.NoError(t, err)
	out := map[string]domain.Container{}
	for _, c := range all {
		out[c.Name] = c
	}
	return out
}

func TestExecuteFreshDeployment(t *testing.T) {
	h := newHarness(t)
	src := sourceDir(t, map[string]string{
		"Dockerfile": "FROM alpine\n",
		"index.html": "hello",
		".env":       "DB_PASSWORD=s3cret\n",
	})

	err := h.orch.Execute(context.Background(), &domain.ServiceSpec{
		Name:    "demo",
		Path:    src,
		Secrets: map[string]string{"PASSWORD": "@DB_PASSWORD"},
	})
	require.NoError(t, err)
	id := h.last().DeploymentID
	require.NotEmpty(t, id)

	got := containers(t, h.engine, "demo")
	require.Len(t, got, 1)
	c, ok := got["demo"]
	require.True(t, ok)
	assert.Equal(t, id, c.Labels[domain.LabelID])
	assert.Equal(t, domain.StatusRunning, c.Status)

	opts, ok := h.engine.Options("demo")
	require.True(t, ok)
	assert.Equal(t, "s3cret", opts.Env["PASSWORD"])
	assert.Equal(t, pipeline.ImageRef("demo", id), opts.Image)

	assert.Equal(t, []events.Kind{
		events.DeployStarted,
		events.DeployBeforeUnpack, events.DeployAfterUnpack,
		events.DeployBeforeInit, events.DeployAfterInit,
		events.DeployBeforeBuild, events.DeployAfterBuild,
		events.DeployBeforePurge, events.DeployAfterPurge,
		events.DeployBeforeDestroy, events.DeployAfterDestroy,
		events.DeploySuccessfully,
	}, h.kinds())
	assert.True(t, h.pack.destroyed)

	_, err = os.Stat(h.pack.workdir)
	assert.True(t, os.IsNotExist(err), "working directory is removed")
}

func TestExecuteReplacesIncumbent(t *testing.T) {
	h := newHarness(t)
	src := sourceDir(t, map[string]string{"Dockerfile": "FROM alpine\n"})
	spec := &domain.ServiceSpec{Name: "demo", Path: src}
	ctx := context.Background()

	require.NoError(t, h.orch.Execute(ctx, spec))
	first := h.last().DeploymentID
	require.NoError(t, h.orch.Execute(ctx, spec))
	second := h.last().DeploymentID
	require.NotEqual(t, first, second)

	got := containers(t, h.engine, "demo")
	require.Len(t, got, 1)
	assert.Equal(t, second, got["demo"].Labels[domain.LabelID])
}

func TestExecuteRollsBackUnhealthyContainer(t *testing.T) {
	h := newHarness(t)
	incumbentID := h.engine.Seed("demo", domain.ContainerOptions{
		Image:  "lighthouse/demo:old",
		Labels: map[string]string{domain.LabelName: "demo", domain.LabelID: "old"},
	})
	h.engine.SetProbe(func(c domain.Container, _ domain.ContainerOptions) (string, string) {
		if c.ID == incumbentID {
			return domain.StatusRunning, ""
		}
		return domain.StatusRunning, domain.HealthUnhealthy
	})

	src := sourceDir(t, map[string]string{"Dockerfile": "FROM alpine\n"})
	err := h.orch.Execute(context.Background(), &domain.ServiceSpec{Name: "demo", Path: src})
	require.Error(t, err)
	id := h.last().DeploymentID

	var derr *Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "demo", derr.Service)
	assert.ErrorIs(t, err, rollout.ErrUnhealthy)

	got := containers(t, h.engine, "demo")
	require.Contains(t, got, "demo")
	assert.Equal(t, incumbentID, got["demo"].ID)
	assert.Equal(t, domain.StatusRunning, got["demo"].Status)

	failed, ok := got["demo-"+id]
	require.True(t, ok, "failed container is kept for inspection")
	assert.Equal(t, domain.StatusExited, failed.Status)

	last := h.last()
	assert.Equal(t, events.DeployFailure, last.Kind)
	assert.ErrorIs(t, last.Err, rollout.ErrUnhealthy)
	assert.Positive(t, last.Elapsed)
}

func TestExecuteRejectsInvalidSpec(t *testing.T) {
	h := newHarness(t)

	err := h.orch.Execute(context.Background(), &domain.ServiceSpec{Name: "Not A Name"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidSpec)
	assert.Empty(t, h.engine.Calls())
	assert.Empty(t, h.kinds())
}

func TestExecuteFailsOnPurgeError(t *testing.T) {
	h := newHarness(t)
	boom := errors.New("volume in use")
	h.engine.Fail("PruneVolumes", boom)

	src := sourceDir(t, map[string]string{"Dockerfile": "FROM alpine\n"})
	err := h.orch.Execute(context.Background(), &domain.ServiceSpec{Name: "demo", Path: src})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, h.kinds(), events.DeployBeforePurge)
	assert.NotContains(t, h.kinds(), events.DeployAfterPurge)
	assert.Equal(t, events.DeployFailure, h.last().Kind)
}

func TestExecuteBuildOptions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s := domain.NewSettings()
	s.Secrets["registry"] = "registry.example.com"
	s.SetServiceSecret("demo", "npm_token", "abc")
	require.NoError(t, h.store.Save(ctx, s))

	cache := false
	src := sourceDir(t, map[string]string{"build/Dockerfile.prod": "FROM alpine\n"})
	err := h.orch.Execute(ctx, &domain.ServiceSpec{
		Name:      "demo",
		Path:      src,
		File:      "build/Dockerfile.prod",
		Cache:     &cache,
		BuildArgs: map[string]string{"REGISTRY": "@registry"},
		Secrets:   map[string]string{"NPM_TOKEN": "@npm_token"},
	})
	require.NoError(t, err)

	builds := h.engine.Builds()
	require.Len(t, builds, 1)
	b := builds[0].Options
	assert.Equal(t, "build/Dockerfile.prod", b.Dockerfile)
	assert.True(t, b.NoCache)
	assert.Equal(t, "registry.example.com", b.Args["REGISTRY"])
	assert.Equal(t, "abc", b.Args["NPM_TOKEN"])
	assert.Equal(t, "demo", b.Labels[domain.LabelName])
}

func TestExecuteIgnoresExcludedFiles(t *testing.T) {
	h := newHarness(t)
	var seen []string
	h.orch.packs = func(*domain.ServiceSpec) (Buildpack, error) {
		return hookPack{init: func(d *Deployment) error {
			for _, name := range []string{"Dockerfile", "app.go", "node_modules/x.js", ".git/HEAD"} {
				if d.Exists(name) {
					seen = append(seen, name)
				}
			}
			return nil
		}}, nil
	}

	src := sourceDir(t, map[string]string{
		"Dockerfile":        "FROM alpine\n",
		"app.go":            "package main\n",
		"node_modules/x.js": "",
		".git/HEAD":         "ref: refs/heads/main\n",
		".gitignore":        "node_modules/\n",
	})
	err := h.orch.Execute(context.Background(), &domain.ServiceSpec{Name: "demo", Path: src})
	require.NoError(t, err)
	assert.Equal(t, []string{"Dockerfile", "app.go"}, seen)
}

type hookPack struct {
	init func(d *Deployment) error
}

func (hookPack) Name() string { return "hook" }

func (p hookPack) Init(_ context.Context, d *Deployment) error { return p.init(d) }

func TestExecuteAllContinuesAfterFailure(t *testing.T) {
	h := newHarness(t)
	src := sourceDir(t, map[string]string{"Dockerfile": "FROM alpine\n"})

	r := h.orch.Services()
	require.NoError(t, r.Register(
		&domain.ServiceSpec{Name: "api", Path: src},
		&domain.ServiceSpec{Name: "web", Path: src},
	))
	require.Error(t, r.Register(&domain.ServiceSpec{Name: "api"}))
	assert.Equal(t, []string{"api", "web"}, r.Names())

	err := h.orch.ExecuteAll(context.Background(), "missing", "web")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "missing"))
	assert.Contains(t, containers(t, h.engine, "web"), "web")
	assert.Empty(t, containers(t, h.engine, "api"))
}

func TestKeyedMutexSerializesPerKey(t *testing.T) {
	var k keyedMutex
	var active, peak int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("demo")
			mu.Lock()
			active++
			if active > peak {
				peak = active
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, peak)
	assert.Empty(t, k.locks)
}
