package rollout

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melih/lighthouse/internal/adapters/memory"
	"github.com/melih/lighthouse/internal/core/domain"
	"github.com/melih/lighthouse/internal/logger"
	"github.com/melih/lighthouse/internal/proxy"
)

type fakeProxy struct {
	networks, ensures int
}

func (f *fakeProxy) EnsureNetwork(context.Context) error { f.networks++; return nil }
func (f *fakeProxy) Ensure(context.Context) error        { f.ensures++; return nil }

type fakeReconciler struct {
	inserted [][]int
}

func (f *fakeReconciler) Reconcile(_ context.Context, op proxy.Op, ports []int) ([]int, error) {
	if op == proxy.Insert {
		f.inserted = append(f.inserted, ports)
	}
	return ports, nil
}

func newGate(engine *memory.Engine) *Gate {
	return NewGate(engine, nil, nil, time.Millisecond, 50*time.Millisecond, logger.NewNop())
}

func request(engine *memory.Engine, service, id string) StartRequest {
	image := "lighthouse/" + service + ":" + id
	_ = engine.PullImage(context.Background(), image)
	return StartRequest{
		Service:      service,
		DeploymentID: id,
		Options: domain.ContainerOptions{
			Image:  image,
			Labels: map[string]string{domain.LabelName: service, domain.LabelID: id},
		},
	}
}

func seedIncumbent(engine *memory.Engine, service, id string) string {
	return engine.Seed(service, domain.ContainerOptions{
		Image:  "lighthouse/" + service + ":" + id,
		Labels: map[string]string{domain.LabelName: service, domain.LabelID: id},
	})
}

func byName(t *testing.T, engine *memory.Engine, service string) map[string]domain.Container {
	t.Helper()
	all, err := engine.ListContainers(context.Background(), map[string]string{domain.LabelName: service})
	require.NoError(t, err)
	out := map[string]domain.Container{}
	for _, c := range all {
		out[c.Name] = c
	}
	return out
}

// unhealthyFor reports images matching ref as unhealthy and everything else healthy.
func unhealthyFor(ref, health string) memory.Probe {
	return func(c domain.Container, _ domain.ContainerOptions) (string, string) {
		if c.Image == ref {
			return domain.StatusRunning, health
		}
		return domain.StatusRunning, domain.HealthHealthy
	}
}

func TestStartWithoutIncumbent(t *testing.T) {
	engine := memory.New("local")
	g := newGate(engine)

	require.NoError(t, g.Start(context.Background(), request(engine, "demo", "100")))

	containers := byName(t, engine, "demo")
	require.Len(t, containers, 1)
	assert.Equal(t, domain.StatusRunning, containers["demo"].Status)
	assert.Equal(t, "100", containers["demo"].Labels[domain.LabelID])
}

func TestStartReplacesIncumbent(t *testing.T) {
	engine := memory.New("local")
	seedIncumbent(engine, "demo", "100")
	g := newGate(engine)

	require.NoError(t, g.Start(context.Background(), request(engine, "demo", "200")))

	containers := byName(t, engine, "demo")
	require.Len(t, containers, 1, "the renamed incumbent is pruned")
	assert.Equal(t, "200", containers["demo"].Labels[domain.LabelID])
	assert.Equal(t, domain.StatusRunning, containers["demo"].Status)
}

func TestStartUnhealthyRestoresIncumbent(t *testing.T) {
	engine := memory.New("local")
	oldID := seedIncumbent(engine, "demo", "100")
	engine.SetProbe(unhealthyFor("lighthouse/demo:200", domain.HealthUnhealthy))
	g := newGate(engine)

	err := g.Start(context.Background(), request(engine, "demo", "200"))
	require.ErrorIs(t, err, ErrUnhealthy)
	assert.Contains(t, err.Error(), "demo-200")

	containers := byName(t, engine, "demo")
	require.Len(t, containers, 2)
	assert.Equal(t, oldID, containers["demo"].ID)
	assert.Equal(t, domain.StatusRunning, containers["demo"].Status)
	assert.Contains(t, containers, "demo-200", "failed container is kept for diagnosis")
}

func TestStartTimeoutRestoresIncumbent(t *testing.T) {
	engine := memory.New("local")
	oldID := seedIncumbent(engine, "demo", "100")
	engine.SetProbe(unhealthyFor("lighthouse/demo:200", domain.HealthStarting))
	g := newGate(engine)

	err := g.Start(context.Background(), request(engine, "demo", "200"))
	require.ErrorIs(t, err, ErrHealthTimeout)

	containers := byName(t, engine, "demo")
	assert.Equal(t, oldID, containers["demo"].ID)
	assert.Equal(t, domain.StatusRunning, containers["demo"].Status)
	assert.Contains(t, containers, "demo-200")
}

func TestStartExitedIsUnhealthy(t *testing.T) {
	engine := memory.New("local")
	engine.SetProbe(func(domain.Container, domain.ContainerOptions) (string, string) {
		return domain.StatusExited, ""
	})
	g := newGate(engine)

	err := g.Start(context.Background(), request(engine, "demo", "1"))
	assert.ErrorIs(t, err, ErrUnhealthy)
}

func TestStartRequestBoundsOverrideDefaults(t *testing.T) {
	engine := memory.New("local")
	engine.SetProbe(unhealthyFor("lighthouse/demo:1", domain.HealthStarting))
	g := NewGate(engine, nil, nil, time.Hour, time.Hour, logger.NewNop())

	req := request(engine, "demo", "1")
	req.Interval = time.Millisecond
	req.Timeout = 5 * time.Millisecond

	start := time.Now()
	err := g.Start(context.Background(), req)
	assert.ErrorIs(t, err, ErrHealthTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestStartFinalRenameFailureRollsBack(t *testing.T) {
	engine := memory.New("local")
	oldID := seedIncumbent(engine, "demo", "100")
	// only the candidate's rename to the canonical name is refused
	engine.FailWhen("RenameContainer", func(arg string) bool {
		return strings.HasSuffix(arg, " demo") && !strings.HasPrefix(arg, oldID+" ")
	}, assert.AnError)
	g := newGate(engine)

	err := g.Start(context.Background(), request(engine, "demo", "200"))
	require.ErrorIs(t, err, assert.AnError)

	containers := byName(t, engine, "demo")
	require.Len(t, containers, 2)
	assert.Equal(t, oldID, containers["demo"].ID)
	assert.Equal(t, domain.StatusRunning, containers["demo"].Status)
	assert.Contains(t, containers, "demo-200")
}

func TestStartPreparesProxyAndPorts(t *testing.T) {
	engine := memory.New("local")
	px := &fakeProxy{}
	rec := &fakeReconciler{}
	g := NewGate(engine, px, rec, time.Millisecond, 50*time.Millisecond, logger.NewNop())

	req := request(engine, "demo", "1")
	req.Options.Network = "lighthouse"
	req.Routed = true
	req.HostPorts = []int{5432}
	require.NoError(t, g.Start(context.Background(), req))

	assert.Equal(t, 1, px.networks)
	assert.Equal(t, 1, px.ensures)
	assert.Equal(t, [][]int{{5432}}, rec.inserted)
}

func TestStartUnroutedSkipsProxy(t *testing.T) {
	engine := memory.New("local")
	px := &fakeProxy{}
	g := NewGate(engine, px, &fakeReconciler{}, time.Millisecond, 50*time.Millisecond, logger.NewNop())

	require.NoError(t, g.Start(context.Background(), request(engine, "worker", "1")))
	assert.Zero(t, px.ensures)
}

func TestPruneInconsistent(t *testing.T) {
	engine := memory.New("local")
	seedIncumbent(engine, "demo", "300")
	engine.Seed("demo-1700000000000", domain.ContainerOptions{
		Image:  "lighthouse/demo:100",
		Labels: map[string]string{domain.LabelName: "demo", domain.LabelID: "100"},
	})
	engine.Seed("demo-200", domain.ContainerOptions{
		Image:  "lighthouse/demo:200",
		Labels: map[string]string{domain.LabelName: "demo", domain.LabelID: "200"},
	})
	engine.Seed("demo-300-debug", domain.ContainerOptions{
		Image:  "lighthouse/demo:300",
		Labels: map[string]string{domain.LabelName: "demo", domain.LabelID: "300"},
	})
	engine.Seed("other", domain.ContainerOptions{
		Image:  "lighthouse/other:1",
		Labels: map[string]string{domain.LabelName: "other", domain.LabelID: "1"},
	})

	require.NoError(t, newGate(engine).PruneInconsistent(context.Background(), "demo", "300"))

	names := make([]string, 0)
	for name := range byName(t, engine, "demo") {
		names = append(names, name)
	}
	assert.ElementsMatch(t, []string{"demo", "demo-300-debug"}, names)
	assert.Len(t, byName(t, engine, "other"), 1)
}

func TestContainerOptions(t *testing.T) {
	oomKill := false
	spec := &domain.ServiceSpec{
		Name:    "demo",
		Domain:  []string{"demo.example.com"},
		Secrets: map[string]string{"DB_URL": "@db", "PLAIN": "x"},
		Labels:  map[string]string{"team": "@team"},
		Volumes: []domain.Volume{
			{HostPath: "@/uploads", ContainerPath: "/app/uploads"},
			{HostPath: "/srv/@{site}", ContainerPath: "/srv", ReadOnly: true},
		},
		Healthcheck: &domain.HealthcheckDef{Commands: []string{"curl", "-f", "http://localhost"}, Retries: 3},
		OOMKill:     &oomKill,
	}
	lookup := func(name string) (string, bool) {
		v, ok := map[string]string{"db": "postgres://db", "team": "core", "site": "blog"}[name]
		return v, ok
	}

	opts := ContainerOptions(spec, "lighthouse/demo:1", "1", Environment{
		Lookup:  lookup,
		DataDir: "/var/lighthouse",
		Network: "lighthouse",
		Proxy:   proxy.LabelOptions{CertResolver: "lighthouse", Network: "lighthouse"},
	})

	assert.Equal(t, "postgres://db", opts.Env["DB_URL"])
	assert.Equal(t, "x", opts.Env["PLAIN"])
	assert.Equal(t, "demo", opts.Env["LIGHTHOUSE_NAME"])
	assert.Equal(t, "1", opts.Env["LIGHTHOUSE_ID"])
	assert.Equal(t, "core", opts.Labels["team"])
	assert.Equal(t, "demo", opts.Labels[domain.LabelName])
	assert.Equal(t, "1", opts.Labels[domain.LabelID])
	assert.Equal(t, "true", opts.Labels["traefik.enable"])
	assert.Equal(t, DefaultRestart, opts.Restart)
	assert.True(t, opts.OOMKillDisable)
	assert.Equal(t, []string{"CMD", "curl", "-f", "http://localhost"}, opts.Healthcheck.Test)
	assert.Equal(t, []string{
		"/var/lighthouse/volumes/uploads:/app/uploads:rw",
		"/srv/blog:/srv:ro",
	}, opts.Binds)
	for k := range opts.Labels {
		assert.False(t, strings.HasPrefix(k, "traefik.tcp."), k)
	}
}

func TestStartIgnoresUnlabeledIDPrefixMatch(t *testing.T) {
	engine := memory.New("local")
	stranger := engine.Seed("stranger", domain.ContainerOptions{Image: "postgres:16"})
	service := stranger[:4]
	g := newGate(engine)

	require.NoError(t, g.Start(context.Background(), request(engine, service, "100")))

	other, err := engine.InspectContainer(context.Background(), stranger)
	require.NoError(t, err)
	assert.Equal(t, "stranger", other.Name)
	assert.Equal(t, domain.StatusRunning, other.Status)
	assert.NotContains(t, engine.Calls(), "StopContainer "+stranger)

	containers := byName(t, engine, service)
	require.Len(t, containers, 1)
	assert.Equal(t, "100", containers[service].Labels[domain.LabelID])
}
