package memory

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/melih/lighthouse/internal/core/domain"
	"github.com/melih/lighthouse/internal/core/ports"
)

// Probe decides the state a started container reports on inspection.
// It returns the status and the health (empty when no check is configured).
type Probe func(c domain.Container, opts domain.ContainerOptions) (status, health string)

// Engine is an in-process ports.Engine. It keeps containers, images and
// networks in maps and never touches a daemon. Used by dry runs and tests.
type Engine struct {
	endpoint string

	mu         sync.Mutex
	seq        int
	containers map[string]*entry // by ID
	images     map[string]struct{}
	networks   map[string]struct{}
	builds     []Build
	failures   map[string]func(arg string) error
	probe      Probe
	calls      []string
}

type entry struct {
	c    domain.Container
	opts domain.ContainerOptions
}

// Build records one BuildImage call.
type Build struct {
	ContextDir string
	Tag        string
	Options    domain.BuildOptions
}

var _ ports.Engine = (*Engine)(nil)

// New returns an empty engine identified by endpoint.
func New(endpoint string) *Engine {
	return &Engine{
		endpoint:   endpoint,
		containers: map[string]*entry{},
		images:     map[string]struct{}{},
		networks:   map[string]struct{}{},
		failures:   map[string]func(string) error{},
		probe:      DefaultProbe,
	}
}

// DefaultProbe reports every started container as running, and healthy when
// it declares a health check.
func DefaultProbe(_ domain.Container, opts domain.ContainerOptions) (string, string) {
	if opts.Healthcheck != nil {
		return domain.StatusRunning, domain.HealthHealthy
	}
	return domain.StatusRunning, ""
}

// SetProbe replaces the state reported by started containers.
func (e *Engine) SetProbe(p Probe) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.probe = p
}

// Fail makes every later call of op return err. A nil err clears it.
// Operation names are the method names, ex: "BuildImage".
func (e *Engine) Fail(op string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err == nil {
		delete(e.failures, op)
		return
	}
	e.failures[op] = func(string) error { return err }
}

// FailWhen makes calls of op fail with err when match accepts the call
// argument, ex: "<id> <name>" for RenameContainer.
func (e *Engine) FailWhen(op string, match func(arg string) bool, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures[op] = func(arg string) error {
		if match(arg) {
			return err
		}
		return nil
	}
}

// Builds returns the recorded BuildImage calls.
func (e *Engine) Builds() []Build {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Build(nil), e.builds...)
}

// Calls returns the operation log, ex: "CreateContainer demo-123".
func (e *Engine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

// HasImage reports whether ref was built, pulled or loaded.
func (e *Engine) HasImage(ref string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.images[ref]
	return ok
}

// HasNetwork reports whether a network exists.
func (e *Engine) HasNetwork(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.networks[name]
	return ok
}

// Options returns the creation options of a container.
func (e *Engine) Options(nameOrID string) (domain.ContainerOptions, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	en := e.find(nameOrID)
	if en == nil {
		return domain.ContainerOptions{}, false
	}
	return en.opts, true
}

// Seed adds a running container as if it had been deployed earlier.
func (e *Engine) Seed(name string, opts domain.ContainerOptions) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextID()
	e.containers[id] = &entry{
		c: domain.Container{
			ID:      id,
			Name:    name,
			Image:   opts.Image,
			Status:  domain.StatusRunning,
			Labels:  copyMap(opts.Labels),
			Created: time.Now(),
		},
		opts: opts,
	}
	e.images[opts.Image] = struct{}{}
	return id
}

func (e *Engine) Endpoint() string { return e.endpoint }

func (e *Engine) ListContainers(_ context.Context, labels map[string]string) ([]domain.Container, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record("ListContainers", ""); err != nil {
		return nil, err
	}

	var out []domain.Container
	for _, en := range e.containers {
		if matches(en.c.Labels, labels) {
			out = append(out, en.c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (e *Engine) InspectContainer(_ context.Context, nameOrID string) (*domain.Container, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record("InspectContainer", nameOrID); err != nil {
		return nil, err
	}
	en := e.find(nameOrID)
	if en == nil {
		return nil, fmt.Errorf("container %s: %w", nameOrID, ports.ErrNotFound)
	}
	c := en.c
	return &c, nil
}

func (e *Engine) CreateContainer(_ context.Context, name string, opts domain.ContainerOptions) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record("CreateContainer", name); err != nil {
		return "", err
	}
	if e.named(name) != nil {
		return "", fmt.Errorf("container name %s already in use", name)
	}
	if _, ok := e.images[opts.Image]; !ok {
		return "", fmt.Errorf("image %s: %w", opts.Image, ports.ErrNotFound)
	}
	id := e.nextID()
	e.containers[id] = &entry{
		c: domain.Container{
			ID:      id,
			Name:    name,
			Image:   opts.Image,
			Status:  domain.StatusCreated,
			Labels:  copyMap(opts.Labels),
			Created: time.Now(),
		},
		opts: opts,
	}
	return id, nil
}

func (e *Engine) StartContainer(_ context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record("StartContainer", id); err != nil {
		return err
	}
	en := e.find(id)
	if en == nil {
		return fmt.Errorf("container %s: %w", id, ports.ErrNotFound)
	}
	en.c.Status, en.c.Health = e.probe(en.c, en.opts)
	return nil
}

func (e *Engine) StopContainer(_ context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record("StopContainer", id); err != nil {
		return err
	}
	en := e.find(id)
	if en == nil {
		return fmt.Errorf("container %s: %w", id, ports.ErrNotFound)
	}
	en.c.Status, en.c.Health = domain.StatusExited, ""
	return nil
}

func (e *Engine) RemoveContainer(_ context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record("RemoveContainer", id); err != nil {
		return err
	}
	en := e.find(id)
	if en == nil {
		return fmt.Errorf("container %s: %w", id, ports.ErrNotFound)
	}
	delete(e.containers, en.c.ID)
	return nil
}

func (e *Engine) RenameContainer(_ context.Context, id, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record("RenameContainer", id+" "+name); err != nil {
		return err
	}
	en := e.find(id)
	if en == nil {
		return fmt.Errorf("container %s: %w", id, ports.ErrNotFound)
	}
	if other := e.named(name); other != nil && other != en {
		return fmt.Errorf("container name %s already in use", name)
	}
	en.c.Name = name
	return nil
}

func (e *Engine) ContainerLogs(_ context.Context, id string, _ bool, _ string) (io.ReadCloser, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record("ContainerLogs", id); err != nil {
		return nil, err
	}
	en := e.find(id)
	if en == nil {
		return nil, fmt.Errorf("container %s: %w", id, ports.ErrNotFound)
	}
	line := fmt.Sprintf("%s %s %s\n", en.c.Created.Format(time.RFC3339), en.c.Name, en.c.Status)
	return io.NopCloser(strings.NewReader(line)), nil
}

// BuildImage requires the Dockerfile to exist in contextDir.
func (e *Engine) BuildImage(_ context.Context, contextDir, tag string, opts domain.BuildOptions) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record("BuildImage", tag); err != nil {
		return err
	}
	dockerfile := opts.Dockerfile
	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}
	if _, err := os.Stat(filepath.Join(contextDir, dockerfile)); err != nil {
		return fmt.Errorf("failed to build image %s: %w", tag, err)
	}
	e.builds = append(e.builds, Build{ContextDir: contextDir, Tag: tag, Options: opts})
	e.images[tag] = struct{}{}
	return nil
}

func (e *Engine) PullImage(_ context.Context, ref string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record("PullImage", ref); err != nil {
		return err
	}
	e.images[ref] = struct{}{}
	return nil
}

// imageHeader starts every archive written by SaveImage.
const imageHeader = "lighthouse-image "

// SaveImage writes a fake archive: a header line naming ref, then filler.
func (e *Engine) SaveImage(_ context.Context, ref string) (io.ReadCloser, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record("SaveImage", ref); err != nil {
		return nil, err
	}
	if _, ok := e.images[ref]; !ok {
		return nil, fmt.Errorf("image %s: %w", ref, ports.ErrNotFound)
	}
	var buf bytes.Buffer
	buf.WriteString(imageHeader + ref + "\n")
	buf.Write(bytes.Repeat([]byte{0}, 64*1024))
	return io.NopCloser(&buf), nil
}

func (e *Engine) LoadImage(_ context.Context, r io.Reader) error {
	e.mu.Lock()
	err := e.record("LoadImage", "")
	e.mu.Unlock()
	if err != nil {
		return err
	}

	br := bufio.NewReader(r)
	header, err := br.ReadString('\n')
	if err != nil {
		return fmt.Errorf("failed to load image: %w", err)
	}
	if !strings.HasPrefix(header, imageHeader) {
		return fmt.Errorf("failed to load image: unexpected archive header")
	}
	if _, err := io.Copy(io.Discard, br); err != nil {
		return fmt.Errorf("failed to load image: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.images[strings.TrimSpace(strings.TrimPrefix(header, imageHeader))] = struct{}{}
	return nil
}

func (e *Engine) PruneImages(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.record("PruneImages", "")
}

func (e *Engine) EnsureNetwork(_ context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record("EnsureNetwork", name); err != nil {
		return err
	}
	e.networks[name] = struct{}{}
	return nil
}

func (e *Engine) PruneNetworks(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.record("PruneNetworks", "")
}

func (e *Engine) PruneVolumes(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.record("PruneVolumes", "")
}

// record logs the call and returns the injected failure, if any. Callers hold mu.
func (e *Engine) record(op, arg string) error {
	call := op
	if arg != "" {
		call += " " + arg
	}
	e.calls = append(e.calls, call)
	if fail, ok := e.failures[op]; ok {
		return fail(arg)
	}
	return nil
}

// find resolves like the daemon: exact ID, then name, then ID prefix.
func (e *Engine) find(nameOrID string) *entry {
	if en, ok := e.containers[nameOrID]; ok {
		return en
	}
	if en := e.named(nameOrID); en != nil {
		return en
	}
	var match *entry
	for id, en := range e.containers {
		if strings.HasPrefix(id, nameOrID) {
			if match != nil {
				return nil
			}
			match = en
		}
	}
	return match
}

func (e *Engine) named(name string) *entry {
	for _, en := range e.containers {
		if en.c.Name == name {
			return en
		}
	}
	return nil
}

// nextID returns sortable IDs so listings are stable.
func (e *Engine) nextID() string {
	e.seq++
	return "c" + strconv.FormatInt(int64(e.seq)+1_000_000, 10)
}

func matches(have, want map[string]string) bool {
	for k, v := range want {
		if have[k] != v {
			return false
		}
	}
	return true
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
