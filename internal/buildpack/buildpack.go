// Package buildpack holds the strategies that turn a source tree into a
// running container.
package buildpack

import (
	"fmt"
	"sort"
	"sync"

	"github.com/mitchellh/mapstructure"

	"github.com/melih/lighthouse/internal/core/domain"
	"github.com/melih/lighthouse/internal/deploy"
)

// Default is the pack of services that do not name one.
const Default = "dockerfile"

// Factory builds a pack from the spec's free-form options.
type Factory func(options map[string]any) (deploy.Buildpack, error)

// Registry maps pack names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a registry holding the built-in packs.
func NewRegistry() *Registry {
	r := &Registry{factories: map[string]Factory{}}
	r.Register("image", NewImage)
	r.Register("dockerfile", NewDockerfile)
	r.Register("static", NewStatic)
	return r
}

// Register binds name to f, replacing any earlier binding.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Names returns the registered pack names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve returns the pack a spec names, built from its options.
func (r *Registry) Resolve(spec *domain.ServiceSpec) (deploy.Buildpack, error) {
	name := spec.Pack
	if name == "" {
		name = Default
	}
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown pack %q: %w", name, domain.ErrInvalidSpec)
	}
	pack, err := f(spec.Options)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", name, err)
	}
	return pack, nil
}

// decodeOptions fills out from options. Unknown keys are rejected so typos
// surface before the deployment starts.
func decodeOptions(options map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(options); err != nil {
		return fmt.Errorf("%v: %w", err, domain.ErrInvalidSpec)
	}
	return nil
}
