package deploy

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/melih/lighthouse/internal/core/domain"
)

// Registry holds the service specs known to a run, in registration order.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]*domain.ServiceSpec
	order []string
}

func NewRegistry() *Registry {
	return &Registry{specs: map[string]*domain.ServiceSpec{}}
}

// Register adds specs. Names must be unique.
func (r *Registry) Register(specs ...*domain.ServiceSpec) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range specs {
		if _, ok := r.specs[s.Name]; ok {
			return fmt.Errorf("service %s already registered: %w", s.Name, domain.ErrInvalidSpec)
		}
		r.specs[s.Name] = s
		r.order = append(r.order, s.Name)
	}
	return nil
}

func (r *Registry) Get(name string) (*domain.ServiceSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.specs[name]
	return s, ok
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// ExecuteAll deploys the named registered services one after another, or
// every registered service when names is empty. A failed service does not
// stop the others; all failures are joined into the returned error.
func (o *Orchestrator) ExecuteAll(ctx context.Context, names ...string) error {
	r := o.services
	if len(names) == 0 {
		names = r.Names()
	}

	var errs []error
	for _, name := range names {
		spec, ok := r.Get(name)
		if !ok {
			errs = append(errs, &Error{Service: name, Err: fmt.Errorf("unknown service: %w", domain.ErrInvalidSpec)})
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, &Error{Service: name, Err: err})
			continue
		}
		if err := o.Execute(ctx, spec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
