package proxy

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/melih/lighthouse/internal/core/domain"
	"github.com/melih/lighthouse/internal/core/ports"
	"github.com/melih/lighthouse/internal/logger"
)

// Op is a batch change to the published port set.
type Op string

const (
	Insert Op = "insert"
	Remove Op = "remove"
)

// Reloader recreates the proxy from persisted settings.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Reconciler owns the proxy's published raw-port set. It reloads the proxy
// only when a request actually changes the set.
type Reconciler struct {
	store    ports.SettingsStore
	reloader Reloader
	log      logger.Logger

	mu sync.Mutex
}

func NewReconciler(store ports.SettingsStore, reloader Reloader, log logger.Logger) *Reconciler {
	return &Reconciler{store: store, reloader: reloader, log: log}
}

// Ports returns the currently published raw ports.
func (r *Reconciler) Ports(ctx context.Context) ([]int, error) {
	s, err := r.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load proxy ports: %w", err)
	}
	return s.Proxy.Ports, nil
}

// Reconcile applies op to the published set and returns the resulting set.
// Inserting ports that are all present, or removing ports that are all
// absent, returns the current set without persisting or reloading.
func (r *Reconciler) Reconcile(ctx context.Context, op Op, diff []int) ([]int, error) {
	if op != Insert && op != Remove {
		return nil, fmt.Errorf("unknown port operation %q", op)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.Ports(ctx)
	if err != nil {
		return nil, err
	}
	if len(diff) == 0 || satisfied(op, current, diff) {
		return current, nil
	}

	next := apply(op, current, diff)
	r.log.Debug("published ports do not match, reloading proxy",
		logger.Ints("current", current), logger.Ints("required", diff), logger.String("op", string(op)))

	if _, err := r.store.Update(ctx, func(s *domain.Settings) error {
		s.Proxy.Ports = next
		return nil
	}); err != nil {
		return nil, fmt.Errorf("failed to save proxy ports: %w", err)
	}
	if err := r.reloader.Reload(ctx); err != nil {
		return next, fmt.Errorf("failed to reload proxy: %w", err)
	}
	return next, nil
}

func satisfied(op Op, current, diff []int) bool {
	for _, p := range diff {
		has := slices.Contains(current, p)
		if op == Insert && !has {
			return false
		}
		if op == Remove && has {
			return false
		}
	}
	return true
}

func apply(op Op, current, diff []int) []int {
	next := make([]int, 0, len(current)+len(diff))
	switch op {
	case Insert:
		next = append(next, current...)
		for _, p := range diff {
			if !slices.Contains(next, p) {
				next = append(next, p)
			}
		}
	case Remove:
		for _, p := range current {
			if !slices.Contains(diff, p) {
				next = append(next, p)
			}
		}
	}
	return next
}
