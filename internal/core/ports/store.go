package ports

import (
	"context"

	"github.com/melih/lighthouse/internal/core/domain"
)

// SettingsStore persists the settings document.
type SettingsStore interface {
	Load(ctx context.Context) (*domain.Settings, error)
	Save(ctx context.Context, s *domain.Settings) error
	// Update loads the document, applies fn and saves it, serialized against
	// other writers of the same store.
	Update(ctx context.Context, fn func(s *domain.Settings) error) (*domain.Settings, error)
}
