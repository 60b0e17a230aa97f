// Package store persists the settings document as YAML, either in a local
// file or under a single Redis key.
package store

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/melih/lighthouse/internal/core/domain"
)

func decode(data []byte) (*domain.Settings, error) {
	s := &domain.Settings{}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, s); err != nil {
			return nil, fmt.Errorf("failed to decode settings: %w", err)
		}
	}
	s.Normalize()
	return s, nil
}

func encode(s *domain.Settings) ([]byte, error) {
	data, err := yaml.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode settings: %w", err)
	}
	return data, nil
}
