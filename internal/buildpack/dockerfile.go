package buildpack

import (
	"context"
	"fmt"

	"github.com/melih/lighthouse/internal/core/domain"
	"github.com/melih/lighthouse/internal/deploy"
)

// Dockerfile builds the source tree with its own Dockerfile, or with one
// given inline through the dockerfile option.
type Dockerfile struct {
	Inline string `mapstructure:"dockerfile"`
}

func NewDockerfile(options map[string]any) (deploy.Buildpack, error) {
	p := &Dockerfile{}
	if err := decodeOptions(options, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Dockerfile) Name() string { return "dockerfile" }

func (p *Dockerfile) Init(_ context.Context, d *deploy.Deployment) error {
	if p.Inline == "" {
		return nil
	}
	return d.WriteDockerfile(p.Inline)
}

func (p *Dockerfile) Build(ctx context.Context, d *deploy.Deployment) error {
	if !d.Exists(d.DockerfileName()) {
		return fmt.Errorf("%s not found in %s: %w", d.DockerfileName(), d.Source, domain.ErrInvalidSpec)
	}
	return d.Deploy(ctx)
}
