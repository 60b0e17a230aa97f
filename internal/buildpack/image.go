package buildpack

import (
	"context"
	"fmt"

	"github.com/melih/lighthouse/internal/core/domain"
	"github.com/melih/lighthouse/internal/deploy"
)

// Image deploys a prebuilt image pulled on the runner. The source tree is
// unpacked but never built.
type Image struct {
	Ref string `mapstructure:"image"`
}

func NewImage(options map[string]any) (deploy.Buildpack, error) {
	p := &Image{}
	if err := decodeOptions(options, p); err != nil {
		return nil, err
	}
	if p.Ref == "" {
		return nil, fmt.Errorf("option image is required: %w", domain.ErrInvalidSpec)
	}
	return p, nil
}

func (p *Image) Name() string { return "image" }

func (p *Image) Build(ctx context.Context, d *deploy.Deployment) error {
	ref := d.Resolve(p.Ref)
	if err := d.Pull(ctx, ref); err != nil {
		return err
	}
	return d.Start(ctx, ref)
}
