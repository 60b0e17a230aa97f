package buildpack

import (
	"context"

	"github.com/melih/lighthouse/internal/deploy"
)

// Hook is one step of a Custom pack.
type Hook func(ctx context.Context, d *deploy.Deployment) error

// Custom is a pack assembled from functions. Nil hooks are skipped.
// Programs embedding the orchestrator bind one with Registry.Register so
// manifests can select it by PackName:
//
//	packs.Register("migrate", func(map[string]any) (deploy.Buildpack, error) {
//		return &buildpack.Custom{PackName: "migrate", OnBuild: migrate}, nil
//	})
type Custom struct {
	PackName  string
	OnInit    Hook
	OnBuild   Hook
	OnDestroy Hook
}

func (p *Custom) Name() string { return p.PackName }

func (p *Custom) Init(ctx context.Context, d *deploy.Deployment) error {
	return run(ctx, p.OnInit, d)
}

func (p *Custom) Build(ctx context.Context, d *deploy.Deployment) error {
	return run(ctx, p.OnBuild, d)
}

func (p *Custom) Destroy(ctx context.Context, d *deploy.Deployment) error {
	return run(ctx, p.OnDestroy, d)
}

func run(ctx context.Context, h Hook, d *deploy.Deployment) error {
	if h == nil {
		return nil
	}
	return h(ctx, d)
}
