package deploy

import (
	"context"

	"github.com/melih/lighthouse/internal/core/domain"
)

// Buildpack turns a source tree into a running container. Its hooks are
// optional: a pack implements any of Initializer, Builder and Destroyer.
type Buildpack interface {
	Name() string
}

// Initializer prepares the working directory, ex: writes a Dockerfile.
type Initializer interface {
	Init(ctx context.Context, d *Deployment) error
}

// Builder produces and starts the container, usually through Deployment.Deploy.
type Builder interface {
	Build(ctx context.Context, d *Deployment) error
}

// Destroyer releases whatever Init or Build acquired.
type Destroyer interface {
	Destroy(ctx context.Context, d *Deployment) error
}

// PackResolver returns the buildpack bound to a spec.
type PackResolver func(spec *domain.ServiceSpec) (Buildpack, error)
