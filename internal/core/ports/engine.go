package ports

import (
	"context"
	"errors"
	"io"

	"github.com/melih/lighthouse/internal/core/domain"
)

// ErrNotFound is returned when a named container, image or network does not exist.
var ErrNotFound = errors.New("not found")

// ContainerEngine defines the container operations the deployment core relies on.
// This interface allows us to switch between Docker and the in-memory engine
// without changing the business logic.
type ContainerEngine interface {
	// ListContainers returns every container (running or not) carrying all of labels.
	ListContainers(ctx context.Context, labels map[string]string) ([]domain.Container, error)
	// InspectContainer looks a container up by exact name or ID.
	InspectContainer(ctx context.Context, nameOrID string) (*domain.Container, error)
	CreateContainer(ctx context.Context, name string, opts domain.ContainerOptions) (string, error)
	StartContainer(ctx context.Context, id string) error
	StopContainer(ctx context.Context, id string) error
	RemoveContainer(ctx context.Context, id string) error
	RenameContainer(ctx context.Context, id, name string) error
	ContainerLogs(ctx context.Context, id string, follow bool, tail string) (io.ReadCloser, error)
}

// ImageEngine builds and moves images.
type ImageEngine interface {
	// BuildImage builds contextDir and tags the result as tag.
	BuildImage(ctx context.Context, contextDir, tag string, opts domain.BuildOptions) error
	PullImage(ctx context.Context, ref string) error
	// SaveImage streams ref as a tar archive.
	SaveImage(ctx context.Context, ref string) (io.ReadCloser, error)
	// LoadImage reads a tar archive produced by SaveImage.
	LoadImage(ctx context.Context, r io.Reader) error
	// PruneImages removes dangling images.
	PruneImages(ctx context.Context) error
}

// NetworkEngine manages container networks.
type NetworkEngine interface {
	// EnsureNetwork creates the network when absent and never recreates it.
	EnsureNetwork(ctx context.Context, name string) error
	PruneNetworks(ctx context.Context) error
}

// VolumeEngine manages anonymous volumes.
type VolumeEngine interface {
	PruneVolumes(ctx context.Context) error
}

// Engine is one container engine endpoint.
type Engine interface {
	ContainerEngine
	ImageEngine
	NetworkEngine
	VolumeEngine

	// Endpoint identifies the daemon. Two engines with the same endpoint
	// share their image store.
	Endpoint() string
}
