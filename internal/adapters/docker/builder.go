package docker

import (
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/jsonmessage"

	"github.com/melih/lighthouse/internal/core/domain"
	"github.com/melih/lighthouse/internal/core/ports"
)

// BuildImage tars contextDir and builds it on the daemon
func (a *Adapter) BuildImage(ctx context.Context, contextDir, tag string, opts domain.BuildOptions) error {
	// Create Build Context (Tar)
	tar, err := archive.TarWithOptions(contextDir, &archive.TarOptions{})
	if err != nil {
		return fmt.Errorf("failed to create build context: %w", err)
	}
	defer tar.Close()

	dockerfile := opts.Dockerfile
	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}

	args := make(map[string]*string, len(opts.Args))
	for k, v := range opts.Args {
		v := v
		args[k] = &v
	}

	resp, err := a.cli.ImageBuild(ctx, tar, types.ImageBuildOptions{
		Tags:        []string{tag},
		Dockerfile:  dockerfile,
		BuildArgs:   args,
		Labels:      opts.Labels,
		ExtraHosts:  hostList(opts.Hosts),
		PullParent:  opts.Pull,
		NoCache:     opts.NoCache,
		Remove:      true, // Remove intermediate containers
		ForceRemove: true,
	})
	if err != nil {
		return fmt.Errorf("failed to build image %s: %w", tag, err)
	}
	defer resp.Body.Close()

	// The daemon reports build failures inside the stream, not as an HTTP error.
	if err := jsonmessage.DisplayJSONMessagesStream(resp.Body, a.out, 0, false, nil); err != nil {
		return fmt.Errorf("failed to build image %s: %w", tag, err)
	}
	return nil
}

// PullImage pulls ref and waits for the pull to complete
func (a *Adapter) PullImage(ctx context.Context, ref string) error {
	reader, err := a.cli.ImagePull(ctx, ref, types.ImagePullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	defer reader.Close()

	if err := jsonmessage.DisplayJSONMessagesStream(reader, a.out, 0, false, nil); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	return nil
}

// SaveImage exports ref as a tar stream
func (a *Adapter) SaveImage(ctx context.Context, ref string) (io.ReadCloser, error) {
	rc, err := a.cli.ImageSave(ctx, []string{ref})
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, fmt.Errorf("image %s: %w", ref, ports.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to save image %s: %w", ref, err)
	}
	return rc, nil
}

// LoadImage imports a tar stream produced by SaveImage
func (a *Adapter) LoadImage(ctx context.Context, r io.Reader) error {
	resp, err := a.cli.ImageLoad(ctx, r, true)
	if err != nil {
		return fmt.Errorf("failed to load image: %w", err)
	}
	defer resp.Body.Close()

	if !resp.JSON {
		if _, err := io.Copy(a.out, resp.Body); err != nil {
			return fmt.Errorf("failed to load image: %w", err)
		}
		return nil
	}
	if err := jsonmessage.DisplayJSONMessagesStream(resp.Body, a.out, 0, false, nil); err != nil {
		return fmt.Errorf("failed to load image: %w", err)
	}
	return nil
}

// PruneImages removes dangling images
func (a *Adapter) PruneImages(ctx context.Context) error {
	if _, err := a.cli.ImagesPrune(ctx, filters.NewArgs(filters.Arg("dangling", "true"))); err != nil {
		return fmt.Errorf("failed to prune images: %w", err)
	}
	return nil
}
