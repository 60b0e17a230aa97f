// Package pipeline builds service images on the builder engine and streams
// them to the runner engine when the two are different daemons.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/melih/lighthouse/internal/core/domain"
	"github.com/melih/lighthouse/internal/core/ports"
	"github.com/melih/lighthouse/internal/logger"
)

// DefaultProgressInterval is the transfer progress cadence.
const DefaultProgressInterval = 2 * time.Second

// Progress receives the number of bytes transferred so far.
type Progress func(bytes int64)

// BuildRequest describes one image build.
type BuildRequest struct {
	Service      string
	DeploymentID string
	ContextDir   string
	Options      domain.BuildOptions
	// Progress is called during the transfer to the runner. Optional.
	Progress Progress
}

// Pipeline couples a builder engine with a runner engine.
type Pipeline struct {
	builder  ports.ImageEngine
	runner   ports.ImageEngine
	same     bool
	interval time.Duration
	log      logger.Logger
}

// New returns a pipeline. A non-positive interval uses DefaultProgressInterval.
func New(builder, runner ports.Engine, interval time.Duration, log logger.Logger) *Pipeline {
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	return &Pipeline{
		builder:  builder,
		runner:   runner,
		same:     builder.Endpoint() == runner.Endpoint(),
		interval: interval,
		log:      log.With(logger.String("component", "pipeline")),
	}
}

// ImageRef is the unique tag of a deployment's image.
func ImageRef(service, deploymentID string) string {
	return "lighthouse/" + service + ":" + deploymentID
}

// Build builds the image on the builder and makes it available on the runner.
func (p *Pipeline) Build(ctx context.Context, req BuildRequest) (string, error) {
	ref := ImageRef(req.Service, req.DeploymentID)
	log := p.log.With(logger.String("service", req.Service), logger.String("image", ref))

	log.Info("building image")
	start := time.Now()
	if err := p.builder.BuildImage(ctx, req.ContextDir, ref, req.Options); err != nil {
		return "", fmt.Errorf("build image %s failure: %w", ref, err)
	}
	log.Info("image built", logger.Duration("elapsed", time.Since(start)))

	if err := p.Transfer(ctx, ref, req.Progress); err != nil {
		return "", err
	}
	return ref, nil
}

// Transfer streams ref from the builder to the runner. Both sides run
// concurrently through a pipe; a failure on either side fails the transfer.
// It is a no-op when both engines share an endpoint.
func (p *Pipeline) Transfer(ctx context.Context, ref string, progress Progress) error {
	if p.same {
		return nil
	}
	if progress == nil {
		progress = func(int64) {}
	}

	p.log.Info("transferring image", logger.String("image", ref))
	start := time.Now()

	var transferred atomic.Int64
	pr, pw := io.Pipe()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		rc, err := p.builder.SaveImage(gctx, ref)
		if err != nil {
			pw.CloseWithError(err)
			return fmt.Errorf("save image %s failure: %w", ref, err)
		}
		defer rc.Close()

		_, err = io.Copy(pw, &countingReader{r: rc, n: &transferred})
		pw.CloseWithError(err)
		if err != nil {
			return fmt.Errorf("save image %s failure: %w", ref, err)
		}
		return nil
	})
	g.Go(func() error {
		err := p.runner.LoadImage(gctx, pr)
		if err != nil {
			pr.CloseWithError(err)
			return fmt.Errorf("load image %s failure: %w", ref, err)
		}
		// a saver still writing after the loader returned must fail
		pr.CloseWithError(io.ErrClosedPipe)
		return nil
	})

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				progress(transferred.Load())
			case <-done:
				return
			}
		}
	}()

	err := g.Wait()
	close(done)
	// no tick may report after the final count or after return
	<-stopped
	if err != nil {
		return fmt.Errorf("transfer image %s failure: %w", ref, err)
	}

	progress(transferred.Load())
	p.log.Info("image transferred",
		logger.String("image", ref),
		logger.Int64("bytes", transferred.Load()),
		logger.Duration("elapsed", time.Since(start)))
	return nil
}

// Pull fetches ref directly on the runner.
func (p *Pipeline) Pull(ctx context.Context, ref string) error {
	if err := p.runner.PullImage(ctx, ref); err != nil {
		return fmt.Errorf("pull image %s failure: %w", ref, err)
	}
	return nil
}

type countingReader struct {
	r io.Reader
	n *atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}
