package git

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// IsURL reports whether path names a remote repository rather than a local directory.
func IsURL(path string) bool {
	for _, prefix := range []string{"https://", "http://", "ssh://", "git://", "git@"} {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return strings.HasSuffix(path, ".git") && !isDir(path)
}

// Clone shallow-clones url into a fresh temporary directory. A branch can be
// selected with a "#branch" suffix. The caller removes the returned directory.
func Clone(ctx context.Context, url string, progress io.Writer) (string, error) {
	url, branch, _ := strings.Cut(url, "#")

	// Create temporary directory
	dir, err := os.MkdirTemp("", "lighthouse-source-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}

	opts := &git.CloneOptions{
		URL:      url,
		Progress: progress,
		Depth:    1, // Shallow clone for speed
	}
	if branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(branch)
		opts.SingleBranch = true
	}

	if _, err := git.PlainCloneContext(ctx, dir, false, opts); err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("failed to clone repo %s: %w", url, err)
	}
	return dir, nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
