package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestCopyRespectsGitignore(t *testing.T) {
	src := t.TempDir()
	write(t, src, ".gitignore", "node_modules\n")
	write(t, src, "node_modules/x.txt", "x")
	write(t, src, "src/index.js", "console.log(1)")

	dst := filepath.Join(t.TempDir(), "work")
	require.NoError(t, Copy(src, dst))

	assert.NoFileExists(t, filepath.Join(dst, "node_modules", "x.txt"))
	assert.NoDirExists(t, filepath.Join(dst, "node_modules"))
	assert.FileExists(t, filepath.Join(dst, "src", "index.js"))
	assert.FileExists(t, filepath.Join(dst, ".gitignore"))
}

func TestCopyUnionOfIgnoreFiles(t *testing.T) {
	src := t.TempDir()
	write(t, src, ".gitignore", "*.log\n")
	write(t, src, IgnoreFile, "# local only\n\nsecrets/\n!keep.log\n")
	write(t, src, "app.log", "")
	write(t, src, "keep.log", "")
	write(t, src, "secrets/key.pem", "")
	write(t, src, "Dockerfile", "FROM scratch")
	write(t, src, ".git/HEAD", "ref: refs/heads/main")

	dst := t.TempDir()
	require.NoError(t, Copy(src, dst))

	assert.NoFileExists(t, filepath.Join(dst, "app.log"))
	assert.FileExists(t, filepath.Join(dst, "keep.log"))
	assert.NoDirExists(t, filepath.Join(dst, "secrets"))
	assert.NoDirExists(t, filepath.Join(dst, ".git"))
	assert.FileExists(t, filepath.Join(dst, "Dockerfile"))
}

func TestCopyNestedGitignore(t *testing.T) {
	src := t.TempDir()
	write(t, src, "web/.gitignore", "dist\n")
	write(t, src, "web/dist/bundle.js", "")
	write(t, src, "web/index.html", "")

	dst := t.TempDir()
	require.NoError(t, Copy(src, dst))

	assert.NoFileExists(t, filepath.Join(dst, "web", "dist", "bundle.js"))
	assert.FileExists(t, filepath.Join(dst, "web", "index.html"))
}

func TestCopyKeepsSymlinks(t *testing.T) {
	src := t.TempDir()
	write(t, src, "real.txt", "hello")
	require.NoError(t, os.Symlink("real.txt", filepath.Join(src, "link.txt")))

	dst := t.TempDir()
	require.NoError(t, Copy(src, dst))

	target, err := os.Readlink(filepath.Join(dst, "link.txt"))
	require.NoError(t, err)
	assert.Equal(t, "real.txt", target)
}

func TestCopyRefusesSamePath(t *testing.T) {
	src := t.TempDir()
	assert.Error(t, Copy(src, src))
	assert.Error(t, Copy(src, filepath.Join(src, ".")))
}

func TestCopyRefusesOwnDescendant(t *testing.T) {
	src := t.TempDir()
	write(t, src, "a.txt", "a")

	err := Copy(src, filepath.Join(src, "sub", "work"))
	assert.Error(t, err)
	assert.NoDirExists(t, filepath.Join(src, "sub"))
}

func TestCopyAllowsSiblingWithSharedPrefix(t *testing.T) {
	parent := t.TempDir()
	src := filepath.Join(parent, "app")
	write(t, src, "a.txt", "a")

	require.NoError(t, Copy(src, filepath.Join(parent, "app-copy")))
	assert.FileExists(t, filepath.Join(parent, "app-copy", "a.txt"))
}
