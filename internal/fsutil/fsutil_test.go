package fsutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o640))
}

func TestCopyFileKeepsModeAndTime(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "src", "img1.dcm")
	writeFile(t, src, "pixels")
	mtime := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, os.Chtimes(src, mtime, mtime))

	dst := filepath.Join(dir, "dst", "a", "b", "img1.dcm")
	writeFile(t, dst, "old content that is longer")
	require.NoError(t, CopyFile(src, dst))

	content, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "pixels", string(content))

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())
	assert.True(t, info.ModTime().Equal(mtime))
}

func TestCopyFileReadOnlySourceTwice(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "archive", "img1.dcm")
	writeFile(t, src, "first")
	require.NoError(t, os.Chmod(src, 0o444))
	dst := filepath.Join(dir, "local", "img1.dcm")

	require.NoError(t, CopyFile(src, dst))

	require.NoError(t, os.Chmod(src, 0o644))
	require.NoError(t, os.WriteFile(src, []byte("second"), 0o644))
	require.NoError(t, os.Chmod(src, 0o444))

	require.NoError(t, CopyFile(src, dst))

	content, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "second", string(content))
	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o444), info.Mode().Perm())
}

func TestCopyFileErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	err := CopyFile(filepath.Join(dir, "absent"), filepath.Join(dir, "out"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	err = CopyFile(dir, filepath.Join(dir, "out"))
	assert.Error(t, err)
}

func TestCopyDirFilesAndTree(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "session")
	writeFile(t, filepath.Join(src, "a.dcm"), "a")
	writeFile(t, filepath.Join(src, "b.dcm"), "b")
	writeFile(t, filepath.Join(src, "nested", "c.dcm"), "c")

	n, err := CopyDirFiles(src, filepath.Join(dir, "flat"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, err = os.Stat(filepath.Join(dir, "flat", "nested"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	n, err = CopyTree(src, filepath.Join(dir, "tree"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	files, err := Files(filepath.Join(dir, "tree"))
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "tree", "a.dcm"),
		filepath.Join(dir, "tree", "b.dcm"),
		filepath.Join(dir, "tree", "nested", "c.dcm"),
	}, files)
}

func TestIsEmptyDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	empty, err := IsEmptyDir(filepath.Join(dir, "absent"))
	require.NoError(t, err)
	assert.True(t, empty)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "only", "dirs"), 0o755))
	empty, err = IsEmptyDir(filepath.Join(dir, "only"))
	require.NoError(t, err)
	assert.True(t, empty)

	writeFile(t, filepath.Join(dir, "only", "dirs", "x.nii"), "x")
	empty, err = IsEmptyDir(filepath.Join(dir, "only"))
	require.NoError(t, err)
	assert.False(t, empty)
}
