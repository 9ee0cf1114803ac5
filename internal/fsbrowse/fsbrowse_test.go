package fsbrowse

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexalabs/nexa/internal/errs"
)

func TestBrowseListsDirectoriesFirst(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "zeta"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "Alpha"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "movie.mkv"), []byte("xx"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden"), nil, 0o644))

	b := &Browser{}
	entries, err := b.Browse(dir)
	require.NoError(t, err)
	require.Len(t, entries, 3, "hidden entries are skipped")
	assert.Equal(t, "Alpha", entries[0].Name)
	assert.True(t, entries[0].IsDir)
	assert.Equal(t, "zeta", entries[1].Name)
	assert.Equal(t, "movie.mkv", entries[2].Name)
	assert.False(t, entries[2].IsDir)
	assert.Equal(t, int64(2), entries[2].Size)
}

func TestBrowseRejectsBadPaths(t *testing.T) {
	b := &Browser{}

	_, err := b.Browse("")
	require.Error(t, err)
	assert.Equal(t, errs.FileSystemBrowse, errs.KindOf(err))

	_, err = b.Browse("relative/path")
	require.Error(t, err)
	assert.Equal(t, errs.FileSystemBrowse, errs.KindOf(err))

	_, err = b.Browse(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Equal(t, errs.FileSystemBrowse, errs.KindOf(err))

	file := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	_, err = b.Browse(file)
	require.Error(t, err)
	assert.Equal(t, errs.FileSystemBrowse, errs.KindOf(err))
}

func TestRootsIncludeConfiguredExtras(t *testing.T) {
	b := &Browser{ExtraRoots: []string{"/data/media"}}
	roots := b.Roots()
	require.NotEmpty(t, roots)
	assert.Equal(t, "/", roots[0].Path)

	var found bool
	for _, r := range roots {
		if r.Path == "/data/media" {
			found = true
			assert.Equal(t, "media", r.Name)
		}
	}
	assert.True(t, found)
}
