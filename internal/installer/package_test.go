package installer

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/mholt/archives"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackage(t *testing.T) {
	dir := makePluginDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "metadata.yaml"), []byte("name: w\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git", "objects"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".git", "HEAD"), []byte("ref"), 0o644))

	c := New(testInstallerConfig(t), nil)
	archive, err := c.Package(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, "astrbot_plugin_weather.zip", filepath.Base(archive))

	f, err := os.Open(archive)
	require.NoError(t, err)
	defer f.Close()

	var names []string
	err = archives.Zip{}.Extract(context.Background(), f, func(_ context.Context, info archives.FileInfo) error {
		if !info.IsDir() {
			names = append(names, info.NameInArchive)
		}
		return nil
	})
	require.NoError(t, err)
	sort.Strings(names)
	assert.Equal(t, []string{"astrbot_plugin_weather/main.py", "astrbot_plugin_weather/metadata.yaml"}, names)

	require.NoError(t, RemoveArchive(archive))
	assert.NoDirExists(t, filepath.Dir(archive))
}

func TestPackage_NotADirectory(t *testing.T) {
	c := New(testInstallerConfig(t), nil)
	_, err := c.Package(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestPackage_CreateFailureRemovesTempDir(t *testing.T) {
	tmpRoot := t.TempDir()
	t.Setenv("TMPDIR", tmpRoot)

	// 253 bytes is a valid directory name; with ".zip" it exceeds NAME_MAX.
	dir := filepath.Join(t.TempDir(), strings.Repeat("w", 253))
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.py"), []byte("print(1)\n"), 0o644))

	c := New(testInstallerConfig(t), nil)
	_, err := c.Package(context.Background(), dir)
	require.ErrorContains(t, err, "creating archive")

	left, err := os.ReadDir(tmpRoot)
	require.NoError(t, err)
	assert.Empty(t, left)
}
