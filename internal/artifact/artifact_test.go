package artifact

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/codemage/internal/logging"
	"github.com/fyrsmithlabs/codemage/internal/plugin"
)

func sampleArtifact() Artifact {
	return Artifact{
		Name: "astrbot_plugin_weather",
		Metadata: plugin.Metadata{
			Name:        "astrbot_plugin_weather",
			Author:      "alice",
			Description: "查询天气",
			Version:     "0.1.0",
			Metadata:    plugin.SubMetadata{Dependencies: []string{"requests", "aiohttp"}, RepoURL: "https://example.com/weather.git"},
		},
		Code:     "print('weather')\n",
		Markdown: "# Weather\n",
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestWrite(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(Options{AllowDependencies: true}, logging.NewNop())

	dir, err := w.Write(context.Background(), root, sampleArtifact())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "astrbot_plugin_weather"), dir)

	assert.Equal(t, "print('weather')\n", readFile(t, filepath.Join(dir, MainFile)))
	assert.Equal(t, "# Weather\n", readFile(t, filepath.Join(dir, ReadmeFile)))
	assert.Equal(t, "requests\naiohttp", readFile(t, filepath.Join(dir, RequirementsFile)))
	assert.Equal(t,
		"name: astrbot_plugin_weather\nauthor: alice\ndescription: 查询天气\nversion: 0.1.0\nrepo: https://example.com/weather.git\n",
		readFile(t, filepath.Join(dir, DescriptorFile)))

	d, err := ReadDescriptor(dir)
	require.NoError(t, err)
	assert.Equal(t, "alice", d.Author)
}

func TestWrite_Idempotent(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(Options{}, nil)
	a := sampleArtifact()

	dir, err := w.Write(context.Background(), root, a)
	require.NoError(t, err)
	readme1 := readFile(t, filepath.Join(dir, ReadmeFile))
	desc1 := readFile(t, filepath.Join(dir, DescriptorFile))

	_, err = w.Write(context.Background(), root, a)
	require.NoError(t, err)
	assert.Equal(t, readme1, readFile(t, filepath.Join(dir, ReadmeFile)))
	assert.Equal(t, desc1, readFile(t, filepath.Join(dir, DescriptorFile)))
}

func TestWrite_Defaults(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(Options{AllowDependencies: true}, nil)

	dir, err := w.Write(context.Background(), root, Artifact{
		Name:     "astrbot_plugin_bare",
		Code:     "pass\n",
		Markdown: "   \n",
	})
	require.NoError(t, err)

	assert.Equal(t, "# astrbot_plugin_bare\n\n由CodeMage生成的插件", readFile(t, filepath.Join(dir, ReadmeFile)))
	assert.NoFileExists(t, filepath.Join(dir, RequirementsFile))

	d, err := ReadDescriptor(dir)
	require.NoError(t, err)
	assert.Equal(t, Descriptor{
		Name:        "astrbot_plugin_bare",
		Author:      "CodeMage",
		Description: "由CodeMage生成的插件",
		Version:     "1.0.0",
	}, d)
}

func TestWrite_DependenciesDisallowed(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(Options{AllowDependencies: false}, nil)

	dir, err := w.Write(context.Background(), root, sampleArtifact())
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(dir, RequirementsFile))
}

func TestWrite_RejectsBadInput(t *testing.T) {
	w := NewWriter(Options{}, nil)

	_, err := w.Write(context.Background(), "", sampleArtifact())
	assert.Error(t, err)

	a := sampleArtifact()
	a.Name = "../escape"
	_, err = w.Write(context.Background(), t.TempDir(), a)
	assert.Error(t, err)
}

func TestWrite_GitInit(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(Options{GitInit: true, GitAuthor: "CodeMage", GitEmail: "codemage@localhost"}, nil)
	a := sampleArtifact()

	dir, err := w.Write(context.Background(), root, a)
	require.NoError(t, err)

	repo, err := git.PlainOpen(dir)
	require.NoError(t, err)

	head, err := repo.Head()
	require.NoError(t, err)
	commit, err := repo.CommitObject(head.Hash())
	require.NoError(t, err)
	assert.Equal(t, "Generate astrbot_plugin_weather 0.1.0", commit.Message)
	assert.Equal(t, "CodeMage", commit.Author.Name)

	remote, err := repo.Remote("origin")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/weather.git"}, remote.Config().URLs)

	// Rewriting unchanged content does not add a commit.
	_, err = w.Write(context.Background(), root, a)
	require.NoError(t, err)
	head2, err := repo.Head()
	require.NoError(t, err)
	assert.Equal(t, head.Hash(), head2.Hash())
}
