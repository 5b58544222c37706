package plugin

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &m))
	return m
}

func TestParseMetadata(t *testing.T) {
	raw := decode(t, `{
		"name": "Weather Query",
		"author": "alice",
		"description": "查询天气",
		"version": "0.2.0",
		"commands": [
			{"command": "weather", "description": "查询城市天气"},
			{"name": "forecast", "desc": "三日预报"},
			{"title": "alerts"},
			"help",
			null
		],
		"metadata": {"dependencies": ["requests", " ", "aiohttp"], "repo_url": "https://example.com/w"}
	}`)

	md := ParseMetadata(raw)
	assert.Equal(t, "Weather Query", md.Name)
	assert.Equal(t, "alice", md.Author)
	assert.Equal(t, "0.2.0", md.Version)
	assert.Equal(t, []Command{
		{Command: "weather", Description: "查询城市天气"},
		{Command: "forecast", Description: "三日预报"},
		{Command: "alerts"},
		{Command: "help", Bare: true},
	}, md.Commands)
	assert.Equal(t, []string{"requests", "aiohttp"}, md.Metadata.Dependencies)
	assert.Equal(t, "https://example.com/w", md.Metadata.RepoURL)
	assert.Empty(t, md.Markdown)
}

func TestParseMetadata_Defaults(t *testing.T) {
	md := ParseMetadata(map[string]any{"name": "x", "commands": "not a list", "version": 2.0})
	assert.Equal(t, []Command{}, md.Commands)
	assert.Equal(t, []string{}, md.Metadata.Dependencies)
	assert.Equal(t, "2", md.Version)
	assert.Equal(t, DefaultVersion, Metadata{}.VersionOrDefault())
}

func TestParseMetadata_Markdown(t *testing.T) {
	md := ParseMetadata(map[string]any{"name": "x", "markdown": "# X"})
	assert.Equal(t, "# X", md.Markdown)
}

func TestMetadata_ToMap(t *testing.T) {
	md := Metadata{
		Name:     "astrbot_plugin_weather",
		Commands: []Command{{Command: "weather", Description: "d"}, {Command: "help", Bare: true}},
	}

	m := md.ToMap()
	assert.Equal(t, "1.0.0", m["version"])
	assert.Equal(t, []any{map[string]any{"command": "weather", "description": "d"}, "help"}, m["commands"])

	// Round trip through the parser keeps the commands intact.
	back := ParseMetadata(m)
	assert.Equal(t, md.Commands, back.Commands)
}
