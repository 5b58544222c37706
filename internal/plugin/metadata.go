package plugin

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultVersion is reported when the model omits a version.
const DefaultVersion = "1.0.0"

// Metadata describes a plugin proposal.
type Metadata struct {
	Name        string      `json:"name"`
	Author      string      `json:"author,omitempty"`
	Description string      `json:"description,omitempty"`
	Version     string      `json:"version,omitempty"`
	Commands    []Command   `json:"commands"`
	Metadata    SubMetadata `json:"metadata"`

	// Markdown is only filled by the combined metadata+markdown request.
	Markdown string `json:"markdown,omitempty"`
}

// Command is one chat command the plugin exposes.
type Command struct {
	Command     string `json:"command"`
	Description string `json:"description,omitempty"`

	// Bare is set when the model listed the command as a plain string.
	Bare bool `json:"-"`
}

// SubMetadata carries packaging details.
type SubMetadata struct {
	Dependencies []string `json:"dependencies"`
	RepoURL      string   `json:"repo_url,omitempty"`
}

// VersionOrDefault returns the version or DefaultVersion.
func (m Metadata) VersionOrDefault() string {
	if m.Version == "" {
		return DefaultVersion
	}
	return m.Version
}

// ToMap renders the metadata as the JSON object shape used in model prompts.
func (m Metadata) ToMap() map[string]any {
	cmds := make([]any, 0, len(m.Commands))
	for _, c := range m.Commands {
		if c.Bare {
			cmds = append(cmds, c.Command)
			continue
		}
		cmds = append(cmds, map[string]any{
			"command":     c.Command,
			"description": c.Description,
		})
	}
	deps := m.Metadata.Dependencies
	if deps == nil {
		deps = []string{}
	}

	out := map[string]any{
		"name":        m.Name,
		"author":      m.Author,
		"description": m.Description,
		"version":     m.VersionOrDefault(),
		"commands":    cmds,
		"metadata": map[string]any{
			"dependencies": deps,
			"repo_url":     m.Metadata.RepoURL,
		},
	}
	return out
}

// ParseMetadata converts a model-produced object into Metadata.
//
// Missing commands and sub-metadata default to empty values. Command entries
// may be objects keyed by command/name/title and description/desc, or bare
// strings. The name is returned unsanitized.
func ParseMetadata(raw map[string]any) Metadata {
	md := Metadata{
		Name:        stringValue(raw["name"]),
		Author:      stringValue(raw["author"]),
		Description: stringValue(raw["description"]),
		Version:     stringValue(raw["version"]),
		Markdown:    stringValue(raw["markdown"]),
		Commands:    parseCommands(raw["commands"]),
	}

	if sub, ok := raw["metadata"].(map[string]any); ok {
		md.Metadata.RepoURL = stringValue(sub["repo_url"])
		md.Metadata.Dependencies = stringList(sub["dependencies"])
	}
	if md.Metadata.Dependencies == nil {
		md.Metadata.Dependencies = []string{}
	}
	return md
}

func parseCommands(v any) []Command {
	items, ok := v.([]any)
	if !ok {
		return []Command{}
	}

	cmds := make([]Command, 0, len(items))
	for _, item := range items {
		switch c := item.(type) {
		case map[string]any:
			cmds = append(cmds, Command{
				Command:     firstString(c, "command", "name", "title"),
				Description: firstString(c, "description", "desc"),
			})
		case nil:
		default:
			cmds = append(cmds, Command{Command: stringValue(c), Bare: true})
		}
	}
	return cmds
}

// firstString returns the first non-empty string value among keys.
func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := stringValue(m[k]); s != "" {
			return s
		}
	}
	return ""
}

func stringValue(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return fmt.Sprint(s)
	}
}

func stringList(v any) []string {
	switch l := v.(type) {
	case []any:
		out := make([]string, 0, len(l))
		for _, item := range l {
			if s := strings.TrimSpace(stringValue(item)); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return append([]string(nil), l...)
	case string:
		if strings.TrimSpace(l) == "" {
			return nil
		}
		return []string{l}
	default:
		return nil
	}
}
