// Package sanitize turns untrusted names and paths into safe identifiers.
//
// Generated plugin names come straight from model output and end up as
// directory names under the host's plugin root, so every name passes
// through PluginName and Namespaced before touching the filesystem.
package sanitize

import (
	"strings"
)

const (
	// NamespacePrefix marks a directory as a host plugin.
	NamespacePrefix = "astrbot_plugin_"

	// DefaultRawName is used when the model omits a name.
	DefaultRawName = "astrbot_plugin_generated"

	// DefaultIdentifier is used when sanitization produces an empty result.
	DefaultIdentifier = "unnamed_plugin"

	// leadingPrefix is prepended when the result does not start with a letter.
	leadingPrefix = "plugin_"
)

// PluginName sanitizes a raw plugin name.
//
// Rules applied, in order:
//   - Drops every character outside [A-Za-z0-9_]
//   - Prepends "plugin_" if the result does not start with a letter
//   - Converts to lowercase
//   - Returns DefaultIdentifier if the result is empty
//
// Examples:
//
//	"Weather Query!" -> "weatherquery"
//	"123abc"         -> "plugin_123abc"
//	"天气"            -> "unnamed_plugin"
func PluginName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if isASCIILetter(r) || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}

	s := b.String()
	if s != "" && !isASCIILetter(rune(s[0])) {
		s = leadingPrefix + s
	}
	s = strings.ToLower(s)

	if s == "" {
		return DefaultIdentifier
	}
	return s
}

// Namespaced prefixes name with NamespacePrefix unless already present.
func Namespaced(name string) string {
	if strings.HasPrefix(name, NamespacePrefix) {
		return name
	}
	return NamespacePrefix + name
}

// PluginIdentifier sanitizes and namespaces a raw name. An empty raw name
// falls back to DefaultRawName.
func PluginIdentifier(raw string) string {
	if strings.TrimSpace(raw) == "" {
		raw = DefaultRawName
	}
	return Namespaced(PluginName(raw))
}

func isASCIILetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
