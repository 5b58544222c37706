package plugin

import "github.com/fyrsmithlabs/codemage/internal/sanitize"

// SanitizeName reduces a raw name to [a-z][a-z0-9_]*.
func SanitizeName(raw string) string {
	return sanitize.PluginName(raw)
}

// Identifier sanitizes and namespaces a raw name. Applying it to its own
// output is a no-op.
func Identifier(raw string) string {
	return sanitize.PluginIdentifier(raw)
}
