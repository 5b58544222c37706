package sanitize

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	ErrPathTraversal     = errors.New("path contains directory traversal")
	ErrEmptyPath         = errors.New("path cannot be empty")
	ErrInvalidPluginName = errors.New("invalid plugin name")
)

var identifierPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ValidatePluginName rejects names that PluginName could not have produced.
// Caller-supplied names (uninstall, status checks) go through this before
// they are joined onto the plugins root.
func ValidatePluginName(name string) error {
	if name == "" || len(name) > 128 || !identifierPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidPluginName, name)
	}
	return nil
}

// ValidatePath returns the absolute form of path. Any ".." segment is
// rejected outright; with a non-empty root the result must also lie inside
// root.
func ValidatePath(path, root string) (string, error) {
	if path == "" {
		return "", ErrEmptyPath
	}
	if hasDotDot(path) {
		return "", fmt.Errorf("%w: %q", ErrPathTraversal, path)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving %q: %w", path, err)
	}
	if root == "" {
		return abs, nil
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolving root %q: %w", root, err)
	}
	rel, err := filepath.Rel(absRoot, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q is outside %q", ErrPathTraversal, abs, absRoot)
	}
	return abs, nil
}

func hasDotDot(path string) bool {
	for _, part := range strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == filepath.Separator }) {
		if part == ".." {
			return true
		}
	}
	return false
}
