// Package artifact writes generated plugins to the host's plugin directory.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/codemage/internal/logging"
	"github.com/fyrsmithlabs/codemage/internal/plugin"
	"github.com/fyrsmithlabs/codemage/internal/sanitize"
)

const (
	defaultAuthor      = "CodeMage"
	defaultDescription = "由CodeMage生成的插件"

	// File names inside a plugin directory.
	MainFile         = "main.py"
	DescriptorFile   = "metadata.yaml"
	RequirementsFile = "requirements.txt"
	ReadmeFile       = "README.md"

	dirPerm  = 0o755
	filePerm = 0o644
)

// Artifact is everything needed to materialize one plugin.
type Artifact struct {
	Name     string
	Metadata plugin.Metadata
	Code     string
	Markdown string
}

// Descriptor is the metadata.yaml document.
type Descriptor struct {
	Name        string `yaml:"name"`
	Author      string `yaml:"author"`
	Description string `yaml:"description"`
	Version     string `yaml:"version"`
	Repo        string `yaml:"repo"`

	// Desc is the short description some host plugins carry instead of
	// Description. Only read, never written.
	Desc string `yaml:"desc,omitempty"`
}

// Options configure a Writer.
type Options struct {
	AllowDependencies bool
	GitInit           bool
	GitAuthor         string
	GitEmail          string
}

// Writer materializes plugin directories.
type Writer struct {
	opts   Options
	logger *logging.Logger
}

// NewWriter creates a Writer.
func NewWriter(opts Options, logger *logging.Logger) *Writer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Writer{opts: opts, logger: logger.Named("artifact")}
}

// Write creates <root>/<name>/ and its files, overwriting existing ones.
// It returns the plugin directory. A failure part way through leaves the
// files written so far in place.
func (w *Writer) Write(ctx context.Context, root string, a Artifact) (string, error) {
	if root == "" {
		return "", errors.New("plugins directory unavailable")
	}
	if err := sanitize.ValidatePluginName(a.Name); err != nil {
		return "", err
	}
	dir, err := sanitize.ValidatePath(filepath.Join(root, a.Name), root)
	if err != nil {
		return "", fmt.Errorf("resolving plugin directory: %w", err)
	}

	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return "", fmt.Errorf("creating plugin directory: %w", err)
	}

	if err := writeFile(dir, MainFile, a.Code); err != nil {
		return dir, err
	}

	desc, err := yaml.Marshal(NewDescriptor(a.Name, a.Metadata))
	if err != nil {
		return dir, fmt.Errorf("encoding %s: %w", DescriptorFile, err)
	}
	if err := writeFile(dir, DescriptorFile, string(desc)); err != nil {
		return dir, err
	}

	deps := a.Metadata.Metadata.Dependencies
	if len(deps) > 0 && w.opts.AllowDependencies {
		if err := writeFile(dir, RequirementsFile, strings.Join(deps, "\n")); err != nil {
			return dir, err
		}
		w.logger.Info(ctx, "wrote requirements", zap.Int("dependencies", len(deps)))
	} else {
		w.logger.Debug(ctx, "skipped requirements",
			zap.Int("dependencies", len(deps)),
			zap.Bool("allowed", w.opts.AllowDependencies),
		)
	}

	if err := writeFile(dir, ReadmeFile, readme(a)); err != nil {
		return dir, err
	}

	if w.opts.GitInit {
		if err := w.commit(ctx, dir, a); err != nil {
			// The plugin itself is complete; version control is optional.
			w.logger.Warn(ctx, "git commit failed", zap.String("dir", dir), zap.Error(err))
		}
	}

	w.logger.Info(ctx, "plugin materialized", zap.String("dir", dir))
	return dir, nil
}

// NewDescriptor builds the metadata.yaml document with defaults applied.
func NewDescriptor(name string, md plugin.Metadata) Descriptor {
	return Descriptor{
		Name:        name,
		Author:      orDefault(md.Author, defaultAuthor),
		Description: orDefault(md.Description, defaultDescription),
		Version:     md.VersionOrDefault(),
		Repo:        md.Metadata.RepoURL,
	}
}

// ReadDescriptor loads <dir>/metadata.yaml.
func ReadDescriptor(dir string) (Descriptor, error) {
	var d Descriptor
	data, err := os.ReadFile(filepath.Join(dir, DescriptorFile))
	if err != nil {
		return d, err
	}
	if err := yaml.Unmarshal(data, &d); err != nil {
		return d, fmt.Errorf("parsing %s: %w", DescriptorFile, err)
	}
	return d, nil
}

func readme(a Artifact) string {
	if strings.TrimSpace(a.Markdown) != "" {
		return a.Markdown
	}
	return "# " + a.Name + "\n\n" + defaultDescription
}

func writeFile(dir, name, content string) error {
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), filePerm); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
