// Package hostdir locates the host platform installation and its plugin
// directory.
//
// The host root is the first ancestor (at most maxSearchDepth levels up)
// holding a main.py that mentions AstrBot alongside a data/plugins
// directory. Explicit configuration takes precedence over detection.
package hostdir

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fyrsmithlabs/codemage/internal/artifact"
	"github.com/fyrsmithlabs/codemage/internal/config"
	"github.com/fyrsmithlabs/codemage/internal/sanitize"
)

const (
	maxSearchDepth = 10
	markerBytes    = 1000
	hostMarker     = "AstrBot"
)

// Layout issues reported by ValidateLayout.
const (
	IssueRootMissing    = "未找到AstrBot安装目录"
	IssuePluginsMissing = "未找到插件目录"
	IssueDataMissing    = "未找到数据目录"
)

// Validation is the result of ValidateLayout.
type Validation struct {
	Valid      bool     `json:"valid"`
	Root       string   `json:"root,omitempty"`
	PluginsDir string   `json:"plugins_dir,omitempty"`
	DataDir    string   `json:"data_dir,omitempty"`
	Issues     []string `json:"issues"`
}

// LocalPlugin is a plugin directory found on disk.
type LocalPlugin struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Desc string `json:"desc"`
}

// Resolver finds host directories. Successful lookups are cached.
type Resolver struct {
	cfg config.HostConfig

	mu      sync.Mutex
	root    string
	plugins string
	data    string
}

// NewResolver creates a Resolver.
func NewResolver(cfg config.HostConfig) *Resolver {
	return &Resolver{cfg: cfg}
}

// Root returns the host installation root.
func (r *Resolver) Root() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rootLocked()
}

func (r *Resolver) rootLocked() (string, bool) {
	if r.root != "" {
		return r.root, true
	}

	if r.cfg.Root != "" {
		if abs, ok := existingDir(r.cfg.Root); ok {
			r.root = abs
			return abs, true
		}
		return "", false
	}

	start := r.cfg.SearchFrom
	if start == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", false
		}
		start = wd
	}
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", false
	}

	for i := 0; i < maxSearchDepth; i++ {
		if IsHostRoot(dir) {
			r.root = dir
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false
}

// PluginsRoot returns the directory plugins are installed into.
func (r *Resolver) PluginsRoot() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pluginsLocked()
}

func (r *Resolver) pluginsLocked() (string, bool) {
	if r.plugins != "" {
		return r.plugins, true
	}

	if r.cfg.PluginsDir != "" {
		if abs, ok := existingDir(r.cfg.PluginsDir); ok {
			r.plugins = abs
			return abs, true
		}
		return "", false
	}

	root, ok := r.rootLocked()
	if !ok {
		return "", false
	}
	if dir, ok := existingDir(filepath.Join(root, "data", "plugins")); ok {
		r.plugins = dir
		return dir, true
	}
	return "", false
}

// DataDir returns the host data directory.
func (r *Resolver) DataDir() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dataLocked()
}

func (r *Resolver) dataLocked() (string, bool) {
	if r.data != "" {
		return r.data, true
	}

	if root, ok := r.rootLocked(); ok {
		if dir, ok := existingDir(filepath.Join(root, "data")); ok {
			r.data = dir
			return dir, true
		}
		return "", false
	}

	// Without a root, an explicit plugins directory inside data/ still
	// identifies the data directory.
	if plugins, ok := r.pluginsLocked(); ok && filepath.Base(plugins) == "plugins" {
		parent := filepath.Dir(plugins)
		if filepath.Base(parent) == "data" {
			r.data = parent
			return parent, true
		}
	}
	return "", false
}

// ValidateLayout checks that the host root, plugins directory and data
// directory can all be found. A configured plugins directory laid out as
// data/plugins is accepted without a detectable root.
func (r *Resolver) ValidateLayout() Validation {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := Validation{Issues: []string{}}

	root, ok := r.rootLocked()
	if !ok {
		plugins, pok := r.pluginsLocked()
		data, dok := r.dataLocked()
		if pok && dok {
			v.Valid = true
			v.PluginsDir = plugins
			v.DataDir = data
			return v
		}
		v.Issues = append(v.Issues, IssueRootMissing)
		return v
	}
	v.Root = root

	if plugins, ok := r.pluginsLocked(); ok {
		v.PluginsDir = plugins
	} else {
		v.Issues = append(v.Issues, IssuePluginsMissing)
	}
	if data, ok := r.dataLocked(); ok {
		v.DataDir = data
	} else {
		v.Issues = append(v.Issues, IssueDataMissing)
	}

	v.Valid = len(v.Issues) == 0
	return v
}

// PluginPath returns the directory of the named plugin if it exists. The
// name is namespaced first.
func (r *Resolver) PluginPath(name string) (string, bool) {
	plugins, ok := r.PluginsRoot()
	if !ok {
		return "", false
	}
	full := sanitize.Namespaced(name)
	if sanitize.ValidatePluginName(full) != nil {
		return "", false
	}
	path := filepath.Join(plugins, full)
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return path, true
}

// PluginExists reports whether the named plugin is already on disk.
func (r *Resolver) PluginExists(name string) bool {
	_, ok := r.PluginPath(name)
	return ok
}

// ListLocal returns the plugin directories under the plugins root, sorted
// by name. Hidden directories and directories without main.py or
// metadata.yaml are skipped.
func (r *Resolver) ListLocal() ([]LocalPlugin, error) {
	plugins, ok := r.PluginsRoot()
	if !ok {
		return []LocalPlugin{}, nil
	}

	entries, err := os.ReadDir(plugins)
	if err != nil {
		return nil, err
	}

	out := make([]LocalPlugin, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		dir := filepath.Join(plugins, e.Name())
		hasMain := fileExists(filepath.Join(dir, artifact.MainFile))
		hasDesc := fileExists(filepath.Join(dir, artifact.DescriptorFile))
		if !hasMain && !hasDesc {
			continue
		}

		lp := LocalPlugin{Name: e.Name(), Path: dir}
		if hasDesc {
			if d, err := artifact.ReadDescriptor(dir); err == nil {
				lp.Desc = d.Desc
				if lp.Desc == "" {
					lp.Desc = d.Description
				}
			}
		}
		out = append(out, lp)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// IsHostRoot reports whether dir looks like a host installation root.
func IsHostRoot(dir string) bool {
	f, err := os.Open(filepath.Join(dir, "main.py"))
	if err != nil {
		return false
	}
	defer f.Close()

	head := make([]byte, markerBytes)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF {
		return false
	}
	if !bytes.Contains(head[:n], []byte(hostMarker)) {
		return false
	}

	_, ok := existingDir(filepath.Join(dir, "data", "plugins"))
	return ok
}

func existingDir(path string) (string, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", false
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return "", false
	}
	return abs, true
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
