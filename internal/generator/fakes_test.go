package generator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/codemage/internal/artifact"
	"github.com/fyrsmithlabs/codemage/internal/codescan"
	"github.com/fyrsmithlabs/codemage/internal/config"
	"github.com/fyrsmithlabs/codemage/internal/events"
	"github.com/fyrsmithlabs/codemage/internal/hostdir"
	"github.com/fyrsmithlabs/codemage/internal/installer"
	"github.com/fyrsmithlabs/codemage/internal/logging"
	"github.com/fyrsmithlabs/codemage/internal/plugin"
)

const weatherCode = "from astrbot.api.star import Star\n\nclass Weather(Star):\n    pass\n"

// fakeSynth answers every request from canned data. Reviews are served from
// the reviews queue; once it is exhausted the last entry repeats.
type fakeSynth struct {
	mu sync.Mutex

	metadata    map[string]any
	metadataErr error
	markdown    string
	code        string
	refined     map[string]any
	refineErr   error
	fixErr      error
	reviewErr   error
	reviews     []map[string]any

	// block, when set, stalls metadata generation until released.
	block chan struct{}
	// fixWaitsForCtx makes FixCode return only when ctx is done.
	fixWaitsForCtx bool

	calls map[string]int
}

func newFakeSynth() *fakeSynth {
	return &fakeSynth{
		metadata: map[string]any{
			"name":        "weather",
			"author":      "tester",
			"description": "天气查询插件",
			"version":     "1.0.0",
			"commands": []any{
				map[string]any{"command": "/weather", "description": "查询天气"},
			},
			"metadata": map[string]any{"dependencies": []any{"requests"}},
		},
		markdown: "# Weather\n\n查询城市天气。",
		code:     weatherCode,
		reviews:  []map[string]any{passingReview()},
		calls:    map[string]int{},
	}
}

func passingReview() map[string]any {
	return map[string]any{"approved": true, "satisfaction_score": 95, "reason": "looks good"}
}

func failingReview(score int) map[string]any {
	return map[string]any{
		"approved":           false,
		"satisfaction_score": score,
		"reason":             "needs work",
		"issues":             []any{"missing error handling"},
		"suggestions":        []any{"wrap the request"},
	}
}

func (f *fakeSynth) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeSynth) record(op string) {
	f.mu.Lock()
	f.calls[op]++
	f.mu.Unlock()
}

func (f *fakeSynth) GenerateMetadata(ctx context.Context, description string) (map[string]any, error) {
	f.record("metadata")
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.metadata, f.metadataErr
}

func (f *fakeSynth) GenerateMetadataWithMarkdown(ctx context.Context, description string) (map[string]any, error) {
	f.record("metadata_markdown")
	if f.metadataErr != nil {
		return nil, f.metadataErr
	}
	out := map[string]any{}
	for k, v := range f.metadata {
		out[k] = v
	}
	out["markdown"] = f.markdown
	return out, nil
}

func (f *fakeSynth) GenerateMarkdown(ctx context.Context, md plugin.Metadata, description string) (string, error) {
	f.record("markdown")
	return f.markdown, nil
}

func (f *fakeSynth) GenerateCode(ctx context.Context, md plugin.Metadata, markdown string) (string, error) {
	f.record("code")
	return f.code, nil
}

func (f *fakeSynth) ReviewCode(ctx context.Context, code string, md plugin.Metadata, markdown string) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["review"]++
	if f.reviewErr != nil {
		return nil, f.reviewErr
	}
	i := f.calls["review"] - 1
	if i >= len(f.reviews) {
		i = len(f.reviews) - 1
	}
	return f.reviews[i], nil
}

func (f *fakeSynth) FixCode(ctx context.Context, code string, issues, suggestions []string) (string, error) {
	f.record("fix")
	if f.fixWaitsForCtx {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.fixErr != nil {
		return "", f.fixErr
	}
	return code + "# fixed\n", nil
}

func (f *fakeSynth) RefineMetadata(ctx context.Context, md plugin.Metadata, feedback string) (map[string]any, error) {
	f.record("refine")
	return f.refined, f.refineErr
}

// fakeDirs is a host layout rooted in a temp directory.
type fakeDirs struct {
	root     string
	invalid  []string
	existing map[string]bool
	noRoot   bool
}

func newFakeDirs(t *testing.T) *fakeDirs {
	return &fakeDirs{root: t.TempDir(), existing: map[string]bool{}}
}

func (d *fakeDirs) ValidateLayout() hostdir.Validation {
	if len(d.invalid) > 0 {
		return hostdir.Validation{Issues: d.invalid}
	}
	return hostdir.Validation{Valid: true, PluginsDir: d.root}
}

func (d *fakeDirs) PluginExists(name string) bool { return d.existing[name] }

func (d *fakeDirs) PluginsRoot() (string, bool) {
	if d.noRoot {
		return "", false
	}
	return d.root, true
}

// fakeInstaller records install calls.
type fakeInstaller struct {
	configured bool
	installErr error
	statusErr  error
	report     *installer.StatusReport

	archives  []string
	installed []string
}

func (i *fakeInstaller) Configured() bool { return i.configured }

func (i *fakeInstaller) Package(ctx context.Context, dir string) (string, error) {
	tmp, err := os.MkdirTemp("", "codemage-pkg-")
	if err != nil {
		return "", err
	}
	path := filepath.Join(tmp, filepath.Base(dir)+".zip")
	if err := os.WriteFile(path, []byte("zip"), 0o600); err != nil {
		return "", err
	}
	i.archives = append(i.archives, path)
	return path, nil
}

func (i *fakeInstaller) Install(ctx context.Context, archive, name string) (installer.InstallResult, error) {
	if i.installErr != nil {
		return installer.InstallResult{PluginName: name, Error: i.installErr.Error()}, i.installErr
	}
	i.installed = append(i.installed, name)
	return installer.InstallResult{Success: true, PluginName: name}, nil
}

func (i *fakeInstaller) CheckStatus(ctx context.Context, name string) (installer.StatusReport, error) {
	if i.statusErr != nil {
		return installer.StatusReport{}, i.statusErr
	}
	if i.report != nil {
		return *i.report, nil
	}
	return installer.StatusReport{PluginName: name, Installed: true, Activated: true}, nil
}

// recordingSink keeps every emitted event.
type recordingSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *recordingSink) Emit(_ context.Context, e events.Event) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

func (s *recordingSink) types() []events.Type {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]events.Type, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Type)
	}
	return out
}

func (s *recordingSink) ofType(typ events.Type) []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []events.Event
	for _, e := range s.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

type harness struct {
	orch      *Orchestrator
	synth     *fakeSynth
	dirs      *fakeDirs
	installer *fakeInstaller
	sink      *recordingSink
	metrics   *Metrics
	logger    *logging.TestLogger
}

func testGenerationConfig() config.GenerationConfig {
	return config.GenerationConfig{
		StepByStep:            true,
		SatisfactionThreshold: 80,
		StrictReview:          true,
		MaxRetries:            3,
		AllowDependencies:     true,
		ReviewAttempts:        1,
		ReviewDeadline:        config.Duration(5 * time.Second),
	}
}

func newHarness(t *testing.T, cfg config.GenerationConfig) *harness {
	t.Helper()
	h := &harness{
		synth:     newFakeSynth(),
		dirs:      newFakeDirs(t),
		installer: &fakeInstaller{},
		sink:      &recordingSink{},
		metrics:   NewMetrics(prometheus.NewRegistry()),
		logger:    logging.NewTestLogger(),
	}

	orch, err := New(cfg, Deps{
		Synth:     h.synth,
		Dirs:      h.dirs,
		Writer:    artifact.NewWriter(artifact.Options{AllowDependencies: cfg.AllowDependencies}, h.logger.Logger),
		Installer: h.installer,
		Scanner:   codescan.New(codescan.WithoutSecrets()),
		Sink:      h.sink,
		Metrics:   h.metrics,
		Logger:    h.logger.Logger,
	})
	require.NoError(t, err)
	h.orch = orch
	return h
}

var errModelDown = errors.New("model unavailable")
