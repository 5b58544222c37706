package generator

import (
	"context"
	"time"

	"github.com/fyrsmithlabs/codemage/internal/artifact"
	"github.com/fyrsmithlabs/codemage/internal/codescan"
	"github.com/fyrsmithlabs/codemage/internal/hostdir"
	"github.com/fyrsmithlabs/codemage/internal/installer"
	"github.com/fyrsmithlabs/codemage/internal/plugin"
)

// TotalSteps is the number of pipeline stages.
const TotalSteps = 6

// Pipeline stages.
const (
	StepMetadata    = 1
	StepDocs        = 2
	StepCode        = 3
	StepReview      = 4
	StepMaterialize = 5
	StepInstall     = 6
)

var stepNames = map[int]string{
	StepMetadata:    "generating metadata",
	StepDocs:        "generating documentation",
	StepCode:        "generating code",
	StepReview:      "reviewing code",
	StepMaterialize: "writing plugin files",
	StepInstall:     "installing plugin",
}

// StepName describes a stage.
func StepName(step int) string { return stepNames[step] }

// Status is a snapshot of the in-flight generation.
type Status struct {
	IsGenerating       bool      `json:"is_generating"`
	CurrentStep        int       `json:"current_step"`
	TotalSteps         int       `json:"total_steps"`
	ProgressPercentage int       `json:"progress_percentage"`
	StepName           string    `json:"step_name,omitempty"`
	PluginName         string    `json:"plugin_name,omitempty"`
	StartTime          time.Time `json:"start_time,omitzero"`
	GenerationID       string    `json:"generation_id,omitempty"`
}

// Pending is a proposal waiting for approval.
type Pending struct {
	Active      bool            `json:"active"`
	ID          string          `json:"id,omitempty"`
	Metadata    plugin.Metadata `json:"metadata"`
	Markdown    string          `json:"markdown,omitempty"`
	Description string          `json:"description,omitempty"`
	Origin      string          `json:"origin,omitempty"`
	Preview     string          `json:"preview,omitempty"`
	Timestamp   time.Time       `json:"timestamp,omitzero"`
}

// Outcome is how a Start or Confirm call ended.
type Outcome string

// Outcomes.
const (
	OutcomeSuccess   Outcome = "success"
	OutcomePending   Outcome = "pending"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeNoPending Outcome = "no_pending"
	OutcomeFailed    Outcome = "failed"
)

// Result describes a finished Start or Confirm call.
type Result struct {
	Outcome      Outcome `json:"outcome"`
	Kind         Kind    `json:"kind,omitempty"`
	Detail       string  `json:"detail,omitempty"`
	GenerationID string  `json:"generation_id,omitempty"`
	PluginName   string  `json:"plugin_name,omitempty"`
	PluginPath   string  `json:"plugin_path,omitempty"`
	Preview      string  `json:"preview,omitempty"`

	Review       *plugin.ReviewResult `json:"review,omitempty"`
	Retries      int                  `json:"retries"`
	SafetyIssues []string             `json:"safety_issues,omitempty"`

	Installed     bool                   `json:"installed"`
	InstallStatus *installer.StatusReport `json:"install_status,omitempty"`
	InstallError  *Error                 `json:"install_error,omitempty"`
}

// Synthesizer issues the model requests.
type Synthesizer interface {
	GenerateMetadata(ctx context.Context, description string) (map[string]any, error)
	GenerateMetadataWithMarkdown(ctx context.Context, description string) (map[string]any, error)
	GenerateMarkdown(ctx context.Context, md plugin.Metadata, description string) (string, error)
	GenerateCode(ctx context.Context, md plugin.Metadata, markdown string) (string, error)
	ReviewCode(ctx context.Context, code string, md plugin.Metadata, markdown string) (map[string]any, error)
	FixCode(ctx context.Context, code string, issues, suggestions []string) (string, error)
	RefineMetadata(ctx context.Context, md plugin.Metadata, feedback string) (map[string]any, error)
}

// DirectoryResolver locates the host plugin directory.
type DirectoryResolver interface {
	ValidateLayout() hostdir.Validation
	PluginExists(name string) bool
	PluginsRoot() (string, bool)
}

// ArtifactWriter materializes plugin files.
type ArtifactWriter interface {
	Write(ctx context.Context, root string, a artifact.Artifact) (string, error)
}

// Installer pushes a plugin directory to the host.
type Installer interface {
	Configured() bool
	Package(ctx context.Context, dir string) (string, error)
	Install(ctx context.Context, archive, name string) (installer.InstallResult, error)
	CheckStatus(ctx context.Context, name string) (installer.StatusReport, error)
}

// CodeScanner inspects generated code.
type CodeScanner interface {
	Scan(code string) codescan.Report
}
