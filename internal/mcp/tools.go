package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/codemage/internal/generator"
	"github.com/fyrsmithlabs/codemage/internal/logging"
)

const origin = "mcp"

var errInvalidArgument = errors.New("invalid argument")

type generateInput struct {
	Description string `json:"description" jsonschema:"What the plugin should do, in natural language"`
}

type confirmInput struct {
	Approved bool   `json:"approved" jsonschema:"Approve (true) or reject (false) the pending proposal"`
	Feedback string `json:"feedback,omitempty" jsonschema:"Optional changes to apply to the proposal before generating code"`
}

type emptyInput struct{}

type generationOutput struct {
	Outcome      string   `json:"outcome" jsonschema:"success, pending, cancelled or no_pending"`
	Kind         string   `json:"kind,omitempty" jsonschema:"Result kind"`
	Detail       string   `json:"detail,omitempty" jsonschema:"Human readable detail"`
	GenerationID string   `json:"generation_id,omitempty" jsonschema:"Generation ID"`
	PluginName   string   `json:"plugin_name,omitempty" jsonschema:"Namespaced plugin name"`
	PluginPath   string   `json:"plugin_path,omitempty" jsonschema:"Directory the plugin was written to"`
	Preview      string   `json:"preview,omitempty" jsonschema:"Proposal preview"`
	Score        int      `json:"score,omitempty" jsonschema:"Final review score"`
	Retries      int      `json:"retries" jsonschema:"Fix and re-review rounds"`
	SafetyIssues []string `json:"safety_issues,omitempty" jsonschema:"Findings of the code scan"`
	Installed    bool     `json:"installed" jsonschema:"Whether the plugin was installed on the host"`
	InstallError string   `json:"install_error,omitempty" jsonschema:"Why installation failed"`
}

type statusOutput struct {
	IsGenerating       bool   `json:"is_generating" jsonschema:"Whether a generation is running"`
	CurrentStep        int    `json:"current_step" jsonschema:"Current stage (1-6)"`
	TotalSteps         int    `json:"total_steps" jsonschema:"Number of stages"`
	ProgressPercentage int    `json:"progress_percentage" jsonschema:"Progress in percent"`
	StepName           string `json:"step_name,omitempty" jsonschema:"Current stage name"`
	PluginName         string `json:"plugin_name,omitempty" jsonschema:"Plugin being generated"`
	GenerationID       string `json:"generation_id,omitempty" jsonschema:"Generation ID"`
	StartTime          string `json:"start_time,omitempty" jsonschema:"RFC 3339 start time"`
}

type pendingOutput struct {
	Active      bool   `json:"active" jsonschema:"Whether a proposal is waiting"`
	ID          string `json:"id,omitempty" jsonschema:"Generation ID of the proposal"`
	PluginName  string `json:"plugin_name,omitempty" jsonschema:"Proposed plugin name"`
	Description string `json:"description,omitempty" jsonschema:"Original description"`
	Origin      string `json:"origin,omitempty" jsonschema:"Where the request came from"`
	Preview     string `json:"preview,omitempty" jsonschema:"Proposal preview"`
	Timestamp   string `json:"timestamp,omitempty" jsonschema:"RFC 3339 proposal time"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "plugin_generate",
		Description: "Generate an AstrBot plugin from a description. Unless auto-approve is on, returns a proposal to confirm with plugin_confirm.",
	}, s.handleGenerate)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "plugin_confirm",
		Description: "Approve, refine or reject the pending plugin proposal",
	}, s.handleConfirm)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "plugin_status",
		Description: "Report progress of the running generation",
	}, func(ctx context.Context, req *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, statusOutput, error) {
		done := s.metrics.track("plugin_status")
		defer done(nil)

		out := toStatusOutput(s.gen.Status())
		text := "idle"
		if out.IsGenerating {
			text = fmt.Sprintf("step %d/%d (%d%%): %s", out.CurrentStep, out.TotalSteps, out.ProgressPercentage, out.StepName)
		}
		return textResult(text), out, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "plugin_pending",
		Description: "Show the plugin proposal waiting for confirmation",
	}, func(ctx context.Context, req *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, pendingOutput, error) {
		done := s.metrics.track("plugin_pending")
		defer done(nil)

		out := toPendingOutput(s.gen.Pending())
		text := "no pending proposal"
		if out.Active {
			text = out.Preview
		}
		return textResult(text), out, nil
	})
}

func (s *Server) handleGenerate(ctx context.Context, req *mcp.CallToolRequest, args generateInput) (*mcp.CallToolResult, generationOutput, error) {
	done := s.metrics.track("plugin_generate")
	var toolErr error
	defer func() { done(toolErr) }()

	if args.Description == "" {
		toolErr = fmt.Errorf("%w: description is required", errInvalidArgument)
		return nil, generationOutput{}, toolErr
	}

	res, err := s.gen.Start(ctx, args.Description, origin)
	if err != nil {
		toolErr = err
		s.logger.Warn(ctx, "plugin_generate failed", zap.Error(err))
		return nil, generationOutput{}, err
	}
	out := toGenerationOutput(res)
	return textResult(summarize(out)), out, nil
}

func (s *Server) handleConfirm(ctx context.Context, req *mcp.CallToolRequest, args confirmInput) (*mcp.CallToolResult, generationOutput, error) {
	done := s.metrics.track("plugin_confirm")
	var toolErr error
	defer func() { done(toolErr) }()

	res, err := s.gen.Confirm(ctx, args.Approved, args.Feedback)
	if err != nil {
		toolErr = err
		s.logger.Warn(logging.WithGenerationID(ctx, generationID(res)), "plugin_confirm failed", zap.Error(err))
		return nil, generationOutput{}, err
	}
	out := toGenerationOutput(res)
	return textResult(summarize(out)), out, nil
}

func generationID(res *generator.Result) string {
	if res == nil {
		return ""
	}
	return res.GenerationID
}

func summarize(out generationOutput) string {
	switch generator.Outcome(out.Outcome) {
	case generator.OutcomePending:
		return out.Preview + "\n\nCall plugin_confirm to approve, refine or reject."
	case generator.OutcomeSuccess:
		msg := fmt.Sprintf("Plugin %s written to %s (score %d, %d retries)", out.PluginName, out.PluginPath, out.Score, out.Retries)
		if out.Installed {
			msg += ", installed"
		} else if out.InstallError != "" {
			msg += ", install failed: " + out.InstallError
		}
		return msg
	case generator.OutcomeNoPending:
		return "no pending proposal"
	default:
		return out.Detail
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

func toGenerationOutput(res *generator.Result) generationOutput {
	out := generationOutput{
		Outcome:      string(res.Outcome),
		Kind:         string(res.Kind),
		Detail:       res.Detail,
		GenerationID: res.GenerationID,
		PluginName:   res.PluginName,
		PluginPath:   res.PluginPath,
		Preview:      res.Preview,
		Retries:      res.Retries,
		SafetyIssues: res.SafetyIssues,
		Installed:    res.Installed,
	}
	if res.Review != nil {
		out.Score = res.Review.SatisfactionScore
	}
	if res.InstallError != nil {
		out.InstallError = res.InstallError.Error()
	}
	return out
}

func toStatusOutput(st generator.Status) statusOutput {
	out := statusOutput{
		IsGenerating:       st.IsGenerating,
		CurrentStep:        st.CurrentStep,
		TotalSteps:         st.TotalSteps,
		ProgressPercentage: st.ProgressPercentage,
		StepName:           st.StepName,
		PluginName:         st.PluginName,
		GenerationID:       st.GenerationID,
	}
	if !st.StartTime.IsZero() {
		out.StartTime = st.StartTime.Format(time.RFC3339)
	}
	return out
}

func toPendingOutput(p generator.Pending) pendingOutput {
	out := pendingOutput{
		Active:      p.Active,
		ID:          p.ID,
		PluginName:  p.Metadata.Name,
		Description: p.Description,
		Origin:      p.Origin,
		Preview:     p.Preview,
	}
	if !p.Timestamp.IsZero() {
		out.Timestamp = p.Timestamp.Format(time.RFC3339)
	}
	return out
}
