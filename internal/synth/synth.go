// Package synth builds the model requests that drive plugin generation.
//
// Each method renders a short fixed prompt, sends it through an llm.Client
// and extracts the structured part of the reply. The Synthesizer holds no
// per-run state.
package synth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/codemage/internal/llm"
	"github.com/fyrsmithlabs/codemage/internal/logging"
	"github.com/fyrsmithlabs/codemage/internal/plugin"
)

// ErrMalformedReply is returned when a reply lacks the expected JSON object.
var ErrMalformedReply = errors.New("malformed model reply")

// Options tune prompt content.
type Options struct {
	// AllowDependencies lets the model declare third-party packages.
	AllowDependencies bool
}

// Synthesizer issues the generation requests.
type Synthesizer struct {
	client llm.Client
	opts   Options
	logger *logging.Logger
}

// New creates a Synthesizer.
func New(client llm.Client, opts Options, logger *logging.Logger) *Synthesizer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Synthesizer{client: client, opts: opts, logger: logger.Named("synth")}
}

// GenerateMetadata asks for the plugin metadata object.
func (s *Synthesizer) GenerateMetadata(ctx context.Context, description string) (map[string]any, error) {
	return s.object(ctx, "metadata", renderMetadataPrompt(description, s.opts, false))
}

// GenerateMetadataWithMarkdown asks for metadata and the design document in
// one object, with the document under the "markdown" key.
func (s *Synthesizer) GenerateMetadataWithMarkdown(ctx context.Context, description string) (map[string]any, error) {
	return s.object(ctx, "metadata_markdown", renderMetadataPrompt(description, s.opts, true))
}

// GenerateMarkdown asks for the plugin design document.
func (s *Synthesizer) GenerateMarkdown(ctx context.Context, md plugin.Metadata, description string) (string, error) {
	reply, err := s.complete(ctx, "markdown", fmt.Sprintf(markdownPrompt, description, toJSON(md.ToMap())))
	if err != nil {
		return "", err
	}
	return unfence(reply), nil
}

// GenerateCode asks for main.py.
func (s *Synthesizer) GenerateCode(ctx context.Context, md plugin.Metadata, markdown string) (string, error) {
	reply, err := s.complete(ctx, "code", fmt.Sprintf(codePrompt, toJSON(md.ToMap()), markdown))
	if err != nil {
		return "", err
	}
	return llm.ExtractCode(reply), nil
}

// ReviewCode asks for a structured review. The returned object is raw;
// callers normalize it with plugin.NormalizeReview.
func (s *Synthesizer) ReviewCode(ctx context.Context, code string, md plugin.Metadata, markdown string) (map[string]any, error) {
	return s.object(ctx, "review", fmt.Sprintf(reviewPrompt, toJSON(md.ToMap()), markdown, code))
}

// FixCode asks for a corrected main.py.
func (s *Synthesizer) FixCode(ctx context.Context, code string, issues, suggestions []string) (string, error) {
	reply, err := s.complete(ctx, "fix", fmt.Sprintf(fixPrompt, bullets(issues), bullets(suggestions), code))
	if err != nil {
		return "", err
	}
	return llm.ExtractCode(reply), nil
}

// RefineMetadata asks for metadata revised according to user feedback.
func (s *Synthesizer) RefineMetadata(ctx context.Context, md plugin.Metadata, feedback string) (map[string]any, error) {
	return s.object(ctx, "refine", fmt.Sprintf(refinePrompt, toJSON(md.ToMap()), feedback))
}

func (s *Synthesizer) complete(ctx context.Context, op, prompt string) (string, error) {
	reply, err := s.client.Complete(ctx, prompt)
	if err != nil {
		s.logger.Warn(ctx, "model request failed", zap.String("operation", op), zap.Error(err))
		return "", fmt.Errorf("%s request: %w", op, err)
	}
	return reply, nil
}

func (s *Synthesizer) object(ctx context.Context, op, prompt string) (map[string]any, error) {
	reply, err := s.complete(ctx, op, prompt)
	if err != nil {
		return nil, err
	}
	obj, err := llm.ExtractObject(reply)
	if err != nil {
		s.logger.Debug(ctx, "reply is not a JSON object", zap.String("operation", op), zap.Int("reply_len", len(reply)))
		return nil, fmt.Errorf("%s reply: %w: %v", op, ErrMalformedReply, err)
	}
	return obj, nil
}

func toJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func bullets(items []string) string {
	if len(items) == 0 {
		return "- (none)"
	}
	var b strings.Builder
	for i, item := range items {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(item)
	}
	return b.String()
}

// unfence strips a single surrounding markdown fence.
func unfence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") || !strings.HasSuffix(t, "```") || len(t) < 6 {
		return t
	}
	body := strings.TrimSuffix(t, "```")
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	} else {
		return t
	}
	return strings.TrimSpace(body)
}
