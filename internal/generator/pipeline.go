package generator

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/codemage/internal/artifact"
	"github.com/fyrsmithlabs/codemage/internal/events"
	"github.com/fyrsmithlabs/codemage/internal/installer"
	"github.com/fyrsmithlabs/codemage/internal/logging"
	"github.com/fyrsmithlabs/codemage/internal/plugin"
)

// plan runs the metadata and documentation stages.
func (o *Orchestrator) plan(ctx context.Context, r *run) error {
	layout := o.dirs.ValidateLayout()
	if !layout.Valid {
		return newError(KindDirectoryInvalid, strings.Join(layout.Issues, "; "), nil)
	}

	o.setStep(ctx, r, StepMetadata)
	var (
		raw map[string]any
		err error
	)
	if o.cfg.StepByStep {
		raw, err = timed(o, "metadata", func() (map[string]any, error) {
			return o.synth.GenerateMetadata(ctx, r.description)
		})
	} else {
		raw, err = timed(o, "metadata_markdown", func() (map[string]any, error) {
			return o.synth.GenerateMetadataWithMarkdown(ctx, r.description)
		})
	}
	if err != nil {
		return synthesisError("metadata", err)
	}

	r.md = plugin.ParseMetadata(raw)
	if err := o.claimName(ctx, r); err != nil {
		return err
	}
	r.markdown = r.md.Markdown

	o.setStep(ctx, r, StepDocs)
	if o.cfg.StepByStep || strings.TrimSpace(r.markdown) == "" {
		md, err := timed(o, "markdown", func() (string, error) {
			return o.synth.GenerateMarkdown(ctx, r.md, r.description)
		})
		if err != nil {
			return synthesisError("markdown", err)
		}
		r.markdown = md
	}

	r.preview = plugin.RenderPreview(r.md, r.markdown)
	o.emit(ctx, r, events.TypePreview, StepDocs, r.preview)
	return nil
}

// refine applies user feedback to a confirmed proposal.
func (o *Orchestrator) refine(ctx context.Context, r *run, feedback string) error {
	o.setStep(ctx, r, StepMetadata)
	raw, err := timed(o, "refine", func() (map[string]any, error) {
		return o.synth.RefineMetadata(ctx, r.md, feedback)
	})
	if err != nil {
		return synthesisError("refine", err)
	}

	refined := plugin.ParseMetadata(raw)
	if strings.TrimSpace(refined.Markdown) != "" {
		r.markdown = refined.Markdown
	}
	r.md = refined
	if err := o.claimName(ctx, r); err != nil {
		return err
	}

	r.preview = plugin.RenderPreview(r.md, r.markdown)
	o.emit(ctx, r, events.TypePreview, StepDocs, r.preview)
	o.logger.Info(ctx, "metadata refined", zap.String("plugin", r.md.Name))
	return nil
}

// claimName normalizes the proposed name and rejects existing plugins.
func (o *Orchestrator) claimName(ctx context.Context, r *run) error {
	r.md.Name = plugin.Identifier(r.md.Name)
	if o.dirs.PluginExists(r.md.Name) {
		return newError(KindNameCollision, "plugin "+r.md.Name+" already exists", nil)
	}

	o.mu.Lock()
	if o.status.GenerationID == r.id {
		o.status.PluginName = r.md.Name
	}
	o.mu.Unlock()
	return nil
}

// build runs code generation through install.
func (o *Orchestrator) build(ctx context.Context, span trace.Span, r *run) (*Result, error) {
	ctx = logging.WithPluginName(ctx, r.md.Name)
	span.SetAttributes(attribute.String("plugin.name", r.md.Name))

	o.setStep(ctx, r, StepCode)
	code, err := timed(o, "code", func() (string, error) {
		return o.synth.GenerateCode(ctx, r.md, r.markdown)
	})
	if err != nil {
		return o.failed(ctx, span, r, newError(KindSynthesisFailed, err.Error(), err))
	}

	o.setStep(ctx, r, StepReview)
	code, review, retries, err := o.reviewLoop(ctx, r, code)
	if err != nil {
		return o.failed(ctx, span, r, err)
	}
	o.metrics.ReviewScore.Observe(float64(review.SatisfactionScore))
	span.SetAttributes(
		attribute.Int("review.score", review.SatisfactionScore),
		attribute.Int("review.retries", retries),
	)

	res := &Result{
		GenerationID: r.id,
		PluginName:   r.md.Name,
		Preview:      r.preview,
		Review:       &review,
		Retries:      retries,
	}

	if o.scanner != nil {
		report := o.scanner.Scan(code)
		if report.Err != nil {
			o.logger.Warn(ctx, "code scan incomplete", zap.Error(report.Err))
		}
		if !report.Clean() {
			res.SafetyIssues = report.Messages()
			if o.cfg.BlockUnsafeCode {
				return o.failed(ctx, span, r, newError(KindUnsafeCode, strings.Join(res.SafetyIssues, "; "), nil))
			}
			o.emit(ctx, r, events.TypeWarning, StepReview, "code scan: "+strings.Join(res.SafetyIssues, "; "))
		}
	}

	o.setStep(ctx, r, StepMaterialize)
	root, ok := o.dirs.PluginsRoot()
	if !ok {
		return o.failed(ctx, span, r, newError(KindMaterializeFailed, "plugin directory not found", nil))
	}
	dir, err := o.writer.Write(ctx, root, artifact.Artifact{
		Name:     r.md.Name,
		Metadata: r.md,
		Code:     code,
		Markdown: r.markdown,
	})
	if err != nil {
		return o.failed(ctx, span, r, newError(KindMaterializeFailed, err.Error(), err))
	}
	res.PluginPath = dir

	if o.installer != nil && o.installer.Configured() {
		o.setStep(ctx, r, StepInstall)
		o.install(ctx, r, res)
	}

	res.Outcome = OutcomeSuccess
	o.metrics.outcome(string(OutcomeSuccess))
	o.emit(ctx, r, events.TypeCompleted, TotalSteps, dir)
	o.logger.Info(ctx, "generation completed",
		zap.String("path", dir),
		zap.Int("score", review.SatisfactionScore),
		zap.Int("retries", retries),
		zap.Bool("installed", res.Installed),
	)
	return res, nil
}

// reviewLoop reviews code and asks for fixes until the review passes or the
// retry budget runs out. An unlimited budget is bounded by ReviewDeadline.
func (o *Orchestrator) reviewLoop(ctx context.Context, r *run, code string) (string, plugin.ReviewResult, int, error) {
	unlimited := o.cfg.Unlimited()
	if unlimited {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.reviewDeadline())
		defer cancel()
	}

	threshold := o.cfg.SatisfactionThreshold
	review := o.review(ctx, r, code)
	retries := 0

	for !review.Passes(threshold) && (unlimited || retries < o.cfg.MaxRetries) {
		if unlimited && ctx.Err() != nil {
			break
		}
		retries++
		o.metrics.ReviewRetries.Inc()

		msg := "score too low, improving"
		if o.cfg.StrictReview && !review.Approved {
			msg = "review rejected, fixing"
		}
		o.emit(ctx, r, events.TypeReviewRetry, StepReview, msg)
		o.logger.Info(ctx, "review did not pass",
			zap.Int("attempt", retries),
			zap.Int("score", review.SatisfactionScore),
			zap.Bool("approved", review.Approved),
			zap.String("reason", review.Reason),
		)

		fixed, err := timed(o, "fix", func() (string, error) {
			return o.synth.FixCode(ctx, code, review.Issues, review.Suggestions)
		})
		if err != nil {
			if unlimited && errors.Is(err, context.DeadlineExceeded) {
				break
			}
			return code, review, retries, newError(KindSynthesisFailed, err.Error(), err)
		}
		code = fixed
		review = o.review(ctx, r, code)
	}

	if !review.Passes(threshold) {
		return code, review, retries, newError(KindReviewExhausted, review.Reason, nil)
	}
	o.emit(ctx, r, events.TypeReviewPassed, StepReview, review.Reason)
	return code, review, retries, nil
}

// review asks for a review, retrying failed calls. A review that never
// succeeds counts as a rejection.
func (o *Orchestrator) review(ctx context.Context, r *run, code string) plugin.ReviewResult {
	var lastErr error
	for attempt := 1; attempt <= o.cfg.ReviewAttempts; attempt++ {
		raw, err := timed(o, "review", func() (map[string]any, error) {
			return o.synth.ReviewCode(ctx, code, r.md, r.markdown)
		})
		if err == nil {
			return plugin.NormalizeReview(raw)
		}
		lastErr = err
		o.logger.Warn(ctx, "review request failed", zap.Int("attempt", attempt), zap.Error(err))
		if ctx.Err() != nil {
			break
		}
	}
	return plugin.FailedReview(lastErr)
}

func (o *Orchestrator) reviewDeadline() time.Duration {
	if d := o.cfg.ReviewDeadline.Duration(); d > 0 {
		return d
	}
	return 10 * time.Minute
}

// install packages and uploads the plugin. Failures are reported on res
// and never undo the written files.
func (o *Orchestrator) install(ctx context.Context, r *run, res *Result) {
	fail := func(msg string, err error) {
		res.InstallError = newError(KindInstallFailed, msg+": "+err.Error(), err)
		o.logger.Warn(ctx, "install failed", zap.Error(err))
		o.emit(ctx, r, events.TypeWarning, StepInstall, res.InstallError.Error())
	}

	archive, err := o.installer.Package(ctx, res.PluginPath)
	if err != nil {
		fail("package", err)
		return
	}
	defer func() {
		if err := installer.RemoveArchive(archive); err != nil {
			o.logger.Debug(ctx, "archive cleanup failed", zap.Error(err))
		}
	}()

	if _, err := o.installer.Install(ctx, archive, r.md.Name); err != nil {
		fail("upload", err)
		return
	}
	res.Installed = true

	report, err := o.installer.CheckStatus(ctx, r.md.Name)
	if err != nil {
		o.logger.Warn(ctx, "install status unavailable", zap.Error(err))
		o.emit(ctx, r, events.TypeWarning, StepInstall, "install status unavailable: "+err.Error())
	} else {
		res.InstallStatus = &report
	}
	o.emit(ctx, r, events.TypeInstalled, StepInstall, r.md.Name)
	if res.InstallStatus != nil && report.HasErrors {
		o.logger.Warn(ctx, "plugin reported errors after install", zap.Strings("error_logs", report.ErrorLogs))
		o.emit(ctx, r, events.TypeWarning, StepInstall, installWarning(report))
	}
}

// installWarning renders a post-install status report for event consumers.
func installWarning(report installer.StatusReport) string {
	msg := "⚠️ 插件安装后检测到错误"
	switch {
	case !report.Installed:
		msg += ": plugin not listed by host"
	case !report.Activated:
		msg += ": plugin not activated"
	}
	if len(report.ErrorLogs) > 0 {
		msg += "\n" + strings.Join(report.ErrorLogs, "\n")
	}
	return msg
}
