package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/codemage/internal/config"
	"github.com/fyrsmithlabs/codemage/internal/events"
	"github.com/fyrsmithlabs/codemage/internal/logging"
	"github.com/fyrsmithlabs/codemage/internal/plugin"
	"github.com/fyrsmithlabs/codemage/internal/synth"
)

const instrumentationName = "github.com/fyrsmithlabs/codemage/internal/generator"

// Deps are the collaborators of an Orchestrator. Installer and Scanner are
// optional.
type Deps struct {
	Synth     Synthesizer
	Dirs      DirectoryResolver
	Writer    ArtifactWriter
	Installer Installer
	Scanner   CodeScanner
	Sink      events.Sink
	Metrics   *Metrics
	Logger    *logging.Logger
}

// Orchestrator runs the generation state machine.
type Orchestrator struct {
	cfg       config.GenerationConfig
	synth     Synthesizer
	dirs      DirectoryResolver
	writer    ArtifactWriter
	installer Installer
	scanner   CodeScanner
	sink      events.Sink
	metrics   *Metrics
	logger    *logging.Logger
	tracer    trace.Tracer

	mu      sync.Mutex
	status  Status
	pending Pending
}

// run carries the state of one generation between stages.
type run struct {
	id          string
	description string
	origin      string
	md          plugin.Metadata
	markdown    string
	preview     string
}

// New creates an Orchestrator.
func New(cfg config.GenerationConfig, deps Deps) (*Orchestrator, error) {
	if deps.Synth == nil {
		return nil, errors.New("synthesizer is required")
	}
	if deps.Dirs == nil {
		return nil, errors.New("directory resolver is required")
	}
	if deps.Writer == nil {
		return nil, errors.New("artifact writer is required")
	}
	if cfg.ReviewAttempts < 1 {
		cfg.ReviewAttempts = 1
	}
	if deps.Sink == nil {
		deps.Sink = events.Nop
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics(nil)
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}

	return &Orchestrator{
		cfg:       cfg,
		synth:     deps.Synth,
		dirs:      deps.Dirs,
		writer:    deps.Writer,
		installer: deps.Installer,
		scanner:   deps.Scanner,
		sink:      deps.Sink,
		metrics:   deps.Metrics,
		logger:    deps.Logger.Named("generator"),
		tracer:    otel.Tracer(instrumentationName),
		status:    Status{TotalSteps: TotalSteps},
	}, nil
}

// Status returns a snapshot of the in-flight generation.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// Pending returns a copy of the pending proposal.
func (o *Orchestrator) Pending() Pending {
	o.mu.Lock()
	defer o.mu.Unlock()
	return clonePending(o.pending)
}

// Start validates description and plans a plugin. Without auto-approve it
// returns OutcomePending and leaves a proposal for Confirm; otherwise it
// runs the whole pipeline.
func (o *Orchestrator) Start(ctx context.Context, description, origin string) (*Result, error) {
	if err := plugin.ValidateDescription(description); err != nil {
		return o.refuse(ctx, newError(KindInvalidDescription, err.Error(), err))
	}

	genID, err := o.begin()
	if err != nil {
		return o.refuse(ctx, err)
	}
	defer o.finish(genID)

	ctx = logging.WithGenerationID(ctx, genID)
	ctx, span := o.tracer.Start(ctx, "generator.start", trace.WithAttributes(
		attribute.String("generation.id", genID),
		attribute.String("origin", origin),
		attribute.Bool("auto_approve", o.cfg.AutoApprove),
	))
	defer span.End()

	r := &run{id: genID, description: description, origin: origin}
	o.logger.Info(ctx, "generation started", zap.String("origin", origin), zap.Int("description_len", len(description)))

	if err := o.plan(ctx, r); err != nil {
		return o.failed(ctx, span, r, err)
	}

	if !o.cfg.AutoApprove {
		o.park(r)
		o.emit(ctx, r, events.TypePending, StepDocs, "waiting for confirmation")
		o.metrics.outcome(string(OutcomePending))
		return &Result{
			Outcome:      OutcomePending,
			Kind:         KindPendingConfirmation,
			GenerationID: genID,
			PluginName:   r.md.Name,
			Preview:      r.preview,
		}, nil
	}

	o.emit(ctx, r, events.TypeAutoApproved, StepDocs, "auto approved")
	return o.build(ctx, span, r)
}

// Confirm resolves the pending proposal. approved=false discards it;
// non-empty feedback refines the metadata before code generation.
func (o *Orchestrator) Confirm(ctx context.Context, approved bool, feedback string) (*Result, error) {
	p, err := o.resume()
	if err != nil {
		return o.refuse(ctx, err)
	}
	if !p.Active {
		o.metrics.outcome(string(OutcomeNoPending))
		return &Result{Outcome: OutcomeNoPending, Kind: KindNoPending, Detail: "no pending generation"}, nil
	}
	defer o.finish(p.ID)

	ctx = logging.WithGenerationID(ctx, p.ID)
	ctx, span := o.tracer.Start(ctx, "generator.confirm", trace.WithAttributes(
		attribute.String("generation.id", p.ID),
		attribute.Bool("approved", approved),
		attribute.Bool("feedback", feedback != ""),
	))
	defer span.End()

	r := &run{
		id:          p.ID,
		description: p.Description,
		origin:      p.Origin,
		md:          p.Metadata,
		markdown:    p.Markdown,
		preview:     p.Preview,
	}
	ctx = logging.WithPluginName(ctx, r.md.Name)

	if !approved {
		o.emit(ctx, r, events.TypeCancelled, 0, "user cancelled")
		o.metrics.outcome(string(OutcomeCancelled))
		o.logger.Info(ctx, "generation cancelled")
		return &Result{
			Outcome:      OutcomeCancelled,
			Kind:         KindUserCancelled,
			Detail:       "user cancelled",
			GenerationID: r.id,
			PluginName:   r.md.Name,
		}, nil
	}

	if strings.TrimSpace(feedback) != "" {
		if err := o.refine(ctx, r, feedback); err != nil {
			return o.failed(ctx, span, r, err)
		}
	}

	return o.build(ctx, span, r)
}

// Reject discards the pending proposal.
func (o *Orchestrator) Reject(ctx context.Context) (*Result, error) {
	return o.Confirm(ctx, false, "")
}

// begin claims the orchestrator for a new generation.
func (o *Orchestrator) begin() (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.status.IsGenerating {
		return "", newError(KindBusy, "a generation is already running", nil)
	}
	if o.pending.Active {
		return "", newError(KindPendingExists, "a proposal is waiting for confirmation", nil)
	}

	id := uuid.NewString()
	o.status = Status{
		IsGenerating: true,
		TotalSteps:   TotalSteps,
		StartTime:    time.Now(),
		GenerationID: id,
	}
	o.metrics.InProgress.Set(1)
	return id, nil
}

// resume pops the pending proposal and claims the orchestrator. An inactive
// Pending with a nil error means there was nothing to confirm.
func (o *Orchestrator) resume() (Pending, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.pending.Active {
		return Pending{}, nil
	}
	if o.status.IsGenerating {
		return Pending{}, newError(KindBusy, "a generation is already running", nil)
	}

	p := o.pending
	o.pending = Pending{}
	o.status = Status{
		IsGenerating: true,
		TotalSteps:   TotalSteps,
		StartTime:    time.Now(),
		GenerationID: p.ID,
		PluginName:   p.Metadata.Name,
	}
	o.metrics.InProgress.Set(1)
	return p, nil
}

// park stores the proposal and releases the orchestrator in one step.
func (o *Orchestrator) park(r *run) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.pending = Pending{
		Active:      true,
		ID:          r.id,
		Metadata:    r.md,
		Markdown:    r.markdown,
		Description: r.description,
		Origin:      r.origin,
		Preview:     r.preview,
		Timestamp:   time.Now(),
	}
	o.status = Status{TotalSteps: TotalSteps}
	o.metrics.InProgress.Set(0)
}

// finish resets the status if genID still owns it.
func (o *Orchestrator) finish(genID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.status.GenerationID != genID {
		return
	}
	o.status = Status{TotalSteps: TotalSteps}
	o.metrics.InProgress.Set(0)
}

func (o *Orchestrator) setStep(ctx context.Context, r *run, step int) {
	o.mu.Lock()
	if o.status.GenerationID == r.id {
		o.status.CurrentStep = step
		o.status.ProgressPercentage = step * 100 / TotalSteps
		o.status.StepName = StepName(step)
		o.status.PluginName = r.md.Name
	}
	o.mu.Unlock()

	o.emit(ctx, r, events.TypeStage, step, StepName(step))
}

func (o *Orchestrator) emit(ctx context.Context, r *run, typ events.Type, step int, msg string) {
	id, name := "", ""
	if r != nil {
		id, name = r.id, r.md.Name
	}
	o.sink.Emit(ctx, events.New(id, typ, step, TotalSteps, name, msg))
}

// refuse reports an error raised before a generation was claimed.
func (o *Orchestrator) refuse(ctx context.Context, err error) (*Result, error) {
	kind := KindOf(err)
	o.metrics.outcome(string(kind))
	o.logger.Warn(ctx, "generation refused", zap.String("kind", string(kind)), zap.Error(err))
	o.emit(ctx, nil, events.TypeFailed, 0, err.Error())
	return &Result{Outcome: OutcomeFailed, Kind: kind, Detail: detailOf(err)}, err
}

// failed reports an error raised inside a claimed generation.
func (o *Orchestrator) failed(ctx context.Context, span trace.Span, r *run, err error) (*Result, error) {
	var gerr *Error
	if !errors.As(err, &gerr) {
		gerr = newError(KindSynthesisFailed, err.Error(), err)
	}

	span.RecordError(gerr)
	span.SetStatus(codes.Error, gerr.Error())
	o.metrics.outcome(string(gerr.Kind))

	step := o.Status().CurrentStep
	o.logger.Error(ctx, "generation failed",
		zap.String("kind", string(gerr.Kind)),
		zap.Int("step", step),
		zap.Error(gerr),
	)
	o.emit(ctx, r, events.TypeFailed, step, gerr.Error())

	return &Result{
		Outcome:      OutcomeFailed,
		Kind:         gerr.Kind,
		Detail:       gerr.Detail,
		GenerationID: r.id,
		PluginName:   r.md.Name,
	}, gerr
}

func detailOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Detail
	}
	return err.Error()
}

// timed runs a model request and records its latency.
func timed[T any](o *Orchestrator, op string, fn func() (T, error)) (T, error) {
	start := time.Now()
	v, err := fn()
	o.metrics.SynthesisDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	return v, err
}

func synthesisError(op string, err error) *Error {
	if errors.Is(err, synth.ErrMalformedReply) {
		return newError(KindBadMetadataFormat, fmt.Sprintf("%s: %v", op, err), err)
	}
	return newError(KindSynthesisFailed, err.Error(), err)
}

func clonePending(p Pending) Pending {
	p.Metadata.Commands = append([]plugin.Command(nil), p.Metadata.Commands...)
	p.Metadata.Metadata.Dependencies = append([]string(nil), p.Metadata.Metadata.Dependencies...)
	return p
}
