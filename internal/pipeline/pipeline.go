// Package pipeline orchestrates one request through the fixed stage
// order: preprocess, feature extraction, routing, expert invocation,
// postprocessing, envelope assembly. The blocking and async entry
// points share a single implementation and therefore identical
// semantics.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/moegate-ai/moegate/internal/audit"
	"github.com/moegate-ai/moegate/internal/expert"
	"github.com/moegate-ai/moegate/internal/feature"
	"github.com/moegate-ai/moegate/internal/router"
	"github.com/moegate-ai/moegate/internal/telemetry"
)

// truncationMarker is appended when truncate_length cuts a result. It
// is applied before the case transform; the marker has no letters, so
// to_uppercase leaves it unchanged.
const truncationMarker = "..."

// Request is one immutable unit of work entering the pipeline.
type Request struct {
	// Text is the raw payload; it need not be valid UTF-8.
	Text string
	// Task defaults to "process" when empty.
	Task expert.Task
	// Options carries the caller's named options. Unrecognized keys
	// are ignored, not rejected.
	Options Options
	// RequestID is carried through for audit provenance only.
	RequestID string
}

// Result is the response envelope for one pipeline run.
type Result struct {
	Result         string
	ExpertUsed     string
	Confidence     float32
	ProcessingTime time.Duration
	// Features is a snapshot of the normalized routing features, kept
	// for observability.
	Features feature.Features
	IsBinary bool
	Forced   bool
}

// Outcome pairs a result with its error for the async entry point.
type Outcome struct {
	Result *Result
	Err    error
}

// Processor wires the registry, router, telemetry, and audit trail
// into the dispatch flow. Construct it once at startup and share it
// across requests; it holds no per-request state.
type Processor struct {
	registry *expert.Registry
	router   *router.Router
	telem    *telemetry.Provider
	audit    *audit.Emitter
}

// New creates a processor. telem and auditor may be nil.
func New(registry *expert.Registry, scorer router.Scorer, telem *telemetry.Provider, auditor *audit.Emitter) *Processor {
	return &Processor{
		registry: registry,
		router:   router.New(registry, scorer),
		telem:    telem,
		audit:    auditor,
	}
}

// Process runs the full pipeline, blocking until the expert returns or
// ctx is done. Expert invocation is the only stage expected to take
// non-trivial wall-clock time.
func (p *Processor) Process(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	task := req.Task
	if task == "" {
		task = expert.TaskProcess
	}

	ctx, span := p.tracer().Start(ctx, "pipeline.process",
		trace.WithAttributes(attribute.String("moegate.task", string(task))))
	defer span.End()

	// 1. Preprocess: canonical text form, shared by feature extraction
	// and the expert.
	canonical, binary := feature.Canonicalize([]byte(req.Text))

	// 2. Feature extraction.
	feats := feature.Analyze(canonical, binary)

	// 3. Routing, honoring the force_expert override.
	decision, err := p.router.Select(feats.Vector(), req.Options.ForceExpert())
	if err != nil {
		p.finish(req, task, decision, feats, audit.OutcomeUnknownExpert, start, 0)
		return nil, err
	}

	desc, ok := p.registry.ByIndex(decision.Index)
	if !ok {
		p.finish(req, task, decision, feats, audit.OutcomeUnknownExpert, start, 0)
		return nil, &router.UnknownExpertError{Name: decision.Expert}
	}

	// 4. Expert invocation. Cancellation is honored here and only
	// here; the surrounding stages are pure computation.
	expertStart := time.Now()
	raw, err := desc.Expert.Invoke(ctx, canonical, task)
	expertElapsed := time.Since(expertStart)
	if err != nil {
		outcome := audit.OutcomeExpertFailure
		var unsupported *expert.UnsupportedTaskError
		switch {
		case errors.As(err, &unsupported):
			outcome = audit.OutcomeUnsupportedTask
		case ctx.Err() != nil:
			outcome = audit.OutcomeCanceled
			err = ctx.Err()
		default:
			err = &expert.InvocationError{Expert: desc.Name, Err: err}
		}
		p.finish(req, task, decision, feats, outcome, start, expertElapsed)
		return nil, err
	}

	// 5. Postprocess in fixed order: truncate, then case transform.
	processed := postprocess(raw, req.Options)

	// 6. Envelope.
	res := &Result{
		Result:         processed,
		ExpertUsed:     decision.Expert,
		Confidence:     decision.Confidence,
		ProcessingTime: time.Since(start),
		Features:       feats,
		IsBinary:       binary,
		Forced:         decision.Forced,
	}
	p.finish(req, task, decision, feats, audit.OutcomeOK, start, expertElapsed)
	return res, nil
}

// ProcessAsync runs the same pipeline without blocking the caller. The
// returned channel receives exactly one outcome; abandoning the channel
// after canceling ctx is safe, partial results are discarded.
func (p *Processor) ProcessAsync(ctx context.Context, req Request) <-chan Outcome {
	out := make(chan Outcome, 1)
	go func() {
		res, err := p.Process(ctx, req)
		out <- Outcome{Result: res, Err: err}
		close(out)
	}()
	return out
}

func (p *Processor) finish(req Request, task expert.Task, decision router.Decision, feats feature.Features, outcome audit.Outcome, start time.Time, expertElapsed time.Duration) {
	elapsed := time.Since(start)

	p.telem.RecordRequestMetrics(
		string(outcome),
		decision.Expert,
		string(task),
		decision.Forced,
		float64(decision.Confidence),
		float64(elapsed.Microseconds())/1000,
		float64(expertElapsed.Microseconds())/1000,
	)

	p.audit.Emit(context.Background(), &audit.Event{
		Timestamp:  time.Now().UTC(),
		RequestID:  req.RequestID,
		Task:       string(task),
		Expert:     decision.Expert,
		Confidence: decision.Confidence,
		Forced:     decision.Forced,
		IsBinary:   feats.IsBinary == 1,
		DurationMS: float64(elapsed.Microseconds()) / 1000,
		Outcome:    outcome,
	})
}

func (p *Processor) tracer() trace.Tracer {
	if p.telem != nil {
		return p.telem.Tracer()
	}
	return trace.NewNoopTracerProvider().Tracer("")
}

// postprocess applies the recognized options in fixed order.
func postprocess(result string, opts Options) string {
	if max, ok := opts.TruncateLength(); ok && max >= 0 {
		runes := []rune(result)
		if len(runes) > max {
			result = string(runes[:max]) + truncationMarker
		}
	}
	if opts.ToUppercase() {
		result = strings.ToUpper(result)
	}
	return result
}
