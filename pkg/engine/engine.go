package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/knikam3027/jnj/pkg/api"
	"github.com/knikam3027/jnj/pkg/classifier"
	askdebug "github.com/knikam3027/jnj/pkg/debug"
	"github.com/knikam3027/jnj/pkg/guardrail"
	"github.com/knikam3027/jnj/pkg/observability"
	"github.com/knikam3027/jnj/pkg/rewriter"
	"github.com/knikam3027/jnj/pkg/session"
)

// Gate judges raw queries.
type Gate interface {
	Classify(ctx context.Context, query string) (guardrail.Verdict, error)
}

// Rewriter turns a follow-up into a self-contained question.
type Rewriter interface {
	Rewrite(ctx context.Context, query string, history []api.Turn) (rewriter.Result, error)
}

// Answerer returns the answer engine's final text for a question.
type Answerer interface {
	Answer(ctx context.Context, question string) (string, error)
}

// Classifier labels an answer.
type Classifier interface {
	Classify(text string) classifier.Label
}

// Deps are the pipeline stages. All are required.
type Deps struct {
	Store      session.Store
	Gate       Gate
	Rewriter   Rewriter
	Answerer   Answerer
	Classifier Classifier
}

var errBlankAnswer = errors.New("answer engine returned a blank answer")

// Engine runs the pipeline. It is safe for concurrent use; requests for the
// same session are processed one at a time in arrival order.
type Engine struct {
	store      session.Store
	gate       Gate
	rewriter   Rewriter
	answerer   Answerer
	classifier Classifier
	cfg        Config
}

// New creates an Engine.
func New(deps Deps, cfg Config) (*Engine, error) {
	switch {
	case deps.Store == nil:
		return nil, fmt.Errorf("engine: session store must not be nil")
	case deps.Gate == nil:
		return nil, fmt.Errorf("engine: safety gate must not be nil")
	case deps.Rewriter == nil:
		return nil, fmt.Errorf("engine: rewriter must not be nil")
	case deps.Answerer == nil:
		return nil, fmt.Errorf("engine: answerer must not be nil")
	case deps.Classifier == nil:
		return nil, fmt.Errorf("engine: classifier must not be nil")
	}
	return &Engine{
		store:      deps.Store,
		gate:       deps.Gate,
		rewriter:   deps.Rewriter,
		answerer:   deps.Answerer,
		classifier: deps.Classifier,
		cfg:        cfg,
	}, nil
}

// Invoke processes one request and returns its envelope.
func (e *Engine) Invoke(ctx context.Context, req *api.QueryRequest) *api.PipelineResult {
	return e.Process(ctx, req).Result
}

// Process is Invoke with the full run record.
func (e *Engine) Process(ctx context.Context, req *api.QueryRequest) (run *Run) {
	start := time.Now()
	run = &Run{
		SessionKey: session.Key(req.Parameters),
		Trace:      []State{StateStart},
	}

	ctx, span := tracer.Start(ctx, "invocation", trace.WithAttributes(
		attribute.String("askgs.session", run.SessionKey),
		attribute.String("askgs.user_id", req.Parameters.UserID),
	))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("pipeline panic", "panic", r, "stack", string(debug.Stack()))
			run.fail(api.KindUnhandledException, fmt.Errorf("panic: %v", r))
		}
		e.finish(span, req, run, start)
	}()

	unlock, err := e.store.Lock(ctx, run.SessionKey)
	if err != nil {
		run.fail(api.KindUnhandledException, fmt.Errorf("locking session: %w", err))
		return run
	}
	defer unlock()

	e.pipeline(ctx, req, run)
	return run
}

// pipeline walks the state machine. Turns are appended only after a
// successful classification.
func (e *Engine) pipeline(ctx context.Context, req *api.QueryRequest, run *Run) {
	var history []api.Turn
	err := stage(ctx, "history", func(ctx context.Context) error {
		var err error
		history, err = e.applyHistoryPolicy(ctx, run.SessionKey, req.Parameters)
		return err
	})
	if err != nil {
		run.fail(api.KindUnhandledException, err)
		return
	}
	run.advance(StateHistoryPolicyApplied)

	var verdict guardrail.Verdict
	err = stage(ctx, "guardrail", func(ctx context.Context) error {
		var err error
		verdict, err = e.gate.Classify(ctx, req.Inputs)
		return err
	})
	if err != nil {
		run.fail(api.KindGuardrailFailure, err)
		return
	}
	run.advance(StateGated)
	if verdict == guardrail.Unsafe {
		askdebug.Log("engine", "query rejected by safety gate", "session", run.SessionKey)
		run.Outcome = OutcomeUnsafe
		run.Result = e.refusal()
		run.advance(StateDone)
		return
	}

	var rewritten rewriter.Result
	err = stage(ctx, "rewriter", func(ctx context.Context) error {
		var err error
		rewritten, err = e.rewriter.Rewrite(ctx, req.Inputs, history)
		return err
	})
	if err != nil {
		run.fail(api.KindRewriteFailure, err)
		return
	}
	if rewritten.Profane {
		askdebug.Log("engine", "rewriter flagged profanity", "session", run.SessionKey)
		run.Outcome = OutcomeProfane
		run.Result = e.refusal()
		run.advance(StateDone)
		return
	}
	run.Rewritten = rewriter.Clean(rewritten.Text)
	if run.Rewritten == "" {
		run.fail(api.KindRewriteFailure, rewriter.ErrEmptyRewrite)
		return
	}
	run.advance(StateRewritten)
	askdebug.Log("engine", "query rewritten", "session", run.SessionKey, "query", run.Rewritten)

	err = stage(ctx, "answer_engine", func(ctx context.Context) error {
		answer, err := e.answerer.Answer(ctx, run.Rewritten)
		run.Answer = answer
		return err
	})
	if err != nil {
		run.fail(api.KindAnswerEngineFailure, err)
		return
	}
	run.advance(StateAnswered)

	label := e.classifier.Classify(run.Answer)
	askdebug.Log("engine", "answer classified", "session", run.SessionKey, "label", label)

	err = e.store.Append(ctx, run.SessionKey, api.UserTurn(run.Rewritten), api.AssistantTurn(run.Answer))
	if err != nil {
		run.fail(api.KindUnhandledException, fmt.Errorf("appending turns: %w", err))
		return
	}
	run.advance(StateClassified)

	run.Outcome = outcomeFor(label)
	if run.Outcome == OutcomeContextUnavailable {
		run.Err = api.NewPipelineError(api.KindContextUnavailable, errBlankAnswer)
		run.Result = e.errorResult(run.Err)
	} else {
		run.Result = e.newResult(200, run.Answer)
	}
	run.advance(StateDone)
}

// finish fills in the envelope of failed runs and reports the outcome.
func (e *Engine) finish(span trace.Span, req *api.QueryRequest, run *Run, start time.Time) {
	if run.Err != nil {
		if run.Result == nil {
			run.Result = e.errorResult(run.Err)
		}
		slog.Error("pipeline failed",
			"code", run.Err.Code(),
			"kind", run.Err.Kind,
			"user_id", req.Parameters.UserID,
			"session", run.SessionKey,
			"request_id", req.Parameters.RequestID,
			"error", run.Err.Err,
		)
		observability.PipelineErrorsTotal.WithLabelValues(strconv.Itoa(run.Err.Code())).Inc()
		span.RecordError(run.Err)
		span.SetStatus(codes.Error, run.Err.Error())
	}
	if run.Result == nil {
		// Unreachable unless a stage forgot to set a result.
		run.fail(api.KindUnhandledException, errors.New("pipeline ended without a result"))
		run.Result = e.errorResult(run.Err)
	}

	observability.PipelineOutcomesTotal.WithLabelValues(string(run.Outcome)).Inc()
	span.SetAttributes(
		attribute.String("askgs.outcome", string(run.Outcome)),
		attribute.Int("askgs.status_code", run.Result.StatusCode),
	)
	slog.Info("pipeline finished",
		"session", run.SessionKey,
		"outcome", run.Outcome,
		"status_code", run.Result.StatusCode,
		"duration", time.Since(start),
	)
}
