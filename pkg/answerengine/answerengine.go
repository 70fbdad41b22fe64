// Package answerengine forwards a rewritten question to the external
// answer engine and returns its final answer.
//
// Engines report progress as a sequence of steps. The Adapter drains the
// sequence, keeps only the last step and bounds the whole exchange with a
// timeout. It applies no business logic and never retries.
package answerengine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/knikam3027/jnj/pkg/debug"
	"github.com/knikam3027/jnj/pkg/observability"
)

var (
	// ErrAnswerEngineTimeout is returned when no final answer arrived
	// within the configured timeout.
	ErrAnswerEngineTimeout = errors.New("answer engine timeout")

	// ErrNoAnswer is returned when the engine finished without any step.
	ErrNoAnswer = errors.New("answer engine produced no steps")
)

// Step is one intermediate or final output of the engine. A step with a
// non-nil Err aborts the run.
type Step struct {
	Content string
	Err     error
}

// Engine runs a question and streams its steps. The channel is closed
// when the run ends. Implementations must stop sending when ctx is done.
type Engine interface {
	Name() string
	Run(ctx context.Context, question string, maxSteps int) (<-chan Step, error)
	Close() error
}

// Config bounds one answer.
type Config struct {
	Timeout  time.Duration
	MaxSteps int
}

// DefaultConfig returns a 60s timeout and 25 steps.
func DefaultConfig() Config {
	return Config{Timeout: 60 * time.Second, MaxSteps: 25}
}

// Adapter turns an Engine's step sequence into one answer.
type Adapter struct {
	engine Engine
	cfg    Config
}

// New creates an Adapter over engine.
func New(engine Engine, cfg Config) *Adapter {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultConfig().MaxSteps
	}
	return &Adapter{engine: engine, cfg: cfg}
}

// Answer returns the content of the engine's last step.
func (a *Adapter) Answer(ctx context.Context, question string) (string, error) {
	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if a.cfg.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
	}
	defer cancel()

	steps, err := a.engine.Run(runCtx, question, a.cfg.MaxSteps)
	if err != nil {
		return "", a.mapErr(ctx, runCtx, err)
	}

	var (
		last  string
		count int
	)
	for {
		select {
		case step, ok := <-steps:
			if !ok {
				// Engines close the channel when ctx ends; that is not a finished run.
				if runCtx.Err() != nil {
					return "", a.mapErr(ctx, runCtx, runCtx.Err())
				}
				observability.AnswerEngineSteps.WithLabelValues(a.engine.Name()).Observe(float64(count))
				if count == 0 {
					return "", ErrNoAnswer
				}
				debug.Log("answerengine", "run finished", "engine", a.engine.Name(), "steps", count)
				return last, nil
			}
			if step.Err != nil {
				return "", a.mapErr(ctx, runCtx, step.Err)
			}
			count++
			last = step.Content
			debug.Trace("answerengine", "step", "n", count, "content", debug.Truncate(step.Content, 200))

		case <-runCtx.Done():
			return "", a.mapErr(ctx, runCtx, runCtx.Err())
		}
	}
}

// mapErr converts an overrun of the adapter's own deadline into
// ErrAnswerEngineTimeout.
func (a *Adapter) mapErr(parent, runCtx context.Context, err error) error {
	if parent.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: no answer within %s", ErrAnswerEngineTimeout, a.cfg.Timeout)
	}
	return err
}

// Close closes the underlying engine.
func (a *Adapter) Close() error {
	return a.engine.Close()
}
