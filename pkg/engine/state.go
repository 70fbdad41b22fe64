package engine

import "github.com/knikam3027/jnj/pkg/api"

// State is a step of the pipeline state machine.
type State string

const (
	StateStart                State = "start"
	StateHistoryPolicyApplied State = "history_policy_applied"
	StateGated                State = "gated"
	StateRewritten            State = "rewritten"
	StateAnswered             State = "answered"
	StateClassified           State = "classified"
	StateDone                 State = "done"
	StateErrored              State = "errored"
)

// Outcome is the terminal category of a run, used as a metric label.
type Outcome string

const (
	OutcomeAnswered           Outcome = "answered"
	OutcomeNoContext          Outcome = "no_context"
	OutcomeRefused            Outcome = "refused"
	OutcomeUnsafe             Outcome = "refused_unsafe"
	OutcomeProfane            Outcome = "refused_profane"
	OutcomeContextUnavailable Outcome = "context_unavailable"
	OutcomeError              Outcome = "error"
)

// Run records one pass through the pipeline.
type Run struct {
	SessionKey string

	// Trace lists the states visited, in order.
	Trace []State

	// Rewritten is the cleaned query sent to the answer engine.
	Rewritten string

	// Answer is the answer engine's final text.
	Answer string

	Outcome Outcome

	// Err is set for failed runs and for ContextUnavailable.
	Err *api.PipelineError

	Result *api.PipelineResult
}

// State returns the last state visited.
func (r *Run) State() State {
	if len(r.Trace) == 0 {
		return StateStart
	}
	return r.Trace[len(r.Trace)-1]
}

func (r *Run) advance(s State) {
	r.Trace = append(r.Trace, s)
}

// fail moves the run to Errored. The first failure wins.
func (r *Run) fail(kind api.ErrorKind, err error) {
	if r.Err != nil && r.State() == StateErrored {
		return
	}
	r.Err = api.NewPipelineError(kind, err)
	r.Outcome = OutcomeError
	r.advance(StateErrored)
}
