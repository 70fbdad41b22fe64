package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/knikam3027/jnj/pkg/answerengine"
	"github.com/knikam3027/jnj/pkg/api"
	"github.com/knikam3027/jnj/pkg/classifier"
	"github.com/knikam3027/jnj/pkg/guardrail"
	"github.com/knikam3027/jnj/pkg/provider"
	"github.com/knikam3027/jnj/pkg/rewriter"
)

func (e *Engine) newResult(status int, body string) *api.PipelineResult {
	res := api.NewPipelineResult(status, body)
	if e.cfg.AllowOrigin != "" {
		res.Headers[api.HeaderAllowOrigin] = e.cfg.AllowOrigin
	}
	return res
}

func (e *Engine) refusal() *api.PipelineResult {
	return e.newResult(200, RefusalBody)
}

// errorResult renders a failed run. The body names the failure code and
// at most a short known reason; the cause is only logged.
func (e *Engine) errorResult(pe *api.PipelineError) *api.PipelineResult {
	if pe.Kind == api.KindContextUnavailable {
		return e.newResult(e.cfg.errorStatus(), UnavailableBody)
	}
	body := ErrorBodyPrefix + pe.Message()
	if reason := failureReason(pe.Err); reason != "" {
		body += ": " + reason
	}
	return e.newResult(e.cfg.errorStatus(), body)
}

// failureReason maps a cause to a fixed phrase. Unknown causes yield "".
func failureReason(err error) string {
	if err == nil {
		return ""
	}
	if reason, ok := api.SafeReason(err); ok {
		return reason
	}
	var apiErr *api.APIError
	switch {
	case errors.Is(err, answerengine.ErrAnswerEngineTimeout):
		return "answer engine timeout"
	case errors.Is(err, answerengine.ErrNoAnswer):
		return "answer engine produced no steps"
	case errors.Is(err, provider.ErrGatewayTimeout):
		return "gateway timeout"
	case errors.Is(err, provider.ErrEmptyCompletion):
		return "gateway returned no completion"
	case errors.Is(err, guardrail.ErrNonConforming):
		return "guardrail output is not Safe or Unsafe"
	case errors.Is(err, rewriter.ErrEmptyRewrite):
		return "empty rewrite"
	case errors.Is(err, rewriter.ErrTruncatedRewrite):
		return "rewrite truncated"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &apiErr):
		return fmt.Sprintf("gateway %s", apiErr.Type)
	}
	return ""
}

// outcomeFor maps a classification label to the run outcome. The answer
// text is returned unchanged for every label except Ambiguous.
func outcomeFor(label classifier.Label) Outcome {
	switch label {
	case classifier.Delivered:
		return OutcomeAnswered
	case classifier.NoContext:
		return OutcomeNoContext
	case classifier.Refused:
		return OutcomeRefused
	default:
		return OutcomeContextUnavailable
	}
}
