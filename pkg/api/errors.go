package api

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of a transport-level API error.
type ErrorType string

const (
	ErrorTypeServerError     ErrorType = "server_error"
	ErrorTypeInvalidRequest  ErrorType = "invalid_request"
	ErrorTypeNotFound        ErrorType = "not_found"
	ErrorTypeUnauthorized    ErrorType = "unauthorized"
	ErrorTypeTooManyRequests ErrorType = "too_many_requests"
)

// APIError is a structured rejection produced before the pipeline runs
// (malformed payload, authentication, rate limiting).
type APIError struct {
	Type    ErrorType `json:"type"`
	Code    string    `json:"code,omitempty"`
	Param   string    `json:"param,omitempty"`
	Message string    `json:"message"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s: %s (param: %s)", e.Type, e.Message, e.Param)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorResponse wraps an APIError for JSON serialization.
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

// NewInvalidRequestError creates an APIError for an invalid payload field.
func NewInvalidRequestError(param, message string) *APIError {
	return &APIError{Type: ErrorTypeInvalidRequest, Param: param, Message: message}
}

// NewNotFoundError creates an APIError for unknown routes or resources.
func NewNotFoundError(message string) *APIError {
	return &APIError{Type: ErrorTypeNotFound, Message: message}
}

// NewServerError creates an APIError for internal failures outside the pipeline.
func NewServerError(message string) *APIError {
	return &APIError{Type: ErrorTypeServerError, Message: message}
}

// NewUnauthorizedError creates an APIError for missing or invalid credentials.
func NewUnauthorizedError(message string) *APIError {
	return &APIError{Type: ErrorTypeUnauthorized, Message: message}
}

// NewTooManyRequestsError creates an APIError for rate limiting.
func NewTooManyRequestsError(message string) *APIError {
	return &APIError{Type: ErrorTypeTooManyRequests, Message: message}
}

// ErrorKind classifies a pipeline failure by its originating stage.
type ErrorKind string

const (
	KindGuardrailFailure    ErrorKind = "guardrail_failure"
	KindRewriteFailure      ErrorKind = "rewrite_failure"
	KindAnswerEngineFailure ErrorKind = "answer_engine_failure"
	KindContextUnavailable  ErrorKind = "context_unavailable"
	KindUnhandledException  ErrorKind = "unhandled_exception"
)

// Stable numeric codes written to logs and embedded in error bodies.
const (
	CodeGuardrailFailure    = 1001
	CodeRewriteFailure      = 1002
	CodeAnswerEngineFailure = 1003
	CodeTransportFailure    = 1007
	CodeContextUnavailable  = 1010
	CodeUnhandledException  = 1011
)

// Code returns the stable numeric code for the kind.
func (k ErrorKind) Code() int {
	switch k {
	case KindGuardrailFailure:
		return CodeGuardrailFailure
	case KindRewriteFailure:
		return CodeRewriteFailure
	case KindAnswerEngineFailure:
		return CodeAnswerEngineFailure
	case KindContextUnavailable:
		return CodeContextUnavailable
	default:
		return CodeUnhandledException
	}
}

// Summary returns the human-readable description used in error bodies.
func (k ErrorKind) Summary() string {
	switch k {
	case KindGuardrailFailure:
		return "Error in Guardrails"
	case KindRewriteFailure:
		return "Error in Query Rewriter"
	case KindAnswerEngineFailure:
		return "Error in Answer Engine"
	case KindContextUnavailable:
		return "Context not available"
	default:
		return "Unhandled exception"
	}
}

// PipelineError is a stage failure inside the orchestration pipeline.
type PipelineError struct {
	Kind ErrorKind
	Err  error
}

// NewPipelineError wraps err as a failure of the given kind.
func NewPipelineError(kind ErrorKind, err error) *PipelineError {
	return &PipelineError{Kind: kind, Err: err}
}

// Code returns the stable numeric code of the failure.
func (e *PipelineError) Code() int {
	return e.Kind.Code()
}

// Error renders "<code> - <summary>: <cause>".
func (e *PipelineError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%d - %s", e.Code(), e.Kind.Summary())
	}
	return fmt.Sprintf("%d - %s: %v", e.Code(), e.Kind.Summary(), e.Err)
}

// Unwrap returns the underlying cause.
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// AsPipelineError returns err as a PipelineError, wrapping anything that is
// not already classified as an unhandled exception.
func AsPipelineError(err error) *PipelineError {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe
	}
	return NewPipelineError(KindUnhandledException, err)
}

// Message renders "<code> - <summary>" without the cause. Causes can carry
// upstream bodies and tracebacks, so only Message is shown to callers.
func (e *PipelineError) Message() string {
	return fmt.Sprintf("%d - %s", e.Code(), e.Kind.Summary())
}

// reasonError attaches a caller-safe reason to an error.
type reasonError struct {
	reason string
	err    error
}

func (r *reasonError) Error() string { return r.err.Error() }
func (r *reasonError) Unwrap() error { return r.err }

// WithReason annotates err with a short reason that may be shown to
// callers, such as "upstream HTTP 502". err itself is kept for logs.
func WithReason(reason string, err error) error {
	if err == nil {
		return nil
	}
	return &reasonError{reason: reason, err: err}
}

// SafeReason returns the outermost reason attached with WithReason.
func SafeReason(err error) (string, bool) {
	var r *reasonError
	if errors.As(err, &r) {
		return r.reason, true
	}
	return "", false
}
