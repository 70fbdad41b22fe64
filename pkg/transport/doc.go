// Package transport defines the invocation contract between the HTTP
// surface and the orchestration engine, plus the middleware chain that
// wraps it.
//
// # Invoker
//
// An Invoker turns one api.QueryRequest into one api.PipelineResult. It
// never returns an error: every failure, including a recovered panic, is
// expressed as an envelope with a non-200 statusCode.
//
// # Middleware
//
// Middleware wraps an Invoker with cross-cutting behavior. The built-in
// middleware provides panic recovery, request ID assignment (X-Request-ID)
// and structured logging via log/slog.
//
// Transport-level rejections that happen before the pipeline runs
// (malformed JSON, schema violations, oversized bodies, authentication)
// are written as api.APIError values by WriteErrorResponse.
package transport
