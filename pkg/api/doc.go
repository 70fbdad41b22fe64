// Package api defines the wire and domain types shared by the askgs
// question-answering pipeline.
//
// It covers the invocation envelope accepted on POST /invocations, the
// conversation transcript, the uniform result envelope returned to callers,
// and the error taxonomy used by every pipeline stage.
//
// Core types:
//   - [QueryRequest]: Caller question plus routing parameters
//   - [Turn]: One role-tagged message of a conversation transcript
//   - [PipelineResult]: The response envelope (statusCode, headers, body, metadata)
//   - [PipelineError]: A stage failure carrying a stable numeric code
//   - [APIError]: A transport-level rejection (bad payload, auth, rate limit)
package api
