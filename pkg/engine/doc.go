// Package engine implements the askgs orchestration pipeline.
//
// An Engine turns one invocation into one api.PipelineResult. It serialises
// work per conversation session, applies the history policy, gates the raw
// query, rewrites it against recent turns, asks the answer engine and
// classifies the reply. Turns are appended to the session only after
// classification. Every failure is caught and mapped to an envelope; Invoke
// never returns an error.
package engine
