// Package session defines the conversation state store: the rolling turn
// history kept per session key, and the per-key serialization that keeps
// concurrent requests of one session from interleaving.
//
// Store adapters live in sub-packages (memory, postgres, libsql). This
// package holds the contract and the helpers they share.
package session
