// Package provider defines the Language Model Gateway contract: an ordered
// list of role-tagged messages plus sampling parameters in, one generated
// message out. Adapters (openaicompat, azure) speak the backend protocol;
// Resilient adds per-attempt timeouts and bounded retries on top of any
// adapter so callers never loop themselves.
package provider
