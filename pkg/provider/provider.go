package provider

import "context"

// Provider abstracts a chat completion backend.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type Provider interface {
	// Name returns the provider identifier (e.g., "openai", "azure").
	Name() string

	// Complete performs one non-streaming completion.
	Complete(ctx context.Context, req *ProviderRequest) (*ProviderResponse, error)

	// Close releases provider resources (HTTP clients, connections).
	Close() error
}
