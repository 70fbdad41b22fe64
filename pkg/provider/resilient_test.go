package provider

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/knikam3027/jnj/pkg/api"
)

// scriptedProvider returns the scripted errors in order, then succeeds.
type scriptedProvider struct {
	errs  []error
	calls atomic.Int32
	block bool
}

func (p *scriptedProvider) Name() string { return "scripted" }
func (p *scriptedProvider) Close() error { return nil }

func (p *scriptedProvider) Complete(ctx context.Context, req *ProviderRequest) (*ProviderResponse, error) {
	n := int(p.calls.Add(1))
	if p.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if n <= len(p.errs) {
		return nil, p.errs[n-1]
	}
	return &ProviderResponse{Text: "Safe", Model: req.Model}, nil
}

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond, Multiplier: 2}
}

func TestResilientRetriesTransientErrors(t *testing.T) {
	p := &scriptedProvider{errs: []error{
		api.NewServerError("upstream 502"),
		api.NewTooManyRequestsError("slow down"),
	}}
	r := NewResilient(p, fastPolicy(3), time.Second)

	resp, err := r.Complete(context.Background(), &ProviderRequest{Model: "m"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != "Safe" {
		t.Errorf("Text = %q", resp.Text)
	}
	if got := p.calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestResilientStopsOnPermanentError(t *testing.T) {
	p := &scriptedProvider{errs: []error{api.NewInvalidRequestError("", "bad prompt")}}
	r := NewResilient(p, fastPolicy(5), time.Second)

	_, err := r.Complete(context.Background(), &ProviderRequest{Model: "m"})
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) || apiErr.Type != api.ErrorTypeInvalidRequest {
		t.Fatalf("expected invalid_request APIError, got %v", err)
	}
	if got := p.calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestResilientBoundsAttempts(t *testing.T) {
	boom := api.NewServerError("down")
	p := &scriptedProvider{errs: []error{boom, boom, boom, boom, boom}}
	r := NewResilient(p, fastPolicy(2), time.Second)

	_, err := r.Complete(context.Background(), &ProviderRequest{Model: "m"})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if got := p.calls.Load(); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
}

func TestResilientPerAttemptTimeout(t *testing.T) {
	p := &scriptedProvider{block: true}
	r := NewResilient(p, fastPolicy(2), 20*time.Millisecond)

	_, err := r.Complete(context.Background(), &ProviderRequest{Model: "m"})
	if !errors.Is(err, ErrGatewayTimeout) {
		t.Fatalf("expected ErrGatewayTimeout, got %v", err)
	}
	if got := p.calls.Load(); got != 2 {
		t.Errorf("timeouts are transient: calls = %d, want 2", got)
	}
}

func TestResilientHonoursCallerCancellation(t *testing.T) {
	p := &scriptedProvider{block: true}
	r := NewResilient(p, fastPolicy(5), time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := r.Complete(ctx, &ProviderRequest{Model: "m"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got := p.calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestRetryPolicyConstantBackoff(t *testing.T) {
	p := &scriptedProvider{errs: []error{ErrGatewayTimeout}}
	policy := RetryPolicy{MaxAttempts: 2, InitialInterval: time.Millisecond, Multiplier: 1}
	r := NewResilient(p, policy, 0)

	if _, err := r.Complete(context.Background(), &ProviderRequest{Model: "m"}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"timeout", ErrGatewayTimeout, true},
		{"server error", api.NewServerError("x"), true},
		{"rate limited", api.NewTooManyRequestsError("x"), true},
		{"invalid request", api.NewInvalidRequestError("", "x"), false},
		{"unauthorized", api.NewUnauthorizedError("x"), false},
		{"canceled", context.Canceled, false},
		{"plain", errors.New("x"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
