package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/knikam3027/jnj/pkg/debug"
	"github.com/knikam3027/jnj/pkg/observability"
)

// RetryPolicy bounds gateway retries.
type RetryPolicy struct {
	// MaxAttempts counts the first call. Values below 1 mean 1.
	MaxAttempts int `yaml:"max_attempts"`

	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`

	// Multiplier above 1 gives exponential backoff; 1 or less keeps
	// InitialInterval constant.
	Multiplier float64 `yaml:"multiplier"`
}

// DefaultRetryPolicy returns three attempts with exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		Multiplier:      2,
	}
}

func (p RetryPolicy) backOff() backoff.BackOff {
	var b backoff.BackOff
	if p.Multiplier > 1 {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = p.InitialInterval
		eb.MaxInterval = p.MaxInterval
		eb.Multiplier = p.Multiplier
		eb.MaxElapsedTime = 0
		b = eb
	} else {
		b = backoff.NewConstantBackOff(p.InitialInterval)
	}

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithMaxRetries(b, uint64(attempts-1))
}

// Resilient wraps a Provider with a per-attempt timeout and bounded
// retries of transient failures. It also records gateway metrics.
type Resilient struct {
	next    Provider
	policy  RetryPolicy
	timeout time.Duration
}

// Ensure Resilient implements Provider at compile time.
var _ Provider = (*Resilient)(nil)

// NewResilient wraps next. A zero timeout leaves attempts unbounded
// except by the caller's context.
func NewResilient(next Provider, policy RetryPolicy, timeout time.Duration) *Resilient {
	return &Resilient{next: next, policy: policy, timeout: timeout}
}

// Name returns the wrapped provider's name.
func (r *Resilient) Name() string { return r.next.Name() }

// Complete calls the wrapped provider until it succeeds, fails permanently
// or runs out of attempts. Deadline overruns surface as ErrGatewayTimeout.
func (r *Resilient) Complete(ctx context.Context, req *ProviderRequest) (*ProviderResponse, error) {
	start := time.Now()
	name := r.next.Name()
	attempt := 0

	var resp *ProviderResponse
	op := func() error {
		attempt++
		var err error
		resp, err = r.attempt(ctx, req)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		observability.GatewayRetriesTotal.WithLabelValues(name).Inc()
		slog.Warn("gateway call failed, retrying",
			"provider", name,
			"attempt", attempt,
			"backoff", wait,
			"error", err,
		)
	}

	err := backoff.RetryNotify(op, backoff.WithContext(r.policy.backOff(), ctx), notify)

	observability.GatewayLatency.WithLabelValues(name, req.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		observability.GatewayRequestsTotal.WithLabelValues(name, req.Model, "error").Inc()
		return nil, fmt.Errorf("gateway %s after %d attempt(s): %w", name, attempt, err)
	}

	observability.GatewayRequestsTotal.WithLabelValues(name, req.Model, "ok").Inc()
	observability.GatewayTokensTotal.WithLabelValues(name, req.Model, "input").Add(float64(resp.Usage.InputTokens))
	observability.GatewayTokensTotal.WithLabelValues(name, req.Model, "output").Add(float64(resp.Usage.OutputTokens))
	debug.Log("gateway", "completion done",
		"provider", name,
		"attempts", strconv.Itoa(attempt),
		"finish_reason", resp.FinishReason,
	)
	return resp, nil
}

func (r *Resilient) attempt(ctx context.Context, req *ProviderRequest) (*ProviderResponse, error) {
	if r.timeout <= 0 {
		return r.next.Complete(ctx, req)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resp, err := r.next.Complete(attemptCtx, req)
	if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: no response within %s", ErrGatewayTimeout, r.timeout)
	}
	return resp, err
}

// Close closes the wrapped provider.
func (r *Resilient) Close() error { return r.next.Close() }
