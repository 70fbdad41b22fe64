package auth

import (
	"context"
	"errors"
	"net/http"
)

// AuthDecision is the vote of one authenticator.
type AuthDecision int

const (
	// Yes means the credentials are valid. The chain stops.
	Yes AuthDecision = iota

	// No means credentials are present but invalid. The chain stops and
	// the request is rejected.
	No

	// Abstain passes the request to the next authenticator.
	Abstain
)

// String returns the decision name.
func (d AuthDecision) String() string {
	switch d {
	case Yes:
		return "yes"
	case No:
		return "no"
	default:
		return "abstain"
	}
}

// AuthResult carries the outcome of an authentication attempt.
type AuthResult struct {
	Decision AuthDecision
	Identity *Identity // set when Decision == Yes
	Err      error     // set when Decision == No
}

// Identity is an authenticated caller.
type Identity struct {
	// Subject is the unique caller identifier. It is never empty.
	Subject string

	// ServiceTier selects the rate limit.
	ServiceTier string

	Scopes []string

	// Metadata carries authenticator-specific attributes.
	Metadata map[string]string
}

// Tier returns the service tier, defaulting to "default".
func (id *Identity) Tier() string {
	if id == nil || id.ServiceTier == "" {
		return "default"
	}
	return id.ServiceTier
}

// Authenticator examines request credentials and votes.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) AuthResult
}

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrTooManyRequests = errors.New("rate limit exceeded")
)

// AuthChain evaluates authenticators in order.
type AuthChain struct {
	Authenticators []Authenticator

	// DefaultDecision applies when every authenticator abstains. Yes admits
	// the caller as "anonymous".
	DefaultDecision AuthDecision
}

// Authenticate runs the chain and stops on the first Yes or No.
func (c *AuthChain) Authenticate(ctx context.Context, r *http.Request) AuthResult {
	for _, authn := range c.Authenticators {
		if result := authn.Authenticate(ctx, r); result.Decision != Abstain {
			return result
		}
	}

	if c.DefaultDecision == Yes {
		return AuthResult{
			Decision: Yes,
			Identity: &Identity{Subject: "anonymous", ServiceTier: "default"},
		}
	}
	return AuthResult{Decision: No, Err: ErrUnauthenticated}
}
