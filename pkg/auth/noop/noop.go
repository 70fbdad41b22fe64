// Package noop provides an authenticator that admits every request as
// "anonymous". It is the chain used when auth is disabled.
package noop

import (
	"context"
	"net/http"

	"github.com/knikam3027/jnj/pkg/auth"
)

// Authenticator always votes Yes.
type Authenticator struct{}

// Authenticate returns the anonymous identity.
func (Authenticator) Authenticate(_ context.Context, _ *http.Request) auth.AuthResult {
	return auth.AuthResult{
		Decision: auth.Yes,
		Identity: &auth.Identity{Subject: "anonymous", ServiceTier: "default"},
	}
}
