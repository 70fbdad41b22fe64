// Package apikey validates static API keys presented as a bearer token or
// in the X-API-Key header. Keys are kept only as SHA-256 hashes and
// compared in constant time.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/knikam3027/jnj/pkg/auth"
)

// HeaderAPIKey is the alternative header carrying a key.
const HeaderAPIKey = "X-API-Key"

// Key is the configuration of one API key.
type Key struct {
	Key         string `yaml:"key"`
	Subject     string `yaml:"subject"`
	ServiceTier string `yaml:"service_tier"`
}

type entry struct {
	hash     [32]byte
	identity auth.Identity
}

// Authenticator validates keys against a static set.
type Authenticator struct {
	keys []entry
}

// New hashes keys. Plaintext keys are not retained.
func New(keys []Key) *Authenticator {
	a := &Authenticator{}
	for _, k := range keys {
		a.keys = append(a.keys, entry{
			hash:     sha256.Sum256([]byte(k.Key)),
			identity: auth.Identity{Subject: k.Subject, ServiceTier: k.ServiceTier},
		})
	}
	return a
}

// Authenticate abstains when no key is presented or the bearer token is a
// JWT, and votes No for an unknown key.
func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) auth.AuthResult {
	token, ok := presentedKey(r)
	if !ok {
		return auth.AuthResult{Decision: auth.Abstain}
	}
	if token == "" {
		return auth.AuthResult{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}

	sum := sha256.Sum256([]byte(token))
	for _, e := range a.keys {
		if subtle.ConstantTimeCompare(sum[:], e.hash[:]) == 1 {
			id := e.identity
			return auth.AuthResult{Decision: auth.Yes, Identity: &id}
		}
	}
	return auth.AuthResult{Decision: auth.No, Err: auth.ErrUnauthenticated}
}

func presentedKey(r *http.Request) (string, bool) {
	if v := r.Header.Get(HeaderAPIKey); v != "" {
		return strings.TrimSpace(v), true
	}
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if strings.Count(token, ".") == 2 {
		return "", false
	}
	return token, true
}
