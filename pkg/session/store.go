package session

import (
	"context"
	"errors"

	"github.com/knikam3027/jnj/pkg/api"
)

// ErrClosed is returned by stores after Close.
var ErrClosed = errors.New("session store closed")

// Store owns the conversation history of every session.
//
// Append must preserve call order: turns passed in one call are stored
// contiguously and after every turn of earlier calls for the same key.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the turns of a session in chronological order.
	// An unknown key yields an empty history, not an error.
	Get(ctx context.Context, key string) ([]api.Turn, error)

	// Clear drops every turn of a session.
	Clear(ctx context.Context, key string) error

	// Append adds turns to the end of a session's history.
	Append(ctx context.Context, key string, turns ...api.Turn) error

	// Lock acquires exclusive access to a session. Waiters are served in
	// arrival order. The returned function releases the lock.
	Lock(ctx context.Context, key string) (unlock func(), err error)

	// HealthCheck verifies the backing storage is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases store resources.
	Close() error
}

// DefaultKey is used when a request carries neither a user nor a request id.
const DefaultKey = "default_user"

// Key derives the session key for a request: an explicit session token wins,
// otherwise "<user>_<request>". A missing user falls back to the request id,
// a missing request id to DefaultKey.
func Key(p api.Parameters) string {
	if p.SessionID != "" {
		return p.SessionID
	}

	requestID := p.RequestID
	userID := p.UserID
	if userID == "" {
		userID = requestID
	}
	if userID == "" {
		userID = DefaultKey
	}
	if requestID == "" {
		requestID = DefaultKey
	}
	return userID + "_" + requestID
}
