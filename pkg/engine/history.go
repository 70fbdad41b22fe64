package engine

import (
	"context"
	"fmt"

	"github.com/knikam3027/jnj/pkg/api"
	"github.com/knikam3027/jnj/pkg/debug"
)

// applyHistoryPolicy returns the history the request may use. The session
// is cleared first when the caller opted out of history or when it holds
// more than MaxTurns turns.
func (e *Engine) applyHistoryPolicy(ctx context.Context, key string, params api.Parameters) ([]api.Turn, error) {
	history, err := e.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}

	var reason string
	switch {
	case !params.RetainHistory():
		reason = "history disabled by caller"
	case len(history) > e.cfg.maxTurns():
		reason = "history limit exceeded"
	default:
		return history, nil
	}

	if err := e.store.Clear(ctx, key); err != nil {
		return nil, fmt.Errorf("clearing history: %w", err)
	}
	debug.Log("engine", "session history cleared", "session", key, "reason", reason, "turns", len(history))
	return []api.Turn{}, nil
}
