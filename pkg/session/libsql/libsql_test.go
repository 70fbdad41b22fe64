package libsql

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knikam3027/jnj/pkg/api"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(context.Background(), Config{Path: filepath.Join(t.TempDir(), "sessions", "askgs.db")})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLibSQLAppendGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, "u1_r1", api.UserTurn("does Canada have a pension policy?"), api.AssistantTurn("Yes.")))
	require.NoError(t, s.Append(ctx, "u1_r1", api.UserTurn("what about US?")))

	got, err := s.Get(ctx, "u1_r1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, api.RoleUser, got[0].Role)
	assert.Equal(t, api.RoleAssistant, got[1].Role)
	assert.Equal(t, "what about US?", got[2].Content)
}

func TestLibSQLUnknownSessionIsEmpty(t *testing.T) {
	s := newTestStore(t)
	got, err := s.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestLibSQLClearIsScoped(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, "a", api.UserTurn("one")))
	require.NoError(t, s.Append(ctx, "b", api.UserTurn("two")))
	require.NoError(t, s.Clear(ctx, "a"))

	a, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, a)

	b, err := s.Get(ctx, "b")
	require.NoError(t, err)
	assert.Len(t, b, 1)
}

func TestLibSQLReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "askgs.db")
	ctx := context.Background()

	first, err := New(ctx, Config{Path: path})
	require.NoError(t, err)
	require.NoError(t, first.Append(ctx, "k", api.UserTurn("remember me")))
	require.NoError(t, first.Close())

	second, err := New(ctx, Config{Path: path})
	require.NoError(t, err)
	defer second.Close()

	got, err := second.Get(ctx, "k")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "remember me", got[0].Content)
}

func TestLibSQLRequiresPath(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.Error(t, err)
}
