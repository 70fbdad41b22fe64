// Package libsql provides a session.Store on an embedded libSQL (SQLite)
// database file, for single-node deployments that need histories to
// survive restarts without running a database server.
package libsql

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/pressly/goose/v3"
	_ "github.com/tursodatabase/go-libsql"

	"github.com/knikam3027/jnj/pkg/api"
	"github.com/knikam3027/jnj/pkg/session"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Config holds libSQL store settings.
type Config struct {
	// Path is the database file location. Parent directories are created.
	Path string
}

// Store is a libSQL-backed session.Store.
type Store struct {
	db    *sql.DB
	locks *session.KeyedMutex

	// appendMu orders tail reads and inserts; SQLite has a single writer anyway.
	appendMu sync.Mutex
}

// Ensure Store implements session.Store at compile time.
var _ session.Store = (*Store)(nil)

// New opens (creating if needed) the database file and applies migrations.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("libsql: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("libsql", "file:"+cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("opening libsql database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to libsql database: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	slog.Info("session store opened", "backend", "libsql", "path", cfg.Path)
	return &Store{db: db, locks: session.NewKeyedMutex()}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("reading migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectTurso, db, fsys)
	if err != nil {
		return fmt.Errorf("creating migration provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	for _, r := range results {
		slog.Info("applied migration", "file", r.Source.Path, "duration", r.Duration)
	}
	return nil
}

// Get returns the session's turns ordered by sequence number.
func (s *Store) Get(ctx context.Context, key string) ([]api.Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content FROM conversation_turns WHERE session_key = ? ORDER BY seq`, key)
	if err != nil {
		return nil, fmt.Errorf("querying turns: %w", err)
	}
	defer rows.Close()

	turns := []api.Turn{}
	for rows.Next() {
		var role, content string
		if err := rows.Scan(&role, &content); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		turns = append(turns, api.Turn{Role: api.Role(role), Content: content})
	}
	return turns, rows.Err()
}

// Clear deletes every turn of the session.
func (s *Store) Clear(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversation_turns WHERE session_key = ?`, key); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	return nil
}

// Append inserts turns after the current tail in one transaction.
func (s *Store) Append(ctx context.Context, key string, turns ...api.Turn) error {
	if len(turns) == 0 {
		return nil
	}

	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var tail int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM conversation_turns WHERE session_key = ?`, key,
	).Scan(&tail); err != nil {
		return fmt.Errorf("reading session tail: %w", err)
	}

	for i, t := range turns {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO conversation_turns (session_key, seq, role, content) VALUES (?, ?, ?, ?)`,
			key, tail+int64(i)+1, string(t.Role), t.Content,
		); err != nil {
			return fmt.Errorf("inserting turn: %w", err)
		}
	}
	return tx.Commit()
}

// Lock serializes access to one session within this process.
func (s *Store) Lock(ctx context.Context, key string) (func(), error) {
	return s.locks.Lock(ctx, key)
}

// HealthCheck pings the database.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
