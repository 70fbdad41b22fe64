// Package postgres provides a PostgreSQL implementation of session.Store.
// It uses pgx/v5 connection pooling; session locks are backed by advisory
// locks so that several service replicas serialize on the same session.
package postgres

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/knikam3027/jnj/pkg/api"
	"github.com/knikam3027/jnj/pkg/debug"
	"github.com/knikam3027/jnj/pkg/session"
)

// Store is a PostgreSQL-backed session.Store.
//
// A locked session runs Get, Clear and Append on the connection that holds
// its advisory lock, so a lock holder never waits on the pool. With every
// connection pinned, new Lock calls queue in Acquire until a holder unlocks.
type Store struct {
	pool  *pgxpool.Pool
	local *session.KeyedMutex

	mu     sync.Mutex
	pinned map[string]*pinnedConn
}

// querier is the subset of pgx shared by the pool and a single connection.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// pinnedConn is the connection holding a session's advisory lock. mu
// serializes its use; released is set once it went back to the pool.
type pinnedConn struct {
	mu       sync.Mutex
	conn     *pgxpool.Conn
	released bool
}

// Ensure Store implements session.Store at compile time.
var _ session.Store = (*Store)(nil)

// New connects to PostgreSQL. If MigrateOnStart is set, schema migrations
// are applied before the store is returned.
func New(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := cfg.poolConfig()
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool, local: session.NewKeyedMutex(), pinned: make(map[string]*pinnedConn)}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}
	return s, nil
}

// with runs fn on the session's pinned connection when it is locked, and on
// the pool otherwise.
func (s *Store) with(key string, fn func(q querier) error) error {
	s.mu.Lock()
	p := s.pinned[key]
	s.mu.Unlock()

	if p == nil {
		return fn(s.pool)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return fn(s.pool)
	}
	return fn(p.conn)
}

// Get returns the session's turns ordered by sequence number.
func (s *Store) Get(ctx context.Context, key string) ([]api.Turn, error) {
	turns := []api.Turn{}
	err := s.with(key, func(q querier) error {
		rows, err := q.Query(ctx,
			`SELECT role, content FROM conversation_turns WHERE session_key = $1 ORDER BY seq`, key)
		if err != nil {
			return fmt.Errorf("querying turns: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var role, content string
			if err := rows.Scan(&role, &content); err != nil {
				return fmt.Errorf("scanning turn: %w", err)
			}
			turns = append(turns, api.Turn{Role: api.Role(role), Content: content})
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterating turns: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return turns, nil
}

// Clear deletes every turn of the session.
func (s *Store) Clear(ctx context.Context, key string) error {
	return s.with(key, func(q querier) error {
		tag, err := q.Exec(ctx, `DELETE FROM conversation_turns WHERE session_key = $1`, key)
		if err != nil {
			return fmt.Errorf("clearing session: %w", err)
		}
		debug.Log("session", "cleared", "backend", "postgres", "session", key, "rows", tag.RowsAffected())
		return nil
	})
}

// Append inserts turns after the current tail in a single transaction.
// A transaction-scoped advisory lock orders concurrent appends on one key.
func (s *Store) Append(ctx context.Context, key string, turns ...api.Turn) error {
	if len(turns) == 0 {
		return nil
	}

	return s.with(key, func(q querier) error {
		return pgx.BeginFunc(ctx, q, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('append:' || $1))`, key); err != nil {
				return fmt.Errorf("locking session tail: %w", err)
			}

			var tail int64
			if err := tx.QueryRow(ctx,
				`SELECT COALESCE(MAX(seq), 0) FROM conversation_turns WHERE session_key = $1`, key,
			).Scan(&tail); err != nil {
				return fmt.Errorf("reading session tail: %w", err)
			}

			batch := &pgx.Batch{}
			for i, t := range turns {
				batch.Queue(
					`INSERT INTO conversation_turns (session_key, seq, role, content) VALUES ($1, $2, $3, $4)`,
					key, tail+int64(i)+1, string(t.Role), t.Content,
				)
			}
			if err := tx.SendBatch(ctx, batch).Close(); err != nil {
				return fmt.Errorf("inserting turns: %w", err)
			}
			return nil
		})
	})
}

// Lock acquires the in-process FIFO lock for the key, then a session-level
// advisory lock on a pooled connection. The connection stays pinned to the
// session until unlock.
func (s *Store) Lock(ctx context.Context, key string) (func(), error) {
	releaseLocal, err := s.local.Lock(ctx, key)
	if err != nil {
		return nil, err
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		releaseLocal()
		return nil, fmt.Errorf("acquiring connection for session lock: %w", err)
	}
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock(hashtext($1))`, key); err != nil {
		conn.Release()
		releaseLocal()
		return nil, fmt.Errorf("acquiring session lock: %w", err)
	}

	p := &pinnedConn{conn: conn}
	s.mu.Lock()
	s.pinned[key] = p
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.pinned, key)
		s.mu.Unlock()

		p.mu.Lock()
		if _, err := conn.Exec(context.Background(), `SELECT pg_advisory_unlock(hashtext($1))`, key); err != nil {
			// Closing the connection drops any advisory lock it still holds.
			_ = conn.Conn().Close(context.Background())
		}
		conn.Release()
		p.released = true
		p.mu.Unlock()

		releaseLocal()
	}, nil
}

// HealthCheck pings the database.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
