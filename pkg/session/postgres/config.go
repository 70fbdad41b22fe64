package postgres

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool sizing used when the corresponding Config field is zero.
const (
	defaultMaxConns        int32 = 25
	defaultMinConns        int32 = 2
	defaultMaxConnLifetime       = 5 * time.Minute
)

// Config selects the database and sizes the pool behind the session store.
type Config struct {
	// DSN is a libpq URL or keyword/value string.
	DSN string

	// MaxConns caps the pool. A locked session pins one connection and runs
	// its queries on it, so at most MaxConns sessions are in flight; further
	// Lock calls wait for a connection.
	MaxConns int32

	MinConns        int32
	MaxConnLifetime time.Duration

	// MigrateOnStart applies pending goose migrations in New.
	MigrateOnStart bool
}

// poolConfig parses the DSN and applies the pool limits.
func (c Config) poolConfig() (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(c.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}
	pc.MaxConns = positiveOr(c.MaxConns, defaultMaxConns)
	pc.MinConns = positiveOr(c.MinConns, defaultMinConns)
	pc.MaxConnLifetime = positiveOr(c.MaxConnLifetime, defaultMaxConnLifetime)
	return pc, nil
}

func positiveOr[T int32 | time.Duration](v, fallback T) T {
	if v > 0 {
		return v
	}
	return fallback
}
