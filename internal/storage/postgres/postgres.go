// Package postgres persists the identity catalogue, sessions, and video
// records in PostgreSQL with pgvector for embedding similarity.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kozaktomas/reid/internal/config"
)

// Pool manages the PostgreSQL connection pool.
type Pool struct {
	pool *pgxpool.Pool
}

// Connect creates a connection pool and verifies it.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*Pool, error) {
	if cfg.URL == "" {
		return nil, errors.New("database URL is required")
	}

	pc, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = int32(cfg.MaxConns)
	}
	pc.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Pool{pool: pool}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// VerifyEmbeddingDim checks the configured embedding dimension against the
// identities.embedding column so a mismatch fails at startup instead of at
// the first insert. pgvector stores the dimension in the column's type
// modifier.
func (p *Pool) VerifyEmbeddingDim(ctx context.Context, dim int) error {
	var schemaDim int
	err := p.pool.QueryRow(ctx, `
		SELECT atttypmod FROM pg_attribute
		WHERE attrelid = 'identities'::regclass AND attname = 'embedding'
	`).Scan(&schemaDim)
	if err != nil {
		return fmt.Errorf("reading embedding column dimension: %w", err)
	}
	if schemaDim != dim {
		return fmt.Errorf("embedding dimension mismatch: schema has vector(%d), configuration wants %d", schemaDim, dim)
	}
	return nil
}

// Initialize connects and runs all pending migrations.
func Initialize(ctx context.Context, cfg config.DatabaseConfig) (*Pool, error) {
	pool, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return pool, nil
}
