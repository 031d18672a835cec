package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/reid/internal/identity"
)

// catalogueLockKey serializes concurrent find-or-create across sessions. The
// lock is transaction scoped and released automatically on commit or rollback.
const catalogueLockKey = 730144

// CatalogueRepository implements identity.Catalogue on PostgreSQL.
type CatalogueRepository struct {
	pool *Pool
}

// NewCatalogueRepository creates a new PostgreSQL identity catalogue.
func NewCatalogueRepository(pool *Pool) *CatalogueRepository {
	return &CatalogueRepository{pool: pool}
}

// ResolveSession resolves every proposal of a finished session in one
// transaction under the catalogue advisory lock: each reference either
// matches the nearest identity by cosine distance or inserts a new identity
// under its proposed ID, and the session is recorded against the resolved
// identity. The transaction commits as a whole, so a failed or cancelled
// session leaves no identity rows behind. Nearest-neighbor ties break to the
// earliest created identity, then the lowest ID; inserts within the batch
// are visible to later proposals of the same batch.
func (r *CatalogueRepository) ResolveSession(ctx context.Context, sessionID string, proposals []identity.Proposal, threshold float64) ([]identity.Resolution, error) {
	tx, err := r.pool.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", catalogueLockKey); err != nil {
		return nil, mapContention(fmt.Errorf("acquire catalogue lock: %w", err))
	}

	out := make([]identity.Resolution, 0, len(proposals))
	for _, p := range proposals {
		res, err := resolveOne(ctx, tx, p, threshold)
		if err != nil {
			return nil, mapContention(err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO identity_sessions (identity_id, session_id)
			VALUES ($1, $2)
			ON CONFLICT (identity_id, session_id) DO NOTHING
		`, res.IdentityID, sessionID); err != nil {
			return nil, mapContention(fmt.Errorf("record session: %w", err))
		}
		out = append(out, res)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, mapContention(fmt.Errorf("commit: %w", err))
	}
	return out, nil
}

func resolveOne(ctx context.Context, tx pgx.Tx, p identity.Proposal, threshold float64) (identity.Resolution, error) {
	vec := pgvector.NewVector(p.Reference)

	var matchedID string
	var distance float64
	err := tx.QueryRow(ctx, `
		SELECT id, embedding <=> $1
		FROM identities
		ORDER BY embedding <=> $1, created_at, id
		LIMIT 1
	`, vec).Scan(&matchedID, &distance)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return identity.Resolution{}, fmt.Errorf("nearest identity: %w", err)
	}

	if err == nil {
		similarity := 1 - distance
		if similarity >= threshold {
			if _, err := tx.Exec(ctx, "UPDATE identities SET last_seen_at = NOW() WHERE id = $1", matchedID); err != nil {
				return identity.Resolution{}, fmt.Errorf("touch identity: %w", err)
			}
			return identity.Resolution{IdentityID: matchedID, Matched: true, Similarity: similarity}, nil
		}
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO identities (id, embedding) VALUES ($1, $2)
	`, p.ProposedID, vec); err != nil {
		return identity.Resolution{}, fmt.Errorf("insert identity: %w", err)
	}
	return identity.Resolution{IdentityID: p.ProposedID, Matched: false}, nil
}

// Similar returns up to limit identities closest to the given one by cosine
// distance, most similar first.
func (r *CatalogueRepository) Similar(ctx context.Context, identityID string, limit int) ([]identity.SimilarIdentity, error) {
	var exists bool
	if err := r.pool.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM identities WHERE id = $1)", identityID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check identity: %w", err)
	}
	if !exists {
		return nil, identity.ErrNotFound
	}
	if limit <= 0 {
		return nil, nil
	}

	rows, err := r.pool.pool.Query(ctx, `
		SELECT o.id, 1 - (o.embedding <=> i.embedding)
		FROM identities i
		JOIN identities o ON o.id != i.id
		WHERE i.id = $1
		ORDER BY o.embedding <=> i.embedding, o.created_at, o.id
		LIMIT $2
	`, identityID, limit)
	if err != nil {
		return nil, fmt.Errorf("query similar identities: %w", err)
	}
	defer rows.Close()

	var out []identity.SimilarIdentity
	for rows.Next() {
		var s identity.SimilarIdentity
		if err := rows.Scan(&s.ID, &s.Similarity); err != nil {
			return nil, fmt.Errorf("scan similar identity: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate similar identities: %w", err)
	}
	return out, nil
}

func (r *CatalogueRepository) Get(ctx context.Context, identityID string) (*identity.Identity, error) {
	var id identity.Identity
	var vec pgvector.Vector
	err := r.pool.pool.QueryRow(ctx, `
		SELECT id, embedding, created_at, last_seen_at
		FROM identities
		WHERE id = $1
	`, identityID).Scan(&id.ID, &vec, &id.CreatedAt, &id.LastSeenAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, identity.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get identity: %w", err)
	}
	id.Reference = vec.Slice()

	rows, err := r.pool.pool.Query(ctx, `
		SELECT session_id FROM identity_sessions
		WHERE identity_id = $1
		ORDER BY recorded_at, session_id
	`, identityID)
	if err != nil {
		return nil, fmt.Errorf("query identity sessions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		id.SessionIDs = append(id.SessionIDs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identity sessions: %w", err)
	}
	return &id, nil
}

func (r *CatalogueRepository) List(ctx context.Context) ([]*identity.Identity, error) {
	rows, err := r.pool.pool.Query(ctx, `
		SELECT i.id, i.embedding, i.created_at, i.last_seen_at,
		       COALESCE(array_agg(s.session_id ORDER BY s.recorded_at, s.session_id)
		                FILTER (WHERE s.session_id IS NOT NULL), '{}')
		FROM identities i
		LEFT JOIN identity_sessions s ON s.identity_id = i.id
		GROUP BY i.id
		ORDER BY i.created_at, i.id
	`)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	var out []*identity.Identity
	for rows.Next() {
		var id identity.Identity
		var vec pgvector.Vector
		if err := rows.Scan(&id.ID, &vec, &id.CreatedAt, &id.LastSeenAt, &id.SessionIDs); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		id.Reference = vec.Slice()
		out = append(out, &id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return out, nil
}

func (r *CatalogueRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.pool.QueryRow(ctx, "SELECT COUNT(*) FROM identities").Scan(&n); err != nil {
		return 0, fmt.Errorf("count identities: %w", err)
	}
	return n, nil
}

// mapContention converts serialization and deadlock failures to
// identity.ErrContention so the matcher retries them.
func mapContention(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return fmt.Errorf("%w: %s", identity.ErrContention, pgErr.Message)
		}
	}
	return err
}
