package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kozaktomas/reid/internal/session"
)

// SessionRepository implements session.Store on PostgreSQL.
type SessionRepository struct {
	pool *Pool
}

// NewSessionRepository creates a new PostgreSQL session store.
func NewSessionRepository(pool *Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

func (r *SessionRepository) CreateSession(ctx context.Context, s *session.Session) error {
	_, err := r.pool.pool.Exec(ctx, `
		INSERT INTO sessions (id, video_hash, mode, status, started_at, frames_processed, failed_at_frame)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, s.ID, s.VideoHash, string(s.Mode), string(s.Status), s.StartedAt, s.FramesProcessed, s.FailedAtFrame)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (r *SessionRepository) UpdateSession(ctx context.Context, s *session.Session) error {
	var completed *time.Time
	if !s.CompletedAt.IsZero() {
		completed = &s.CompletedAt
	}
	tag, err := r.pool.pool.Exec(ctx, `
		UPDATE sessions
		SET status = $2, completed_at = $3, frames_processed = $4, failed_at_frame = $5
		WHERE id = $1
	`, s.ID, string(s.Status), completed, s.FramesProcessed, s.FailedAtFrame)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s not found", s.ID)
	}
	return nil
}

func (r *SessionRepository) GetSession(ctx context.Context, id string) (*session.Session, error) {
	var s session.Session
	var status string
	var completed *time.Time
	var mode string
	err := r.pool.pool.QueryRow(ctx, `
		SELECT id, video_hash, mode, status, started_at, completed_at, frames_processed, failed_at_frame
		FROM sessions
		WHERE id = $1
	`, id).Scan(&s.ID, &s.VideoHash, &mode, &status, &s.StartedAt, &completed, &s.FramesProcessed, &s.FailedAtFrame)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("session %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	s.Mode = session.Mode(mode)
	s.Status = session.Status(status)
	if completed != nil {
		s.CompletedAt = *completed
	}
	return &s, nil
}

func (r *SessionRepository) ListSessions(ctx context.Context) ([]*session.Session, error) {
	rows, err := r.pool.pool.Query(ctx, `
		SELECT id, video_hash, mode, status, started_at, completed_at, frames_processed, failed_at_frame
		FROM sessions
		ORDER BY started_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*session.Session
	for rows.Next() {
		var s session.Session
		var mode, status string
		var completed *time.Time
		if err := rows.Scan(&s.ID, &s.VideoHash, &mode, &status, &s.StartedAt, &completed, &s.FramesProcessed, &s.FailedAtFrame); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		s.Mode = session.Mode(mode)
		s.Status = session.Status(status)
		if completed != nil {
			s.CompletedAt = *completed
		}
		out = append(out, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

func (r *SessionRepository) SaveRoster(ctx context.Context, entries []session.RosterEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := r.pool.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, e := range entries {
		if _, err := tx.Exec(ctx, `
			INSERT INTO roster_entries
				(session_id, person_id, entry_type, session_appearances,
				 new_this_session, first_seen_frame, last_seen_frame)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, e.SessionID, e.PersonID, string(e.Type), e.SessionAppearances,
			e.NewThisSession, e.FirstSeenFrame, e.LastSeenFrame); err != nil {
			return fmt.Errorf("insert roster entry for %s: %w", e.PersonID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit roster: %w", err)
	}
	return nil
}

func (r *SessionRepository) Roster(ctx context.Context, sessionID string) ([]session.RosterEntry, error) {
	rows, err := r.pool.pool.Query(ctx, `
		SELECT session_id, person_id, entry_type, session_appearances,
		       new_this_session, first_seen_frame, last_seen_frame
		FROM roster_entries
		WHERE session_id = $1
		ORDER BY first_seen_frame, person_id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query roster: %w", err)
	}
	defer rows.Close()

	var out []session.RosterEntry
	for rows.Next() {
		var e session.RosterEntry
		var entryType string
		if err := rows.Scan(&e.SessionID, &e.PersonID, &entryType, &e.SessionAppearances,
			&e.NewThisSession, &e.FirstSeenFrame, &e.LastSeenFrame); err != nil {
			return nil, fmt.Errorf("scan roster entry: %w", err)
		}
		e.Type = session.EntryType(entryType)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roster: %w", err)
	}
	return out, nil
}
