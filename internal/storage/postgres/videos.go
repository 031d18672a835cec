package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/kozaktomas/reid/internal/video"
)

// VideoRepository implements video.Store on PostgreSQL. The content hash is
// the primary key, so a re-uploaded video is detected in one statement.
type VideoRepository struct {
	pool *Pool
}

// NewVideoRepository creates a new PostgreSQL video store.
func NewVideoRepository(pool *Pool) *VideoRepository {
	return &VideoRepository{pool: pool}
}

func (r *VideoRepository) Register(ctx context.Context, v *video.OriginalVideo) (bool, error) {
	tag, err := r.pool.pool.Exec(ctx, `
		INSERT INTO original_videos (hash, filename, size_bytes)
		VALUES ($1, $2, $3)
		ON CONFLICT (hash) DO NOTHING
	`, v.Hash, v.Filename, v.SizeBytes)
	if err != nil {
		return false, fmt.Errorf("register video: %w", err)
	}
	return tag.RowsAffected() == 0, nil
}

func (r *VideoRepository) Get(ctx context.Context, hash string) (*video.OriginalVideo, error) {
	var v video.OriginalVideo
	err := r.pool.pool.QueryRow(ctx, `
		SELECT hash, filename, size_bytes, uploaded_at
		FROM original_videos
		WHERE hash = $1
	`, hash).Scan(&v.Hash, &v.Filename, &v.SizeBytes, &v.UploadedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("video %s not found", hash)
	}
	if err != nil {
		return nil, fmt.Errorf("get video: %w", err)
	}
	return &v, nil
}

func (r *VideoRepository) List(ctx context.Context) ([]*video.OriginalVideo, error) {
	rows, err := r.pool.pool.Query(ctx, `
		SELECT hash, filename, size_bytes, uploaded_at
		FROM original_videos
		ORDER BY uploaded_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	defer rows.Close()

	var out []*video.OriginalVideo
	for rows.Next() {
		var v video.OriginalVideo
		if err := rows.Scan(&v.Hash, &v.Filename, &v.SizeBytes, &v.UploadedAt); err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		out = append(out, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate videos: %w", err)
	}
	return out, nil
}
