package postgres

import (
	"context"
	"fmt"
	"time"
)

// FaceImage is the metadata record for one stored face crop. The bytes live
// in the blob store under {session_id}/{person_id}/{filename}.
type FaceImage struct {
	SessionID  string
	PersonID   string
	Filename   string
	FrameIndex int
	CreatedAt  time.Time
}

// FaceImageRepository records which crops were persisted for which person.
type FaceImageRepository struct {
	pool *Pool
}

// NewFaceImageRepository creates a new face image metadata store.
func NewFaceImageRepository(pool *Pool) *FaceImageRepository {
	return &FaceImageRepository{pool: pool}
}

func (r *FaceImageRepository) Record(ctx context.Context, img *FaceImage) error {
	_, err := r.pool.pool.Exec(ctx, `
		INSERT INTO face_images (session_id, person_id, filename, frame_index)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id, person_id, filename) DO NOTHING
	`, img.SessionID, img.PersonID, img.Filename, img.FrameIndex)
	if err != nil {
		return fmt.Errorf("record face image: %w", err)
	}
	return nil
}

func (r *FaceImageRepository) ListForPerson(ctx context.Context, sessionID, personID string) ([]FaceImage, error) {
	rows, err := r.pool.pool.Query(ctx, `
		SELECT session_id, person_id, filename, frame_index, created_at
		FROM face_images
		WHERE session_id = $1 AND person_id = $2
		ORDER BY frame_index
	`, sessionID, personID)
	if err != nil {
		return nil, fmt.Errorf("query face images: %w", err)
	}
	defer rows.Close()

	var out []FaceImage
	for rows.Next() {
		var img FaceImage
		if err := rows.Scan(&img.SessionID, &img.PersonID, &img.Filename, &img.FrameIndex, &img.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan face image: %w", err)
		}
		out = append(out, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate face images: %w", err)
	}
	return out, nil
}
