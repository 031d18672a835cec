package cmd

import (
	"context"
	"fmt"

	"github.com/kozaktomas/reid/internal/config"
	"github.com/kozaktomas/reid/internal/identity"
	"github.com/kozaktomas/reid/internal/session"
	"github.com/kozaktomas/reid/internal/storage/memory"
	"github.com/kozaktomas/reid/internal/storage/postgres"
	"github.com/kozaktomas/reid/internal/video"
)

// backend bundles the persistence layer selected by DATABASE_URL: PostgreSQL
// with pgvector when set, process-local memory otherwise.
type backend struct {
	cfg       *config.Config
	store     session.Store
	catalogue identity.Catalogue
	videos    video.Store
	faces     *postgres.FaceImageRepository
	pool      *postgres.Pool
}

func openBackend(ctx context.Context) (*backend, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	b := &backend{cfg: cfg}
	if cfg.Database.URL == "" {
		fmt.Println("DATABASE_URL not set, using in-memory stores (results are not persisted)")
		b.store = memory.NewSessionStore()
		b.catalogue = identity.NewMemoryCatalogue()
		b.videos = memory.NewVideoStore()
		return b, nil
	}

	fmt.Printf("Connecting to PostgreSQL database...\n")
	pool, err := postgres.Initialize(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	if err := pool.VerifyEmbeddingDim(ctx, cfg.Embedding.Dim); err != nil {
		pool.Close()
		return nil, err
	}
	b.pool = pool
	b.store = postgres.NewSessionRepository(pool)
	b.catalogue = postgres.NewCatalogueRepository(pool)
	b.videos = postgres.NewVideoRepository(pool)
	b.faces = postgres.NewFaceImageRepository(pool)
	return b, nil
}

// recordFaces returns an OnFaceSaved callback persisting crop metadata, or
// nil when no metadata store is available.
func (b *backend) recordFaces(ctx context.Context) func(sessionID, personID, filename string, frameIndex int) {
	if b.faces == nil {
		return nil
	}
	return func(sessionID, personID, filename string, frameIndex int) {
		err := b.faces.Record(ctx, &postgres.FaceImage{
			SessionID:  sessionID,
			PersonID:   personID,
			Filename:   filename,
			FrameIndex: frameIndex,
		})
		if err != nil {
			fmt.Printf("  warning: recording face metadata for %s: %v\n", personID, err)
		}
	}
}

func (b *backend) Close() {
	if b.pool != nil {
		b.pool.Close()
	}
}
