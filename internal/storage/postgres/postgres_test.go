//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kozaktomas/reid/internal/config"
	"github.com/kozaktomas/reid/internal/identity"
	"github.com/kozaktomas/reid/internal/session"
	"github.com/kozaktomas/reid/internal/video"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}
	if container == nil {
		t.Skip("Docker not available, skipping integration test")
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	cfg := config.DatabaseConfig{
		URL:      fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port()),
		MaxConns: 5,
	}

	pool, err := Initialize(ctx, cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to initialize pool: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}

	return pool, cleanup
}

func ref512(fill float32, hot int) []float32 {
	v := make([]float32, 512)
	for i := range v {
		v[i] = fill
	}
	if hot >= 0 {
		v[hot] = 1
	}
	return v
}

func TestCatalogueRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewCatalogueRepository(pool)

	// one batch: new person, same face again, orthogonal face. The second
	// proposal must match the identity the first one created in the same
	// transaction.
	res, err := repo.ResolveSession(ctx, "s1", []identity.Proposal{
		{ProposedID: "person_alice", Reference: ref512(0, 0)},
		{ProposedID: "person_other", Reference: ref512(0, 0)},
		{ProposedID: "person_bob", Reference: ref512(0, 1)},
	}, 0.8)
	if err != nil {
		t.Fatalf("ResolveSession failed: %v", err)
	}
	if len(res) != 3 {
		t.Fatalf("expected 3 resolutions, got %d", len(res))
	}
	if res[0].Matched || res[0].IdentityID != "person_alice" {
		t.Errorf("expected new identity person_alice, got %+v", res[0])
	}
	if !res[1].Matched || res[1].IdentityID != "person_alice" {
		t.Errorf("expected match on person_alice, got %+v", res[1])
	}
	if res[1].Similarity < 0.99 {
		t.Errorf("expected similarity near 1, got %f", res[1].Similarity)
	}
	if res[2].Matched {
		t.Errorf("expected new identity, got %+v", res[2])
	}

	count, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 identities, got %d", count)
	}

	// repeated sessions record each one once
	for _, sid := range []string{"s1", "s2"} {
		if _, err := repo.ResolveSession(ctx, sid, []identity.Proposal{
			{ProposedID: "person_dup", Reference: ref512(0, 0)},
		}, 0.8); err != nil {
			t.Fatalf("ResolveSession failed: %v", err)
		}
	}
	id, err := repo.Get(ctx, "person_alice")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if id.SessionCount() != 2 {
		t.Errorf("expected 2 distinct sessions, got %d", id.SessionCount())
	}

	// neighbour browsing reports the other identity with its similarity
	similar, err := repo.Similar(ctx, "person_alice", 5)
	if err != nil {
		t.Fatalf("Similar failed: %v", err)
	}
	if len(similar) != 1 || similar[0].ID != "person_bob" {
		t.Errorf("expected person_bob as the only neighbour, got %+v", similar)
	}
	if _, err := repo.Similar(ctx, "person_ghost", 5); !errors.Is(err, identity.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown identity, got %v", err)
	}
}

func TestVerifyEmbeddingDim(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	if err := pool.VerifyEmbeddingDim(ctx, 512); err != nil {
		t.Errorf("expected schema dimension 512 to verify, got %v", err)
	}
	if err := pool.VerifyEmbeddingDim(ctx, 256); err == nil {
		t.Error("expected mismatched dimension to fail verification")
	}
}

func TestSessionRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewSessionRepository(pool)

	sess := &session.Session{
		ID:            "sess-1",
		VideoHash:     "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef",
		Mode:          session.ModeDetectIdentify,
		Status:        session.StatusProcessing,
		StartedAt:     time.Now(),
		FailedAtFrame: -1,
	}
	if err := repo.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	sess.Status = session.StatusCompleted
	sess.CompletedAt = time.Now()
	sess.FramesProcessed = 42
	if err := repo.UpdateSession(ctx, sess); err != nil {
		t.Fatalf("UpdateSession failed: %v", err)
	}

	got, err := repo.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.Status != session.StatusCompleted || got.FramesProcessed != 42 {
		t.Errorf("unexpected session state: %+v", got)
	}
	if got.Mode != session.ModeDetectIdentify {
		t.Errorf("expected detect_identify mode, got %s", got.Mode)
	}

	entries := []session.RosterEntry{
		{SessionID: "sess-1", PersonID: "person_a", Type: session.TypeIdentified,
			SessionAppearances: 2, FirstSeenFrame: 0, LastSeenFrame: 30},
		{SessionID: "sess-1", PersonID: "person_b", Type: session.TypeDetected,
			SessionAppearances: 1, NewThisSession: true, FirstSeenFrame: 5, LastSeenFrame: 12},
	}
	if err := repo.SaveRoster(ctx, entries); err != nil {
		t.Fatalf("SaveRoster failed: %v", err)
	}

	roster, err := repo.Roster(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Roster failed: %v", err)
	}
	if len(roster) != 2 {
		t.Fatalf("expected 2 roster entries, got %d", len(roster))
	}
	if roster[0].PersonID != "person_a" || roster[1].Type != session.TypeDetected {
		t.Errorf("unexpected roster: %+v", roster)
	}
}

func TestVideoRepositoryDeduplicates(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewVideoRepository(pool)

	v := &video.OriginalVideo{
		Hash:      "feedfacefeedfacefeedfacefeedfacefeedfacefeedfacefeedfacefeedface",
		Filename:  "lobby.mp4",
		SizeBytes: 1 << 20,
	}
	dup, err := repo.Register(ctx, v)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if dup {
		t.Error("first registration must not be a duplicate")
	}

	dup, err = repo.Register(ctx, v)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if !dup {
		t.Error("second registration of the same hash must report duplicate")
	}

	videos, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(videos) != 1 {
		t.Errorf("expected 1 video, got %d", len(videos))
	}
}

func TestFaceImageRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewFaceImageRepository(pool)

	img := &FaceImage{SessionID: "sess-1", PersonID: "person_a", Filename: "first_detection.jpg", FrameIndex: 3}
	if err := repo.Record(ctx, img); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	// same crop recorded twice is a no-op
	if err := repo.Record(ctx, img); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	images, err := repo.ListForPerson(ctx, "sess-1", "person_a")
	if err != nil {
		t.Fatalf("ListForPerson failed: %v", err)
	}
	if len(images) != 1 {
		t.Errorf("expected 1 face image, got %d", len(images))
	}
}
