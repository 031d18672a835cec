// Package storage holds the filesystem blob store for face crops. Database
// persistence lives in the postgres subpackage.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileBlobStore writes face crops under baseDir/{session_id}/{person_id}/.
type FileBlobStore struct {
	baseDir string
}

// NewFileBlobStore creates the blob store rooted at baseDir.
func NewFileBlobStore(baseDir string) *FileBlobStore {
	return &FileBlobStore{baseDir: baseDir}
}

func (s *FileBlobStore) path(sessionID, personID, filename string) (string, error) {
	for _, part := range []string{sessionID, personID, filename} {
		if part == "" || strings.ContainsAny(part, `/\`) || strings.Contains(part, "..") {
			return "", fmt.Errorf("invalid blob path component %q", part)
		}
	}
	return filepath.Join(s.baseDir, sessionID, personID, filename), nil
}

// Save writes the crop, creating the session and person directories as
// needed.
func (s *FileBlobStore) Save(ctx context.Context, sessionID, personID, filename string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.path(sessionID, personID, filename)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating blob directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing blob: %w", err)
	}
	return nil
}

// Load reads a stored crop back.
func (s *FileBlobStore) Load(ctx context.Context, sessionID, personID, filename string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.path(sessionID, personID, filename)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading blob: %w", err)
	}
	return data, nil
}
