// Package video deals with source video bookkeeping: content hashing for
// duplicate detection and the record of every video ever submitted.
package video

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"
)

// ContentHash computes the SHA-256 of the video content as a 64 character hex
// string. Byte-identical files always hash the same, independent of filename
// or upload time.
func ContentHash(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("hashing video content: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ContentHashFile hashes a video file on disk.
func ContentHashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening video: %w", err)
	}
	defer f.Close()
	return ContentHash(f)
}

// OriginalVideo is one submitted video, keyed by content hash.
type OriginalVideo struct {
	Hash       string
	Filename   string
	SizeBytes  int64
	UploadedAt time.Time
}

// Store records submitted videos. Register reports whether the hash was seen
// before; a duplicate must not start a new processing session by default.
type Store interface {
	Register(ctx context.Context, v *OriginalVideo) (duplicate bool, err error)
	Get(ctx context.Context, hash string) (*OriginalVideo, error)
	List(ctx context.Context) ([]*OriginalVideo, error)
}
