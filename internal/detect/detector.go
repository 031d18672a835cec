package detect

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kozaktomas/reid/internal/tracker"
)

// Frame is one decoded video frame. Frames are produced by an external
// decoding step; the pipeline only requires that they arrive in index order.
type Frame struct {
	Index int
	Image []byte // encoded JPEG or PNG
}

// FrameSource yields frames in strictly increasing index order. Next returns
// io.EOF after the last frame.
type FrameSource interface {
	Next(ctx context.Context) (Frame, error)
}

// Detector finds people in a frame. May return an empty list; an error is
// fatal to the session (DetectionFailure).
type Detector interface {
	Detect(ctx context.Context, frame Frame) ([]tracker.Detection, error)
}

// DirSource reads pre-extracted frames from a directory, sorted by filename.
// Frame index is the position in the sorted listing.
type DirSource struct {
	files []string
	pos   int
}

// NewDirSource lists the jpg/jpeg/png files of dir in lexical order.
func NewDirSource(dir string) (*DirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading frame directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	if len(files) == 0 {
		return nil, fmt.Errorf("no frames found in %s", dir)
	}
	return &DirSource{files: files}, nil
}

// Len returns the total number of frames.
func (s *DirSource) Len() int {
	return len(s.files)
}

func (s *DirSource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if s.pos >= len(s.files) {
		return Frame{}, io.EOF
	}
	data, err := os.ReadFile(s.files[s.pos])
	if err != nil {
		return Frame{}, fmt.Errorf("reading frame %d: %w", s.pos, err)
	}
	f := Frame{Index: s.pos, Image: data}
	s.pos++
	return f, nil
}
