// Package registry collects face samples for open tracks and produces one
// reference embedding per track. It is session scoped and append only: samples
// are never replaced once taken.
package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/reid/internal/config"
	"github.com/kozaktomas/reid/internal/embed"
)

// ErrNotAvailable is returned by Reference for tracks that never produced a
// usable face sample. Such tracks stay on the roster as detected only.
var ErrNotAvailable = errors.New("no reference embedding available")

// Sample is one successful face extraction for a track.
type Sample struct {
	FrameIndex int
	Embedding  []float32
}

type trackState struct {
	samples []Sample
	offers  int // crops offered, used for every:N sampling
}

// Registry applies the sampling policy and keeps per-track samples. It is not
// safe for concurrent use; the session pipeline drives it from a single
// goroutine.
type Registry struct {
	provider embed.Provider
	policy   config.SamplingPolicy
	dim      int
	tracks   map[string]*trackState
}

// New creates a registry backed by the given embedding provider. dim of zero
// disables dimension checking.
func New(provider embed.Provider, policy config.SamplingPolicy, dim int) *Registry {
	return &Registry{
		provider: provider,
		policy:   policy,
		dim:      dim,
		tracks:   make(map[string]*trackState),
	}
}

// Register offers a face crop for the track and reports whether a sample was
// taken. Whether the crop is embedded depends on the sampling policy: "first"
// keeps trying every frame until one sample succeeds and then stops,
// "every:N" attempts every Nth offered crop. Unusable faces (embed.ErrNoFace,
// embed.ErrLowQuality) are skipped silently; any other provider error is
// returned to the caller.
func (r *Registry) Register(ctx context.Context, trackID string, frameIndex int, crop []byte) (bool, error) {
	st := r.tracks[trackID]
	if st == nil {
		st = &trackState{}
		r.tracks[trackID] = st
	}
	st.offers++

	if r.policy.Every == 0 {
		// first: done as soon as one sample landed
		if len(st.samples) > 0 {
			return false, nil
		}
	} else {
		if (st.offers-1)%r.policy.Every != 0 {
			return false, nil
		}
	}

	vec, err := r.provider.Embed(ctx, crop)
	if err != nil {
		if errors.Is(err, embed.ErrNoFace) || errors.Is(err, embed.ErrLowQuality) {
			return false, nil
		}
		return false, fmt.Errorf("embedding track %s at frame %d: %w", trackID, frameIndex, err)
	}
	if r.dim > 0 && len(vec) != r.dim {
		return false, fmt.Errorf("embedding track %s: expected %d dimensions, got %d", trackID, r.dim, len(vec))
	}

	st.samples = append(st.samples, Sample{FrameIndex: frameIndex, Embedding: vec})
	return true, nil
}

// Reference returns the reference embedding for the track: the earliest
// successful sample. Returns ErrNotAvailable when no sample exists.
func (r *Registry) Reference(trackID string) ([]float32, error) {
	st := r.tracks[trackID]
	if st == nil || len(st.samples) == 0 {
		return nil, ErrNotAvailable
	}
	return st.samples[0].Embedding, nil
}

// Samples returns all samples collected for the track, in frame order.
func (r *Registry) Samples(trackID string) []Sample {
	st := r.tracks[trackID]
	if st == nil {
		return nil
	}
	return st.samples
}
