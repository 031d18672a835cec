package embed

import (
	"context"
	"errors"
)

// ErrNoFace is returned when the provider finds no usable face in the crop.
// Recoverable: the track proceeds as detected-but-unidentified.
var ErrNoFace = errors.New("no face found")

// ErrLowQuality is returned when a face is found but too poor to embed.
// Recoverable, same handling as ErrNoFace.
var ErrLowQuality = errors.New("face quality too low")

// Provider computes a fixed-length facial feature vector for a cropped face
// image. Implementations wrap the external embedding service; the provider is
// consumed, not implemented, by the identity-resolution core.
type Provider interface {
	Embed(ctx context.Context, crop []byte) ([]float32, error)
}
