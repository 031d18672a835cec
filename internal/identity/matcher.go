package identity

import (
	"context"
	"errors"
	"fmt"
)

// contentionRetries bounds how often a contended session commit is retried
// before the session fails.
const contentionRetries = 5

// Matcher resolves reference embeddings against the catalogue with the
// configured similarity threshold.
type Matcher struct {
	catalogue Catalogue
	threshold float64
}

// NewMatcher creates a matcher. The threshold comes from configuration and is
// validated there.
func NewMatcher(catalogue Catalogue, threshold float64) *Matcher {
	return &Matcher{catalogue: catalogue, threshold: threshold}
}

// ResolveSession commits the proposals of a finished session as one atomic
// batch. Catalogue contention rolls the whole batch back and is retried
// internally; it never reaches callers.
func (m *Matcher) ResolveSession(ctx context.Context, sessionID string, proposals []Proposal) ([]Resolution, error) {
	var lastErr error
	for attempt := 0; attempt < contentionRetries; attempt++ {
		res, err := m.catalogue.ResolveSession(ctx, sessionID, proposals, m.threshold)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, ErrContention) {
			return nil, fmt.Errorf("resolving identities: %w", err)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("catalogue contention persisted after %d attempts: %w", contentionRetries, lastErr)
}

// Threshold returns the configured similarity threshold.
func (m *Matcher) Threshold() float64 {
	return m.threshold
}
