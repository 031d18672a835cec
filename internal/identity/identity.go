// Package identity matches reference embeddings against the persisted
// identity catalogue and counts the distinct sessions each identity appeared
// in.
package identity

import (
	"context"
	"errors"
	"time"
)

// ErrContention signals that a concurrent find-or-create touched the same
// region of the catalogue. The matcher retries it; it never reaches callers.
var ErrContention = errors.New("catalogue contention")

// ErrNotFound is returned when an identity ID is not in the catalogue.
var ErrNotFound = errors.New("identity not found")

// Identity is one catalogued person with its reference embedding and the set
// of sessions it was confirmed in.
type Identity struct {
	ID         string
	Reference  []float32
	CreatedAt  time.Time
	LastSeenAt time.Time
	SessionIDs []string // distinct, in first-seen order
}

// SessionCount returns the number of distinct sessions the identity appeared
// in.
func (i *Identity) SessionCount() int {
	return len(i.SessionIDs)
}

// Proposal asks the catalogue to resolve one reference embedding, creating a
// new identity under ProposedID when nothing matches.
type Proposal struct {
	ProposedID string
	Reference  []float32
}

// Resolution is the outcome of resolving one reference embedding.
type Resolution struct {
	IdentityID string
	Matched    bool    // false when a new identity was created
	Similarity float64 // similarity to the matched identity, 0 for new ones
}

// SimilarIdentity is one neighbour from a catalogue similarity lookup.
type SimilarIdentity struct {
	ID         string
	Similarity float64
}

// Catalogue is the persisted identity store. ResolveSession is the single
// write path: it resolves every proposal of a finished session in order and
// records the session against each resolved identity, all as one atomic unit.
// Either every write commits or none does, so an aborted session never leaves
// partial identity state behind. A proposal may match an identity created by
// an earlier proposal of the same call, and two concurrent calls with the
// same face must not create two identities.
type Catalogue interface {
	ResolveSession(ctx context.Context, sessionID string, proposals []Proposal, threshold float64) ([]Resolution, error)
	Similar(ctx context.Context, identityID string, limit int) ([]SimilarIdentity, error)
	Get(ctx context.Context, identityID string) (*Identity, error)
	List(ctx context.Context) ([]*Identity, error)
	Count(ctx context.Context) (int, error)
}
