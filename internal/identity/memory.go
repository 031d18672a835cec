package identity

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/coder/hnsw"
)

// hnswMaxNeighbors is the M parameter of the similarity graph.
const hnswMaxNeighbors = 16

// MemoryCatalogue is an in-memory Catalogue. Used by tests and by single-run
// processing without a database. Resolution always scans every identity
// exactly; the HNSW graph only serves the Similar browsing lookup, where an
// approximate neighbourhood is acceptable.
type MemoryCatalogue struct {
	mu         sync.Mutex
	identities []*Identity // creation order
	byID       map[string]*Identity
	graph      *hnsw.Graph[string]
	now        func() time.Time
}

// NewMemoryCatalogue creates an empty in-memory catalogue.
func NewMemoryCatalogue() *MemoryCatalogue {
	g := hnsw.NewGraph[string]()
	g.M = hnswMaxNeighbors
	g.Ml = 1.0 / float64(hnswMaxNeighbors)
	g.Distance = hnsw.CosineDistance

	return &MemoryCatalogue{
		byID:  make(map[string]*Identity),
		graph: g,
		now:   time.Now,
	}
}

// ResolveSession resolves every proposal in order and records the session for
// each resolved identity. The whole batch runs under one lock with a single
// cancellation check up front; once the first proposal is applied the batch
// always finishes, so the catalogue never holds a partial session.
func (c *MemoryCatalogue) ResolveSession(ctx context.Context, sessionID string, proposals []Proposal, threshold float64) ([]Resolution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	out := make([]Resolution, 0, len(proposals))
	for _, p := range proposals {
		best, sim := c.bestMatch(p.Reference)
		if best != nil && sim >= threshold {
			best.LastSeenAt = now
			c.recordLocked(best, sessionID)
			out = append(out, Resolution{IdentityID: best.ID, Matched: true, Similarity: sim})
			continue
		}

		id := &Identity{
			ID:         p.ProposedID,
			Reference:  p.Reference,
			CreatedAt:  now,
			LastSeenAt: now,
		}
		c.identities = append(c.identities, id)
		c.byID[id.ID] = id
		c.graph.Add(hnsw.MakeNode(id.ID, p.Reference))
		c.recordLocked(id, sessionID)
		out = append(out, Resolution{IdentityID: id.ID, Matched: false})
	}
	return out, nil
}

// bestMatch returns the most similar identity and its similarity. Every
// identity is compared; ties go to the earliest created one because the scan
// runs in creation order and only a strictly better similarity displaces the
// current best.
func (c *MemoryCatalogue) bestMatch(ref []float32) (*Identity, float64) {
	var best *Identity
	bestSim := -2.0
	for _, id := range c.identities {
		if sim := CosineSimilarity(ref, id.Reference); sim > bestSim {
			best = id
			bestSim = sim
		}
	}
	return best, bestSim
}

// recordLocked adds the session to the identity's session set. Caller holds
// the lock.
func (c *MemoryCatalogue) recordLocked(id *Identity, sessionID string) {
	for _, s := range id.SessionIDs {
		if s == sessionID {
			return
		}
	}
	id.SessionIDs = append(id.SessionIDs, sessionID)
}

// Similar returns up to limit catalogued identities closest to the given one,
// most similar first. The shortlist comes from the HNSW graph, so distant
// neighbours may be approximate; reported similarities are exact.
func (c *MemoryCatalogue) Similar(ctx context.Context, identityID string, limit int) ([]SimilarIdentity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	id, ok := c.byID[identityID]
	if !ok {
		return nil, ErrNotFound
	}
	if limit <= 0 {
		return nil, nil
	}

	neighbors := c.graph.Search(id.Reference, limit+1)
	out := make([]SimilarIdentity, 0, len(neighbors))
	for _, n := range neighbors {
		if n.Key == identityID {
			continue
		}
		other, ok := c.byID[n.Key]
		if !ok {
			continue
		}
		out = append(out, SimilarIdentity{
			ID:         other.ID,
			Similarity: CosineSimilarity(id.Reference, other.Reference),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (c *MemoryCatalogue) Get(ctx context.Context, identityID string) (*Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	id, ok := c.byID[identityID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *id
	cp.SessionIDs = append([]string(nil), id.SessionIDs...)
	return &cp, nil
}

func (c *MemoryCatalogue) List(ctx context.Context) ([]*Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*Identity, 0, len(c.identities))
	for _, id := range c.identities {
		cp := *id
		cp.SessionIDs = append([]string(nil), id.SessionIDs...)
		out = append(out, &cp)
	}
	return out, nil
}

func (c *MemoryCatalogue) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.identities), nil
}
