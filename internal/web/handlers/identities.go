package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/reid/internal/identity"
)

type identityResponse struct {
	ID           string   `json:"id"`
	SessionCount int      `json:"session_count"`
	SessionIDs   []string `json:"session_ids"`
	CreatedAt    string   `json:"created_at"`
	LastSeenAt   string   `json:"last_seen_at"`
}

func toIdentityResponse(id *identity.Identity) identityResponse {
	sessions := id.SessionIDs
	if sessions == nil {
		sessions = []string{}
	}
	return identityResponse{
		ID:           id.ID,
		SessionCount: id.SessionCount(),
		SessionIDs:   sessions,
		CreatedAt:    id.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		LastSeenAt:   id.LastSeenAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// ListIdentities handles GET /api/identities.
func (h *Handlers) ListIdentities(w http.ResponseWriter, r *http.Request) {
	identities, err := h.catalogue.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]identityResponse, 0, len(identities))
	for _, id := range identities {
		out = append(out, toIdentityResponse(id))
	}
	respondJSON(w, http.StatusOK, map[string]any{"identities": out, "count": len(out)})
}

// GetIdentity handles GET /api/identities/{identityId}.
func (h *Handlers) GetIdentity(w http.ResponseWriter, r *http.Request) {
	id, err := h.catalogue.Get(r.Context(), chi.URLParam(r, "identityId"))
	if errors.Is(err, identity.ErrNotFound) {
		respondError(w, http.StatusNotFound, "identity not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, toIdentityResponse(id))
}

// defaultSimilarLimit bounds the neighbour list when no limit is given.
const defaultSimilarLimit = 5

type similarResponse struct {
	ID         string  `json:"id"`
	Similarity float64 `json:"similarity"`
}

// SimilarIdentities handles GET /api/identities/{identityId}/similar.
func (h *Handlers) SimilarIdentities(w http.ResponseWriter, r *http.Request) {
	limit := defaultSimilarLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	neighbours, err := h.catalogue.Similar(r.Context(), chi.URLParam(r, "identityId"), limit)
	if errors.Is(err, identity.ErrNotFound) {
		respondError(w, http.StatusNotFound, "identity not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]similarResponse, 0, len(neighbours))
	for _, n := range neighbours {
		out = append(out, similarResponse{ID: n.ID, Similarity: n.Similarity})
	}
	respondJSON(w, http.StatusOK, map[string]any{"identities": out, "count": len(out)})
}
