package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/reid/internal/session"
)

// ListSessions handles GET /api/sessions.
func (h *Handlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.ListSessions(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, toSessionResponse(s))
	}
	respondJSON(w, http.StatusOK, map[string]any{"sessions": out, "count": len(out)})
}

// GetSession handles GET /api/sessions/{sessionId}.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.store.GetSession(r.Context(), chi.URLParam(r, "sessionId"))
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, toSessionResponse(s))
}

// GetRoster handles GET /api/sessions/{sessionId}/roster.
func (h *Handlers) GetRoster(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	if _, err := h.store.GetSession(r.Context(), sessionID); err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	roster, err := h.store.Roster(r.Context(), sessionID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	entries := make([]rosterEntryResponse, 0, len(roster))
	summary := session.Summary{SessionID: sessionID, TotalUniquePersons: len(roster)}
	for _, e := range roster {
		if e.Type == session.TypeIdentified {
			summary.IdentifiedCount++
		} else {
			summary.DetectedCount++
		}
		entries = append(entries, rosterEntryResponse{
			PersonID:           e.PersonID,
			Type:               string(e.Type),
			SessionAppearances: e.SessionAppearances,
			NewThisSession:     e.NewThisSession,
			FirstSeenFrame:     e.FirstSeenFrame,
			LastSeenFrame:      e.LastSeenFrame,
		})
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"roster":     entries,
		"summary": map[string]int{
			"total_unique_persons": summary.TotalUniquePersons,
			"detected_count":       summary.DetectedCount,
			"identified_count":     summary.IdentifiedCount,
		},
	})
}

// ListVideos handles GET /api/videos.
func (h *Handlers) ListVideos(w http.ResponseWriter, r *http.Request) {
	if h.videos == nil {
		respondJSON(w, http.StatusOK, map[string]any{"videos": []any{}, "count": 0})
		return
	}
	videos, err := h.videos.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"videos": videos, "count": len(videos)})
}

type sessionResponse struct {
	ID              string `json:"id"`
	VideoHash       string `json:"video_hash,omitempty"`
	Mode            string `json:"mode"`
	Status          string `json:"status"`
	StartedAt       string `json:"started_at"`
	CompletedAt     string `json:"completed_at,omitempty"`
	FramesProcessed int    `json:"frames_processed"`
	FailedAtFrame   *int   `json:"failed_at_frame,omitempty"`
}

type rosterEntryResponse struct {
	PersonID           string `json:"person_id"`
	Type               string `json:"type"`
	SessionAppearances int    `json:"session_appearances"`
	NewThisSession     bool   `json:"new_this_session"`
	FirstSeenFrame     int    `json:"first_seen_frame"`
	LastSeenFrame      int    `json:"last_seen_frame"`
}

func toSessionResponse(s *session.Session) sessionResponse {
	resp := sessionResponse{
		ID:              s.ID,
		VideoHash:       s.VideoHash,
		Mode:            string(s.Mode),
		Status:          string(s.Status),
		StartedAt:       s.StartedAt.Format("2006-01-02T15:04:05Z07:00"),
		FramesProcessed: s.FramesProcessed,
	}
	if !s.CompletedAt.IsZero() {
		resp.CompletedAt = s.CompletedAt.Format("2006-01-02T15:04:05Z07:00")
	}
	if s.Status == session.StatusFailed {
		f := s.FailedAtFrame
		resp.FailedAtFrame = &f
	}
	return resp
}
