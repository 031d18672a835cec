package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/kozaktomas/reid/internal/config"
	"github.com/kozaktomas/reid/internal/identity"
	"github.com/kozaktomas/reid/internal/session"
	"github.com/kozaktomas/reid/internal/video"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// Handlers bundles the dependencies shared by all HTTP handlers.
type Handlers struct {
	cfg       config.Config
	store     session.Store
	catalogue identity.Catalogue
	videos    video.Store
	jobs      *JobManager
	newRunner func() *session.Runner
}

// New creates the handler set. newRunner builds a fresh pipeline per job so
// concurrent jobs never share tracker or registry state. videos may be nil
// when video bookkeeping is disabled.
func New(cfg config.Config, store session.Store, catalogue identity.Catalogue, videos video.Store, newRunner func() *session.Runner) *Handlers {
	return &Handlers{
		cfg:       cfg,
		store:     store,
		catalogue: catalogue,
		videos:    videos,
		jobs:      NewJobManager(),
		newRunner: newRunner,
	}
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
