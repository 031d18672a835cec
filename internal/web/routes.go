package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/reid/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", handlers.HealthCheck)

		r.Post("/process", s.handlers.StartProcess)
		r.Get("/jobs", s.handlers.ListJobs)
		r.Get("/jobs/{jobId}", s.handlers.GetJob)
		r.Get("/jobs/{jobId}/events", s.handlers.JobEvents)
		r.Post("/jobs/{jobId}/cancel", s.handlers.CancelJob)

		r.Get("/sessions", s.handlers.ListSessions)
		r.Get("/sessions/{sessionId}", s.handlers.GetSession)
		r.Get("/sessions/{sessionId}/roster", s.handlers.GetRoster)

		r.Get("/identities", s.handlers.ListIdentities)
		r.Get("/identities/{identityId}", s.handlers.GetIdentity)
		r.Get("/identities/{identityId}/similar", s.handlers.SimilarIdentities)

		r.Get("/videos", s.handlers.ListVideos)
	})
}
