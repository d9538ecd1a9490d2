package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

var defaultOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// SetupRoutes configures all API routes. Everything under /api requires an
// organization.
func SetupRoutes(h *Handlers, health *HealthChecker, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	if len(allowedOrigins) == 0 {
		allowedOrigins = defaultOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Organization-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if health != nil {
		r.Get("/health", health.HandleHealth)
		r.Get("/health/live", health.HandleLiveness)
		r.Get("/health/ready", health.HandleReadiness)
	} else {
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(RequireOrg)

		r.Post("/admission", h.Admit)

		r.Route("/campaigns", func(r chi.Router) {
			r.Get("/", h.ListCampaigns)
			r.Post("/", h.CreateCampaign)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetCampaign)
				r.Get("/sequence", h.GetSequence)
				r.Put("/sequence", h.PutSequence)
				r.Post("/launch", h.LaunchCampaign)
				r.Post("/pause", h.PauseCampaign)
				r.Post("/resume", h.ResumeCampaign)
				r.Post("/stop", h.StopCampaign)
				r.Get("/capacity", h.Capacity)
				r.Get("/snapshot", h.LatestSnapshot)
				r.Get("/snapshots", h.SnapshotHistory)

				r.Post("/leads", h.EnrollLead)
				r.Route("/leads/{leadID}", func(r chi.Router) {
					r.Delete("/", h.RemoveLead)
					r.Get("/progress", h.LeadProgress)
					r.Post("/retry", h.RetryStep)
					r.Post("/activities", h.RecordActivity)
				})
			})
		})

		r.Route("/onboarding/sessions", func(r chi.Router) {
			r.Post("/", h.StartOnboarding)
			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", h.GetOnboarding)
				r.Post("/answer", h.AnswerOnboarding)
				r.Post("/back", h.BackOnboarding)
				r.Post("/skip", h.SkipOnboarding)
				r.Post("/edit", h.EditOnboarding)
				r.Post("/finish", h.FinishOnboarding)
			})
		})
	})

	return r
}
