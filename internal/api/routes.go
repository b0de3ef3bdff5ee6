package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"whisper.bot/config"
	"whisper.bot/internal/reveal"
	"whisper.bot/internal/store"
)

const (
	// escapedRuneBytes is the widest JSON form of one character: a
	// \uXXXX\uXXXX surrogate pair.
	escapedRuneBytes = 12
	envelopeBytes    = 1024
)

// maxBodyBytes fits a max-length text with every character escaped.
func maxBodyBytes(cfg *config.Config) int64 {
	return int64(cfg.Whispers.MaxTextLength)*escapedRuneBytes + envelopeBytes
}

func SetupRouter(s store.Backend, e *reveal.Engine, cfg *config.Config, logger zerolog.Logger) *chi.Mux {
	h := NewHandler(s, e, cfg, logger)

	r := chi.NewRouter()

	// Global middleware
	r.Use(Metrics)
	r.Use(middleware.RealIP)
	r.Use(RequestID)
	r.Use(AccessLog(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(SecurityHeaders)

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://127.0.0.1", "http://localhost"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", requestIDHeader, userIDHeader},
		MaxAge:         86400,
	}))

	// Health
	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(BearerAuth(cfg.Server.APIToken))
		r.Use(LimitBody(maxBodyBytes(cfg)))
		r.Use(JSONOnly)

		revealLimit := passthrough
		if cfg.RateLimit.Enabled {
			r.Use(NewRateLimiter(cfg.RateLimit.RequestsPerMin, time.Minute).Middleware)
			revealLimit = NewRateLimiter(cfg.RateLimit.RevealPerMin, time.Minute).Middleware
		}

		r.Route("/whispers", func(r chi.Router) {
			r.Post("/", h.CreateWhisper)
			r.With(revealLimit).Get("/{id}", h.RevealWhisper)
			r.Delete("/{id}", h.RetractWhisper)
		})

		if cfg.SavedMessages.Enabled {
			r.Route("/users/{id}/saved", func(r chi.Router) {
				r.Get("/", h.GetSaved)
				r.Put("/", h.SaveMessage)
				r.Delete("/", h.ClearMessage)
			})
		}
	})

	return r
}

func passthrough(next http.Handler) http.Handler {
	return next
}
