package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"reconciler/internal/config"
	"reconciler/internal/middleware"
	"reconciler/internal/observability"
	"reconciler/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Handler struct {
	cfg       config.Config
	service   ReconciliationService
	operators OperatorStore
	audit     AuditStore
	hub       *websocket.Hub
	metrics   *observability.Metrics
	logger    *slog.Logger
}

func New(cfg config.Config, service ReconciliationService, operators OperatorStore, audit AuditStore, hub *websocket.Hub, metrics *observability.Metrics, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		cfg:       cfg,
		service:   service,
		operators: operators,
		audit:     audit,
		hub:       hub,
		metrics:   metrics,
		logger:    logger,
	}
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.Logger)
	router.Use(chimiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   strings.Split(h.cfg.HTTP.AllowedOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if h.metrics != nil {
		router.Use(h.metrics.Middleware)
		if h.cfg.HTTP.MetricsEnabled {
			router.Method(http.MethodGet, "/metrics", h.metrics.Handler())
		}
	}

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	router.Group(func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.Auth.JWTSecret))

		r.Get("/matches", h.ListMatches)
		r.Post("/matches", h.CreateMatch)
		r.With(middleware.RequireAdmin(h.operators)).Post("/matches/auto", h.AutoMatch)

		r.Get("/unmatched/{side}", h.ListUnmatched)
		r.Get("/transactions/{side}/{id}/candidates", h.Candidates)
		r.Post("/ingest/p2p", h.IngestP2P)
		r.Post("/ingest/gate", h.IngestGate)

		r.Get("/stats", h.Stats)

		r.Route("/session", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Post("/source", h.SelectSource)
			r.Post("/target", h.SelectTarget)
			r.Post("/commit", h.Commit)
			r.Post("/cancel", h.CancelSession)
		})

		r.With(middleware.RequireAdmin(h.operators)).Get("/audit", h.ListAuditLogs)
		r.Get("/ws/matches", h.WSMatches)
	})
	return router
}
