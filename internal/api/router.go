package api

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/chigenori053/mathlang/internal/api/handlers"
	mw "github.com/chigenori053/mathlang/internal/api/middleware"
	"github.com/chigenori053/mathlang/internal/buildconfig"
	"github.com/chigenori053/mathlang/internal/config"
	"github.com/chigenori053/mathlang/internal/fuzzy"
	"github.com/chigenori053/mathlang/internal/knowledge"
	"github.com/chigenori053/mathlang/internal/service"
	"github.com/chigenori053/mathlang/internal/store"
)

// App holds the router plus the shared state behind /metrics.
type App struct {
	Router       *chi.Mux
	Sessions     *service.SessionService
	startTime    time.Time
	requestCount atomic.Int64
	errorCount   atomic.Int64
}

// NewApp wires the knowledge registry, session service and HTTP surface.
// db may be nil; sessions are then memory-only and similarity search is
// unavailable.
func NewApp(registry *knowledge.Registry, db *pgxpool.Pool, logger *zap.Logger) *App {
	sessionSvc := service.NewSessionService(registry, logger)
	if config.FuzzyJudge() {
		sessionSvc.SetJudge(fuzzy.NewJudge())
	}
	if db != nil {
		sessionSvc.SetStore(store.NewSessionStore(db))
	}

	sessionHandler := handlers.NewSessionHandler(sessionSvc)

	r := chi.NewRouter()
	app := &App{
		Router:    r,
		Sessions:  sessionSvc,
		startTime: time.Now(),
	}

	metricsCollector := mw.NewMetricsCollector(&app.requestCount, &app.errorCount)

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metricsCollector.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst()))

	r.Get("/health", healthHandler(db))
	r.Get("/ready", readyHandler(registry))
	r.Get("/metrics", app.metricsHandler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", sessionHandler.Evaluate)
			r.Get("/mistakes/similar", sessionHandler.SimilarMistakes)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", sessionHandler.GetByID)
				r.Get("/records", sessionHandler.Records)
				r.Get("/report", sessionHandler.Report)
				r.Get("/graph", sessionHandler.Graph)
				r.Post("/counterfactual", sessionHandler.Counterfactual)
				r.Route("/errors/{node}", func(r chi.Router) {
					r.Get("/why", sessionHandler.WhyError)
					r.Get("/fixes", sessionHandler.FixCandidates)
				})
			})
		})
	})

	return app
}

// NewRouter returns just the chi.Mux.
func NewRouter(registry *knowledge.Registry, db *pgxpool.Pool, logger *zap.Logger) *chi.Mux {
	return NewApp(registry, db, logger).Router
}

// healthHandler reports liveness; with a database attached it also pings it.
func healthHandler(db *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if db != nil {
			if err := db.Ping(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
				return
			}
		}
		payload := buildconfig.VersionInfo()
		payload["status"] = "ok"
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(payload)
	}
}

// readyHandler reports whether the knowledge base loaded.
func readyHandler(registry *knowledge.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if registry == nil || registry.Len() == 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "no rules loaded"})
			return
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "rules": registry.Len()})
	}
}

func (app *App) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)

		response := map[string]any{
			"uptime_seconds": uptime.Seconds(),
			"uptime_human":   uptime.Round(time.Second).String(),
			"request_count":  app.requestCount.Load(),
			"error_count":    app.errorCount.Load(),
			"goroutines":     runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
				"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
				"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
				"num_gc":         memStats.NumGC,
			},
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}
