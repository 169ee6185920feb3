package app

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"assesscore/internal/app/apiresp"
	"assesscore/internal/app/observability"
	"assesscore/internal/question"
	"assesscore/internal/report"
	"assesscore/internal/scoring"
	"assesscore/internal/submission"
)

func NewRouter(cfg Config, db *sql.DB, logger zerolog.Logger) http.Handler {
	collector := observability.NewCollector(db, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(collector.Middleware)

	catalog := question.NewStore(db, cfg.DBDriver)
	questionHandler := question.NewHandler(catalog)

	submissionSvc := submission.NewService(db, cfg.DBDriver, catalog, submission.ServiceConfig{
		Policy:    scoring.DefaultPolicy(),
		Logger:    logger,
		TxTimeout: cfg.SubmitTxTimeout,
	})
	submissionHandler := submission.NewHandler(submissionSvc).WithRecorder(collector)

	reportHandler := report.NewHandler(report.NewService(db, cfg.DBDriver))

	submitLimiter := NewIPRateLimiter(cfg.SubmitRateLimitPerMin, time.Minute)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			apiresp.WriteRetryable(w, r, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	r.Get("/metrics", collector.MetricsHandler)

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "X-Request-Id"},
			ExposedHeaders: []string{"Location"},
			MaxAge:         300,
		}))

		api.Get("/tests/{testID}", questionHandler.GetTest)
		api.With(RateLimitMiddleware(submitLimiter)).Post("/tests/{testID}/submissions", submissionHandler.Submit)
		api.Get("/submissions/{id}", submissionHandler.Get)
		api.Get("/candidates/{candidateID}/scores", reportHandler.CandidateScores)
	})

	return r
}
