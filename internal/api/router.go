package api

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/iammorganparry/clive/apps/learnbot/internal/bot"
	"github.com/iammorganparry/clive/apps/learnbot/internal/metrics"
	"github.com/iammorganparry/clive/apps/learnbot/internal/store"
	"github.com/iammorganparry/clive/apps/learnbot/internal/trainer"
)

// Deps are the components the routes are served from. Annotation and
// Metrics may be nil.
type Deps struct {
	Bot        *bot.Bot
	Store      store.Store
	Trainer    *trainer.ListTrainer
	Annotation HealthChecker
	Metrics    *metrics.Metrics
	Logger     *zap.Logger

	APIKey    string
	RateLimit float64
	RateBurst int
	// TrustProxy keys rate limiting on X-Forwarded-For.
	TrustProxy bool
}

// NewRouter creates the Chi router with all routes and middleware.
func NewRouter(d Deps) *chi.Mux {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := chi.NewRouter()

	// Global middleware (runs on ALL routes including /health)
	r.Use(CORS)
	r.Use(RequestID)
	r.Use(Logger(logger, d.Metrics))
	r.Use(Recovery(logger))

	healthH := NewHealthHandler(d.Store, d.Bot, d.Annotation)
	chatH := NewChatHandler(d.Bot, logger)
	statementH := NewStatementHandler(d.Store, d.Trainer, d.Bot.ReadOnly(), logger)

	// Unauthenticated routes
	r.Get("/health", healthH.Health)
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics.Handler())
	}

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(d.APIKey))
		r.Use(RateLimit(d.RateLimit, d.RateBurst, d.TrustProxy))

		r.Post("/respond", chatH.Respond)
		r.Post("/learn", chatH.Learn)
		r.Get("/conversations/{id}/latest", chatH.Latest)
		r.Get("/stats", healthH.Stats)

		r.Route("/statements", func(r chi.Router) {
			r.Get("/", statementH.List)
			r.Delete("/", statementH.Remove)
			r.Get("/random", statementH.Random)
		})
		r.Post("/train", statementH.Train)
		r.Post("/admin/drop", statementH.Drop)
	})

	return r
}
