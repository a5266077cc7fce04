package api

import (
	"context"
	"net/http"

	"github.com/iammorganparry/clive/apps/learnbot/internal/bot"
	"github.com/iammorganparry/clive/apps/learnbot/internal/models"
	"github.com/iammorganparry/clive/apps/learnbot/internal/store"
)

// HealthChecker is implemented by external services the bot depends on.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type HealthHandler struct {
	store      store.Store
	bot        *bot.Bot
	annotation HealthChecker
}

func NewHealthHandler(s store.Store, b *bot.Bot, annotation HealthChecker) *HealthHandler {
	return &HealthHandler{store: s, bot: b, annotation: annotation}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := models.HealthResponse{
		Status: "ok",
	}

	// Check the annotation service
	if h.annotation == nil {
		resp.Annotation = models.ServiceCheck{Status: "ok", Message: "not checked"}
	} else if err := h.annotation.HealthCheck(r.Context()); err != nil {
		resp.Annotation = models.ServiceCheck{Status: "error", Message: err.Error()}
		resp.Status = "degraded"
	} else {
		resp.Annotation = models.ServiceCheck{Status: "ok"}
	}

	// Check DB
	count, err := h.store.Count(r.Context())
	if err != nil {
		resp.DB = models.ServiceCheck{Status: "error", Message: err.Error()}
		resp.Status = "degraded"
	} else {
		resp.DB = models.ServiceCheck{Status: "ok"}
		resp.StatementCount = count
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// Stats handles GET /stats
func (h *HealthHandler) Stats(w http.ResponseWriter, r *http.Request) {
	count, err := h.store.Count(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, models.StatsResponse{
		Statements: count,
		BotName:    h.bot.Name(),
		ReadOnly:   h.bot.ReadOnly(),
		Adapters:   h.bot.Adapters(),
	})
}
