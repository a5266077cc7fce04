package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/iammorganparry/clive/apps/learnbot/internal/bot"
	"github.com/iammorganparry/clive/apps/learnbot/internal/models"
)

type ChatHandler struct {
	bot    *bot.Bot
	logger *zap.Logger
}

func NewChatHandler(b *bot.Bot, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{bot: b, logger: logger}
}

// Respond handles POST /respond
func (h *ChatHandler) Respond(w http.ResponseWriter, r *http.Request) {
	var req models.RespondRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	resp, err := h.bot.GetResponse(r.Context(), &req)
	if err != nil {
		writeEngineError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewRespondResponse(resp))
}

// Learn handles POST /learn
func (h *ChatHandler) Learn(w http.ResponseWriter, r *http.Request) {
	var req models.LearnRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	s, err := h.bot.Learn(r.Context(), &req)
	if err != nil {
		writeEngineError(w, h.logger, err)
		return
	}
	if s == nil {
		writeJSON(w, http.StatusAccepted, models.LearnResponse{Skipped: true})
		return
	}
	writeJSON(w, http.StatusOK, models.LearnResponse{Statement: s})
}

// Latest handles GET /conversations/{id}/latest
//
// Query parameters: fromBot (default true), recentMinutes (default 0, no
// window), statements (search the corpus instead of the latest index).
func (h *ChatHandler) Latest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := bot.LatestOptions{FromBot: true}
	if v := q.Get("fromBot"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid fromBot")
			return
		}
		opts.FromBot = b
	}
	if v := q.Get("recentMinutes"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid recentMinutes")
			return
		}
		opts.Recent = time.Duration(n) * time.Minute
	}
	opts.UseStatements, _ = strconv.ParseBool(q.Get("statements"))

	s, err := h.bot.GetLatestResponse(r.Context(), chi.URLParam(r, "id"), opts)
	if err != nil {
		writeEngineError(w, h.logger, err)
		return
	}
	if s == nil {
		writeError(w, http.StatusNotFound, "no recent response")
		return
	}
	writeJSON(w, http.StatusOK, s)
}
