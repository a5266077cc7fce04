package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/iammorganparry/clive/apps/learnbot/internal/models"
	"github.com/iammorganparry/clive/apps/learnbot/internal/store"
	"github.com/iammorganparry/clive/apps/learnbot/internal/trainer"
)

type StatementHandler struct {
	store    store.Store
	trainer  *trainer.ListTrainer
	readOnly bool
	logger   *zap.Logger
}

func NewStatementHandler(s store.Store, t *trainer.ListTrainer, readOnly bool, logger *zap.Logger) *StatementHandler {
	return &StatementHandler{store: s, trainer: t, readOnly: readOnly, logger: logger}
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// List handles GET /statements
func (h *StatementHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit <= 0 || limit > store.DefaultPageSize {
		limit = 100
	}
	query := store.Query{
		Text:         q.Get("text"),
		InResponseTo: q.Get("inResponseTo"),
		Conversation: q.Get("conversation"),
		Persona:      q.Get("persona"),
		Tags:         splitList(q.Get("tags")),
		ExcludeTags:  splitList(q.Get("excludeTags")),
		TextContains: q.Get("contains"),
		Sort:         store.ParseSort(q.Get("sort")),
		GroupBy:      q.Get("groupBy"),
		PageSize:     limit,
	}
	if v := q.Get("search"); v != "" {
		query.SearchTextContains = v
	}
	if len(query.Sort) == 0 {
		query.Sort = []store.SortField{{Field: "created_at", Desc: true}}
	}
	if err := query.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	stmts, err := store.Collect(h.store.Filter(r.Context(), query))
	if err != nil {
		writeEngineError(w, h.logger, err)
		return
	}
	if stmts == nil {
		stmts = []*models.Statement{}
	}
	writeJSON(w, http.StatusOK, models.StatementList{Statements: stmts, Total: len(stmts)})
}

// Random handles GET /statements/random
func (h *StatementHandler) Random(w http.ResponseWriter, r *http.Request) {
	s, err := h.store.Random(r.Context())
	if err != nil {
		writeEngineError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// Remove handles DELETE /statements?text=
func (h *StatementHandler) Remove(w http.ResponseWriter, r *http.Request) {
	text := r.URL.Query().Get("text")
	if text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if err := h.store.Remove(r.Context(), text); err != nil {
		writeEngineError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Drop handles POST /admin/drop
func (h *StatementHandler) Drop(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Drop(r.Context()); err != nil {
		writeEngineError(w, h.logger, err)
		return
	}
	h.logger.Warn("corpus dropped", zap.String("request_id", RequestIDFrom(r.Context())))
	w.WriteHeader(http.StatusNoContent)
}

// Train handles POST /train
func (h *StatementHandler) Train(w http.ResponseWriter, r *http.Request) {
	if h.readOnly {
		writeError(w, http.StatusForbidden, "bot is read-only")
		return
	}
	var req models.TrainRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Conversations) == 0 {
		writeError(w, http.StatusBadRequest, "conversations are required")
		return
	}

	resp, err := h.trainer.TrainCorpus(r.Context(), []trainer.Corpus{{
		Categories:    req.Tags,
		Conversations: req.Conversations,
		Path:          "request",
	}})
	if err != nil {
		if errors.Is(err, store.ErrTransientStorage) {
			h.logger.Warn("training hit a write conflict", zap.Error(err))
		}
		writeEngineError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
