package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/iammorganparry/clive/apps/learnbot/internal/annotation"
	"github.com/iammorganparry/clive/apps/learnbot/internal/bot"
	"github.com/iammorganparry/clive/apps/learnbot/internal/models"
	"github.com/iammorganparry/clive/apps/learnbot/internal/store"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, models.ErrorResponse{Error: msg})
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes)).Decode(v)
}

// statusFor maps engine errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, bot.ErrInput):
		return http.StatusBadRequest
	case errors.Is(err, bot.ErrReadOnly):
		return http.StatusForbidden
	case errors.Is(err, store.ErrEmptyCorpus):
		return http.StatusNotFound
	case errors.Is(err, store.ErrTransientStorage):
		return http.StatusServiceUnavailable
	case errors.Is(err, annotation.ErrAnnotation):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeEngineError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	writeError(w, status, err.Error())
}
