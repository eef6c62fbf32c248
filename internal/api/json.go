package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/reverie/internal/apperr"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// writeError maps a classified error to its status. Unclassified errors are
// logged and hidden behind "internal error".
func writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, apperr.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorBody("forbidden"))
	case errors.Is(err, apperr.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody("checksum mismatch"))
	case errors.Is(err, apperr.ErrUpstream), errors.Is(err, apperr.ErrEmbedding):
		slog.Warn(op+" failed upstream", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, errorBody("upstream service unavailable"))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// decodeJSON reads a size-limited JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}
