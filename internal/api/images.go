package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/reverie/internal/apperr"
	"github.com/starford/reverie/internal/storage"
)

// ImageHandler serves generated entry images.
type ImageHandler struct {
	images storage.Provider
}

// NewImageHandler creates a handler reading from images.
func NewImageHandler(images storage.Provider) *ImageHandler {
	return &ImageHandler{images: images}
}

// ServeFile handles GET /images/{filename}.
func (h *ImageHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	data, err := h.images.Read(chi.URLParam(r, "filename"))
	switch {
	case errors.Is(err, apperr.ErrInvalidInput):
		http.Error(w, "invalid filename", http.StatusBadRequest)
		return
	case errors.Is(err, apperr.ErrNotFound):
		http.NotFound(w, r)
		return
	case err != nil:
		slog.Error("read image failed", slog.String("error", err.Error()))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=86400")
	_, _ = w.Write(data)
}
