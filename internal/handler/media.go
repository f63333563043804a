package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sakif/pisure/internal/apperror"
	"github.com/sakif/pisure/internal/service"
	"github.com/sakif/pisure/internal/storage"
)

// MediaHandler serves the files of the local blob store. Only blobs of
// approved assets are served; pending ones are NotFound like every other
// catalog read.
type MediaHandler struct {
	catalog *service.Catalog
	files   http.Handler
	logger  *slog.Logger
}

func NewMediaHandler(catalog *service.Catalog, root string, logger *slog.Logger) *MediaHandler {
	return &MediaHandler{
		catalog: catalog,
		files:   http.StripPrefix(storage.MediaPrefix, http.FileServer(http.Dir(root))),
		logger:  logger,
	}
}

// HandleMedia serves one blob.
//
// HTTP: GET /media/*
func (h *MediaHandler) HandleMedia(w http.ResponseWriter, r *http.Request) {
	path := chi.URLParam(r, "*")

	ok, err := h.catalog.Published(r.Context(), path)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if !ok {
		writeError(w, h.logger, apperror.NotFound("file", path))
		return
	}
	h.files.ServeHTTP(w, r)
}
