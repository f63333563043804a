package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sakif/pisure/internal/service"
)

// AssetHandler serves the public catalog: latest, search, detail and
// download. None of these routes needs a session.
type AssetHandler struct {
	catalog    *service.Catalog
	moderation *service.Moderation
	logger     *slog.Logger
}

func NewAssetHandler(catalog *service.Catalog, moderation *service.Moderation, logger *slog.Logger) *AssetHandler {
	return &AssetHandler{catalog: catalog, moderation: moderation, logger: logger}
}

// HandleLatest lists approved assets, newest first.
//
// HTTP: GET /api/assets?limit=20&offset=0
func (h *AssetHandler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := page(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	views, err := h.catalog.Latest(r.Context(), limit, offset)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// HandleSearch matches q against title, description, category and tags.
//
// HTTP: GET /api/assets/search?q=wildlife
func (h *AssetHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := page(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	views, err := h.catalog.Search(r.Context(), r.URL.Query().Get("q"), limit, offset)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// HandleDetail returns one approved asset. Pending assets are 404, the same
// as assets that never existed.
//
// HTTP: GET /api/assets/{id}
func (h *AssetHandler) HandleDetail(w http.ResponseWriter, r *http.Request) {
	view, err := h.catalog.Detail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleDownload counts a download and returns the blob URL.
//
// HTTP: POST /api/assets/{id}/download?size=original
//
// POST because every call changes the counter.
func (h *AssetHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	res, err := h.moderation.Download(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("size"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
