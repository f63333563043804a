package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sakif/pisure/internal/auth"
	"github.com/sakif/pisure/internal/service"
)

type ProfileHandler struct {
	catalog  *service.Catalog
	profiles *service.ProfileService
	logger   *slog.Logger
}

func NewProfileHandler(catalog *service.Catalog, profiles *service.ProfileService, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{catalog: catalog, profiles: profiles, logger: logger}
}

// HandleGallery returns a creator's profile with their approved assets.
//
// HTTP: GET /api/profiles/{username}
func (h *ProfileHandler) HandleGallery(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := page(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	gallery, err := h.catalog.Gallery(r.Context(), chi.URLParam(r, "username"), limit, offset)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, gallery)
}

// HandleUpdateMe replaces the editable fields of the caller's profile.
//
// HTTP: PUT /api/profiles/me
// REQUEST BODY: {"displayName": "...", "bio": "...", "avatarUrl": "...", "website": "..."}
func (h *ProfileHandler) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var req service.ProfileInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	profile, err := h.profiles.UpdateOwn(r.Context(), auth.SessionFromContext(r.Context()), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}
