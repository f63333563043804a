package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sakif/pisure/internal/auth"
	"github.com/sakif/pisure/internal/service"
)

// AdminHandler serves the moderation queue. The routes sit behind
// auth.RequireCapability(Moderate), and the service checks the policy again
// on every call.
type AdminHandler struct {
	moderation *service.Moderation
	logger     *slog.Logger
}

func NewAdminHandler(moderation *service.Moderation, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{moderation: moderation, logger: logger}
}

// HandlePending lists assets waiting for a decision, oldest first.
//
// HTTP: GET /api/admin/assets/pending
func (h *AdminHandler) HandlePending(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := page(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	assets, err := h.moderation.Pending(r.Context(), auth.SessionFromContext(r.Context()), limit, offset)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, assets)
}

// HandleApprove makes an asset visible. Approving twice is not an error.
//
// HTTP: POST /api/admin/assets/{id}/approve
func (h *AdminHandler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	asset, err := h.moderation.Approve(r.Context(), auth.SessionFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

// HandleReject deletes a pending asset and its blob.
//
// HTTP: DELETE /api/admin/assets/{id}
//
// A 503 reject_incomplete means the blob is gone but the record is not;
// repeating the request finishes the job.
func (h *AdminHandler) HandleReject(w http.ResponseWriter, r *http.Request) {
	if err := h.moderation.Reject(r.Context(), auth.SessionFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
