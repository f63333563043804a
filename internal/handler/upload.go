package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sakif/pisure/internal/apperror"
	"github.com/sakif/pisure/internal/auth"
	"github.com/sakif/pisure/internal/service"
)

const (
	// formOverhead is the room left for the text fields and multipart
	// boundaries on top of the largest accepted file.
	formOverhead = 1 << 20
	// formMemory is how much of the form is kept in memory; the rest of the
	// file is spooled to a temp file by net/http.
	formMemory = 32 << 20
)

type UploadHandler struct {
	uploader *service.Uploader
	maxBytes int64
	logger   *slog.Logger
}

func NewUploadHandler(uploader *service.Uploader, maxBytes int64, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{uploader: uploader, maxBytes: maxBytes, logger: logger}
}

// HandleUpload accepts a new asset. It lands in the moderation queue and is
// not visible in the catalog until an administrator approves it.
//
// HTTP: POST /api/assets
// Auth: session
// BODY: multipart/form-data with file, title, description, tags (comma
// separated) and category.
func (h *UploadHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+formOverhead)
	if err := r.ParseMultipartForm(formMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, h.logger, apperror.ValidationFailed("file",
				fmt.Sprintf("file must be %d MiB or less", h.maxBytes>>20)))
			return
		}
		writeError(w, h.logger, apperror.ValidationFailed("body", "expected a multipart form"))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, h.logger, apperror.ValidationFailed("file", "file is required"))
		return
	}
	defer file.Close()

	asset, err := h.uploader.Upload(r.Context(), auth.SessionFromContext(r.Context()), service.UploadInput{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Tags:        service.SplitTags(r.FormValue("tags")),
		Category:    r.FormValue("category"),
		File:        file,
		Size:        header.Size,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.logger.Info("asset uploaded",
		slog.String("assetID", asset.ID),
		slog.String("filename", header.Filename),
	)
	writeJSON(w, http.StatusCreated, asset)
}
