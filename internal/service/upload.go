package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sakif/pisure/internal/apperror"
	"github.com/sakif/pisure/internal/authz"
	"github.com/sakif/pisure/internal/metrics"
	"github.com/sakif/pisure/internal/model"
	"github.com/sakif/pisure/internal/storage"
)

// sniffLen is how much of the file is read to detect its type.
const sniffLen = 3072

// UploadInput is one submission from the upload form.
type UploadInput struct {
	Title       string
	Description string
	Tags        []string
	Category    string
	File        io.Reader
	Size        int64
}

// Uploader stores a file and submits it for moderation. A failed submit
// removes the stored file again.
type Uploader struct {
	store      storage.Store
	moderation *Moderation
	policy     authz.Policy
	maxBytes   int64
	logger     *slog.Logger
}

func NewUploader(store storage.Store, moderation *Moderation, policy authz.Policy, maxBytes int64, logger *slog.Logger) *Uploader {
	return &Uploader{
		store:      store,
		moderation: moderation,
		policy:     policy,
		maxBytes:   maxBytes,
		logger:     logger,
	}
}

// Upload validates the metadata and the file before touching the blob store.
func (u *Uploader) Upload(ctx context.Context, session model.Session, in UploadInput) (*model.Asset, error) {
	if err := authorize(u.policy, session, authz.Upload); err != nil {
		return nil, err
	}

	meta := AssetMeta{
		Title:       in.Title,
		Description: in.Description,
		Tags:        in.Tags,
		Category:    in.Category,
	}
	meta.normalize()
	if err := validateStruct(meta); err != nil {
		return nil, err
	}

	if in.File == nil || in.Size <= 0 {
		return nil, apperror.ValidationFailed("file", "file is required")
	}
	if u.maxBytes > 0 && in.Size > u.maxBytes {
		return nil, apperror.ValidationFailed("file",
			fmt.Sprintf("file must be %d MiB or less", u.maxBytes>>20))
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(in.File, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	head = head[:n]
	if n == 0 {
		return nil, apperror.ValidationFailed("file", "file is required")
	}

	mtype := mimetype.Detect(head)
	kind, ok := mediaKind(mtype)
	if !ok {
		return nil, apperror.ValidationFailed("file", "only images and videos can be uploaded, got "+mtype.String())
	}
	path := storage.ObjectPath(session.UserID, mtype.Extension())

	body := io.MultiReader(bytes.NewReader(head), in.File)
	if err := u.store.Upload(ctx, path, body, in.Size, mtype.String()); err != nil {
		u.logger.Error("blob upload failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil, apperror.Unavailable("could not store the file", err)
	}

	asset, err := u.moderation.Submit(ctx, session, SubmitInput{
		AssetMeta:   meta,
		MediaKind:   kind,
		StoragePath: path,
	})
	if err != nil {
		u.cleanup(ctx, path)
		return nil, err
	}
	return asset, nil
}

// cleanup removes a blob whose record could not be created. It runs once; a
// failure leaves an orphan that is logged and counted.
func (u *Uploader) cleanup(ctx context.Context, path string) {
	if err := u.store.Remove(context.WithoutCancel(ctx), path); err != nil {
		metrics.OrphanBlobs.Inc()
		u.logger.Error("orphan blob left after failed submit",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}

func mediaKind(m *mimetype.MIME) (model.MediaKind, bool) {
	switch {
	case strings.HasPrefix(m.String(), "image/"):
		return model.MediaImage, true
	case strings.HasPrefix(m.String(), "video/"):
		return model.MediaVideo, true
	default:
		return "", false
	}
}
