// Package service holds the business rules of Pisure. Handlers call it with
// plain values and a model.Session; it talks to the record store, the blob
// store and the event publisher through interfaces.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/sakif/pisure/internal/apperror"
	"github.com/sakif/pisure/internal/authz"
	"github.com/sakif/pisure/internal/events"
	"github.com/sakif/pisure/internal/metrics"
	"github.com/sakif/pisure/internal/model"
	"github.com/sakif/pisure/internal/repository"
	"github.com/sakif/pisure/internal/storage"
)

const (
	deleteAttempts   = 3
	deleteRetryDelay = 100 * time.Millisecond
)

// Download sizes.
const (
	SizeOriginal = "original"
	SizeMedium   = "medium"
)

// AssetMeta is the user-editable metadata of an asset.
type AssetMeta struct {
	Title       string   `json:"title"       validate:"required,max=200"`
	Description string   `json:"description" validate:"max=5000"`
	Tags        []string `json:"tags"        validate:"max=20,dive,max=40"`
	Category    string   `json:"category"    validate:"required,category"`
}

func (m *AssetMeta) normalize() {
	m.Title = strings.TrimSpace(m.Title)
	m.Description = strings.TrimSpace(m.Description)
	m.Category = strings.TrimSpace(m.Category)
	m.Tags = normalizeTags(m.Tags)
}

// SubmitInput is the metadata of a new asset whose blob is already stored.
type SubmitInput struct {
	AssetMeta
	MediaKind   model.MediaKind `json:"mediaKind"   validate:"oneof=image video"`
	StoragePath string          `json:"storagePath" validate:"required"`
}

// DownloadResult is what a client needs to fetch an approved asset.
type DownloadResult struct {
	URL       string `json:"url"`
	Downloads int64  `json:"downloads"`
}

// Moderation moves assets through pending → approved or pending → deleted.
// Every privileged call asks the policy again; nothing is cached.
type Moderation struct {
	assets    repository.AssetRepository
	store     storage.Store
	policy    authz.Policy
	publisher events.Publisher
	logger    *slog.Logger

	retryDelay time.Duration
}

func NewModeration(
	assets repository.AssetRepository,
	store storage.Store,
	policy authz.Policy,
	publisher events.Publisher,
	logger *slog.Logger,
) *Moderation {
	return &Moderation{
		assets:     assets,
		store:      store,
		policy:     policy,
		publisher:  publisher,
		logger:     logger,
		retryDelay: deleteRetryDelay,
	}
}

// authorize returns Unauthorized for anonymous sessions and Forbidden for
// sessions lacking c.
func authorize(policy authz.Policy, session model.Session, c authz.Capability) error {
	if !session.Authenticated() {
		return apperror.Unauthorized("sign in required")
	}
	if !authz.Can(policy, session, c) {
		return apperror.Forbidden(fmt.Sprintf("%s permission required", c))
	}
	return nil
}

// Submit records a new pending asset for the signed-in uploader. The blob
// must already exist at in.StoragePath under the uploader's prefix.
func (m *Moderation) Submit(ctx context.Context, session model.Session, in SubmitInput) (*model.Asset, error) {
	if err := authorize(m.policy, session, authz.Upload); err != nil {
		return nil, err
	}

	in.AssetMeta.normalize()
	if in.MediaKind == "" {
		in.MediaKind = model.MediaImage
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	storagePath, err := storage.CleanPath(in.StoragePath)
	if err != nil || !strings.HasPrefix(storagePath, session.UserID+"/") {
		return nil, apperror.ValidationFailed("storagePath", "blob must be stored under the uploader's folder")
	}
	in.StoragePath = storagePath
	category, _ := model.ParseCategory(in.Category)

	exists, err := m.store.Exists(ctx, in.StoragePath)
	if err != nil {
		return nil, apperror.Unavailable("blob store unavailable", err)
	}
	if !exists {
		return nil, apperror.ValidationFailed("storagePath", "no blob stored at "+in.StoragePath)
	}

	asset := &model.Asset{
		Title:       in.Title,
		Description: in.Description,
		Tags:        in.Tags,
		Category:    category,
		MediaKind:   in.MediaKind,
		StoragePath: in.StoragePath,
		UploaderID:  session.UserID,
	}
	if err := m.assets.CreateAsset(ctx, asset); err != nil {
		m.logger.Error("failed to create asset",
			slog.String("storagePath", in.StoragePath),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating asset: %w", err)
	}

	m.logger.Info("asset submitted",
		slog.String("assetID", asset.ID),
		slog.String("uploaderID", asset.UploaderID),
	)
	metrics.RecordTransition("submit", "ok")
	m.publish(ctx, events.AssetSubmitted, asset, session)
	return asset, nil
}

// Approve makes a pending asset visible. Approving an approved asset succeeds
// without changing anything.
func (m *Moderation) Approve(ctx context.Context, session model.Session, id string) (*model.Asset, error) {
	if err := authorize(m.policy, session, authz.Moderate); err != nil {
		metrics.RecordTransition("approve", outcome(err))
		return nil, err
	}

	asset, err := m.assets.GetAsset(ctx, id)
	if err != nil {
		metrics.RecordTransition("approve", outcome(err))
		return nil, fmt.Errorf("approving asset %s: %w", id, err)
	}
	if asset.Rejecting || asset.BlobRemoved {
		metrics.RecordTransition("approve", "conflict")
		return nil, apperror.ConflictMsg("asset is being rejected; reject it again to finish")
	}
	if asset.Approved {
		return asset, nil
	}

	// The write re-checks the state, so a reject that started after the read
	// above still wins.
	changed, err := m.assets.ApproveAsset(ctx, id)
	if err != nil {
		metrics.RecordTransition("approve", outcome(err))
		return nil, fmt.Errorf("approving asset %s: %w", id, err)
	}
	asset.Approved = true
	if !changed {
		return asset, nil
	}

	m.logger.Info("asset approved",
		slog.String("assetID", id),
		slog.String("moderatorID", session.UserID),
	)
	metrics.RecordTransition("approve", "ok")
	m.publish(ctx, events.AssetApproved, asset, session)
	return asset, nil
}

// Reject deletes a pending asset: first its blob, then its record.
//
// The record is marked rejecting before the blob is touched, so no approve
// can slip in between; a failed mark stops the reject. Once the blob is gone
// the record is also marked blob-removed and the record delete is retried
// with back-off. If it still fails the caller gets an Incomplete error and the
// asset is not reported deleted; calling Reject again skips the blob when the
// blob-removed mark made it, and retries only the record.
func (m *Moderation) Reject(ctx context.Context, session model.Session, id string) error {
	if err := authorize(m.policy, session, authz.Moderate); err != nil {
		metrics.RecordTransition("reject", outcome(err))
		return err
	}

	asset, err := m.assets.GetAsset(ctx, id)
	if err != nil {
		metrics.RecordTransition("reject", outcome(err))
		return fmt.Errorf("rejecting asset %s: %w", id, err)
	}
	if asset.Approved {
		metrics.RecordTransition("reject", "conflict")
		return apperror.ConflictMsg("approved assets cannot be rejected")
	}

	if !asset.BlobRemoved {
		if err := m.assets.BeginReject(ctx, id); err != nil {
			metrics.RecordTransition("reject", outcome(err))
			return fmt.Errorf("rejecting asset %s: %w", id, err)
		}
		if err := m.store.Remove(ctx, asset.StoragePath); err != nil {
			if aerr := m.assets.AbortReject(context.WithoutCancel(ctx), id); aerr != nil {
				m.logger.Warn("failed to clear reject mark",
					slog.String("assetID", id),
					slog.String("error", aerr.Error()),
				)
			}
			metrics.RecordTransition("reject", "unavailable")
			return apperror.Unavailable("could not remove the asset file", err)
		}
		// Without this mark a later Reject removes the blob again, which
		// finds nothing.
		if err := m.assets.MarkBlobRemoved(ctx, id); err != nil {
			m.logger.Warn("failed to mark blob removed",
				slog.String("assetID", id),
				slog.String("error", err.Error()),
			)
		}
	}

	err = retry.Do(
		func() error { return m.assets.DeleteAsset(ctx, id) },
		retry.Context(ctx),
		retry.Attempts(deleteAttempts),
		retry.Delay(m.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, apperror.ErrNotFound) && !errors.Is(err, apperror.ErrConflict)
		}),
		retry.OnRetry(func(n uint, err error) {
			m.logger.Warn("retrying asset record delete",
				slog.String("assetID", id),
				slog.Uint64("attempt", uint64(n+1)),
				slog.String("error", err.Error()),
			)
		}),
	)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) || errors.Is(err, apperror.ErrConflict) {
			metrics.RecordTransition("reject", outcome(err))
			return fmt.Errorf("rejecting asset %s: %w", id, err)
		}
		m.logger.Error("reject incomplete: blob removed, record remains",
			slog.String("assetID", id),
			slog.String("error", err.Error()),
		)
		metrics.RecordTransition("reject", "incomplete")
		return apperror.Incomplete("asset file was removed but its record could not be deleted; retry the rejection", err)
	}

	m.logger.Info("asset rejected",
		slog.String("assetID", id),
		slog.String("moderatorID", session.UserID),
	)
	metrics.RecordTransition("reject", "ok")
	m.publish(ctx, events.AssetRejected, asset, session)
	return nil
}

// Download counts one download of an approved asset and returns its URL.
// Pending and missing assets are both NotFound.
func (m *Moderation) Download(ctx context.Context, id, size string) (*DownloadResult, error) {
	switch strings.ToLower(strings.TrimSpace(size)) {
	case "", SizeOriginal:
	case SizeMedium:
		return nil, apperror.ValidationFailed("size", "medium downloads are not available")
	default:
		return nil, apperror.ValidationFailed("size", "size must be original or medium")
	}

	asset, err := m.assets.GetAsset(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("downloading asset %s: %w", id, err)
	}
	if !asset.Approved {
		return nil, apperror.NotFound("asset", id)
	}

	n, err := m.assets.IncrementDownloads(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("counting download of asset %s: %w", id, err)
	}
	metrics.DownloadsTotal.Inc()

	return &DownloadResult{URL: m.store.PublicURL(asset.StoragePath), Downloads: n}, nil
}

// Pending is the moderation queue, oldest first.
func (m *Moderation) Pending(ctx context.Context, session model.Session, limit, offset int) ([]model.Asset, error) {
	if err := authorize(m.policy, session, authz.Moderate); err != nil {
		return nil, err
	}

	limit, offset = clampList(limit, offset)
	pending := false
	assets, err := m.assets.FindAssets(ctx, repository.AssetQuery{
		Approved:    &pending,
		Order:       repository.OldestFirst,
		ListOptions: repository.ListOptions{Limit: limit, Offset: offset},
	})
	if err != nil {
		return nil, fmt.Errorf("listing pending assets: %w", err)
	}
	return assets, nil
}

// publish sends the event and logs a failure. Transitions are never undone
// because an event could not be delivered.
func (m *Moderation) publish(ctx context.Context, t events.Type, asset *model.Asset, actor model.Session) {
	err := m.publisher.Publish(ctx, events.Event{
		Type:       t,
		AssetID:    asset.ID,
		UploaderID: asset.UploaderID,
		ActorID:    actor.UserID,
		At:         time.Now().UTC(),
	})
	if err != nil {
		metrics.EventPublishFailures.WithLabelValues(string(t)).Inc()
		m.logger.Warn("failed to publish moderation event",
			slog.String("type", string(t)),
			slog.String("assetID", asset.ID),
			slog.String("error", err.Error()),
		)
	}
}

// outcome labels an error for the transition metric.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, apperror.ErrNotFound):
		return "not_found"
	case errors.Is(err, apperror.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, apperror.ErrForbidden):
		return "forbidden"
	case errors.Is(err, apperror.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}
