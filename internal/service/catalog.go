package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/pisure/internal/apperror"
	"github.com/sakif/pisure/internal/model"
	"github.com/sakif/pisure/internal/repository"
	"github.com/sakif/pisure/internal/storage"
)

// AssetView is an asset as the catalog shows it.
type AssetView struct {
	model.Asset
	URL string `json:"url"`
}

// Gallery is a creator's public page.
type Gallery struct {
	Profile *model.Profile `json:"profile"`
	Assets  []AssetView    `json:"assets"`
}

// Catalog serves the public views. Every view goes through visible, which
// only ever returns approved assets.
type Catalog struct {
	assets   repository.AssetRepository
	profiles repository.ProfileRepository
	store    storage.Store
	logger   *slog.Logger
}

func NewCatalog(
	assets repository.AssetRepository,
	profiles repository.ProfileRepository,
	store storage.Store,
	logger *slog.Logger,
) *Catalog {
	return &Catalog{assets: assets, profiles: profiles, store: store, logger: logger}
}

// visible runs q restricted to approved assets, newest first.
func (c *Catalog) visible(ctx context.Context, q repository.AssetQuery) ([]AssetView, error) {
	approved := true
	q.Approved = &approved
	q.Order = repository.NewestFirst
	q.Limit, q.Offset = clampList(q.Limit, q.Offset)

	assets, err := c.assets.FindAssets(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("querying catalog: %w", err)
	}

	views := make([]AssetView, len(assets))
	for i, a := range assets {
		views[i] = AssetView{Asset: a, URL: c.store.PublicURL(a.StoragePath)}
	}
	return views, nil
}

// Latest lists approved assets, newest first.
func (c *Catalog) Latest(ctx context.Context, limit, offset int) ([]AssetView, error) {
	return c.visible(ctx, repository.AssetQuery{
		ListOptions: repository.ListOptions{Limit: limit, Offset: offset},
	})
}

// Search matches q against title, description and category as a substring,
// and against tags exactly, all case-insensitively. A blank q matches nothing.
func (c *Catalog) Search(ctx context.Context, q string, limit, offset int) ([]AssetView, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return []AssetView{}, nil
	}
	return c.visible(ctx, repository.AssetQuery{
		Keyword:     q,
		ListOptions: repository.ListOptions{Limit: limit, Offset: offset},
	})
}

// Gallery returns a creator's profile and approved assets.
func (c *Catalog) Gallery(ctx context.Context, username string, limit, offset int) (*Gallery, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return nil, apperror.ValidationFailed("username", "username is required")
	}

	profile, err := c.profiles.GetProfileByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("loading gallery of @%s: %w", username, err)
	}

	assets, err := c.visible(ctx, repository.AssetQuery{
		UploaderID:  profile.ID,
		ListOptions: repository.ListOptions{Limit: limit, Offset: offset},
	})
	if err != nil {
		return nil, err
	}
	return &Gallery{Profile: profile, Assets: assets}, nil
}

// Detail returns one approved asset. Pending and missing assets are NotFound.
func (c *Catalog) Detail(ctx context.Context, id string) (*AssetView, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "asset ID is required")
	}

	views, err := c.visible(ctx, repository.AssetQuery{
		ID:          id,
		ListOptions: repository.ListOptions{Limit: 1},
	})
	if err != nil {
		return nil, err
	}
	if len(views) == 0 {
		return nil, apperror.NotFound("asset", id)
	}
	return &views[0], nil
}

// Published reports whether the blob at storagePath belongs to an approved
// asset. Blob serving asks it before handing out a file.
func (c *Catalog) Published(ctx context.Context, storagePath string) (bool, error) {
	cleaned, err := storage.CleanPath(storagePath)
	if err != nil {
		return false, nil
	}
	views, err := c.visible(ctx, repository.AssetQuery{
		StoragePath: cleaned,
		ListOptions: repository.ListOptions{Limit: 1},
	})
	if err != nil {
		return false, err
	}
	return len(views) > 0, nil
}
