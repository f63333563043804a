// Package repository declares the record-store interfaces the services depend on.
// internal/repository/sqlite implements them.
package repository

import (
	"context"

	"github.com/sakif/pisure/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// Order selects the sort order of an asset query.
type Order int

const (
	NewestFirst Order = iota
	OldestFirst
)

// AssetQuery filters assets. Zero fields do not filter.
type AssetQuery struct {
	// ID restricts the query to a single asset.
	ID string
	// Approved filters on the moderation flag when non-nil.
	Approved *bool
	// UploaderID restricts to one uploader.
	UploaderID string
	// StoragePath restricts to the asset stored at that blob path.
	StoragePath string
	// Keyword matches title, description or category by substring, or a tag
	// exactly, all case-insensitively.
	Keyword string
	Order   Order
	ListOptions
}

type AssetRepository interface {
	CreateAsset(ctx context.Context, asset *model.Asset) error
	// GetAsset returns the asset regardless of its moderation state.
	GetAsset(ctx context.Context, id string) (*model.Asset, error)
	FindAssets(ctx context.Context, q AssetQuery) ([]model.Asset, error)
	// ApproveAsset sets approved = true on a pending asset and reports whether
	// it changed anything. An asset that is being rejected is a conflict; a
	// missing one is apperror.ErrNotFound.
	ApproveAsset(ctx context.Context, id string) (bool, error)
	// BeginReject marks a pending asset as being rejected, after which it can
	// no longer be approved. Approved assets are a conflict.
	BeginReject(ctx context.Context, id string) error
	// AbortReject clears the reject mark of an asset whose blob is still
	// stored.
	AbortReject(ctx context.Context, id string) error
	MarkBlobRemoved(ctx context.Context, id string) error
	// DeleteAsset removes a pending record. Approved records are a conflict.
	DeleteAsset(ctx context.Context, id string) error
	// IncrementDownloads adds one to the counter of an approved asset and
	// returns the new value.
	IncrementDownloads(ctx context.Context, id string) (int64, error)
}

type ProfileRepository interface {
	GetProfileByID(ctx context.Context, id string) (*model.Profile, error)
	GetProfileByUsername(ctx context.Context, username string) (*model.Profile, error)
	UpdateProfile(ctx context.Context, profile *model.Profile) error
}

type UserRepository interface {
	// CreateAccount inserts the user and its profile together.
	CreateAccount(ctx context.Context, user *model.User, profile *model.Profile) error
	// UpsertGitHubAccount finds the account linked to user.GitHubID or creates it
	// together with profile. The returned bool is true when a new account was made.
	UpsertGitHubAccount(ctx context.Context, user *model.User, profile *model.Profile) (bool, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
}
