package sqlite

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/sakif/pisure/internal/apperror"
	"github.com/sakif/pisure/internal/model"
	"github.com/sakif/pisure/internal/repository"
)

func createTestAsset(t *testing.T, db *DB, uploaderID, title string, tags ...string) *model.Asset {
	t.Helper()
	asset := &model.Asset{
		Title:       title,
		Description: "description of " + title,
		Tags:        tags,
		Category:    model.CategoryOther,
		MediaKind:   model.MediaImage,
		StoragePath: uploaderID + "/" + title + ".jpg",
		UploaderID:  uploaderID,
	}
	if err := db.CreateAsset(context.Background(), asset); err != nil {
		t.Fatalf("failed to create test asset: %v", err)
	}
	return asset
}

func approved(v bool) *bool { return &v }

func TestCreateAsset(t *testing.T) {
	db := newTestDB(t)
	user, _ := createTestAccount(t, db, "alice")

	asset := createTestAsset(t, db, user.ID, "sunset", "Sky", "orange")

	if asset.ID == "" {
		t.Error("CreateAsset() did not set ID")
	}
	if asset.CreatedAt.IsZero() {
		t.Error("CreateAsset() did not set CreatedAt")
	}

	got, err := db.GetAsset(context.Background(), asset.ID)
	if err != nil {
		t.Fatalf("GetAsset() error = %v", err)
	}
	if got.Title != "sunset" {
		t.Errorf("Title = %q, want %q", got.Title, "sunset")
	}
	if got.Approved {
		t.Error("new asset should be pending")
	}
	if got.UploaderUsername != "alice" {
		t.Errorf("UploaderUsername = %q, want %q", got.UploaderUsername, "alice")
	}
	if len(got.Tags) != 2 || got.Tags[0] != "Sky" || got.Tags[1] != "orange" {
		t.Errorf("Tags = %v, want [Sky orange]", got.Tags)
	}
}

func TestCreateAsset_DuplicateStoragePath(t *testing.T) {
	db := newTestDB(t)
	user, _ := createTestAccount(t, db, "alice")
	createTestAsset(t, db, user.ID, "one")

	dup := &model.Asset{
		Title:       "other",
		Category:    model.CategoryOther,
		MediaKind:   model.MediaImage,
		StoragePath: user.ID + "/one.jpg",
		UploaderID:  user.ID,
	}
	err := db.CreateAsset(context.Background(), dup)
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("expected ErrConflict, got: %v", err)
	}
}

func TestCreateAsset_UnknownUploader(t *testing.T) {
	db := newTestDB(t)

	asset := &model.Asset{
		Title:       "orphan",
		Category:    model.CategoryOther,
		MediaKind:   model.MediaImage,
		StoragePath: "nobody/orphan.jpg",
		UploaderID:  "nobody",
	}
	if err := db.CreateAsset(context.Background(), asset); err == nil {
		t.Error("CreateAsset() should fail for an uploader without a profile")
	}
}

func TestGetAsset_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetAsset(context.Background(), "missing")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

func TestFindAssets_FiltersApproved(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user, _ := createTestAccount(t, db, "alice")

	pending := createTestAsset(t, db, user.ID, "pending")
	live := createTestAsset(t, db, user.ID, "live")
	if _, err := db.ApproveAsset(ctx, live.ID); err != nil {
		t.Fatalf("ApproveAsset() error = %v", err)
	}

	got, err := db.FindAssets(ctx, repository.AssetQuery{Approved: approved(true)})
	if err != nil {
		t.Fatalf("FindAssets() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != live.ID {
		t.Errorf("approved = %v, want only %s", got, live.ID)
	}

	got, err = db.FindAssets(ctx, repository.AssetQuery{Approved: approved(false)})
	if err != nil {
		t.Fatalf("FindAssets() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != pending.ID {
		t.Errorf("pending = %v, want only %s", got, pending.ID)
	}

	got, err = db.FindAssets(ctx, repository.AssetQuery{})
	if err != nil {
		t.Fatalf("FindAssets() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("unfiltered len = %d, want 2", len(got))
	}
}

func TestFindAssets_Order(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user, _ := createTestAccount(t, db, "alice")

	first := createTestAsset(t, db, user.ID, "first")
	second := createTestAsset(t, db, user.ID, "second")

	newest, err := db.FindAssets(ctx, repository.AssetQuery{})
	if err != nil {
		t.Fatalf("FindAssets() error = %v", err)
	}
	if newest[0].ID != second.ID {
		t.Errorf("NewestFirst[0] = %s, want %s", newest[0].Title, second.Title)
	}

	oldest, err := db.FindAssets(ctx, repository.AssetQuery{Order: repository.OldestFirst})
	if err != nil {
		t.Fatalf("FindAssets() error = %v", err)
	}
	if oldest[0].ID != first.ID {
		t.Errorf("OldestFirst[0] = %s, want %s", oldest[0].Title, first.Title)
	}
}

func TestFindAssets_Limit(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user, _ := createTestAccount(t, db, "alice")

	for _, title := range []string{"a", "b", "c"} {
		createTestAsset(t, db, user.ID, title)
	}

	got, err := db.FindAssets(ctx, repository.AssetQuery{ListOptions: repository.ListOptions{Limit: 2}})
	if err != nil {
		t.Fatalf("FindAssets() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("len = %d, want 2", len(got))
	}

	got, err = db.FindAssets(ctx, repository.AssetQuery{ListOptions: repository.ListOptions{Limit: 2, Offset: 2}})
	if err != nil {
		t.Fatalf("FindAssets() error = %v", err)
	}
	if len(got) != 1 {
		t.Errorf("len with offset = %d, want 1", len(got))
	}
}

func TestFindAssets_Keyword(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user, _ := createTestAccount(t, db, "alice")

	fox := createTestAsset(t, db, user.ID, "Red Fox", "forest")
	createTestAsset(t, db, user.ID, "Skyline", "city")
	percent := createTestAsset(t, db, user.ID, "100% juice")

	tests := []struct {
		name    string
		keyword string
		want    []string
	}{
		{"title substring case-insensitive", "FOX", []string{fox.ID}},
		{"tag exact", "Forest", []string{fox.ID}},
		{"tag partial does not match", "fores", nil},
		{"like wildcard is literal", "%", []string{percent.ID}},
		{"no match", "ocean", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := db.FindAssets(ctx, repository.AssetQuery{Keyword: tt.keyword})
			if err != nil {
				t.Fatalf("FindAssets() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d (%v)", len(got), len(tt.want), got)
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("got[%d] = %s, want %s", i, got[i].ID, id)
				}
			}
		})
	}
}

func TestFindAssets_ByUploader(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice, _ := createTestAccount(t, db, "alice")
	bob, _ := createTestAccount(t, db, "bob")

	createTestAsset(t, db, alice.ID, "a1")
	createTestAsset(t, db, bob.ID, "b1")

	got, err := db.FindAssets(ctx, repository.AssetQuery{UploaderID: bob.ID})
	if err != nil {
		t.Fatalf("FindAssets() error = %v", err)
	}
	if len(got) != 1 || got[0].UploaderUsername != "bob" {
		t.Errorf("got %v, want only bob's asset", got)
	}
}

func TestApproveAsset_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.ApproveAsset(context.Background(), "missing")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

func TestApproveAsset_OnlyPending(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user, _ := createTestAccount(t, db, "alice")
	asset := createTestAsset(t, db, user.ID, "sunset")

	changed, err := db.ApproveAsset(ctx, asset.ID)
	if err != nil || !changed {
		t.Fatalf("ApproveAsset() = %v, %v, want true, nil", changed, err)
	}
	changed, err = db.ApproveAsset(ctx, asset.ID)
	if err != nil || changed {
		t.Errorf("second ApproveAsset() = %v, %v, want false, nil", changed, err)
	}
}

func TestApproveAsset_RejectingIsConflict(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user, _ := createTestAccount(t, db, "alice")
	asset := createTestAsset(t, db, user.ID, "blurry")

	if err := db.BeginReject(ctx, asset.ID); err != nil {
		t.Fatalf("BeginReject() error = %v", err)
	}
	_, err := db.ApproveAsset(ctx, asset.ID)
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("expected ErrConflict, got: %v", err)
	}

	// an aborted reject makes the asset approvable again
	if err := db.AbortReject(ctx, asset.ID); err != nil {
		t.Fatalf("AbortReject() error = %v", err)
	}
	if _, err := db.ApproveAsset(ctx, asset.ID); err != nil {
		t.Errorf("ApproveAsset() after abort error = %v", err)
	}
}

func TestAbortReject_KeepsMarkOnceBlobRemoved(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user, _ := createTestAccount(t, db, "alice")
	asset := createTestAsset(t, db, user.ID, "gone")

	if err := db.BeginReject(ctx, asset.ID); err != nil {
		t.Fatalf("BeginReject() error = %v", err)
	}
	if err := db.MarkBlobRemoved(ctx, asset.ID); err != nil {
		t.Fatalf("MarkBlobRemoved() error = %v", err)
	}
	if err := db.AbortReject(ctx, asset.ID); err != nil {
		t.Fatalf("AbortReject() error = %v", err)
	}

	got, err := db.GetAsset(ctx, asset.ID)
	if err != nil {
		t.Fatalf("GetAsset() error = %v", err)
	}
	if !got.Rejecting {
		t.Error("Rejecting cleared although the blob is gone")
	}
}

func TestRejectWrites_ApprovedIsConflict(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user, _ := createTestAccount(t, db, "alice")
	asset := createTestAsset(t, db, user.ID, "keeper", "x")
	if _, err := db.ApproveAsset(ctx, asset.ID); err != nil {
		t.Fatalf("ApproveAsset() error = %v", err)
	}

	writes := map[string]func(context.Context, string) error{
		"BeginReject":     db.BeginReject,
		"MarkBlobRemoved": db.MarkBlobRemoved,
		"DeleteAsset":     db.DeleteAsset,
	}
	for name, write := range writes {
		t.Run(name, func(t *testing.T) {
			if err := write(ctx, asset.ID); !errors.Is(err, apperror.ErrConflict) {
				t.Errorf("expected ErrConflict, got: %v", err)
			}
			if err := write(ctx, "missing"); !errors.Is(err, apperror.ErrNotFound) {
				t.Errorf("missing asset: expected ErrNotFound, got: %v", err)
			}
		})
	}

	got, err := db.GetAsset(ctx, asset.ID)
	if err != nil {
		t.Fatalf("approved asset must survive: %v", err)
	}
	if got.Rejecting || got.BlobRemoved || len(got.Tags) != 1 {
		t.Errorf("approved asset changed: %+v", got)
	}
}

func TestMarkBlobRemoved(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user, _ := createTestAccount(t, db, "alice")
	asset := createTestAsset(t, db, user.ID, "gone")

	if err := db.MarkBlobRemoved(ctx, asset.ID); err != nil {
		t.Fatalf("MarkBlobRemoved() error = %v", err)
	}
	got, err := db.GetAsset(ctx, asset.ID)
	if err != nil {
		t.Fatalf("GetAsset() error = %v", err)
	}
	if !got.BlobRemoved {
		t.Error("BlobRemoved should be true")
	}
}

func TestDeleteAsset(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user, _ := createTestAccount(t, db, "alice")
	asset := createTestAsset(t, db, user.ID, "doomed", "x")

	if err := db.DeleteAsset(ctx, asset.ID); err != nil {
		t.Fatalf("DeleteAsset() error = %v", err)
	}

	_, err := db.GetAsset(ctx, asset.ID)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got: %v", err)
	}

	var n int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM asset_tags WHERE asset_id = ?`, asset.ID).Scan(&n); err != nil {
		t.Fatalf("counting tags: %v", err)
	}
	if n != 0 {
		t.Errorf("tags left after delete = %d", n)
	}

	err = db.DeleteAsset(ctx, asset.ID)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("second delete: expected ErrNotFound, got: %v", err)
	}
}

func TestIncrementDownloads(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user, _ := createTestAccount(t, db, "alice")
	asset := createTestAsset(t, db, user.ID, "popular")

	// pending assets cannot be downloaded
	_, err := db.IncrementDownloads(ctx, asset.ID)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("pending: expected ErrNotFound, got: %v", err)
	}

	if _, err := db.ApproveAsset(ctx, asset.ID); err != nil {
		t.Fatalf("ApproveAsset() error = %v", err)
	}

	const workers = 20
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := db.IncrementDownloads(ctx, asset.ID); err != nil {
				t.Errorf("IncrementDownloads() error = %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := db.GetAsset(ctx, asset.ID)
	if err != nil {
		t.Fatalf("GetAsset() error = %v", err)
	}
	if got.Downloads != workers {
		t.Errorf("Downloads = %d, want %d", got.Downloads, workers)
	}
}
