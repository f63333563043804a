package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/pisure/internal/apperror"
	"github.com/sakif/pisure/internal/model"
)

// =========================================================================
// CREATE TESTS
// =========================================================================

func TestCreateAccount(t *testing.T) {
	db := newTestDB(t)

	user, profile := createTestAccount(t, db, "alice")

	if user.ID == "" {
		t.Error("CreateAccount() did not set user.ID")
	}
	if profile.ID != user.ID {
		t.Errorf("profile.ID = %s, want user.ID %s", profile.ID, user.ID)
	}
	if user.CreatedAt.IsZero() {
		t.Error("CreateAccount() did not set user.CreatedAt")
	}
}

func TestCreateAccount_DuplicateEmail(t *testing.T) {
	db := newTestDB(t)
	createTestAccount(t, db, "alice")

	user := &model.User{Email: "alice@example.com"}
	err := db.CreateAccount(context.Background(), user, &model.Profile{Username: "alice2"})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("expected ErrConflict, got: %v", err)
	}
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) || appErr.Field != "email" {
		t.Errorf("expected Field email, got: %v", err)
	}
}

func TestCreateAccount_DuplicateUsernameRollsBack(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	createTestAccount(t, db, "alice")

	user := &model.User{Email: "other@example.com"}
	err := db.CreateAccount(ctx, user, &model.Profile{Username: "alice"})
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) || appErr.Field != "username" {
		t.Fatalf("expected username conflict, got: %v", err)
	}

	// the user row must not survive the failed profile insert
	_, err = db.GetUserByEmail(ctx, "other@example.com")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

// =========================================================================
// READ TESTS
// =========================================================================

func TestGetUserByID(t *testing.T) {
	db := newTestDB(t)
	created, _ := createTestAccount(t, db, "alice")

	got, err := db.GetUserByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if got.Email != "alice@example.com" {
		t.Errorf("Email = %q, want %q", got.Email, "alice@example.com")
	}
	if got.PasswordHash != "hash" {
		t.Errorf("PasswordHash = %q, want %q", got.PasswordHash, "hash")
	}
}

func TestGetUserByID_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetUserByID(context.Background(), "nonexistent-id")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

func TestGetUserByEmail_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetUserByEmail(context.Background(), "nobody@example.com")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

// =========================================================================
// GITHUB UPSERT TESTS
// =========================================================================

func TestUpsertGitHubAccount_NewUser(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	user := &model.User{Email: "octo@example.com", GitHubID: 42}
	profile := &model.Profile{Username: "octocat", AvatarURL: "https://avatars.example.com/42"}

	created, err := db.UpsertGitHubAccount(ctx, user, profile)
	if err != nil {
		t.Fatalf("UpsertGitHubAccount() error = %v", err)
	}
	if !created {
		t.Error("created = false, want true")
	}

	got, err := db.GetProfileByUsername(ctx, "octocat")
	if err != nil {
		t.Fatalf("GetProfileByUsername() error = %v", err)
	}
	if got.ID != user.ID {
		t.Errorf("profile.ID = %s, want %s", got.ID, user.ID)
	}
}

func TestUpsertGitHubAccount_ExistingGitHubID(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first := &model.User{Email: "octo@example.com", GitHubID: 42}
	if _, err := db.UpsertGitHubAccount(ctx, first, &model.Profile{Username: "octocat"}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	again := &model.User{Email: "changed@example.com", GitHubID: 42}
	created, err := db.UpsertGitHubAccount(ctx, again, &model.Profile{Username: "octocat"})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if created {
		t.Error("created = true on second sign-in")
	}
	if again.ID != first.ID {
		t.Errorf("ID = %s, want %s", again.ID, first.ID)
	}
	if !first.CreatedAt.Equal(again.CreatedAt) {
		t.Errorf("CreatedAt changed: %v -> %v", first.CreatedAt, again.CreatedAt)
	}
}

func TestUpsertGitHubAccount_LinksByEmail(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	existing, _ := createTestAccount(t, db, "alice")

	user := &model.User{Email: "alice@example.com", GitHubID: 7}
	created, err := db.UpsertGitHubAccount(ctx, user, &model.Profile{Username: "alice-gh"})
	if err != nil {
		t.Fatalf("UpsertGitHubAccount() error = %v", err)
	}
	if created {
		t.Error("created = true, want link to existing account")
	}
	if user.ID != existing.ID {
		t.Errorf("ID = %s, want %s", user.ID, existing.ID)
	}

	got, err := db.GetUserByID(ctx, existing.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if got.GitHubID != 7 {
		t.Errorf("GitHubID = %d, want 7", got.GitHubID)
	}
}
