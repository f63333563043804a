package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/pisure/internal/apperror"
	"github.com/sakif/pisure/internal/model"
	"github.com/sakif/pisure/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, email, password_hash, COALESCE(github_id, 0), created_at, updated_at`

func scanUser(s scanner) (*model.User, error) {
	var u model.User
	if err := s.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.GitHubID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateAccount inserts a user and its profile in one transaction. Both get the
// same generated ID. A taken email or username is reported as a conflict whose
// Field names the offending input.
func (db *DB) CreateAccount(ctx context.Context, user *model.User, profile *model.Profile) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning account insert: %w", err)
	}
	defer tx.Rollback()

	if err := insertAccount(ctx, tx, user, profile); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing account: %w", err)
	}
	return nil
}

func insertAccount(ctx context.Context, tx *sql.Tx, user *model.User, profile *model.Profile) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	var githubID sql.NullInt64
	if user.GitHubID != 0 {
		githubID = sql.NullInt64{Int64: user.GitHubID, Valid: true}
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, github_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Email,
		user.PasswordHash,
		githubID,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if col, ok := isUniqueViolation(err); ok {
			switch col {
			case "users.email":
				return &apperror.AppError{Err: apperror.ErrConflict, Message: "email is already registered", Field: "email"}
			case "users.github_id":
				return &apperror.AppError{Err: apperror.ErrConflict, Message: "GitHub account is already linked", Field: "github"}
			}
		}
		return fmt.Errorf("sqlite: inserting user %s: %w", user.Email, err)
	}

	profile.ID = user.ID
	profile.CreatedAt = now
	profile.UpdatedAt = now

	_, err = tx.ExecContext(ctx,
		`INSERT INTO profiles (id, username, display_name, bio, avatar_url, website, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		profile.ID,
		profile.Username,
		profile.DisplayName,
		profile.Bio,
		profile.AvatarURL,
		profile.Website,
		profile.CreatedAt,
		profile.UpdatedAt,
	)
	if err != nil {
		if col, ok := isUniqueViolation(err); ok && col == "profiles.username" {
			return &apperror.AppError{Err: apperror.ErrConflict, Message: "username is already taken", Field: "username"}
		}
		return fmt.Errorf("sqlite: inserting profile @%s: %w", profile.Username, err)
	}
	return nil
}

// UpsertGitHubAccount resolves a GitHub sign-in to an account.
//
//  1. An account already linked to the GitHub ID is returned as is.
//  2. An account registered with the same email gets the GitHub ID linked.
//  3. Otherwise a new account and profile are created.
//
// user is filled with the stored record in every case.
func (db *DB) UpsertGitHubAccount(ctx context.Context, user *model.User, profile *model.Profile) (bool, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("sqlite: beginning github upsert: %w", err)
	}
	defer tx.Rollback()

	existing, err := scanUser(tx.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE github_id = ?`, user.GitHubID,
	))
	switch {
	case err == nil:
		*user = *existing
		return false, tx.Commit()
	case !errors.Is(err, sql.ErrNoRows):
		return false, fmt.Errorf("sqlite: looking up user by github_id %d: %w", user.GitHubID, err)
	}

	existing, err = scanUser(tx.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, user.Email,
	))
	switch {
	case err == nil:
		existing.GitHubID = user.GitHubID
		existing.UpdatedAt = time.Now().UTC()
		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET github_id = ?, updated_at = ? WHERE id = ?`,
			existing.GitHubID, existing.UpdatedAt, existing.ID,
		); err != nil {
			return false, fmt.Errorf("sqlite: linking github_id to user %s: %w", existing.ID, err)
		}
		*user = *existing
		return false, tx.Commit()
	case !errors.Is(err, sql.ErrNoRows):
		return false, fmt.Errorf("sqlite: looking up user by email: %w", err)
	}

	if err := insertAccount(ctx, tx, user, profile); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("sqlite: committing github account: %w", err)
	}
	return true, nil
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return u, nil
}

func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("sqlite: getting user by email: %w", err)
	}
	return u, nil
}
