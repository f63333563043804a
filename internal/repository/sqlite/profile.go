package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/pisure/internal/apperror"
	"github.com/sakif/pisure/internal/model"
	"github.com/sakif/pisure/internal/repository"
)

var _ repository.ProfileRepository = (*DB)(nil)

const profileColumns = `id, username, display_name, bio, avatar_url, website, created_at, updated_at`

func scanProfile(s scanner) (*model.Profile, error) {
	var p model.Profile
	err := s.Scan(&p.ID, &p.Username, &p.DisplayName, &p.Bio, &p.AvatarURL, &p.Website, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (db *DB) GetProfileByID(ctx context.Context, id string) (*model.Profile, error) {
	p, err := scanProfile(db.conn.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = ?`, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("profile", id)
		}
		return nil, fmt.Errorf("sqlite: getting profile %s: %w", id, err)
	}
	return p, nil
}

// GetProfileByUsername looks a profile up by its handle. Usernames are stored
// lower-case, so callers pass the normalized form.
func (db *DB) GetProfileByUsername(ctx context.Context, username string) (*model.Profile, error) {
	p, err := scanProfile(db.conn.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE username = ?`, username,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("profile", username)
		}
		return nil, fmt.Errorf("sqlite: getting profile @%s: %w", username, err)
	}
	return p, nil
}

// UpdateProfile writes the editable fields. The username is never changed here.
func (db *DB) UpdateProfile(ctx context.Context, profile *model.Profile) error {
	profile.UpdatedAt = time.Now().UTC()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE profiles
		 SET display_name = ?, bio = ?, avatar_url = ?, website = ?, updated_at = ?
		 WHERE id = ?`,
		profile.DisplayName,
		profile.Bio,
		profile.AvatarURL,
		profile.Website,
		profile.UpdatedAt,
		profile.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating profile %s: %w", profile.ID, err)
	}
	return rowsAffectedOrNotFound(result, "profile", profile.ID)
}
