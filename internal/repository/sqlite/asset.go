package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/pisure/internal/apperror"
	"github.com/sakif/pisure/internal/model"
	"github.com/sakif/pisure/internal/repository"
)

var _ repository.AssetRepository = (*DB)(nil)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// assetColumns is shared by every asset SELECT so scanAsset stays in sync.
const assetColumns = `a.id, a.title, a.description, a.category, a.media_kind, a.storage_path,
	a.uploader_id, a.approved, a.rejecting, a.blob_removed, a.downloads, a.created_at, a.updated_at,
	COALESCE(p.username, '')`

type scanner interface {
	Scan(dest ...any) error
}

func scanAsset(s scanner) (model.Asset, error) {
	var a model.Asset
	err := s.Scan(
		&a.ID, &a.Title, &a.Description, &a.Category, &a.MediaKind, &a.StoragePath,
		&a.UploaderID, &a.Approved, &a.Rejecting, &a.BlobRemoved, &a.Downloads, &a.CreatedAt, &a.UpdatedAt,
		&a.UploaderUsername,
	)
	return a, err
}

// CreateAsset inserts the asset and its tags in one transaction. ID and
// timestamps are set on the passed struct.
func (db *DB) CreateAsset(ctx context.Context, asset *model.Asset) error {
	asset.ID = xid.New().String()
	now := time.Now().UTC()
	asset.CreatedAt = now
	asset.UpdatedAt = now
	if asset.Tags == nil {
		asset.Tags = []string{}
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning asset insert: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO assets (id, title, description, category, media_kind, storage_path,
		                     uploader_id, approved, blob_removed, downloads, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?)`,
		asset.ID,
		asset.Title,
		asset.Description,
		string(asset.Category),
		string(asset.MediaKind),
		asset.StoragePath,
		asset.UploaderID,
		asset.Approved,
		asset.Downloads,
		asset.CreatedAt,
		asset.UpdatedAt,
	)
	if err != nil {
		if col, ok := isUniqueViolation(err); ok {
			return apperror.ConflictMsg(fmt.Sprintf("asset with duplicate %s", col))
		}
		return fmt.Errorf("sqlite: creating asset: %w", err)
	}

	for i, tag := range asset.Tags {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO asset_tags (asset_id, position, tag) VALUES (?, ?, ?)`,
			asset.ID, i, tag,
		); err != nil {
			return fmt.Errorf("sqlite: inserting tag %q: %w", tag, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing asset: %w", err)
	}
	return nil
}

// GetAsset returns an asset in any moderation state.
func (db *DB) GetAsset(ctx context.Context, id string) (*model.Asset, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+assetColumns+`
		 FROM assets a
		 LEFT JOIN profiles p ON p.id = a.uploader_id
		 WHERE a.id = ?`,
		id,
	)
	asset, err := scanAsset(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("asset", id)
		}
		return nil, fmt.Errorf("sqlite: getting asset %s: %w", id, err)
	}

	if err := db.loadTags(ctx, []*model.Asset{&asset}); err != nil {
		return nil, err
	}
	return &asset, nil
}

// FindAssets runs an AssetQuery. Uploader usernames are joined in.
func (db *DB) FindAssets(ctx context.Context, q repository.AssetQuery) ([]model.Asset, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	var (
		where []string
		args  []any
	)
	if q.ID != "" {
		where = append(where, "a.id = ?")
		args = append(args, q.ID)
	}
	if q.Approved != nil {
		where = append(where, "a.approved = ?")
		args = append(args, *q.Approved)
	}
	if q.UploaderID != "" {
		where = append(where, "a.uploader_id = ?")
		args = append(args, q.UploaderID)
	}
	if q.StoragePath != "" {
		where = append(where, "a.storage_path = ?")
		args = append(args, q.StoragePath)
	}
	if kw := strings.ToLower(strings.TrimSpace(q.Keyword)); kw != "" {
		pattern := "%" + escapeLike(kw) + "%"
		where = append(where, `(LOWER(a.title) LIKE ? ESCAPE '\'
			OR LOWER(a.description) LIKE ? ESCAPE '\'
			OR LOWER(a.category) LIKE ? ESCAPE '\'
			OR EXISTS (SELECT 1 FROM asset_tags t WHERE t.asset_id = a.id AND LOWER(t.tag) = ?))`)
		args = append(args, pattern, pattern, pattern, kw)
	}

	query := `SELECT ` + assetColumns + `
		FROM assets a
		LEFT JOIN profiles p ON p.id = a.uploader_id`
	if len(where) > 0 {
		query += "\nWHERE " + strings.Join(where, " AND ")
	}
	if q.Order == repository.OldestFirst {
		query += "\nORDER BY a.created_at ASC, a.id ASC"
	} else {
		query += "\nORDER BY a.created_at DESC, a.id DESC"
	}
	query += "\nLIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: finding assets: %w", err)
	}
	defer rows.Close()

	assets := make([]model.Asset, 0, limit)
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning asset row: %w", err)
		}
		assets = append(assets, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating assets: %w", err)
	}
	rows.Close()

	ptrs := make([]*model.Asset, len(assets))
	for i := range assets {
		ptrs[i] = &assets[i]
	}
	if err := db.loadTags(ctx, ptrs); err != nil {
		return nil, err
	}
	return assets, nil
}

// loadTags fills Tags for every asset with one query.
func (db *DB) loadTags(ctx context.Context, assets []*model.Asset) error {
	if len(assets) == 0 {
		return nil
	}
	byID := make(map[string]*model.Asset, len(assets))
	placeholders := make([]string, 0, len(assets))
	args := make([]any, 0, len(assets))
	for _, a := range assets {
		a.Tags = []string{}
		byID[a.ID] = a
		placeholders = append(placeholders, "?")
		args = append(args, a.ID)
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT asset_id, tag FROM asset_tags
		 WHERE asset_id IN (`+strings.Join(placeholders, ",")+`)
		 ORDER BY asset_id, position`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("sqlite: loading tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, tag string
		if err := rows.Scan(&id, &tag); err != nil {
			return fmt.Errorf("sqlite: scanning tag row: %w", err)
		}
		if a, ok := byID[id]; ok {
			a.Tags = append(a.Tags, tag)
		}
	}
	return rows.Err()
}

// ApproveAsset only touches a pending asset that no reject has started on.
// When nothing matched, the row is read again to tell an already approved
// asset from a conflicting or missing one.
func (db *DB) ApproveAsset(ctx context.Context, id string) (bool, error) {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE assets SET approved = 1, updated_at = ?
		 WHERE id = ? AND approved = 0 AND rejecting = 0 AND blob_removed = 0`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: approving asset %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n > 0 {
		return true, nil
	}

	flags, err := readModerationFlags(ctx, db.conn, id)
	if err != nil {
		return false, err
	}
	if flags.approved {
		return false, nil
	}
	return false, apperror.ConflictMsg("asset is being rejected; reject it again to finish")
}

func (db *DB) BeginReject(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE assets SET rejecting = 1, updated_at = ? WHERE id = ? AND approved = 0`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: starting reject of asset %s: %w", id, err)
	}
	return pendingOrConflict(ctx, db.conn, result, id)
}

func (db *DB) AbortReject(ctx context.Context, id string) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE assets SET rejecting = 0, updated_at = ? WHERE id = ? AND blob_removed = 0`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: aborting reject of asset %s: %w", id, err)
	}
	return nil
}

func (db *DB) MarkBlobRemoved(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE assets SET blob_removed = 1, updated_at = ? WHERE id = ? AND approved = 0`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: marking blob removed for asset %s: %w", id, err)
	}
	return pendingOrConflict(ctx, db.conn, result, id)
}

// DeleteAsset removes a pending record and its tags.
func (db *DB) DeleteAsset(ctx context.Context, id string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning asset delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM asset_tags WHERE asset_id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: deleting tags of asset %s: %w", id, err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM assets WHERE id = ? AND approved = 0`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting asset %s: %w", id, err)
	}
	if err := pendingOrConflict(ctx, tx, result, id); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing asset delete: %w", err)
	}
	return nil
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type moderationFlags struct {
	approved  bool
	rejecting bool
}

func readModerationFlags(ctx context.Context, q rowQuerier, id string) (moderationFlags, error) {
	var f moderationFlags
	err := q.QueryRowContext(ctx,
		`SELECT approved, rejecting FROM assets WHERE id = ?`, id,
	).Scan(&f.approved, &f.rejecting)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return f, apperror.NotFound("asset", id)
		}
		return f, fmt.Errorf("sqlite: reading state of asset %s: %w", id, err)
	}
	return f, nil
}

// pendingOrConflict checks a write guarded by "approved = 0". No affected row
// means the asset is missing (NotFound) or approved (Conflict).
func pendingOrConflict(ctx context.Context, q rowQuerier, result sql.Result, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := readModerationFlags(ctx, q, id); err != nil {
		return err
	}
	return apperror.ConflictMsg("approved assets cannot be rejected")
}

// IncrementDownloads bumps the counter in a single statement, so concurrent
// downloads never lose an increment.
func (db *DB) IncrementDownloads(ctx context.Context, id string) (int64, error) {
	var downloads int64
	err := db.conn.QueryRowContext(ctx,
		`UPDATE assets SET downloads = downloads + 1
		 WHERE id = ? AND approved = 1
		 RETURNING downloads`,
		id,
	).Scan(&downloads)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, apperror.NotFound("asset", id)
		}
		return 0, fmt.Errorf("sqlite: incrementing downloads of asset %s: %w", id, err)
	}
	return downloads, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
