package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"

	"photoframe-sync/internal/domain"
)

// UpsertPhotos batch-upserts discovered/changed photos under one transaction
// (I1: unique by id). Cache state is never touched here — only CacheEngine
// and ClearCache mutate it.
func (c *SQLite) UpsertPhotos(ctx context.Context, photos []domain.PhotoMeta, providerKey string) error {
	if len(photos) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO photos (id, provider_key, container_key, filename, creation_time, width, height, latitude, longitude)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			provider_key  = excluded.provider_key,
			container_key = excluded.container_key,
			filename      = excluded.filename,
			creation_time = excluded.creation_time,
			width         = COALESCE(excluded.width, width),
			height        = COALESCE(excluded.height, height),
			latitude      = excluded.latitude,
			longitude     = excluded.longitude
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range photos {
		if _, err := stmt.ExecContext(ctx, p.ID, providerKey, p.ContainerKey, p.Filename, p.CreationTime,
			nullableInt(p.Width), nullableInt(p.Height), nullableFloat(p.Latitude), nullableFloat(p.Longitude)); err != nil {
			return fmt.Errorf("upsert photo %s: %w", p.ID, err)
		}
	}

	return tx.Commit()
}

// DeletePhoto removes the row and, if it held a file payload, unlinks the
// file. The row is cleared first (§9 Open Question: prefer a ghost-file over
// a ghost-row, since a ghost row would corrupt cache_bytes_total under I3).
func (c *SQLite) DeletePhoto(ctx context.Context, photoID string) error {
	var form domain.CacheForm
	var path sql.NullString

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	row := tx.QueryRowContext(ctx, `SELECT cache_form, cache_path FROM photos WHERE id = ?`, photoID)
	if err := row.Scan(&form, &path); err != nil {
		if err == sql.ErrNoRows {
			return tx.Commit()
		}
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM photos WHERE id = ?`, photoID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	if form == domain.CacheFile && path.Valid {
		if err := os.Remove(path.String); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("unlink cache file for deleted photo %s: %w", photoID, err)
		}
	}
	return nil
}

// NextDisplayCandidate returns one cached photo per the configured sort
// policy. Unviewed photos always precede viewed ones; mode picks the
// ordering within each class (spec §4.1.1).
func (c *SQLite) NextDisplayCandidate(ctx context.Context, mode domain.SortMode) (*domain.Photo, error) {
	var order string
	switch mode {
	case domain.SortNewest:
		order = "(last_viewed_at IS NOT NULL), creation_time DESC"
	case domain.SortOldest:
		order = "(last_viewed_at IS NOT NULL), creation_time ASC"
	case domain.SortRandom:
		order = "(last_viewed_at IS NOT NULL), RANDOM()"
	default: // sequential
		order = "(last_viewed_at IS NOT NULL), id ASC"
	}

	query := fmt.Sprintf(`SELECT %s FROM photos WHERE cache_form != 0 ORDER BY %s LIMIT 1`, photoColumns, order)
	row := c.db.QueryRowContext(ctx, query)
	p, err := scanPhoto(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// MarkViewed advances last_viewed_at if nowMs is strictly greater (I5).
// Errors are swallowed per spec: view-marking must never block display.
func (c *SQLite) MarkViewed(ctx context.Context, photoID string, nowMs int64) {
	_, err := c.db.ExecContext(ctx, `
		UPDATE photos SET last_viewed_at = ?
		WHERE id = ? AND (last_viewed_at IS NULL OR last_viewed_at < ?)
	`, nowMs, photoID, nowMs)
	if err != nil {
		logMarkViewedError(photoID, err)
	}
}

// ListFetchCandidates returns up to limit photos with no cache payload,
// never-viewed first then least-recently-viewed.
func (c *SQLite) ListFetchCandidates(ctx context.Context, limit int) ([]domain.FetchCandidate, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, provider_key FROM photos
		WHERE cache_form = 0
		ORDER BY (last_viewed_at IS NOT NULL), last_viewed_at ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.FetchCandidate
	for rows.Next() {
		var fc domain.FetchCandidate
		if err := rows.Scan(&fc.ID, &fc.ProviderKey); err != nil {
			return nil, err
		}
		out = append(out, fc)
	}
	return out, rows.Err()
}

// ListEvictionCandidates returns up to limit cached photos ordered by
// ascending last_viewed_at, never-viewed last (most disposable only once
// nothing viewed remains).
func (c *SQLite) ListEvictionCandidates(ctx context.Context, limit int) ([]domain.EvictionCandidate, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, cache_form, COALESCE(cache_path, ''), COALESCE(cache_size_bytes, 0)
		FROM photos
		WHERE cache_form != 0
		ORDER BY (last_viewed_at IS NULL), last_viewed_at ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.EvictionCandidate
	for rows.Next() {
		var ec domain.EvictionCandidate
		if err := rows.Scan(&ec.ID, &ec.Form, &ec.Path, &ec.SizeBytes); err != nil {
			return nil, err
		}
		out = append(out, ec)
	}
	return out, rows.Err()
}

// AttachBlob stores data in-catalog as the photo's cache payload, clearing
// any prior file payload in the same update (the two forms never co-exist).
// width/height are the post-transform dimensions CacheEngine just measured;
// nil leaves whatever width/height the provider's metadata already set.
func (c *SQLite) AttachBlob(ctx context.Context, photoID string, data []byte, mimeType string, width, height *int) error {
	if len(data) == 0 {
		return fmt.Errorf("attach blob for %s: empty payload", photoID)
	}
	_, err := c.db.ExecContext(ctx, `
		UPDATE photos SET
			cache_form = 1, cache_blob = ?, cache_mime = ?, cache_path = NULL,
			cache_size_bytes = ?, cache_cached_at = ?,
			width = COALESCE(?, width), height = COALESCE(?, height)
		WHERE id = ?
	`, data, mimeType, len(data), nowMs(), nullableInt(width), nullableInt(height), photoID)
	return err
}

// AttachFile records a filesystem-backed cache payload, clearing any prior
// blob payload in the same update. width/height behave as in AttachBlob.
func (c *SQLite) AttachFile(ctx context.Context, photoID string, path string, size int64, width, height *int) error {
	if size <= 0 {
		return fmt.Errorf("attach file for %s: non-positive size", photoID)
	}
	_, err := c.db.ExecContext(ctx, `
		UPDATE photos SET
			cache_form = 2, cache_path = ?, cache_blob = NULL, cache_mime = NULL,
			cache_size_bytes = ?, cache_cached_at = ?,
			width = COALESCE(?, width), height = COALESCE(?, height)
		WHERE id = ?
	`, path, size, nowMs(), nullableInt(width), nullableInt(height), photoID)
	return err
}

// ClearCache drops both cache forms for a photo without deleting its row.
func (c *SQLite) ClearCache(ctx context.Context, photoID string) error {
	_, err := c.db.ExecContext(ctx, `
		UPDATE photos SET
			cache_form = 0, cache_blob = NULL, cache_mime = NULL,
			cache_path = NULL, cache_size_bytes = NULL, cache_cached_at = NULL
		WHERE id = ?
	`, photoID)
	return err
}

// ReadPayload returns the photo row and a stream of whichever cache form is
// populated, for DisplayDispatcher to emit.
func (c *SQLite) ReadPayload(ctx context.Context, photoID string) (*domain.Photo, io.ReadCloser, error) {
	query := fmt.Sprintf(`SELECT %s FROM photos WHERE id = ?`, photoColumns)
	row := c.db.QueryRowContext(ctx, query, photoID)
	p, err := scanPhoto(row)
	if err != nil {
		return nil, nil, err
	}

	switch p.Cache.Form {
	case domain.CacheBlob:
		return p, io.NopCloser(newByteReader(p.Cache.Blob)), nil
	case domain.CacheFile:
		f, err := os.Open(p.Cache.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open cache file for %s: %w", photoID, err)
		}
		return p, f, nil
	default:
		return nil, nil, fmt.Errorf("photo %s has no cache payload", photoID)
	}
}

// CacheBytesTotal is the authoritative cache-size metric used for eviction (I3).
func (c *SQLite) CacheBytesTotal(ctx context.Context) (int64, error) {
	var total int64
	err := c.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(cache_size_bytes), 0) FROM photos WHERE cache_form != 0`).Scan(&total)
	return total, err
}

func (c *SQLite) CachedCount(ctx context.Context) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM photos WHERE cache_form != 0`).Scan(&n)
	return n, err
}

func (c *SQLite) TotalCount(ctx context.Context) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM photos`).Scan(&n)
	return n, err
}
