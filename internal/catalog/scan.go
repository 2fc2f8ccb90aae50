package catalog

import (
	"bytes"
	"database/sql"
	"time"

	"github.com/apex/log"

	"photoframe-sync/internal/domain"
)

const photoColumns = `
	id, provider_key, container_key, filename, creation_time,
	width, height, latitude, longitude, location_name, last_viewed_at,
	cache_form, cache_blob, cache_mime, cache_path, cache_size_bytes, cache_cached_at
`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPhoto(row rowScanner) (*domain.Photo, error) {
	var (
		p                   domain.Photo
		width, height       sql.NullInt64
		lat, lon            sql.NullFloat64
		locationName        sql.NullString
		lastViewedAt        sql.NullInt64
		form                domain.CacheForm
		blob                []byte
		mime, path          sql.NullString
		sizeBytes, cachedAt sql.NullInt64
	)

	if err := row.Scan(
		&p.ID, &p.ProviderKey, &p.ContainerKey, &p.Filename, &p.CreationTime,
		&width, &height, &lat, &lon, &locationName, &lastViewedAt,
		&form, &blob, &mime, &path, &sizeBytes, &cachedAt,
	); err != nil {
		return nil, err
	}

	if width.Valid {
		w := int(width.Int64)
		p.Width = &w
	}
	if height.Valid {
		h := int(height.Int64)
		p.Height = &h
	}
	if lat.Valid {
		v := lat.Float64
		p.Latitude = &v
	}
	if lon.Valid {
		v := lon.Float64
		p.Longitude = &v
	}
	if locationName.Valid {
		p.LocationName = &locationName.String
	}
	if lastViewedAt.Valid {
		v := lastViewedAt.Int64
		p.LastViewedAt = &v
	}

	p.Cache.Form = form
	if form == domain.CacheBlob {
		p.Cache.Blob = blob
		p.Cache.MimeType = mime.String
	}
	if form == domain.CacheFile {
		p.Cache.Path = path.String
	}
	if sizeBytes.Valid {
		p.Cache.SizeBytes = sizeBytes.Int64
	}
	if cachedAt.Valid {
		p.Cache.CachedAt = cachedAt.Int64
	}

	return &p, nil
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}

func newByteReader(b []byte) *bytes.Reader {
	return bytes.NewReader(b)
}

func logMarkViewedError(photoID string, err error) {
	log.WithError(err).WithField("photo_id", photoID).Warn("mark_viewed failed, ignoring per spec")
}
