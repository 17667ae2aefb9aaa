package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/desertthunder/polish/internal/models"
)

// TrackCache stores track metadata seen while fetching playlists.
//
// Rows are keyed by track URI; caching the same track again refreshes it in place.
// Entries older than the configured TTL are removed by [TrackCache.ClearExpired].
type TrackCache struct {
	db *sql.DB
}

// NewTrackCache creates a new TrackCache with the given database connection
func NewTrackCache(db *sql.DB) *TrackCache {
	return &TrackCache{db: db}
}

// Put caches items, skipping local tracks without a URI.
func (c *TrackCache) Put(ctx context.Context, items []models.Item, now time.Time) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO track_cache (uri, track_id, title, artists, album, release_date, duration_ms, cached_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(uri) DO UPDATE SET
			track_id = excluded.track_id,
			title = excluded.title,
			artists = excluded.artists,
			album = excluded.album,
			release_date = excluded.release_date,
			duration_ms = excluded.duration_ms,
			cached_at = excluded.cached_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare cache insert: %w", err)
	}
	defer stmt.Close()

	for _, it := range items {
		if it.URI == "" {
			continue
		}
		artists, err := json.Marshal(it.Artists)
		if err != nil {
			return fmt.Errorf("failed to encode artists: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, it.URI, it.ID, it.Title, string(artists), it.Album, it.ReleaseDate, it.DurationMS, now.UTC()); err != nil {
			return fmt.Errorf("failed to cache track %s: %w", it.URI, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cache: %w", err)
	}
	return nil
}

// Get returns the cached metadata for uri.
func (c *TrackCache) Get(ctx context.Context, uri string) (*models.Item, error) {
	var (
		it       models.Item
		artists  string
		cachedAt time.Time
	)
	err := c.db.QueryRowContext(ctx, `
		SELECT uri, track_id, title, artists, album, release_date, duration_ms, cached_at
		FROM track_cache WHERE uri = ?
	`, uri).Scan(&it.URI, &it.ID, &it.Title, &artists, &it.Album, &it.ReleaseDate, &it.DurationMS, &cachedAt)
	if err != nil {
		return nil, notFound(err, "cached track", uri)
	}
	if err := json.Unmarshal([]byte(artists), &it.Artists); err != nil {
		return nil, fmt.Errorf("failed to decode artists: %w", err)
	}
	return &it, nil
}

// Count returns the number of cached tracks.
func (c *TrackCache) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM track_cache`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count cached tracks: %w", err)
	}
	return n, nil
}

// ClearExpired deletes entries cached more than ttl before now.
func (c *TrackCache) ClearExpired(ctx context.Context, ttl time.Duration, now time.Time) (int64, error) {
	result, err := c.db.ExecContext(ctx, `DELETE FROM track_cache WHERE cached_at < ?`, now.Add(-ttl).UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to clear expired tracks: %w", err)
	}
	return result.RowsAffected()
}
