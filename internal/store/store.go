// Package store persists the set of videos ever seen and the registry of
// monitored channels. It is the source of truth for deduplication: a video id
// present here will never be notified again.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

var (
	// ErrChannelExists is returned by AddChannel when the id is already registered.
	ErrChannelExists = errors.New("channel already exists")
	// ErrChannelNotFound is returned by RemoveChannel for an unknown id.
	ErrChannelNotFound = errors.New("channel not found")
)

// StorageError wraps any I/O failure from the underlying database. Callers
// treat it as non-fatal and retry on the next cycle.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("store: %s: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// Video is a single piece of content published by a channel. Rows are
// immutable once recorded; RecordAll is the only writer.
type Video struct {
	ID          string
	ChannelID   string
	Title       string
	URL         string
	PublishedAt time.Time
	FirstSeenAt time.Time
}

// Channel is a monitored content source with a stable external id.
type Channel struct {
	ID          string
	DisplayName string
	AddedAt     time.Time
}

// Store wraps a SQLite database holding seen videos, the channel registry and
// per-channel check cursors.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at dbPath and ensures the
// schema exists. SQLite prefers a single writer, so the pool is capped at one
// connection; concurrent per-channel commits serialize here.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, storageErr("mkdir", err)
	}
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=foreign_keys(ON)", dbPath))
	if err != nil {
		return nil, storageErr("open", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA busy_timeout = 5000")
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, storageErr("init schema", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Has reports whether a video id has already been recorded.
func (s *Store) Has(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM videos WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, storageErr("has", err)
	}
	return true, nil
}

// RecordAll inserts the given videos inside a single transaction and returns
// the subset that was actually inserted, in input order. Duplicates, both
// against existing rows and within the batch, are skipped without error.
// Either the whole batch commits or none of it does.
func (s *Store) RecordAll(ctx context.Context, videos []Video) ([]Video, error) {
	if len(videos) == 0 {
		return nil, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("begin", err)
	}
	defer tx.Rollback()

	var inserted []Video
	for _, v := range videos {
		if v.FirstSeenAt.IsZero() {
			v.FirstSeenAt = time.Now().UTC()
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO videos (id, channel_id, title, url, published_at, first_seen_at)
             VALUES (?, ?, ?, ?, ?, ?)
             ON CONFLICT(id) DO NOTHING`,
			v.ID, v.ChannelID, v.Title, v.URL, fmtTime(v.PublishedAt), fmtTime(v.FirstSeenAt))
		if err != nil {
			return nil, storageErr("insert video", err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			inserted = append(inserted, v)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, storageErr("commit", err)
	}
	return inserted, nil
}

// RecentVideos returns videos first seen at or after since, newest first.
// limit <= 0 means no limit.
func (s *Store) RecentVideos(ctx context.Context, since time.Time, limit int) ([]Video, error) {
	q := `SELECT id, channel_id, title, url, published_at, first_seen_at
          FROM videos WHERE first_seen_at >= ? ORDER BY first_seen_at DESC`
	args := []any{fmtTime(since.UTC())}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, storageErr("recent videos", err)
	}
	defer rows.Close()
	var out []Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, storageErr("scan video", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// AddChannel registers a channel. The id must not already be present.
func (s *Store) AddChannel(ctx context.Context, ch Channel) error {
	if ch.AddedAt.IsZero() {
		ch.AddedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO channels (id, display_name, added_at) VALUES (?, ?, ?)
         ON CONFLICT(id) DO NOTHING`,
		ch.ID, ch.DisplayName, fmtTime(ch.AddedAt))
	if err != nil {
		return storageErr("add channel", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrChannelExists
	}
	return nil
}

// RemoveChannel deletes a channel and its check cursor. Videos already
// recorded for it stay behind so they can never re-notify.
func (s *Store) RemoveChannel(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM channels WHERE id = ?`, id)
	if err != nil {
		return storageErr("remove channel", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrChannelNotFound
	}
	_, _ = s.db.ExecContext(ctx, `DELETE FROM check_cursor WHERE channel_id = ?`, id)
	return nil
}

// Channels lists registered channels in insertion order.
func (s *Store) Channels(ctx context.Context) ([]Channel, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, display_name, added_at FROM channels ORDER BY added_at, rowid`)
	if err != nil {
		return nil, storageErr("list channels", err)
	}
	defer rows.Close()
	var out []Channel
	for rows.Next() {
		var ch Channel
		var added string
		if err := rows.Scan(&ch.ID, &ch.DisplayName, &added); err != nil {
			return nil, storageErr("scan channel", err)
		}
		ch.AddedAt = parseTime(added)
		out = append(out, ch)
	}
	return out, rows.Err()
}

// Reconcile merges an externally-fetched subscription list into the registry.
// Every external channel not yet present is added; local channels missing from
// the external list are left untouched, so a manual addition is never removed
// by a sync.
func (s *Store) Reconcile(ctx context.Context, external []Channel) (added, unchanged []Channel, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, storageErr("begin", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, ch := range external {
		if ch.AddedAt.IsZero() {
			ch.AddedAt = now
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO channels (id, display_name, added_at) VALUES (?, ?, ?)
             ON CONFLICT(id) DO NOTHING`,
			ch.ID, ch.DisplayName, fmtTime(ch.AddedAt))
		if err != nil {
			return nil, nil, storageErr("reconcile insert", err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			added = append(added, ch)
		} else {
			unchanged = append(unchanged, ch)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, storageErr("commit", err)
	}
	return added, unchanged, nil
}

// LastChecked returns the check cursor for a channel, if one exists. The
// cursor only throttles fetch frequency; dedup never depends on it.
func (s *Store) LastChecked(ctx context.Context, channelID string) (time.Time, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT last_checked_at FROM check_cursor WHERE channel_id = ?`, channelID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, storageErr("last checked", err)
	}
	return parseTime(raw), true, nil
}

// TouchChecked records that a channel was checked at t.
func (s *Store) TouchChecked(ctx context.Context, channelID string, t time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO check_cursor (channel_id, last_checked_at) VALUES (?, ?)
         ON CONFLICT(channel_id) DO UPDATE SET last_checked_at = excluded.last_checked_at`,
		channelID, fmtTime(t.UTC()))
	if err != nil {
		return storageErr("touch checked", err)
	}
	return nil
}

func scanVideo(rows *sql.Rows) (Video, error) {
	var v Video
	var url sql.NullString
	var published, firstSeen string
	if err := rows.Scan(&v.ID, &v.ChannelID, &v.Title, &url, &published, &firstSeen); err != nil {
		return Video{}, err
	}
	v.URL = url.String
	v.PublishedAt = parseTime(published)
	v.FirstSeenAt = parseTime(firstSeen)
	return v, nil
}

// Timestamps are stored as RFC 3339 text so they sort lexically and survive
// round trips without driver-specific conversions.
func fmtTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
