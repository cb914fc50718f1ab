package store

import "database/sql"

// initSchema ensures the DB has the tables needed for video tracking.
func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS videos (
            id TEXT PRIMARY KEY,
            channel_id TEXT NOT NULL,
            title TEXT NOT NULL,
            url TEXT,
            published_at TEXT NOT NULL,
            first_seen_at TEXT NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS idx_videos_channel_id ON videos(channel_id)`,
		`CREATE INDEX IF NOT EXISTS idx_videos_first_seen_at ON videos(first_seen_at)`,
		`CREATE TABLE IF NOT EXISTS channels (
            id TEXT PRIMARY KEY,
            display_name TEXT NOT NULL,
            added_at TEXT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS check_cursor (
            channel_id TEXT PRIMARY KEY,
            last_checked_at TEXT NOT NULL
        )`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}
