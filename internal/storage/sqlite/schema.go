package sqlite

import "context"

// schemaStatements creates the logical schema:
// semantic_meta (the metadata index), episodic_events + event_links (the
// episodic log), and config (scalar key/value settings, including the
// reflection cursor and background worker gating timestamps).
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS semantic_meta (
		fid            TEXT PRIMARY KEY,
		target         TEXT NOT NULL,
		namespace      TEXT NOT NULL DEFAULT 'default',
		status         TEXT NOT NULL,
		kind           TEXT NOT NULL,
		timestamp      DATETIME NOT NULL,
		superseded_by  TEXT,
		title          TEXT NOT NULL,
		keywords       TEXT,
		content        TEXT,
		context_json   TEXT,
		hits           INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_semantic_meta_active
		ON semantic_meta(target, namespace)
		WHERE status = 'active'`,
	`CREATE INDEX IF NOT EXISTS idx_semantic_meta_target_ns ON semantic_meta(target, namespace)`,
	`CREATE INDEX IF NOT EXISTS idx_semantic_meta_status ON semantic_meta(status)`,

	`CREATE TABLE IF NOT EXISTS episodic_events (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		source       TEXT NOT NULL,
		kind         TEXT NOT NULL,
		content      TEXT,
		context_json TEXT,
		timestamp    DATETIME NOT NULL,
		status       TEXT NOT NULL DEFAULT 'active'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_episodic_events_status ON episodic_events(status)`,
	`CREATE INDEX IF NOT EXISTS idx_episodic_events_timestamp ON episodic_events(timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_episodic_events_dedup ON episodic_events(source, kind, content, timestamp)`,

	`CREATE TABLE IF NOT EXISTS event_links (
		event_id INTEGER NOT NULL,
		fid      TEXT NOT NULL,
		PRIMARY KEY (event_id, fid)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_event_links_event_id ON event_links(event_id)`,
	`CREATE INDEX IF NOT EXISTS idx_event_links_fid ON event_links(fid)`,

	`CREATE TABLE IF NOT EXISTS config (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
}

// fullTextStatements builds an FTS5 shadow index over title/keywords/content
// when the driver supports it. KeywordSearch falls back to a word-AND LIKE
// scan when this table is unavailable.
var fullTextStatements = []string{
	`CREATE VIRTUAL TABLE IF NOT EXISTS semantic_meta_fts USING fts5(
		fid UNINDEXED, title, keywords, content, content='semantic_meta', content_rowid='rowid'
	)`,
}

func (s *Storage) migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return wrapDBErrorf(err, "migrate: %s", stmt)
		}
	}
	// FTS5 may not be compiled into every SQLite build; degrade quietly to
	// the fallback scan path (a corrupt keyword index automatically
	// drops to the fallback scan path").
	s.ftsAvailable = true
	for _, stmt := range fullTextStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			s.ftsAvailable = false
			break
		}
	}
	return nil
}
