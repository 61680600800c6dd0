package sqlite

import (
	"context"
	"database/sql"
	"strconv"
)

// Well-known config keys persisted in the config table. These back the
// background worker's cursors and gating timestamps, so they survive
// process restarts.
const (
	ConfigLastReflectionEventID = "last_reflection_event_id"
	ConfigLastDecayRunAt        = "last_decay_run_at"
	ConfigLastMergeRunAt        = "last_merge_run_at"
	ConfigLastGitGCTime         = "last_git_gc_time"
)

// GetConfig returns the value for key, or "" with ok=false if unset.
func (s *Storage) GetConfig(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM config WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrapDBError("get config", err)
	}
	return value, true, nil
}

// SetConfig upserts key=value.
func (s *Storage) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`, key, value)
	return wrapDBError("set config", err)
}

// DeleteConfig removes key, if present.
func (s *Storage) DeleteConfig(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM config WHERE key = ?`, key)
	return wrapDBError("delete config", err)
}

// GetAllConfig returns every stored key/value pair.
func (s *Storage) GetAllConfig(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM config`)
	if err != nil {
		return nil, wrapDBError("get all config", err)
	}
	defer func() { _ = rows.Close() }()
	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, wrapDBError("scan config row", err)
		}
		out[k] = v
	}
	return out, wrapDBError("iterate config rows", rows.Err())
}

// GetConfigInt64 reads key as an int64, returning fallback if unset or
// unparseable.
func (s *Storage) GetConfigInt64(ctx context.Context, key string, fallback int64) (int64, error) {
	v, ok, err := s.GetConfig(ctx, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback, nil
	}
	return n, nil
}

// SetConfigInt64 stores n under key.
func (s *Storage) SetConfigInt64(ctx context.Context, key string, n int64) error {
	return s.SetConfig(ctx, key, strconv.FormatInt(n, 10))
}
