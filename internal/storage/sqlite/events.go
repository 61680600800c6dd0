package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sl4m3/ledgermind/internal/types"
)

// Append inserts event into the episodic log, returning its assigned id.
// An exact repeat of (source, kind, content, timestamp) is collapsed onto
// the existing row instead of creating a duplicate; repeats whose timestamps
// differ, even within the same millisecond, are stored as separate rows.
func (s *Storage) Append(ctx context.Context, e *types.Event) (int64, error) {
	ctxJSON, err := json.Marshal(e.Context)
	if err != nil {
		return 0, fmt.Errorf("append event: encode context: %w", err)
	}

	var existing int64
	err = s.db.QueryRowContext(ctx, `
		SELECT id FROM episodic_events
		WHERE source = ? AND kind = ? AND content = ? AND timestamp = ?
	`, string(e.Source), string(e.Kind), e.Content, e.Timestamp).Scan(&existing)
	switch {
	case err == nil:
		return existing, nil
	case err != sql.ErrNoRows:
		return 0, wrapDBError("append event: dedup check", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO episodic_events (source, kind, content, context_json, timestamp, status)
		VALUES (?, ?, ?, ?, ?, 'active')
	`, string(e.Source), string(e.Kind), e.Content, string(ctxJSON), e.Timestamp)
	if err != nil {
		return 0, wrapDBError("append event", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, wrapDBError("append event: last insert id", err)
	}
	return id, nil
}

// LinkToSemantic records eventID as evidence for fid. Linked events are
// immune to decay (see types.Event.IsLinked).
func (s *Storage) LinkToSemantic(ctx context.Context, eventID int64, fid string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO event_links (event_id, fid) VALUES (?, ?)
		ON CONFLICT (event_id, fid) DO NOTHING
	`, eventID, fid)
	return wrapDBError("link event to artifact", err)
}

// EventQuery narrows Query to a status/kind/time-window combination; zero
// values are wildcards, and a Limit of zero or less means "no limit".
type EventQuery struct {
	Status EventStatus
	Kind   string
	Since  time.Time
	Limit  int
}

// EventStatus mirrors types.EventStatus to keep this file import-light in
// callers that only need the query filter.
type EventStatus = types.EventStatus

func scanEventRow(rows *sql.Rows) (types.Event, error) {
	var e types.Event
	var source, kind, status, ctxJSON string
	if err := rows.Scan(&e.ID, &source, &kind, &e.Content, &ctxJSON, &e.Timestamp, &status); err != nil {
		return e, err
	}
	e.Source = types.Source(source)
	e.Kind = types.EventKind(kind)
	e.Status = types.EventStatus(status)
	if ctxJSON != "" {
		if err := json.Unmarshal([]byte(ctxJSON), &e.Context); err != nil {
			return e, err
		}
	}
	return e, nil
}

// Query returns episodic events matching q, newest first.
func (s *Storage) Query(ctx context.Context, q EventQuery) ([]types.Event, error) {
	query := `SELECT id, source, kind, content, context_json, timestamp, status FROM episodic_events WHERE 1=1`
	var args []any
	if q.Status != "" {
		query += " AND status = ?"
		args = append(args, string(q.Status))
	}
	if q.Kind != "" {
		query += " AND kind = ?"
		args = append(args, q.Kind)
	}
	if !q.Since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, q.Since)
	}
	query += " ORDER BY timestamp DESC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("query events", err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.Event
	for rows.Next() {
		e, err := scanEventRow(rows)
		if err != nil {
			return nil, wrapDBError("scan event row", err)
		}
		linked, err := s.linkedFIDs(ctx, e.ID)
		if err != nil {
			return nil, err
		}
		e.LinkedID = linked
		out = append(out, e)
	}
	return out, wrapDBError("iterate events", rows.Err())
}

func (s *Storage) linkedFIDs(ctx context.Context, eventID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT fid FROM event_links WHERE event_id = ?`, eventID)
	if err != nil {
		return nil, wrapDBError("query event links", err)
	}
	defer func() { _ = rows.Close() }()
	var out []string
	for rows.Next() {
		var fid string
		if err := rows.Scan(&fid); err != nil {
			return nil, wrapDBError("scan event link", err)
		}
		out = append(out, fid)
	}
	return out, wrapDBError("iterate event links", rows.Err())
}

// LinkedEventIDs returns the ids of every event citing fid as evidence, the
// reverse lookup of linkedFIDs, used when an artifact's own evidence set
// needs to be carried onto a derived artifact (e.g. a merge proposal's
// suggested predecessors).
func (s *Storage) LinkedEventIDs(ctx context.Context, fid string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT event_id FROM event_links WHERE fid = ?`, fid)
	if err != nil {
		return nil, wrapDBError("query linked event ids", err)
	}
	defer func() { _ = rows.Close() }()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, wrapDBError("scan linked event id", err)
		}
		out = append(out, id)
	}
	return out, wrapDBError("iterate linked event ids", rows.Err())
}

// CountLinksForSemantic returns how many distinct events cite fid as
// evidence, and the timestamp of the most recent citation, used by ranking's
// evidence boost.
func (s *Storage) CountLinksForSemantic(ctx context.Context, fid string) (int, time.Time, error) {
	var count int
	var latest sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), MAX(e.timestamp)
		FROM event_links l JOIN episodic_events e ON e.id = l.event_id
		WHERE l.fid = ?
	`, fid).Scan(&count, &latest)
	if err != nil {
		return 0, time.Time{}, wrapDBError("count links", err)
	}
	if latest.Valid {
		return count, latest.Time, nil
	}
	return count, time.Time{}, nil
}

// MarkArchived flips the given event ids to the archived status without
// deleting them, the first stage of decay for unlinked events.
func (s *Storage) MarkArchived(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapDBError("mark archived: begin", err)
	}
	defer func() { _ = tx.Rollback() }()
	stmt, err := tx.PrepareContext(ctx, `UPDATE episodic_events SET status = 'archived' WHERE id = ?`)
	if err != nil {
		return wrapDBError("mark archived: prepare", err)
	}
	defer func() { _ = stmt.Close() }()
	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return wrapDBError("mark archived: exec", err)
		}
	}
	return wrapDBError("mark archived: commit", tx.Commit())
}

// PhysicalPrune permanently removes the given archived event ids and any
// links they hold, the final stage of decay.
func (s *Storage) PhysicalPrune(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapDBError("prune events: begin", err)
	}
	defer func() { _ = tx.Rollback() }()
	delLinks, err := tx.PrepareContext(ctx, `DELETE FROM event_links WHERE event_id = ?`)
	if err != nil {
		return wrapDBError("prune events: prepare links", err)
	}
	defer func() { _ = delLinks.Close() }()
	delEvents, err := tx.PrepareContext(ctx, `DELETE FROM episodic_events WHERE id = ?`)
	if err != nil {
		return wrapDBError("prune events: prepare events", err)
	}
	defer func() { _ = delEvents.Close() }()
	for _, id := range ids {
		if _, err := delLinks.ExecContext(ctx, id); err != nil {
			return wrapDBError("prune events: delete links", err)
		}
		if _, err := delEvents.ExecContext(ctx, id); err != nil {
			return wrapDBError("prune events: delete event", err)
		}
	}
	return wrapDBError("prune events: commit", tx.Commit())
}

// ArchivableIDs returns the ids of active, unlinked events older than before,
// candidates for MarkArchived.
func (s *Storage) ArchivableIDs(ctx context.Context, before time.Time, limit int) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id FROM episodic_events e
		WHERE e.status = 'active' AND e.timestamp < ?
		AND NOT EXISTS (SELECT 1 FROM event_links l WHERE l.event_id = e.id)
		ORDER BY e.timestamp ASC
		LIMIT ?
	`, before, limit)
	if err != nil {
		return nil, wrapDBError("find archivable events", err)
	}
	defer func() { _ = rows.Close() }()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, wrapDBError("scan archivable id", err)
		}
		out = append(out, id)
	}
	return out, wrapDBError("iterate archivable events", rows.Err())
}

// PrunableIDs returns archived event ids older than before, candidates for
// PhysicalPrune.
func (s *Storage) PrunableIDs(ctx context.Context, before time.Time, limit int) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM episodic_events WHERE status = 'archived' AND timestamp < ? ORDER BY timestamp ASC LIMIT ?
	`, before, limit)
	if err != nil {
		return nil, wrapDBError("find prunable events", err)
	}
	defer func() { _ = rows.Close() }()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, wrapDBError("scan prunable id", err)
		}
		out = append(out, id)
	}
	return out, wrapDBError("iterate prunable events", rows.Err())
}
