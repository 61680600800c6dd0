package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sl4m3/ledgermind/internal/types"
)

// MetaRow is the logical row shape of semantic_meta.
type MetaRow struct {
	FID          string
	Target       string
	Namespace    string
	Status       types.Status
	Kind         types.Kind
	Timestamp    time.Time
	SupersededBy string
	Title        string
	Keywords     []string
	Content      string
	Context      types.Context
	Hits         int
}

// extraContext carries the Context fields not already represented by their
// own semantic_meta column, persisted as context_json.
type extraContext struct {
	Rationale  string         `json:"rationale"`
	Supersedes []string       `json:"supersedes,omitempty"`
	DecisionID string         `json:"decision_id,omitempty"`
	Phase      types.Phase    `json:"phase,omitempty"`
	Vitality   types.Vitality `json:"vitality,omitempty"`
	Confidence float64        `json:"confidence,omitempty"`
	Extra      map[string]any `json:"extra,omitempty"`
}

func encodeContextJSON(c types.Context) (string, error) {
	ec := extraContext{
		Rationale:  c.Rationale,
		Supersedes: c.Supersedes,
		DecisionID: c.DecisionID,
		Phase:      c.Phase,
		Vitality:   c.Vitality,
		Confidence: c.Confidence,
		Extra:      c.Extra,
	}
	data, err := json.Marshal(ec)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeContextJSON(s string) (extraContext, error) {
	var ec extraContext
	if s == "" {
		return ec, nil
	}
	err := json.Unmarshal([]byte(s), &ec)
	return ec, err
}

// RowFromArtifact builds the metadata index row for a freshly written artifact.
func RowFromArtifact(a *types.Artifact) MetaRow {
	return MetaRow{
		FID:          a.FID,
		Target:       a.Context.Target,
		Namespace:    a.Namespace(),
		Status:       a.Context.Status,
		Kind:         a.Kind,
		Timestamp:    a.Timestamp,
		SupersededBy: a.Context.SupersededBy,
		Title:        a.Context.Title,
		Keywords:     a.Context.Keywords,
		Content:      a.Content,
		Context:      a.Context,
		Hits:         0,
	}
}

// Upsert idempotently writes row, following any prior commit that produced
// the corresponding artifact. It fails with ErrConflict if
// the row would create a second active decision for (target, namespace) —
// enforced by the database's partial unique index.
func (s *Storage) Upsert(ctx context.Context, row MetaRow) error {
	ctxJSON, err := encodeContextJSON(row.Context)
	if err != nil {
		return fmt.Errorf("upsert %s: encode context: %w", row.FID, err)
	}
	namespace := row.Namespace
	if namespace == "" {
		namespace = types.DefaultNamespace
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO semantic_meta (fid, target, namespace, status, kind, timestamp, superseded_by, title, keywords, content, context_json, hits)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, COALESCE((SELECT hits FROM semantic_meta WHERE fid = ?), 0))
		ON CONFLICT (fid) DO UPDATE SET
			target = excluded.target,
			namespace = excluded.namespace,
			status = excluded.status,
			kind = excluded.kind,
			timestamp = excluded.timestamp,
			superseded_by = excluded.superseded_by,
			title = excluded.title,
			keywords = excluded.keywords,
			content = excluded.content,
			context_json = excluded.context_json
	`, row.FID, row.Target, namespace, string(row.Status), string(row.Kind), row.Timestamp,
		nullableString(row.SupersededBy), row.Title, formatJSONStringArray(row.Keywords), row.Content, ctxJSON, row.FID)
	if err != nil {
		if isUniqueViolation(err, "idx_semantic_meta_active") {
			return fmt.Errorf("upsert %s: %w", row.FID, ErrConflict)
		}
		return wrapDBErrorf(err, "upsert %s", row.FID)
	}
	if err := s.syncFTS(ctx, row); err != nil {
		return err
	}
	return nil
}

func (s *Storage) syncFTS(ctx context.Context, row MetaRow) error {
	if !s.ftsAvailable {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO semantic_meta_fts(rowid, fid, title, keywords, content)
		SELECT rowid, fid, title, keywords, content FROM semantic_meta WHERE fid = ?
		ON CONFLICT (rowid) DO UPDATE SET title = excluded.title, keywords = excluded.keywords, content = excluded.content
	`, row.FID)
	if err != nil {
		// FTS5 may reject the upsert-on-conflict idiom on some builds; degrade
		// to the fallback scan rather than failing the metadata write.
		s.ftsAvailable = false
		return nil
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error, indexHint string) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") && (indexHint == "" || strings.Contains(msg, indexHint) || strings.Contains(msg, "semantic_meta"))
}

// GetActiveFID returns the unique active fid for (target, namespace), or ""
// if none exists.
func (s *Storage) GetActiveFID(ctx context.Context, target, namespace string) (string, error) {
	if namespace == "" {
		namespace = types.DefaultNamespace
	}
	var fid string
	err := s.db.QueryRowContext(ctx, `
		SELECT fid FROM semantic_meta WHERE target = ? AND namespace = ? AND status = 'active'
	`, target, namespace).Scan(&fid)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return fid, wrapDBError("get active fid", err)
}

func (s *Storage) scanRow(rows *sql.Rows) (MetaRow, error) {
	var row MetaRow
	var status, kind, keywords, ctxJSON string
	var supersededBy sql.NullString
	if err := rows.Scan(&row.FID, &row.Target, &row.Namespace, &status, &kind, &row.Timestamp,
		&supersededBy, &row.Title, &keywords, &row.Content, &ctxJSON, &row.Hits); err != nil {
		return row, err
	}
	row.Status = types.Status(status)
	row.Kind = types.Kind(kind)
	row.Keywords = parseJSONStringArray(keywords)
	if supersededBy.Valid {
		row.SupersededBy = supersededBy.String
	}
	ec, err := decodeContextJSON(ctxJSON)
	if err != nil {
		return row, err
	}
	row.Context = types.Context{
		Title:        row.Title,
		Target:       row.Target,
		Namespace:    row.Namespace,
		Status:       row.Status,
		Rationale:    ec.Rationale,
		Keywords:     row.Keywords,
		SupersededBy: row.SupersededBy,
		Supersedes:   ec.Supersedes,
		DecisionID:   ec.DecisionID,
		Phase:        ec.Phase,
		Vitality:     ec.Vitality,
		Confidence:   ec.Confidence,
		Extra:        ec.Extra,
	}
	return row, nil
}

// ListAll returns every metadata row, ordered by timestamp.
func (s *Storage) ListAll(ctx context.Context) ([]MetaRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT fid, target, namespace, status, kind, timestamp, superseded_by, title, keywords, content, context_json, hits
		FROM semantic_meta ORDER BY timestamp ASC
	`)
	if err != nil {
		return nil, wrapDBError("list all", err)
	}
	defer func() { _ = rows.Close() }()
	var out []MetaRow
	for rows.Next() {
		row, err := s.scanRow(rows)
		if err != nil {
			return nil, wrapDBError("scan metadata row", err)
		}
		out = append(out, row)
	}
	return out, wrapDBError("iterate metadata rows", rows.Err())
}

// Filter narrows ListByFilter to a target/namespace/status/kind combination;
// zero values are wildcards.
type Filter struct {
	Target    string
	Namespace string
	Status    types.Status
	Kind      types.Kind
}

// ListByFilter returns metadata rows matching f.
func (s *Storage) ListByFilter(ctx context.Context, f Filter) ([]MetaRow, error) {
	query := `SELECT fid, target, namespace, status, kind, timestamp, superseded_by, title, keywords, content, context_json, hits FROM semantic_meta WHERE 1=1`
	var args []any
	if f.Target != "" {
		query += " AND target = ?"
		args = append(args, f.Target)
	}
	if f.Namespace != "" {
		query += " AND namespace = ?"
		args = append(args, f.Namespace)
	}
	if f.Status != "" {
		query += " AND status = ?"
		args = append(args, string(f.Status))
	}
	if f.Kind != "" {
		query += " AND kind = ?"
		args = append(args, string(f.Kind))
	}
	query += " ORDER BY timestamp ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("list by filter", err)
	}
	defer func() { _ = rows.Close() }()
	var out []MetaRow
	for rows.Next() {
		row, err := s.scanRow(rows)
		if err != nil {
			return nil, wrapDBError("scan metadata row", err)
		}
		out = append(out, row)
	}
	return out, wrapDBError("iterate metadata rows", rows.Err())
}

// IncrementHit bumps the hit counter for fid, called by search on each
// result returned to a caller.
func (s *Storage) IncrementHit(ctx context.Context, fid string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE semantic_meta SET hits = hits + 1 WHERE fid = ?`, fid)
	return wrapDBError("increment hit", err)
}

// Delete removes a metadata row (used only by explicit admin purge, not by
// decay — decisions and proposals are never decayed).
func (s *Storage) Delete(ctx context.Context, fid string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM semantic_meta WHERE fid = ?`, fid)
	return wrapDBError("delete metadata row", err)
}

// Clear removes every metadata row. Used by rebuild/recovery paths only.
func (s *Storage) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM semantic_meta`)
	return wrapDBError("clear metadata", err)
}

// Get returns the single metadata row for fid.
func (s *Storage) Get(ctx context.Context, fid string) (MetaRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT fid, target, namespace, status, kind, timestamp, superseded_by, title, keywords, content, context_json, hits
		FROM semantic_meta WHERE fid = ?
	`, fid)
	if err != nil {
		return MetaRow{}, wrapDBError("get metadata row", err)
	}
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		return MetaRow{}, fmt.Errorf("get %s: %w", fid, ErrNotFound)
	}
	return s.scanRow(rows)
}
