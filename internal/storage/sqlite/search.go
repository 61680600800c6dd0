package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/sl4m3/ledgermind/internal/types"
)

// SearchHit is a single keyword match, ranked by the FTS5 bm25 score when
// available or by a fixed score when running the fallback scan.
type SearchHit struct {
	Row   MetaRow
	Score float64
}

// KeywordSearch ranks active artifacts against query's whitespace-separated
// terms, searching title, keywords and content. It uses the FTS5 shadow
// index when available, degrading to a word-AND LIKE scan otherwise (see
// schema.go's ftsAvailable flag).
func (s *Storage) KeywordSearch(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	terms := strings.Fields(query)
	if len(terms) == 0 {
		return nil, nil
	}
	if s.ftsAvailable {
		hits, err := s.keywordSearchFTS(ctx, query, limit)
		if err == nil {
			return hits, nil
		}
		// A corrupt or unsupported FTS5 table degrades to the fallback scan
		// rather than failing the caller's search.
		s.ftsAvailable = false
	}
	return s.keywordSearchFallback(ctx, terms, limit)
}

func (s *Storage) keywordSearchFTS(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.fid, m.target, m.namespace, m.status, m.kind, m.timestamp, m.superseded_by,
		       m.title, m.keywords, m.content, m.context_json, m.hits, bm25(semantic_meta_fts) AS rank
		FROM semantic_meta_fts f
		JOIN semantic_meta m ON m.fid = f.fid
		WHERE semantic_meta_fts MATCH ? AND m.status = 'active'
		ORDER BY rank ASC
		LIMIT ?
	`, ftsQuery(query), limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []SearchHit
	for rows.Next() {
		row, rank, err := s.scanRowWithRank(rows)
		if err != nil {
			return nil, err
		}
		// bm25 is lower-is-better; invert so higher Score means a better match,
		// matching the fallback scan's convention.
		out = append(out, SearchHit{Row: row, Score: -rank})
	}
	return out, rows.Err()
}

func (s *Storage) scanRowWithRank(rows *sql.Rows) (MetaRow, float64, error) {
	var row MetaRow
	var status, kind, keywords, ctxJSON string
	var supersededBy sql.NullString
	var rank float64
	if err := rows.Scan(&row.FID, &row.Target, &row.Namespace, &status, &kind, &row.Timestamp,
		&supersededBy, &row.Title, &keywords, &row.Content, &ctxJSON, &row.Hits, &rank); err != nil {
		return row, 0, err
	}
	row.Status = types.Status(status)
	row.Kind = types.Kind(kind)
	row.Keywords = parseJSONStringArray(keywords)
	if supersededBy.Valid {
		row.SupersededBy = supersededBy.String
	}
	ec, err := decodeContextJSON(ctxJSON)
	if err != nil {
		return row, 0, err
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
	return row, rank, nil
}

// ftsQuery quotes query terms so punctuation in a title or rationale doesn't
// break FTS5's query syntax.
func ftsQuery(query string) string {
	terms := strings.Fields(query)
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " ")
}

// keywordSearchFallback performs a word-AND scan over title/keywords/content
// when FTS5 is unavailable: a row is kept only if it contains every term
// (case-insensitive), so every hit scores 1.
func (s *Storage) keywordSearchFallback(ctx context.Context, terms []string, limit int) ([]SearchHit, error) {
	rows, err := s.ListByFilter(ctx, Filter{Status: types.StatusActive})
	if err != nil {
		return nil, err
	}
	var out []SearchHit
	for _, row := range rows {
		haystack := strings.ToLower(row.Title + " " + strings.Join(row.Keywords, " ") + " " + row.Content)
		matched := 0
		for _, t := range terms {
			if strings.Contains(haystack, strings.ToLower(t)) {
				matched++
			}
		}
		if matched < len(terms) {
			continue
		}
		out = append(out, SearchHit{Row: row, Score: float64(matched) / float64(len(terms))})
	}
	sortHitsByScoreDesc(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortHitsByScoreDesc(hits []SearchHit) {
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].Score > hits[j-1].Score; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}
}
