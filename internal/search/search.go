// Package search implements the hybrid query planner (component F): a
// keyword-only fast path for short, whitespace-free queries, and a full
// path that fuses dense-vector and keyword candidates by reciprocal-rank
// before reshaping scores against status, evidence, and kind signals.
package search

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/sl4m3/ledgermind/internal/storage/sqlite"
	"github.com/sl4m3/ledgermind/internal/types"
	"github.com/sl4m3/ledgermind/internal/vector"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Mode gates which artifact statuses a search may surface.
type Mode string

const (
	// ModeStrict returns only the currently active decision per target.
	ModeStrict Mode = "strict"
	// ModeBalanced prefers active but allows superseded with a penalty.
	ModeBalanced Mode = "balanced"
	// ModeAudit returns every status, for historical reconstruction.
	ModeAudit Mode = "audit"
)

const (
	rrfK0                = 60
	fastPathMaxQueryLen  = 20
	defaultLimit         = 10
	candidateFanoutLimit = 200

	activeBonus         = 1.5
	supersededFactor    = 0.1
	deprecatedFactor    = 0.05
	humanAuthorityBonus = 0.2
	evidenceAlpha       = 0.3
	kindBonus           = 0.15
)

var (
	searchTracer    = otel.Tracer("github.com/sl4m3/ledgermind/internal/search")
	searchLatencyMs metric.Float64Histogram
)

func init() {
	m := otel.Meter("github.com/sl4m3/ledgermind/internal/search")
	searchLatencyMs, _ = m.Float64Histogram("ledgermind.search.latency_ms",
		metric.WithDescription("wall-clock duration of a Search call in milliseconds"),
		metric.WithUnit("ms"))
}

// Result is a single ranked hit, hydrated with enough metadata for a
// caller to present a preview without a second round trip.
type Result struct {
	FID        string
	Title      string
	Target     string
	Namespace  string
	Kind       types.Kind
	Status     types.Status
	Score      float64
	Confidence float64
	Preview    string
}

// Response is the outcome of a Search call.
type Response struct {
	Results []Result
	// Fallback reports that the vector index was unavailable or empty and
	// the response was produced from keyword signal alone.
	Fallback bool
}

// ContentReader is the minimal content-store surface search needs to
// build previews; satisfied by store.Store.
type ContentReader interface {
	Read(relativePath string) ([]byte, error)
}

// Searcher answers ranked queries over the metadata index and vector
// index, hydrating previews from the content artifact store.
type Searcher struct {
	meta     *sqlite.Storage
	vec      *vector.Index
	artifact ContentReader
}

// New builds a Searcher over already-open backends.
func New(meta *sqlite.Storage, vec *vector.Index, artifact ContentReader) *Searcher {
	return &Searcher{meta: meta, vec: vec, artifact: artifact}
}

// Search ranks artifacts matching query under mode, returning at most
// limit results (defaultLimit if limit <= 0).
func (s *Searcher) Search(ctx context.Context, query string, mode Mode, limit int) (resp *Response, err error) {
	ctx, span := searchTracer.Start(ctx, "search.search", traceAttrs(mode, limit))
	start := time.Now()
	defer func() {
		searchLatencyMs.Record(ctx, float64(time.Since(start).Microseconds())/1000,
			metric.WithAttributes(attribute.String("mode", string(mode))))
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if limit <= 0 {
		limit = defaultLimit
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return &Response{}, nil
	}

	if isFastPath(query) {
		return s.keywordOnlyResponse(ctx, query, mode, limit, false)
	}

	vecHits, err := s.vec.Search(ctx, query, clampFanout(4*limit))
	if err != nil || len(vecHits) == 0 {
		return s.keywordOnlyResponse(ctx, query, mode, limit, true)
	}

	keyHits, err := s.keywordCandidates(ctx, query, mode, clampFanout(4*limit))
	if err != nil {
		return nil, fmt.Errorf("search: keyword query: %w", err)
	}

	fused := fuseRRF(vecHits, keyHits)
	rows, err := s.hydrateRows(ctx, fused, keyHits)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(fused))
	for fid, score := range fused {
		row, ok := rows[fid]
		if !ok {
			continue
		}
		r, rerr := s.reshapeOne(ctx, row, score, mode)
		if rerr != nil {
			return nil, rerr
		}
		results = append(results, r)
	}
	results = filterByMode(results, mode)
	sortResults(results, rows)
	if len(results) > limit {
		results = results[:limit]
	}
	if err := s.hydratePreviews(results); err != nil {
		return nil, err
	}
	if err := s.bumpHits(ctx, results); err != nil {
		return nil, err
	}
	return &Response{Results: results}, nil
}

func traceAttrs(mode Mode, limit int) trace.SpanStartOption {
	return trace.WithAttributes(
		attribute.String("mode", string(mode)),
		attribute.Int("limit", limit),
	)
}

// isFastPath reports whether query qualifies for the keyword-only path:
// short and free of whitespace (a single token, likely an id or a narrow
// keyword lookup where vector recall adds little).
func isFastPath(query string) bool {
	return len(query) <= fastPathMaxQueryLen && !strings.ContainsAny(query, " \t\n")
}

func clampFanout(n int) int {
	if n > candidateFanoutLimit {
		return candidateFanoutLimit
	}
	if n < 1 {
		return 1
	}
	return n
}

// keywordOnlyResponse serves the fast path and the vector-unavailable
// fallback: keyword hits only, Fallback flagged per the caller's request.
func (s *Searcher) keywordOnlyResponse(ctx context.Context, query string, mode Mode, limit int, fallback bool) (*Response, error) {
	hits, err := s.keywordCandidates(ctx, query, mode, clampFanout(4*limit))
	if err != nil {
		return nil, fmt.Errorf("search: keyword query: %w", err)
	}
	results := make([]Result, 0, len(hits))
	for rank, h := range hits {
		score := 1.0 / float64(rrfK0+rank+1)
		r, err := s.reshapeOne(ctx, h.Row, score, mode)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	rows := make(map[string]sqlite.MetaRow, len(hits))
	for _, h := range hits {
		rows[h.Row.FID] = h.Row
	}
	results = filterByMode(results, mode)
	sortResults(results, rows)
	if len(results) > limit {
		results = results[:limit]
	}
	if err := s.hydratePreviews(results); err != nil {
		return nil, err
	}
	if err := s.bumpHits(ctx, results); err != nil {
		return nil, err
	}
	return &Response{Results: results, Fallback: fallback}, nil
}

// keywordCandidates returns keyword matches for query. strict and balanced
// modes defer to the metadata index's active-only full-text search; audit
// mode additionally scans non-active rows by substring match, since the
// full-text shadow index only covers active artifacts.
func (s *Searcher) keywordCandidates(ctx context.Context, query string, mode Mode, limit int) ([]sqlite.SearchHit, error) {
	hits, err := s.meta.KeywordSearch(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	if mode != ModeAudit {
		return hits, nil
	}
	seen := make(map[string]bool, len(hits))
	for _, h := range hits {
		seen[h.Row.FID] = true
	}
	terms := strings.Fields(strings.ToLower(query))
	rows, err := s.meta.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if row.Status == types.StatusActive || seen[row.FID] {
			continue
		}
		haystack := strings.ToLower(row.Title + " " + strings.Join(row.Keywords, " ") + " " + row.Content)
		matched := 0
		for _, t := range terms {
			if strings.Contains(haystack, t) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		hits = append(hits, sqlite.SearchHit{Row: row, Score: float64(matched) / float64(len(terms))})
	}
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// hydrateRows resolves a MetaRow for every fused fid not already carried
// by a keyword hit (i.e. fids that only the vector index surfaced).
func (s *Searcher) hydrateRows(ctx context.Context, fused map[string]float64, keyHits []sqlite.SearchHit) (map[string]sqlite.MetaRow, error) {
	rows := make(map[string]sqlite.MetaRow, len(fused))
	for _, h := range keyHits {
		rows[h.Row.FID] = h.Row
	}
	for fid := range fused {
		if _, ok := rows[fid]; ok {
			continue
		}
		row, err := s.meta.Get(ctx, fid)
		if err != nil {
			// A vector hit whose metadata row vanished (race with a purge
			// elsewhere) is dropped rather than failing the whole search.
			delete(fused, fid)
			continue
		}
		rows[fid] = row
	}
	return rows, nil
}

// fuseRRF computes reciprocal-rank fusion across the vector and keyword
// candidate lists: rrf(fid) = sum over sources of 1/(k0 + rank), rank
// 1-based within that source's list.
func fuseRRF(vecHits []vector.Hit, keyHits []sqlite.SearchHit) map[string]float64 {
	fused := make(map[string]float64, len(vecHits)+len(keyHits))
	for rank, h := range vecHits {
		fused[h.ID] += 1.0 / float64(rrfK0+rank+1)
	}
	for rank, h := range keyHits {
		fused[h.Row.FID] += 1.0 / float64(rrfK0+rank+1)
	}
	return fused
}

// reshapeOne applies the ranking policy's state and evidence signals to a
// candidate's base fused score.
func (s *Searcher) reshapeOne(ctx context.Context, row sqlite.MetaRow, baseScore float64, mode Mode) (Result, error) {
	score := baseScore
	switch row.Status {
	case types.StatusActive:
		score += activeBonus
	case types.StatusSuperseded:
		score *= supersededFactor
	case types.StatusDeprecated:
		score *= deprecatedFactor
	}
	if !strings.Contains(row.Context.Rationale, types.MCPMarker) {
		score += humanAuthorityBonus
	}
	score += kindAdjustment(row.Kind, mode)

	linkCount, _, err := s.meta.CountLinksForSemantic(ctx, row.FID)
	if err != nil {
		return Result{}, fmt.Errorf("search: count evidence links for %s: %w", row.FID, err)
	}
	score += evidenceBoost(linkCount)

	return Result{
		FID:        row.FID,
		Title:      row.Title,
		Target:     row.Target,
		Namespace:  row.Namespace,
		Kind:       row.Kind,
		Status:     row.Status,
		Score:      score,
		Confidence: row.Context.Confidence,
	}, nil
}

// evidenceBoost grows the evidence signal logarithmically, so link counts
// at the high end don't dominate the state/kind signals: tuned so 10
// links beats 0 links between otherwise-identical artifacts.
func evidenceBoost(linkCount int) float64 {
	return evidenceAlpha * math.Log1p(float64(linkCount))
}

func kindAdjustment(kind types.Kind, mode Mode) float64 {
	favorDecision := mode != ModeAudit
	isDecision := kind == types.KindDecision
	if isDecision == favorDecision {
		return kindBonus
	}
	return 0
}

func filterByMode(results []Result, mode Mode) []Result {
	if mode != ModeStrict {
		return results
	}
	out := results[:0]
	for _, r := range results {
		if r.Status == types.StatusActive {
			out = append(out, r)
		}
	}
	return out
}

// sortResults orders by score descending, then the edge-policy tie-break:
// confidence, then recency, then lexicographic fid. rows supplies the
// timestamp each Result's FID corresponds to.
func sortResults(results []Result, rows map[string]sqlite.MetaRow) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		ra, rb := rows[a.FID], rows[b.FID]
		if !ra.Timestamp.Equal(rb.Timestamp) {
			return ra.Timestamp.After(rb.Timestamp)
		}
		return a.FID < b.FID
	})
}

// hydratePreviews reads each result's content from the artifact store.
func (s *Searcher) hydratePreviews(results []Result) error {
	for i := range results {
		results[i].Preview = s.preview(results[i].FID)
	}
	return nil
}

func (s *Searcher) preview(fid string) string {
	data, err := s.artifact.Read("artifacts/" + fid + ".md")
	if err != nil {
		return ""
	}
	a, err := types.ParseArtifact(fid, data)
	if err != nil {
		return ""
	}
	const maxPreview = 200
	body := strings.TrimSpace(a.Content)
	if len(body) > maxPreview {
		return body[:maxPreview] + "..."
	}
	return body
}

// bumpHits increments the hit counter for every surfaced result.
func (s *Searcher) bumpHits(ctx context.Context, results []Result) error {
	for _, r := range results {
		if err := s.meta.IncrementHit(ctx, r.FID); err != nil {
			return fmt.Errorf("search: increment hit %s: %w", r.FID, err)
		}
	}
	return nil
}
