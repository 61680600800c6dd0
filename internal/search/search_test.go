package search

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/sl4m3/ledgermind/internal/storage/sqlite"
	"github.com/sl4m3/ledgermind/internal/store"
	"github.com/sl4m3/ledgermind/internal/types"
	"github.com/sl4m3/ledgermind/internal/vector"
)

func openTestStorage(t *testing.T) *sqlite.Storage {
	t.Helper()
	dir := t.TempDir()
	s, err := sqlite.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("sqlite.Open() error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func upsertRow(t *testing.T, s *sqlite.Storage, fid, target, title, content string, status types.Status, kind types.Kind, ts time.Time) {
	t.Helper()
	ctx := context.Background()
	row := sqlite.MetaRow{
		FID:       fid,
		Target:    target,
		Namespace: types.DefaultNamespace,
		Status:    status,
		Kind:      kind,
		Timestamp: ts,
		Title:     title,
		Content:   content,
		Context: types.Context{
			Title:     title,
			Target:    target,
			Namespace: types.DefaultNamespace,
			Status:    status,
			Rationale: "a rationale long enough to pass validation",
		},
	}
	if err := s.Upsert(ctx, row); err != nil {
		t.Fatalf("Upsert(%s) error: %v", fid, err)
	}
}

// erroringProvider always fails; it stands in for an offline/unreachable
// embedding backend so tests can confirm the fast path never calls it.
type erroringProvider struct{ dim int }

func (p erroringProvider) Dimension() int { return p.dim }
func (p erroringProvider) GetEmbedding(context.Context, string) ([]float32, error) {
	return nil, errors.New("embedding backend unreachable")
}

func TestSearchFastPathSkipsVector(t *testing.T) {
	s := openTestStorage(t)
	upsertRow(t, s, "fid00001", "db-choice", "postgres", "use postgres for storage", types.StatusActive, types.KindDecision, time.Now())
	vec := vector.NewIndex(erroringProvider{dim: 8}, 1)
	artifact, err := store.NewNoAuditStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewNoAuditStore() error: %v", err)
	}
	searcher := New(s, vec, artifact)

	resp, err := searcher.Search(context.Background(), "postgres", ModeBalanced, 10)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].FID != "fid00001" {
		t.Fatalf("Search() = %+v, want just fid00001", resp.Results)
	}
	if resp.Fallback {
		t.Fatalf("Fallback = true on fast path, want false")
	}
}

func TestSearchFallsBackWhenVectorEmpty(t *testing.T) {
	s := openTestStorage(t)
	upsertRow(t, s, "fid00001", "db-choice", "use postgres", "decided to use postgres for storage", types.StatusActive, types.KindDecision, time.Now())
	vec := vector.NewIndex(vector.NewMockProvider(8), 1) // never populated
	artifact, err := store.NewNoAuditStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewNoAuditStore() error: %v", err)
	}
	searcher := New(s, vec, artifact)

	resp, err := searcher.Search(context.Background(), "postgres storage", ModeBalanced, 10)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if !resp.Fallback {
		t.Fatalf("Fallback = false, want true when vector index is empty")
	}
	if len(resp.Results) != 1 || resp.Results[0].FID != "fid00001" {
		t.Fatalf("Search() = %+v, want just fid00001", resp.Results)
	}
}

func TestSearchStrictModeDropsNonActive(t *testing.T) {
	s := openTestStorage(t)
	now := time.Now()
	upsertRow(t, s, "fid00001", "db-choice", "use postgres", "decided to use postgres", types.StatusSuperseded, types.KindDecision, now.Add(-time.Hour))
	upsertRow(t, s, "fid00002", "db-choice", "use cockroachdb", "decided to use cockroachdb instead", types.StatusActive, types.KindDecision, now)
	vec := vector.NewIndex(vector.NewMockProvider(8), 1)
	ctx := context.Background()
	if err := vec.AddDocuments(ctx, []vector.Document{
		{ID: "fid00001", Content: "use postgres decided to use postgres"},
		{ID: "fid00002", Content: "use cockroachdb decided to use cockroachdb instead"},
	}); err != nil {
		t.Fatalf("AddDocuments() error: %v", err)
	}
	artifact, err := store.NewNoAuditStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewNoAuditStore() error: %v", err)
	}
	searcher := New(s, vec, artifact)

	resp, err := searcher.Search(ctx, "postgres cockroachdb database", ModeStrict, 10)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	for _, r := range resp.Results {
		if r.Status != types.StatusActive {
			t.Fatalf("strict mode returned non-active result %+v", r)
		}
	}
}

func TestSearchRankingPrefersActiveOverSuperseded(t *testing.T) {
	s := openTestStorage(t)
	now := time.Now()
	upsertRow(t, s, "fid00001", "db-choice", "use postgres", "decided to use postgres for storage", types.StatusSuperseded, types.KindDecision, now.Add(-time.Hour))
	upsertRow(t, s, "fid00002", "db-choice", "use cockroachdb", "decided to use cockroachdb for storage", types.StatusActive, types.KindDecision, now)
	vec := vector.NewIndex(vector.NewMockProvider(8), 1)
	ctx := context.Background()
	if err := vec.AddDocuments(ctx, []vector.Document{
		{ID: "fid00001", Content: "use postgres decided to use postgres for storage"},
		{ID: "fid00002", Content: "use cockroachdb decided to use cockroachdb for storage"},
	}); err != nil {
		t.Fatalf("AddDocuments() error: %v", err)
	}
	artifact, err := store.NewNoAuditStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewNoAuditStore() error: %v", err)
	}
	searcher := New(s, vec, artifact)

	resp, err := searcher.Search(ctx, "storage database choice", ModeBalanced, 10)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(resp.Results) < 2 {
		t.Fatalf("Search() returned %d results, want at least 2", len(resp.Results))
	}
	var activeRank, supersededRank = -1, -1
	for i, r := range resp.Results {
		if r.FID == "fid00002" {
			activeRank = i
		}
		if r.FID == "fid00001" {
			supersededRank = i
		}
	}
	if activeRank < 0 || supersededRank < 0 {
		t.Fatalf("missing expected fids in results: %+v", resp.Results)
	}
	if activeRank > supersededRank {
		t.Fatalf("active result ranked below superseded: %+v", resp.Results)
	}
}

func TestSearchIncrementsHitCounters(t *testing.T) {
	s := openTestStorage(t)
	upsertRow(t, s, "fid00001", "db-choice", "use postgres", "decided to use postgres for storage", types.StatusActive, types.KindDecision, time.Now())
	vec := vector.NewIndex(vector.NewMockProvider(8), 1)
	artifact, err := store.NewNoAuditStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewNoAuditStore() error: %v", err)
	}
	searcher := New(s, vec, artifact)

	if _, err := searcher.Search(context.Background(), "postgres", ModeBalanced, 10); err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	row, err := s.Get(context.Background(), "fid00001")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if row.Hits != 1 {
		t.Fatalf("Hits = %d, want 1", row.Hits)
	}
}
