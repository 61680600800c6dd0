package lifecycle

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sl4m3/ledgermind/internal/config"
	"github.com/sl4m3/ledgermind/internal/engine"
	"github.com/sl4m3/ledgermind/internal/registry"
	"github.com/sl4m3/ledgermind/internal/storage/sqlite"
	"github.com/sl4m3/ledgermind/internal/store"
	"github.com/sl4m3/ledgermind/internal/types"
	"github.com/sl4m3/ledgermind/internal/vector"
)

func newTestEnv(t *testing.T) (*engine.Coordinator, *sqlite.Storage, *vector.Index) {
	t.Helper()
	dir := t.TempDir()
	s, err := store.NewNoAuditStore(filepath.Join(dir, "artifacts"))
	if err != nil {
		t.Fatalf("NewNoAuditStore() error: %v", err)
	}
	meta, err := sqlite.Open(filepath.Join(dir, "meta.db"))
	if err != nil {
		t.Fatalf("sqlite.Open() error: %v", err)
	}
	t.Cleanup(func() { _ = meta.Close() })
	vec := vector.NewIndex(vector.NewMockProvider(8), 1)
	cfg := &config.Config{StoragePath: dir, TrustBoundary: config.TrustAgentWithIntent}
	coord := engine.New(cfg, s, meta, vec, registry.New(), nil)
	return coord, meta, vec
}

func appendEvent(t *testing.T, meta *sqlite.Storage, kind types.EventKind, content string, ts time.Time, eventContext map[string]any) int64 {
	t.Helper()
	id, err := meta.Append(context.Background(), &types.Event{
		Source:    types.SourceAgent,
		Kind:      kind,
		Content:   content,
		Context:   eventContext,
		Timestamp: ts,
	})
	if err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	return id
}

// TestDecayRetainsLinkedEvents confirms an event past the ttl that carries
// an evidence link is retained rather than archived.
func TestDecayRetainsLinkedEvents(t *testing.T) {
	coord, meta, _ := newTestEnv(t)
	ctx := context.Background()

	a, err := coord.RecordDecision(ctx, engine.RecordInput{
		Title: "use postgres", Target: "db-choice", Rationale: "mature tooling and team familiarity",
	})
	if err != nil {
		t.Fatalf("RecordDecision() error: %v", err)
	}

	old := time.Now().Add(-60 * 24 * time.Hour)
	linkedID := appendEvent(t, meta, types.EventTask, "evaluated postgres", old, nil)
	if err := meta.LinkToSemantic(ctx, linkedID, a.FID); err != nil {
		t.Fatalf("LinkToSemantic() error: %v", err)
	}
	unlinkedID := appendEvent(t, meta, types.EventTask, "unrelated task", old, nil)

	report, err := Decay(ctx, meta, 30*24*time.Hour, false)
	if err != nil {
		t.Fatalf("Decay() error: %v", err)
	}
	if report.RetainedByLink != 1 {
		t.Fatalf("RetainedByLink = %d, want 1", report.RetainedByLink)
	}
	if report.Archived != 1 {
		t.Fatalf("Archived = %d, want 1", report.Archived)
	}

	events, err := meta.Query(ctx, sqlite.EventQuery{})
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	byID := map[int64]types.Event{}
	for _, e := range events {
		byID[e.ID] = e
	}
	if byID[linkedID].Status != types.EventStatusActive {
		t.Fatalf("linked event status = %v, want active", byID[linkedID].Status)
	}
	if byID[unlinkedID].Status != types.EventStatusArchived {
		t.Fatalf("unlinked event status = %v, want archived", byID[unlinkedID].Status)
	}
}

func TestDecayDryRunDoesNotMutate(t *testing.T) {
	coord, meta, _ := newTestEnv(t)
	ctx := context.Background()
	_, err := coord.RecordDecision(ctx, engine.RecordInput{
		Title: "use postgres", Target: "db-choice", Rationale: "mature tooling and team familiarity",
	})
	if err != nil {
		t.Fatalf("RecordDecision() error: %v", err)
	}
	old := time.Now().Add(-60 * 24 * time.Hour)
	id := appendEvent(t, meta, types.EventTask, "stale task", old, nil)

	report, err := Decay(ctx, meta, 30*24*time.Hour, true)
	if err != nil {
		t.Fatalf("Decay() dry run error: %v", err)
	}
	if report.Archived != 1 || !report.DryRun {
		t.Fatalf("report = %+v, want Archived=1 DryRun=true", report)
	}

	events, err := meta.Query(ctx, sqlite.EventQuery{})
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	for _, e := range events {
		if e.ID == id && e.Status != types.EventStatusActive {
			t.Fatalf("dry run mutated event %d to status %v", id, e.Status)
		}
	}
}

// TestDetectMergesProposesAcrossDistinctTargets confirms two active
// decisions on distinct targets with near-identical content produce a merge
// proposal naming both as suggested_supersedes.
func TestDetectMergesProposesAcrossDistinctTargets(t *testing.T) {
	coord, meta, vec := newTestEnv(t)
	ctx := context.Background()

	a, err := coord.RecordDecision(ctx, engine.RecordInput{
		Title: "adopt redis for caching", Target: "cache-layer-a", Rationale: "low latency reads under load",
	})
	if err != nil {
		t.Fatalf("RecordDecision(a) error: %v", err)
	}
	b, err := coord.RecordDecision(ctx, engine.RecordInput{
		Title: "adopt redis for caching", Target: "cache-layer-b", Rationale: "low latency reads under load",
	})
	if err != nil {
		t.Fatalf("RecordDecision(b) error: %v", err)
	}

	rowA, err := meta.Get(ctx, a.FID)
	if err != nil {
		t.Fatalf("Get(a) error: %v", err)
	}
	rowB, err := meta.Get(ctx, b.FID)
	if err != nil {
		t.Fatalf("Get(b) error: %v", err)
	}
	queryText := rowA.Title + "\n" + rowA.Context.Rationale + "\n" + rowA.Content
	if err := vec.AddDocuments(ctx, []vector.Document{
		{ID: rowA.FID, Content: queryText},
		{ID: rowB.FID, Content: queryText},
	}); err != nil {
		t.Fatalf("AddDocuments() error: %v", err)
	}

	report, err := DetectMerges(ctx, coord, meta, vec, DefaultMergeThreshold)
	if err != nil {
		t.Fatalf("DetectMerges() error: %v", err)
	}
	if len(report.ProposalsCreated) != 1 {
		t.Fatalf("ProposalsCreated = %v, want exactly one", report.ProposalsCreated)
	}

	proposalRow, err := meta.Get(ctx, report.ProposalsCreated[0])
	if err != nil {
		t.Fatalf("Get(proposal) error: %v", err)
	}
	if proposalRow.Kind != types.KindProposal {
		t.Fatalf("kind = %v, want proposal", proposalRow.Kind)
	}
	suggested, _ := proposalRow.Context.Extra["suggested_supersedes"].([]any)
	if len(suggested) != 2 {
		t.Fatalf("suggested_supersedes = %v, want 2 entries", proposalRow.Context.Extra["suggested_supersedes"])
	}
}

func TestDetectMergesSkipsSelfPair(t *testing.T) {
	coord, meta, vec := newTestEnv(t)
	ctx := context.Background()

	a, err := coord.RecordDecision(ctx, engine.RecordInput{
		Title: "adopt redis", Target: "only-target", Rationale: "low latency reads under load",
	})
	if err != nil {
		t.Fatalf("RecordDecision() error: %v", err)
	}
	rowA, err := meta.Get(ctx, a.FID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	queryText := rowA.Title + "\n" + rowA.Context.Rationale + "\n" + rowA.Content
	if err := vec.AddDocuments(ctx, []vector.Document{{ID: rowA.FID, Content: queryText}}); err != nil {
		t.Fatalf("AddDocuments() error: %v", err)
	}

	report, err := DetectMerges(ctx, coord, meta, vec, DefaultMergeThreshold)
	if err != nil {
		t.Fatalf("DetectMerges() error: %v", err)
	}
	if len(report.ProposalsCreated) != 0 {
		t.Fatalf("ProposalsCreated = %v, want none for a lone decision", report.ProposalsCreated)
	}
}

// TestDistillCreatesProposalOnSuccessAndAdvancesCursor exercises trajectory
// distillation's exactly-once cursor semantics: a successful result event
// with a preceding task/call window produces one proposal, and a second
// pass over the same log produces none.
func TestDistillCreatesProposalOnSuccessAndAdvancesCursor(t *testing.T) {
	coord, meta, _ := newTestEnv(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	appendEvent(t, meta, types.EventTask, "open the migration ticket", base, map[string]any{"target": "migration-x"})
	appendEvent(t, meta, types.EventCall, "run schema diff", base.Add(time.Minute), map[string]any{"target": "migration-x"})
	appendEvent(t, meta, types.EventResult, "migration applied cleanly", base.Add(2*time.Minute), map[string]any{
		"success": true, "target": "migration-x",
	})

	report, err := Distill(ctx, coord, meta)
	if err != nil {
		t.Fatalf("Distill() first pass error: %v", err)
	}
	if report.EventsProcessed != 3 {
		t.Fatalf("EventsProcessed = %d, want 3", report.EventsProcessed)
	}
	if len(report.ProposalsCreated) != 1 {
		t.Fatalf("ProposalsCreated = %v, want exactly one", report.ProposalsCreated)
	}

	proposalRow, err := meta.Get(ctx, report.ProposalsCreated[0])
	if err != nil {
		t.Fatalf("Get(proposal) error: %v", err)
	}
	if proposalRow.Kind != types.KindProposal {
		t.Fatalf("kind = %v, want proposal", proposalRow.Kind)
	}
	steps, _ := proposalRow.Context.Extra["procedural.steps"].([]any)
	if len(steps) != 2 {
		t.Fatalf("procedural.steps = %v, want 2 entries", proposalRow.Context.Extra["procedural.steps"])
	}

	second, err := Distill(ctx, coord, meta)
	if err != nil {
		t.Fatalf("Distill() second pass error: %v", err)
	}
	if second.EventsProcessed != 0 || len(second.ProposalsCreated) != 0 {
		t.Fatalf("second pass = %+v, want no-op", second)
	}
}

func TestDistillIgnoresUnsuccessfulResult(t *testing.T) {
	coord, meta, _ := newTestEnv(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	appendEvent(t, meta, types.EventTask, "attempt deploy", base, map[string]any{"target": "deploy-x"})
	appendEvent(t, meta, types.EventResult, "deploy failed", base.Add(time.Minute), map[string]any{
		"success": false, "target": "deploy-x",
	})

	report, err := Distill(ctx, coord, meta)
	if err != nil {
		t.Fatalf("Distill() error: %v", err)
	}
	if len(report.ProposalsCreated) != 0 {
		t.Fatalf("ProposalsCreated = %v, want none for a failed trajectory", report.ProposalsCreated)
	}
}
