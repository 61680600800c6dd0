package lifecycle

import (
	"context"
	"fmt"

	"github.com/sl4m3/ledgermind/internal/engine"
	"github.com/sl4m3/ledgermind/internal/storage/sqlite"
	"github.com/sl4m3/ledgermind/internal/types"
	"github.com/sl4m3/ledgermind/internal/vector"
)

// DefaultMergeThreshold is the cosine similarity a candidate pair must meet
// to be proposed as a merge.
const DefaultMergeThreshold = 0.9

// mergeCandidatesPerDecision bounds the nearest-neighbour fan-out searched
// for each active decision.
const mergeCandidatesPerDecision = 5

// MergeReport summarises one merge-detection pass.
type MergeReport struct {
	PairsExamined    int
	ProposalsCreated []string
}

// DetectMerges scans every active decision for a near-duplicate among the
// other active decisions (cosine ≥ threshold), and emits a single proposal
// artifact per duplicate pair with suggested_supersedes naming both, linked
// to the evidence events of each. Self-pairs and pairs sharing the same
// target are excluded: a duplicate on the same target is ordinary
// supersession, not a merge.
func DetectMerges(ctx context.Context, coord *engine.Coordinator, meta *sqlite.Storage, vec *vector.Index, threshold float64) (*MergeReport, error) {
	if threshold <= 0 {
		threshold = DefaultMergeThreshold
	}
	actives, err := meta.ListByFilter(ctx, sqlite.Filter{Status: types.StatusActive})
	if err != nil {
		return nil, err
	}

	report := &MergeReport{}
	proposed := make(map[string]bool)
	for _, a := range actives {
		queryText := a.Title + "\n" + a.Context.Rationale + "\n" + a.Content
		hits, err := vec.Search(ctx, queryText, mergeCandidatesPerDecision+1)
		if err != nil {
			return nil, fmt.Errorf("lifecycle: merge scan query for %s: %w", a.FID, err)
		}
		for _, h := range hits {
			if h.ID == a.FID {
				continue
			}
			b, err := meta.Get(ctx, h.ID)
			if err != nil {
				continue
			}
			if b.Status != types.StatusActive || b.Target == a.Target {
				continue
			}
			report.PairsExamined++
			if h.Score < threshold {
				continue
			}
			key := pairKey(a.FID, b.FID)
			if proposed[key] {
				continue
			}
			proposed[key] = true

			fid, err := proposeMerge(ctx, coord, meta, a, b)
			if err != nil {
				return nil, err
			}
			report.ProposalsCreated = append(report.ProposalsCreated, fid)
		}
	}
	return report, nil
}

func proposeMerge(ctx context.Context, coord *engine.Coordinator, meta *sqlite.Storage, a, b sqlite.MetaRow) (string, error) {
	evidence, err := mergedEvidence(ctx, meta, a.FID, b.FID)
	if err != nil {
		return "", err
	}
	title := fmt.Sprintf("merge candidate: %s / %s", a.Title, b.Title)
	result, err := coord.RecordProposal(ctx, engine.ProposeInput{
		Title:     title,
		Target:    a.Target,
		Namespace: a.Namespace,
		Rationale: fmt.Sprintf("near-duplicate decisions detected across targets %q and %q", a.Target, b.Target),
		Source:    types.SourceSystem,
		Extra: map[string]any{
			"suggested_supersedes": []string{a.FID, b.FID},
		},
		EvidenceEventIDs: evidence,
	})
	if err != nil {
		return "", fmt.Errorf("lifecycle: propose merge for %s/%s: %w", a.FID, b.FID, err)
	}
	return result.FID, nil
}

func mergedEvidence(ctx context.Context, meta *sqlite.Storage, fidA, fidB string) ([]int64, error) {
	idsA, err := meta.LinkedEventIDs(ctx, fidA)
	if err != nil {
		return nil, err
	}
	idsB, err := meta.LinkedEventIDs(ctx, fidB)
	if err != nil {
		return nil, err
	}
	return append(idsA, idsB...), nil
}

// pairKey produces a symmetric key for an unordered fid pair, so (a,b) and
// (b,a) dedupe to the same proposal.
func pairKey(a, b string) string {
	if a < b {
		return a + "\x00" + b
	}
	return b + "\x00" + a
}
