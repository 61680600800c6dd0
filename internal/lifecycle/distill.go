package lifecycle

import (
	"fmt"

	"context"

	"github.com/sl4m3/ledgermind/internal/engine"
	"github.com/sl4m3/ledgermind/internal/storage/sqlite"
	"github.com/sl4m3/ledgermind/internal/types"
)

// trajectoryWindow bounds how many prior task/call/decision events feed a
// single distilled proposal.
const trajectoryWindow = 5

// DistillReport summarises one distillation pass.
type DistillReport struct {
	EventsProcessed  int
	ProposalsCreated []string
}

// Distill scans episodic events strictly after the persisted reflection
// cursor: for each result event with context.success == true, the
// preceding sliding window of up to trajectoryWindow task/call/decision
// events becomes a proposal's procedural steps, with the result itself as
// its success evidence. The cursor advances past every event considered,
// distilled or not, so a later run never reprocesses the same event.
func Distill(ctx context.Context, coord *engine.Coordinator, meta *sqlite.Storage) (*DistillReport, error) {
	lastID, err := meta.GetConfigInt64(ctx, sqlite.ConfigLastReflectionEventID, 0)
	if err != nil {
		return nil, err
	}

	all, err := meta.Query(ctx, sqlite.EventQuery{})
	if err != nil {
		return nil, err
	}
	// Query returns newest-first; distillation needs chronological order to
	// build a trailing window.
	chronological := make([]types.Event, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].ID > lastID {
			chronological = append(chronological, all[i])
		}
	}
	if len(chronological) == 0 {
		return &DistillReport{}, nil
	}

	report := &DistillReport{}
	var window []types.Event
	maxID := lastID
	for _, e := range chronological {
		if e.ID > maxID {
			maxID = e.ID
		}
		report.EventsProcessed++

		switch e.Kind {
		case types.EventTask, types.EventCall, types.EventDecision:
			window = append(window, e)
			if len(window) > trajectoryWindow {
				window = window[len(window)-trajectoryWindow:]
			}
		case types.EventResult:
			if e.Succeeded() && len(window) > 0 {
				fid, err := proposeDistillation(ctx, coord, window, e)
				if err != nil {
					return nil, err
				}
				report.ProposalsCreated = append(report.ProposalsCreated, fid)
			}
		}
	}

	if err := meta.SetConfigInt64(ctx, sqlite.ConfigLastReflectionEventID, maxID); err != nil {
		return nil, err
	}
	return report, nil
}

func proposeDistillation(ctx context.Context, coord *engine.Coordinator, window []types.Event, result types.Event) (string, error) {
	steps := make([]string, 0, len(window))
	for _, e := range window {
		steps = append(steps, e.Content)
	}
	target := result.Target()
	if target == "" && len(window) > 0 {
		target = window[len(window)-1].Target()
	}
	if target == "" {
		target = "distilled-procedure"
	}

	evidence := []int64{result.ID}
	for _, e := range window {
		evidence = append(evidence, e.ID)
	}

	proposal, err := coord.RecordProposal(ctx, engine.ProposeInput{
		Title:     fmt.Sprintf("distilled procedure for %s", target),
		Target:    target,
		Namespace: result.Namespace(),
		Rationale: "extracted from a successful task trajectory",
		Source:    types.SourceSystem,
		Extra: map[string]any{
			"procedural.steps":     steps,
			"success_evidence_ids": []int64{result.ID},
		},
		EvidenceEventIDs: evidence,
	})
	if err != nil {
		return "", fmt.Errorf("lifecycle: propose distillation for %s: %w", target, err)
	}
	return proposal.FID, nil
}
