package engine

import (
	"context"
	"fmt"

	"github.com/sl4m3/ledgermind/internal/types"
)

// AcceptProposal promotes a proposal to a decision: sets kind to decision
// and status to active, subject to the same at-most-one-active check as
// RecordDecision.
func (c *Coordinator) AcceptProposal(ctx context.Context, fid string) (*types.Artifact, error) {
	var result *types.Artifact
	err := c.withLock(func() error {
		a, lerr := c.loadArtifact(ctx, fid)
		if lerr != nil {
			return fmt.Errorf("%w: %s: %v", ErrValidation, fid, lerr)
		}
		if a.Kind != types.KindProposal {
			return fmt.Errorf("%w: %s is not a proposal", ErrValidation, fid)
		}

		existing, gerr := c.meta.GetActiveFID(ctx, a.Context.Target, a.Namespace())
		if gerr != nil {
			return fmt.Errorf("check active decision: %w", gerr)
		}
		if existing != "" && existing != fid {
			return fmt.Errorf("%w: %q already has an active decision %s", ErrConflict, a.Context.Target, existing)
		}

		a.Kind = types.KindDecision
		a.Context.Status = types.StatusActive
		if a.Context.DecisionID == "" {
			a.Context.DecisionID = a.FID
		}
		if err := a.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}
		if err := c.updateArtifactRow(ctx, a, fmt.Sprintf("accept %s: %s", a.FID, a.Context.Title)); err != nil {
			return err
		}
		result = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	_ = c.indexVector(ctx, result)
	c.publish(ctx, "accept", map[string]any{"fid": result.FID, "target": result.Context.Target, "namespace": result.Namespace()})
	return result, nil
}
