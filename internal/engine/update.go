package engine

import (
	"context"
	"fmt"

	"github.com/sl4m3/ledgermind/internal/types"
)

// Patch describes a requested mutation to an existing artifact. Nil fields
// are left untouched.
type Patch struct {
	Content    *string
	Status     *types.Status
	Keywords   []string
	Phase      *types.Phase
	Vitality   *types.Vitality
	Confidence *float64
	Rationale  *string // proposals only; decisions reject a rationale change.
}

// UpdateArtifact applies patch to the artifact identified by fid, comparing
// pre- and post-state against content/rationale immutability and status
// monotonicity. Proposals are exempt from the immutability check on
// content/rationale while kind = proposal; once promoted to a decision,
// both freeze.
func (c *Coordinator) UpdateArtifact(ctx context.Context, fid string, patch Patch, message string) (*types.Artifact, error) {
	var result *types.Artifact
	err := c.withLock(func() error {
		a, lerr := c.loadArtifact(ctx, fid)
		if lerr != nil {
			return fmt.Errorf("%w: %s: %v", ErrValidation, fid, lerr)
		}
		before := *a

		if patch.Content != nil && *patch.Content != before.Content {
			if a.Kind == types.KindDecision {
				if !types.IsMinorCorrection(before.Content, *patch.Content) {
					return fmt.Errorf("%w: content change on %s exceeds the bound allowed for in-place corrections", ErrInvariant, fid)
				}
			}
			a.Content = *patch.Content
		}
		if patch.Rationale != nil && *patch.Rationale != before.Context.Rationale {
			if a.Kind == types.KindDecision {
				return fmt.Errorf("%w: rationale is immutable on a decision", ErrInvariant)
			}
			a.Context.Rationale = *patch.Rationale
		}
		if patch.Status != nil && *patch.Status != before.Context.Status {
			if !before.Context.Status.CanTransition(*patch.Status) {
				return fmt.Errorf("%w: %s cannot transition %s -> %s", ErrTransition, fid, before.Context.Status, *patch.Status)
			}
			if *patch.Status == types.StatusActive {
				existing, gerr := c.meta.GetActiveFID(ctx, before.Context.Target, before.Namespace())
				if gerr != nil {
					return fmt.Errorf("check active decision: %w", gerr)
				}
				if existing != "" && existing != fid {
					return fmt.Errorf("%w: %q already has an active decision %s", ErrConflict, before.Context.Target, existing)
				}
			}
			a.Context.Status = *patch.Status
		}
		if patch.Keywords != nil {
			a.Context.Keywords = patch.Keywords
		}
		if patch.Phase != nil {
			a.Context.Phase = *patch.Phase
		}
		if patch.Vitality != nil {
			a.Context.Vitality = *patch.Vitality
		}
		if patch.Confidence != nil {
			a.Context.Confidence = *patch.Confidence
		}

		if a.Source != before.Source {
			return fmt.Errorf("%w: source is immutable", ErrInvariant)
		}
		if a.Kind != before.Kind && before.Kind == types.KindDecision {
			return fmt.Errorf("%w: kind is immutable once a decision", ErrInvariant)
		}
		if a.Context.Target != before.Context.Target {
			return fmt.Errorf("%w: target is immutable", ErrInvariant)
		}
		if err := a.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}

		if message == "" {
			message = fmt.Sprintf("update %s", fid)
		}
		if err := c.updateArtifactRow(ctx, a, message); err != nil {
			return err
		}
		result = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	_ = c.indexVector(ctx, result)
	return result, nil
}
