package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sl4m3/ledgermind/internal/types"
)

// SupersedeInput is the caller-supplied payload for SupersedeDecision.
type SupersedeInput struct {
	Title        string
	Target       string
	Namespace    string
	Rationale    string
	Consequences string
	OldFIDs      []string
	Source       types.Source
	Keywords     []string
}

// SupersedeDecision creates a new active decision that replaces one or more
// prior actives for the same target. Every id in OldFIDs must currently be
// active for Target, else ErrConflict mentions "no longer active". The new
// artifact's decision_id carries over from the most recent predecessor,
// preserving identity across the whole supersession chain.
func (c *Coordinator) SupersedeDecision(ctx context.Context, in SupersedeInput) (*types.Artifact, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if len(in.Rationale) < types.MinSupersedeRationaleLen {
		return nil, fmt.Errorf("%w: rationale must be at least %d characters", ErrValidation, types.MinSupersedeRationaleLen)
	}
	if len(in.OldFIDs) == 0 {
		return nil, fmt.Errorf("%w: supersede requires at least one prior fid", ErrValidation)
	}
	if in.Source == "" {
		in.Source = types.SourceAgent
	}
	if !in.Source.IsValid() {
		return nil, fmt.Errorf("%w: invalid source %q", ErrValidation, in.Source)
	}
	if err := c.checkTrustBoundary(in.Source); err != nil {
		return nil, err
	}
	target, err := c.targets.Canonicalize(in.Target)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	namespace := in.Namespace
	if namespace == "" {
		namespace = types.DefaultNamespace
	}

	var result *types.Artifact
	err = c.withLock(func() error {
		predecessors := make([]*types.Artifact, 0, len(in.OldFIDs))
		for _, fid := range in.OldFIDs {
			old, lerr := c.loadArtifact(ctx, fid)
			if lerr != nil {
				return fmt.Errorf("%w: %s no longer active: %v", ErrConflict, fid, lerr)
			}
			if old.Context.Status != types.StatusActive || old.Context.Target != target {
				return fmt.Errorf("%w: %s no longer active", ErrConflict, fid)
			}
			predecessors = append(predecessors, old)
		}

		mostRecent := predecessors[0]
		for _, p := range predecessors[1:] {
			if p.Timestamp.After(mostRecent.Timestamp) {
				mostRecent = p
			}
		}
		decisionID := mostRecent.Context.DecisionID
		if decisionID == "" {
			decisionID = mostRecent.FID
		}

		now := time.Now().UTC()
		fid := newFID(in.Title, target, now, 0)
		if containsString(in.OldFIDs, fid) {
			fid = newFID(in.Title, target, now, 1)
		}
		a := &types.Artifact{
			FID:       fid,
			Kind:      types.KindDecision,
			Source:    in.Source,
			Content:   in.Consequences,
			Timestamp: now,
			Context: types.Context{
				Title:      in.Title,
				Target:     target,
				Namespace:  namespace,
				Status:     types.StatusActive,
				Rationale:  in.Rationale,
				Keywords:   in.Keywords,
				Supersedes: append([]string(nil), in.OldFIDs...),
				DecisionID: decisionID,
			},
		}
		if a.SupersedesSelf() {
			return fmt.Errorf("%w: a decision cannot supersede itself", ErrInvariant)
		}
		if err := a.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}

		if err := c.writeNewArtifact(ctx, a); err != nil {
			return err
		}

		for _, old := range predecessors {
			if !old.Context.Status.CanTransition(types.StatusSuperseded) {
				return fmt.Errorf("%w: %s cannot transition %s -> %s", ErrTransition, old.FID, old.Context.Status, types.StatusSuperseded)
			}
			old.Context.Status = types.StatusSuperseded
			old.Context.SupersededBy = fid
			if err := c.updateArtifactRow(ctx, old, fmt.Sprintf("supersede %s: %s", old.FID, in.Title)); err != nil {
				return err
			}
		}

		result = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	_ = c.indexVector(ctx, result)
	c.publish(ctx, "supersede", map[string]any{
		"fid": result.FID, "supersedes": in.OldFIDs, "target": target, "namespace": namespace,
	})
	return result, nil
}

// loadArtifact reads and parses the artifact currently on disk for fid.
func (c *Coordinator) loadArtifact(ctx context.Context, fid string) (*types.Artifact, error) {
	data, err := c.artifact.Read(artifactPath(fid))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", fid, err)
	}
	a, err := types.ParseArtifact(fid, data)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func containsString(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}
