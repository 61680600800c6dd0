package engine

import (
	"fmt"
	"strings"
	"time"

	"context"

	"github.com/sl4m3/ledgermind/internal/types"
)

// ProposeInput is the caller-supplied payload for RecordProposal.
type ProposeInput struct {
	Title      string
	Target     string
	Namespace  string
	Rationale  string
	Confidence float64
	Source     types.Source
	Keywords   []string
	// Extra carries proposal-specific structured data (e.g.
	// suggested_supersedes for a merge proposal, procedural.steps and
	// success_evidence_ids for a distillation proposal) verbatim into the
	// artifact's context.extra.
	Extra map[string]any
	// EvidenceEventIDs are existing episodic events linked as evidence for
	// the new proposal.
	EvidenceEventIDs []int64
}

// RecordProposal writes a new draft proposal, unconstrained by the
// at-most-one-active check (a proposal is a hypothesis, not a competing
// active decision). Used by the lifecycle engine's merge detection and
// distillation passes, and by any caller surfacing a hypothesis for later
// AcceptProposal promotion.
func (c *Coordinator) RecordProposal(ctx context.Context, in ProposeInput) (*types.Artifact, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if in.Source == "" {
		in.Source = types.SourceSystem
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

	now := time.Now().UTC()
	fid := newFID(in.Title, target, now, 0)
	a := &types.Artifact{
		FID:       fid,
		Kind:      types.KindProposal,
		Source:    in.Source,
		Timestamp: now,
		Context: types.Context{
			Title:      in.Title,
			Target:     target,
			Namespace:  namespace,
			Status:     types.StatusDraft,
			Rationale:  in.Rationale,
			Keywords:   in.Keywords,
			Confidence: in.Confidence,
			Extra:      in.Extra,
		},
	}
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	err = c.withLock(func() error {
		if err := c.writeNewArtifact(ctx, a); err != nil {
			return err
		}
		for _, eventID := range in.EvidenceEventIDs {
			if err := c.meta.LinkToSemantic(ctx, eventID, fid); err != nil {
				return fmt.Errorf("link evidence event %d to %s: %w", eventID, fid, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	_ = c.indexVector(ctx, a)
	c.publish(ctx, "record", map[string]any{"fid": fid, "target": target, "namespace": namespace, "kind": "proposal"})
	return a, nil
}
