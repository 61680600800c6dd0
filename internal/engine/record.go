package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sl4m3/ledgermind/internal/storage/sqlite"
	"github.com/sl4m3/ledgermind/internal/types"
)

// RecordInput is the caller-supplied payload for RecordDecision.
type RecordInput struct {
	Title        string
	Target       string
	Namespace    string
	Rationale    string
	Consequences string
	Source       types.Source
	Keywords     []string
	// SourceEventID, if non-zero, is an existing episodic event this write
	// is observer-driven from; it is linked to the new artifact as evidence.
	SourceEventID int64
}

// RecordDecision records a brand new, active decision for (target,
// namespace). It fails with ErrConflict if a decision is already active
// there.
func (c *Coordinator) RecordDecision(ctx context.Context, in RecordInput) (*types.Artifact, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if len(in.Rationale) < types.MinRecordRationaleLen {
		return nil, fmt.Errorf("%w: rationale must be at least %d characters", ErrValidation, types.MinRecordRationaleLen)
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
		existing, gerr := c.meta.GetActiveFID(ctx, target, namespace)
		if gerr != nil {
			return fmt.Errorf("check active decision: %w", gerr)
		}
		if existing != "" {
			return fmt.Errorf("%w: %q already has an active decision %s", ErrConflict, target, existing)
		}

		now := time.Now().UTC()
		fid := newFID(in.Title, target, now, 0)
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
				DecisionID: fid,
			},
		}
		if err := a.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}

		if err := c.writeNewArtifact(ctx, a); err != nil {
			return err
		}
		if in.SourceEventID != 0 {
			if err := c.meta.LinkToSemantic(ctx, in.SourceEventID, fid); err != nil {
				return fmt.Errorf("link source event %d to %s: %w", in.SourceEventID, fid, err)
			}
		}
		result = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Vector indexing may lag the transactional commit; do not fail the
	// write, search degrades to keyword signal until the next index pass.
	_ = c.indexVector(ctx, result)
	c.publish(ctx, "record", map[string]any{"fid": result.FID, "target": target, "namespace": namespace})
	return result, nil
}

// writeNewArtifact stages the artifact in the content artifact store, the
// metadata index, and commits the store transaction. Caller must hold the
// writer lock.
func (c *Coordinator) writeNewArtifact(ctx context.Context, a *types.Artifact) error {
	data, err := a.Serialize()
	if err != nil {
		return fmt.Errorf("serialize %s: %w", a.FID, err)
	}
	message := fmt.Sprintf("record %s: %s", a.FID, a.Context.Title)
	if err := c.artifact.Add(artifactPath(a.FID), data, message); err != nil {
		return fmt.Errorf("store add %s: %w", a.FID, err)
	}
	row := sqlite.RowFromArtifact(a)
	if err := c.meta.Upsert(ctx, row); err != nil {
		if sqlErrIsConflict(err) {
			return fmt.Errorf("%w: %v", ErrConflict, err)
		}
		return fmt.Errorf("metadata upsert %s: %w", a.FID, err)
	}
	return nil
}

// updateArtifactRow re-serialises and re-commits an existing artifact, and
// refreshes its metadata row. Caller must hold the writer lock.
func (c *Coordinator) updateArtifactRow(ctx context.Context, a *types.Artifact, message string) error {
	data, err := a.Serialize()
	if err != nil {
		return fmt.Errorf("serialize %s: %w", a.FID, err)
	}
	if err := c.artifact.Update(artifactPath(a.FID), data, message); err != nil {
		return fmt.Errorf("store update %s: %w", a.FID, err)
	}
	row := sqlite.RowFromArtifact(a)
	if err := c.meta.Upsert(ctx, row); err != nil {
		return fmt.Errorf("metadata upsert %s: %w", a.FID, err)
	}
	return nil
}

func sqlErrIsConflict(err error) bool {
	return errors.Is(err, sqlite.ErrConflict)
}
