// Package lifecycle implements the background worker (component G):
// TTL-based event decay, near-duplicate merge detection, and trajectory
// distillation, each gated so a single cooperative loop can run them on an
// interval without blocking writers.
package lifecycle

import (
	"context"
	"time"

	"github.com/sl4m3/ledgermind/internal/storage/sqlite"
	"github.com/sl4m3/ledgermind/internal/types"
)

// DefaultTTL is the age at which an unlinked active event becomes eligible
// for archival, absent a configured override.
const DefaultTTL = 30 * 24 * time.Hour

// decayBatchLimit bounds how many events a single Decay call archives and
// how many it prunes, so a very large backlog is worked off over several
// passes.
const decayBatchLimit = 1000

// DecayReport summarises one Decay pass.
type DecayReport struct {
	DryRun         bool
	Archived       int
	Pruned         int
	RetainedByLink int
}

// Decay walks episodic events older than ttl: linked events are retained
// (a linked event never expires while its link exists), unlinked active
// events are archived, and already archived events past ttl are physically
// pruned. dryRun reports counts without mutating the log.
func Decay(ctx context.Context, meta *sqlite.Storage, ttl time.Duration, dryRun bool) (*DecayReport, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	cutoff := time.Now().Add(-ttl)
	report := &DecayReport{DryRun: dryRun}

	retained, err := countRetainedByLink(ctx, meta, cutoff)
	if err != nil {
		return nil, err
	}
	report.RetainedByLink = retained

	// Prune candidates are gathered before this pass archives anything, so
	// an event archived now is pruned on a later pass, never the same one.
	prunable, err := meta.PrunableIDs(ctx, cutoff, decayBatchLimit)
	if err != nil {
		return nil, err
	}

	archivable, err := meta.ArchivableIDs(ctx, cutoff, decayBatchLimit)
	if err != nil {
		return nil, err
	}
	report.Archived = len(archivable)
	if !dryRun {
		if err := meta.MarkArchived(ctx, archivable); err != nil {
			return nil, err
		}
	}

	report.Pruned = len(prunable)
	if !dryRun {
		if err := meta.PhysicalPrune(ctx, prunable); err != nil {
			return nil, err
		}
	}
	return report, nil
}

// countRetainedByLink counts active events older than cutoff that carry at
// least one evidence link, and so were excluded from ArchivableIDs.
func countRetainedByLink(ctx context.Context, meta *sqlite.Storage, cutoff time.Time) (int, error) {
	events, err := meta.Query(ctx, sqlite.EventQuery{Status: types.EventStatusActive})
	if err != nil {
		return 0, err
	}
	count := 0
	for _, e := range events {
		if e.Timestamp.Before(cutoff) && e.IsLinked() {
			count++
		}
	}
	return count, nil
}
