package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sl4m3/ledgermind/internal/storage/sqlite"
	"github.com/sl4m3/ledgermind/internal/types"
)

// quarantineDir holds artifact files recovery could not reconcile with the
// metadata index: parse failures, or crash remnants inconsistent with B.
const quarantineDir = "quarantine"

// RecoveryReport summarises the actions a Recover pass took.
type RecoveryReport struct {
	Recommitted       []string
	Quarantined       []string
	RebuiltRows       []string
	RemovedRows       []string
	RepairedRefs      []string
	DemotedActives    []string
	MigratedArtifacts []string
}

// uncommittedLister is implemented only by backends with a staging area
// distinct from the committed tip (GitStore); the no-audit backend commits
// synchronously and has nothing to report.
type uncommittedLister interface {
	UncommittedPaths() ([]string, error)
}

// Recover reconciles the content artifact store against the metadata index
// on engine init, per the write coordinator's crash-recovery contract: any
// crash remnant is either recommitted or quarantined, B is rebuilt from
// disk truth, dangling references are repaired, and at-most-one-active is
// restored if a prior crash left more than one active decision for a
// target. Any remaining integrity problem after this pass is ErrIntegrity
// and halts initialisation.
func (c *Coordinator) Recover(ctx context.Context) (*RecoveryReport, error) {
	report := &RecoveryReport{}
	err := c.withLock(func() error {
		if err := c.recommitOrQuarantine(ctx, report); err != nil {
			return err
		}
		if err := c.rebuildMissingRows(ctx, report); err != nil {
			return err
		}
		if err := c.removeOrphanRows(ctx, report); err != nil {
			return err
		}
		if err := c.verifyReferentialIntegrity(ctx, report); err != nil {
			return err
		}
		if err := c.verifyAtMostOneActive(ctx, report); err != nil {
			return err
		}
		if err := c.migrateLegacyArtifacts(ctx, report); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return report, err
	}
	return report, nil
}

// recommitOrQuarantine handles step 1: an untracked or modified artifact on
// disk is a crash remnant. If its status is parseable and either consistent
// with B's row or B has no row for it (step 2 then rebuilds the row), it is
// recommitted; if it cannot be parsed or B's row disagrees, it is moved to
// the quarantine directory.
func (c *Coordinator) recommitOrQuarantine(ctx context.Context, report *RecoveryReport) error {
	lister, ok := c.artifact.(uncommittedLister)
	if !ok {
		return nil
	}
	paths, err := lister.UncommittedPaths()
	if err != nil {
		return fmt.Errorf("recover: list uncommitted paths: %w", err)
	}
	for _, p := range paths {
		fid := fidFromPath(p)
		if fid == "" {
			continue
		}
		a, perr := c.loadArtifact(ctx, fid)
		if perr != nil {
			if qerr := c.quarantine(p); qerr != nil {
				return fmt.Errorf("recover: quarantine %s: %w", p, qerr)
			}
			report.Quarantined = append(report.Quarantined, fid)
			continue
		}
		row, rerr := c.meta.Get(ctx, fid)
		consistent := rerr == nil && row.Status == a.Context.Status
		if consistent || rerr != nil {
			if _, err := c.artifact.CommitTransaction(fmt.Sprintf("Recovered from crash: %s", fid)); err != nil {
				return fmt.Errorf("recover: recommit %s: %w", fid, err)
			}
			report.Recommitted = append(report.Recommitted, fid)
			continue
		}
		if qerr := c.quarantine(p); qerr != nil {
			return fmt.Errorf("recover: quarantine %s: %w", p, qerr)
		}
		report.Quarantined = append(report.Quarantined, fid)
	}
	return nil
}

func (c *Coordinator) quarantine(relativePath string) error {
	data, err := c.artifact.Read(relativePath)
	if err != nil {
		return err
	}
	dest := filepath.Join(c.artifact.Root(), quarantineDir, filepath.Base(relativePath))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return err
	}
	return c.artifact.Purge(relativePath)
}

// rebuildMissingRows handles step 2: any artifact present on disk but
// absent from B gets its metadata row rebuilt.
func (c *Coordinator) rebuildMissingRows(ctx context.Context, report *RecoveryReport) error {
	paths, err := c.artifact.List()
	if err != nil {
		return fmt.Errorf("recover: list artifacts: %w", err)
	}
	for _, p := range paths {
		if strings.HasPrefix(p, quarantineDir+"/") || strings.HasPrefix(p, quarantineDir+string(filepath.Separator)) {
			continue
		}
		fid := fidFromPath(p)
		if fid == "" {
			continue
		}
		if _, err := c.meta.Get(ctx, fid); err == nil {
			continue
		}
		a, perr := c.loadArtifact(ctx, fid)
		if perr != nil {
			continue
		}
		if err := c.meta.Upsert(ctx, sqlite.RowFromArtifact(a)); err != nil {
			return fmt.Errorf("recover: rebuild row %s: %w", fid, err)
		}
		report.RebuiltRows = append(report.RebuiltRows, fid)
	}
	return nil
}

// removeOrphanRows handles step 3: a B row whose fid no longer exists on
// disk is deleted.
func (c *Coordinator) removeOrphanRows(ctx context.Context, report *RecoveryReport) error {
	rows, err := c.meta.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("recover: list metadata: %w", err)
	}
	for _, row := range rows {
		if _, err := c.artifact.Read(artifactPath(row.FID)); err != nil {
			if err := c.meta.Delete(ctx, row.FID); err != nil {
				return fmt.Errorf("recover: remove orphan row %s: %w", row.FID, err)
			}
			report.RemovedRows = append(report.RemovedRows, row.FID)
		}
	}
	return nil
}

// verifyReferentialIntegrity handles step 4: a dangling superseded_by or
// supersedes element raises ErrIntegrity unless the missing fid is in
// quarantine, in which case the referrer is demoted to deprecated.
func (c *Coordinator) verifyReferentialIntegrity(ctx context.Context, report *RecoveryReport) error {
	rows, err := c.meta.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("recover: list metadata: %w", err)
	}
	known := make(map[string]bool, len(rows))
	for _, row := range rows {
		known[row.FID] = true
	}
	quarantined := c.quarantinedFIDs()

	for _, row := range rows {
		refs := append([]string(nil), row.Context.Supersedes...)
		if row.SupersededBy != "" {
			refs = append(refs, row.SupersededBy)
		}
		for _, ref := range refs {
			if known[ref] {
				continue
			}
			if quarantined[ref] {
				if err := c.demoteRow(ctx, row, report); err != nil {
					return err
				}
				break
			}
			return fmt.Errorf("%w: %s references missing artifact %s", ErrIntegrity, row.FID, ref)
		}
	}
	return nil
}

func (c *Coordinator) demoteRow(ctx context.Context, row sqlite.MetaRow, report *RecoveryReport) error {
	a, err := c.loadArtifact(ctx, row.FID)
	if err != nil {
		return fmt.Errorf("recover: load %s for demotion: %w", row.FID, err)
	}
	a.Context.Status = types.StatusDeprecated
	if err := c.updateArtifactRow(ctx, a, fmt.Sprintf("Recovered from crash: demote %s (dangling reference)", row.FID)); err != nil {
		return err
	}
	report.RepairedRefs = append(report.RepairedRefs, row.FID)
	return nil
}

func (c *Coordinator) quarantinedFIDs() map[string]bool {
	out := make(map[string]bool)
	entries, err := os.ReadDir(filepath.Join(c.artifact.Root(), quarantineDir))
	if err != nil {
		return out
	}
	for _, e := range entries {
		out[fidFromPath(e.Name())] = true
	}
	return out
}

// verifyAtMostOneActive handles step 5: if a prior crash left multiple
// actives for the same (target, namespace), the latest by timestamp stays
// active and the rest are superseded by it.
func (c *Coordinator) verifyAtMostOneActive(ctx context.Context, report *RecoveryReport) error {
	rows, err := c.meta.ListByFilter(ctx, sqlite.Filter{Status: types.StatusActive})
	if err != nil {
		return fmt.Errorf("recover: list active rows: %w", err)
	}
	groups := make(map[string][]sqlite.MetaRow)
	for _, row := range rows {
		key := row.Target + "\x00" + row.Namespace
		groups[key] = append(groups[key], row)
	}
	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		latest := group[0]
		for _, row := range group[1:] {
			if row.Timestamp.After(latest.Timestamp) {
				latest = row
			}
		}
		for _, row := range group {
			if row.FID == latest.FID {
				continue
			}
			a, lerr := c.loadArtifact(ctx, row.FID)
			if lerr != nil {
				return fmt.Errorf("recover: load %s: %w", row.FID, lerr)
			}
			a.Context.Status = types.StatusSuperseded
			a.Context.SupersededBy = latest.FID
			if err := c.updateArtifactRow(ctx, a, fmt.Sprintf("Recovered from crash: demote duplicate active %s", row.FID)); err != nil {
				return err
			}
			report.DemotedActives = append(report.DemotedActives, row.FID)
		}
	}
	return nil
}

// migrateLegacyArtifacts rewrites artifacts missing kind, with too-short
// targets or rationales, or lacking namespace, stamping a migration marker
// and re-committing.
func (c *Coordinator) migrateLegacyArtifacts(ctx context.Context, report *RecoveryReport) error {
	rows, err := c.meta.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("recover: list metadata: %w", err)
	}
	for _, row := range rows {
		needsMigration := row.Kind == "" || row.Namespace == "" ||
			len(row.Target) == 0 || (row.Kind == types.KindDecision && len(row.Context.Rationale) < types.MinRecordRationaleLen)
		if !needsMigration {
			continue
		}
		a, lerr := c.loadArtifact(ctx, row.FID)
		if lerr != nil {
			continue
		}
		if a.Kind == "" {
			a.Kind = types.KindDecision
		}
		if a.Context.Namespace == "" {
			a.Context.Namespace = types.DefaultNamespace
		}
		a.Content = "Migrated\n" + a.Content
		if err := c.updateArtifactRow(ctx, a, fmt.Sprintf("Migrated %s", row.FID)); err != nil {
			return fmt.Errorf("recover: migrate %s: %w", row.FID, err)
		}
		report.MigratedArtifacts = append(report.MigratedArtifacts, row.FID)
	}
	return nil
}

// fidFromPath extracts the artifact fid from a content-store relative path
// of the form "artifacts/<fid>.md".
func fidFromPath(p string) string {
	base := filepath.Base(p)
	if !strings.HasSuffix(base, ".md") {
		return ""
	}
	return strings.TrimSuffix(base, ".md")
}
