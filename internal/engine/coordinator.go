// Package engine implements the write coordinator (component E): the
// transactional heart of the memory engine. Every externally visible write
// flows through a Coordinator, which enforces immutability, acyclic
// evolution, at-most-one-active-per-target, referential integrity, and
// status monotonicity across the content artifact store, metadata index,
// episodic log, and vector index, and performs crash recovery on init.
package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/sl4m3/ledgermind/internal/config"
	"github.com/sl4m3/ledgermind/internal/eventbus"
	"github.com/sl4m3/ledgermind/internal/idgen"
	"github.com/sl4m3/ledgermind/internal/lockfile"
	"github.com/sl4m3/ledgermind/internal/registry"
	"github.com/sl4m3/ledgermind/internal/storage/sqlite"
	"github.com/sl4m3/ledgermind/internal/store"
	"github.com/sl4m3/ledgermind/internal/types"
	"github.com/sl4m3/ledgermind/internal/vector"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

// lockMaxElapsed and lockRetryDelay bound the non-blocking acquisition with
// bounded retry required of every write path.
const (
	lockMaxElapsed = 500 * time.Millisecond
	lockRetryDelay = 50 * time.Millisecond
)

// engineTracer and engineWriteCount are the OTel instruments for the write
// path; a busy or slow lock acquisition is visible as span/metric data
// without the coordinator itself depending on any particular exporter.
var (
	engineTracer     = otel.Tracer("github.com/sl4m3/ledgermind/internal/engine")
	engineWriteCount metric.Int64Counter
)

func init() {
	m := otel.Meter("github.com/sl4m3/ledgermind/internal/engine")
	engineWriteCount, _ = m.Int64Counter("ledgermind.engine.writes",
		metric.WithDescription("writes attempted through the coordinator's exclusive lock"))
}

// Coordinator wires the content artifact store, metadata index, episodic
// log, and vector index behind a single exclusive lock, serialising every
// write. Readers may run concurrently without acquiring this lock.
type Coordinator struct {
	cfg      *config.Config
	artifact store.Store
	meta     *sqlite.Storage
	vec      *vector.Index
	targets  *registry.Registry
	bus      *eventbus.Bus
	lockPath string
}

// New constructs a coordinator over already-open backends. Callers build
// the artifact store, metadata index, and vector index according to cfg
// (git vs. no-audit, embedding provider selection) and pass them in, so
// tests can substitute fakes for any one of them independently.
func New(cfg *config.Config, artifact store.Store, meta *sqlite.Storage, vec *vector.Index, targets *registry.Registry, bus *eventbus.Bus) *Coordinator {
	if targets == nil {
		targets = registry.New()
	}
	if bus == nil {
		bus = eventbus.New()
	}
	return &Coordinator{
		cfg:      cfg,
		artifact: artifact,
		meta:     meta,
		vec:      vec,
		targets:  targets,
		bus:      bus,
		lockPath: filepath.Join(cfg.StoragePath, ".engine.lock"),
	}
}

// withLock acquires the exclusive writer lock with bounded retry, runs fn,
// and releases the lock regardless of outcome. A lock that cannot be
// acquired after every attempt surfaces as ErrTransient.
func (c *Coordinator) withLock(fn func() error) error {
	ctx, span := engineTracer.Start(context.Background(), "engine.with_lock")
	defer span.End()

	lock, err := lockfile.AcquireExclusiveRetry(c.lockPath, lockMaxElapsed, lockRetryDelay)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		if lockfile.IsBusy(err) {
			engineWriteCount.Add(ctx, 1, metric.WithAttributes(attribute.Bool("busy", true)))
			return fmt.Errorf("%w: engine lock busy", ErrTransient)
		}
		return fmt.Errorf("acquire engine lock: %w", err)
	}
	defer func() { _ = lock.Release() }()

	err = fn()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	engineWriteCount.Add(ctx, 1, metric.WithAttributes(attribute.Bool("busy", false)))
	return err
}

// artifactPath is the content artifact store's relative path for fid.
func artifactPath(fid string) string {
	return filepath.Join("artifacts", fid+".md")
}

// checkTrustBoundary rejects agent-sourced writes while the configured
// policy is human_only.
func (c *Coordinator) checkTrustBoundary(source types.Source) error {
	if c.cfg.TrustBoundary == config.TrustHumanOnly && source == types.SourceAgent {
		return fmt.Errorf("%w: agent writes disallowed under human_only trust policy", ErrTrustBoundary)
	}
	return nil
}

// indexVector embeds and upserts the artifact's vector representation.
// Per the concurrency model, this may lag the transactional commit briefly;
// search tolerates the gap by falling back to keyword signal alone.
func (c *Coordinator) indexVector(ctx context.Context, a *types.Artifact) error {
	if c.vec == nil {
		return nil
	}
	content := a.Context.Title + "\n" + a.Context.Rationale + "\n" + a.Content
	return c.vec.AddDocuments(ctx, []vector.Document{{ID: a.FID, Content: content}})
}

// publish dispatches an event to in-process subscribers. Bus errors are
// never surfaced to write-path callers; the bus is a best-effort observer.
func (c *Coordinator) publish(ctx context.Context, eventType eventbus.EventType, data map[string]any) {
	_, _ = c.bus.Dispatch(ctx, &eventbus.Event{Type: eventType, Data: data})
}

// newFID derives a fresh, stable fid for an artifact about to be written.
// nonce disambiguates the rare same-nanosecond collision.
func newFID(title, target string, ts time.Time, nonce int) string {
	return idgen.NewFID(title, target, ts, nonce)
}
