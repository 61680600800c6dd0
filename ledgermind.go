// Package ledgermind is the public entry point for the decision/event
// memory engine: opening a store wires together the content artifact store
// (A), metadata index (B), episodic log (C), vector index (D) behind a
// write coordinator (E), a hybrid searcher (F), and the lifecycle engine's
// background worker (G) into a single handle.
package ledgermind

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/sl4m3/ledgermind/internal/config"
	"github.com/sl4m3/ledgermind/internal/engine"
	"github.com/sl4m3/ledgermind/internal/eventbus"
	"github.com/sl4m3/ledgermind/internal/lifecycle"
	"github.com/sl4m3/ledgermind/internal/registry"
	"github.com/sl4m3/ledgermind/internal/search"
	"github.com/sl4m3/ledgermind/internal/storage/sqlite"
	"github.com/sl4m3/ledgermind/internal/store"
	"github.com/sl4m3/ledgermind/internal/telemetry"
	"github.com/sl4m3/ledgermind/internal/types"
	"github.com/sl4m3/ledgermind/internal/vector"
)

// Re-exported types and constants so callers need only import this package
// for everyday use; the internal packages remain available for advanced
// composition (custom stores, custom embedding providers).
type (
	Artifact       = types.Artifact
	Event          = types.Event
	Kind           = types.Kind
	Status         = types.Status
	Source         = types.Source
	RecordInput    = engine.RecordInput
	SupersedeInput = engine.SupersedeInput
	ProposeInput   = engine.ProposeInput
	Patch          = engine.Patch
	SearchMode     = search.Mode
	SearchResult   = search.Result
	SearchResponse = search.Response
	DecayReport    = lifecycle.DecayReport
	MergeReport    = lifecycle.MergeReport
	DistillReport  = lifecycle.DistillReport
)

const (
	KindDecision = types.KindDecision
	KindProposal = types.KindProposal

	StatusActive     = types.StatusActive
	StatusSuperseded = types.StatusSuperseded
	StatusDeprecated = types.StatusDeprecated
	StatusDraft      = types.StatusDraft

	SourceAgent  = types.SourceAgent
	SourceUser   = types.SourceUser
	SourceSystem = types.SourceSystem

	ModeStrict   = search.ModeStrict
	ModeBalanced = search.ModeBalanced
	ModeAudit    = search.ModeAudit
)

var (
	ErrValidation    = engine.ErrValidation
	ErrConflict      = engine.ErrConflict
	ErrInvariant     = engine.ErrInvariant
	ErrTrustBoundary = engine.ErrTrustBoundary
	ErrIntegrity     = engine.ErrIntegrity
	ErrTransient     = engine.ErrTransient
)

// Engine is the process-local handle to one storage root: a single-writer
// memory engine serving both writes (through Coordinator) and reads
// (through Search), with a background worker performing decay, merge
// detection, and trajectory distillation on an interval.
type Engine struct {
	cfg       *config.Config
	store     store.Store
	meta      *sqlite.Storage
	vec       *vector.Index
	bus       *eventbus.Bus
	Coord     *engine.Coordinator
	Search    *search.Searcher
	worker    *lifecycle.Worker
	telemetry telemetry.Shutdown
}

// Open resolves configuration rooted at dir (dir/config.yaml, LEDGERMIND_*
// environment variables, and built-in defaults), opens every backing
// store, and runs crash recovery before returning. Callers that only need
// configuration defaults without touching disk should use config.Init
// directly.
func Open(ctx context.Context, dir string) (*Engine, error) {
	cfg, err := config.Init(dir)
	if err != nil {
		return nil, fmt.Errorf("ledgermind: load config: %w", err)
	}
	if cfg.StoragePath == "" {
		cfg.StoragePath = dir
	}
	return OpenWithConfig(ctx, cfg)
}

// OpenWithConfig builds an Engine from an already-resolved configuration,
// for callers that assemble Config themselves instead of reading it from
// disk (e.g. tests, or adapters with their own config layer).
func OpenWithConfig(ctx context.Context, cfg *config.Config) (*Engine, error) {
	if err := config.EnsureStorageDir(cfg); err != nil {
		return nil, fmt.Errorf("ledgermind: create storage root: %w", err)
	}

	var telemetryShutdown telemetry.Shutdown
	if cfg.EnableTelemetry {
		shutdown, err := telemetry.Bootstrap()
		if err != nil {
			return nil, fmt.Errorf("ledgermind: bootstrap telemetry: %w", err)
		}
		telemetryShutdown = shutdown
	}

	artifactDir := filepath.Join(cfg.StoragePath, "artifacts")
	var artifactStore store.Store
	var err error
	if cfg.EnableGit {
		artifactStore, err = store.NewGitStore(artifactDir, "ledgermind-engine")
	} else {
		artifactStore, err = store.NewNoAuditStore(artifactDir)
	}
	if err != nil {
		return nil, fmt.Errorf("ledgermind: open content artifact store: %w", err)
	}

	meta, err := sqlite.Open(filepath.Join(cfg.StoragePath, "meta.db"))
	if err != nil {
		return nil, fmt.Errorf("ledgermind: open metadata index: %w", err)
	}

	provider := buildEmbeddingProvider(cfg)
	vec := vector.NewIndex(provider, maxInt(cfg.VectorWorkers, 1))
	vecPath := filepath.Join(cfg.StoragePath, "vectors.bin")
	if loadErr := vec.Load(vecPath); loadErr != nil {
		// A missing or unreadable index is not fatal: it rebuilds lazily as
		// artifacts are written, and search degrades to keyword signal until
		// then.
		_ = loadErr
	}

	targets := registry.New()
	bus := eventbus.New()
	coord := engine.New(cfg, artifactStore, meta, vec, targets, bus)

	if _, err := coord.Recover(ctx); err != nil {
		return nil, fmt.Errorf("ledgermind: crash recovery: %w", err)
	}

	searcher := search.New(meta, vec, artifactStore)

	worker := lifecycle.NewWorker(coord, meta, vec, lifecycle.WorkerConfig{
		TTL:                daysToDuration(cfg.TTLDays),
		MergeThreshold:     cfg.MergeThreshold,
		ReflectionInterval: cfg.ReflectionInterval,
		DecayInterval:      cfg.DecayInterval,
		MergeInterval:      cfg.MergeInterval,
	})

	return &Engine{
		cfg:       cfg,
		store:     artifactStore,
		meta:      meta,
		vec:       vec,
		bus:       bus,
		Coord:     coord,
		Search:    searcher,
		worker:    worker,
		telemetry: telemetryShutdown,
	}, nil
}

// StartBackground launches the lifecycle worker's cooperative loop. Callers
// that embed an Engine in a long-lived process should call this once after
// Open; short-lived callers (a CLI invocation) typically skip it and invoke
// lifecycle operations directly instead.
func (e *Engine) StartBackground(ctx context.Context) {
	e.worker.Start(ctx)
}

// StopBackground signals the lifecycle worker to exit and waits for it.
func (e *Engine) StopBackground() {
	e.worker.Stop()
}

// Subscribe registers h to receive the notifications the write coordinator
// dispatches after its writes. No engine operation dispatches the delete or
// decay event types; Decay and the other lifecycle passes dispatch nothing
// themselves.
func (e *Engine) Subscribe(h eventbus.Handler) {
	e.bus.Register(h)
}

// Decay runs one TTL-based decay pass over the episodic log, archiving
// unlinked events older than ttl and physically pruning already-archived
// ones, outside of the worker's own schedule. A zero ttl uses
// lifecycle.DefaultTTL.
func (e *Engine) Decay(ctx context.Context, ttl time.Duration, dryRun bool) (*DecayReport, error) {
	return lifecycle.Decay(ctx, e.meta, ttl, dryRun)
}

// DetectMerges runs one merge-detection pass over active decisions outside
// of the worker's own schedule. A zero threshold uses
// lifecycle.DefaultMergeThreshold.
func (e *Engine) DetectMerges(ctx context.Context, threshold float64) (*MergeReport, error) {
	return lifecycle.DetectMerges(ctx, e.Coord, e.meta, e.vec, threshold)
}

// Distill runs one trajectory-distillation pass over the episodic log
// outside of the worker's own schedule.
func (e *Engine) Distill(ctx context.Context) (*DistillReport, error) {
	return lifecycle.Distill(ctx, e.Coord, e.meta)
}

// Close persists the vector index to disk and releases the metadata
// index's connection. The content artifact store needs no explicit close:
// every write is already committed by the time it returns.
func (e *Engine) Close() error {
	vecPath := filepath.Join(e.cfg.StoragePath, "vectors.bin")
	if err := e.vec.Save(vecPath); err != nil {
		_ = e.meta.Close()
		return fmt.Errorf("ledgermind: save vector index: %w", err)
	}
	if e.telemetry != nil {
		if err := e.telemetry(context.Background()); err != nil {
			_ = e.meta.Close()
			return fmt.Errorf("ledgermind: shut down telemetry: %w", err)
		}
	}
	return e.meta.Close()
}

func buildEmbeddingProvider(cfg *config.Config) vector.Provider {
	mock := vector.NewMockProvider(0)
	if cfg.VectorModel == "" || cfg.VectorModel == "mock" {
		return wrapCaching(mock, cfg.EmbeddingCachePath)
	}
	remote := vector.NewRemoteProvider(cfg.VectorModel, "LEDGERMIND_EMBEDDING_API_KEY", mock.Dimension())
	fallback := vector.NewFallbackProvider(remote, mock)
	return wrapCaching(fallback, cfg.EmbeddingCachePath)
}

func wrapCaching(p vector.Provider, cachePath string) vector.Provider {
	if cachePath == "" {
		return p
	}
	return vector.NewCachingProvider(p, cachePath)
}

func daysToDuration(days int) time.Duration {
	if days <= 0 {
		return lifecycle.DefaultTTL
	}
	return time.Duration(days) * 24 * time.Hour
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
