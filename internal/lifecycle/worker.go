package lifecycle

import (
	"context"
	"log"
	"time"

	"github.com/sl4m3/ledgermind/internal/engine"
	"github.com/sl4m3/ledgermind/internal/storage/sqlite"
	"github.com/sl4m3/ledgermind/internal/vector"
)

// WorkerConfig tunes the background loop's cadence and thresholds. Zero
// values fall back to their package defaults.
type WorkerConfig struct {
	TTL                time.Duration
	MergeThreshold     float64
	ReflectionInterval time.Duration
	DecayInterval      time.Duration
	MergeInterval      time.Duration
}

const (
	defaultReflectionInterval = 10 * time.Minute
	defaultDecayInterval      = time.Hour
	defaultMergeInterval      = time.Hour
)

// Worker is the single long-lived cooperative loop that periodically runs
// reflection, decay, and merge detection. No task checks the engine's writer
// lock before it starts or skips its turn when the lock is held: proposal
// writes go through the coordinator, which retries the lock for a bounded
// time, and decay writes the episodic log without taking the writer lock.
// A pass that fails is logged and runs again on its next tick.
type Worker struct {
	coord *engine.Coordinator
	meta  *sqlite.Storage
	vec   *vector.Index
	cfg   WorkerConfig

	stop chan struct{}
	done chan struct{}
}

// NewWorker builds a worker over an already-initialised engine.
func NewWorker(coord *engine.Coordinator, meta *sqlite.Storage, vec *vector.Index, cfg WorkerConfig) *Worker {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.MergeThreshold <= 0 {
		cfg.MergeThreshold = DefaultMergeThreshold
	}
	if cfg.ReflectionInterval <= 0 {
		cfg.ReflectionInterval = defaultReflectionInterval
	}
	if cfg.DecayInterval <= 0 {
		cfg.DecayInterval = defaultDecayInterval
	}
	if cfg.MergeInterval <= 0 {
		cfg.MergeInterval = defaultMergeInterval
	}
	return &Worker{
		coord: coord,
		meta:  meta,
		vec:   vec,
		cfg:   cfg,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Start launches the loop in a background goroutine. Stop blocks until the
// loop has exited.
func (w *Worker) Start(ctx context.Context) {
	go w.run(ctx)
}

// Stop signals the loop to exit and waits for it to do so.
func (w *Worker) Stop() {
	close(w.stop)
	<-w.done
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)

	reflectTicker := time.NewTicker(w.cfg.ReflectionInterval)
	defer reflectTicker.Stop()
	decayTicker := time.NewTicker(w.cfg.DecayInterval)
	defer decayTicker.Stop()
	mergeTicker := time.NewTicker(w.cfg.MergeInterval)
	defer mergeTicker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case <-reflectTicker.C:
			w.runReflection(ctx)
		case <-decayTicker.C:
			w.runDecay(ctx)
		case <-mergeTicker.C:
			w.runMerge(ctx)
		}
	}
}

func (w *Worker) runReflection(ctx context.Context) {
	report, err := Distill(ctx, w.coord, w.meta)
	if err != nil {
		log.Printf("lifecycle: reflection pass failed: %v", err)
		return
	}
	if len(report.ProposalsCreated) > 0 {
		log.Printf("lifecycle: reflection distilled %d proposal(s) from %d event(s)", len(report.ProposalsCreated), report.EventsProcessed)
	}
}

func (w *Worker) runDecay(ctx context.Context) {
	report, err := Decay(ctx, w.meta, w.cfg.TTL, false)
	if err != nil {
		log.Printf("lifecycle: decay pass failed: %v", err)
		return
	}
	if report.Archived > 0 || report.Pruned > 0 {
		log.Printf("lifecycle: decay archived=%d pruned=%d retained_by_link=%d", report.Archived, report.Pruned, report.RetainedByLink)
	}
}

func (w *Worker) runMerge(ctx context.Context) {
	report, err := DetectMerges(ctx, w.coord, w.meta, w.vec, w.cfg.MergeThreshold)
	if err != nil {
		log.Printf("lifecycle: merge scan failed: %v", err)
		return
	}
	if len(report.ProposalsCreated) > 0 {
		log.Printf("lifecycle: merge scan proposed %d candidate(s) from %d pair(s) examined", len(report.ProposalsCreated), report.PairsExamined)
	}
}
