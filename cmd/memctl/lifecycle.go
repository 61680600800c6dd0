package main

import (
	"time"

	"github.com/spf13/cobra"
)

var (
	decayTTLDays   int
	decayDryRun    bool
	mergeThreshold float64
)

var decayCmd = &cobra.Command{
	Use:   "decay",
	Short: "Archive and prune stale, unlinked episodic events",
	Run:   runDecay,
}

var mergeCmd = &cobra.Command{
	Use:   "merge-scan",
	Short: "Scan active decisions for near-duplicates and propose merges",
	Run:   runMergeScan,
}

var distillCmd = &cobra.Command{
	Use:   "distill",
	Short: "Distill successful task trajectories into procedure proposals",
	Run:   runDistill,
}

func init() {
	decayCmd.Flags().IntVar(&decayTTLDays, "ttl-days", 0, "TTL in days for this pass (0 uses the built-in 30-day default; ttl_days from config is not applied)")
	decayCmd.Flags().BoolVar(&decayDryRun, "dry-run", false, "report counts without mutating the log")
	mergeCmd.Flags().Float64Var(&mergeThreshold, "threshold", 0, "cosine similarity threshold for this pass (0 uses the built-in 0.9 default; merge_threshold from config is not applied)")
	rootCmd.AddCommand(decayCmd, mergeCmd, distillCmd)
}

func runDecay(cmd *cobra.Command, args []string) {
	e, err := openEngine(rootCtx)
	if err != nil {
		fatal(err)
	}
	defer func() { _ = e.Close() }()

	var ttl time.Duration
	if decayTTLDays > 0 {
		ttl = time.Duration(decayTTLDays) * 24 * time.Hour
	}
	report, err := e.Decay(rootCtx, ttl, decayDryRun)
	if err != nil {
		fatal(err)
	}
	printResult(report)
}

func runMergeScan(cmd *cobra.Command, args []string) {
	e, err := openEngine(rootCtx)
	if err != nil {
		fatal(err)
	}
	defer func() { _ = e.Close() }()

	report, err := e.DetectMerges(rootCtx, mergeThreshold)
	if err != nil {
		fatal(err)
	}
	printResult(report)
}

func runDistill(cmd *cobra.Command, args []string) {
	e, err := openEngine(rootCtx)
	if err != nil {
		fatal(err)
	}
	defer func() { _ = e.Close() }()

	report, err := e.Distill(rootCtx)
	if err != nil {
		fatal(err)
	}
	printResult(report)
}
