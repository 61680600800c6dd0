package main

import (
	"github.com/spf13/cobra"

	"github.com/sl4m3/ledgermind"
)

var supersedeCmd = &cobra.Command{
	Use:   "supersede [title]",
	Short: "Supersede one or more active decisions with a new one",
	Args:  cobra.ExactArgs(1),
	Run:   runSupersede,
}

var (
	supersedeTarget    string
	supersedeRationale string
	supersedeOldFIDs   []string
)

func init() {
	supersedeCmd.Flags().StringVar(&supersedeTarget, "target", "", "decision target (required)")
	supersedeCmd.Flags().StringVar(&supersedeRationale, "rationale", "", "rationale, at least 15 characters (required)")
	supersedeCmd.Flags().StringArrayVar(&supersedeOldFIDs, "supersedes", nil, "fid of an active decision being replaced (repeatable, required)")
	_ = supersedeCmd.MarkFlagRequired("target")
	_ = supersedeCmd.MarkFlagRequired("rationale")
	_ = supersedeCmd.MarkFlagRequired("supersedes")
	rootCmd.AddCommand(supersedeCmd)
}

func runSupersede(cmd *cobra.Command, args []string) {
	e, err := openEngine(rootCtx)
	if err != nil {
		fatal(err)
	}
	defer func() { _ = e.Close() }()

	a, err := e.Coord.SupersedeDecision(rootCtx, ledgermind.SupersedeInput{
		Title:     args[0],
		Target:    supersedeTarget,
		Rationale: supersedeRationale,
		OldFIDs:   supersedeOldFIDs,
		Source:    ledgermind.SourceUser,
	})
	if err != nil {
		fatal(err)
	}
	printResult(a)
}
