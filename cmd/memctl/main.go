// Command memctl is a thin CLI over the ledgermind memory engine: record
// and supersede decisions, accept proposals, run hybrid search, and drive
// the lifecycle engine (decay/merge/distill) on demand.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	storagePath string
	jsonOutput  bool

	rootCtx context.Context
)

var rootCmd = &cobra.Command{
	Use:   "memctl",
	Short: "Operate a ledgermind memory engine storage root",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&storagePath, "storage", ".ledgermind", "storage root directory")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit JSON output")
}

func main() {
	rootCtx = context.Background()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
