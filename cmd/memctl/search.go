package main

import (
	"github.com/spf13/cobra"

	"github.com/sl4m3/ledgermind"
)

var (
	searchMode  string
	searchLimit int
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Hybrid keyword + vector search over recorded decisions",
	Args:  cobra.ExactArgs(1),
	Run:   runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&searchMode, "mode", "balanced", "strict | balanced | audit")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "maximum results")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	e, err := openEngine(rootCtx)
	if err != nil {
		fatal(err)
	}
	defer func() { _ = e.Close() }()

	resp, err := e.Search.Search(rootCtx, args[0], ledgermind.SearchMode(searchMode), searchLimit)
	if err != nil {
		fatal(err)
	}
	printResult(resp)
}
