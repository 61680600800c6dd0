package main

import (
	"github.com/spf13/cobra"
)

var acceptCmd = &cobra.Command{
	Use:   "accept [fid]",
	Short: "Promote a proposal to an active decision",
	Args:  cobra.ExactArgs(1),
	Run:   runAccept,
}

func init() {
	rootCmd.AddCommand(acceptCmd)
}

func runAccept(cmd *cobra.Command, args []string) {
	e, err := openEngine(rootCtx)
	if err != nil {
		fatal(err)
	}
	defer func() { _ = e.Close() }()

	a, err := e.Coord.AcceptProposal(rootCtx, args[0])
	if err != nil {
		fatal(err)
	}
	printResult(a)
}
