package main

import (
	"bufio"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sl4m3/ledgermind"
)

var recordCmd = &cobra.Command{
	Use:   "record [title]",
	Short: "Record a new active decision",
	Args:  cobra.ExactArgs(1),
	Run:   runRecord,
}

var (
	recordTarget       string
	recordRationale    string
	recordConsequences string
	recordNamespace    string
)

func init() {
	recordCmd.Flags().StringVar(&recordTarget, "target", "", "decision target (required)")
	recordCmd.Flags().StringVar(&recordRationale, "rationale", "", "rationale, at least 10 characters (required)")
	recordCmd.Flags().StringVar(&recordConsequences, "consequences", "", "free-form body text")
	recordCmd.Flags().StringVar(&recordNamespace, "namespace", "", "namespace (defaults to \"default\")")
	_ = recordCmd.MarkFlagRequired("target")
	_ = recordCmd.MarkFlagRequired("rationale")
	rootCmd.AddCommand(recordCmd)
}

// consequencesOrStdin returns flag when set; otherwise, if stdin is piped
// rather than an interactive terminal, it reads the consequences body from
// stdin so a caller can pipe a longer write-up in without a shell-quoted
// flag value.
func consequencesOrStdin(flag string) string {
	if flag != "" || term.IsTerminal(int(os.Stdin.Fd())) {
		return flag
	}
	body, err := io.ReadAll(bufio.NewReader(os.Stdin))
	if err != nil {
		return flag
	}
	return string(body)
}

func runRecord(cmd *cobra.Command, args []string) {
	e, err := openEngine(rootCtx)
	if err != nil {
		fatal(err)
	}
	defer func() { _ = e.Close() }()

	recordConsequences = consequencesOrStdin(recordConsequences)

	a, err := e.Coord.RecordDecision(rootCtx, ledgermind.RecordInput{
		Title:        args[0],
		Target:       recordTarget,
		Namespace:    recordNamespace,
		Rationale:    recordRationale,
		Consequences: recordConsequences,
		Source:       ledgermind.SourceUser,
	})
	if err != nil {
		fatal(err)
	}
	printResult(a)
}
