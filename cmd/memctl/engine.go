package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/sl4m3/ledgermind"
)

// openEngine opens the memory engine at the configured storage root.
// Callers must Close() the returned engine.
func openEngine(ctx context.Context) (*ledgermind.Engine, error) {
	return ledgermind.Open(ctx, storagePath)
}

// printResult renders v as JSON when --json is set, otherwise via fmt's
// default verb, one value per line.
func printResult(v any) {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(v)
		return
	}
	fmt.Printf("%+v\n", v)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "memctl:", err)
	os.Exit(1)
}
