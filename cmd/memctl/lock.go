package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sl4m3/ledgermind/internal/lockfile"
)

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Inspect the storage root's writer lock",
}

var lockStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report who holds the writer lock, and whether that process is still alive",
	Run:   runLockStatus,
}

func init() {
	lockCmd.AddCommand(lockStatusCmd)
	rootCmd.AddCommand(lockCmd)
}

// lockStatus is the JSON/printResult shape for `memctl lock status`.
type lockStatus struct {
	Path  string `json:"path"`
	Held  bool   `json:"held"`
	PID   int    `json:"pid,omitempty"`
	Alive bool   `json:"alive,omitempty"`
}

func runLockStatus(cmd *cobra.Command, args []string) {
	path := filepath.Join(storagePath, ".engine.lock")

	// A successful shared acquisition proves no writer currently holds the
	// exclusive lock; release it immediately, this command only observes.
	shared, err := lockfile.AcquireShared(path)
	held := lockfile.IsBusy(err)
	if err == nil {
		_ = shared.Release()
	} else if !held {
		fatal(err)
	}

	status := lockStatus{Path: path, Held: held}
	if pid, alive, serr := lockfile.Status(path); serr == nil {
		status.PID = pid
		status.Alive = alive
	}
	if status.Held && !status.Alive && status.PID != 0 {
		fmt.Printf("warning: lock recorded pid %d is not running; the lock file may be stale\n", status.PID)
	}
	printResult(status)
}
