// Package app wires configuration, storage and the harvest pipeline into the
// exam-harvester command line.
package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "exam-harvester",
	Short: "Harvest public exam questions into the question bank",
	Long: `exam-harvester crawls exam catalog categories, stores each exam's booklet
and answer key in object storage, extracts the questions with a language model
and bulk-inserts them with their subject/topic/subtopic taxonomy.

Configuration is read from the environment (and .env outside production).`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(resetFailedCmd)
	rootCmd.AddCommand(migrateCmd)
}

// Execute runs the command line until it finishes or SIGINT/SIGTERM arrives
func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return rootCmd.ExecuteContext(ctx)
}
