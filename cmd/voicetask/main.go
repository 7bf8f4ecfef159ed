// Package main implements the voicetask CLI.
//
// voicetask turns spoken notes into a task list: audio is transcribed,
// tasks are extracted by a language model, kept locally and optionally
// pushed to a workspace database.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	// configPath overrides the default config file location
	configPath string
	// logLevel overrides logging.level from the config
	logLevel string
	// version information
	version = "dev"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "voicetask",
	Short: "Turn voice notes into tasks",
	Long: `voicetask transcribes a voice note, extracts the tasks in it and keeps
them in a local list. With workspace credentials and a field mapping set,
new tasks are also added to the workspace database.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/voicetask/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(credentialsCmd)
	rootCmd.AddCommand(mappingCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "voicetask by Fyrsmith Labs\nVersion: %s\n", version)
	},
}
