// Package cmd provides the CLI commands for syntheo.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/syntheo/semantics/internal/logging"
	"github.com/syntheo/semantics/pkg/version"
)

var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the syntheo CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "syntheo",
		Short: "Local-first hybrid code search",
		Long: `syntheo indexes a workspace into a dual index (dense vector + inverted
keyword) and answers natural-language queries via hybrid retrieval.

It runs entirely locally with zero configuration required.`,
		Version:           version.Version,
		SilenceUsage:      true,
		PersistentPreRunE: startLogging,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			stopLogging()
			return nil
		},
	}
	root.SetVersionTemplate("syntheo version {{.Version}}\n")

	root.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.amanmcp/logs/")

	root.AddCommand(newIndexCmd())
	root.AddCommand(newSearchCmd())
	root.AddCommand(newWatchCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newClearCmd())

	return root
}

func startLogging(*cobra.Command, []string) error {
	cfg := logging.DefaultConfig()
	cfg.WriteToStderr = false
	if debugMode {
		cfg = logging.DebugConfig()
	}
	logger, cleanup, err := logging.Setup(cfg)
	if err != nil {
		// Logging is not critical to CLI operation; fall back to discarding.
		return nil
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}

func stopLogging() {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
