package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/syntheo/semantics/internal/config"
	"github.com/syntheo/semantics/internal/output"
)

func newClearCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove the index for the current project",
		Long: `Delete the metadata, keyword, and vector index files for the current
project. The source files on disk are untouched; run 'syntheo index'
afterward to rebuild.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClear(cmd, yes)
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")

	return cmd
}

func runClear(cmd *cobra.Command, yes bool) error {
	out := output.New(cmd.OutOrStdout())

	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}
	dataDir := filepath.Join(root, ".syntheo")

	if !fileExists(filepath.Join(dataDir, "metadata.db")) {
		out.Status("", fmt.Sprintf("No index found in %s", root))
		return nil
	}

	if !yes {
		out.Statusf("⚠", "This will delete the index at %s", dataDir)
		out.Status("", "Re-run with --yes to confirm")
		return nil
	}

	if err := clearIndexData(dataDir); err != nil {
		return fmt.Errorf("failed to clear index data: %w", err)
	}

	out.Success("Index cleared")
	return nil
}
