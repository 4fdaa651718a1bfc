package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/syntheo/semantics/internal/config"
	"github.com/syntheo/semantics/internal/output"
	"github.com/syntheo/semantics/internal/store"
)

// statusInfo summarizes the state of an index for the status command.
type statusInfo struct {
	ProjectName    string    `json:"project_name"`
	TotalFiles     int       `json:"total_files"`
	TotalChunks    int       `json:"total_chunks"`
	LastIndexed    time.Time `json:"last_indexed"`
	MetadataSize   int64     `json:"metadata_size_bytes"`
	BM25Size       int64     `json:"bm25_size_bytes"`
	VectorSize     int64     `json:"vector_size_bytes"`
	TotalSize      int64     `json:"total_size_bytes"`
	EmbedderType   string    `json:"embedder_type"`
	EmbedderModel  string    `json:"embedder_model"`
	EmbedderStatus string    `json:"embedder_status"`
}

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index health and status",
		Long: `Display information about the current index including:
  - Number of indexed files and chunks
  - Last indexing time
  - Storage sizes (metadata, BM25, vectors)
  - Embedder configuration`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}

	dataDir := filepath.Join(root, ".syntheo")
	metadataPath := filepath.Join(dataDir, "metadata.db")
	if !fileExists(metadataPath) {
		return fmt.Errorf("no index found in %s\nRun 'syntheo index' to create one", root)
	}

	info, err := collectStatus(ctx, root, dataDir)
	if err != nil {
		return fmt.Errorf("failed to collect status: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	return renderStatus(output.New(cmd.OutOrStdout()), info)
}

func collectStatus(ctx context.Context, root, dataDir string) (statusInfo, error) {
	info := statusInfo{ProjectName: filepath.Base(root)}

	metadataPath := filepath.Join(dataDir, "metadata.db")
	metadata, err := store.NewSQLiteStore(metadataPath)
	if err != nil {
		return info, fmt.Errorf("failed to open metadata store: %w", err)
	}
	defer func() { _ = metadata.Close() }()

	projectID := projectIDFor(root)
	project, err := metadata.GetProject(ctx, projectID)
	if err == nil && project != nil {
		info.TotalFiles = project.FileCount
		info.TotalChunks = project.ChunkCount
		info.LastIndexed = project.IndexedAt
	}

	info.MetadataSize = getFileSize(metadataPath)
	info.BM25Size = getFileSize(filepath.Join(dataDir, "bm25.db"))
	info.VectorSize = getFileSize(filepath.Join(dataDir, "vectors.hnsw"))
	info.TotalSize = info.MetadataSize + info.BM25Size + info.VectorSize

	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}
	info.EmbedderType = cfg.Embeddings.Provider
	info.EmbedderModel = cfg.Embeddings.Model
	info.EmbedderStatus = "ready"

	return info, nil
}

func renderStatus(out *output.Writer, info statusInfo) error {
	out.Statusf("📊", "Status for %s", info.ProjectName)
	out.Newline()
	out.Status("", fmt.Sprintf("Files:    %d", info.TotalFiles))
	out.Status("", fmt.Sprintf("Chunks:   %d", info.TotalChunks))
	if !info.LastIndexed.IsZero() {
		out.Status("", fmt.Sprintf("Indexed:  %s", info.LastIndexed.Format(time.RFC3339)))
	} else {
		out.Status("", "Indexed:  never")
	}
	out.Newline()
	out.Status("", fmt.Sprintf("Metadata: %s", formatBytes(info.MetadataSize)))
	out.Status("", fmt.Sprintf("Keyword:  %s", formatBytes(info.BM25Size)))
	out.Status("", fmt.Sprintf("Vectors:  %s", formatBytes(info.VectorSize)))
	out.Status("", fmt.Sprintf("Total:    %s", formatBytes(info.TotalSize)))
	out.Newline()
	out.Status("", fmt.Sprintf("Embedder: %s (%s)", info.EmbedderType, info.EmbedderModel))
	return nil
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for n/div >= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// fileExists reports whether path exists and is accessible.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// getFileSize returns the size of a file in bytes, or 0 if it cannot be read.
func getFileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
