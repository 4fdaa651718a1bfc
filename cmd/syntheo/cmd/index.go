package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/syntheo/semantics/internal/config"
	"github.com/syntheo/semantics/internal/embed"
	"github.com/syntheo/semantics/internal/index"
	"github.com/syntheo/semantics/internal/output"
	"github.com/syntheo/semantics/internal/store"
)

func newIndexCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index a directory for searching",
		Long: `Index a directory to enable hybrid search over its contents.

Scans files, chunks code and documents, generates embeddings, and builds
both the keyword (FTS5) and vector (HNSW) indices for fast retrieval.

If a previous run was interrupted, indexing resumes from its checkpoint
automatically. Use --force to discard the existing index and start over.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runIndex(ctx, cmd, path, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Clear the existing index and rebuild from scratch")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, path string, force bool) error {
	out := output.New(cmd.OutOrStdout())

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("failed to access path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", absPath)
	}

	root, err := config.FindProjectRoot(absPath)
	if err != nil {
		root = absPath
	}

	dataDir := filepath.Join(root, ".syntheo")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	if force {
		if err := clearIndexData(dataDir); err != nil {
			return fmt.Errorf("failed to clear index data: %w", err)
		}
		out.Status("", "Cleared existing index data, starting fresh...")
	}

	resumeFromChunk, checkpointModel, err := loadCheckpoint(ctx, dataDir, force)
	if err != nil {
		return err
	}
	if resumeFromChunk > 0 {
		out.Statusf("", "Resuming from checkpoint: %d chunks already embedded", resumeFromChunk)
	}

	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}

	metadataPath := filepath.Join(dataDir, "metadata.db")
	metadata, err := store.NewSQLiteStore(metadataPath)
	if err != nil {
		return fmt.Errorf("failed to create metadata store: %w", err)
	}
	defer func() { _ = metadata.Close() }()

	bm25Path := filepath.Join(dataDir, "bm25.db")
	bm25, err := store.NewSQLiteBM25Index(bm25Path, store.DefaultBM25Config())
	if err != nil {
		return fmt.Errorf("failed to create keyword index: %w", err)
	}
	defer func() { _ = bm25.Close() }()

	embed.SetMLXConfig(embed.MLXServerConfig{
		Endpoint: cfg.Embeddings.MLXEndpoint,
		Model:    cfg.Embeddings.MLXModel,
	})

	var interBatchDelay time.Duration
	thermalCfg := embed.ThermalConfig{
		TimeoutProgression:     cfg.Embeddings.TimeoutProgression,
		RetryTimeoutMultiplier: cfg.Embeddings.RetryTimeoutMultiplier,
	}
	if cfg.Embeddings.InterBatchDelay != "" {
		if delay, parseErr := time.ParseDuration(cfg.Embeddings.InterBatchDelay); parseErr == nil && delay > 0 {
			thermalCfg.InterBatchDelay = delay
			interBatchDelay = delay
		}
	}
	embed.SetThermalConfig(thermalCfg)

	provider := embed.ParseProvider(cfg.Embeddings.Provider)
	embedCtx, embedCancel := context.WithTimeout(ctx, 15*time.Second)
	embedder, err := embed.NewEmbedder(embedCtx, provider, cfg.Embeddings.Model)
	embedCancel()
	if err != nil {
		return fmt.Errorf("embedder initialization failed: %w", err)
	}
	defer func() { _ = embedder.Close() }()

	vectorCfg := store.DefaultVectorStoreConfig(embedder.Dimensions())
	vector, err := store.NewHNSWStore(vectorCfg)
	if err != nil {
		return fmt.Errorf("failed to create vector store: %w", err)
	}
	defer func() { _ = vector.Close() }()

	reporter := newPlainReporter(out)
	runner, err := index.NewRunner(index.RunnerDependencies{
		Renderer: reporter,
		Config:   cfg,
		Metadata: metadata,
		BM25:     bm25,
		Vector:   vector,
		Embedder: embedder,
	})
	if err != nil {
		return fmt.Errorf("failed to create index runner: %w", err)
	}
	defer func() { _ = runner.Close() }()

	_, err = runner.Run(ctx, index.RunnerConfig{
		RootDir:              root,
		DataDir:              dataDir,
		ResumeFromCheckpoint: resumeFromChunk,
		CheckpointModel:      checkpointModel,
		InterBatchDelay:      interBatchDelay,
	})
	return err
}

// clearIndexData removes all index-related files from the data directory.
func clearIndexData(dataDir string) error {
	files := []string{
		"metadata.db", "metadata.db-shm", "metadata.db-wal",
		"bm25.db", "bm25.db-shm", "bm25.db-wal",
		"vectors.hnsw",
	}
	for _, f := range files {
		if err := os.RemoveAll(filepath.Join(dataDir, f)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", f, err)
		}
	}
	return nil
}

// loadCheckpoint inspects any existing metadata store for an in-progress
// indexing checkpoint and returns where to resume from. force bypasses
// checkpoint discovery since the caller already cleared the data directory.
func loadCheckpoint(ctx context.Context, dataDir string, force bool) (resumeFromChunk int, embedderModel string, err error) {
	if force {
		return 0, "", nil
	}
	metadataPath := filepath.Join(dataDir, "metadata.db")
	if _, statErr := os.Stat(metadataPath); statErr != nil {
		return 0, "", nil
	}

	metadata, openErr := store.NewSQLiteStore(metadataPath)
	if openErr != nil {
		return 0, "", nil
	}
	defer func() { _ = metadata.Close() }()

	loadCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	checkpoint, loadErr := metadata.LoadIndexCheckpoint(loadCtx)
	if loadErr != nil || checkpoint == nil {
		if loadErr != nil {
			slog.Warn("checkpoint_load_failed", slog.String("error", loadErr.Error()))
		}
		return 0, "", nil
	}

	chunkIDVersion, _ := metadata.GetState(loadCtx, store.StateKeyChunkIDVersion)
	if chunkIDVersion != "" && chunkIDVersion != store.ChunkIDVersionContent {
		return 0, "", fmt.Errorf("index uses legacy chunk IDs (version %s); run with --force to rebuild", chunkIDVersion)
	}

	return checkpoint.EmbeddedCount, checkpoint.EmbedderModel, nil
}
