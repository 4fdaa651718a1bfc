package cmd

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/syntheo/semantics/internal/chunk"
	"github.com/syntheo/semantics/internal/config"
	"github.com/syntheo/semantics/internal/embed"
	"github.com/syntheo/semantics/internal/index"
	"github.com/syntheo/semantics/internal/output"
	"github.com/syntheo/semantics/internal/scanner"
	"github.com/syntheo/semantics/internal/search"
	"github.com/syntheo/semantics/internal/store"
	"github.com/syntheo/semantics/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [path]",
		Short: "Watch a directory and keep the index up to date",
		Long: `Watch a directory for file changes and incrementally update the index.

Runs until interrupted (Ctrl+C). Uses native filesystem notifications
where available, falling back to polling when it is not.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runWatch(ctx, cmd, path)
		},
	}
	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, path string) error {
	out := output.New(cmd.OutOrStdout())

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	root, err := config.FindProjectRoot(absPath)
	if err != nil {
		root = absPath
	}

	dataDir := filepath.Join(root, ".syntheo")
	metadataPath := filepath.Join(dataDir, "metadata.db")
	if _, statErr := os.Stat(metadataPath); os.IsNotExist(statErr) {
		return fmt.Errorf("no index found. Run 'syntheo index' first")
	}

	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}

	metadata, err := store.NewSQLiteStore(metadataPath)
	if err != nil {
		return fmt.Errorf("failed to open metadata: %w", err)
	}
	defer func() { _ = metadata.Close() }()

	bm25Path := filepath.Join(dataDir, "bm25.db")
	bm25, err := store.NewSQLiteBM25Index(bm25Path, store.DefaultBM25Config())
	if err != nil {
		return fmt.Errorf("failed to open keyword index: %w", err)
	}
	defer func() { _ = bm25.Close() }()

	embed.SetMLXConfig(embed.MLXServerConfig{
		Endpoint: cfg.Embeddings.MLXEndpoint,
		Model:    cfg.Embeddings.MLXModel,
	})
	provider := embed.ParseProvider(cfg.Embeddings.Provider)
	embedder, err := embed.NewEmbedder(ctx, provider, cfg.Embeddings.Model)
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}
	defer func() { _ = embedder.Close() }()

	vectorCfg := store.DefaultVectorStoreConfig(embedder.Dimensions())
	vector, err := store.NewHNSWStore(vectorCfg)
	if err != nil {
		return fmt.Errorf("failed to create vector store: %w", err)
	}
	defer func() { _ = vector.Close() }()

	vectorPath := filepath.Join(dataDir, "vectors.hnsw")
	if _, statErr := os.Stat(vectorPath); statErr == nil {
		if loadErr := vector.Load(vectorPath); loadErr != nil {
			slog.Debug("vector_load_failed", slog.String("error", loadErr.Error()))
		}
	}
	defer func() {
		if saveErr := vector.Save(vectorPath); saveErr != nil {
			slog.Warn("vector_save_failed", slog.String("error", saveErr.Error()))
		}
	}()

	engine, err := search.NewEngine(bm25, vector, embedder, metadata, search.DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to create search engine: %w", err)
	}
	defer func() { _ = engine.Close() }()

	sc, err := scanner.New()
	if err != nil {
		return fmt.Errorf("failed to create scanner: %w", err)
	}

	projectID := projectIDFor(root)
	coordinator := index.NewCoordinator(index.CoordinatorConfig{
		ProjectID:       projectID,
		RootPath:        root,
		DataDir:         dataDir,
		Engine:          engine,
		Metadata:        metadata,
		CodeChunker:     chunk.NewCodeChunker(),
		MDChunker:       chunk.NewMarkdownChunker(),
		Scanner:         sc,
		ExcludePatterns: cfg.Paths.Exclude,
	})

	if err := coordinator.ReconcileOnStartup(ctx); err != nil {
		slog.Warn("startup_reconciliation_failed", slog.String("error", err.Error()))
	}

	watchOpts := watcher.DefaultOptions()
	watchOpts.IgnorePatterns = cfg.Paths.Exclude
	w, err := watcher.NewHybridWatcher(watchOpts)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Start(ctx, root); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer func() { _ = w.Stop() }()

	out.Statusf("👀", "Watching %s (%s mode)", root, w.WatcherType())

	for {
		select {
		case <-ctx.Done():
			out.Newline()
			out.Status("", "Stopped watching")
			return nil

		case events, ok := <-w.Events():
			if !ok {
				return nil
			}
			if err := coordinator.HandleEvents(ctx, events); err != nil {
				out.Errorf("failed to handle file events: %v", err)
			} else {
				out.Statusf("", "Applied %d file event(s)", len(events))
			}

		case werr, ok := <-w.Errors():
			if !ok {
				return nil
			}
			out.Warningf("watcher error: %v", werr)
		}
	}
}

// projectIDFor derives the stable project ID used to scope metadata rows,
// matching the derivation the indexing runner uses.
func projectIDFor(root string) string {
	h := sha256.Sum256([]byte(root))
	return hex.EncodeToString(h[:])[:16]
}
