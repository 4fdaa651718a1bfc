package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FormatBytes renders a byte count as a human-readable size, used by the
// `syntheo status` command's index summary.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// FormatTime renders a timestamp for display, or "unknown" for a zero time.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.Format("2006-01-02 15:04:05")
}

// containsAny reports whether s contains any of substrings.
func containsAny(s string, substrings []string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// inferBackendFromModel guesses the embedder backend from a model name or
// path, for display purposes only — the authoritative backend comes from
// config, this is a fallback when only the model string is known.
func inferBackendFromModel(model string) string {
	if model == "static" || strings.HasPrefix(model, "static") {
		return "static"
	}
	if strings.HasPrefix(model, "/") || containsAny(model, []string{"mlx-community/", "mlx-", "/mlx/"}) {
		return "mlx"
	}
	return "ollama"
}

// getDirSize walks dir and sums the size of every regular file under it.
// Returns 0 if dir doesn't exist or can't be walked.
func getDirSize(dir string) int64 {
	var total int64
	_ = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil //nolint:nilerr // best-effort size, skip unreadable entries
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total
}

// BuildIndexInfo assembles the `syntheo status` command's report from the
// metadata store, the keyword index file, and the vector index file.
func BuildIndexInfo(ctx context.Context, metaStore MetadataStore, location, projectRoot, bm25Path, vectorPath string, currentModel, currentBackend string, currentDimensions int) (*IndexInfo, error) {
	info := &IndexInfo{
		Location:          location,
		ProjectRoot:       projectRoot,
		CurrentModel:      currentModel,
		CurrentBackend:    currentBackend,
		CurrentDimensions: currentDimensions,
	}

	indexModel, err := metaStore.GetState(ctx, StateKeyIndexModel)
	if err != nil {
		return nil, fmt.Errorf("read index model: %w", err)
	}
	info.IndexModel = indexModel
	info.IndexBackend = inferBackendFromModel(indexModel)

	dimStr, err := metaStore.GetState(ctx, StateKeyIndexDimension)
	if err != nil {
		return nil, fmt.Errorf("read index dimension: %w", err)
	}
	fmt.Sscanf(dimStr, "%d", &info.IndexDimensions)

	info.Compatible = info.IndexModel == "" ||
		(info.IndexModel == currentModel && info.IndexDimensions == currentDimensions)

	if st, err := os.Stat(bm25Path); err == nil {
		info.BM25SizeBytes = st.Size()
	}
	if st, err := os.Stat(vectorPath); err == nil {
		info.VectorSizeBytes = st.Size()
	} else {
		info.VectorSizeBytes = getDirSize(vectorPath)
	}
	info.IndexSizeBytes = info.BM25SizeBytes + info.VectorSizeBytes

	withEmb, withoutEmb, err := metaStore.GetEmbeddingStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("read embedding stats: %w", err)
	}
	info.ChunkCount = withEmb + withoutEmb

	return info, nil
}
