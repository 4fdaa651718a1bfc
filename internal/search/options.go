package search

import (
	"sort"
	"strings"
	"time"

	"github.com/syntheo/semantics/internal/store"
)

// FilterFunc checks if a search result matches filter criteria.
type FilterFunc func(result *SearchResult) bool

// ApplyFilters filters results based on search options.
// Filters use AND logic - results must match all specified criteria.
func ApplyFilters(results []*SearchResult, opts SearchOptions) []*SearchResult {
	if opts.Filter == "all" && opts.Language == "" && opts.SymbolType == "" &&
		len(opts.Scopes) == 0 && opts.MinScore <= 0 {
		return results
	}

	filters := buildFilters(opts)
	if len(filters) == 0 {
		return results
	}

	filtered := make([]*SearchResult, 0, len(results))
	for _, r := range results {
		if matchesAllFilters(r, filters) {
			filtered = append(filtered, r)
		}
	}

	return filtered
}

// buildFilters creates filter functions based on options.
func buildFilters(opts SearchOptions) []FilterFunc {
	var filters []FilterFunc

	// Content type filter
	if opts.Filter != "" && opts.Filter != "all" {
		filters = append(filters, contentTypeFilter(opts.Filter))
	}

	// Language filter
	if opts.Language != "" {
		filters = append(filters, languageFilter(opts.Language))
	}

	// Symbol type filter
	if opts.SymbolType != "" {
		filters = append(filters, symbolTypeFilter(opts.SymbolType))
	}

	// Scope filter
	if len(opts.Scopes) > 0 {
		filters = append(filters, scopeFilter(opts.Scopes))
	}

	// Minimum score filter (stage 5 of the retrieval pipeline)
	if opts.MinScore > 0 {
		filters = append(filters, minScoreFilter(opts.MinScore))
	}

	return filters
}

// minScoreFilter creates a filter that drops results below a score threshold.
func minScoreFilter(minScore float64) FilterFunc {
	return func(r *SearchResult) bool {
		return r.Score >= minScore
	}
}

// matchesAllFilters checks if a result passes all filters (AND logic).
func matchesAllFilters(result *SearchResult, filters []FilterFunc) bool {
	for _, f := range filters {
		if !f(result) {
			return false
		}
	}
	return true
}

// contentTypeFilter creates a filter for content type.
func contentTypeFilter(filter string) FilterFunc {
	return func(r *SearchResult) bool {
		if r.Chunk == nil {
			return false
		}

		switch filter {
		case "code":
			return r.Chunk.ContentType == store.ContentTypeCode
		case "docs":
			return r.Chunk.ContentType == store.ContentTypeMarkdown ||
				r.Chunk.ContentType == store.ContentTypeText
		default:
			return true
		}
	}
}

// languageFilter creates a filter for programming language.
func languageFilter(lang string) FilterFunc {
	return func(r *SearchResult) bool {
		if r.Chunk == nil {
			return false
		}
		return r.Chunk.Language == lang
	}
}

// symbolTypeFilter creates a filter for symbol type.
func symbolTypeFilter(symbolType string) FilterFunc {
	return func(r *SearchResult) bool {
		if r.Chunk == nil || len(r.Chunk.Symbols) == 0 {
			return false
		}

		targetType := store.SymbolType(symbolType)
		for _, s := range r.Chunk.Symbols {
			if s.Type == targetType {
				return true
			}
		}
		return false
	}
}

// ValidateOptions checks if search options are valid.
func ValidateOptions(opts SearchOptions) error {
	// Validate filter value
	switch opts.Filter {
	case "", "all", "code", "docs":
		// Valid
	default:
		// Accept unknown filters but treat as "all"
	}

	return nil
}

// NormalizeScope ensures consistent path format for matching.
// Strips leading and trailing slashes.
func NormalizeScope(scope string) string {
	return strings.Trim(scope, "/")
}

// scopeFilter creates a filter for path scope prefixes.
// Multiple scopes use OR logic - matches if path starts with ANY scope.
func scopeFilter(scopes []string) FilterFunc {
	// Pre-normalize all scopes once for performance
	// Add trailing slash to ensure directory boundary matching
	// e.g., "services/api" becomes "services/api/" to avoid matching "services/api-v2"
	normalized := make([]string, 0, len(scopes))
	for _, s := range scopes {
		if n := NormalizeScope(s); n != "" {
			normalized = append(normalized, n+"/")
		}
	}

	// If no valid scopes after normalization, match everything
	if len(normalized) == 0 {
		return func(*SearchResult) bool { return true }
	}

	return func(r *SearchResult) bool {
		if r.Chunk == nil {
			return false
		}
		// Normalize file path and add trailing slash for consistent matching
		filePath := NormalizeScope(r.Chunk.FilePath) + "/"
		for _, scope := range normalized {
			if strings.HasPrefix(filePath, scope) {
				return true
			}
		}
		return false
	}
}

// recencyWindow is how long after indexing a chunk counts as "recent" for
// the recency boost. Chunk.UpdatedAt is stamped at index time, which stands
// in for the file's own modification recency without an extra per-result
// file lookup.
const recencyWindow = 24 * time.Hour

// isFunctionLikeBlock reports whether a raw block_type (the chunker's
// tree-sitter node kind) denotes a function or method body.
func isFunctionLikeBlock(blockType string) bool {
	bt := strings.ToLower(blockType)
	return strings.Contains(bt, "function") || strings.Contains(bt, "method")
}

// blockTypeBoost implements the block-type boost table (stage 4).
func blockTypeBoost(blockType string) float64 {
	bt := strings.ToLower(blockType)
	switch {
	case bt == "file":
		return 0.95
	case isFunctionLikeBlock(bt):
		return 1.3
	case strings.Contains(bt, "decorat"):
		return 1.25
	case strings.Contains(bt, "class"):
		return 1.2
	case strings.Contains(bt, "interface"), strings.Contains(bt, "type_alias"), strings.Contains(bt, "type_definition"):
		return 1.15
	case strings.Contains(bt, "enum"):
		return 1.1
	default:
		return 1.0
	}
}

// symbolNameBoost implements the symbol-name boost table (stage 4).
func symbolNameBoost(query, symbolName string) float64 {
	if symbolName == "" || query == "" {
		return 1.0
	}
	q := strings.ToLower(query)
	sym := strings.ToLower(symbolName)
	switch {
	case sym == q:
		return 1.5
	case strings.Contains(sym, q):
		return 1.3
	case strings.Contains(q, sym):
		return 1.2
	default:
		return 1.0
	}
}

// filePathBoost implements the file-path boost table (stage 4).
func filePathBoost(query, filePath string) float64 {
	if filePath == "" || query == "" {
		return 1.0
	}
	q := strings.ToLower(query)
	path := strings.ToLower(filePath)
	basename := path
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		basename = path[idx+1:]
	}
	switch {
	case strings.Contains(path, q):
		return 1.3
	case strings.Contains(basename, q):
		return 1.2
	default:
		return 1.0
	}
}

// languageDistributionBoost implements the language-distribution boost table
// (stage 4), given the fraction of the corpus's blocks written in a language.
func languageDistributionBoost(fraction float64) float64 {
	switch {
	case fraction > 0.5:
		return 1.1
	case fraction > 0.2:
		return 1.05
	case fraction < 0.05 && fraction > 0:
		return 0.95
	default:
		return 1.0
	}
}

// channelBalanceBoost implements the channel-balance boost table (stage 4),
// given normalized semantic and keyword channel scores (both in [0,1]).
func channelBalanceBoost(sem, kw float64) float64 {
	switch {
	case sem > 0.7 && kw > 0.7:
		return 1.2
	case sem > 0.8 || kw > 0.8:
		return 1.1
	case sem < 0.3 && kw < 0.3:
		return 0.8
	default:
		return 1.0
	}
}

// ApplyBoosts multiplies each result's score by the product of the stage-4
// boost factors (symbol name, file path, recency, block type, language
// distribution, channel balance) and re-sorts descending.
func ApplyBoosts(results []*SearchResult, query string, langCounts map[string]int) []*SearchResult {
	if len(results) == 0 {
		return results
	}

	var totalChunks int
	for _, n := range langCounts {
		totalChunks += n
	}

	now := time.Now()
	for _, r := range results {
		if r.Chunk == nil {
			continue
		}
		c := r.Chunk

		boost := symbolNameBoost(query, c.SymbolName)
		boost *= filePathBoost(query, c.FilePath)
		if now.Sub(c.UpdatedAt) < recencyWindow {
			boost *= 1.25
		}
		boost *= blockTypeBoost(c.BlockType)
		if totalChunks > 0 {
			fraction := float64(langCounts[c.Language]) / float64(totalChunks)
			boost *= languageDistributionBoost(fraction)
		}
		boost *= channelBalanceBoost(r.VecScore, normalizeBM25Score(r.BM25Score))

		r.Score *= boost
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	return results
}

// ApplyRerank implements stage 7: a deterministic re-rank pass over the
// already boosted, filtered, sorted, and truncated result set. Each score is
// multiplied by the re-rank factor table, clipped to <= 1.0, then results are
// re-sorted descending. A no-op when fewer than 2 results are present.
func ApplyRerank(results []*SearchResult, query string) []*SearchResult {
	if len(results) < 2 {
		return results
	}

	q := strings.ToLower(strings.TrimSpace(query))
	var queryTokens []string
	for _, tok := range strings.Fields(q) {
		if len(tok) > 2 {
			queryTokens = append(queryTokens, tok)
		}
	}

	for _, r := range results {
		if r.Chunk == nil {
			continue
		}
		c := r.Chunk

		factor := 1.0
		sym := strings.ToLower(c.SymbolName)
		content := strings.ToLower(c.Content)

		switch {
		case sym != "" && q != "" && sym == q:
			factor *= 1.5
		case sym != "" && q != "" && strings.Contains(sym, q):
			factor *= 1.2
		}

		if q != "" && strings.Contains(content, q) {
			factor *= 1.1
		}

		var matches int
		for _, tok := range queryTokens {
			if strings.Contains(content, tok) {
				matches++
			}
		}
		factor *= 1 + 0.05*float64(matches)

		if r.VecScore > 0.8 && normalizeBM25Score(r.BM25Score) > 0.5 {
			factor *= 1.15
		}

		if isFunctionLikeBlock(c.BlockType) {
			factor *= 1.05
		}

		if lines := c.EndLine - c.StartLine + 1; lines > 50 {
			factor *= 0.95
		}

		r.Score *= factor
		if r.Score > 1.0 {
			r.Score = 1.0
		}
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	return results
}
