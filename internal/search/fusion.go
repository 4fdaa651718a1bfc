// Package search provides hybrid search functionality combining BM25 and semantic search.
// Channel fusion is a linear weighted union over normalized per-channel scores.
package search

import (
	"sort"

	"github.com/syntheo/semantics/internal/store"
)

// DefaultRRFConstant is the RRF smoothing parameter retained on RRFFusion
// for constructor compatibility.
const DefaultRRFConstant = 60

// bm25NormCap is the BM25 score ceiling above which the keyword channel's
// normalized score saturates at 1.0.
const bm25NormCap = 10.0

// Default channel weights for hybrid fusion: semantic carries more signal
// for natural-language queries, keyword preserves exact-match recall.
const (
	DefaultSemanticWeight = 0.7
	DefaultKeywordWeight  = 0.3
)

// FusedResult represents a single result after channel fusion.
type FusedResult struct {
	ChunkID      string   // Chunk identifier
	RRFScore     float64  // Combined fused score (0-1)
	BM25Score    float64  // Original BM25 score (preserved)
	BM25Rank     int      // Position in BM25 list (1-indexed, 0 if absent)
	VecScore     float64  // Original vector similarity score (preserved)
	VecRank      int      // Position in vector list (1-indexed, 0 if absent)
	InBothLists  bool     // Document appeared in both result lists
	MatchedTerms []string // BM25 matched terms (for highlighting)

	kwNorm  float64 // normalized BM25 score used for fusion
	semNorm float64 // normalized vector score used for fusion
}

// RRFFusion combines BM25 and vector search results into a single ranked list.
//
// Algorithm: score(d) = (sem(d)·w_s + kw(d)·w_k) / (w_s + w_k)
//
// Where sem/kw are each channel's normalized score (max across duplicate
// entries for the same block), and w_s/w_k are the caller-supplied weights.
// The K field is retained for constructor/config compatibility but does not
// affect this formula.
type RRFFusion struct {
	K int
}

// NewRRFFusion creates a new fusion instance with the default K.
func NewRRFFusion() *RRFFusion {
	return &RRFFusion{K: DefaultRRFConstant}
}

// NewRRFFusionWithK creates a new fusion instance with a custom K.
// If k <= 0, defaults to 60.
func NewRRFFusionWithK(k int) *RRFFusion {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &RRFFusion{K: k}
}

// Fuse combines BM25 and vector results on the union of their block IDs.
//
// Results are sorted by: score (desc) → InBothLists (true first) → BM25Score (desc) → ChunkID (asc)
func (f *RRFFusion) Fuse(
	bm25 []*store.BM25Result,
	vec []*store.VectorResult,
	weights Weights,
) []*FusedResult {
	// Return empty slice, not nil, for consistent API behavior (DEBT-012)
	if len(bm25) == 0 && len(vec) == 0 {
		return []*FusedResult{}
	}

	capacity := len(bm25) + len(vec)
	scores := make(map[string]*FusedResult, capacity)

	for rank, r := range bm25 {
		result := f.getOrCreate(scores, r.DocID)
		if result.BM25Rank == 0 || rank+1 < result.BM25Rank {
			result.BM25Rank = rank + 1
		}
		if r.Score > result.BM25Score {
			result.BM25Score = r.Score
			result.MatchedTerms = r.MatchedTerms
		}
		if norm := normalizeBM25Score(r.Score); norm > result.kwNorm {
			result.kwNorm = norm
		}
	}

	for rank, r := range vec {
		result := f.getOrCreate(scores, r.ID)
		if result.VecRank == 0 || rank+1 < result.VecRank {
			result.VecRank = rank + 1
		}
		sem := float64(r.Score)
		if sem > result.VecScore {
			result.VecScore = sem
		}
		if sem > result.semNorm {
			result.semNorm = sem
		}
	}

	denom := weights.BM25 + weights.Semantic
	for _, r := range scores {
		r.InBothLists = r.BM25Rank > 0 && r.VecRank > 0
		if denom > 0 {
			r.RRFScore = (r.semNorm*weights.Semantic + r.kwNorm*weights.BM25) / denom
		}
	}

	results := f.toSortedSlice(scores)
	return results
}

// normalizeBM25Score caps a raw BM25 score to [0,1].
func normalizeBM25Score(score float64) float64 {
	if score <= 0 {
		return 0
	}
	norm := score / bm25NormCap
	if norm > 1 {
		return 1
	}
	return norm
}

// getOrCreate returns existing result or creates new one.
func (f *RRFFusion) getOrCreate(m map[string]*FusedResult, id string) *FusedResult {
	if r, ok := m[id]; ok {
		return r
	}
	r := &FusedResult{ChunkID: id}
	m[id] = r
	return r
}

// toSortedSlice converts map to slice and sorts by score with tie-breaking.
func (f *RRFFusion) toSortedSlice(m map[string]*FusedResult) []*FusedResult {
	results := make([]*FusedResult, 0, len(m))
	for _, r := range m {
		results = append(results, r)
	}

	sort.Slice(results, func(i, j int) bool {
		return f.compare(results[i], results[j])
	})

	return results
}

// compare implements deterministic comparison for sorting.
// Returns true if a should rank before b.
//
// Priority:
//  1. Higher fused score
//  2. In both lists (true before false)
//  3. Higher BM25 score (exact match indicator)
//  4. Lexicographically smaller ChunkID (deterministic)
func (f *RRFFusion) compare(a, b *FusedResult) bool {
	if a.RRFScore != b.RRFScore {
		return a.RRFScore > b.RRFScore
	}

	if a.InBothLists != b.InBothLists {
		return a.InBothLists
	}

	if a.BM25Score != b.BM25Score {
		return a.BM25Score > b.BM25Score
	}

	return a.ChunkID < b.ChunkID
}
