// Package search implements the two-stage hybrid search over articles:
// vector-similarity preselection followed by full-text re-ranking, fused
// into a single score.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/akozyrev/scholium/pkg/embedder"
	"github.com/akozyrev/scholium/pkg/store"
)

const (
	// Preselect bounds. A pathologically small candidate window hurts
	// recall; an unbounded one hurts latency and memory.
	minPreselect = 10
	maxPreselect = 2000
)

// CandidateSource is the stage-1 primitive: nearest-K retrieval by vector
// distance.
type CandidateSource interface {
	VectorCandidates(ctx context.Context, queryVector []float32, preselect int) ([]store.Candidate, error)
}

// FulltextRanker is the stage-2 primitive: text relevance restricted to a
// given id set.
type FulltextRanker interface {
	FulltextScores(ctx context.Context, query string, ids []int64) (map[int64]float64, error)
}

// Backend is the storage surface the engine needs. *store.ArticleStore
// satisfies it.
type Backend interface {
	CandidateSource
	FulltextRanker
}

// Options are the per-query tuning knobs.
type Options struct {
	// Limit is the number of results returned.
	Limit int

	// Preselect is the requested stage-1 candidate pool size; it is
	// clamped into [10, 2000] regardless of the caller's value.
	Preselect int

	// Alpha weights vector similarity against normalized full-text rank.
	// 1 degenerates to pure semantic ranking, 0 to pure full-text ranking
	// over the semantically preselected set.
	Alpha float64
}

// Engine fuses vector similarity with full-text relevance.
type Engine struct {
	embedder embedder.Embedder
	backend  Backend
	logger   *slog.Logger
}

// NewEngine creates a hybrid search engine.
func NewEngine(emb embedder.Embedder, backend Backend) (*Engine, error) {
	if emb == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	return &Engine{
		embedder: emb,
		backend:  backend,
		logger:   slog.Default(),
	}, nil
}

// Search runs the two-stage hybrid search and returns results ordered by
// fused score descending, truncated to opts.Limit.
//
// An embedding provider failure propagates. An embedding that degenerates
// to an empty vector yields an empty result, as does an empty stage-1
// candidate set (in which case stage 2 never runs).
func (e *Engine) Search(ctx context.Context, query string, opts Options) ([]store.ArticleMeta, error) {
	queryVector, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(queryVector) == 0 {
		// No semantic signal for this query; not an error.
		return nil, nil
	}

	preselect := clampPreselect(opts.Preselect)

	candidates, err := e.backend.VectorCandidates(ctx, queryVector, preselect)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}

	ftScores, err := e.backend.FulltextScores(ctx, query, ids)
	if err != nil {
		return nil, err
	}

	fused := fuseScores(candidates, ftScores, opts.Alpha)

	e.logger.Debug("hybrid search scored candidates",
		"query", query,
		"candidates", len(candidates),
		"preselect", preselect,
		"alpha", opts.Alpha)

	limit := opts.Limit
	if limit < 1 {
		limit = 10
	}
	if len(fused) > limit {
		fused = fused[:limit]
	}
	return fused, nil
}

func clampPreselect(preselect int) int {
	if preselect < minPreselect {
		return minPreselect
	}
	if preselect > maxPreselect {
		return maxPreselect
	}
	return preselect
}

// Similarity converts a vector distance to a similarity in (0, 1]. It is
// strictly decreasing in distance and never divides by zero.
func Similarity(distance float64) float64 {
	return 1.0 / (1.0 + distance)
}

// NormalizeFulltext maps a raw ts_rank_cd score into [0, 1) through a
// saturating sigmoid. The transform is strictly increasing, so relative
// full-text ordering is preserved; the gain of 5 spreads the typical
// sub-1.0 rank range across the curve.
func NormalizeFulltext(raw float64) float64 {
	return 1.0 / (1.0 + math.Exp(-5*raw))
}

// fuseScores combines vector similarity with normalized full-text relevance
// per candidate and orders the result by fused score descending. The sort
// is stable, so equal fused scores keep stage-1 order (ascending vector
// distance).
func fuseScores(candidates []store.Candidate, ftScores map[int64]float64, alpha float64) []store.ArticleMeta {
	metas := make([]store.ArticleMeta, len(candidates))
	for i, c := range candidates {
		score := alpha*Similarity(c.Distance) + (1-alpha)*NormalizeFulltext(ftScores[c.ID])
		metas[i] = store.ArticleMeta{
			ID:            c.ID,
			Title:         c.Title,
			Date:          c.Date,
			ReleaseNumber: c.ReleaseNumber,
			Score:         &score,
		}
	}

	sort.SliceStable(metas, func(i, j int) bool {
		return *metas[i].Score > *metas[j].Score
	})
	return metas
}
