// Package rerank reorders a small candidate set with a pairwise relevance
// model, degrading to the incoming order when the model is unavailable.
package rerank

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"ragdesk/internal/metrics"
	"ragdesk/internal/rag"
)

const (
	DefaultNeutralScore = 0.5
	DefaultTimeout      = 20 * time.Second
)

// Scorer returns one relevance score per document for the query.
type Scorer interface {
	Score(ctx context.Context, query string, docs []string) ([]float64, error)
}

// Ranked is a candidate's position in the input and its relevance score.
type Ranked struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Config.NeutralScore falls back to DefaultNeutralScore only when nil, so 0
// is a valid setting.
type Config struct {
	NeutralScore *float64
	Timeout      time.Duration
}

type Reranker struct {
	scorer       Scorer
	neutralScore float64
	timeout      time.Duration
	log          *zap.Logger
}

func New(scorer Scorer, cfg Config, log *zap.Logger) *Reranker {
	neutral := DefaultNeutralScore
	if cfg.NeutralScore != nil {
		neutral = *cfg.NeutralScore
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Reranker{scorer: scorer, neutralScore: neutral, timeout: cfg.Timeout, log: log}
}

// Rerank orders docs by descending score, breaking ties by input position,
// and keeps the first topK (all when topK <= 0). If the scorer fails, the
// input order is returned with the neutral score together with a KindModel
// error.
func (r *Reranker) Rerank(ctx context.Context, query string, docs []string, topK int) ([]Ranked, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	started := time.Now()
	defer metrics.ObserveStage(string(rag.StageRerank), started)

	scores, err := r.score(ctx, query, docs)
	if err != nil {
		metrics.Fallback(string(rag.StageRerank), 1)
		r.log.Warn("rerank failed, keeping original order", zap.Int("candidates", len(docs)), zap.Error(err))
		return truncate(r.neutral(len(docs)), topK), rag.NewError(rag.KindModel, rag.StageRerank, err)
	}

	ranked := make([]Ranked, len(docs))
	for i, s := range scores {
		ranked[i] = Ranked{Index: i, Score: s}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return truncate(ranked, topK), nil
}

func (r *Reranker) score(ctx context.Context, query string, docs []string) ([]float64, error) {
	if r.scorer == nil {
		return nil, fmt.Errorf("no rerank scorer configured")
	}
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	scores, err := r.scorer.Score(callCtx, query, docs)
	if err != nil {
		return nil, err
	}
	if len(scores) != len(docs) {
		return nil, fmt.Errorf("scorer returned %d scores for %d documents", len(scores), len(docs))
	}
	for i, s := range scores {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return nil, fmt.Errorf("scorer returned non-finite score at %d", i)
		}
	}
	return scores, nil
}

func (r *Reranker) neutral(n int) []Ranked {
	out := make([]Ranked, n)
	for i := range out {
		out[i] = Ranked{Index: i, Score: r.neutralScore}
	}
	return out
}

func truncate(ranked []Ranked, topK int) []Ranked {
	if topK > 0 && len(ranked) > topK {
		return ranked[:topK]
	}
	return ranked
}
