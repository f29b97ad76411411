package app

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ragdesk/internal/metrics"
	"ragdesk/internal/rag"
	"ragdesk/internal/rag/index"
	"ragdesk/internal/rag/rerank"
	"ragdesk/internal/repository"
)

const (
	DefaultSearchK          = 5
	DefaultOversampleFactor = 3
	maxSearchK              = 50
)

// Reranker reorders candidate texts for a query.
type Reranker interface {
	Rerank(ctx context.Context, query string, docs []string, topK int) ([]rerank.Ranked, error)
}

type SearchConfig struct {
	DefaultK         int
	OversampleFactor int
}

type SearchInput struct {
	Query        string
	OwnerID      uint
	K            int
	UseReranking bool
}

// SearchResult is one retrieved chunk. Similarity is always the index score;
// RerankScore is set only when reranking ran.
type SearchResult struct {
	ChunkID      uint     `json:"chunk_id"`
	DocumentID   uint     `json:"document_id"`
	DocumentName string   `json:"document_name"`
	Content      string   `json:"content"`
	Locator      string   `json:"locator,omitempty"`
	Similarity   float64  `json:"similarity"`
	RerankScore  *float64 `json:"rerank_score,omitempty"`
}

type SearchService struct {
	embedder  TextEmbedder
	index     index.Index
	reranker  Reranker
	chunkRepo *repository.ChunkRepository
	docRepo   *repository.DocumentRepository
	cfg       SearchConfig
	log       *zap.Logger
}

// NewSearchService builds the read path. reranker may be nil, which disables
// reranking regardless of the request.
func NewSearchService(
	embedder TextEmbedder,
	idx index.Index,
	reranker Reranker,
	chunkRepo *repository.ChunkRepository,
	docRepo *repository.DocumentRepository,
	cfg SearchConfig,
	log *zap.Logger,
) *SearchService {
	if cfg.DefaultK <= 0 {
		cfg.DefaultK = DefaultSearchK
	}
	if cfg.OversampleFactor < 1 {
		cfg.OversampleFactor = DefaultOversampleFactor
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &SearchService{
		embedder:  embedder,
		index:     idx,
		reranker:  reranker,
		chunkRepo: chunkRepo,
		docRepo:   docRepo,
		cfg:       cfg,
		log:       log,
	}
}

func (s *SearchService) Search(ctx context.Context, input SearchInput) ([]SearchResult, error) {
	return s.SearchMany(ctx, input.OwnerID, []string{input.Query}, input.K, input.UseReranking)
}

// SearchMany runs every query against the owner's vectors, merges the hits
// keeping each chunk's best similarity and, when asked, reranks the merged
// set against the first query. A query that cannot be embedded contributes
// nothing; an unavailable index is an error.
func (s *SearchService) SearchMany(ctx context.Context, ownerID uint, queries []string, k int, useReranking bool) ([]SearchResult, error) {
	if ownerID == 0 {
		return nil, ErrInvalidInput
	}
	queries = cleanQueries(queries)
	if len(queries) == 0 {
		return nil, ErrInvalidInput
	}
	if k <= 0 {
		k = s.cfg.DefaultK
	}
	k = min(k, maxSearchK)
	rerankOn := useReranking && s.reranker != nil
	fetch := k
	if rerankOn {
		fetch = k * s.cfg.OversampleFactor
	}

	hits := make([][]index.Candidate, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		g.Go(func() error {
			vec, err := s.embedder.Embed(gctx, q)
			if err != nil {
				s.log.Warn("query embedding failed, skipping query", zap.Int("query", i), zap.Error(err))
				return nil
			}
			if rag.IsZero(vec) {
				return nil
			}
			found, err := s.index.Search(gctx, vec, ownerID, fetch)
			if err != nil {
				return err
			}
			hits[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := mergeCandidates(hits, fetch)
	results, err := s.hydrate(ownerID, merged)
	if err != nil {
		return nil, err
	}

	if rerankOn && len(results) > 0 {
		results = s.rerank(ctx, queries[0], results, k)
	} else if len(results) > k {
		results = results[:k]
	}
	metrics.SearchReturned(len(results))
	return results, nil
}

func (s *SearchService) rerank(ctx context.Context, query string, results []SearchResult, k int) []SearchResult {
	docs := make([]string, len(results))
	for i, r := range results {
		docs[i] = r.Content
	}
	ranked, err := s.reranker.Rerank(ctx, query, docs, k)
	if err != nil {
		s.log.Debug("rerank used fallback order", zap.Error(err))
	}
	out := make([]SearchResult, 0, len(ranked))
	for _, r := range ranked {
		res := results[r.Index]
		score := r.Score
		res.RerankScore = &score
		out = append(out, res)
	}
	return out
}

// hydrate loads chunk text and document names. Chunks deleted since the
// vector search are dropped.
func (s *SearchService) hydrate(ownerID uint, cands []index.Candidate) ([]SearchResult, error) {
	if len(cands) == 0 {
		return nil, nil
	}
	chunkIDs := make([]uint, len(cands))
	for i, c := range cands {
		chunkIDs[i] = c.ChunkID
	}
	chunks, err := s.chunkRepo.ListByIDs(ownerID, chunkIDs)
	if err != nil {
		return nil, rag.NewError(rag.KindUnavailable, rag.StageIndex, err)
	}
	docIDs := make([]uint, 0, len(chunks))
	for _, c := range chunks {
		docIDs = append(docIDs, c.DocumentID)
	}
	docs, err := s.docRepo.ListByIDs(ownerID, docIDs)
	if err != nil {
		return nil, rag.NewError(rag.KindUnavailable, rag.StageIndex, err)
	}

	out := make([]SearchResult, 0, len(cands))
	for _, c := range cands {
		ch, ok := chunks[c.ChunkID]
		if !ok {
			continue
		}
		out = append(out, SearchResult{
			ChunkID:      ch.ID,
			DocumentID:   ch.DocumentID,
			DocumentName: docs[ch.DocumentID].Name,
			Content:      ch.Content,
			Locator:      ch.Locator,
			Similarity:   c.Similarity,
		})
	}
	return out, nil
}

// mergeCandidates keeps each chunk once with its highest similarity, ordered
// by similarity and then by first appearance.
func mergeCandidates(lists [][]index.Candidate, limit int) []index.Candidate {
	type slot struct {
		index.Candidate
		seen int
	}
	byChunk := make(map[uint]*slot)
	var order []*slot
	for _, list := range lists {
		for _, c := range list {
			if s, ok := byChunk[c.ChunkID]; ok {
				if c.Similarity > s.Similarity {
					s.Similarity = c.Similarity
				}
				continue
			}
			s := &slot{Candidate: c, seen: len(order)}
			byChunk[c.ChunkID] = s
			order = append(order, s)
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		if order[i].Similarity != order[j].Similarity {
			return order[i].Similarity > order[j].Similarity
		}
		return order[i].seen < order[j].seen
	})
	if len(order) > limit {
		order = order[:limit]
	}
	out := make([]index.Candidate, len(order))
	for i, s := range order {
		out[i] = s.Candidate
	}
	return out
}

func cleanQueries(queries []string) []string {
	seen := make(map[string]bool, len(queries))
	out := make([]string, 0, len(queries))
	for _, q := range queries {
		q = strings.TrimSpace(q)
		key := strings.ToLower(q)
		if q == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, q)
	}
	return out
}
