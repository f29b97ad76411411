// Package embed maps text to unit-length dense vectors through a pluggable
// model, in bounded sub-batches, without letting one bad input fail a batch.
package embed

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ragdesk/internal/metrics"
	"ragdesk/internal/rag"
)

const (
	DefaultBatchSize   = 32
	DefaultConcurrency = 2
	DefaultTimeout     = 30 * time.Second
)

// Model is an embedding backend. Implementations must be safe for concurrent
// use and return one vector per input, in input order.
type Model interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type Config struct {
	BatchSize   int
	Concurrency int
	Timeout     time.Duration
}

// Batch is the result of EmbedBatch. Vectors has one entry per input; the
// entries listed in Failed hold the zero vector.
type Batch struct {
	Vectors [][]float32
	Failed  []int
}

type Embedder struct {
	model Model
	dim   int
	cfg   Config
	log   *zap.Logger
}

func New(model Model, cfg Config, log *zap.Logger) *Embedder {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Embedder{
		model: model,
		dim:   model.Dimension(),
		cfg:   cfg,
		log:   log,
	}
}

func (e *Embedder) Dimension() int { return e.dim }

func (e *Embedder) ModelName() string { return e.model.Name() }

// Embed returns the unit vector for text. Blank text yields the zero vector.
// On model failure the zero vector is returned together with a KindModel
// error so the caller can decide whether the fallback is acceptable.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	b, err := e.EmbedBatch(ctx, []string{text})
	return b.Vectors[0], err
}

// EmbedBatch embeds texts in sub-batches of the configured size. The output
// order matches the input order. Elements the model cannot embed degrade to
// the zero vector; if any did, a KindModel error describing them is returned
// alongside the complete batch.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) (Batch, error) {
	started := time.Now()
	defer metrics.ObserveStage(string(rag.StageEmbed), started)

	out := make([][]float32, len(texts))
	pending := make([]int, 0, len(texts))
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			out[i] = rag.Zero(e.dim)
			continue
		}
		pending = append(pending, i)
	}

	var (
		mu     sync.Mutex
		failed []int
	)
	markFailed := func(idx ...int) {
		mu.Lock()
		failed = append(failed, idx...)
		mu.Unlock()
	}

	g := new(errgroup.Group)
	g.SetLimit(e.cfg.Concurrency)
	for start := 0; start < len(pending); start += e.cfg.BatchSize {
		group := pending[start:min(start+e.cfg.BatchSize, len(pending))]
		g.Go(func() error {
			e.embedGroup(ctx, texts, group, out, markFailed)
			return nil
		})
	}
	_ = g.Wait()

	if len(failed) == 0 {
		return Batch{Vectors: out}, nil
	}
	slices.Sort(failed)
	for _, i := range failed {
		out[i] = rag.Zero(e.dim)
	}
	metrics.Fallback(string(rag.StageEmbed), len(failed))
	e.log.Warn("embedding degraded to zero vector",
		zap.String("model", e.model.Name()),
		zap.Int("failed", len(failed)),
		zap.Int("total", len(texts)),
	)
	return Batch{Vectors: out, Failed: failed},
		rag.Errorf(rag.KindModel, rag.StageEmbed, "%d of %d inputs fell back to the zero vector", len(failed), len(texts))
}

// embedGroup embeds one sub-batch. When the whole call fails the elements are
// retried one at a time so a single bad input only costs itself.
func (e *Embedder) embedGroup(ctx context.Context, texts []string, group []int, out [][]float32, markFailed func(...int)) {
	inputs := make([]string, len(group))
	for i, idx := range group {
		inputs[i] = texts[idx]
	}
	vectors, err := e.call(ctx, inputs)
	if err != nil {
		if len(group) == 1 || ctx.Err() != nil {
			e.log.Debug("embedding call failed", zap.Int("size", len(group)), zap.Error(err))
			markFailed(group...)
			return
		}
		for _, idx := range group {
			e.embedGroup(ctx, texts, []int{idx}, out, markFailed)
		}
		return
	}
	for i, idx := range group {
		if !rag.Valid(vectors[i], e.dim) {
			markFailed(idx)
			continue
		}
		v := make([]float32, e.dim)
		copy(v, vectors[i])
		out[idx] = rag.Normalize(v)
	}
}

func (e *Embedder) call(ctx context.Context, inputs []string) ([][]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()
	vectors, err := e.model.Embed(callCtx, inputs)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(inputs) {
		return nil, fmt.Errorf("model %s returned %d vectors for %d inputs", e.model.Name(), len(vectors), len(inputs))
	}
	return vectors, nil
}
