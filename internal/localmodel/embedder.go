package localmodel

import (
	"context"
	"fmt"
	"math"
	"sync"
)

const (
	DefaultEmbeddingModel = "all-MiniLM-L6-v2"
	DefaultDimension      = 384
	DefaultEmbedMaxLen    = 256
)

type EmbedderConfig struct {
	Name        string
	ModelPath   string
	VocabPath   string
	LibraryPath string
	Dimension   int
	MaxSeqLen   int
}

// Embedder produces sentence embeddings with a MiniLM-style ONNX model using
// attention-masked mean pooling. The model and vocabulary load on first use.
type Embedder struct {
	cfg  EmbedderConfig
	sess *session

	tokOnce sync.Once
	tok     *Tokenizer
	tokErr  error
}

func NewEmbedder(cfg EmbedderConfig) *Embedder {
	if cfg.Name == "" {
		cfg.Name = DefaultEmbeddingModel
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = DefaultDimension
	}
	if cfg.MaxSeqLen <= 0 {
		cfg.MaxSeqLen = DefaultEmbedMaxLen
	}
	return &Embedder{
		cfg:  cfg,
		sess: newSession(cfg.ModelPath, cfg.LibraryPath, 0),
	}
}

func (e *Embedder) Name() string   { return e.cfg.Name }
func (e *Embedder) Dimension() int { return e.cfg.Dimension }

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	tok, err := e.tokenizer()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	encs := make([]Encoding, len(texts))
	for i, t := range texts {
		if encs[i], err = tok.Encode(t); err != nil {
			return nil, err
		}
	}
	batch := tok.Pad(encs)

	data, shape, err := e.sess.run(ctx, batch)
	if err != nil {
		return nil, err
	}
	if len(shape) != 3 || int(shape[0]) != batch.Rows || int(shape[1]) != batch.Cols {
		return nil, fmt.Errorf("unexpected embedding output shape %v", shape)
	}
	if int(shape[2]) != e.cfg.Dimension {
		return nil, fmt.Errorf("model produced dimension %d, configured %d", shape[2], e.cfg.Dimension)
	}
	return meanPool(data, batch.AttentionMask, batch.Rows, batch.Cols, e.cfg.Dimension), nil
}

func (e *Embedder) Close() error { return e.sess.close() }

func (e *Embedder) tokenizer() (*Tokenizer, error) {
	e.tokOnce.Do(func() {
		e.tok, e.tokErr = LoadTokenizer(e.cfg.VocabPath, e.cfg.MaxSeqLen)
	})
	return e.tok, e.tokErr
}

// meanPool averages token states where the mask is set and unit-normalizes
// the result. hidden is laid out [rows, cols, dim].
func meanPool(hidden []float32, mask []int64, rows, cols, dim int) [][]float32 {
	out := make([][]float32, rows)
	for r := 0; r < rows; r++ {
		sum := make([]float64, dim)
		n := 0.0
		for c := 0; c < cols; c++ {
			if mask[r*cols+c] == 0 {
				continue
			}
			n++
			base := (r*cols + c) * dim
			for d := 0; d < dim; d++ {
				sum[d] += float64(hidden[base+d])
			}
		}
		vec := make([]float32, dim)
		var norm float64
		for d := range sum {
			if n > 0 {
				sum[d] /= n
			}
			norm += sum[d] * sum[d]
		}
		if norm > 0 {
			norm = math.Sqrt(norm)
			for d := range sum {
				vec[d] = float32(sum[d] / norm)
			}
		}
		out[r] = vec
	}
	return out
}
