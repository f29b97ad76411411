package localmodel

import (
	"context"
	"fmt"
	"math"
	"sync"
)

const DefaultCrossEncoderMaxLen = 512

type CrossEncoderConfig struct {
	ModelPath   string
	VocabPath   string
	LibraryPath string
	MaxSeqLen   int
}

// CrossEncoder scores (query, passage) pairs with an ms-marco style model
// that emits one relevance logit per pair.
type CrossEncoder struct {
	cfg  CrossEncoderConfig
	sess *session

	tokOnce sync.Once
	tok     *Tokenizer
	tokErr  error
}

func NewCrossEncoder(cfg CrossEncoderConfig) *CrossEncoder {
	if cfg.MaxSeqLen <= 0 {
		cfg.MaxSeqLen = DefaultCrossEncoderMaxLen
	}
	return &CrossEncoder{
		cfg:  cfg,
		sess: newSession(cfg.ModelPath, cfg.LibraryPath, 0),
	}
}

// Score returns sigmoid(logit) for each document, in input order.
func (c *CrossEncoder) Score(ctx context.Context, query string, docs []string) ([]float64, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	c.tokOnce.Do(func() {
		c.tok, c.tokErr = LoadTokenizer(c.cfg.VocabPath, c.cfg.MaxSeqLen)
	})
	if c.tokErr != nil {
		return nil, c.tokErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	encs := make([]Encoding, len(docs))
	for i, d := range docs {
		enc, err := c.tok.EncodePair(query, d)
		if err != nil {
			return nil, err
		}
		encs[i] = enc
	}
	batch := c.tok.Pad(encs)

	data, shape, err := c.sess.run(ctx, batch)
	if err != nil {
		return nil, err
	}
	if len(shape) == 0 || int(shape[0]) != len(docs) || len(data) < len(docs) {
		return nil, fmt.Errorf("unexpected cross-encoder output shape %v", shape)
	}
	perRow := len(data) / len(docs)

	scores := make([]float64, len(docs))
	for i := range docs {
		// single-logit heads score column 0; two-class heads score the positive column
		logit := float64(data[i*perRow+perRow-1])
		scores[i] = sigmoid(logit)
	}
	return scores, nil
}

func (c *CrossEncoder) Close() error { return c.sess.close() }

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
