package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"ragdesk/internal/rag"
	"ragdesk/internal/rag/embed"
)

const (
	DefaultEmbeddingTTL    = 24 * time.Hour
	DefaultEmbeddingPrefix = "ragdesk:emb:"
)

var errCorruptEntry = errors.New("corrupt cached embedding")

// EmbeddingCache wraps an embedding model with a redis read-through cache.
// Redis failures never fail a call; the wrapped model is used instead.
type EmbeddingCache struct {
	model  embed.Model
	client *redisv9.Client
	ttl    time.Duration
	prefix string
	log    *zap.Logger
}

func NewEmbeddingCache(model embed.Model, client *redisv9.Client, ttl time.Duration, prefix string, log *zap.Logger) *EmbeddingCache {
	if ttl <= 0 {
		ttl = DefaultEmbeddingTTL
	}
	if prefix == "" {
		prefix = DefaultEmbeddingPrefix
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &EmbeddingCache{model: model, client: client, ttl: ttl, prefix: prefix, log: log}
}

func (c *EmbeddingCache) Name() string   { return c.model.Name() }
func (c *EmbeddingCache) Dimension() int { return c.model.Dimension() }

func (c *EmbeddingCache) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = c.key(t)
	}

	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	cached, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		c.log.Warn("redis mget failed, falling back to model", zap.Error(err))
		cached = make([]interface{}, len(texts))
	}
	for i, v := range cached {
		if s, ok := v.(string); ok {
			vec, err := decodeVector(s, c.model.Dimension())
			if err == nil {
				out[i] = vec
				continue
			}
			c.log.Warn("deleting corrupt cached embedding", zap.String("key", keys[i]), zap.Error(err))
			_ = c.client.Del(ctx, keys[i]).Err()
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, texts[i])
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	fresh, err := c.model.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missTexts) {
		return nil, fmt.Errorf("model returned %d vectors for %d texts", len(fresh), len(missTexts))
	}

	_, err = c.client.Pipelined(ctx, func(p redisv9.Pipeliner) error {
		for j, i := range missIdx {
			out[i] = fresh[j]
			if rag.Valid(fresh[j], c.model.Dimension()) && !rag.IsZero(fresh[j]) {
				p.Set(ctx, keys[i], encodeVector(fresh[j]), c.ttl)
			}
		}
		return nil
	})
	if err != nil {
		c.log.Warn("failed to cache embeddings", zap.Int("count", len(missIdx)), zap.Error(err))
	}
	return out, nil
}

// key hashes the model name with the text so switching models never serves
// stale vectors.
func (c *EmbeddingCache) key(text string) string {
	h := sha256.New()
	h.Write([]byte(c.model.Name()))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return c.prefix + hex.EncodeToString(h.Sum(nil))
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(s string, dim int) ([]float32, error) {
	if len(s) != 4*dim {
		return nil, errCorruptEntry
	}
	b := []byte(s)
	v := make([]float32, dim)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	if !rag.Valid(v, dim) {
		return nil, errCorruptEntry
	}
	return v, nil
}
