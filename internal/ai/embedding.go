package ai

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

type EmbeddingConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	Dimension int
	// RequestDimension asks the API to shorten vectors to Dimension.
	RequestDimension bool
}

// EmbeddingModel calls the /embeddings endpoint of an OpenAI-compatible API.
type EmbeddingModel struct {
	api *openai.Client
	cfg EmbeddingConfig
}

func NewEmbeddingModel(cfg EmbeddingConfig) *EmbeddingModel {
	return &EmbeddingModel{api: newAPI(cfg.BaseURL, cfg.APIKey), cfg: cfg}
}

func (m *EmbeddingModel) Name() string   { return m.cfg.Model }
func (m *EmbeddingModel) Dimension() int { return m.cfg.Dimension }

// Embed returns vectors in input order; the response is reordered by its
// index field.
func (m *EmbeddingModel) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(m.cfg.Model),
	}
	if m.cfg.RequestDimension && m.cfg.Dimension > 0 {
		req.Dimensions = m.cfg.Dimension
	}
	resp, err := m.api.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding response has %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) || out[d.Index] != nil {
			return nil, fmt.Errorf("embedding response has invalid index %d", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
