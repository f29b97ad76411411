package rerank

import (
	"context"
	"errors"
	"fmt"

	coheregov2 "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"
)

const DefaultCohereModel = "rerank-english-v3.0"

// Cohere scores documents with the Cohere rerank endpoint.
type Cohere struct {
	client *cohereclient.Client
	model  string
}

func NewCohere(apiKey, model string) (*Cohere, error) {
	if apiKey == "" {
		return nil, errors.New("cohere api key is required")
	}
	if model == "" {
		model = DefaultCohereModel
	}
	return &Cohere{
		client: cohereclient.NewClient(cohereclient.WithToken(apiKey)),
		model:  model,
	}, nil
}

// Score asks for every document back and maps the results to input order.
func (c *Cohere) Score(ctx context.Context, query string, docs []string) ([]float64, error) {
	items := make([]*coheregov2.RerankRequestDocumentsItem, len(docs))
	for i, d := range docs {
		items[i] = &coheregov2.RerankRequestDocumentsItem{String: d}
	}
	topN := len(docs)
	resp, err := c.client.Rerank(ctx, &coheregov2.RerankRequest{
		Query:     query,
		Documents: items,
		Model:     &c.model,
		TopN:      &topN,
	})
	if err != nil {
		return nil, fmt.Errorf("cohere rerank failed: %w", err)
	}
	if resp == nil || len(resp.Results) != len(docs) {
		return nil, fmt.Errorf("cohere rerank returned an incomplete result set")
	}

	scores := make([]float64, len(docs))
	seen := make([]bool, len(docs))
	for _, r := range resp.Results {
		if r == nil || r.Index < 0 || r.Index >= len(docs) || seen[r.Index] {
			return nil, fmt.Errorf("cohere rerank returned an invalid index")
		}
		seen[r.Index] = true
		scores[r.Index] = r.RelevanceScore
	}
	return scores, nil
}
