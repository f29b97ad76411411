// Package embedtest provides a deterministic embedding model for tests.
package embedtest

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"
)

var ErrRejected = errors.New("embedtest: input rejected")

// BagOfWords hashes lowercase word tokens into Dim buckets. Texts sharing a
// word have positive cosine similarity; identical texts have similarity 1.
type BagOfWords struct {
	Dim int
	// FailOn makes any call containing one of these texts fail.
	FailOn map[string]bool

	mu    sync.Mutex
	calls [][]string
}

func New(dim int) *BagOfWords {
	return &BagOfWords{Dim: dim}
}

func (m *BagOfWords) Name() string   { return "bag-of-words" }
func (m *BagOfWords) Dimension() int { return m.Dim }

func (m *BagOfWords) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.calls = append(m.calls, append([]string(nil), texts...))
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if m.FailOn[t] {
			return nil, ErrRejected
		}
		out[i] = m.vector(t)
	}
	return out, nil
}

// Calls returns the inputs of every Embed call so far.
func (m *BagOfWords) Calls() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]string(nil), m.calls...)
}

func (m *BagOfWords) vector(text string) []float32 {
	v := make([]float32, m.Dim)
	for _, tok := range Tokens(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		v[h.Sum32()%uint32(m.Dim)]++
	}
	return v
}

// Tokens splits text into lowercase runs of letters and digits.
func Tokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
