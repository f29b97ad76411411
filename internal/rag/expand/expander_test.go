package expand

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ragdesk/internal/rag"
)

type scriptedGenerator struct {
	out    string
	err    error
	prompt string
}

func (g *scriptedGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.prompt = prompt
	return g.out, g.err
}

func TestExpandFailureReturnsOriginal(t *testing.T) {
	e := New(&scriptedGenerator{err: errors.New("model unavailable")}, Config{}, zap.NewNop())

	got, err := e.Expand(context.Background(), "cost", nil)
	assert.Equal(t, []string{"cost"}, got)
	assert.True(t, rag.IsKind(err, rag.KindModel))
}

func TestExpandOriginalFirstAndCapped(t *testing.T) {
	gen := &scriptedGenerator{out: "1. price of the service\n2) how much does it cost\n- pricing plans\n"}
	e := New(gen, Config{}, zap.NewNop())

	got, err := e.Expand(context.Background(), "cost", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"cost", "price of the service", "how much does it cost"}, got)
}

func TestExpandMalformedOutputFallsBack(t *testing.T) {
	gen := &scriptedGenerator{out: "1.\n  \n\"Cost\"\nab\n"}
	e := New(gen, Config{}, zap.NewNop())

	got, err := e.Expand(context.Background(), "cost", nil)
	assert.Equal(t, []string{"cost"}, got)
	assert.Error(t, err)
}

func TestExpandNoGenerator(t *testing.T) {
	got, err := New(nil, Config{}, zap.NewNop()).Expand(context.Background(), "refund policy", nil)
	assert.Equal(t, []string{"refund policy"}, got)
	assert.Error(t, err)
}

func TestExpandPromptUsesRecentHistory(t *testing.T) {
	gen := &scriptedGenerator{out: "pricing"}
	e := New(gen, Config{HistoryTurns: 2}, zap.NewNop())
	history := []rag.Turn{
		{Role: "user", Content: "first question"},
		{Role: "assistant", Content: "first answer"},
		{Role: "user", Content: "second question"},
	}

	_, err := e.Expand(context.Background(), "cost", history)
	require.NoError(t, err)
	assert.NotContains(t, gen.prompt, "first question")
	assert.Contains(t, gen.prompt, "assistant: first answer")
	assert.Contains(t, gen.prompt, "user: second question")
	assert.True(t, strings.HasSuffix(gen.prompt, "Query: cost\n"))
}

func TestClean(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"bullets and numbers", "* annual fee\n• yearly price\n3. monthly fee", []string{"annual fee", "yearly price"}},
		{"quotes and labels", "Alternative 1: \"renewal date\"\n'expiry date'", []string{"renewal date", "expiry date"}},
		{"duplicates", "Refund rules\nrefund rules\nreturn policy", []string{"Refund rules", "return policy"}},
		{"identical to original", "COST\nprice", []string{"price"}},
		{"too short", "ok\nfee\nfees", []string{"fee", "fees"}},
		{"leading year kept", "2024 pricing", []string{"2024 pricing"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Clean(tt.raw, "cost", 3, 2))
		})
	}
}
