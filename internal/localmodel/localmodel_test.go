package localmodel

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testVocab = []string{
	"[PAD]", "[UNK]", "[CLS]", "[SEP]",
	"the", "dead", "##line", "is", "friday", ".", "cafe", "un", "##want", "##ed", ",", "run", "##ning", "中", "国",
}

func writeVocab(t *testing.T, tokens []string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vocab.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(tokens, "\n")+"\n"), 0o644))
	return path
}

func newTestTokenizer(t *testing.T, maxLen int) *Tokenizer {
	t.Helper()
	tok, err := LoadTokenizer(writeVocab(t, testVocab), maxLen)
	require.NoError(t, err)
	return tok
}

func mustEncode(t *testing.T, tok *Tokenizer, text string) Encoding {
	t.Helper()
	enc, err := tok.Encode(text)
	require.NoError(t, err)
	return enc
}

func TestTokenize(t *testing.T) {
	tok := newTestTokenizer(t, 32)

	tests := []struct {
		in   string
		want []string
	}{
		{"The deadline is Friday.", []string{"the", "dead", "##line", "is", "friday", "."}},
		{"unwanted,running", []string{"un", "##want", "##ed", ",", "run", "##ning"}},
		{"Café", []string{"cafe"}},
		{"中国", []string{"中", "国"}},
		{"xyz", []string{"[UNK]"}},
		{"FRIDAY", []string{"friday"}},
		{"  \t\n", nil},
	}
	for _, tt := range tests {
		got, err := tok.Tokenize(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestTokenizeLongWordIsUnknown(t *testing.T) {
	tok := newTestTokenizer(t, 32)
	got, err := tok.Tokenize(strings.Repeat("a", 101))
	require.NoError(t, err)
	assert.Equal(t, []string{"[UNK]"}, got)
}

func TestEncodeTruncates(t *testing.T) {
	tok := newTestTokenizer(t, 5)
	enc := mustEncode(t, tok, "the deadline is friday")

	assert.Equal(t, []int64{2, 4, 5, 6, 3}, enc.IDs)
	assert.Equal(t, []int64{1, 1, 1, 1, 1}, enc.AttentionMask)
	assert.Equal(t, []int64{0, 0, 0, 0, 0}, enc.TypeIDs)
}

func TestEncodeBlank(t *testing.T) {
	tok := newTestTokenizer(t, 8)
	assert.Equal(t, []int64{2, 3}, mustEncode(t, tok, "   ").IDs)
}

func TestEncodePair(t *testing.T) {
	tok := newTestTokenizer(t, 8)
	enc, err := tok.EncodePair("friday", "the deadline is friday")
	require.NoError(t, err)

	// [CLS] friday [SEP] the dead ##line is [SEP]
	assert.Equal(t, []int64{2, 8, 3, 4, 5, 6, 7, 3}, enc.IDs)
	assert.Equal(t, []int64{0, 0, 0, 1, 1, 1, 1, 1}, enc.TypeIDs)
}

func TestPad(t *testing.T) {
	tok := newTestTokenizer(t, 16)
	b := tok.Pad([]Encoding{mustEncode(t, tok, "friday"), mustEncode(t, tok, "the deadline")})

	assert.Equal(t, 2, b.Rows)
	assert.Equal(t, 5, b.Cols)
	assert.Equal(t, []int64{2, 8, 3, 0, 0, 2, 4, 5, 6, 3}, b.IDs)
	assert.Equal(t, []int64{1, 1, 1, 0, 0, 1, 1, 1, 1, 1}, b.AttentionMask)
}

func TestLoadTokenizerRejectsBadInput(t *testing.T) {
	_, err := LoadTokenizer(writeVocab(t, []string{"[PAD]", "[UNK]", "hello"}), 16)
	assert.Error(t, err)

	_, err = LoadTokenizer(writeVocab(t, testVocab), 2)
	assert.Error(t, err)

	_, err = LoadTokenizer(filepath.Join(t.TempDir(), "missing.txt"), 16)
	assert.Error(t, err)
}

func TestSessionRunGivesUpWhileSlotsAreBusy(t *testing.T) {
	s := newSession("model.onnx", "", 1)
	require.NoError(t, s.runSem.Acquire(context.Background(), 1))
	defer s.runSem.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	started := time.Now()
	_, _, err := s.run(ctx, Batch{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(started), time.Second)
}

func TestSessionRunGivesUpWhileInitializing(t *testing.T) {
	s := newSession("model.onnx", "", 2)
	require.NoError(t, s.initSem.Acquire(context.Background(), 1))
	defer s.initSem.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, _, err := s.run(ctx, Batch{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSessionCloseWithoutInit(t *testing.T) {
	s := newSession("model.onnx", "", 0)
	assert.Positive(t, s.maxRuns)
	assert.NoError(t, s.close())
}

func TestMeanPoolIgnoresPadding(t *testing.T) {
	hidden := []float32{
		3, 0, // token 0
		1, 0, // token 1
		0, 100, // padding
	}
	got := meanPool(hidden, []int64{1, 1, 0}, 1, 3, 2)
	require.Len(t, got, 1)
	assert.InDelta(t, 1.0, got[0][0], 1e-6)
	assert.InDelta(t, 0.0, got[0][1], 1e-6)
}

func TestMeanPoolAllMaskedIsZero(t *testing.T) {
	got := meanPool([]float32{1, 2}, []int64{0}, 1, 1, 2)
	assert.Equal(t, []float32{0, 0}, got[0])
}

func TestSigmoid(t *testing.T) {
	assert.InDelta(t, 0.5, sigmoid(0), 1e-12)
	assert.Greater(t, sigmoid(4), 0.98)
	assert.Less(t, sigmoid(-4), 0.02)
}

func TestEmbedderMissingVocab(t *testing.T) {
	e := NewEmbedder(EmbedderConfig{VocabPath: filepath.Join(t.TempDir(), "vocab.txt")})
	assert.Equal(t, DefaultDimension, e.Dimension())
	assert.Equal(t, DefaultEmbeddingModel, e.Name())

	_, err := e.Embed(context.Background(), []string{"hello"})
	assert.Error(t, err)
}

func TestCrossEncoderMissingVocab(t *testing.T) {
	c := NewCrossEncoder(CrossEncoderConfig{VocabPath: filepath.Join(t.TempDir(), "vocab.txt")})
	_, err := c.Score(context.Background(), "q", []string{"doc"})
	assert.Error(t, err)
}
