package localmodel

import (
	"fmt"
	"strings"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/model/wordpiece"
	"github.com/sugarme/tokenizer/normalizer"
	"github.com/sugarme/tokenizer/pretokenizer"
)

const (
	tokenCLS = "[CLS]"
	tokenSEP = "[SEP]"
	tokenPAD = "[PAD]"
	tokenUNK = "[UNK]"
)

// Encoding is one tokenized sequence ready for a BERT-style model.
type Encoding struct {
	IDs           []int64
	AttentionMask []int64
	TypeIDs       []int64
}

// Tokenizer is an uncased BERT WordPiece tokenizer. Special tokens and
// truncation are applied here so single texts and pairs share one budget.
type Tokenizer struct {
	tk     *tokenizer.Tokenizer
	maxLen int
	pad    int64
	cls    int64
	sep    int64
}

// LoadTokenizer reads a vocab.txt with one token per line, id = line number.
func LoadTokenizer(path string, maxLen int) (*Tokenizer, error) {
	if maxLen < 3 {
		return nil, fmt.Errorf("max sequence length %d is too small", maxLen)
	}
	model, err := wordpiece.NewWordPieceFromFile(path, tokenUNK)
	if err != nil {
		return nil, fmt.Errorf("load vocab: %w", err)
	}
	tk := tokenizer.NewTokenizer(model)
	tk.WithNormalizer(normalizer.NewBertNormalizer(true, true, true, true))
	tk.WithPreTokenizer(pretokenizer.NewBertPreTokenizer())

	t := &Tokenizer{tk: tk, maxLen: maxLen}
	for _, special := range []struct {
		tok string
		dst *int64
	}{{tokenPAD, &t.pad}, {tokenUNK, nil}, {tokenCLS, &t.cls}, {tokenSEP, &t.sep}} {
		id, ok := tk.TokenToId(special.tok)
		if !ok {
			return nil, fmt.Errorf("vocab is missing %s", special.tok)
		}
		if special.dst != nil {
			*special.dst = int64(id)
		}
	}
	return t, nil
}

func (t *Tokenizer) MaxLen() int { return t.maxLen }

// Tokenize returns the word pieces of text without special tokens.
func (t *Tokenizer) Tokenize(text string) ([]string, error) {
	en, err := t.encode(text)
	if err != nil || en == nil {
		return nil, err
	}
	return en.Tokens, nil
}

// Encode produces [CLS] text [SEP], truncated to the max sequence length.
func (t *Tokenizer) Encode(text string) (Encoding, error) {
	ids, err := t.ids(text)
	if err != nil {
		return Encoding{}, err
	}
	if len(ids) > t.maxLen-2 {
		ids = ids[:t.maxLen-2]
	}
	enc := Encoding{}
	enc.append(t.cls, 0)
	for _, id := range ids {
		enc.append(id, 0)
	}
	enc.append(t.sep, 0)
	return enc, nil
}

// EncodePair produces [CLS] a [SEP] b [SEP] with token type 1 for b. The
// longer side is truncated first until the pair fits.
func (t *Tokenizer) EncodePair(a, b string) (Encoding, error) {
	left, err := t.ids(a)
	if err != nil {
		return Encoding{}, err
	}
	right, err := t.ids(b)
	if err != nil {
		return Encoding{}, err
	}
	for len(left)+len(right) > t.maxLen-3 {
		if len(left) > len(right) {
			left = left[:len(left)-1]
		} else {
			right = right[:len(right)-1]
		}
	}
	enc := Encoding{}
	enc.append(t.cls, 0)
	for _, id := range left {
		enc.append(id, 0)
	}
	enc.append(t.sep, 0)
	for _, id := range right {
		enc.append(id, 1)
	}
	enc.append(t.sep, 1)
	return enc, nil
}

// Batch is a padded row-major batch of encodings.
type Batch struct {
	Rows, Cols    int
	IDs           []int64
	AttentionMask []int64
	TypeIDs       []int64
}

// Pad right-pads every encoding to the longest one.
func (t *Tokenizer) Pad(encs []Encoding) Batch {
	cols := 0
	for _, e := range encs {
		cols = max(cols, len(e.IDs))
	}
	b := Batch{
		Rows:          len(encs),
		Cols:          cols,
		IDs:           make([]int64, len(encs)*cols),
		AttentionMask: make([]int64, len(encs)*cols),
		TypeIDs:       make([]int64, len(encs)*cols),
	}
	for r, e := range encs {
		row := r * cols
		for c := 0; c < cols; c++ {
			if c < len(e.IDs) {
				b.IDs[row+c] = e.IDs[c]
				b.AttentionMask[row+c] = e.AttentionMask[c]
				b.TypeIDs[row+c] = e.TypeIDs[c]
			} else {
				b.IDs[row+c] = t.pad
			}
		}
	}
	return b
}

func (e *Encoding) append(id, typ int64) {
	e.IDs = append(e.IDs, id)
	e.AttentionMask = append(e.AttentionMask, 1)
	e.TypeIDs = append(e.TypeIDs, typ)
}

// encode returns nil for blank text.
func (t *Tokenizer) encode(text string) (*tokenizer.Encoding, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	en, err := t.tk.EncodeSingle(text, false)
	if err != nil {
		return nil, fmt.Errorf("tokenize: %w", err)
	}
	return en, nil
}

func (t *Tokenizer) ids(text string) ([]int64, error) {
	en, err := t.encode(text)
	if err != nil || en == nil {
		return nil, err
	}
	ids := make([]int64, len(en.Ids))
	for i, id := range en.Ids {
		ids[i] = int64(id)
	}
	return ids, nil
}
