// Package knowledge serves the static company information that is mixed into
// every prompt alongside the user's own files.
package knowledge

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	DefaultWindow   = 2
	DefaultMaxChars = 4000
)

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "you": true, "what": true, "how": true,
	"who": true, "does": true, "with": true, "can": true, "your": true, "about": true, "this": true,
	"that": true, "have": true, "from": true, "when": true, "where": true, "which": true, "is": true,
}

// Base is an immutable line-oriented text blob.
type Base struct {
	lines    []string
	lower    []string
	window   int
	maxChars int
}

// Load reads the blob at path. An empty path or a missing file yields an
// empty base.
func Load(path string, window, maxChars int) (*Base, error) {
	if path == "" {
		return New("", window, maxChars), nil
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return New("", window, maxChars), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read knowledge file failed: %w", err)
	}
	return New(string(raw), window, maxChars), nil
}

func New(text string, window, maxChars int) *Base {
	if window < 0 {
		window = DefaultWindow
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	b := &Base{window: window, maxChars: maxChars}
	if text == "" {
		return b
	}
	b.lines = strings.Split(text, "\n")
	b.lower = make([]string, len(b.lines))
	for i, l := range b.lines {
		b.lower[i] = strings.ToLower(l)
	}
	return b
}

func (b *Base) Empty() bool { return len(b.lines) == 0 }

// Lookup returns the lines around every keyword hit, in document order and
// without repeats. With no hit the start of the whole blob is returned. The
// result never exceeds maxChars runes.
func (b *Base) Lookup(query string) string {
	if b.Empty() {
		return ""
	}
	keywords := keywordsOf(query)

	keep := make([]bool, len(b.lines))
	hit := false
	for i, line := range b.lower {
		for _, k := range keywords {
			if strings.Contains(line, k) {
				hit = true
				for j := max(0, i-b.window); j <= min(len(b.lines)-1, i+b.window); j++ {
					keep[j] = true
				}
				break
			}
		}
	}

	var out []string
	for i, l := range b.lines {
		if !hit || keep[i] {
			out = append(out, l)
		}
	}
	return truncate(strings.Join(out, "\n"), b.maxChars)
}

func keywordsOf(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var out []string
	for _, f := range fields {
		if utf8.RuneCountInString(f) >= 3 && !stopwords[f] {
			out = append(out, f)
		}
	}
	return out
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n]))
}
