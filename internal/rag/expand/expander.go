// Package expand asks a generative model for alternate phrasings of a user
// query. Expansion only widens recall, so every failure falls back to the
// original query.
package expand

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"ragdesk/internal/metrics"
	"ragdesk/internal/rag"
)

const (
	DefaultMaxAlternates = 2
	DefaultMinLength     = 3
	DefaultHistoryTurns  = 4
	DefaultTimeout       = 15 * time.Second
)

// Generator produces free text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type Config struct {
	MaxAlternates int
	MinLength     int
	HistoryTurns  int
	Timeout       time.Duration
}

type Expander struct {
	gen Generator
	cfg Config
	log *zap.Logger
}

var (
	errNoAlternates = errors.New("model returned no usable alternates")

	markerPattern = regexp.MustCompile(`^(?:[\-\*•·>]+\s*|\(?\d+[\.\):](?:\s+|$))`)
	labelPattern  = regexp.MustCompile(`(?i)^(?:alternate|alternative|rephrasing|phrasing|query)\s*\d*\s*:\s*`)
)

func New(gen Generator, cfg Config, log *zap.Logger) *Expander {
	if cfg.MaxAlternates <= 0 {
		cfg.MaxAlternates = DefaultMaxAlternates
	}
	if cfg.MinLength <= 0 {
		cfg.MinLength = DefaultMinLength
	}
	if cfg.HistoryTurns < 0 {
		cfg.HistoryTurns = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Expander{gen: gen, cfg: cfg, log: log}
}

// Expand returns the original query first followed by at most MaxAlternates
// distinct rephrasings. On failure the result is just the original query
// together with a KindModel error.
func (e *Expander) Expand(ctx context.Context, query string, history []rag.Turn) ([]string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []string{query}, nil
	}
	started := time.Now()
	defer metrics.ObserveStage(string(rag.StageExpand), started)

	alternates, err := e.alternates(ctx, query, history)
	if err != nil {
		metrics.Fallback(string(rag.StageExpand), 1)
		e.log.Warn("query expansion failed, using original query", zap.String("query", query), zap.Error(err))
		return []string{query}, rag.NewError(rag.KindModel, rag.StageExpand, err)
	}
	return append([]string{query}, alternates...), nil
}

func (e *Expander) alternates(ctx context.Context, query string, history []rag.Turn) ([]string, error) {
	if e.gen == nil {
		return nil, errors.New("no generator configured")
	}
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	out, err := e.gen.Generate(callCtx, e.prompt(query, history))
	if err != nil {
		return nil, fmt.Errorf("generate alternates: %w", err)
	}
	alts := Clean(out, query, e.cfg.MinLength, e.cfg.MaxAlternates)
	if len(alts) == 0 {
		return nil, errNoAlternates
	}
	return alts, nil
}

func (e *Expander) prompt(query string, history []rag.Turn) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Rewrite the user's search query in %d different ways that keep the same intent. ", e.cfg.MaxAlternates)
	b.WriteString("Use synonyms or a different wording. ")
	fmt.Fprintf(&b, "Reply with at most %d lines, one rewrite per line, and nothing else. ", e.cfg.MaxAlternates)
	b.WriteString("Do not number the lines, do not add quotes and do not answer the question.\n")

	if turns := lastTurns(history, e.cfg.HistoryTurns); len(turns) > 0 {
		b.WriteString("\nRecent conversation:\n")
		for _, t := range turns {
			fmt.Fprintf(&b, "%s: %s\n", t.Role, strings.TrimSpace(t.Content))
		}
	}
	fmt.Fprintf(&b, "\nQuery: %s\n", query)
	return b.String()
}

// Clean turns raw model output into distinct alternates: enumeration
// markers, labels and surrounding quotes are stripped, lines equal to the
// original (case-insensitively) or shorter than minLen runes are dropped,
// and at most limit lines are kept.
func Clean(raw, original string, minLen, limit int) []string {
	seen := map[string]bool{strings.ToLower(strings.TrimSpace(original)): true}
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		if len(out) >= limit {
			break
		}
		line = strings.TrimSpace(line)
		line = markerPattern.ReplaceAllString(line, "")
		line = labelPattern.ReplaceAllString(line, "")
		line = strings.TrimSpace(strings.Trim(line, "\"'`“”‘’"))
		if utf8.RuneCountInString(line) < minLen {
			continue
		}
		key := strings.ToLower(line)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, line)
	}
	return out
}

func lastTurns(history []rag.Turn, n int) []rag.Turn {
	if n <= 0 {
		return nil
	}
	if len(history) > n {
		return history[len(history)-n:]
	}
	return history
}
