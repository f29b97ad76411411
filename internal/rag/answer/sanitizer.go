package answer

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"
)

// DefaultDenylist holds lower-case phrases that reveal retrieval provenance.
var DefaultDenylist = []string{
	"document",
	"uploaded",
	"your file",
	"file name",
	"filename",
	"page",
	"spreadsheet",
	"pdf",
	"database",
	"storage",
	"vector",
	"embedding",
	"chunk",
	"knowledge base",
	"search results",
	"retrieved",
	"context provided",
	"provided context",
}

// A greeting is stripped only when it addresses someone ("Hello, Alice!",
// "Hi there,") or stands alone on its line. "Hello, this is..." is kept.
var (
	greetingPattern = regexp.MustCompile(`^\s*(?i:hello|hi|hey|greetings|dear)\b` +
		`(?:(?:[ \t]+(?i:there)(?:[ \t]*,?[ \t]*` + namePattern + `)?|[ \t]*,?[ \t]*` + namePattern + `)[ \t]*[,!.:]\s*` +
		`|[ \t]*[,!.:]?[ \t]*(?:\r?\n\s*|$))`)
	blankLinesPattern = regexp.MustCompile(`(\r?\n[ \t]*){3,}`)
)

const namePattern = `\p{Lu}[\p{L}'\-]*(?:[ \t]+\p{Lu}[\p{L}'\-]*){0,2}`

type Sanitizer struct {
	denylist []string
	log      *zap.Logger
}

// NewSanitizer uses DefaultDenylist plus any extra phrases.
func NewSanitizer(extra []string, log *zap.Logger) *Sanitizer {
	deny := make([]string, 0, len(DefaultDenylist)+len(extra))
	deny = append(deny, DefaultDenylist...)
	for _, p := range extra {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			deny = append(deny, p)
		}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sanitizer{denylist: deny, log: log}
}

// Sanitize strips a leading greeting, drops every sentence containing a
// denylisted phrase and collapses runs of blank lines. If nothing would be
// left the text is returned unchanged; callers that must never show a leak
// check the result with Leaks.
func (s *Sanitizer) Sanitize(text string) string {
	out := stripGreeting(text)

	var b strings.Builder
	dropped := 0
	pending := ""
	for _, sentence := range Sentences(out) {
		body, sep := splitSeparator(sentence)
		if s.Leaks(body) {
			dropped++
			pending = widerSeparator(pending, sep)
			continue
		}
		b.WriteString(pending)
		b.WriteString(body)
		pending = sep
	}
	out = blankLinesPattern.ReplaceAllString(b.String(), "\n\n")
	out = strings.TrimSpace(out)

	if out == "" {
		if strings.TrimSpace(text) != "" {
			s.log.Warn("sanitizer would empty the reply, keeping it unchanged", zap.Int("dropped", dropped))
		}
		return text
	}
	if dropped > 0 {
		s.log.Info("removed provenance sentences from reply", zap.Int("dropped", dropped))
	}
	return out
}

// Leaks reports whether text contains any denylisted phrase.
func (s *Sanitizer) Leaks(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range s.denylist {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func stripGreeting(text string) string {
	loc := greetingPattern.FindStringIndex(text)
	if loc == nil {
		return text
	}
	rest := text[loc[1]:]
	r, size := utf8.DecodeRuneInString(rest)
	if size == 0 || !unicode.IsLower(r) {
		return rest
	}
	return string(unicode.ToUpper(r)) + rest[size:]
}

// splitSeparator cuts a sentence into its body and trailing whitespace.
func splitSeparator(sentence string) (string, string) {
	body := strings.TrimRightFunc(sentence, unicode.IsSpace)
	return body, sentence[len(body):]
}

// widerSeparator keeps paragraph breaks when the sentence between two
// separators is dropped.
func widerSeparator(a, b string) string {
	na, nb := strings.Count(a, "\n"), strings.Count(b, "\n")
	if nb > na || (nb == na && len(b) > len(a)) {
		return b
	}
	return a
}

// Sentences splits text after terminal punctuation followed by whitespace
// and after newlines. Each piece keeps its trailing whitespace so that
// concatenating all pieces reproduces the input.
func Sentences(text string) []string {
	var out []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		end := false
		switch {
		case r == '\n':
			end = true
		case r == '.' || r == '!' || r == '?':
			for i+1 < len(runes) && (runes[i+1] == '.' || runes[i+1] == '!' || runes[i+1] == '?' || runes[i+1] == '"' || runes[i+1] == ')') {
				i++
			}
			end = i+1 == len(runes) || unicode.IsSpace(runes[i+1])
		}
		if !end {
			continue
		}
		for i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
			i++
		}
		out = append(out, string(runes[start:i+1]))
		start = i + 1
	}
	if start < len(runes) {
		out = append(out, string(runes[start:]))
	}
	return out
}
