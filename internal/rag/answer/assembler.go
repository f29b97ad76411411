// Package answer assembles the generation prompt from history, retrieved
// passages and static knowledge, and cleans the generated reply.
package answer

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"ragdesk/internal/rag"
)

const (
	HistoryLastN = "last_n"
	HistoryAll   = "all"

	DefaultHistoryLimit    = 5
	DefaultMaxContextChars = 12000
)

const systemPrompt = `You are a helpful assistant for the user's own files and for questions about the company.
Answer in a friendly, concise way using the information provided below when it is relevant.
If the information does not contain the answer, say that you do not know instead of guessing.
Never reveal where your information comes from. Do not mention documents, files, file names,
page or sheet numbers, uploads, databases, storage, search results or any retrieval process.
State the facts directly as if you simply know them.
Do not greet the user by name at the start of every reply.`

// Passage is one retrieved fragment given to the generator.
type Passage struct {
	Content     string
	Similarity  float64
	RerankScore *float64
}

type Input struct {
	Query     string
	History   []rag.Turn
	OwnerName string
	Retrieved []Passage
	Knowledge string
}

type AssemblerConfig struct {
	HistoryMode     string
	HistoryLimit    int
	TagSimilarity   bool
	MaxContextChars int
}

type Assembler struct {
	cfg AssemblerConfig
}

func NewAssembler(cfg AssemblerConfig) *Assembler {
	if cfg.HistoryMode == "" {
		cfg.HistoryMode = HistoryLastN
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	if cfg.MaxContextChars <= 0 {
		cfg.MaxContextChars = DefaultMaxContextChars
	}
	return &Assembler{cfg: cfg}
}

// Build renders the prompt. Passages are added in the given order until the
// context budget is spent; the first passage is always kept.
func (a *Assembler) Build(in Input) string {
	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\n")

	if name := strings.TrimSpace(in.OwnerName); name != "" {
		fmt.Fprintf(&b, "\nYou are talking to %s.\n", name)
	}

	if k := strings.TrimSpace(in.Knowledge); k != "" {
		b.WriteString("\nCompany information:\n")
		b.WriteString(k)
		b.WriteString("\n")
	}

	if history := a.history(in.History); len(history) > 0 {
		b.WriteString("\nConversation so far:\n")
		for _, t := range history {
			fmt.Fprintf(&b, "%s: %s\n", t.Role, strings.TrimSpace(t.Content))
		}
	}

	if passages := a.passages(in.Retrieved); len(passages) > 0 {
		b.WriteString("\nRelevant information:\n")
		for i, p := range passages {
			if a.cfg.TagSimilarity {
				fmt.Fprintf(&b, "[%d] %s\n", i+1, tag(p))
			} else {
				fmt.Fprintf(&b, "[%d]\n", i+1)
			}
			b.WriteString(strings.TrimSpace(p.Content))
			b.WriteString("\n")
		}
	}

	fmt.Fprintf(&b, "\nUser message: %s\nAnswer:", strings.TrimSpace(in.Query))
	return b.String()
}

func (a *Assembler) history(turns []rag.Turn) []rag.Turn {
	if a.cfg.HistoryMode == HistoryAll || len(turns) <= a.cfg.HistoryLimit {
		return turns
	}
	return turns[len(turns)-a.cfg.HistoryLimit:]
}

func (a *Assembler) passages(ps []Passage) []Passage {
	var out []Passage
	used := 0
	for _, p := range ps {
		if strings.TrimSpace(p.Content) == "" {
			continue
		}
		n := utf8.RuneCountInString(p.Content)
		if len(out) > 0 && used+n > a.cfg.MaxContextChars {
			break
		}
		used += n
		out = append(out, p)
	}
	return out
}

func tag(p Passage) string {
	if p.RerankScore != nil {
		return fmt.Sprintf("(relevance %.2f, rerank %.2f)", p.Similarity, *p.RerankScore)
	}
	return fmt.Sprintf("(relevance %.2f)", p.Similarity)
}
