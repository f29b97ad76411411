package answer

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"ragdesk/internal/rag"
)

func TestSanitizeDropsLeakingSentence(t *testing.T) {
	s := NewSanitizer(nil, zap.NewNop())

	got := s.Sanitize("Based on the document, the deadline is Friday. Please submit the form early. Thanks!")
	assert.Equal(t, "Please submit the form early. Thanks!", got)
}

func TestSanitizeKeepsOriginalWhenEverythingLeaks(t *testing.T) {
	s := NewSanitizer(nil, zap.NewNop())
	text := "Based on the document, the deadline is Friday."

	assert.Equal(t, text, s.Sanitize(text))
}

func TestSanitizeCaseInsensitive(t *testing.T) {
	s := NewSanitizer(nil, zap.NewNop())
	got := s.Sanitize("The total is 40 euros. I found this on PAGE 3 of your PDF.")
	assert.Equal(t, "The total is 40 euros.", got)
}

func TestSanitizeExtraPhrases(t *testing.T) {
	s := NewSanitizer([]string{"  Internal Wiki "}, zap.NewNop())
	got := s.Sanitize("The office opens at 9. The internal wiki says so.")
	assert.Equal(t, "The office opens at 9.", got)
}

func TestSanitizeGreeting(t *testing.T) {
	s := NewSanitizer(nil, zap.NewNop())
	tests := []struct {
		in   string
		want string
	}{
		{"Hello, Alice! The deadline is Friday.", "The deadline is Friday."},
		{"Hi there! The deadline is Friday.", "The deadline is Friday."},
		{"Hey Bob Smith, it costs 10 dollars.", "It costs 10 dollars."},
		{"Hi there, the deadline is Friday.", "The deadline is Friday."},
		{"Hello!\nThe deadline is Friday.", "The deadline is Friday."},
		{"Hello, this is what I found.", "Hello, this is what I found."},
		{"Hi, I can help with that.", "Hi, I can help with that."},
		{"History shows it works.", "History shows it works."},
		{"Hello, Alice!", "Hello, Alice!"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, s.Sanitize(tt.in), tt.in)
	}
}

func TestSanitizeKeepsParagraphBreakOfDroppedSentence(t *testing.T) {
	s := NewSanitizer(nil, zap.NewNop())
	got := s.Sanitize("The deadline is June 1st. Based on the document, it is firm.\n\nContact support for help.")
	assert.Equal(t, "The deadline is June 1st.\n\nContact support for help.", got)

	got = s.Sanitize("Based on the document, it is firm. The deadline is June 1st. Contact support.")
	assert.Equal(t, "The deadline is June 1st. Contact support.", got)
}

func TestLeaks(t *testing.T) {
	s := NewSanitizer(nil, zap.NewNop())
	assert.True(t, s.Leaks("Based on the Document, the deadline is June 1st."))
	assert.False(t, s.Leaks("The deadline is June 1st."))
}

func TestSanitizeCollapsesBlankLines(t *testing.T) {
	s := NewSanitizer(nil, zap.NewNop())
	got := s.Sanitize("First point.\n\n\n\n\nSecond point.\n  \n\n\nThird point.")
	assert.Equal(t, "First point.\n\nSecond point.\n\nThird point.", got)
}

func TestSentencesRoundTrip(t *testing.T) {
	text := "One. Two?! Three \"quoted.\" Four\nFive... six"
	parts := Sentences(text)
	assert.Equal(t, text, strings.Join(parts, ""))
	assert.Equal(t, []string{"One. ", "Two?! ", "Three \"quoted.\" ", "Four\n", "Five... ", "six"}, parts)
}

func TestSentencesKeepsDecimals(t *testing.T) {
	assert.Equal(t, []string{"It costs 3.50 euros."}, Sentences("It costs 3.50 euros."))
}

func TestBuildPrompt(t *testing.T) {
	a := NewAssembler(AssemblerConfig{TagSimilarity: true})
	rerank := 0.91
	prompt := a.Build(Input{
		Query:     "When is the deadline?",
		OwnerName: "Alice",
		Knowledge: "Acme builds rockets.",
		History: []rag.Turn{
			{Role: rag.RoleUser, Content: "hi"},
			{Role: rag.RoleAssistant, Content: "hello"},
		},
		Retrieved: []Passage{
			{Content: "The deadline is Friday.", Similarity: 0.834},
			{Content: "Submissions go to the office.", Similarity: 0.5, RerankScore: &rerank},
		},
	})

	assert.True(t, strings.HasPrefix(prompt, systemPrompt))
	assert.Contains(t, prompt, "Never reveal where your information comes from.")
	assert.Contains(t, prompt, "You are talking to Alice.")
	assert.Contains(t, prompt, "Company information:\nAcme builds rockets.")
	assert.Contains(t, prompt, "user: hi\nassistant: hello\n")
	assert.Contains(t, prompt, "[1] (relevance 0.83)\nThe deadline is Friday.")
	assert.Contains(t, prompt, "[2] (relevance 0.50, rerank 0.91)\nSubmissions go to the office.")
	assert.True(t, strings.HasSuffix(prompt, "User message: When is the deadline?\nAnswer:"))
}

func TestBuildWithoutOptionalParts(t *testing.T) {
	prompt := NewAssembler(AssemblerConfig{}).Build(Input{
		Query:     "cost",
		Retrieved: []Passage{{Content: "It costs 10.", Similarity: 0.7}},
	})
	assert.NotContains(t, prompt, "You are talking to")
	assert.NotContains(t, prompt, "Company information")
	assert.NotContains(t, prompt, "Conversation so far")
	assert.NotContains(t, prompt, "relevance")
	assert.Contains(t, prompt, "[1]\nIt costs 10.")
}

func TestBuildHistoryModes(t *testing.T) {
	var history []rag.Turn
	for i := 1; i <= 8; i++ {
		history = append(history, rag.Turn{Role: rag.RoleUser, Content: fmt.Sprintf("message %d", i)})
	}

	lastN := NewAssembler(AssemblerConfig{}).Build(Input{Query: "q", History: history})
	assert.NotContains(t, lastN, "message 3\n")
	assert.Contains(t, lastN, "message 4\n")
	assert.Contains(t, lastN, "message 8\n")

	all := NewAssembler(AssemblerConfig{HistoryMode: HistoryAll}).Build(Input{Query: "q", History: history})
	assert.Contains(t, all, "message 1\n")
}

func TestBuildContextBudget(t *testing.T) {
	a := NewAssembler(AssemblerConfig{MaxContextChars: 30})
	prompt := a.Build(Input{Query: "q", Retrieved: []Passage{
		{Content: strings.Repeat("a", 40)},
		{Content: "short"},
	}})
	assert.Contains(t, prompt, strings.Repeat("a", 40))
	assert.NotContains(t, prompt, "short")
}
