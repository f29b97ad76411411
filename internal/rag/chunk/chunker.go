package chunk

import (
	"iter"
)

const (
	DefaultWindow  = 1000
	DefaultOverlap = 200
)

// Record is one window of a document's text. Start and End are rune offsets
// into the text the window was cut from.
type Record struct {
	Index   int
	Content string
	Locator string
	Start   int
	End     int
}

// Section is a locator-tagged span of extracted text, such as a PDF page.
type Section struct {
	Locator string
	Text    string
}

type Chunker struct {
	window  int
	overlap int
}

type Option func(*Chunker)

func WithWindow(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.window = n
		}
	}
}

func WithOverlap(n int) Option {
	return func(c *Chunker) {
		if n >= 0 {
			c.overlap = n
		}
	}
}

func New(opts ...Option) *Chunker {
	c := &Chunker{window: DefaultWindow, overlap: DefaultOverlap}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Chunker) Window() int  { return c.window }
func (c *Chunker) Overlap() int { return c.overlap }

// Step is the distance between consecutive window starts, never below one.
func (c *Chunker) Step() int {
	return max(c.window-c.overlap, 1)
}

// Chunks yields the windows of text. Empty text yields a single empty record.
// The sequence can be ranged over any number of times.
func (c *Chunker) Chunks(text string) iter.Seq[Record] {
	return func(yield func(Record) bool) {
		c.emit(text, "", 0, yield)
	}
}

// Sections chunks each section in turn, numbering records across sections
// and tagging each with its section's locator. Sections with blank text are
// skipped unless every section is blank, in which case one empty record is
// produced.
func (c *Chunker) Sections(sections []Section) iter.Seq[Record] {
	return func(yield func(Record) bool) {
		next := 0
		for _, s := range sections {
			if isBlank(s.Text) {
				continue
			}
			n, ok := c.emit(s.Text, s.Locator, next, yield)
			if !ok {
				return
			}
			next += n
		}
		if next == 0 {
			locator := ""
			if len(sections) > 0 {
				locator = sections[0].Locator
			}
			yield(Record{Locator: locator})
		}
	}
}

func (c *Chunker) emit(text, locator string, first int, yield func(Record) bool) (int, bool) {
	runes := []rune(text)
	if len(runes) == 0 {
		return 1, yield(Record{Index: first, Locator: locator})
	}
	step := c.Step()
	n := 0
	for start := 0; start < len(runes); start += step {
		end := min(start+c.window, len(runes))
		rec := Record{
			Index:   first + n,
			Content: string(runes[start:end]),
			Locator: locator,
			Start:   start,
			End:     end,
		}
		n++
		if !yield(rec) {
			return n, false
		}
		if end == len(runes) {
			break
		}
	}
	return n, true
}

// Collect drains a chunk sequence into a slice.
func Collect(seq iter.Seq[Record]) []Record {
	var out []Record
	for r := range seq {
		out = append(out, r)
	}
	return out
}

func isBlank(s string) bool {
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r', '\f', '\v':
		default:
			return false
		}
	}
	return true
}
