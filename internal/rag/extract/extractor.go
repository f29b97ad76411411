// Package extract turns uploaded files into normalized, locator-tagged text.
package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/text/unicode/norm"

	"ragdesk/internal/pkg/pdfextract"
	"ragdesk/internal/rag"
	"ragdesk/internal/rag/chunk"
)

const (
	MIMEPDF      = "application/pdf"
	MIMEText     = "text/plain"
	MIMEMarkdown = "text/markdown"
	MIMEHTML     = "text/html"
	MIMEJSON     = "application/json"
	MIMECSV      = "text/csv"
	MIMEXML      = "application/xml"
	MIMEDOCX     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MIMEXLSX     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// DefaultAllowed is the upload allow-list used when none is configured.
var DefaultAllowed = []string{
	MIMEPDF, MIMEText, MIMEMarkdown, MIMEHTML, MIMEJSON, MIMECSV, MIMEXML, MIMEDOCX, MIMEXLSX,
}

var extensionTypes = map[string]string{
	".pdf":      MIMEPDF,
	".txt":      MIMEText,
	".text":     MIMEText,
	".log":      MIMEText,
	".md":       MIMEMarkdown,
	".markdown": MIMEMarkdown,
	".html":     MIMEHTML,
	".htm":      MIMEHTML,
	".json":     MIMEJSON,
	".csv":      MIMECSV,
	".xml":      MIMEXML,
	".docx":     MIMEDOCX,
	".xlsx":     MIMEXLSX,
	".doc":      "application/msword",
	".xls":      "application/vnd.ms-excel",
}

var aliases = map[string]string{
	"text/xml":                    MIMEXML,
	"text/x-markdown":             MIMEMarkdown,
	"application/x-pdf":           MIMEPDF,
	"text/json":                   MIMEJSON,
	"application/csv":             MIMECSV,
	"text/comma-separated-values": MIMECSV,
}

// Input is one uploaded file.
type Input struct {
	Filename string
	MIMEType string
	Content  []byte
}

type Extractor struct {
	allowed map[string]bool
}

func New(allowed []string) *Extractor {
	if len(allowed) == 0 {
		allowed = DefaultAllowed
	}
	set := make(map[string]bool, len(allowed))
	for _, t := range allowed {
		set[Canonical(t)] = true
	}
	return &Extractor{allowed: set}
}

// Allowed reports whether files of the given type may enter the pipeline.
func (e *Extractor) Allowed(mimeType string) bool {
	return e.allowed[Canonical(mimeType)]
}

// Canonical lowercases a media type, drops its parameters and resolves
// common aliases.
func Canonical(mimeType string) string {
	t := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	if alias, ok := aliases[t]; ok {
		return alias
	}
	return t
}

// DetectType resolves a file's media type. The extension wins, then a
// specific declared type, then content sniffing.
func DetectType(filename, declared string, content []byte) string {
	if t, ok := extensionTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return t
	}
	if d := Canonical(declared); d != "" && d != "application/octet-stream" {
		return d
	}
	return Canonical(mimetype.Detect(content).String())
}

// Extract converts the file into sections of normalized text. The error is a
// *rag.Error of kind KindUnsupported or KindExtraction.
func (e *Extractor) Extract(ctx context.Context, in Input) ([]chunk.Section, error) {
	if err := ctx.Err(); err != nil {
		return nil, rag.NewError(rag.KindExtraction, rag.StageExtract, err)
	}
	mimeType := Canonical(in.MIMEType)
	if mimeType == "" {
		mimeType = DetectType(in.Filename, "", in.Content)
	}
	if !e.Allowed(mimeType) {
		return nil, rag.Errorf(rag.KindUnsupported, rag.StageExtract, "file type %q is not supported", mimeType)
	}

	var (
		sections []chunk.Section
		err      error
	)
	switch mimeType {
	case MIMEPDF:
		sections, err = extractPDF(in.Content)
	case MIMEDOCX:
		sections, err = extractDOCX(in.Content)
	case MIMEXLSX:
		sections, err = extractXLSX(in.Content)
	case MIMEHTML:
		sections, err = extractHTML(in.Content)
	case MIMEText, MIMEMarkdown, MIMEJSON, MIMECSV, MIMEXML:
		sections = []chunk.Section{{Text: string(in.Content)}}
	default:
		return nil, rag.Errorf(rag.KindUnsupported, rag.StageExtract, "no extractor for %q", mimeType)
	}
	if err != nil {
		return nil, rag.NewError(rag.KindExtraction, rag.StageExtract, err)
	}

	for i := range sections {
		sections[i].Text = Normalize(sections[i].Text)
	}
	return sections, nil
}

func extractPDF(b []byte) ([]chunk.Section, error) {
	pages, err := pdfextract.ExtractPages(b)
	if err != nil {
		return nil, err
	}
	sections := make([]chunk.Section, 0, len(pages))
	for _, p := range pages {
		sections = append(sections, chunk.Section{
			Locator: fmt.Sprintf("page %d", p.Number),
			Text:    p.Text,
		})
	}
	if len(sections) == 0 {
		return nil, fmt.Errorf("pdf has no pages")
	}
	return sections, nil
}

var blankRun = regexp.MustCompile(`\n{3,}`)

// Normalize converts line endings to LF, removes control characters and
// invalid UTF-8, composes characters to NFC, trims trailing whitespace from
// every line and collapses runs of blank lines to a single blank line.
func Normalize(s string) string {
	s = strings.ToValidUTF8(s, "")
	s = norm.NFC.String(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) || r == '\uFEFF' {
			return -1
		}
		return r
	}, s)

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRightFunc(line, unicode.IsSpace)
	}
	s = strings.Join(lines, "\n")
	s = blankRun.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
