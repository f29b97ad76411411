package extract

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"ragdesk/internal/rag/chunk"
)

const blockElements = "p, div, section, article, header, footer, li, tr, h1, h2, h3, h4, h5, h6, pre, blockquote, table"

var horizontalSpace = regexp.MustCompile(`[ \t\x{00A0}]+`)

func extractHTML(b []byte) ([]chunk.Section, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("parse html failed: %w", err)
	}
	doc.Find("script, style, noscript, template, head").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find(blockElements).Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	text := doc.Find("body").Text()
	if strings.TrimSpace(text) == "" {
		text = doc.Text()
	}

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(horizontalSpace.ReplaceAllString(line, " "))
	}
	return []chunk.Section{{Text: strings.Join(lines, "\n")}}, nil
}
