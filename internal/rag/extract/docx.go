package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"ragdesk/internal/rag/chunk"
)

const docxBody = "word/document.xml"

var errNoDocumentXML = errors.New("docx has no word/document.xml")

func extractDOCX(b []byte) ([]chunk.Section, error) {
	zr, err := zip.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return nil, fmt.Errorf("open docx archive failed: %w", err)
	}
	for _, f := range zr.File {
		if f.Name != docxBody {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s failed: %w", docxBody, err)
		}
		defer rc.Close()
		text, err := docxText(rc)
		if err != nil {
			return nil, err
		}
		return []chunk.Section{{Text: text}}, nil
	}
	return nil, errNoDocumentXML
}

// docxText walks the WordprocessingML token stream. Paragraphs, including
// those nested in tables, end with a newline; tabs and breaks are kept.
func docxText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var out strings.Builder
	inText := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse %s failed: %w", docxBody, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				out.WriteByte('\t')
			case "br", "cr":
				out.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				out.WriteByte('\n')
			case "tc":
				out.WriteByte('\t')
			}
		case xml.CharData:
			if inText {
				out.Write(t)
			}
		}
	}
	return out.String(), nil
}
