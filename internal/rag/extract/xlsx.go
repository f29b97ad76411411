package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"ragdesk/internal/rag/chunk"
)

// extractXLSX renders each sheet as tab-separated rows, one section per sheet.
func extractXLSX(b []byte) ([]chunk.Section, error) {
	f, err := excelize.OpenReader(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("open xlsx failed: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	sections := make([]chunk.Section, 0, len(sheets))
	for _, sheet := range sheets {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q failed: %w", sheet, err)
		}
		var sb strings.Builder
		for _, row := range rows {
			line := strings.TrimRight(strings.Join(row, "\t"), "\t")
			if line == "" {
				continue
			}
			sb.WriteString(line)
			sb.WriteByte('\n')
		}
		sections = append(sections, chunk.Section{
			Locator: "sheet " + sheet,
			Text:    sb.String(),
		})
	}
	if len(sections) == 0 {
		return nil, fmt.Errorf("xlsx has no sheets")
	}
	return sections, nil
}
