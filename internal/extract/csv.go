package extract

import (
	"bytes"
	"encoding/csv"
	"strings"
	"unicode/utf8"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
)

// maxCellWidth caps column padding; longer cells wrap onto continuation lines.
const maxCellWidth = 48

// extractCSV renders the records as a markdown table so each row reads as one line.
func extractCSV(data []byte) (*Result, error) {
	if !utf8.Valid(data) {
		return nil, extractionFailed("csv", errInvalidUTF8)
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, extractionFailed("csv", err)
	}
	if len(records) == 0 {
		return &Result{}, nil
	}

	width := 0
	for _, rec := range records {
		width = max(width, len(rec))
	}

	var buf bytes.Buffer
	table := tablewriter.NewTable(&buf,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithHeaderAutoFormat(tw.Off),
		tablewriter.WithHeaderAutoWrap(tw.WrapNormal),
		tablewriter.WithHeaderMaxWidth(maxCellWidth),
		tablewriter.WithRowAutoWrap(tw.WrapNormal),
		tablewriter.WithRowMaxWidth(maxCellWidth),
	)
	table.Header(toCells(records[0], width)...)
	for _, rec := range records[1:] {
		if err := table.Append(toCells(rec, width)...); err != nil {
			return nil, extractionFailed("csv", err)
		}
	}
	if err := table.Render(); err != nil {
		return nil, extractionFailed("csv", err)
	}

	return &Result{Text: strings.TrimRight(buf.String(), "\n")}, nil
}

func toCells(rec []string, width int) []any {
	cells := make([]any, width)
	for i := range cells {
		if i < len(rec) {
			cells[i] = strings.TrimSpace(rec[i])
		} else {
			cells[i] = ""
		}
	}
	return cells
}
