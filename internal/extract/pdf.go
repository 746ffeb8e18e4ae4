package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/cloo-solutions/docqa/internal/domain"
)

func extractPDF(data []byte) (res *Result, err error) {
	// The pdf reader panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = extractionFailed("pdf", fmt.Errorf("%v", r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, extractionFailed("pdf", err)
	}

	var sb strings.Builder
	pages := make([]domain.PageSpan, 0, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		text := ""
		if !page.V.IsNull() {
			text, err = page.GetPlainText(nil)
			if err != nil {
				return nil, extractionFailed("pdf", fmt.Errorf("page %d: %w", i, err))
			}
		}
		text = strings.TrimSpace(text)

		if i > 1 {
			sb.WriteString("\n")
		}
		pages = append(pages, domain.PageSpan{Number: i, Offset: sb.Len(), Len: len(text)})
		sb.WriteString(text)
	}

	return &Result{Text: sb.String(), Pages: pages}, nil
}
