// Package extract turns uploaded files into plain text with optional page boundaries.
package extract

import (
	"fmt"

	"github.com/cloo-solutions/docqa/internal/domain"
)

// Result is the text of a document plus the byte span of each page, when the format has pages.
type Result struct {
	Text  string
	Pages []domain.PageSpan
}

// Extract converts raw file bytes of the given type into text.
// The input slice is not retained.
func Extract(data []byte, fileType domain.FileType) (*Result, error) {
	switch fileType {
	case domain.FileTypePDF:
		return extractPDF(data)
	case domain.FileTypeDOCX:
		return extractDOCX(data)
	case domain.FileTypeCSV:
		return extractCSV(data)
	case domain.FileTypeTXT:
		return extractTXT(data)
	}
	return nil, domain.NewDomainError(domain.ErrCodeUnsupportedFormat, fmt.Sprintf("unsupported file type %q", fileType))
}

func extractionFailed(format string, err error) error {
	return domain.NewDomainErrorWithCause(domain.ErrCodeExtractionFailed, fmt.Sprintf("failed to extract %s", format), err)
}
