package domain

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// FileType identifies the format of an uploaded document
type FileType string

const (
	FileTypePDF  FileType = "pdf"
	FileTypeDOCX FileType = "docx"
	FileTypeCSV  FileType = "csv"
	FileTypeTXT  FileType = "txt"
)

// IsValid checks if the FileType is one of the supported formats
func (t FileType) IsValid() bool {
	switch t {
	case FileTypePDF, FileTypeDOCX, FileTypeCSV, FileTypeTXT:
		return true
	}
	return false
}

// ParseFileType maps a filename extension to its FileType.
// Legacy ".doc" names are treated as docx, which is how they are usually uploaded.
func ParseFileType(filename string) (FileType, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	switch ext {
	case "pdf":
		return FileTypePDF, nil
	case "docx", "doc":
		return FileTypeDOCX, nil
	case "csv":
		return FileTypeCSV, nil
	case "txt", "text":
		return FileTypeTXT, nil
	}
	return "", NewDomainError(ErrCodeUnsupportedFormat, fmt.Sprintf("unsupported file type %q", ext))
}

// PageSpan locates one page of the original file inside the extracted text.
// Offset and Len are byte offsets into Document.Content.
type PageSpan struct {
	Number int `json:"number"`
	Offset int `json:"offset"`
	Len    int `json:"len"`
}

// Document is the text extracted from one upload. It is immutable once created.
type Document struct {
	ID        string
	OwnerID   string
	Filename  string
	FileType  FileType
	Content   string
	Pages     []PageSpan
	CreatedAt time.Time
}

// NewDocument creates a new Document instance
func NewDocument(id, ownerID, filename string, fileType FileType, content string, pages []PageSpan, createdAt time.Time) *Document {
	return &Document{
		ID:        id,
		OwnerID:   ownerID,
		Filename:  filename,
		FileType:  fileType,
		Content:   content,
		Pages:     pages,
		CreatedAt: createdAt,
	}
}

// ValidateDocument validates a Document instance
func ValidateDocument(d *Document) error {
	if d == nil {
		return fmt.Errorf("document cannot be nil")
	}

	if d.ID == "" {
		return fmt.Errorf("document ID is required")
	}

	if d.OwnerID == "" {
		return fmt.Errorf("document OwnerID is required")
	}

	if d.Filename == "" {
		return fmt.Errorf("document Filename is required")
	}

	if !d.FileType.IsValid() {
		return fmt.Errorf("document FileType %q is not supported", d.FileType)
	}

	if strings.TrimSpace(d.Content) == "" {
		return ErrEmptyDocument
	}

	return nil
}

// Chunk is a contiguous piece of a document's text, the unit of retrieval.
// Page is the 1-based page the chunk starts on, or 0 when the format has no pages.
type Chunk struct {
	Position int
	Text     string
	Page     int
}

// PageAt returns the page number containing the byte offset, or 0 when pages is empty.
// Offsets between pages belong to the preceding page.
func PageAt(pages []PageSpan, offset int) int {
	page := 0
	for _, p := range pages {
		if p.Offset > offset {
			break
		}
		page = p.Number
	}
	if page == 0 && len(pages) > 0 {
		return pages[0].Number
	}
	return page
}
