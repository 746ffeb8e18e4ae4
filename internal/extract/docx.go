package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strings"
)

type documentXML struct {
	Body struct {
		Paragraphs []paragraph `xml:"p"`
	} `xml:"body"`
}

type paragraph struct {
	Runs []run `xml:"r"`
}

type run struct {
	Text []textElement `xml:"t"`
}

type textElement struct {
	Content string `xml:",chardata"`
}

func extractDOCX(data []byte) (*Result, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, extractionFailed("docx", err)
	}

	for _, file := range reader.File {
		if file.Name != "word/document.xml" {
			continue
		}

		rc, err := file.Open()
		if err != nil {
			return nil, extractionFailed("docx", err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, extractionFailed("docx", err)
		}

		var doc documentXML
		if err := xml.Unmarshal(content, &doc); err != nil {
			return nil, extractionFailed("docx", err)
		}

		lines := make([]string, 0, len(doc.Body.Paragraphs))
		for _, para := range doc.Body.Paragraphs {
			var sb strings.Builder
			for _, r := range para.Runs {
				for _, t := range r.Text {
					sb.WriteString(t.Content)
				}
			}
			lines = append(lines, sb.String())
		}
		return &Result{Text: strings.Join(lines, "\n")}, nil
	}

	return nil, extractionFailed("docx", errors.New("word/document.xml not found"))
}
