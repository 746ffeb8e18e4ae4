package extract

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/docqa/internal/domain"
)

// buildPDF assembles a minimal PDF with one Helvetica text line per page.
func buildPDF(t *testing.T, pages ...string) []byte {
	t.Helper()

	n := len(pages)
	fontObj := 3 + 2*n
	objects := make([]string, 0, fontObj)
	objects = append(objects, "<< /Type /Catalog /Pages 2 0 R >>")

	kids := make([]string, n)
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 3+2*i)
	}
	objects = append(objects, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), n))

	for i, text := range pages {
		stream := fmt.Sprintf("BT /F1 12 Tf 72 712 Td (%s) Tj ET", text)
		objects = append(objects,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents %d 0 R /Resources << /Font << /F1 %d 0 R >> >> >>", 4+2*i, fontObj),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		)
	}
	objects = append(objects, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func buildDOCX(t *testing.T, paragraphs ...string) []byte {
	t.Helper()

	var body strings.Builder
	for _, p := range paragraphs {
		fmt.Fprintf(&body, "<w:p><w:r><w:t>%s</w:t></w:r></w:p>", p)
	}
	doc := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body.String() + `</w:body></w:document>`

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(doc))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestExtract_PDF(t *testing.T) {
	data := buildPDF(t, "First page text", "Second page text")

	res, err := Extract(data, domain.FileTypePDF)
	require.NoError(t, err)

	require.Len(t, res.Pages, 2)
	assert.Equal(t, 1, res.Pages[0].Number)
	assert.Equal(t, 2, res.Pages[1].Number)

	first := res.Text[res.Pages[0].Offset : res.Pages[0].Offset+res.Pages[0].Len]
	second := res.Text[res.Pages[1].Offset : res.Pages[1].Offset+res.Pages[1].Len]
	assert.Contains(t, first, "First page text")
	assert.Contains(t, second, "Second page text")
	assert.Less(t, strings.Index(res.Text, "First"), strings.Index(res.Text, "Second"))
}

func TestExtract_PDFMalformed(t *testing.T) {
	_, err := Extract([]byte("%PDF-1.4\nthis is not a pdf"), domain.FileTypePDF)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrExtractionFailed))
}

func TestExtract_DOCX(t *testing.T) {
	data := buildDOCX(t, "Hello", "World")

	res, err := Extract(data, domain.FileTypeDOCX)
	require.NoError(t, err)
	assert.Equal(t, "Hello\nWorld", res.Text)
	assert.Empty(t, res.Pages)
}

func TestExtract_DOCXNotZip(t *testing.T) {
	_, err := Extract([]byte("plain text"), domain.FileTypeDOCX)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrExtractionFailed))
}

func TestExtract_DOCXMissingBody(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	_, err := zw.Create("docProps/core.xml")
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = Extract(buf.Bytes(), domain.FileTypeDOCX)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrExtractionFailed))
}

func TestExtract_CSV(t *testing.T) {
	data := []byte("name,color\nsky,blue\ngrass,green\nsun\n")

	res, err := Extract(data, domain.FileTypeCSV)
	require.NoError(t, err)

	lines := strings.Split(res.Text, "\n")
	var skyLine, grassLine int = -1, -1
	for i, l := range lines {
		if strings.Contains(l, "sky") {
			skyLine = i
		}
		if strings.Contains(l, "grass") {
			grassLine = i
		}
	}
	require.NotEqual(t, -1, skyLine)
	require.NotEqual(t, -1, grassLine)
	assert.Contains(t, lines[skyLine], "blue")
	assert.Contains(t, lines[grassLine], "green")
	assert.Less(t, skyLine, grassLine)
	assert.Contains(t, res.Text, "name")
	assert.Contains(t, res.Text, "sun")
}

func TestExtract_CSVWideCellDoesNotPadRows(t *testing.T) {
	wide := strings.Repeat("lorem ipsum ", 25)
	data := []byte("name,note\nsky,blue\ngrass," + wide + "\n")

	res, err := Extract(data, domain.FileTypeCSV)
	require.NoError(t, err)

	for _, l := range strings.Split(res.Text, "\n") {
		if strings.Contains(l, "sky") {
			assert.Contains(t, l, "blue")
			assert.Less(t, len(l), 80, "row padded to %d bytes", len(l))
		}
	}
	assert.Equal(t, 25, strings.Count(res.Text, "lorem"))
	assert.NotContains(t, res.Text, "─")
}

func TestExtract_CSVEmpty(t *testing.T) {
	res, err := Extract([]byte(""), domain.FileTypeCSV)
	require.NoError(t, err)
	assert.Equal(t, "", res.Text)
}

func TestExtract_TXT(t *testing.T) {
	res, err := Extract([]byte("\xef\xbb\xbfThe sky is blue.\nGrass is green."), domain.FileTypeTXT)
	require.NoError(t, err)
	assert.Equal(t, "The sky is blue.\nGrass is green.", res.Text)
}

func TestExtract_TXTInvalidUTF8(t *testing.T) {
	_, err := Extract([]byte{0xff, 0xfe, 0x00}, domain.FileTypeTXT)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrExtractionFailed))
}

func TestExtract_UnsupportedFormat(t *testing.T) {
	_, err := Extract([]byte("data"), domain.FileType("xls"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnsupportedFormat))
}

func TestExtract_DoesNotRetainInput(t *testing.T) {
	data := []byte("mutable")
	res, err := Extract(data, domain.FileTypeTXT)
	require.NoError(t, err)

	data[0] = 'X'
	assert.Equal(t, "mutable", res.Text)
}
