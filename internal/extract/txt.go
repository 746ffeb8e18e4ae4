package extract

import (
	"bytes"
	"errors"
	"unicode/utf8"
)

var errInvalidUTF8 = errors.New("input is not valid UTF-8")

func extractTXT(data []byte) (*Result, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		return nil, extractionFailed("txt", errInvalidUTF8)
	}
	return &Result{Text: string(data)}, nil
}
