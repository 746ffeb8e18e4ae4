package domain

import (
	"strconv"
	"strings"
)

// DefaultUnknownAnswer is returned verbatim when the document does not answer the question.
const DefaultUnknownAnswer = "I don't know"

// DefaultSourcePage is reported when none of the used chunks carries a page marker.
const DefaultSourcePage = 1

// AnswerResult is the displayable outcome of asking a question about a document.
type AnswerResult struct {
	Question    string `json:"question"`
	Answer      string `json:"answer"`
	Sources     []int  `json:"sources"`
	Unknown     bool   `json:"unknown"`
	Unavailable bool   `json:"unavailable"`
	Diagnostic  string `json:"diagnostic,omitempty"`
}

// SourcesLabel renders the sources as "page no: 1, 3", or "" when there are none.
func (r AnswerResult) SourcesLabel() string {
	if len(r.Sources) == 0 {
		return ""
	}
	parts := make([]string, len(r.Sources))
	for i, p := range r.Sources {
		parts[i] = strconv.Itoa(p)
	}
	return "page no: " + strings.Join(parts, ", ")
}

// IsUnknownAnswer reports whether answer is the sentinel, ignoring case,
// surrounding whitespace, quotes and trailing punctuation.
func IsUnknownAnswer(answer, sentinel string) bool {
	norm := func(s string) string {
		s = strings.TrimSpace(s)
		s = strings.Trim(s, "\"'`")
		s = strings.TrimRight(s, ".!?")
		s = strings.ReplaceAll(s, "’", "'")
		return strings.ToLower(strings.TrimSpace(s))
	}
	return norm(answer) != "" && norm(answer) == norm(sentinel)
}
