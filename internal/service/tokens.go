package service

import (
	"fmt"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter measures and trims prompt text in model tokens.
type TokenCounter interface {
	CountTokens(text string) int
	TrimToTokenLimit(text string, maxTokens int) string
}

type tiktokenCounter struct {
	encoding *tiktoken.Tiktoken
}

// NewTiktokenCounter loads the cl100k_base encoding used by the OpenAI chat models.
func NewTiktokenCounter() (TokenCounter, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to load tiktoken encoding: %w", err)
	}
	return &tiktokenCounter{encoding: enc}, nil
}

func (t *tiktokenCounter) CountTokens(text string) int {
	return len(t.encoding.Encode(text, nil, nil))
}

func (t *tiktokenCounter) TrimToTokenLimit(text string, maxTokens int) string {
	tokens := t.encoding.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return trimPartialRune(t.encoding.Decode(tokens[:maxTokens]))
}

// trimPartialRune drops trailing bytes left over from a token cut inside a
// multi-byte character.
func trimPartialRune(s string) string {
	for len(s) > 0 {
		r, size := utf8.DecodeLastRuneInString(s)
		if r != utf8.RuneError || size > 1 {
			break
		}
		s = s[:len(s)-size]
	}
	return s
}

// EstimateCounter approximates four characters per token. It is used when the
// tiktoken encoding cannot be loaded.
type EstimateCounter struct{}

const runesPerToken = 4

func (EstimateCounter) CountTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + runesPerToken - 1) / runesPerToken
}

func (EstimateCounter) TrimToTokenLimit(text string, maxTokens int) string {
	limit := maxTokens * runesPerToken
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit])
}
