// Package chunking splits document text into overlapping retrieval segments.
package chunking

import (
	"strings"
	"unicode/utf8"

	"github.com/cloo-solutions/docqa/internal/domain"
)

const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 150
)

// DefaultSeparators are tried in order: paragraph, line, sentence, word, character.
var DefaultSeparators = []string{"\n\n", "\n", ".", " ", ""}

// Config controls segment size and overlap, both measured in characters.
type Config struct {
	ChunkSize int
	Overlap   int
}

// DefaultConfig provides the standard chunking configuration.
func DefaultConfig() Config {
	return Config{
		ChunkSize: DefaultChunkSize,
		Overlap:   DefaultOverlap,
	}
}

// Normalize fills in defaults and keeps the overlap below the chunk size.
func (c Config) Normalize() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.Overlap < 0 {
		c.Overlap = 0
	}
	if c.Overlap >= c.ChunkSize {
		c.Overlap = c.ChunkSize / 4
	}
	return c
}

// Segment is a contiguous slice of the source text. Start and End are byte offsets.
type Segment struct {
	Text  string
	Start int
	End   int
}

// Split returns the text of each segment.
func Split(text string, cfg Config) []string {
	segs := SplitSegments(text, cfg)
	out := make([]string, len(segs))
	for i, s := range segs {
		out[i] = s.Text
	}
	return out
}

// SplitSegments splits text recursively on DefaultSeparators and merges the pieces
// greedily into segments of at most cfg.ChunkSize characters. Consecutive segments
// share at most cfg.Overlap characters and never leave a gap.
func SplitSegments(text string, cfg Config) []Segment {
	if text == "" {
		return nil
	}
	cfg = cfg.Normalize()

	pieces := splitPieces(text, 0, DefaultSeparators, cfg.ChunkSize)
	return merge(text, pieces, cfg)
}

type span struct {
	start, end int
	runes      int
}

// splitPieces cuts text on the first separator it contains, keeping the separator
// at the end of the preceding piece, and recurses into pieces that are still too long.
func splitPieces(text string, base int, seps []string, size int) []span {
	if n := utf8.RuneCountInString(text); n <= size {
		return []span{{start: base, end: base + len(text), runes: n}}
	}

	sep, rest := "", []string(nil)
	for i, s := range seps {
		if s == "" || strings.Contains(text, s) {
			sep, rest = s, seps[i+1:]
			break
		}
	}

	var parts []string
	if sep == "" {
		parts = make([]string, 0, len(text))
		for i := 0; i < len(text); {
			_, w := utf8.DecodeRuneInString(text[i:])
			parts = append(parts, text[i:i+w])
			i += w
		}
	} else {
		parts = strings.SplitAfter(text, sep)
	}

	out := make([]span, 0, len(parts))
	off := base
	for _, p := range parts {
		if p == "" {
			continue
		}
		n := utf8.RuneCountInString(p)
		if n > size && len(rest) > 0 {
			out = append(out, splitPieces(p, off, rest, size)...)
		} else {
			out = append(out, span{start: off, end: off + len(p), runes: n})
		}
		off += len(p)
	}
	return out
}

func merge(text string, pieces []span, cfg Config) []Segment {
	var segs []Segment
	window := make([]span, 0, 16)
	total := 0

	emit := func() {
		if len(window) == 0 {
			return
		}
		start, end := window[0].start, window[len(window)-1].end
		segs = append(segs, Segment{Text: text[start:end], Start: start, End: end})
	}

	for _, p := range pieces {
		if len(window) > 0 && total+p.runes > cfg.ChunkSize {
			emit()
			for len(window) > 0 && (total > cfg.Overlap || total+p.runes > cfg.ChunkSize) {
				total -= window[0].runes
				window = window[1:]
			}
		}
		window = append(window, p)
		total += p.runes
	}
	emit()

	return segs
}

// Reconstruct joins segments, dropping the overlapping prefix of each one.
func Reconstruct(segs []Segment) string {
	var sb strings.Builder
	end := 0
	for _, s := range segs {
		if s.End <= end {
			continue
		}
		skip := max(end-s.Start, 0)
		sb.WriteString(s.Text[skip:])
		end = s.End
	}
	return sb.String()
}

// ToChunks numbers segments in source order and tags each with the page it starts on.
func ToChunks(segs []Segment, pages []domain.PageSpan) []domain.Chunk {
	chunks := make([]domain.Chunk, len(segs))
	for i, s := range segs {
		chunks[i] = domain.Chunk{
			Position: i,
			Text:     s.Text,
			Page:     domain.PageAt(pages, s.Start),
		}
	}
	return chunks
}
