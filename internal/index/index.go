// Package index holds the per-document vector index and its durable stores.
package index

import (
	"fmt"
	"math"
	"sort"

	"github.com/cloo-solutions/docqa/internal/domain"
)

// Metadata records how an index was produced so stale indexes can be detected.
type Metadata struct {
	DocumentID     string `json:"document_id"`
	EmbeddingModel string `json:"embedding_model"`
	ChunkSize      int    `json:"chunk_size"`
	ChunkOverlap   int    `json:"chunk_overlap"`
}

// Fingerprint identifies the chunking and embedding configuration.
func (m Metadata) Fingerprint(dimensions int) string {
	return fmt.Sprintf("%s/%d/%d/%d", m.EmbeddingModel, dimensions, m.ChunkSize, m.ChunkOverlap)
}

// Match is one query hit.
type Match struct {
	Chunk domain.Chunk
	Score float64
}

type entry struct {
	chunk  domain.Chunk
	vector []float32
	norm   float64
}

// Index is an immutable set of chunks with their embeddings. Safe for concurrent queries.
type Index struct {
	meta       Metadata
	dimensions int
	entries    []entry
}

// BuildOption configures Build
type BuildOption func(*Index)

// WithMetadata attaches production metadata to the index.
func WithMetadata(m Metadata) BuildOption {
	return func(i *Index) {
		i.meta = m
	}
}

// Build pairs chunks with their vectors. The vectors are copied.
func Build(chunks []domain.Chunk, vectors [][]float32, opts ...BuildOption) (*Index, error) {
	if len(chunks) == 0 {
		return nil, domain.ErrEmptyDocument
	}
	if len(chunks) != len(vectors) {
		return nil, domain.NewDomainError(domain.ErrCodeDimensionMismatch,
			fmt.Sprintf("%d chunks but %d vectors", len(chunks), len(vectors)))
	}

	dims := len(vectors[0])
	if dims == 0 {
		return nil, domain.NewDomainError(domain.ErrCodeDimensionMismatch, "vectors are empty")
	}

	idx := &Index{
		dimensions: dims,
		entries:    make([]entry, len(chunks)),
	}
	seen := make(map[int]struct{}, len(chunks))
	for i, c := range chunks {
		v := vectors[i]
		if len(v) != dims {
			return nil, domain.NewDomainError(domain.ErrCodeDimensionMismatch,
				fmt.Sprintf("vector %d has %d dimensions, expected %d", i, len(v), dims))
		}
		if _, dup := seen[c.Position]; dup {
			return nil, domain.NewDomainError(domain.ErrCodeValidation,
				fmt.Sprintf("duplicate chunk position %d", c.Position))
		}
		seen[c.Position] = struct{}{}

		cp := make([]float32, dims)
		copy(cp, v)
		var sum float64
		for _, x := range cp {
			f := float64(x)
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return nil, domain.NewDomainError(domain.ErrCodeValidation,
					fmt.Sprintf("vector %d contains a non-finite value", i))
			}
			sum += f * f
		}
		idx.entries[i] = entry{chunk: c, vector: cp, norm: math.Sqrt(sum)}
	}

	for _, opt := range opts {
		opt(idx)
	}
	return idx, nil
}

// Len returns the number of chunks.
func (i *Index) Len() int { return len(i.entries) }

// Dimensions returns the vector length shared by all entries.
func (i *Index) Dimensions() int { return i.dimensions }

// Metadata returns the production metadata.
func (i *Index) Metadata() Metadata { return i.meta }

// Fingerprint identifies the configuration the index was built with.
func (i *Index) Fingerprint() string { return i.meta.Fingerprint(i.dimensions) }

// Chunks returns the chunks in build order.
func (i *Index) Chunks() []domain.Chunk {
	out := make([]domain.Chunk, len(i.entries))
	for n, e := range i.entries {
		out[n] = e.chunk
	}
	return out
}

// Vectors returns copies of the vectors in build order.
func (i *Index) Vectors() [][]float32 {
	out := make([][]float32, len(i.entries))
	for n, e := range i.entries {
		out[n] = append([]float32(nil), e.vector...)
	}
	return out
}

// Query returns the k chunks most similar to vector by cosine similarity,
// highest score first. Ties go to the lower chunk position. A k larger than
// the index returns every chunk.
func (i *Index) Query(vector []float32, k int) ([]Match, error) {
	if k < 1 {
		return nil, domain.ErrInvalidTopK
	}
	if len(vector) != i.dimensions {
		return nil, domain.NewDomainError(domain.ErrCodeDimensionMismatch,
			fmt.Sprintf("query has %d dimensions, index has %d", len(vector), i.dimensions))
	}

	var qsum float64
	for _, x := range vector {
		qsum += float64(x) * float64(x)
	}
	qnorm := math.Sqrt(qsum)

	matches := make([]Match, len(i.entries))
	for n, e := range i.entries {
		matches[n] = Match{Chunk: e.chunk, Score: cosine(vector, qnorm, e)}
	}

	sort.SliceStable(matches, func(a, b int) bool {
		if matches[a].Score != matches[b].Score {
			return matches[a].Score > matches[b].Score
		}
		return matches[a].Chunk.Position < matches[b].Chunk.Position
	})

	if k < len(matches) {
		matches = matches[:k]
	}
	return matches, nil
}

func cosine(q []float32, qnorm float64, e entry) float64 {
	if qnorm == 0 || e.norm == 0 {
		return 0
	}
	var dot float64
	for n, x := range q {
		dot += float64(x) * float64(e.vector[n])
	}
	return dot / (qnorm * e.norm)
}
