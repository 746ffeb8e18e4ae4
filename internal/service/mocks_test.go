package service

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/stretchr/testify/mock"

	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/cloo-solutions/docqa/internal/pagination"
)

// MockEmbedder is a mock implementation of Embedder
type MockEmbedder struct {
	mock.Mock
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

// MockGenerator is a mock implementation of Generator
type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, system, user string) (string, error) {
	args := m.Called(ctx, system, user)
	return args.String(0), args.Error(1)
}

// MockDocumentRepository is a mock implementation of DocumentRepositoryInterface
type MockDocumentRepository struct {
	mock.Mock
}

func (m *MockDocumentRepository) Create(ctx context.Context, d *domain.Document) error {
	args := m.Called(ctx, d)
	return args.Error(0)
}

func (m *MockDocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockDocumentRepository) ListByOwnerWithCursor(ctx context.Context, ownerID string, cursor *pagination.Cursor, limit int) (*pagination.PageResult[*domain.Document], error) {
	args := m.Called(ctx, ownerID, cursor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pagination.PageResult[*domain.Document]), args.Error(1)
}

func (m *MockDocumentRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockUUIDGenerator returns the given ids in order
type MockUUIDGenerator struct {
	uuids []string
	index int
}

func NewMockUUIDGenerator(uuids ...string) *MockUUIDGenerator {
	return &MockUUIDGenerator{uuids: uuids}
}

func (m *MockUUIDGenerator) NewString() string {
	if m.index >= len(m.uuids) {
		return "default-uuid"
	}
	id := m.uuids[m.index]
	m.index++
	return id
}

// wordEmbedder hashes lowercase words into a fixed number of buckets, so texts
// sharing words get similar vectors.
type wordEmbedder struct {
	dims int
}

func (e wordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, e.dims)
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool { return !unicode.IsLetter(r) }) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%uint32(e.dims)]++
	}
	return v, nil
}

func (e wordEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = e.Embed(ctx, t)
	}
	return out, nil
}

// scriptedGenerator answers from the prompt: it echoes the first context line
// containing every keyword, or the sentinel.
type scriptedGenerator struct {
	keywords []string
	calls    int
	lastUser string
}

func (g *scriptedGenerator) Generate(_ context.Context, _, user string) (string, error) {
	g.calls++
	g.lastUser = user
	context, _, _ := strings.Cut(user, "\n\nQuestion: ")
	for _, line := range strings.Split(context, "\n") {
		ok := len(g.keywords) > 0
		for _, k := range g.keywords {
			if !strings.Contains(strings.ToLower(line), k) {
				ok = false
			}
		}
		if ok {
			return strings.TrimSpace(line), nil
		}
	}
	return domain.DefaultUnknownAnswer, nil
}
