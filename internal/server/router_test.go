package server

import (
	"bytes"
	"context"
	"encoding/json"
	"hash/fnv"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/docqa/internal/api/handlers"
	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/cloo-solutions/docqa/internal/index"
	"github.com/cloo-solutions/docqa/internal/logging"
	"github.com/cloo-solutions/docqa/internal/pagination"
	"github.com/cloo-solutions/docqa/internal/service"
)

// memoryRepo is an in-memory DocumentRepositoryInterface.
type memoryRepo struct {
	docs map[string]*domain.Document
}

func (r *memoryRepo) Create(_ context.Context, d *domain.Document) error {
	r.docs[d.ID] = d
	return nil
}

func (r *memoryRepo) GetByID(_ context.Context, id string) (*domain.Document, error) {
	d, ok := r.docs[id]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	return d, nil
}

func (r *memoryRepo) ListByOwnerWithCursor(_ context.Context, ownerID string, _ *pagination.Cursor, limit int) (*pagination.PageResult[*domain.Document], error) {
	var items []*domain.Document
	for _, d := range r.docs {
		if d.OwnerID == ownerID {
			items = append(items, d)
		}
	}
	page := pagination.Trim(items, limit, func(d *domain.Document) (string, time.Time) { return d.ID, d.CreatedAt })
	return &page, nil
}

func (r *memoryRepo) Delete(_ context.Context, id string) error {
	if _, ok := r.docs[id]; !ok {
		return domain.ErrDocumentNotFound
	}
	delete(r.docs, id)
	return nil
}

type bagOfWords struct{}

func (bagOfWords) Embed(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, 32)
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool { return !unicode.IsLetter(r) }) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%32]++
	}
	return v, nil
}

func (e bagOfWords) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = e.Embed(ctx, t)
	}
	return out, nil
}

// echoGenerator answers with the first context line mentioning the sky.
type echoGenerator struct{}

func (echoGenerator) Generate(_ context.Context, _, user string) (string, error) {
	for _, line := range strings.Split(user, "\n") {
		if strings.Contains(strings.ToLower(line), "sky") && !strings.HasPrefix(line, "Question:") {
			return line, nil
		}
	}
	return domain.DefaultUnknownAnswer, nil
}

type testServer struct {
	handler http.Handler
	token   string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	token, err := service.GenerateAPIToken()
	require.NoError(t, err)

	store := index.NewFileStore(t.TempDir())
	indexer := service.NewIndexingService(bagOfWords{}, store, service.IndexingConfig{EmbeddingModel: "test"},
		service.WithIndexingLogger(logging.Discard()))
	qa := service.NewQAService(store,
		service.NewRetriever(bagOfWords{}),
		service.NewAnswerSynthesizer(echoGenerator{}, service.AnswerConfig{}, service.WithAnswerLogger(logging.Discard())),
		service.QAConfig{},
		service.WithQALogger(logging.Discard()),
	)
	docs := service.NewDocumentService(&memoryRepo{docs: map[string]*domain.Document{}}, indexer, qa, store, nil,
		service.WithDocumentLogger(logging.Discard()))

	handler := NewRouter(RouterConfig{
		AuthValidator:   service.NewAuthService(map[string]string{"alice": service.HashToken(token)}),
		DocumentHandler: handlers.NewDocumentHandler(docs),
		Logger:          logging.Discard(),
		MaxBodyBytes:    1 << 20,
	})
	return &testServer{handler: handler, token: token}
}

func (s *testServer) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	req.Header.Set("Authorization", "Bearer "+s.token)
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func data(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp.Data
}

func uploadRequest(t *testing.T, filename, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestRouter_Health(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRouter_RequiresAuth(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/documents", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	req.Header.Set("Authorization", "Bearer dqa_"+strings.Repeat("0", 64))
	w = httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_UploadAskDelete(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, uploadRequest(t, "colors.txt", "The sky is blue.\nGrass is green."))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := data(t, w)["id"].(string)
	require.NotEmpty(t, id)

	w = s.do(t, httptest.NewRequest(http.MethodGet, "/documents", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, data(t, w)["items"], 1)

	w = s.do(t, httptest.NewRequest(http.MethodPost, "/documents/"+id+"/ask",
		strings.NewReader(`{"question":"What color is the sky?"}`)))
	require.Equal(t, http.StatusOK, w.Code)
	answer := data(t, w)
	assert.Contains(t, answer["answer"], "blue")
	assert.Equal(t, "page no: 1", answer["sources_label"])

	w = s.do(t, httptest.NewRequest(http.MethodPost, "/documents/"+id+"/ask",
		strings.NewReader(`{"question":"What is the capital of France?"}`)))
	require.Equal(t, http.StatusOK, w.Code)
	unknown := data(t, w)
	assert.Equal(t, "I don't know", unknown["answer"])
	assert.Equal(t, true, unknown["unknown"])

	w = s.do(t, httptest.NewRequest(http.MethodDelete, "/documents/"+id, nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, httptest.NewRequest(http.MethodGet, "/documents/"+id, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_UploadTooLarge(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, uploadRequest(t, "big.txt", strings.Repeat("a", 2<<20)))

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestRouter_UploadUnsupported(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, uploadRequest(t, "deck.pptx", "x"))

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}
