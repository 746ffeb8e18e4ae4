//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode"

	"github.com/jackc/pgx/v5/pgxpool"
	goopenai "github.com/sashabaranov/go-openai"

	"github.com/cloo-solutions/docqa/internal/api/handlers"
	"github.com/cloo-solutions/docqa/internal/chunking"
	"github.com/cloo-solutions/docqa/internal/index"
	"github.com/cloo-solutions/docqa/internal/logging"
	"github.com/cloo-solutions/docqa/internal/openai"
	"github.com/cloo-solutions/docqa/internal/repository"
	"github.com/cloo-solutions/docqa/internal/retry"
	"github.com/cloo-solutions/docqa/internal/server"
	"github.com/cloo-solutions/docqa/internal/service"
	"github.com/cloo-solutions/docqa/internal/storage"
	"github.com/cloo-solutions/docqa/internal/testutil"
)

const (
	testOwner      = "e2e-owner"
	otherOwner     = "e2e-other"
	testDimensions = 64
)

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T            *testing.T
	Ctx          context.Context
	PostgresC    *testutil.PostgresContainer
	RustFSC      *testutil.RustFSContainer
	Pool         *pgxpool.Pool
	Model        *httptest.Server
	ServerURL    string
	ServerCloser func()
	S3Client     *storage.S3Client
	BinaryDir    string
	Token        string
	OtherToken   string
	HTTPClient   *http.Client
}

// SetupE2EEnv starts postgres and RustFS, a fake model API and the docqa server.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	s3C := testutil.NewRustFSContainer(ctx, t)
	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	s3Client := s3C.NewS3Client(ctx, t, "e2e-indexes")

	token, err := service.GenerateAPIToken()
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	otherToken, err := service.GenerateAPIToken()
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	port, err := getFreePort()
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}

	model := newFakeModelServer()
	auth := service.NewAuthService(map[string]string{
		testOwner:  service.HashToken(token),
		otherOwner: service.HashToken(otherToken),
	})
	serverURL, serverCloser := startServer(t, pool, index.NewObjectStore(s3Client), model.URL+"/v1", auth, port)

	return &E2ETestEnv{
		T:            t,
		Ctx:          ctx,
		PostgresC:    pgC,
		RustFSC:      s3C,
		Pool:         pool,
		Model:        model,
		ServerURL:    serverURL,
		ServerCloser: serverCloser,
		S3Client:     s3Client,
		Token:        token,
		OtherToken:   otherToken,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.ServerCloser != nil {
		e.ServerCloser()
	}
	if e.Model != nil {
		e.Model.Close()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.RustFSC != nil {
		_ = e.RustFSC.Terminate(e.Ctx)
	}
	if e.PostgresC != nil {
		_ = e.PostgresC.Terminate(e.Ctx)
	}
	if e.BinaryDir != "" {
		_ = os.RemoveAll(e.BinaryDir)
	}
}

// BuildBinaries builds the docqa CLI
func (e *E2ETestEnv) BuildBinaries() {
	tmpDir, err := os.MkdirTemp("", "docqa-e2e-*")
	if err != nil {
		e.T.Fatalf("failed to create temp dir: %v", err)
	}
	e.BinaryDir = tmpDir

	cmd := exec.Command("go", "build", "-o", filepath.Join(tmpDir, "docqa"), "./cmd/docqa")
	cmd.Dir = "../.."
	if out, err := cmd.CombinedOutput(); err != nil {
		e.T.Fatalf("failed to build docqa: %v\n%s", err, out)
	}
}

// RunDocqa runs the docqa CLI against the test server
func (e *E2ETestEnv) RunDocqa(workDir string, args ...string) (string, error) {
	cmd := exec.Command(filepath.Join(e.BinaryDir, "docqa"), args...)
	cmd.Dir = workDir
	cmd.Env = append(os.Environ(),
		"DOCQA_API_KEY="+e.Token,
		"DOCQA_API_URL="+e.ServerURL,
		"XDG_CONFIG_HOME="+workDir,
		"HOME="+workDir,
	)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// APIResponse represents a standard API response
type APIResponse struct {
	Status int             `json:"-"`
	Data   json.RawMessage `json:"data"`
	Error  string          `json:"error,omitempty"`
	Code   string          `json:"code,omitempty"`
}

// Get performs a GET request
func (e *E2ETestEnv) Get(path, token string) (*APIResponse, error) {
	return e.doJSON(http.MethodGet, path, nil, token)
}

// Post performs a POST request
func (e *E2ETestEnv) Post(path string, body any, token string) (*APIResponse, error) {
	return e.doJSON(http.MethodPost, path, body, token)
}

// Delete performs a DELETE request
func (e *E2ETestEnv) Delete(path, token string) (*APIResponse, error) {
	return e.doJSON(http.MethodDelete, path, nil, token)
}

// Upload posts a file to /documents as multipart form data.
func (e *E2ETestEnv) Upload(filename string, content []byte, token string) (*APIResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(content); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, e.ServerURL+"/documents", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return e.send(req, token)
}

func (e *E2ETestEnv) doJSON(method, path string, body any, token string) (*APIResponse, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, e.ServerURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return e.send(req, token)
}

// send never fails on HTTP error statuses; callers assert on Status.
func (e *E2ETestEnv) send(req *http.Request, token string) (*APIResponse, error) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	apiResp := APIResponse{Status: resp.StatusCode}
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &apiResp); err != nil {
			return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, respBody)
		}
	}
	return &apiResp, nil
}

func startServer(t *testing.T, pool *pgxpool.Pool, store index.Store, modelURL string, auth *service.AuthService, port int) (string, func()) {
	logger := logging.Discard()

	client := openai.NewClientWithConfig(openai.Config{
		APIKey:              "sk-e2e",
		BaseURL:             modelURL,
		EmbeddingModel:      goopenai.SmallEmbedding3,
		EmbeddingDimensions: testDimensions,
		ChatModel:           "e2e-chat",
	})
	policy := retry.DefaultPolicy()
	embedder := retry.NewEmbedder(client, policy, nil)
	generator := retry.NewGenerator(client, policy, nil)

	indexer := service.NewIndexingService(embedder, store, service.IndexingConfig{
		Chunking:       chunking.Config{ChunkSize: 200, Overlap: 20},
		EmbeddingModel: string(goopenai.SmallEmbedding3),
	}, service.WithIndexingLogger(logger))
	qa := service.NewQAService(store, service.NewRetriever(embedder),
		service.NewAnswerSynthesizer(generator, service.AnswerConfig{}, service.WithAnswerLogger(logger)),
		service.QAConfig{}, service.WithQALogger(logger))
	docs := service.NewDocumentService(repository.NewDocumentRepository(pool), indexer, qa, store, nil,
		service.WithDocumentLogger(logger))

	router := server.NewRouter(server.RouterConfig{
		AuthValidator:   auth,
		DocumentHandler: handlers.NewDocumentHandler(docs),
		HealthHandler:   handlers.NewHealthHandler(pool),
		Logger:          logger,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: router,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.Logf("server error: %v", err)
		}
	}()

	serverURL := fmt.Sprintf("http://localhost:%d", port)
	waitForServer(t, serverURL, 10*time.Second)

	return serverURL, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// newFakeModelServer serves the embeddings and chat completions endpoints.
// Embeddings are word-hash histograms, so chunks sharing words with the question
// rank first. The chat model answers with the first context line that mentions
// a word of the question, and with the unknown sentinel otherwise.
func newFakeModelServer() *httptest.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/embeddings", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input      []string `json:"input"`
			Dimensions int      `json:"dimensions"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		dims := req.Dimensions
		if dims <= 0 {
			dims = testDimensions
		}
		resp := goopenai.EmbeddingResponse{Object: "list", Model: goopenai.SmallEmbedding3}
		for i, text := range req.Input {
			resp.Data = append(resp.Data, goopenai.Embedding{Object: "embedding", Index: i, Embedding: hashEmbedding(text, dims)})
		}
		writeJSON(w, resp)
	})

	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req goopenai.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		user := req.Messages[len(req.Messages)-1].Content
		writeJSON(w, goopenai.ChatCompletionResponse{
			ID:     "chatcmpl-e2e",
			Object: "chat.completion",
			Model:  req.Model,
			Choices: []goopenai.ChatCompletionChoice{{
				Message:      goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleAssistant, Content: fakeAnswer(user)},
				FinishReason: goopenai.FinishReasonStop,
			}},
		})
	})

	return httptest.NewServer(mux)
}

var stopWords = map[string]bool{"what": true, "is": true, "the": true, "of": true, "a": true, "color": true}

func fakeAnswer(prompt string) string {
	contextPart, question, ok := strings.Cut(prompt, "\n\nQuestion: ")
	if !ok {
		return "I don't know"
	}
	for _, word := range words(question) {
		if stopWords[word] {
			continue
		}
		for _, line := range strings.Split(contextPart, "\n") {
			if strings.Contains(strings.ToLower(line), word) {
				return strings.TrimSpace(line)
			}
		}
	}
	return "I don't know"
}

func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool { return !unicode.IsLetter(r) })
}

func hashEmbedding(text string, dims int) []float32 {
	v := make([]float32, dims)
	for _, w := range words(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%uint32(dims)]++
	}
	v[0] += 0.01
	return v
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func waitForServer(t *testing.T, url string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server did not start within %v", timeout)
}

func getFreePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
