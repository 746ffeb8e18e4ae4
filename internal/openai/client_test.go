package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/docqa/internal/domain"
)

// MockOpenAIAPI is a mock for the OpenAI API
type MockOpenAIAPI struct {
	mock.Mock
}

func (m *MockOpenAIAPI) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

func (m *MockOpenAIAPI) CreateChatCompletion(ctx context.Context, system, user string) (string, error) {
	args := m.Called(ctx, system, user)
	return args.String(0), args.Error(1)
}

func vec(dims int, seed float32) []float32 {
	v := make([]float32, dims)
	for i := range v {
		v[i] = seed + float32(i)*0.001
	}
	return v
}

func testClient(api *MockOpenAIAPI, batchSize int) *Client {
	return newClient(api, api, Config{EmbeddingDimensions: 4, BatchSize: batchSize})
}

func TestClient_Embed_Success(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := testClient(mockAPI, 0)

	expected := vec(4, 1)
	mockAPI.On("CreateEmbeddings", mock.Anything, []string{"hello"}).Return([][]float32{expected}, nil)

	embedding, err := client.Embed(context.Background(), "hello")

	require.NoError(t, err)
	assert.Equal(t, expected, embedding)
	mockAPI.AssertExpectations(t)
}

func TestClient_Embed_EmptyText(t *testing.T) {
	client := testClient(new(MockOpenAIAPI), 0)

	embedding, err := client.Embed(context.Background(), "")

	assert.Nil(t, embedding)
	var se *domain.ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, domain.ServiceErrorInvalidInput, se.Kind)
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestClient_EmbedBatch_BatchesAndDedups(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := testClient(mockAPI, 2)

	a, b, c := vec(4, 1), vec(4, 2), vec(4, 3)
	mockAPI.On("CreateEmbeddings", mock.Anything, []string{"a", "b"}).Return([][]float32{a, b}, nil).Once()
	mockAPI.On("CreateEmbeddings", mock.Anything, []string{"c"}).Return([][]float32{c}, nil).Once()

	got, err := client.EmbedBatch(context.Background(), []string{"a", "b", "a", "c", "b"})

	require.NoError(t, err)
	assert.Equal(t, [][]float32{a, b, a, c, b}, got)
	mockAPI.AssertExpectations(t)
}

func TestClient_EmbedBatch_Empty(t *testing.T) {
	client := testClient(new(MockOpenAIAPI), 0)

	got, err := client.EmbedBatch(context.Background(), nil)

	assert.NoError(t, err)
	assert.Empty(t, got)
}

func TestClient_EmbedBatch_WrongDimensions(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := testClient(mockAPI, 0)

	mockAPI.On("CreateEmbeddings", mock.Anything, []string{"x"}).Return([][]float32{vec(3, 1)}, nil)

	_, err := client.EmbedBatch(context.Background(), []string{"x"})

	var se *domain.ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, domain.ServiceErrorMalformedResponse, se.Kind)
	assert.ErrorIs(t, err, ErrWrongDimensions)
}

func TestClient_EmbedBatch_CountMismatch(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := testClient(mockAPI, 0)

	mockAPI.On("CreateEmbeddings", mock.Anything, []string{"x", "y"}).Return([][]float32{vec(4, 1)}, nil)

	_, err := client.EmbedBatch(context.Background(), []string{"x", "y"})

	var se *domain.ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, domain.ServiceErrorMalformedResponse, se.Kind)
}

func TestClient_EmbedBatch_OutOfSequenceNotRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"m","data":[
			{"object":"embedding","index":0,"embedding":[0.1,0.2,0.3,0.4]},
			{"object":"embedding","index":2,"embedding":[0.5,0.6,0.7,0.8]}]}`))
	}))
	defer srv.Close()

	client := NewClientWithConfig(Config{APIKey: "test", BaseURL: srv.URL + "/v1", EmbeddingDimensions: 4})

	_, err := client.EmbedBatch(context.Background(), []string{"x", "y"})

	var se *domain.ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, domain.ServiceErrorMalformedResponse, se.Kind)
	assert.False(t, se.Retryable())
	assert.ErrorIs(t, err, ErrOutOfSequence)
}

func TestClient_EmbedBatch_APIErrorClassified(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind domain.ServiceErrorKind
	}{
		{"unauthorized", &openai.APIError{HTTPStatusCode: http.StatusUnauthorized}, domain.ServiceErrorAuth},
		{"rate limited", &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests}, domain.ServiceErrorRateLimit},
		{"bad request", &openai.APIError{HTTPStatusCode: http.StatusBadRequest}, domain.ServiceErrorInvalidInput},
		{"server error", &openai.RequestError{HTTPStatusCode: http.StatusBadGateway, Err: errors.New("bad gateway")}, domain.ServiceErrorUnavailable},
		{"deadline", fmt.Errorf("post: %w", context.DeadlineExceeded), domain.ServiceErrorTimeout},
		{"unknown", errors.New("connection reset"), domain.ServiceErrorUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockAPI := new(MockOpenAIAPI)
			client := testClient(mockAPI, 0)
			mockAPI.On("CreateEmbeddings", mock.Anything, []string{"x"}).Return(nil, tt.err)

			_, err := client.EmbedBatch(context.Background(), []string{"x"})

			var se *domain.ServiceError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.kind, se.Kind)
			assert.Equal(t, "embedding", se.Service)
		})
	}
}

func TestClient_Generate(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := testClient(mockAPI, 0)

	mockAPI.On("CreateChatCompletion", mock.Anything, "system", "question").Return("The sky is blue.", nil)

	answer, err := client.Generate(context.Background(), "system", "question")

	require.NoError(t, err)
	assert.Equal(t, "The sky is blue.", answer)
	mockAPI.AssertExpectations(t)
}

func TestClient_Generate_EmptyCompletion(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := testClient(mockAPI, 0)

	mockAPI.On("CreateChatCompletion", mock.Anything, "", "q").Return("", ErrEmptyCompletion)

	_, err := client.Generate(context.Background(), "", "q")

	var se *domain.ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "generation", se.Service)
	assert.Equal(t, domain.ServiceErrorMalformedResponse, se.Kind)
}

func TestNewClient(t *testing.T) {
	client := NewClient("test-api-key")

	assert.NotNil(t, client)
	assert.NotNil(t, client.embeddings)
	assert.NotNil(t, client.chat)
	assert.Equal(t, DefaultEmbeddingDimensions, client.Dimensions())
	assert.Equal(t, string(DefaultEmbeddingModel), client.Model())
}
