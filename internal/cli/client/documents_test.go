package client

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCommand executes cmd against srv with credentials taken from the flags.
func runCommand(t *testing.T, srv *httptest.Server, cmd *cobra.Command, args ...string) (string, string, error) {
	t.Helper()
	useTempConfig(t)

	cmd.Flags().String("api-key", testKey, "")
	cmd.Flags().String("api-url", srv.URL, "")
	cmd.Flags().Bool("output", false, "")

	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestAskCmd_PrintsAnswerAndSources(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/documents/doc-1/ask", r.URL.Path)
		var req map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "What color is the sky?", req["question"])
		_, _ = w.Write([]byte(`{"data":{"answer":"Blue.","sources":[1,3],"sources_label":"page no: 1, 3"}}`))
	}))
	defer srv.Close()

	out, _, err := runCommand(t, srv, AskCmd(), "doc-1", "What", "color", "is", "the", "sky?")

	require.NoError(t, err)
	assert.Equal(t, "Blue.\n\npage no: 1, 3\n", out)
}

func TestAskCmd_UnavailableShowsDiagnostic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"answer":"The answer is unavailable right now.","sources":[],"sources_label":"","unavailable":true,"diagnostic":"index not found"}}`))
	}))
	defer srv.Close()

	out, errOut, err := runCommand(t, srv, AskCmd(), "doc-1", "anything?")

	require.NoError(t, err)
	assert.Contains(t, out, "unavailable")
	assert.Contains(t, errOut, "index not found")
}

func TestAskCmd_RequiresQuestion(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, _, err := runCommand(t, srv, AskCmd(), "doc-1")
	assert.Error(t, err)
}

func TestListCmd_RendersTable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"data":{"items":[{"id":"doc-1","filename":"report.pdf","file_type":"pdf","pages":3,"created_at":"2026-01-02T03:04:05Z"}],"cursor":"abc","has_more":true}}`))
	}))
	defer srv.Close()

	out, _, err := runCommand(t, srv, ListCmd(), "--limit", "5")

	require.NoError(t, err)
	assert.Contains(t, out, "doc-1")
	assert.Contains(t, out, "report.pdf")
	assert.Contains(t, out, "Filename")
	assert.Contains(t, out, "--cursor abc")
}

func TestListCmd_Empty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"items":[],"has_more":false}}`))
	}))
	defer srv.Close()

	out, _, err := runCommand(t, srv, ListCmd())

	require.NoError(t, err)
	assert.Equal(t, "No documents found.\n", out)
}

func TestGetCmd_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"document not found","code":"NOT_FOUND"}`))
	}))
	defer srv.Close()

	_, _, err := runCommand(t, srv, GetCmd(), "missing")

	assert.ErrorContains(t, err, "document not found")
}

func TestReindexCmd_Posts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/documents/doc-1/reindex", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":{"id":"doc-1","filename":"a.txt","file_type":"txt"}}`))
	}))
	defer srv.Close()

	out, _, err := runCommand(t, srv, ReindexCmd(), "doc-1")

	require.NoError(t, err)
	assert.Contains(t, out, "ID: doc-1")
}

func TestDeleteCmd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	out, _, err := runCommand(t, srv, DeleteCmd(), "doc-1")

	require.NoError(t, err)
	assert.Equal(t, "Deleted doc-1\n", out)
}
