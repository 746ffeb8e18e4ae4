package admin

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"

	"github.com/cloo-solutions/docqa/internal/domain"
)

func TestPrintAnswer_Text(t *testing.T) {
	cmd := &cobra.Command{}
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)

	err := printAnswer(cmd, domain.AnswerResult{Answer: "Blue.", Sources: []int{1, 3}}, "text")

	assert.NoError(t, err)
	assert.Equal(t, "Blue.\n\npage no: 1, 3\n", out.String())
	assert.Empty(t, errOut.String())
}

func TestPrintAnswer_UnknownHasNoSources(t *testing.T) {
	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetOut(&out)

	err := printAnswer(cmd, domain.AnswerResult{Answer: "I don't know", Sources: []int{}, Unknown: true}, "text")

	assert.NoError(t, err)
	assert.Equal(t, "I don't know\n", out.String())
}

func TestPrintAnswer_UnavailableReportsDiagnostic(t *testing.T) {
	cmd := &cobra.Command{}
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)

	err := printAnswer(cmd, domain.AnswerResult{Answer: "unavailable", Unavailable: true, Diagnostic: "INDEX_NOT_FOUND"}, "text")

	assert.NoError(t, err)
	assert.Contains(t, errOut.String(), "INDEX_NOT_FOUND")
}

func TestPrintAnswer_JSON(t *testing.T) {
	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetOut(&out)

	err := printAnswer(cmd, domain.AnswerResult{Question: "q", Answer: "a", Sources: []int{2}}, "json")

	assert.NoError(t, err)
	assert.Contains(t, out.String(), `"sources": [`)
	assert.Contains(t, out.String(), `"answer": "a"`)
}
