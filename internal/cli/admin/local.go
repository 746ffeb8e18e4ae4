package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cloo-solutions/docqa/internal/config"
	"github.com/cloo-solutions/docqa/internal/database"
	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/cloo-solutions/docqa/internal/extract"
)

// localOwner owns documents indexed from the command line.
const localOwner = "local"

// IndexCmd returns the index command, which indexes a file without the API server
func IndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index <file>",
		Short: "Index a local pdf, docx, csv or txt file",
		Long:  "Extract, chunk and embed a file and persist its index in the configured backend. Prints the document ID to ask questions with.",
		Args:  cobra.ExactArgs(1),
		RunE:  runIndex,
	}
	cmd.Flags().String("id", "", "Document ID to index under (default: a new UUID)")
	cmd.Flags().String("output", "text", "Output format (text or json)")
	return cmd
}

// AskCmd returns the ask command, which answers a question against a persisted index
func AskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <document_id> <question>",
		Short: "Ask a question about an indexed document",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runAsk,
	}
	cmd.Flags().String("output", "text", "Output format (text or json)")
	return cmd
}

func loadLocal(ctx context.Context) (*config.Config, *pipeline, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	logger := newLogger(cfg)

	if cfg.IndexBackend != config.IndexBackendPostgres {
		store, err := openStore(ctx, cfg, nil, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		return cfg, newPipeline(cfg, store, logger), func() {}, nil
	}

	pool, err := database.NewPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns)
	if err != nil {
		return nil, nil, nil, err
	}
	store, err := openStore(ctx, cfg, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, nil, err
	}
	return cfg, newPipeline(cfg, store, logger), pool.Close, nil
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	path := args[0]
	outputFormat, _ := cmd.Flags().GetString("output")

	fileType, err := domain.ParseFileType(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	res, err := extract.Extract(data, fileType)
	if err != nil {
		return err
	}

	id, _ := cmd.Flags().GetString("id")
	if id == "" {
		id = uuid.NewString()
	}
	doc := domain.NewDocument(id, localOwner, filepath.Base(path), fileType, res.Text, res.Pages, time.Now().UTC())
	if err := domain.ValidateDocument(doc); err != nil {
		return err
	}

	_, p, closeFn, err := loadLocal(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	idx, err := p.indexer.IndexDocument(ctx, doc)
	if err != nil {
		return err
	}

	if outputFormat == "json" {
		out, _ := json.MarshalIndent(map[string]any{
			"id":       doc.ID,
			"filename": doc.Filename,
			"chunks":   idx.Len(),
		}, "", "  ")
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Indexed %s (%d chunks)\n", doc.Filename, idx.Len())
	fmt.Fprintf(cmd.OutOrStdout(), "Document ID: %s\n", doc.ID)
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	documentID := args[0]
	question := strings.Join(args[1:], " ")
	outputFormat, _ := cmd.Flags().GetString("output")

	if strings.TrimSpace(question) == "" {
		return domain.ErrEmptyQuestion
	}

	_, p, closeFn, err := loadLocal(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	result := p.qa.Ask(ctx, documentID, question)
	return printAnswer(cmd, result, outputFormat)
}

func printAnswer(cmd *cobra.Command, result domain.AnswerResult, outputFormat string) error {
	w := cmd.OutOrStdout()
	if outputFormat == "json" {
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(out))
		return nil
	}
	fmt.Fprintln(w, result.Answer)
	if label := result.SourcesLabel(); label != "" {
		fmt.Fprintf(w, "\n%s\n", label)
	}
	if result.Diagnostic != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "diagnostic: %s\n", result.Diagnostic)
	}
	return nil
}
