package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"
)

// Document represents a document from the API.
type Document struct {
	ID        string `json:"id"`
	OwnerID   string `json:"owner_id"`
	Filename  string `json:"filename"`
	FileType  string `json:"file_type"`
	Pages     int    `json:"pages"`
	Chars     int    `json:"chars,omitempty"`
	CreatedAt string `json:"created_at"`
}

// DocumentList is one page of documents.
type DocumentList struct {
	Items   []Document `json:"items"`
	Cursor  string     `json:"cursor,omitempty"`
	HasMore bool       `json:"has_more"`
}

// Answer is the API's answer to a question.
type Answer struct {
	Question     string `json:"question"`
	Answer       string `json:"answer"`
	Sources      []int  `json:"sources"`
	SourcesLabel string `json:"sources_label"`
	Unknown      bool   `json:"unknown"`
	Unavailable  bool   `json:"unavailable"`
	Diagnostic   string `json:"diagnostic,omitempty"`
}

// UploadCmd creates the upload command.
func UploadCmd() *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload and index a pdf, docx, csv or txt file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			var progress ProgressFunc
			if !quiet && !outputJSON(cmd) {
				progress = func(current, total int64) {
					fmt.Fprintf(cmd.ErrOrStderr(), "\rUploading... %d%%", current*100/max(total, 1))
				}
			}
			resp, err := api.UploadFile(cmd.Context(), args[0], progress)
			if progress != nil {
				fmt.Fprintln(cmd.ErrOrStderr())
			}
			if err != nil {
				return fmt.Errorf("upload failed: %w", err)
			}

			var doc Document
			if err := json.Unmarshal(resp.Data, &doc); err != nil {
				return fmt.Errorf("failed to parse document: %w", err)
			}
			if outputJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), doc)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %s\n", doc.Filename)
			fmt.Fprintf(cmd.OutOrStdout(), "Document ID: %s\n", doc.ID)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not report upload progress")

	return cmd
}

// ListCmd creates the list command.
func ListCmd() *cobra.Command {
	var (
		limit  int
		cursor string
	)

	cmd := &cobra.Command{
		Use:     "list",
		Short:   "List your documents",
		Aliases: []string{"ls"},
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			list, err := listDocuments(cmd.Context(), api, limit, cursor)
			if err != nil {
				return err
			}
			if outputJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), list)
			}
			return renderDocuments(cmd.OutOrStdout(), list)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of results")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Pagination cursor from previous response")

	return cmd
}

// GetCmd creates the get command.
func GetCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "get <document_id>",
		Short:   "Show a document's metadata",
		Aliases: []string{"view"},
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDocumentCommand(cmd, "/documents/"+url.PathEscape(args[0]), false)
		},
	}
}

// ReindexCmd creates the reindex command.
func ReindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex <document_id>",
		Short: "Rebuild a document's index with the server's current settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDocumentCommand(cmd, "/documents/"+url.PathEscape(args[0])+"/reindex", true)
		},
	}
}

// DeleteCmd creates the delete command.
func DeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <document_id>",
		Short:   "Delete a document and its index",
		Aliases: []string{"rm"},
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			if _, err := api.Delete(cmd.Context(), "/documents/"+url.PathEscape(args[0])); err != nil {
				return fmt.Errorf("delete failed: %w", err)
			}
			if outputJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), map[string]any{"id": args[0], "deleted": true})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}

// AskCmd creates the ask command.
func AskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <document_id> <question>",
		Short: "Ask a question about a document",
		Long:  "Answers from the document's content only. Prints \"I don't know\" when the document does not cover the question.",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			answer, err := ask(cmd.Context(), api, args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			if outputJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), answer)
			}
			renderAnswer(cmd.OutOrStdout(), cmd.ErrOrStderr(), answer)
			return nil
		},
	}
}

func runDocumentCommand(cmd *cobra.Command, path string, post bool) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	var resp *APIResponse
	if post {
		resp, err = api.Post(cmd.Context(), path, nil)
	} else {
		resp, err = api.Get(cmd.Context(), path)
	}
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(resp.Data, &doc); err != nil {
		return fmt.Errorf("failed to parse document: %w", err)
	}
	if outputJSON(cmd) {
		return printJSON(cmd.OutOrStdout(), doc)
	}
	renderDocument(cmd.OutOrStdout(), doc)
	return nil
}

func listDocuments(ctx context.Context, api *APIClient, limit int, cursor string) (*DocumentList, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	path := "/documents"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	resp, err := api.Get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("list failed: %w", err)
	}
	var list DocumentList
	if err := json.Unmarshal(resp.Data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &list, nil
}

func ask(ctx context.Context, api *APIClient, documentID, question string) (*Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("question is required")
	}
	resp, err := api.Post(ctx, "/documents/"+url.PathEscape(documentID)+"/ask", map[string]string{"question": question})
	if err != nil {
		return nil, fmt.Errorf("ask failed: %w", err)
	}
	var answer Answer
	if err := json.Unmarshal(resp.Data, &answer); err != nil {
		return nil, fmt.Errorf("failed to parse answer: %w", err)
	}
	return &answer, nil
}

func renderDocuments(w io.Writer, list *DocumentList) error {
	if len(list.Items) == 0 {
		fmt.Fprintln(w, "No documents found.")
		return nil
	}

	table := tablewriter.NewTable(w, tablewriter.WithHeaderAutoFormat(tw.Off))
	table.Header("ID", "Filename", "Type", "Pages", "Created")
	for _, d := range list.Items {
		if err := table.Append(d.ID, d.Filename, d.FileType, strconv.Itoa(d.Pages), d.CreatedAt); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	if list.HasMore && list.Cursor != "" {
		fmt.Fprintf(w, "\nMore results available. Use --cursor %s\n", list.Cursor)
	}
	return nil
}

func renderDocument(w io.Writer, d Document) {
	fmt.Fprintf(w, "ID: %s\n", d.ID)
	fmt.Fprintf(w, "Filename: %s\n", d.Filename)
	fmt.Fprintf(w, "Type: %s\n", d.FileType)
	if d.Pages > 0 {
		fmt.Fprintf(w, "Pages: %d\n", d.Pages)
	}
	if d.Chars > 0 {
		fmt.Fprintf(w, "Characters: %d\n", d.Chars)
	}
	fmt.Fprintf(w, "Created: %s\n", d.CreatedAt)
}

func renderAnswer(w, errW io.Writer, a *Answer) {
	fmt.Fprintln(w, a.Answer)
	if a.SourcesLabel != "" {
		fmt.Fprintf(w, "\n%s\n", a.SourcesLabel)
	}
	if a.Diagnostic != "" {
		fmt.Fprintf(errW, "diagnostic: %s\n", a.Diagnostic)
	}
}

func printJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(out))
	return nil
}
