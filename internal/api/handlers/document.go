package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/cloo-solutions/docqa/internal/api"
	"github.com/cloo-solutions/docqa/internal/api/middleware"
	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/cloo-solutions/docqa/internal/pagination"
	"github.com/cloo-solutions/docqa/internal/service"
)

const multipartMemory = 8 << 20

type DocumentService interface {
	Upload(ctx context.Context, in service.UploadInput) (*domain.Document, error)
	Get(ctx context.Context, ownerID, id string) (*domain.Document, error)
	List(ctx context.Context, ownerID, cursor string, limit int) (*pagination.PageResult[*domain.Document], error)
	Delete(ctx context.Context, ownerID, id string) error
	Reindex(ctx context.Context, ownerID, id string) (*domain.Document, error)
	Ask(ctx context.Context, ownerID, id, question string) (domain.AnswerResult, error)
}

type DocumentHandler struct {
	svc DocumentService
}

func NewDocumentHandler(svc DocumentService) *DocumentHandler {
	return &DocumentHandler{svc: svc}
}

type DocumentResponse struct {
	ID        string `json:"id"`
	OwnerID   string `json:"owner_id"`
	Filename  string `json:"filename"`
	FileType  string `json:"file_type"`
	Pages     int    `json:"pages"`
	Chars     int    `json:"chars,omitempty"`
	CreatedAt string `json:"created_at"`
}

type ListDocumentsResponse struct {
	Items   []*DocumentResponse `json:"items"`
	Cursor  string              `json:"cursor,omitempty"`
	HasMore bool                `json:"has_more"`
}

type AskRequest struct {
	Question string `json:"question"`
}

type AnswerResponse struct {
	domain.AnswerResult
	SourcesLabel string `json:"sources_label"`
}

func documentToResponse(d *domain.Document) *DocumentResponse {
	return &DocumentResponse{
		ID:        d.ID,
		OwnerID:   d.OwnerID,
		Filename:  d.Filename,
		FileType:  string(d.FileType),
		Pages:     len(d.Pages),
		Chars:     len([]rune(d.Content)),
		CreatedAt: d.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.GetOwnerID(r.Context())
	if ownerID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeBodyError(w, err, "invalid multipart form")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		api.Error(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeBodyError(w, err, "failed to read file")
		return
	}

	doc, err := h.svc.Upload(r.Context(), service.UploadInput{
		OwnerID:  ownerID,
		Filename: header.Filename,
		Data:     data,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, documentToResponse(doc))
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.GetOwnerID(r.Context())
	if ownerID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			api.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	page, err := h.svc.List(r.Context(), ownerID, r.URL.Query().Get("cursor"), limit)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := &ListDocumentsResponse{
		Items:   make([]*DocumentResponse, len(page.Items)),
		Cursor:  page.Cursor,
		HasMore: page.HasMore,
	}
	for i, d := range page.Items {
		resp.Items[i] = documentToResponse(d)
		resp.Items[i].Chars = 0
	}
	api.Success(w, http.StatusOK, resp)
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.GetOwnerID(r.Context())
	if ownerID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	doc, err := h.svc.Get(r.Context(), ownerID, chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, documentToResponse(doc))
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.GetOwnerID(r.Context())
	if ownerID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.svc.Delete(r.Context(), ownerID, chi.URLParam(r, "id")); err != nil {
		api.HandleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *DocumentHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.GetOwnerID(r.Context())
	if ownerID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	doc, err := h.svc.Reindex(r.Context(), ownerID, chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, documentToResponse(doc))
}

// Ask answers with 200 whenever the document exists; unknown and unavailable
// answers are flagged inside the result.
func (h *DocumentHandler) Ask(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.GetOwnerID(r.Context())
	if ownerID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		api.Error(w, http.StatusBadRequest, "question is required")
		return
	}

	result, err := h.svc.Ask(r.Context(), ownerID, chi.URLParam(r, "id"), req.Question)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, AnswerResponse{AnswerResult: result, SourcesLabel: result.SourcesLabel()})
}

func writeBodyError(w http.ResponseWriter, err error, message string) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	api.Error(w, http.StatusBadRequest, message)
}
