package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/cloo-solutions/docqa/internal/pagination"
)

const documentColumns = `id, owner_id, filename, file_type, content, pages, created_at`

type DocumentRepository struct {
	db dbtx
}

func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{db: pool}
}

func NewDocumentRepositoryWithTx(tx pgx.Tx) *DocumentRepository {
	return &DocumentRepository{db: tx}
}

func (r *DocumentRepository) Create(ctx context.Context, d *domain.Document) error {
	pages, err := json.Marshal(pagesOrEmpty(d.Pages))
	if err != nil {
		return fmt.Errorf("failed to encode pages: %w", err)
	}
	_, err = r.db.Exec(ctx,
		`INSERT INTO documents (`+documentColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		d.ID, d.OwnerID, d.Filename, d.FileType, d.Content, pages, d.CreatedAt,
	)
	return err
}

// GetByID returns ErrDocumentNotFound for ids that are not UUIDs, since no such
// row can exist.
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	if !isUUID(id) {
		return nil, domain.ErrDocumentNotFound
	}
	row := r.db.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`,
		id,
	)
	d, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, err
	}
	return d, nil
}

// ListByOwnerWithCursor returns the owner's documents, newest first. Content is
// left out of list results.
func (r *DocumentRepository) ListByOwnerWithCursor(ctx context.Context, ownerID string, cursor *pagination.Cursor, limit int) (*pagination.PageResult[*domain.Document], error) {
	limit = pagination.ClampLimit(limit)

	var rows pgx.Rows
	var err error

	if cursor != nil && !isUUID(cursor.LastID) {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "invalid cursor")
	}

	if cursor != nil {
		rows, err = r.db.Query(ctx,
			`SELECT id, owner_id, filename, file_type, '', pages, created_at
			 FROM documents
			 WHERE owner_id = $1 AND (created_at, id) < ($2, $3)
			 ORDER BY created_at DESC, id DESC
			 LIMIT $4`,
			ownerID, cursor.Timestamp, cursor.LastID, limit+1,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT id, owner_id, filename, file_type, '', pages, created_at
			 FROM documents
			 WHERE owner_id = $1
			 ORDER BY created_at DESC, id DESC
			 LIMIT $2`,
			ownerID, limit+1,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*domain.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	page := pagination.Trim(items, limit, func(d *domain.Document) (string, time.Time) {
		return d.ID, d.CreatedAt
	})
	return &page, nil
}

func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	if !isUUID(id) {
		return domain.ErrDocumentNotFound
	}
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func scanDocument(row pgx.Row) (*domain.Document, error) {
	var d domain.Document
	var pages []byte
	if err := row.Scan(&d.ID, &d.OwnerID, &d.Filename, &d.FileType, &d.Content, &pages, &d.CreatedAt); err != nil {
		return nil, err
	}
	if len(pages) > 0 {
		if err := json.Unmarshal(pages, &d.Pages); err != nil {
			return nil, fmt.Errorf("failed to decode pages for document %s: %w", d.ID, err)
		}
	}
	return &d, nil
}

func pagesOrEmpty(pages []domain.PageSpan) []domain.PageSpan {
	if pages == nil {
		return []domain.PageSpan{}
	}
	return pages
}
