package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/cloo-solutions/docqa/internal/index"
)

// IndexRepository stores indexes as rows: one header row per document and one
// row per chunk with its embedding in a pgvector column. It implements index.Store.
type IndexRepository struct {
	pool *pgxpool.Pool
}

func NewIndexRepository(pool *pgxpool.Pool) *IndexRepository {
	return &IndexRepository{pool: pool}
}

// Save replaces the document's index in a single transaction.
func (r *IndexRepository) Save(ctx context.Context, loc index.Location, idx *index.Index) error {
	if err := loc.Validate(); err != nil {
		return err
	}
	meta := idx.Metadata()
	meta.DocumentID = loc.DocumentID
	chunks := idx.Chunks()
	vectors := idx.Vectors()

	// The checksum covers the index as Load will rebuild it.
	canonical, err := index.Build(chunks, vectors, index.WithMetadata(meta))
	if err != nil {
		return err
	}
	encoded, err := index.Encode(canonical)
	if err != nil {
		return err
	}

	return withTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM document_indexes WHERE document_id = $1`, loc.DocumentID); err != nil {
			return fmt.Errorf("failed to clear index: %w", err)
		}

		_, err := tx.Exec(ctx,
			`INSERT INTO document_indexes
				(document_id, embedding_model, dimensions, chunk_size, chunk_overlap, chunk_count, checksum, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			loc.DocumentID, meta.EmbeddingModel, idx.Dimensions(), meta.ChunkSize, meta.ChunkOverlap,
			len(chunks), index.Checksum(encoded), time.Now().UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert index header: %w", err)
		}

		batch := &pgx.Batch{}
		for i, c := range chunks {
			batch.Queue(
				`INSERT INTO index_chunks (document_id, ordinal, position, page, content, embedding)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				loc.DocumentID, i, c.Position, c.Page, c.Text, pgvector.NewVector(vectors[i]),
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert index chunks: %w", err)
		}
		return nil
	})
}

type indexHeader struct {
	meta       index.Metadata
	dimensions int
	chunkCount int
	checksum   string
}

// Load rebuilds the index from its rows and checks it against the stored checksum.
// Header and chunks are read from one snapshot, so a concurrent Save yields
// either the old or the new index.
func (r *IndexRepository) Load(ctx context.Context, loc index.Location) (*index.Index, error) {
	if err := loc.Validate(); err != nil {
		return nil, err
	}

	var idx *index.Index
	err := withReadTx(ctx, r.pool, func(tx pgx.Tx) error {
		h, err := loadHeader(ctx, tx, loc)
		if err != nil {
			return err
		}
		idx, err = loadChunks(ctx, tx, loc, h)
		return err
	})
	if err != nil {
		return nil, err
	}
	return idx, nil
}

func loadHeader(ctx context.Context, db dbtx, loc index.Location) (indexHeader, error) {
	var h indexHeader
	err := db.QueryRow(ctx,
		`SELECT embedding_model, dimensions, chunk_size, chunk_overlap, chunk_count, checksum
		 FROM document_indexes WHERE document_id = $1`,
		loc.DocumentID,
	).Scan(&h.meta.EmbeddingModel, &h.dimensions, &h.meta.ChunkSize, &h.meta.ChunkOverlap, &h.chunkCount, &h.checksum)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return h, index.NotFound(loc, err)
		}
		return h, fmt.Errorf("failed to load index header: %w", err)
	}
	h.meta.DocumentID = loc.DocumentID
	return h, nil
}

func loadChunks(ctx context.Context, db dbtx, loc index.Location, h indexHeader) (*index.Index, error) {
	rows, err := db.Query(ctx,
		`SELECT position, page, content, embedding
		 FROM index_chunks WHERE document_id = $1
		 ORDER BY ordinal`,
		loc.DocumentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load index chunks: %w", err)
	}
	defer rows.Close()

	chunks := make([]domain.Chunk, 0, h.chunkCount)
	vectors := make([][]float32, 0, h.chunkCount)
	for rows.Next() {
		var c domain.Chunk
		var v pgvector.Vector
		if err := rows.Scan(&c.Position, &c.Page, &c.Text, &v); err != nil {
			return nil, fmt.Errorf("failed to scan index chunk: %w", err)
		}
		chunks = append(chunks, c)
		vectors = append(vectors, v.Slice())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load index chunks: %w", err)
	}

	if len(chunks) != h.chunkCount {
		return nil, corrupt(loc, fmt.Sprintf("expected %d chunks, found %d", h.chunkCount, len(chunks)), nil)
	}

	idx, err := index.Build(chunks, vectors, index.WithMetadata(h.meta))
	if err != nil {
		return nil, corrupt(loc, "rows do not form a valid index", err)
	}
	if idx.Dimensions() != h.dimensions {
		return nil, corrupt(loc, fmt.Sprintf("expected %d dimensions, found %d", h.dimensions, idx.Dimensions()), nil)
	}

	encoded, err := index.Encode(idx)
	if err != nil {
		return nil, corrupt(loc, "failed to re-encode index", err)
	}
	if index.Checksum(encoded) != h.checksum {
		return nil, corrupt(loc, "checksum mismatch", nil)
	}
	return idx, nil
}

func (r *IndexRepository) Exists(ctx context.Context, loc index.Location) (bool, error) {
	if err := loc.Validate(); err != nil {
		return false, err
	}
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM document_indexes WHERE document_id = $1)`,
		loc.DocumentID,
	).Scan(&exists)
	return exists, err
}

// Delete removes the header row; chunk rows cascade.
func (r *IndexRepository) Delete(ctx context.Context, loc index.Location) error {
	if err := loc.Validate(); err != nil {
		return err
	}
	_, err := r.pool.Exec(ctx, `DELETE FROM document_indexes WHERE document_id = $1`, loc.DocumentID)
	return err
}

func corrupt(loc index.Location, msg string, err error) error {
	return domain.NewDomainErrorWithCause(domain.ErrCodeIndexCorrupt,
		fmt.Sprintf("index for document %s: %s", loc.DocumentID, msg), err)
}
