package storage

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"paperlens/internal/models"
)

// ChunkRecord is the storable form of a chunk. EmbeddingVector is nil when
// the embedding step has not run yet; upserts never overwrite a stored
// embedding with null.
type ChunkRecord struct {
	PaperID         string
	ChunkID         string
	Text            string
	SectionTitle    string
	Page            *int
	Citations       []string
	FigureIDs       []string
	EmbeddingVector *pgvector.Vector
}

func ChunkRecordsFromBundle(chunks []models.PaperChunk) []ChunkRecord {
	out := make([]ChunkRecord, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, ChunkRecord{
			PaperID:      c.PaperID,
			ChunkID:      c.ChunkID,
			Text:         c.Text,
			SectionTitle: c.SectionTitle,
			Page:         c.Page,
			Citations:    c.Citations,
			FigureIDs:    c.FigureIDs,
		})
	}
	return out
}

type ChunkRepo struct {
	db *DB
}

func NewChunkRepo(db *DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

// UpsertChunks writes chunks transactionally. The lexical search column is
// recomputed from the text on every write so hybrid queries never see a
// stale tsvector.
func (r *ChunkRepo) UpsertChunks(ctx context.Context, chunks []ChunkRecord) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx upsert chunks: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	for _, c := range chunks {
		_, err := tx.Exec(ctx, `
INSERT INTO chunks (paper_id, chunk_id, text, section_title, page, citation_ids, figure_ids, tsv, embedding)
VALUES ($1, $2, $3, NULLIF($4,''), $5, $6, $7, to_tsvector('english', $3), $8)
ON CONFLICT (paper_id, chunk_id)
DO UPDATE SET
  text = EXCLUDED.text,
  section_title = EXCLUDED.section_title,
  page = EXCLUDED.page,
  citation_ids = EXCLUDED.citation_ids,
  figure_ids = EXCLUDED.figure_ids,
  tsv = EXCLUDED.tsv,
  embedding = COALESCE(EXCLUDED.embedding, chunks.embedding)`,
			c.PaperID, c.ChunkID, c.Text, c.SectionTitle, c.Page, c.Citations, c.FigureIDs, c.EmbeddingVector,
		)
		if err != nil {
			return fmt.Errorf("upsert chunk %s: %w", c.ChunkID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit chunks tx: %w", err)
	}
	return nil
}

func (r *ChunkRepo) ListChunksByPaper(ctx context.Context, paperID string) ([]models.PaperChunk, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT paper_id, chunk_id, text, COALESCE(section_title,''), page,
       COALESCE(citation_ids,'{}'), COALESCE(figure_ids,'{}')
FROM chunks
WHERE paper_id=$1
ORDER BY chunk_id ASC`, paperID)
	if err != nil {
		return nil, fmt.Errorf("list chunks by paper: %w", err)
	}
	defer rows.Close()
	out := make([]models.PaperChunk, 0, 64)
	for rows.Next() {
		var c models.PaperChunk
		if err := rows.Scan(&c.PaperID, &c.ChunkID, &c.Text, &c.SectionTitle, &c.Page, &c.Citations, &c.FigureIDs); err != nil {
			return nil, fmt.Errorf("scan chunk by paper: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks by paper: %w", err)
	}
	return out, nil
}
