package storage

import (
	"context"
	"fmt"

	"paperlens/internal/models"
)

type ReferenceRepo struct {
	db *DB
}

func NewReferenceRepo(db *DB) *ReferenceRepo {
	return &ReferenceRepo{db: db}
}

func (r *ReferenceRepo) UpsertReferences(ctx context.Context, paperID string, refs []models.PaperReference) error {
	if len(refs) == 0 {
		return nil
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx upsert references: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	for _, ref := range refs {
		_, err := tx.Exec(ctx, `
INSERT INTO citations (paper_id, citation_id, title, authors, year, venue, doi, url, chunk_ids)
VALUES ($1, $2, NULLIF($3,''), $4, $5, NULLIF($6,''), NULLIF($7,''), NULLIF($8,''), $9)
ON CONFLICT (paper_id, citation_id)
DO UPDATE SET
  title = COALESCE(EXCLUDED.title, citations.title),
  authors = CASE WHEN cardinality(EXCLUDED.authors) > 0 THEN EXCLUDED.authors ELSE citations.authors END,
  year = COALESCE(EXCLUDED.year, citations.year),
  venue = COALESCE(EXCLUDED.venue, citations.venue),
  doi = COALESCE(EXCLUDED.doi, citations.doi),
  url = COALESCE(EXCLUDED.url, citations.url),
  chunk_ids = EXCLUDED.chunk_ids`,
			paperID, ref.ID, ref.Title, ref.Authors, ref.Year, ref.Venue, ref.DOI, ref.URL, ref.ChunkIDs,
		)
		if err != nil {
			return fmt.Errorf("upsert citation %s: %w", ref.ID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit citations tx: %w", err)
	}
	return nil
}

func (r *ReferenceRepo) ListReferencesByPaper(ctx context.Context, paperID string) ([]models.PaperReference, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT citation_id, COALESCE(title,''), COALESCE(authors,'{}'), year, COALESCE(venue,''),
       COALESCE(doi,''), COALESCE(url,''), COALESCE(chunk_ids,'{}')
FROM citations
WHERE paper_id=$1
ORDER BY citation_id`, paperID)
	if err != nil {
		return nil, fmt.Errorf("list citations by paper: %w", err)
	}
	defer rows.Close()
	out := make([]models.PaperReference, 0)
	for rows.Next() {
		var ref models.PaperReference
		if err := rows.Scan(&ref.ID, &ref.Title, &ref.Authors, &ref.Year, &ref.Venue, &ref.DOI, &ref.URL, &ref.ChunkIDs); err != nil {
			return nil, fmt.Errorf("scan citation: %w", err)
		}
		out = append(out, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate citations: %w", err)
	}
	return out, nil
}

func (r *ReferenceRepo) ListReferencesByIDs(ctx context.Context, paperID string, citationIDs []string) ([]models.PaperReference, error) {
	if len(citationIDs) == 0 {
		return []models.PaperReference{}, nil
	}
	rows, err := r.db.Pool.Query(ctx, `
SELECT citation_id, COALESCE(title,''), COALESCE(authors,'{}'), year, COALESCE(venue,''),
       COALESCE(doi,''), COALESCE(url,''), COALESCE(chunk_ids,'{}')
FROM citations
WHERE paper_id=$1 AND citation_id = ANY($2)`, paperID, citationIDs)
	if err != nil {
		return nil, fmt.Errorf("list citations by ids: %w", err)
	}
	defer rows.Close()
	out := make([]models.PaperReference, 0, len(citationIDs))
	for rows.Next() {
		var ref models.PaperReference
		if err := rows.Scan(&ref.ID, &ref.Title, &ref.Authors, &ref.Year, &ref.Venue, &ref.DOI, &ref.URL, &ref.ChunkIDs); err != nil {
			return nil, fmt.Errorf("scan citation by id: %w", err)
		}
		out = append(out, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate citations by ids: %w", err)
	}
	return out, nil
}
