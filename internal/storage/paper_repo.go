package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"paperlens/internal/models"
)

// Paper lifecycle states. The workflow advances a paper through these and
// the API reads them back when the workflow query path is unavailable.
const (
	PaperStatusPending   = "pending"
	PaperStatusFetching  = "fetching"
	PaperStatusSelecting = "selecting"
	PaperStatusEmbedding = "embedding"
	PaperStatusReady     = "ready"
	PaperStatusFailed    = "failed"
)

var ErrPaperNotFound = errors.New("paper not found")

type PaperRepo struct {
	db *DB
}

func NewPaperRepo(db *DB) *PaperRepo {
	return &PaperRepo{db: db}
}

func (r *PaperRepo) UpsertPaper(ctx context.Context, p models.PaperRecord) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO papers (paper_id, title, abstract, authors, status, fail_reason)
VALUES ($1, NULLIF($2,''), NULLIF($3,''), $4, $5, NULLIF($6,''))
ON CONFLICT (paper_id)
DO UPDATE SET
  title = COALESCE(EXCLUDED.title, papers.title),
  abstract = COALESCE(EXCLUDED.abstract, papers.abstract),
  authors = CASE WHEN cardinality(EXCLUDED.authors) > 0 THEN EXCLUDED.authors ELSE papers.authors END,
  status = EXCLUDED.status,
  fail_reason = EXCLUDED.fail_reason,
  updated_at = NOW()`,
		p.PaperID, p.Title, p.Abstract, p.Authors, p.Status, p.FailReason,
	)
	if err != nil {
		return fmt.Errorf("upsert paper: %w", err)
	}
	return nil
}

func (r *PaperRepo) UpdatePaperStatus(ctx context.Context, paperID, status, failReason string) error {
	_, err := r.db.Pool.Exec(ctx, `
UPDATE papers SET status=$2, fail_reason=NULLIF($3,''), updated_at=NOW() WHERE paper_id=$1`,
		paperID, status, failReason)
	if err != nil {
		return fmt.Errorf("update paper status: %w", err)
	}
	return nil
}

func (r *PaperRepo) GetPaperByID(ctx context.Context, paperID string) (models.PaperRecord, error) {
	var p models.PaperRecord
	err := r.db.Pool.QueryRow(ctx, `
SELECT paper_id, COALESCE(title,''), COALESCE(abstract,''), COALESCE(authors,'{}'),
       status, COALESCE(fail_reason,''), created_at, updated_at
FROM papers
WHERE paper_id=$1`, paperID).
		Scan(&p.PaperID, &p.Title, &p.Abstract, &p.Authors, &p.Status, &p.FailReason, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.PaperRecord{}, ErrPaperNotFound
	}
	if err != nil {
		return models.PaperRecord{}, fmt.Errorf("get paper by id: %w", err)
	}
	return p, nil
}

func (r *PaperRepo) ListPapers(ctx context.Context, limit int) ([]models.PaperRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Pool.Query(ctx, `
SELECT paper_id, COALESCE(title,''), COALESCE(abstract,''), COALESCE(authors,'{}'),
       status, COALESCE(fail_reason,''), created_at, updated_at
FROM papers
ORDER BY created_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list papers: %w", err)
	}
	defer rows.Close()

	out := make([]models.PaperRecord, 0)
	for rows.Next() {
		var p models.PaperRecord
		if err := rows.Scan(&p.PaperID, &p.Title, &p.Abstract, &p.Authors, &p.Status, &p.FailReason, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan paper: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate papers: %w", err)
	}
	return out, nil
}
