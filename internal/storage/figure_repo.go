package storage

import (
	"context"
	"fmt"

	"paperlens/internal/models"
)

type FigureRepo struct {
	db *DB
}

func NewFigureRepo(db *DB) *FigureRepo {
	return &FigureRepo{db: db}
}

func (r *FigureRepo) UpsertFigures(ctx context.Context, paperID string, figures []models.PaperFigure) error {
	if len(figures) == 0 {
		return nil
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx upsert figures: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	for _, f := range figures {
		_, err := tx.Exec(ctx, `
INSERT INTO figures (paper_id, figure_id, label, caption, page, image_url, chunk_ids)
VALUES ($1, $2, $3, NULLIF($4,''), $5, NULLIF($6,''), $7)
ON CONFLICT (paper_id, figure_id)
DO UPDATE SET
  label = EXCLUDED.label,
  caption = COALESCE(EXCLUDED.caption, figures.caption),
  page = COALESCE(EXCLUDED.page, figures.page),
  image_url = COALESCE(EXCLUDED.image_url, figures.image_url),
  chunk_ids = EXCLUDED.chunk_ids`,
			paperID, f.ID, f.Label, f.Caption, f.Page, f.ImageURL, f.ChunkIDs,
		)
		if err != nil {
			return fmt.Errorf("upsert figure %s: %w", f.ID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit figures tx: %w", err)
	}
	return nil
}

func (r *FigureRepo) ListFiguresByPaper(ctx context.Context, paperID string) ([]models.PaperFigure, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT figure_id, label, COALESCE(caption,''), page, COALESCE(image_url,''), COALESCE(chunk_ids,'{}')
FROM figures
WHERE paper_id=$1
ORDER BY page NULLS LAST, figure_id`, paperID)
	if err != nil {
		return nil, fmt.Errorf("list figures by paper: %w", err)
	}
	defer rows.Close()
	out := make([]models.PaperFigure, 0)
	for rows.Next() {
		var f models.PaperFigure
		if err := rows.Scan(&f.ID, &f.Label, &f.Caption, &f.Page, &f.ImageURL, &f.ChunkIDs); err != nil {
			return nil, fmt.Errorf("scan figure: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate figures: %w", err)
	}
	return out, nil
}
