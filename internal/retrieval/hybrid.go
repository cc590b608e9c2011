package retrieval

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"paperlens/internal/models"
)

type Queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Retriever runs hybrid lexical+vector search over one paper's chunks and
// the page-window expansion around the hits.
type Retriever struct {
	q Queryer
}

func NewRetriever(q Queryer) *Retriever {
	return &Retriever{q: q}
}

// Result separates direct hits from window-expanded neighbors. The two sets
// are disjoint by chunk ID.
type Result struct {
	Hits           []models.EvidenceChunk
	ExpandedWindow []models.EvidenceChunk
}

// Union returns hits followed by window chunks, the order downstream
// evidence assembly consumes them in.
func (r Result) Union() []models.EvidenceChunk {
	out := make([]models.EvidenceChunk, 0, len(r.Hits)+len(r.ExpandedWindow))
	out = append(out, r.Hits...)
	out = append(out, r.ExpandedWindow...)
	return out
}

// Search issues one hybrid query scoped to the paper, blending cosine
// similarity against the query vector with lexical ts_rank. Alpha weighs
// the vector side; 0.65 biases toward semantic similarity while keeping
// exact-term matches competitive.
func (r *Retriever) Search(ctx context.Context, paperID, queryText string, queryVec []float32, topK int, alpha float64, pageWindow int) (Result, error) {
	if topK <= 0 {
		topK = 8
	}
	if alpha < 0 || alpha > 1 {
		alpha = 0.65
	}
	vec := pgvector.NewVector(queryVec)

	rows, err := r.q.Query(ctx, `
SELECT c.chunk_id,
       c.text,
       COALESCE(c.section_title,''),
       c.page,
       COALESCE(c.citation_ids,'{}'),
       COALESCE(c.figure_ids,'{}'),
       $4 * (1 - (c.embedding <=> $2::vector))
         + (1 - $4) * ts_rank_cd(c.tsv, plainto_tsquery('english', $3)) AS score
FROM chunks c
WHERE c.paper_id = $1
  AND c.embedding IS NOT NULL
ORDER BY score DESC
LIMIT $5`, paperID, vec, queryText, alpha, topK)
	if err != nil {
		return Result{}, fmt.Errorf("hybrid query: %w", err)
	}
	hits, err := scanEvidence(rows, paperID, false)
	if err != nil {
		return Result{}, err
	}

	out := Result{Hits: hits}
	if pageWindow > 0 && len(hits) > 0 {
		expanded, err := r.expandWindow(ctx, paperID, hits, pageWindow)
		if err != nil {
			return Result{}, err
		}
		out.ExpandedWindow = expanded
	}
	return out, nil
}

// expandWindow collects [page-w, page+w] around every paged hit, runs one
// range query over the union of those bounds, and drops anything already in
// the hit set.
func (r *Retriever) expandWindow(ctx context.Context, paperID string, hits []models.EvidenceChunk, window int) ([]models.EvidenceChunk, error) {
	pageSet := map[int]struct{}{}
	for _, h := range hits {
		if h.Page == nil {
			continue
		}
		for p := *h.Page - window; p <= *h.Page+window; p++ {
			if p >= 1 {
				pageSet[p] = struct{}{}
			}
		}
	}
	if len(pageSet) == 0 {
		return nil, nil
	}
	pages := make([]int, 0, len(pageSet))
	for p := range pageSet {
		pages = append(pages, p)
	}
	sort.Ints(pages)

	rows, err := r.q.Query(ctx, `
SELECT c.chunk_id,
       c.text,
       COALESCE(c.section_title,''),
       c.page,
       COALESCE(c.citation_ids,'{}'),
       COALESCE(c.figure_ids,'{}'),
       0::float8 AS score
FROM chunks c
WHERE c.paper_id = $1
  AND c.page = ANY($2)
ORDER BY c.page, c.chunk_id`, paperID, pages)
	if err != nil {
		return nil, fmt.Errorf("page range query: %w", err)
	}
	expanded, err := scanEvidence(rows, paperID, true)
	if err != nil {
		return nil, err
	}

	seen := map[string]struct{}{}
	for _, h := range hits {
		seen[h.ChunkID] = struct{}{}
	}
	out := expanded[:0]
	for _, e := range expanded {
		if _, dup := seen[e.ChunkID]; dup {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func scanEvidence(rows pgx.Rows, paperID string, fromWindow bool) ([]models.EvidenceChunk, error) {
	defer rows.Close()
	out := make([]models.EvidenceChunk, 0, 16)
	for rows.Next() {
		var e models.EvidenceChunk
		e.PaperID = paperID
		e.FromWindow = fromWindow
		if err := rows.Scan(&e.ChunkID, &e.Text, &e.SectionTitle, &e.Page, &e.Citations, &e.FigureIDs, &e.Score); err != nil {
			return nil, fmt.Errorf("scan evidence chunk: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate evidence chunks: %w", err)
	}
	return out, nil
}
