package evidence

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"paperlens/internal/models"
	"paperlens/internal/retrieval"
)

type Searcher interface {
	Search(ctx context.Context, paperID, queryText string, queryVec []float32, topK int, alpha float64, pageWindow int) (retrieval.Result, error)
}

type FigureStore interface {
	ListFiguresByPaper(ctx context.Context, paperID string) ([]models.PaperFigure, error)
}

type ReferenceStore interface {
	ListReferencesByIDs(ctx context.Context, paperID string, citationIDs []string) ([]models.PaperReference, error)
}

// ExternalMetadataFetcher resolves an arXiv identifier to that paper's own
// metadata. Absence is a valid outcome (nil, nil).
type ExternalMetadataFetcher interface {
	Fetch(ctx context.Context, paperID string) (*models.PaperMetadata, error)
}

// Bundle is everything the generation step gets to ground one request.
type Bundle struct {
	PaperID          string                    `json:"paper_id"`
	Question         string                    `json:"question,omitempty"`
	Chunks           []models.EvidenceChunk    `json:"chunks"`
	Figures          []models.EvidenceFigure   `json:"figures,omitempty"`
	Citations        []models.EvidenceCitation `json:"citations,omitempty"`
	NoDirectEvidence bool                      `json:"no_direct_evidence,omitempty"`
}

type Options struct {
	TopK       int
	Alpha      float64
	PageWindow int
	// CitationTopN bounds how many citations get the external-metadata
	// enrichment treatment, keeping prompt size predictable.
	CitationTopN int
}

// Builder assembles evidence bundles: hybrid retrieval, figure/citation
// collection from the retrieved chunks, and second-order citation
// enrichment against the external metadata feed.
type Builder struct {
	searcher Searcher
	figures  FigureStore
	refs     ReferenceStore
	external ExternalMetadataFetcher
}

func NewBuilder(searcher Searcher, figures FigureStore, refs ReferenceStore, external ExternalMetadataFetcher) *Builder {
	return &Builder{searcher: searcher, figures: figures, refs: refs, external: external}
}

// Build runs retrieval for question+selection and assembles the bundle. An
// empty hit set is not an error; the bundle says so explicitly and the
// prompt layer tells the model there is no direct evidence.
func (b *Builder) Build(ctx context.Context, paperID, question, selection string, queryVec []float32, opts Options) (Bundle, error) {
	queryText := question
	if s := strings.TrimSpace(selection); s != "" {
		queryText = strings.TrimSpace(queryText + "\n" + s)
	}

	res, err := b.searcher.Search(ctx, paperID, queryText, queryVec, opts.TopK, opts.Alpha, opts.PageWindow)
	if err != nil {
		return Bundle{}, fmt.Errorf("retrieve evidence: %w", err)
	}

	bundle := Bundle{
		PaperID:  paperID,
		Question: question,
		Chunks:   res.Union(),
	}
	if len(res.Hits) == 0 {
		bundle.NoDirectEvidence = true
	}

	figMentions := map[string]int{}
	citMentions := map[string]int{}
	for _, c := range bundle.Chunks {
		for _, fid := range c.FigureIDs {
			figMentions[fid]++
		}
		for _, cid := range c.Citations {
			citMentions[cid]++
		}
	}

	bundle.Figures = b.collectFigures(ctx, paperID, figMentions)
	bundle.Citations = b.collectCitations(ctx, paperID, citMentions, opts.CitationTopN)
	return bundle, nil
}

// collectFigures fetches the paper's figures once and keeps the mentioned
// ones. A store failure degrades to a bundle without figures.
func (b *Builder) collectFigures(ctx context.Context, paperID string, mentions map[string]int) []models.EvidenceFigure {
	if len(mentions) == 0 {
		return nil
	}
	all, err := b.figures.ListFiguresByPaper(ctx, paperID)
	if err != nil {
		log.Printf("evidence: figure fetch failed for paper %s: %v", paperID, err)
		return nil
	}
	byID := make(map[string]models.PaperFigure, len(all))
	for _, f := range all {
		byID[f.ID] = f
	}
	out := make([]models.EvidenceFigure, 0, len(mentions))
	for fid, count := range mentions {
		fig, ok := byID[fid]
		if !ok {
			continue
		}
		out = append(out, models.EvidenceFigure{PaperFigure: fig, MentionCount: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MentionCount != out[j].MentionCount {
			return out[i].MentionCount > out[j].MentionCount
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// collectCitations ranks mentioned citations by frequency, keeps the top N,
// and enriches each with the cited paper's own metadata when an arXiv
// identifier can be extracted from its fields. Lookups share a per-request
// cache so repeated citations of one external paper cost one fetch.
func (b *Builder) collectCitations(ctx context.Context, paperID string, mentions map[string]int, topN int) []models.EvidenceCitation {
	if len(mentions) == 0 {
		return nil
	}
	if topN <= 0 {
		topN = 4
	}
	type ranked struct {
		id    string
		count int
	}
	order := make([]ranked, 0, len(mentions))
	for id, count := range mentions {
		order = append(order, ranked{id: id, count: count})
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i].count != order[j].count {
			return order[i].count > order[j].count
		}
		return order[i].id < order[j].id
	})
	if len(order) > topN {
		order = order[:topN]
	}

	ids := make([]string, 0, len(order))
	for _, r := range order {
		ids = append(ids, r.id)
	}
	refs, err := b.refs.ListReferencesByIDs(ctx, paperID, ids)
	if err != nil {
		log.Printf("evidence: citation fetch failed for paper %s: %v", paperID, err)
		return nil
	}
	byID := make(map[string]models.PaperReference, len(refs))
	for _, r := range refs {
		byID[r.ID] = r
	}

	cache := map[string]*models.PaperMetadata{}
	out := make([]models.EvidenceCitation, 0, len(order))
	for _, r := range order {
		ref, ok := byID[r.id]
		if !ok {
			continue
		}
		cit := models.EvidenceCitation{PaperReference: ref, MentionCount: r.count}
		b.enrich(ctx, &cit, cache)
		out = append(out, cit)
	}
	return out
}

// enrich resolves a citation back to its own source paper. Any failure is
// EnrichmentSkipped: the citation stays in the bundle with its local fields.
func (b *Builder) enrich(ctx context.Context, cit *models.EvidenceCitation, cache map[string]*models.PaperMetadata) {
	externalID, ok := ExtractArxivIDFromAny(cit.URL, cit.DOI, cit.ID, cit.Title)
	if !ok {
		return
	}
	cit.ExternalID = externalID

	meta, cached := cache[externalID]
	if !cached {
		var err error
		meta, err = b.external.Fetch(ctx, externalID)
		if err != nil {
			log.Printf("evidence: enrichment skipped for %s: %v", externalID, err)
			meta = nil
		}
		cache[externalID] = meta
	}
	if meta == nil {
		return
	}
	cit.ResolvedTitle = meta.Title
	cit.ResolvedAbstract = meta.Abstract
	if meta.PublishedAt != nil {
		y := meta.PublishedAt.Year()
		cit.ResolvedYear = &y
	}
}
