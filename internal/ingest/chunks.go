package ingest

import (
	"sort"

	"paperlens/internal/models"
)

// Bundle is everything ingestion persists for one paper: the chunks plus
// figure/reference records already carrying their reverse chunk indices.
type Bundle struct {
	Chunks     []models.PaperChunk
	Figures    []models.PaperFigure
	References []models.PaperReference
}

// BuildChunks flattens the selection into one chunk per paragraph. Chunk IDs
// default to the paragraph ID, which makes re-ingestion of identical source
// payloads produce identical chunk sets. While flattening it builds the
// citation->chunks and figure->chunks reverse indices and attaches them onto
// the figure/reference records, dropping any mention that does not resolve
// to a known record.
func BuildChunks(paperID string, sel Selection) (Bundle, error) {
	knownFigures := map[string]int{}
	for i, f := range sel.Figures {
		knownFigures[f.ID] = i
	}
	knownRefs := map[string]int{}
	for i, r := range sel.References {
		knownRefs[r.ID] = i
	}

	figChunks := map[string][]string{}
	refChunks := map[string][]string{}
	seenChunkIDs := map[string]struct{}{}

	var chunks []models.PaperChunk
	for _, sec := range sel.Sections {
		for _, par := range sec.Paragraphs {
			if par.Text == "" {
				continue
			}
			chunkID := par.ID
			if _, dup := seenChunkIDs[chunkID]; dup {
				continue
			}
			seenChunkIDs[chunkID] = struct{}{}

			chunk := models.PaperChunk{
				PaperID:      paperID,
				ChunkID:      chunkID,
				Text:         par.Text,
				SectionTitle: sec.Title,
				Page:         par.Page,
			}
			for _, cid := range par.Citations {
				if _, ok := knownRefs[cid]; !ok {
					continue
				}
				chunk.Citations = append(chunk.Citations, cid)
				refChunks[cid] = append(refChunks[cid], chunkID)
			}
			for _, fid := range par.FigureIDs {
				if _, ok := knownFigures[fid]; !ok {
					continue
				}
				chunk.FigureIDs = append(chunk.FigureIDs, fid)
				figChunks[fid] = append(figChunks[fid], chunkID)
			}
			chunks = append(chunks, chunk)
		}
	}
	if len(chunks) == 0 {
		return Bundle{}, NewIngestionError(paperID, "chunks", "no chunks could be built from selected sections")
	}

	figures := make([]models.PaperFigure, len(sel.Figures))
	copy(figures, sel.Figures)
	for i := range figures {
		figures[i].ChunkIDs = sortedUnique(figChunks[figures[i].ID])
	}
	references := make([]models.PaperReference, len(sel.References))
	copy(references, sel.References)
	for i := range references {
		references[i].ChunkIDs = sortedUnique(refChunks[references[i].ID])
	}

	return Bundle{Chunks: chunks, Figures: figures, References: references}, nil
}

func sortedUnique(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := map[string]struct{}{}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
