package ingest

import (
	"fmt"
	"strings"

	"paperlens/internal/extract"
	"paperlens/internal/models"
)

// Source names the extractor a content type was taken from. Recorded in the
// ingest manifest so a failed or degraded run explains itself.
type Source string

const (
	SourceStructure Source = "structure-service"
	SourceMirror    Source = "html-mirror"
	SourceRawText   Source = "raw-text"
	SourceNone      Source = "none"
)

// SourceSet holds the per-extractor outcomes the orchestrator gathered.
// Availability is an explicit value, not an error: a source that failed or
// returned nothing shows up here as Available=false and the chain moves on.
type SourceSet struct {
	Structure SourceResult[extract.Result]
	Mirror    SourceResult[extract.Result]
	RawText   SourceResult[extract.PDFResult]
	OCR       SourceResult[extract.PDFResult]
}

type SourceResult[T any] struct {
	Available bool
	Value     T
}

func Available[T any](v T) SourceResult[T] {
	return SourceResult[T]{Available: true, Value: v}
}

func Unavailable[T any]() SourceResult[T] {
	return SourceResult[T]{}
}

// Selection is the merged view of a paper, with per-content-type provenance.
type Selection struct {
	Sections   []models.PaperSection
	Figures    []models.PaperFigure
	References []models.PaperReference

	SectionSource   Source
	FigureSource    Source
	ReferenceSource Source
}

// pageText returns the best raw per-page text available, OCR preferred over
// the raw extractor when both exist (OCR only ran because raw text was poor).
func (s SourceSet) pageText() (extract.PDFResult, bool) {
	if s.OCR.Available && len(s.OCR.Value.Pages) > 0 {
		return s.OCR.Value, true
	}
	if s.RawText.Available {
		return s.RawText.Value, true
	}
	return extract.PDFResult{}, false
}

// Captions gathers every raw-text caption match across page-text sources,
// for figure page enrichment.
func (s SourceSet) Captions() []models.CaptionMatch {
	var out []models.CaptionMatch
	if s.RawText.Available {
		out = append(out, s.RawText.Value.Captions...)
	}
	if s.OCR.Available {
		out = append(out, s.OCR.Value.Captions...)
	}
	return out
}

// Select runs the priority chain per content type. Each type is taken whole
// from exactly one source; two sources are never partially merged for the
// same type. An empty section list after the full chain is fatal.
func Select(paperID string, sources SourceSet) (Selection, error) {
	sel := Selection{
		SectionSource:   SourceNone,
		FigureSource:    SourceNone,
		ReferenceSource: SourceNone,
	}

	switch {
	case sources.Structure.Available && len(sources.Structure.Value.Sections) > 0:
		sel.Sections = sources.Structure.Value.Sections
		sel.SectionSource = SourceStructure
	case sources.Mirror.Available && len(sources.Mirror.Value.Sections) > 0:
		sel.Sections = sources.Mirror.Value.Sections
		sel.SectionSource = SourceMirror
	default:
		if pages, ok := sources.pageText(); ok {
			if secs := extract.FallbackSections(pages); len(secs) > 0 {
				sel.Sections = secs
				sel.SectionSource = SourceRawText
			}
		}
	}
	if len(sel.Sections) == 0 {
		return Selection{}, NewIngestionError(paperID, "select", "no source produced any sections")
	}

	switch {
	case sources.Structure.Available && len(sources.Structure.Value.Figures) > 0:
		sel.Figures = sources.Structure.Value.Figures
		sel.FigureSource = SourceStructure
	case sources.Mirror.Available && len(sources.Mirror.Value.Figures) > 0:
		sel.Figures = sources.Mirror.Value.Figures
		sel.FigureSource = SourceMirror
	default:
		if figs := figuresFromCaptions(sources.Captions()); len(figs) > 0 {
			sel.Figures = figs
			sel.FigureSource = SourceRawText
		}
	}

	// Only the structure service exposes a bibliography.
	if sources.Structure.Available && len(sources.Structure.Value.References) > 0 {
		sel.References = sources.Structure.Value.References
		sel.ReferenceSource = SourceStructure
	}

	return sel, nil
}

// figuresFromCaptions flattens raw-text caption matches (figures and tables
// alike) into figure records, de-duplicating on the normalized label key so
// a caption repeated across pages yields one record anchored to its first
// occurrence.
func figuresFromCaptions(captions []models.CaptionMatch) []models.PaperFigure {
	seen := map[string]struct{}{}
	var out []models.PaperFigure
	for _, c := range captions {
		if c.Key == "" {
			continue
		}
		if _, dup := seen[c.Key]; dup {
			continue
		}
		seen[c.Key] = struct{}{}
		page := c.Page
		out = append(out, models.PaperFigure{
			ID:      fmt.Sprintf("cap-%s", strings.ReplaceAll(c.Key, ":", "-")),
			Label:   c.Label,
			Caption: c.Caption,
			Page:    &page,
		})
	}
	return out
}
