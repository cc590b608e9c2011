package models

import "time"

// PaperMetadata is the canonical identity of a paper, fetched once per
// ingestion run from the metadata feed and immutable afterward.
type PaperMetadata struct {
	PaperID     string     `json:"paper_id"`
	Title       string     `json:"title,omitempty"`
	Abstract    string     `json:"abstract,omitempty"`
	Authors     []string   `json:"authors,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
	DocumentURL string     `json:"document_url,omitempty"`
}

// PaperSection is a titled region of the paper. Paragraphs preserve document
// order; page numbers, where present, are non-decreasing within a section.
type PaperSection struct {
	ID         string             `json:"id"`
	Title      string             `json:"title"`
	Level      int                `json:"level"`
	Paragraphs []SectionParagraph `json:"paragraphs"`
	PageStart  *int               `json:"page_start,omitempty"`
	PageEnd    *int               `json:"page_end,omitempty"`
}

// SectionParagraph is the smallest unit of prose carrying provenance.
// Citations and FigureIDs are mentions found in the text; they are resolved
// against the merged figure/reference sets before anything is persisted.
type SectionParagraph struct {
	ID        string   `json:"id"`
	Text      string   `json:"text"`
	Citations []string `json:"citations,omitempty"`
	FigureIDs []string `json:"figure_ids,omitempty"`
	Page      *int     `json:"page,omitempty"`
}

type PaperFigure struct {
	ID       string   `json:"id"`
	Label    string   `json:"label"`
	Caption  string   `json:"caption,omitempty"`
	Page     *int     `json:"page,omitempty"`
	ImageURL string   `json:"image_url,omitempty"`
	ChunkIDs []string `json:"chunk_ids,omitempty"`
}

type PaperReference struct {
	ID       string   `json:"id"`
	Title    string   `json:"title,omitempty"`
	Authors  []string `json:"authors,omitempty"`
	Year     *int     `json:"year,omitempty"`
	Venue    string   `json:"venue,omitempty"`
	DOI      string   `json:"doi,omitempty"`
	URL      string   `json:"url,omitempty"`
	ChunkIDs []string `json:"chunk_ids,omitempty"`
}

// PaperChunk is the atomic retrievable unit, derived 1:1 from a paragraph.
// ChunkID is unique within a paper and stable across re-ingestion of
// identical source payloads.
type PaperChunk struct {
	PaperID      string   `json:"paper_id"`
	ChunkID      string   `json:"chunk_id"`
	Text         string   `json:"text"`
	SectionTitle string   `json:"section_title,omitempty"`
	Page         *int     `json:"page,omitempty"`
	Citations    []string `json:"citations,omitempty"`
	FigureIDs    []string `json:"figure_ids,omitempty"`
}

type CaptionKind string

const (
	CaptionFigure CaptionKind = "figure"
	CaptionTable  CaptionKind = "table"
)

// CaptionMatch is a candidate figure/table caption found in raw page text.
// Transient: consumed during cross-reference resolution, never persisted.
type CaptionMatch struct {
	ID      string      `json:"id"`
	Kind    CaptionKind `json:"kind"`
	Label   string      `json:"label"`
	Number  string      `json:"number"`
	Caption string      `json:"caption"`
	Page    int         `json:"page"`
	Key     string      `json:"key"`
}

// PaperRecord is the stored lifecycle row for a paper.
type PaperRecord struct {
	PaperID    string    `json:"paper_id"`
	Title      string    `json:"title,omitempty"`
	Abstract   string    `json:"abstract,omitempty"`
	Authors    []string  `json:"authors,omitempty"`
	Status     string    `json:"status"`
	FailReason string    `json:"fail_reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Retrieval-time projections. Constructed per request, never persisted.

type EvidenceChunk struct {
	PaperChunk
	Score      float64 `json:"score"`
	FromWindow bool    `json:"from_window,omitempty"`
}

type EvidenceFigure struct {
	PaperFigure
	MentionCount int `json:"mention_count"`
}

type EvidenceCitation struct {
	PaperReference
	MentionCount     int    `json:"mention_count"`
	ExternalID       string `json:"external_id,omitempty"`
	ResolvedTitle    string `json:"resolved_title,omitempty"`
	ResolvedAbstract string `json:"resolved_abstract,omitempty"`
	ResolvedYear     *int   `json:"resolved_year,omitempty"`
}
