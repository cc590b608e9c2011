package activities

import (
	"paperlens/internal/extract"
	"paperlens/internal/ingest"
	"paperlens/internal/models"
)

// Fetch and extract activities report failure as Available=false with a
// reason instead of an error: the priority chain consumes absence as a
// value. Only the OCR activity returns transport failures as errors, so the
// workflow can observe and downgrade them explicitly.

type FetchMetadataInput struct {
	PaperID string `json:"paper_id"`
}

type FetchMetadataOutput struct {
	Available bool                 `json:"available"`
	Reason    string               `json:"reason,omitempty"`
	Metadata  models.PaperMetadata `json:"metadata"`
}

type FetchHTMLInput struct {
	PaperID string `json:"paper_id"`
}

type FetchHTMLOutput struct {
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
	HTML      string `json:"html,omitempty"`
}

type FetchDocumentInput struct {
	PaperID string `json:"paper_id"`
	// DocumentURL may be empty; the activity falls back to the canonical
	// PDF URL derived from the paper id.
	DocumentURL string `json:"document_url,omitempty"`
}

type FetchDocumentOutput struct {
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
	Path      string `json:"path,omitempty"`
	SHA256    string `json:"sha256,omitempty"`
}

type ExtractStructureInput struct {
	PDFPath string `json:"pdf_path"`
}

type ExtractStructureOutput struct {
	Available bool           `json:"available"`
	Reason    string         `json:"reason,omitempty"`
	Result    extract.Result `json:"result"`
}

type ExtractHTMLInput struct {
	HTML string `json:"html"`
}

type ExtractHTMLOutput struct {
	Available bool           `json:"available"`
	Reason    string         `json:"reason,omitempty"`
	Result    extract.Result `json:"result"`
}

type ExtractPDFTextInput struct {
	PDFPath string `json:"pdf_path"`
}

type ExtractPDFTextOutput struct {
	Available bool              `json:"available"`
	Reason    string            `json:"reason,omitempty"`
	Result    extract.PDFResult `json:"result"`
}

type EvaluateScanInput struct {
	Pages    []extract.Page `json:"pages"`
	RawEmpty bool           `json:"raw_empty"`
	ForceOCR bool           `json:"force_ocr"`
}

type EvaluateScanOutput struct {
	Decision      extract.ScanDecision `json:"decision"`
	AttemptOCR    bool                 `json:"attempt_ocr"`
	OCRConfigured bool                 `json:"ocr_configured"`
}

type RunOCRInput struct {
	PDFPath string `json:"pdf_path"`
}

type RunOCROutput struct {
	Result extract.PDFResult `json:"result"`
}

type SelectAndResolveInput struct {
	PaperID string           `json:"paper_id"`
	Sources ingest.SourceSet `json:"sources"`
}

type SelectAndResolveOutput struct {
	Bundle          ingest.Bundle `json:"bundle"`
	SectionSource   ingest.Source `json:"section_source"`
	FigureSource    ingest.Source `json:"figure_source"`
	ReferenceSource ingest.Source `json:"reference_source"`
}

type EmbedChunksInput struct {
	Operation     string   `json:"operation"`
	PaperID       string   `json:"paper_id"`
	ChunkIDs      []string `json:"chunk_ids"`
	Texts         []string `json:"texts"`
	ProviderIndex int      `json:"provider_index"`
}

type EmbedChunksOutput struct {
	Vectors      [][]float32 `json:"vectors"`
	ProviderName string      `json:"provider_name"`
	Model        string      `json:"model"`
}

type UpsertPaperBundleInput struct {
	PaperID  string               `json:"paper_id"`
	Metadata models.PaperMetadata `json:"metadata"`
	Bundle   ingest.Bundle        `json:"bundle"`
	// Vectors align 1:1 with Bundle.Chunks; empty means upsert without
	// embeddings (they are backfilled by a later step).
	Vectors [][]float32 `json:"vectors,omitempty"`
}

type UpsertPaperBundleOutput struct {
	ChunkCount     int `json:"chunk_count"`
	FigureCount    int `json:"figure_count"`
	ReferenceCount int `json:"reference_count"`
}

type UpdatePaperStatusInput struct {
	PaperID    string               `json:"paper_id"`
	Status     string               `json:"status"`
	FailReason string               `json:"fail_reason,omitempty"`
	Metadata   models.PaperMetadata `json:"metadata,omitempty"`
}

type WriteIngestManifestInput struct {
	PaperID  string         `json:"paper_id"`
	Manifest map[string]any `json:"manifest"`
}

type WriteIngestManifestOutput struct {
	Path string `json:"path"`
}

type LogGenerationInput struct {
	Operation    string `json:"operation"`
	PaperID      string `json:"paper_id"`
	ProviderName string `json:"provider_name"`
	Model        string `json:"model"`
	RequestID    string `json:"request_id"`
	Status       string `json:"status"`
	ErrorType    string `json:"error_type,omitempty"`
}
