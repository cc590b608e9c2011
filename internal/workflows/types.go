package workflows

type PaperIngestInput struct {
	PaperID         string `json:"paper_id"`
	ForceOCR        bool   `json:"force_ocr,omitempty"`
	EmbedProviders  int    `json:"embed_providers"`
	CooldownSeconds int    `json:"cooldown_seconds"`
}

// IngestProgress is served through the workflow query handler while the run
// is live; the papers table carries the coarse status after it finishes.
type IngestProgress struct {
	PaperID     string            `json:"paper_id"`
	CurrentStep string            `json:"current_step"`
	Status      string            `json:"status"`
	FailReason  string            `json:"fail_reason,omitempty"`
	Sources     map[string]string `json:"sources"`
	Steps       map[string]string `json:"steps"`
	RetryCounts map[string]int    `json:"retry_counts"`
	ChunkCount  int               `json:"chunk_count"`
}

type IngestResult struct {
	PaperID         string `json:"paper_id"`
	Status          string `json:"status"`
	FailReason      string `json:"fail_reason,omitempty"`
	SectionSource   string `json:"section_source"`
	FigureSource    string `json:"figure_source"`
	ReferenceSource string `json:"reference_source"`
	ChunkCount      int    `json:"chunk_count"`
	FigureCount     int    `json:"figure_count"`
	ReferenceCount  int    `json:"reference_count"`
	ManifestPath    string `json:"manifest_path,omitempty"`
}
