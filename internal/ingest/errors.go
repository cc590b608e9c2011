package ingest

import "fmt"

// IngestionError is one of the two fatal ingestion outcomes: no usable
// sections after selection, or zero chunks after building. Everything else
// a source can do wrong is downgraded to "source unavailable" and the
// pipeline continues.
type IngestionError struct {
	PaperID string
	Stage   string
	Reason  string
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingestion failed for paper %s at %s: %s", e.PaperID, e.Stage, e.Reason)
}

func NewIngestionError(paperID, stage, reason string) *IngestionError {
	return &IngestionError{PaperID: paperID, Stage: stage, Reason: reason}
}
