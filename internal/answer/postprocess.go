package answer

import (
	"encoding/json"
	"fmt"
	"strings"

	"paperlens/internal/evidence"
)

// SchemaViolationError means the model reply failed to parse or validate.
// Fatal for the request; never retried automatically and never returned to
// the caller as partial content.
type SchemaViolationError struct {
	Operation string
	Cause     error
}

func (e *SchemaViolationError) Error() string {
	return fmt.Sprintf("generation reply for %s violates expected schema: %v", e.Operation, e.Cause)
}

func (e *SchemaViolationError) Unwrap() error {
	return e.Cause
}

type Citation struct {
	ChunkID string `json:"chunk_id"`
	Page    *int   `json:"page,omitempty"`
	Quote   string `json:"quote,omitempty"`
}

type AnswerResult struct {
	Answer           string     `json:"answer"`
	NoDirectEvidence bool       `json:"no_direct_evidence"`
	Citations        []Citation `json:"citations"`
}

type SummarySection struct {
	Heading   string     `json:"heading"`
	Text      string     `json:"text"`
	Citations []Citation `json:"citations,omitempty"`
}

type SummaryResult struct {
	Summary  string           `json:"summary"`
	Sections []SummarySection `json:"sections"`
}

// ParseAnswer validates and reshapes a model reply into the page-anchored
// answer structure. Citations naming chunks outside the evidence bundle are
// dropped; pages missing from the reply are backfilled from the bundle.
func ParseAnswer(raw string, bundle evidence.Bundle) (AnswerResult, error) {
	cleaned := stripCodeFence(raw)
	if err := validateAgainst(answerSchema, []byte(cleaned)); err != nil {
		return AnswerResult{}, &SchemaViolationError{Operation: "answer", Cause: err}
	}
	var out AnswerResult
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		return AnswerResult{}, &SchemaViolationError{Operation: "answer", Cause: err}
	}
	out.Citations = anchorCitations(out.Citations, bundle)
	return out, nil
}

// ParseSummary is the summary-shaped counterpart of ParseAnswer.
func ParseSummary(raw string, bundle evidence.Bundle) (SummaryResult, error) {
	cleaned := stripCodeFence(raw)
	if err := validateAgainst(summarySchema, []byte(cleaned)); err != nil {
		return SummaryResult{}, &SchemaViolationError{Operation: "summarize", Cause: err}
	}
	var out SummaryResult
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		return SummaryResult{}, &SchemaViolationError{Operation: "summarize", Cause: err}
	}
	for i := range out.Sections {
		out.Sections[i].Citations = anchorCitations(out.Sections[i].Citations, bundle)
	}
	return out, nil
}

// anchorCitations keeps only citations whose chunk exists in the bundle and
// fills in the page number the chunk is stored with. The model cannot mint
// evidence this way.
func anchorCitations(cits []Citation, bundle evidence.Bundle) []Citation {
	if len(cits) == 0 {
		return cits
	}
	pages := make(map[string]*int, len(bundle.Chunks))
	for _, c := range bundle.Chunks {
		pages[c.ChunkID] = c.Page
	}
	out := make([]Citation, 0, len(cits))
	for _, cit := range cits {
		page, ok := pages[cit.ChunkID]
		if !ok {
			continue
		}
		cit.Page = page
		out = append(out, cit)
	}
	return out
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}
