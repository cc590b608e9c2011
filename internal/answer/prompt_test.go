package answer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"paperlens/internal/evidence"
	"paperlens/internal/models"
)

func TestBuildAnswerPrompt(t *testing.T) {
	bundle := evidence.Bundle{
		PaperID: "p1",
		Chunks: []models.EvidenceChunk{
			{PaperChunk: models.PaperChunk{ChunkID: "c1", Text: "Attention scales.", SectionTitle: "Method", Page: intp(4)}},
			{PaperChunk: models.PaperChunk{ChunkID: "c2", Text: "Neighbor text."}, FromWindow: true},
		},
		Figures: []models.EvidenceFigure{{
			PaperFigure:  models.PaperFigure{ID: "f1", Label: "Figure 1", Caption: "Heads.", Page: intp(5)},
			MentionCount: 2,
		}},
		Citations: []models.EvidenceCitation{{
			PaperReference:   models.PaperReference{ID: "b0", Title: "Old title"},
			ResolvedTitle:    "Resolved title",
			ResolvedAbstract: "Resolved abstract.",
		}},
	}

	system, user, ctx := BuildAnswerPrompt(bundle, "how does it scale?", PersonaOptions{Audience: "undergraduates"})
	require.Contains(t, system, "only the evidence provided")
	require.Contains(t, system, "undergraduates")
	require.Contains(t, user, "how does it scale?")
	require.Contains(t, user, "p1")

	require.Len(t, ctx, 4)
	require.Contains(t, ctx[0], "[chunk c1 | page 4 | Method]")
	require.Contains(t, ctx[1], "(page context)")
	require.Contains(t, ctx[2], "[figure f1 | page 5]")
	require.Contains(t, ctx[3], "Resolved title")
	require.Contains(t, ctx[3], "Resolved abstract.")
	require.False(t, strings.Contains(ctx[3], "Old title"))
}

func TestBuildAnswerPromptNoDirectEvidence(t *testing.T) {
	bundle := evidence.Bundle{PaperID: "p1", NoDirectEvidence: true}
	_, user, ctx := BuildAnswerPrompt(bundle, "q", PersonaOptions{})
	require.Contains(t, user, "no chunk directly matching")
	require.Empty(t, ctx)
}

func TestBuildSummaryPrompt(t *testing.T) {
	bundle := evidence.Bundle{
		PaperID: "p2",
		Chunks:  []models.EvidenceChunk{{PaperChunk: models.PaperChunk{ChunkID: "c1", Text: "Body."}}},
	}
	system, user, ctx := BuildSummaryPrompt(bundle, PersonaOptions{Detail: "brief"})
	require.Contains(t, system, "summarize")
	require.Contains(t, system, "brief")
	require.Contains(t, user, "p2")
	require.Len(t, ctx, 1)
}
