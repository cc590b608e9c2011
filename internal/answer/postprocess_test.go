package answer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"paperlens/internal/evidence"
	"paperlens/internal/models"
)

func intp(n int) *int { return &n }

func testBundle() evidence.Bundle {
	return evidence.Bundle{
		PaperID: "p1",
		Chunks: []models.EvidenceChunk{
			{PaperChunk: models.PaperChunk{ChunkID: "c1", Text: "alpha", Page: intp(3)}},
			{PaperChunk: models.PaperChunk{ChunkID: "c2", Text: "beta"}},
		},
	}
}

func TestParseAnswerValid(t *testing.T) {
	raw := `{"answer":"It uses attention.","no_direct_evidence":false,"citations":[{"chunk_id":"c1","quote":"alpha"}]}`
	res, err := ParseAnswer(raw, testBundle())
	require.NoError(t, err)
	require.Equal(t, "It uses attention.", res.Answer)
	require.False(t, res.NoDirectEvidence)
	require.Len(t, res.Citations, 1)
	// Page is anchored from the bundle, not trusted from the reply.
	require.Equal(t, intp(3), res.Citations[0].Page)
}

func TestParseAnswerStripsCodeFence(t *testing.T) {
	raw := "```json\n{\"answer\":\"ok\",\"no_direct_evidence\":true,\"citations\":[]}\n```"
	res, err := ParseAnswer(raw, testBundle())
	require.NoError(t, err)
	require.Equal(t, "ok", res.Answer)
	require.True(t, res.NoDirectEvidence)
}

func TestParseAnswerSchemaViolation(t *testing.T) {
	for _, raw := range []string{
		`not json at all`,
		`{"answer":"missing fields"}`,
		`{"answer":"x","no_direct_evidence":false,"citations":[],"extra":true}`,
	} {
		_, err := ParseAnswer(raw, testBundle())
		require.Error(t, err, "input %q", raw)
		var sv *SchemaViolationError
		require.True(t, errors.As(err, &sv), "input %q", raw)
		require.Equal(t, "answer", sv.Operation)
	}
}

func TestParseAnswerDropsUnknownChunks(t *testing.T) {
	raw := `{"answer":"x","no_direct_evidence":false,"citations":[` +
		`{"chunk_id":"c1"},{"chunk_id":"minted-by-model","quote":"fake"}]}`
	res, err := ParseAnswer(raw, testBundle())
	require.NoError(t, err)
	require.Len(t, res.Citations, 1)
	require.Equal(t, "c1", res.Citations[0].ChunkID)
}

func TestParseSummaryValid(t *testing.T) {
	raw := `{"summary":"A transformer paper.","sections":[` +
		`{"heading":"Method","text":"Self-attention.","citations":[{"chunk_id":"c2"},{"chunk_id":"nope"}]}]}`
	res, err := ParseSummary(raw, testBundle())
	require.NoError(t, err)
	require.Equal(t, "A transformer paper.", res.Summary)
	require.Len(t, res.Sections, 1)
	require.Len(t, res.Sections[0].Citations, 1)
	require.Equal(t, "c2", res.Sections[0].Citations[0].ChunkID)
}

func TestParseSummarySchemaViolation(t *testing.T) {
	_, err := ParseSummary(`{"summary":"no sections"}`, testBundle())
	var sv *SchemaViolationError
	require.True(t, errors.As(err, &sv))
	require.Equal(t, "summarize", sv.Operation)
}

func TestMockReplyPassesAnswerSchema(t *testing.T) {
	raw := `{"answer":"Deterministic mock answer based on retrieved evidence.","no_direct_evidence":true,"citations":[]}`
	require.NoError(t, validateAgainst(answerSchema, []byte(raw)))
}
