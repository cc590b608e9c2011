package ingest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"paperlens/internal/models"
)

func TestResolveCrossReferencesMentions(t *testing.T) {
	sel := Selection{
		Sections: []models.PaperSection{{
			ID: "S1", Title: "Results",
			Paragraphs: []models.SectionParagraph{
				{ID: "p0", Text: "As Figure 2 shows, accuracy improves. Table 1 lists baselines."},
				{ID: "p1", Text: "See Fig. 2 again.", FigureIDs: []string{"S1.F2"}},
				{ID: "p2", Text: "Figure 9 does not exist."},
			},
		}},
		Figures: []models.PaperFigure{
			{ID: "S1.F2", Label: "Figure 2", Caption: "Accuracy curve."},
			{ID: "S1.T1", Label: "Table 1", Caption: "Baselines."},
		},
	}
	ResolveCrossReferences(&sel, nil)

	pars := sel.Sections[0].Paragraphs
	require.ElementsMatch(t, []string{"S1.F2", "S1.T1"}, pars[0].FigureIDs)
	// Already-linked IDs are kept, not duplicated.
	require.Equal(t, []string{"S1.F2"}, pars[1].FigureIDs)
	// Unresolvable mentions are ignored.
	require.Empty(t, pars[2].FigureIDs)
}

func TestResolveCrossReferencesLabelFromCaption(t *testing.T) {
	// The figure's own label is useless, but its caption leads with the label.
	sel := Selection{
		Sections: []models.PaperSection{{
			ID: "S1",
			Paragraphs: []models.SectionParagraph{
				{ID: "p0", Text: "Results appear in Figure 3."},
			},
		}},
		Figures: []models.PaperFigure{
			{ID: "fig_2", Label: "", Caption: "Figure 3: Loss over epochs."},
		},
	}
	ResolveCrossReferences(&sel, nil)
	require.Equal(t, []string{"fig_2"}, sel.Sections[0].Paragraphs[0].FigureIDs)
}

func TestEnrichFigurePagesByKey(t *testing.T) {
	figs := []models.PaperFigure{
		{ID: "S1.F1", Label: "Figure 1", Caption: "Architecture."},
		{ID: "S1.T1", Label: "Table 1", Caption: "Numbers.", Page: intp(7)},
	}
	caps := []models.CaptionMatch{{
		ID: "figure-1-p3", Kind: models.CaptionFigure, Label: "Figure 1",
		Number: "1", Caption: "Architecture.", Page: 3, Key: "figure:1",
	}}
	enrichFigurePages(figs, caps)

	require.Equal(t, intp(3), figs[0].Page)
	// A page already present is never overwritten.
	require.Equal(t, intp(7), figs[1].Page)
}

func TestEnrichFigurePagesByCaptionPrefix(t *testing.T) {
	// No label overlap at all; the truncated raw caption is a prefix of the
	// mirror's full caption after normalization.
	figs := []models.PaperFigure{{
		ID:      "S4.F9",
		Label:   "",
		Caption: "Comparison of runtime across all evaluated systems and configurations.",
	}}
	caps := []models.CaptionMatch{{
		ID: "figure-9-p11", Kind: models.CaptionFigure, Label: "Figure 9", Number: "9",
		Caption: "Comparison of runtime across all evaluated", Page: 11, Key: "figure:9",
	}}
	enrichFigurePages(figs, caps)
	require.Equal(t, intp(11), figs[0].Page)
}

func TestEnrichFigurePagesNoShortPrefixMatch(t *testing.T) {
	figs := []models.PaperFigure{{ID: "x", Caption: "Results."}}
	caps := []models.CaptionMatch{{ID: "figure-1-p2", Caption: "Res", Page: 2, Key: "figure:1"}}
	enrichFigurePages(figs, caps)
	require.Nil(t, figs[0].Page)
}

func TestEnrichFigurePagesBackfillsCaption(t *testing.T) {
	figs := []models.PaperFigure{{ID: "figure-4-p6", Label: "Figure 4"}}
	caps := []models.CaptionMatch{{
		ID: "figure-4-p6", Kind: models.CaptionFigure, Label: "Figure 4",
		Caption: "Recovered caption.", Page: 6, Key: "figure:4",
	}}
	enrichFigurePages(figs, caps)
	require.Equal(t, intp(6), figs[0].Page)
	require.Equal(t, "Recovered caption.", figs[0].Caption)
}
