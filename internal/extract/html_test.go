package extract

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const mirrorDoc = `<html><body>
<section id="S1">
  <h2>Introduction</h2>
  <p>Transformers changed everything <a href="#bib.bb1">[1]</a>.</p>
  <p>As shown in <a href="#S1.F1">Figure 1</a>, attention dominates.</p>
</section>
<section id="S2">
  <h2>Method</h2>
  <p>We stack layers.</p>
  <section id="S2.SS1">
    <h3>Attention</h3>
    <p>Scaled dot product <a href="#bib.bb2">[2]</a><a href="#bib.bb2">[2]</a>.</p>
  </section>
</section>
<figure id="S1.F1">
  <img src="x1.png"/>
  <figcaption>Figure 1: The model architecture.</figcaption>
</figure>
<figure id="S3.T1" class="ltx_table">
  <figcaption>Table 1: Results.</figcaption>
</figure>
</body></html>`

func TestExtractHTMLSections(t *testing.T) {
	res, err := ExtractHTML(mirrorDoc)
	require.NoError(t, err)
	require.Len(t, res.Sections, 3)

	intro := res.Sections[0]
	require.Equal(t, "S1", intro.ID)
	require.Equal(t, "Introduction", intro.Title)
	require.Equal(t, 1, intro.Level)
	require.Len(t, intro.Paragraphs, 2)
	require.Equal(t, "S1-par-000", intro.Paragraphs[0].ID)
	require.Equal(t, []string{"bb1"}, intro.Paragraphs[0].Citations)
	require.Equal(t, []string{"S1.F1"}, intro.Paragraphs[1].FigureIDs)

	sub := res.Sections[2]
	require.Equal(t, "S2.SS1", sub.ID)
	require.Equal(t, 2, sub.Level)
	require.Len(t, sub.Paragraphs, 1)
	// Duplicate anchors collapse to one citation mention.
	require.Equal(t, []string{"bb2"}, sub.Paragraphs[0].Citations)
}

func TestExtractHTMLFigures(t *testing.T) {
	res, err := ExtractHTML(mirrorDoc)
	require.NoError(t, err)
	require.Len(t, res.Figures, 2)

	fig := res.Figures[0]
	require.Equal(t, "S1.F1", fig.ID)
	require.Equal(t, "Figure 1", fig.Label)
	require.Equal(t, "Figure 1: The model architecture.", fig.Caption)
	require.Equal(t, "x1.png", fig.ImageURL)
	require.Nil(t, fig.Page, "mirror carries no page numbers")

	tbl := res.Figures[1]
	require.Equal(t, "S3.T1", tbl.ID)
	require.Equal(t, "Table 1", tbl.Label)
}

func TestExtractHTMLEmpty(t *testing.T) {
	res, err := ExtractHTML("   ")
	require.NoError(t, err)
	require.True(t, res.Empty())
}
