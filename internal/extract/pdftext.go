package extract

import (
	"fmt"
	"regexp"
	"strings"

	"paperlens/internal/models"
	"paperlens/internal/util"

	"github.com/ledongthuc/pdf"
)

// ExtractPDF pulls per-page text, image counts, and caption candidates out
// of a PDF on disk. It is deliberately layout-naive: its output feeds the
// scan heuristic and the last-resort section fallback, not the primary
// structure path.
func ExtractPDF(path string) (PDFResult, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return PDFResult{}, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	out := PDFResult{Pages: make([]Page, 0, r.NumPage())}
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text := ""
		if t, err := p.GetPlainText(nil); err == nil {
			text = util.SanitizeText(t)
		}
		page := Page{
			Number:     i,
			Text:       text,
			ImageCount: countPageImages(p),
		}
		out.Pages = append(out.Pages, page)
		out.Captions = append(out.Captions, FindCaptions(text, i)...)
	}
	return out, nil
}

func countPageImages(p pdf.Page) int {
	xobjects := p.V.Key("Resources").Key("XObject")
	if xobjects.IsNull() {
		return 0
	}
	n := 0
	for _, name := range xobjects.Keys() {
		if xobjects.Key(name).Key("Subtype").Name() == "Image" {
			n++
		}
	}
	return n
}

var blankLineRe = regexp.MustCompile(`\n\s*\n+`)

// FallbackSections turns raw page text into one synthetic section per page,
// paragraphs split on blank-line runs. This is the bottom of the section
// priority chain: structurally poor but never structurally wrong.
func FallbackSections(p PDFResult) []models.PaperSection {
	sections := make([]models.PaperSection, 0, len(p.Pages))
	for _, page := range p.Pages {
		text := strings.TrimSpace(page.Text)
		if text == "" {
			continue
		}
		pageNum := page.Number
		sec := models.PaperSection{
			ID:        fmt.Sprintf("page-%03d", pageNum),
			Title:     fmt.Sprintf("Page %d", pageNum),
			Level:     1,
			PageStart: &pageNum,
			PageEnd:   &pageNum,
		}
		for idx, block := range blankLineRe.Split(text, -1) {
			block = util.CollapseWhitespace(block)
			if block == "" {
				continue
			}
			pn := pageNum
			sec.Paragraphs = append(sec.Paragraphs, models.SectionParagraph{
				ID:   fmt.Sprintf("page-%03d-par-%03d", pageNum, idx),
				Text: block,
				Page: &pn,
			})
		}
		if len(sec.Paragraphs) > 0 {
			sections = append(sections, sec)
		}
	}
	return sections
}
