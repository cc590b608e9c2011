package extract

import "paperlens/internal/models"

// Result is the common shape all structure extractors produce. A nil/empty
// field means the source did not provide that content type, which the
// selector treats as "absent", not as an error.
type Result struct {
	Sections   []models.PaperSection   `json:"sections,omitempty"`
	Figures    []models.PaperFigure    `json:"figures,omitempty"`
	References []models.PaperReference `json:"references,omitempty"`
	PageCount  int                     `json:"page_count,omitempty"`
}

func (r Result) Empty() bool {
	return len(r.Sections) == 0 && len(r.Figures) == 0 && len(r.References) == 0
}

// Page is one page of raw extraction output: enough signal for the scan
// heuristic (text volume, image count) plus the text itself.
type Page struct {
	Number     int    `json:"number"`
	Text       string `json:"text"`
	ImageCount int    `json:"image_count"`
}

// PDFResult is what the raw-text extractor and the OCR extractor both
// return, so everything downstream is transport-agnostic.
type PDFResult struct {
	Pages    []Page                `json:"pages"`
	Captions []models.CaptionMatch `json:"captions,omitempty"`
}

func (p PDFResult) CombinedTextLen() int {
	n := 0
	for _, pg := range p.Pages {
		n += len(pg.Text)
	}
	return n
}

func (p PDFResult) CombinedText() string {
	out := ""
	for _, pg := range p.Pages {
		out += pg.Text + "\n"
	}
	return out
}
