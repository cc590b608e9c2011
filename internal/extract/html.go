package extract

import (
	"fmt"
	"strings"

	"paperlens/internal/models"
	"paperlens/internal/util"

	"golang.org/x/net/html"
)

// ExtractHTML parses the semantically structured HTML mirror of a paper.
// The mirror carries clean section/figure structure and in-text anchors but
// no page numbers; those get backfilled from raw-text captions later.
func ExtractHTML(htmlStr string) (Result, error) {
	if strings.TrimSpace(htmlStr) == "" {
		return Result{}, nil
	}
	doc, err := html.Parse(strings.NewReader(htmlStr))
	if err != nil {
		return Result{}, fmt.Errorf("parse mirror html: %w", err)
	}
	var out Result
	walkHTML(doc, func(n *html.Node) bool {
		switch n.Data {
		case "section":
			if sec, ok := htmlSection(n); ok {
				out.Sections = append(out.Sections, sec)
			}
			// Keep descending: nested subsections produce their own entries.
			return true
		case "figure":
			if fig, ok := htmlFigure(n); ok {
				out.Figures = append(out.Figures, fig)
			}
			return false
		}
		return true
	})
	return out, nil
}

// walkHTML visits element nodes depth-first; visit returning false prunes
// the subtree.
func walkHTML(n *html.Node, visit func(*html.Node) bool) {
	if n.Type == html.ElementNode && !visit(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkHTML(c, visit)
	}
}

func htmlSection(n *html.Node) (models.PaperSection, bool) {
	id := attr(n, "id")
	if id == "" {
		return models.PaperSection{}, false
	}
	sec := models.PaperSection{
		ID: id,
		// Subsection ids extend the parent id with dots (S2.SS1), which
		// doubles as the heading depth.
		Level: strings.Count(id, ".") + 1,
	}
	parIdx := 0
	walkHTML(n, func(c *html.Node) bool {
		switch c.Data {
		case "section":
			if c != n {
				// Nested sections are visited on their own.
				return false
			}
		case "figure":
			return false
		case "h1", "h2", "h3", "h4", "h5", "h6":
			if sec.Title == "" {
				sec.Title = util.CollapseWhitespace(textContent(c))
			}
			return false
		case "p":
			text := util.CollapseWhitespace(textContent(c))
			if text == "" {
				return false
			}
			par := models.SectionParagraph{
				ID:   fmt.Sprintf("%s-par-%03d", id, parIdx),
				Text: text,
			}
			par.Citations, par.FigureIDs = htmlAnchors(c)
			sec.Paragraphs = append(sec.Paragraphs, par)
			parIdx++
			return false
		}
		return true
	})
	if sec.Title == "" && len(sec.Paragraphs) == 0 {
		return models.PaperSection{}, false
	}
	return sec, true
}

// htmlAnchors classifies a paragraph's internal links: bibliography anchors
// are citation mentions, figure/table anchors are figure mentions.
func htmlAnchors(p *html.Node) (citations, figureIDs []string) {
	citSeen := map[string]struct{}{}
	figSeen := map[string]struct{}{}
	walkHTML(p, func(c *html.Node) bool {
		if c.Data != "a" {
			return true
		}
		href := attr(c, "href")
		if !strings.HasPrefix(href, "#") {
			return true
		}
		target := strings.TrimPrefix(href, "#")
		switch {
		case strings.HasPrefix(target, "bib."):
			id := strings.TrimPrefix(target, "bib.")
			if _, dup := citSeen[id]; !dup {
				citSeen[id] = struct{}{}
				citations = append(citations, id)
			}
		case strings.Contains(target, ".F") || strings.Contains(target, ".T"):
			if _, dup := figSeen[target]; !dup {
				figSeen[target] = struct{}{}
				figureIDs = append(figureIDs, target)
			}
		}
		return true
	})
	return citations, figureIDs
}

func htmlFigure(n *html.Node) (models.PaperFigure, bool) {
	id := attr(n, "id")
	if id == "" {
		return models.PaperFigure{}, false
	}
	fig := models.PaperFigure{ID: id}
	walkHTML(n, func(c *html.Node) bool {
		switch c.Data {
		case "figcaption":
			cap := util.CollapseWhitespace(textContent(c))
			fig.Caption = cap
			fig.Label = captionLabel(cap)
			return false
		case "img":
			if fig.ImageURL == "" {
				fig.ImageURL = attr(c, "src")
			}
		}
		return true
	})
	if fig.Label == "" {
		if strings.Contains(attr(n, "class"), "table") || strings.Contains(id, ".T") {
			fig.Label = "Table"
		} else {
			fig.Label = "Figure"
		}
	}
	return fig, true
}

// captionLabel keeps the leading "Figure N" / "Table N" of a caption as the
// label used for cross-source matching.
func captionLabel(caption string) string {
	m := captionLineRe.FindStringSubmatch(caption)
	if m == nil {
		return ""
	}
	kind := models.CaptionFigure
	if strings.HasPrefix(strings.ToLower(m[1]), "tab") {
		kind = models.CaptionTable
	}
	return labelForKind(kind, m[2])
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var rec func(*html.Node)
	rec = func(c *html.Node) {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
		for k := c.FirstChild; k != nil; k = k.NextSibling {
			rec(k)
		}
	}
	rec(n)
	return b.String()
}
