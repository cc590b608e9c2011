package extract

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"paperlens/internal/models"
	"paperlens/internal/util"
)

// GrobidClient submits a PDF to the document-structure-extraction service
// and parses the TEI it returns. The service is an optional capability; the
// orchestrator skips it entirely when no URL is configured.
type GrobidClient struct {
	baseURL string
	client  *http.Client
}

func NewGrobidClient(baseURL string, timeout time.Duration) *GrobidClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &GrobidClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *GrobidClient) Configured() bool {
	return c.baseURL != ""
}

func (c *GrobidClient) Submit(ctx context.Context, pdfPath string) (string, error) {
	if !c.Configured() {
		return "", fmt.Errorf("structure service not configured")
	}
	f, err := os.Open(pdfPath)
	if err != nil {
		return "", fmt.Errorf("open pdf for structure service: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("input", "paper.pdf")
	if err != nil {
		return "", fmt.Errorf("build multipart: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("copy pdf into request: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("finish multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/processFulltextDocument", &buf)
	if err != nil {
		return "", fmt.Errorf("build structure request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/xml")
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("structure request failed: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("structure service error %d: %s", resp.StatusCode, util.DisplaySnippet(string(body), 200))
	}
	return string(body), nil
}

// TEI document shapes, limited to what selection and cross-referencing need.

type teiDocument struct {
	XMLName xml.Name  `xml:"TEI"`
	Text    teiText   `xml:"text"`
	Header  teiHeader `xml:"teiHeader"`
}

type teiHeader struct {
	Extent struct {
		Pages string `xml:"measure"`
	} `xml:"fileDesc>extent"`
}

type teiText struct {
	Body struct {
		Divs    []teiDiv    `xml:"div"`
		Figures []teiFigure `xml:"figure"`
	} `xml:"body"`
	Back struct {
		Divs []struct {
			Type     string          `xml:"type,attr"`
			ListBibl []teiBiblStruct `xml:"listBibl>biblStruct"`
		} `xml:"div"`
	} `xml:"back"`
}

type teiDiv struct {
	Head teiHead  `xml:"head"`
	Ps   []teiP   `xml:"p"`
	Divs []teiDiv `xml:"div"`
}

type teiHead struct {
	N    string `xml:"n,attr"`
	Text string `xml:",chardata"`
}

type teiP struct {
	Inner []byte `xml:",innerxml"`
}

type teiFigure struct {
	ID      string  `xml:"id,attr"`
	Type    string  `xml:"type,attr"`
	Head    teiHead `xml:"head"`
	FigDesc string  `xml:"figDesc"`
}

type teiBiblStruct struct {
	ID       string `xml:"id,attr"`
	Analytic struct {
		Title   string      `xml:"title"`
		Authors []teiAuthor `xml:"author"`
	} `xml:"analytic"`
	Monogr struct {
		Title   string      `xml:"title"`
		Authors []teiAuthor `xml:"author"`
		Date    struct {
			When string `xml:"when,attr"`
		} `xml:"imprint>date"`
	} `xml:"monogr"`
	IDNos []struct {
		Type  string `xml:"type,attr"`
		Value string `xml:",chardata"`
	} `xml:"idno"`
	Ptr struct {
		Target string `xml:"target,attr"`
	} `xml:"ptr"`
}

type teiAuthor struct {
	Forename string `xml:"persName>forename"`
	Surname  string `xml:"persName>surname"`
}

// ParseTEI converts the structure service's TEI markup into the common
// extraction result: a nested section tree flattened by recursive descent,
// figures, and the bibliography (only this source exposes one).
func ParseTEI(teiXML string) (Result, error) {
	if strings.TrimSpace(teiXML) == "" {
		return Result{}, nil
	}
	var doc teiDocument
	if err := xml.Unmarshal([]byte(teiXML), &doc); err != nil {
		return Result{}, fmt.Errorf("decode tei: %w", err)
	}

	var out Result
	for i, div := range doc.Text.Body.Divs {
		out.Sections = append(out.Sections, flattenDiv(div, fmt.Sprintf("sec-%d", i), 1)...)
	}
	for i, fig := range doc.Text.Body.Figures {
		out.Figures = append(out.Figures, teiToFigure(fig, i))
	}
	for _, back := range doc.Text.Back.Divs {
		if back.Type != "references" {
			continue
		}
		for i, b := range back.ListBibl {
			out.References = append(out.References, teiToReference(b, i))
		}
	}
	if n, err := strconv.Atoi(strings.TrimSpace(doc.Header.Extent.Pages)); err == nil {
		out.PageCount = n
	}
	return out, nil
}

func flattenDiv(div teiDiv, id string, level int) []models.PaperSection {
	sec := models.PaperSection{
		ID:    id,
		Title: util.CollapseWhitespace(div.Head.Text),
		Level: level,
	}
	if sec.Title == "" {
		sec.Title = "Untitled"
	}
	for i, p := range div.Ps {
		text, citations, figureIDs := parseTEIParagraph(p.Inner)
		if text == "" {
			continue
		}
		sec.Paragraphs = append(sec.Paragraphs, models.SectionParagraph{
			ID:        fmt.Sprintf("%s-par-%03d", id, i),
			Text:      text,
			Citations: citations,
			FigureIDs: figureIDs,
		})
	}
	sections := []models.PaperSection{}
	if len(sec.Paragraphs) > 0 || len(div.Divs) == 0 {
		sections = append(sections, sec)
	}
	for i, child := range div.Divs {
		sections = append(sections, flattenDiv(child, fmt.Sprintf("%s-%d", id, i), level+1)...)
	}
	return sections
}

// parseTEIParagraph walks a paragraph's inline markup. A <ref> is classified
// by its type attribute: "bibr" is a citation, "figure"/"table" a figure
// mention. The target string is never inspected.
func parseTEIParagraph(inner []byte) (text string, citations, figureIDs []string) {
	dec := xml.NewDecoder(bytes.NewReader(inner))
	var b strings.Builder
	citSeen := map[string]struct{}{}
	figSeen := map[string]struct{}{}
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.CharData:
			b.Write(t)
		case xml.StartElement:
			if t.Name.Local != "ref" {
				continue
			}
			var refType, target string
			for _, a := range t.Attr {
				switch a.Name.Local {
				case "type":
					refType = a.Value
				case "target":
					target = strings.TrimPrefix(a.Value, "#")
				}
			}
			if target == "" {
				continue
			}
			switch refType {
			case "bibr":
				if _, dup := citSeen[target]; !dup {
					citSeen[target] = struct{}{}
					citations = append(citations, target)
				}
			case "figure", "table":
				if _, dup := figSeen[target]; !dup {
					figSeen[target] = struct{}{}
					figureIDs = append(figureIDs, target)
				}
			}
		}
	}
	return util.CollapseWhitespace(b.String()), citations, figureIDs
}

func teiToFigure(fig teiFigure, idx int) models.PaperFigure {
	id := fig.ID
	if id == "" {
		id = fmt.Sprintf("fig_%d", idx)
	}
	label := util.CollapseWhitespace(fig.Head.Text)
	if label == "" {
		if fig.Type == "table" {
			label = "Table " + fig.Head.N
		} else {
			label = "Figure " + fig.Head.N
		}
	}
	return models.PaperFigure{
		ID:      id,
		Label:   strings.TrimSpace(label),
		Caption: util.CollapseWhitespace(fig.FigDesc),
		// TEI output rarely carries page anchors; cross-reference
		// enrichment backfills pages from raw-text captions.
	}
}

func teiToReference(b teiBiblStruct, idx int) models.PaperReference {
	ref := models.PaperReference{ID: b.ID}
	if ref.ID == "" {
		ref.ID = fmt.Sprintf("b%d", idx)
	}
	ref.Title = util.CollapseWhitespace(b.Analytic.Title)
	if ref.Title == "" {
		ref.Title = util.CollapseWhitespace(b.Monogr.Title)
	} else {
		ref.Venue = util.CollapseWhitespace(b.Monogr.Title)
	}
	authors := b.Analytic.Authors
	if len(authors) == 0 {
		authors = b.Monogr.Authors
	}
	for _, a := range authors {
		name := strings.TrimSpace(strings.TrimSpace(a.Forename) + " " + strings.TrimSpace(a.Surname))
		if name != "" {
			ref.Authors = append(ref.Authors, name)
		}
	}
	if when := b.Monogr.Date.When; len(when) >= 4 {
		if y, err := strconv.Atoi(when[:4]); err == nil {
			ref.Year = &y
		}
	}
	for _, idno := range b.IDNos {
		switch strings.ToUpper(idno.Type) {
		case "DOI":
			ref.DOI = strings.TrimSpace(idno.Value)
		case "ARXIV", "ARXIVID":
			if ref.URL == "" {
				ref.URL = "https://arxiv.org/abs/" + strings.TrimSpace(idno.Value)
			}
		}
	}
	if ref.URL == "" && b.Ptr.Target != "" {
		ref.URL = b.Ptr.Target
	}
	return ref
}
