package sources

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"paperlens/internal/models"
	"paperlens/internal/util"
)

// MetadataClient queries the arXiv Atom export API for a paper's canonical
// metadata. A paper that the feed does not know about is a valid outcome,
// reported as (nil, nil).
type MetadataClient struct {
	baseURL string
	client  *http.Client
}

func NewMetadataClient(baseURL string, timeout time.Duration) *MetadataClient {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &MetadataClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID        string       `xml:"id"`
	Title     string       `xml:"title"`
	Summary   string       `xml:"summary"`
	Published string       `xml:"published"`
	Updated   string       `xml:"updated"`
	Authors   []atomAuthor `xml:"author"`
	Links     []atomLink   `xml:"link"`
}

type atomAuthor struct {
	Name string `xml:"name"`
}

type atomLink struct {
	Rel   string `xml:"rel,attr"`
	Title string `xml:"title,attr"`
	Href  string `xml:"href,attr"`
}

func (c *MetadataClient) Fetch(ctx context.Context, paperID string) (*models.PaperMetadata, error) {
	q := url.Values{}
	q.Set("id_list", paperID)
	q.Set("max_results", "1")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build metadata request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("metadata request failed: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("metadata feed error %d: %s", resp.StatusCode, util.DisplaySnippet(string(body), 200))
	}
	var feed atomFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("decode metadata feed: %w", err)
	}
	if len(feed.Entries) == 0 {
		return nil, nil
	}
	entry := feed.Entries[0]
	// The feed answers id_list queries for unknown ids with a stub entry
	// whose title is empty and whose id lacks the abs path.
	if strings.TrimSpace(entry.Title) == "" && !strings.Contains(entry.ID, "/abs/") {
		return nil, nil
	}

	meta := &models.PaperMetadata{
		PaperID:  paperID,
		Title:    util.CollapseWhitespace(entry.Title),
		Abstract: util.CollapseWhitespace(entry.Summary),
	}
	for _, a := range entry.Authors {
		if name := strings.TrimSpace(a.Name); name != "" {
			meta.Authors = append(meta.Authors, name)
		}
	}
	if t, err := time.Parse(time.RFC3339, entry.Published); err == nil {
		meta.PublishedAt = &t
	}
	if t, err := time.Parse(time.RFC3339, entry.Updated); err == nil {
		meta.UpdatedAt = &t
	}
	for _, l := range entry.Links {
		if l.Title == "pdf" || strings.Contains(l.Href, "/pdf/") {
			meta.DocumentURL = l.Href
			break
		}
	}
	return meta, nil
}
