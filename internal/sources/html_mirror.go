package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTMLMirrorClient fetches a paper's semantically structured HTML rendering.
// Not every paper has a mirror page yet; a 404 is reported as ("", nil) so
// the selector treats the source as absent rather than failed.
type HTMLMirrorClient struct {
	baseURL string
	client  *http.Client
}

func NewHTMLMirrorClient(baseURL string, timeout time.Duration) *HTMLMirrorClient {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &HTMLMirrorClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTMLMirrorClient) Fetch(ctx context.Context, paperID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+paperID, nil)
	if err != nil {
		return "", fmt.Errorf("build mirror request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("mirror request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("mirror error %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read mirror body: %w", err)
	}
	return string(body), nil
}
