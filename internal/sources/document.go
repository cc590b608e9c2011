package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"paperlens/internal/util"
)

// DocumentClient downloads the raw PDF for a paper to local disk and hands
// back the path. Extraction activities read from disk instead of dragging
// megabytes of bytes through workflow payloads.
type DocumentClient struct {
	dataRoot string
	client   *http.Client
}

func NewDocumentClient(dataRoot string, timeout time.Duration) *DocumentClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &DocumentClient{dataRoot: dataRoot, client: &http.Client{Timeout: timeout}}
}

// Fetch downloads documentURL into the data root, named by paper id, and
// returns the local path along with the content hash. The write is atomic:
// partial downloads never land at the final path.
func (c *DocumentClient) Fetch(ctx context.Context, paperID, documentURL string) (string, string, error) {
	if strings.TrimSpace(documentURL) == "" {
		return "", "", fmt.Errorf("no document url for paper %s", paperID)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, documentURL, nil)
	if err != nil {
		return "", "", fmt.Errorf("build document request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("document request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", "", fmt.Errorf("document source error %d", resp.StatusCode)
	}

	dir := filepath.Join(c.dataRoot, "papers")
	if err := util.EnsureDir(dir); err != nil {
		return "", "", err
	}
	tmp, err := os.CreateTemp(dir, "download-*.pdf")
	if err != nil {
		return "", "", fmt.Errorf("create temp download: %w", err)
	}
	sum, err := util.SHA256HexFromReader(io.TeeReader(resp.Body, tmp))
	if err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", "", fmt.Errorf("write download: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", "", fmt.Errorf("close download: %w", err)
	}
	finalPath := filepath.Join(dir, sanitizeFilename(paperID)+".pdf")
	if err := os.Rename(tmp.Name(), finalPath); err != nil {
		return "", "", fmt.Errorf("move download: %w", err)
	}
	return finalPath, sum, nil
}

func sanitizeFilename(s string) string {
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	return s
}
