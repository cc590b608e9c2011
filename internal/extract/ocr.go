package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"paperlens/internal/models"
	"paperlens/internal/util"
)

// ocrResponse is the wire shape both transports deliver.
type ocrResponse struct {
	Pages []struct {
		Number int    `json:"number"`
		Text   string `json:"text"`
	} `json:"pages"`
	Figures []ocrCaption `json:"figures"`
	Tables  []ocrCaption `json:"tables"`
}

type ocrCaption struct {
	Number  string `json:"number"`
	Caption string `json:"caption"`
	Page    int    `json:"page"`
}

// ocrTransport hides how the OCR service is reached. A transport failure is
// a hard error for the attempt; the ingestion orchestrator downgrades it to
// "OCR unavailable".
type ocrTransport interface {
	extract(ctx context.Context, pdf []byte) (ocrResponse, error)
}

// OCRExtractor runs a document through the OCR capability and normalizes
// the reply to the same PDFResult shape the raw-text extractor produces.
type OCRExtractor struct {
	transport ocrTransport
}

func NewOCRExtractor(baseURL, transport string, timeout time.Duration) *OCRExtractor {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	base := strings.TrimRight(baseURL, "/")
	var t ocrTransport
	if strings.EqualFold(transport, "queued") {
		t = &queuedOCRTransport{baseURL: base, client: client, pollInterval: 2 * time.Second}
	} else {
		t = &directOCRTransport{baseURL: base, client: client}
	}
	return &OCRExtractor{transport: t}
}

func (o *OCRExtractor) Configured() bool {
	switch t := o.transport.(type) {
	case *directOCRTransport:
		return t.baseURL != ""
	case *queuedOCRTransport:
		return t.baseURL != ""
	}
	return false
}

func (o *OCRExtractor) ExtractFile(ctx context.Context, pdfPath string) (PDFResult, error) {
	raw, err := os.ReadFile(pdfPath)
	if err != nil {
		return PDFResult{}, fmt.Errorf("read pdf for ocr: %w", err)
	}
	return o.Extract(ctx, raw)
}

func (o *OCRExtractor) Extract(ctx context.Context, pdf []byte) (PDFResult, error) {
	resp, err := o.transport.extract(ctx, pdf)
	if err != nil {
		return PDFResult{}, err
	}
	out := PDFResult{Pages: make([]Page, 0, len(resp.Pages))}
	for _, p := range resp.Pages {
		text := util.SanitizeText(p.Text)
		out.Pages = append(out.Pages, Page{Number: p.Number, Text: text})
		out.Captions = append(out.Captions, FindCaptions(text, p.Number)...)
	}
	out.Captions = append(out.Captions, explicitCaptions(resp.Figures, models.CaptionFigure)...)
	out.Captions = append(out.Captions, explicitCaptions(resp.Tables, models.CaptionTable)...)
	return out, nil
}

func explicitCaptions(caps []ocrCaption, kind models.CaptionKind) []models.CaptionMatch {
	out := make([]models.CaptionMatch, 0, len(caps))
	for _, c := range caps {
		key := NormalizeLabelKey(kind, c.Number)
		if key == "" {
			continue
		}
		out = append(out, models.CaptionMatch{
			ID:      fmt.Sprintf("ocr-%s-%s-p%d", kind, strings.ToLower(c.Number), c.Page),
			Kind:    kind,
			Label:   labelForKind(kind, c.Number),
			Number:  c.Number,
			Caption: util.CollapseWhitespace(c.Caption),
			Page:    c.Page,
			Key:     key,
		})
	}
	return out
}

// directOCRTransport posts the document once and gets the result back in
// the same response.
type directOCRTransport struct {
	baseURL string
	client  *http.Client
}

func (t *directOCRTransport) extract(ctx context.Context, pdf []byte) (ocrResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/extract", bytes.NewReader(pdf))
	if err != nil {
		return ocrResponse{}, fmt.Errorf("build ocr request: %w", err)
	}
	req.Header.Set("Content-Type", "application/pdf")
	resp, err := t.client.Do(req)
	if err != nil {
		return ocrResponse{}, fmt.Errorf("ocr request failed: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return ocrResponse{}, fmt.Errorf("ocr error %d: %s", resp.StatusCode, util.DisplaySnippet(string(body), 200))
	}
	var out ocrResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return ocrResponse{}, fmt.Errorf("decode ocr response: %w", err)
	}
	return out, nil
}

// queuedOCRTransport submits a job to the managed endpoint and waits for it
// synchronously, polling until the job finishes or the context expires.
type queuedOCRTransport struct {
	baseURL      string
	client       *http.Client
	pollInterval time.Duration
}

type ocrJobStatus struct {
	JobID  string          `json:"job_id"`
	Status string          `json:"status"`
	Error  string          `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

func (t *queuedOCRTransport) extract(ctx context.Context, pdf []byte) (ocrResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/jobs", bytes.NewReader(pdf))
	if err != nil {
		return ocrResponse{}, fmt.Errorf("build ocr job request: %w", err)
	}
	req.Header.Set("Content-Type", "application/pdf")
	resp, err := t.client.Do(req)
	if err != nil {
		return ocrResponse{}, fmt.Errorf("submit ocr job: %w", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode >= 400 {
		return ocrResponse{}, fmt.Errorf("ocr job submit error %d: %s", resp.StatusCode, util.DisplaySnippet(string(body), 200))
	}
	var job ocrJobStatus
	if err := json.Unmarshal(body, &job); err != nil {
		return ocrResponse{}, fmt.Errorf("decode ocr job submit: %w", err)
	}
	if job.JobID == "" {
		return ocrResponse{}, fmt.Errorf("ocr job submit returned no job id")
	}

	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ocrResponse{}, fmt.Errorf("ocr job %s: %w", job.JobID, ctx.Err())
		case <-ticker.C:
		}
		status, err := t.poll(ctx, job.JobID)
		if err != nil {
			return ocrResponse{}, err
		}
		switch status.Status {
		case "done":
			var out ocrResponse
			if err := json.Unmarshal(status.Result, &out); err != nil {
				return ocrResponse{}, fmt.Errorf("decode ocr job result: %w", err)
			}
			return out, nil
		case "failed":
			return ocrResponse{}, fmt.Errorf("ocr job %s failed: %s", job.JobID, status.Error)
		}
	}
}

func (t *queuedOCRTransport) poll(ctx context.Context, jobID string) (ocrJobStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/jobs/"+jobID, nil)
	if err != nil {
		return ocrJobStatus{}, fmt.Errorf("build ocr poll request: %w", err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return ocrJobStatus{}, fmt.Errorf("poll ocr job: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return ocrJobStatus{}, fmt.Errorf("ocr poll error %d", resp.StatusCode)
	}
	var status ocrJobStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return ocrJobStatus{}, fmt.Errorf("decode ocr poll: %w", err)
	}
	return status, nil
}
