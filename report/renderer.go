package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/warp/order-engine/engine"
)

// ContentTypeXLSX is the MIME type of an XLSX workbook.
const ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ContentTypePDF is the MIME type of a rendered report.
const ContentTypePDF = "application/pdf"

// maxRenderedSize caps how much of a renderer response is read.
const maxRenderedSize = 32 << 20

// Renderer converts an XLSX workbook into a PDF.
type Renderer interface {
	Render(ctx context.Context, filename string, xlsx []byte) ([]byte, error)
}

// HTTPRenderer posts the workbook to an external rendering service and
// returns the response body.
//
// Every failure is an engine.UpstreamError with reason renderer_failed.
// Transport errors, 5xx and 429 are retryable; other statuses are not.
type HTTPRenderer struct {
	URL     string
	Client  *http.Client
	Timeout time.Duration
}

// NewHTTPRenderer returns a renderer for url with the given timeout.
func NewHTTPRenderer(url string, timeout time.Duration) *HTTPRenderer {
	return &HTTPRenderer{URL: url, Client: &http.Client{}, Timeout: timeout}
}

func (r *HTTPRenderer) Render(ctx context.Context, filename string, xlsx []byte) ([]byte, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, bytes.NewReader(xlsx))
	if err != nil {
		return nil, &engine.UpstreamError{Reason: engine.ReasonRendererFailed, Err: err}
	}
	req.Header.Set("Content-Type", ContentTypeXLSX)
	req.Header.Set("Accept", ContentTypePDF)
	req.Header.Set("X-Filename", filename)

	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}

	started := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		log.Printf("[Renderer] %s failed after %s: %v", filename, time.Since(started), err)
		return nil, &engine.UpstreamError{Reason: engine.ReasonRendererFailed, Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Printf("[Renderer] %s returned %d", filename, resp.StatusCode)
		return nil, &engine.UpstreamError{
			Reason:    engine.ReasonRendererFailed,
			Status:    resp.StatusCode,
			Retryable: resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests,
			Err:       fmt.Errorf("renderer: %s", bytes.TrimSpace(msg)),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRenderedSize))
	if err != nil {
		return nil, &engine.UpstreamError{Reason: engine.ReasonRendererFailed, Status: resp.StatusCode, Retryable: true, Err: err}
	}
	log.Printf("[Renderer] %s rendered %d bytes in %s", filename, len(body), time.Since(started))
	return body, nil
}
