package report

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/warp/order-engine/engine"
)

// Formats.
const (
	FormatXLSX = "xlsx"
	FormatPDF  = "pdf"
)

// Analyzer produces the analysis a report is built from.
type Analyzer interface {
	Analyze(ctx context.Context, clientID, vendorID string) (*engine.AnalysisResult, error)
}

// Report is one rendered export.
type Report struct {
	Filename    string
	ContentType string
	Body        []byte

	// ArchiveURL is set when the report was archived.
	ArchiveURL string
}

// Exporter builds reports. Renderer and Archive are optional.
type Exporter struct {
	Analyzer Analyzer
	Renderer Renderer
	Archive  Archive
	Clock    engine.Clock
}

// Formats lists the formats this exporter can produce.
func (e *Exporter) Formats() []string {
	if e.Renderer == nil {
		return []string{FormatXLSX}
	}
	return []string{FormatXLSX, FormatPDF}
}

// Export analyses the key and renders it in format ("" means xlsx).
func (e *Exporter) Export(ctx context.Context, clientID, vendorID, format string) (*Report, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = FormatXLSX
	}
	if !e.supports(format) {
		return nil, &engine.ValidationError{Reason: engine.ReasonUnsupportedFormat, Field: format}
	}

	res, err := e.Analyzer.Analyze(ctx, clientID, vendorID)
	if err != nil {
		return nil, err
	}

	body, err := BuildWorkbook(res)
	if err != nil {
		return nil, fmt.Errorf("build workbook: %w", err)
	}

	now := e.now()
	base := fmt.Sprintf("order_%s_%s_%s", res.Header.ClientID, res.Header.VendorID, now.Format("20060102-150405"))
	rep := &Report{Filename: base + "." + FormatXLSX, ContentType: ContentTypeXLSX, Body: body}

	if format == FormatPDF {
		pdf, err := e.Renderer.Render(ctx, rep.Filename, body)
		if err != nil {
			return nil, err
		}
		rep = &Report{Filename: base + "." + FormatPDF, ContentType: ContentTypePDF, Body: pdf}
	}

	if e.Archive != nil {
		key := fmt.Sprintf("reports/%s/%s/%s.%s",
			url.PathEscape(res.Header.ClientID), url.PathEscape(res.Header.VendorID),
			now.Format("20060102T150405Z"), format)
		loc, err := e.Archive.Put(ctx, key, rep.ContentType, rep.Body)
		if err != nil {
			return nil, &engine.UpstreamError{Reason: engine.ReasonArchiveFailed, Retryable: true, Err: err}
		}
		rep.ArchiveURL = loc
	}

	log.Printf("[Export] %s/%s %s (%d bytes)", res.Header.ClientID, res.Header.VendorID, rep.Filename, len(rep.Body))
	return rep, nil
}

func (e *Exporter) supports(format string) bool {
	for _, f := range e.Formats() {
		if f == format {
			return true
		}
	}
	return false
}

func (e *Exporter) now() time.Time {
	if e.Clock == nil {
		return time.Now().UTC()
	}
	return e.Clock().UTC()
}
