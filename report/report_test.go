package report_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/warp/order-engine/engine"
	"github.com/warp/order-engine/report"
)

// =============================================================================
// TEST DOUBLES
// =============================================================================

var exportTime = time.Date(2025, time.March, 15, 10, 30, 0, 0, time.UTC)

type fakeAnalyzer struct {
	res   *engine.AnalysisResult
	err   error
	calls int
}

func (f *fakeAnalyzer) Analyze(_ context.Context, _, _ string) (*engine.AnalysisResult, error) {
	f.calls++
	return f.res, f.err
}

type fakeArchive struct {
	keys []string
	err  error
}

func (a *fakeArchive) Put(_ context.Context, key, _ string, _ []byte) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	a.keys = append(a.keys, key)
	return "mem://" + key, nil
}

func sampleResult() *engine.AnalysisResult {
	return &engine.AnalysisResult{
		Header:  engine.Header{ClientID: "1001", VendorID: "007", ClientName: "Ferreteria Sur"},
		Periods: engine.ActivePair{CurrentColumn: "Marzo 25", ComparisonColumn: "Marzo 24"},
		Groups: []engine.CategoryGroup{{
			Category: "Adhesives",
			Items: []engine.LineItem{{
				CatalogEntry: engine.CatalogEntry{
					MaterialCode: "M1", Description: "Glue", Presentation: "Caja",
					PackagingFactor: 6, PackagingUnit: "UN",
				},
				Current:    decimal.NewFromInt(12),
				Comparison: decimal.NewFromInt(4),
				Slot1:      6, Slot2: 6, Total: 12, HasSavedOrder: true,
			}},
		}},
		Categories: []string{"Adhesives"},
		AddedProducts: []engine.AddedProduct{{
			Category: "Paint", MaterialCode: "P1", Description: "Red", Quantity: 3, PackagingFactor: 1,
		}},
	}
}

// =============================================================================
// WORKBOOK TESTS
// =============================================================================

func TestBuildWorkbook_Layout(t *testing.T) {
	body, err := report.BuildWorkbook(sampleResult())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(body))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{report.SheetOrder, report.SheetAdded}, f.GetSheetList())

	client, err := f.GetCellValue(report.SheetOrder, "B1")
	require.NoError(t, err)
	assert.Equal(t, "1001", client)

	rows, err := f.GetRows(report.SheetOrder)
	require.NoError(t, err)
	// 3 header lines, a blank line, the column header, one item.
	require.Len(t, rows, 6)
	assert.Equal(t, "Category", rows[4][0])
	assert.Equal(t, []string{"Adhesives", "M1", "Glue", "Caja", "6", "UN", "12", "4", "6", "6", "12"}, rows[5])

	added, err := f.GetRows(report.SheetAdded)
	require.NoError(t, err)
	require.Len(t, added, 2)
	assert.Equal(t, "Red", added[1][2])

	width, err := f.GetColWidth(report.SheetOrder, "C")
	require.NoError(t, err)
	assert.Equal(t, float64(32), width)
}

// =============================================================================
// EXPORT TESTS
// =============================================================================

func TestExport_DefaultsToXLSX(t *testing.T) {
	an := &fakeAnalyzer{res: sampleResult()}
	arch := &fakeArchive{}
	ex := &report.Exporter{Analyzer: an, Archive: arch, Clock: engine.FixedClock(exportTime)}

	rep, err := ex.Export(context.Background(), "1001", "7", "")

	require.NoError(t, err)
	assert.Equal(t, "order_1001_007_20250315-103000.xlsx", rep.Filename)
	assert.Equal(t, report.ContentTypeXLSX, rep.ContentType)
	assert.NotEmpty(t, rep.Body)
	assert.Equal(t, []string{"reports/1001/007/20250315T103000Z.xlsx"}, arch.keys)
	assert.Equal(t, "mem://reports/1001/007/20250315T103000Z.xlsx", rep.ArchiveURL)
}

func TestExport_PDFWithoutRenderer_Unsupported(t *testing.T) {
	an := &fakeAnalyzer{res: sampleResult()}
	ex := &report.Exporter{Analyzer: an}

	_, err := ex.Export(context.Background(), "1001", "7", "PDF")

	require.ErrorIs(t, err, engine.ErrValidation)
	assert.Equal(t, engine.ReasonUnsupportedFormat, engine.ReasonOf(err))
	assert.Equal(t, 0, an.calls, "format is checked before analysing")
}

func TestExport_AnalysisErrorPassesThrough(t *testing.T) {
	notFound := &engine.NotFoundError{Reason: engine.ReasonClientNotInCatalog}
	ex := &report.Exporter{Analyzer: &fakeAnalyzer{err: notFound}}

	_, err := ex.Export(context.Background(), "1001", "7", "xlsx")

	assert.ErrorIs(t, err, engine.ErrNotFound)
}

func TestExport_PDFViaRenderer(t *testing.T) {
	// GIVEN: A renderer that accepts the workbook
	// WHEN: Exporting as pdf
	// THEN: The renderer's body is the report

	var gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		if len(body) == 0 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", report.ContentTypePDF)
		_, _ = w.Write([]byte("%PDF-1.7 fake"))
	}))
	defer srv.Close()

	ex := &report.Exporter{
		Analyzer: &fakeAnalyzer{res: sampleResult()},
		Renderer: report.NewHTTPRenderer(srv.URL, time.Second),
		Clock:    engine.FixedClock(exportTime),
	}

	rep, err := ex.Export(context.Background(), "1001", "7", "pdf")

	require.NoError(t, err)
	assert.Equal(t, report.ContentTypeXLSX, gotType)
	assert.Equal(t, "order_1001_007_20250315-103000.pdf", rep.Filename)
	assert.Equal(t, report.ContentTypePDF, rep.ContentType)
	assert.True(t, strings.HasPrefix(string(rep.Body), "%PDF"))
}

func TestHTTPRenderer_Failures(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"server error", http.StatusBadGateway, true},
		{"rate limited", http.StatusTooManyRequests, true},
		{"bad request", http.StatusBadRequest, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			_, err := report.NewHTTPRenderer(srv.URL, time.Second).Render(context.Background(), "x.xlsx", []byte("x"))

			var up *engine.UpstreamError
			require.ErrorAs(t, err, &up)
			assert.Equal(t, engine.ReasonRendererFailed, up.Reason)
			assert.Equal(t, tt.status, up.Status)
			assert.Equal(t, tt.retryable, engine.IsRetryable(err))
			assert.ErrorIs(t, err, engine.ErrUpstream)
		})
	}
}

func TestHTTPRenderer_Unreachable_Retryable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := report.NewHTTPRenderer(url, time.Second).Render(context.Background(), "x.xlsx", []byte("x"))

	var up *engine.UpstreamError
	require.ErrorAs(t, err, &up)
	assert.Equal(t, 0, up.Status)
	assert.True(t, up.Retryable)
}

func TestHTTPRenderer_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := report.NewHTTPRenderer(srv.URL, 50*time.Millisecond).Render(context.Background(), "x.xlsx", []byte("x"))

	assert.True(t, engine.IsRetryable(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExport_ArchiveFailure_IsUpstream(t *testing.T) {
	ex := &report.Exporter{
		Analyzer: &fakeAnalyzer{res: sampleResult()},
		Archive:  &fakeArchive{err: errors.New("bucket gone")},
	}

	_, err := ex.Export(context.Background(), "1001", "7", "xlsx")

	var up *engine.UpstreamError
	require.ErrorAs(t, err, &up)
	assert.Equal(t, engine.ReasonArchiveFailed, up.Reason)
}
