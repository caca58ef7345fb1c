/*
handlers.go - HTTP API handlers for the order reconciliation engine

PURPOSE:
  Exposes the reconciliation engine via REST API. Handles HTTP
  request/response, JSON and form decoding, and delegates to the engine.

ENDPOINTS:
  Analysis:
    POST   /api/analyze                Reconciled view of a client/vendor

  Products:
    GET    /api/products?category=     Catalog products of a category
    POST   /api/products               Add a product to the running order
    GET    /api/products/added         Added products of a client/vendor
    GET    /api/categories             Catalog categories

  Orders:
    POST   /api/orders                 Save the order snapshot (overwrite)
    GET    /api/orders                 Current order snapshot

  Export:
    POST   /api/export                 Download the order as xlsx or pdf

REQUEST FLOW:
  1. Decode JSON or form body
  2. Call the engine (it owns all validation)
  3. Serialize response
  4. Map typed errors to a status

ERROR HANDLING:
  Errors are returned as JSON with the engine's reason code:
  - 400: ValidationError (bad input, nothing written)
  - 404: NotFoundError
  - 500: SchemaError (catalog unusable) and unexpected errors
  - 502: UpstreamError (renderer or archive), with retryable set

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/warp/order-engine/engine"
	"github.com/warp/order-engine/report"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Reconciler *engine.Reconciler
	Catalog    *engine.Catalog
	Ledger     *engine.AddedProducts
	Snapshots  *engine.OrderSnapshots
	Exporter   *report.Exporter

	// Optional
	Metrics *Metrics
	Monitor *PeriodMonitor
}

// NewHandler wires a handler around a reconciler and its stores.
func NewHandler(rec *engine.Reconciler, exporter *report.Exporter) *Handler {
	return &Handler{
		Reconciler: rec,
		Catalog:    rec.Catalog,
		Ledger:     rec.AddedProducts,
		Snapshots:  rec.Snapshots,
		Exporter:   exporter,
	}
}

// =============================================================================
// ANALYSIS
// =============================================================================

// Analyze returns the reconciled view of one client/vendor.
// POST /api/analyze
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.Reconciler.Analyze(r.Context(), string(req.ClientID), string(req.VendorID))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// =============================================================================
// PRODUCTS
// =============================================================================

// ListProducts returns one product per description in a category.
// GET /api/products?category=Adhesives
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Catalog.ProductsByCategory(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTOs(entries))
}

// AddProduct merges a product into the client's added-products ledger.
// POST /api/products
func (h *Handler) AddProduct(w http.ResponseWriter, r *http.Request) {
	var req AddProductRequest
	if !h.decode(w, r, &req) {
		return
	}

	rec, err := h.Ledger.Add(r.Context(), req.input())
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// ListAddedProducts returns the added products of one client/vendor.
// GET /api/products/added?client_id=1001&vendor_id=7
func (h *Handler) ListAddedProducts(w http.ResponseWriter, r *http.Request) {
	k, ok := h.keyFromQuery(w, r)
	if !ok {
		return
	}

	list, err := h.Ledger.ListFor(r.Context(), k.ClientID, k.VendorID)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// ListCategories returns the sorted catalog categories.
// GET /api/categories
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.Catalog.Categories(r.Context())
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	if cats == nil {
		cats = []string{}
	}
	writeJSON(w, http.StatusOK, cats)
}

// =============================================================================
// ORDERS
// =============================================================================

// SaveOrder replaces the order snapshot of one client/vendor.
// POST /api/orders
func (h *Handler) SaveOrder(w http.ResponseWriter, r *http.Request) {
	var req SaveOrderRequest
	if !h.decode(w, r, &req) {
		return
	}

	id, err := h.Snapshots.Save(r.Context(), string(req.ClientID), string(req.VendorID), req.Lines)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, SaveOrderResponse{SnapshotID: id})
}

// GetOrder returns the current order snapshot of one client/vendor.
// GET /api/orders?client_id=1001&vendor_id=7
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	k, ok := h.keyFromQuery(w, r)
	if !ok {
		return
	}

	snap, err := h.Snapshots.Snapshot(r.Context(), k.ClientID, k.VendorID)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// =============================================================================
// EXPORT
// =============================================================================

// Export streams the order report as an attachment.
// POST /api/export
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	var req ExportRequest
	if !h.decode(w, r, &req) {
		return
	}

	rep, err := h.Exporter.Export(r.Context(), string(req.ClientID), string(req.VendorID), req.Format)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	format := report.FormatXLSX
	if rep.ContentType == report.ContentTypePDF {
		format = report.FormatPDF
	}
	h.Metrics.exported(format)

	w.Header().Set("Content-Type", rep.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": rep.Filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(rep.Body)))
	if rep.ArchiveURL != "" {
		w.Header().Set("X-Archive-URL", rep.ArchiveURL)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(rep.Body)
}

// =============================================================================
// HEALTH
// =============================================================================

// Health reports liveness, the export formats and the last period check.
// GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Time:    time.Now().UTC(),
		Formats: []string{report.FormatXLSX},
		Periods: h.Monitor.Status(),
	}
	if h.Exporter != nil {
		resp.Formats = h.Exporter.Formats()
	}
	if resp.Periods != nil && !resp.Periods.Ready {
		resp.Status = "degraded"
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// HELPERS
// =============================================================================

// decode fills dst from a JSON body or a form post. It writes the 400
// response itself and reports whether the handler should continue.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst formRequest) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	var err error
	switch mediaType {
	case "application/x-www-form-urlencoded":
		if err = r.ParseForm(); err == nil {
			err = dst.fromForm(r.PostForm)
		}
	case "multipart/form-data":
		if err = r.ParseMultipartForm(maxBodyBytes); err == nil {
			err = dst.fromForm(r.PostForm)
		}
	default:
		err = json.NewDecoder(r.Body).Decode(dst)
		if errors.Is(err, io.EOF) {
			err = errors.New("empty request body")
		}
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", "invalid_request", err)
		return false
	}
	return true
}

func (h *Handler) keyFromQuery(w http.ResponseWriter, r *http.Request) (engine.Key, bool) {
	q := r.URL.Query()
	k := engine.NewKey(q.Get("client_id"), q.Get("vendor_id"))
	var err error
	switch {
	case k.ClientID == "":
		err = &engine.ValidationError{Reason: engine.ReasonMissingField, Field: "client_id"}
	case k.VendorID == "":
		err = &engine.ValidationError{Reason: engine.ReasonMissingField, Field: "vendor_id"}
	}
	if err != nil {
		h.writeEngineError(w, err)
		return engine.Key{}, false
	}
	return k, true
}

// writeEngineError maps a typed engine error to its status and body.
func (h *Handler) writeEngineError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: err.Error(), Code: engine.ReasonOf(err)}
	status := http.StatusInternalServerError

	var (
		ve *engine.ValidationError
		ne *engine.NotFoundError
		se *engine.SchemaError
		ue *engine.UpstreamError
	)
	switch {
	case errors.As(err, &ve):
		status = http.StatusBadRequest
		details := map[string]any{}
		if ve.Field != "" {
			details["field"] = ve.Field
		}
		if ve.Factor != 0 {
			details["factor"] = ve.Factor
		}
		if len(details) > 0 {
			resp.Details = details
		}
	case errors.As(err, &ne):
		status = http.StatusNotFound
		if ne.Lookup != "" {
			resp.Details = map[string]any{"lookup": ne.Lookup}
		}
	case errors.As(err, &se):
		resp.Details = map[string]any{"table": se.Table, "missing": se.Missing}
	case errors.As(err, &ue):
		status = http.StatusBadGateway
		resp.Retryable = ue.Retryable
		if ue.Status != 0 {
			resp.Details = map[string]any{"upstream_status": ue.Status}
		}
	default:
		resp.Error = "Internal error"
		resp.Code = "internal"
		log.Printf("[API] internal error: %v", err)
	}

	h.Metrics.engineError(resp.Code)
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message, code string, err error) {
	resp := ErrorResponse{Error: message, Code: code}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// routeNotFound answers unknown API paths in the error format.
func routeNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, fmt.Sprintf("No route for %s %s", r.Method, r.URL.Path), "route_not_found", nil)
}
