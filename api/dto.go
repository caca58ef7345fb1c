/*
dto.go - Request and response bodies of the HTTP API

PURPOSE:
  Every POST endpoint accepts either a JSON body or an HTML form post
  (the representative's browser forms). Request types therefore know how
  to fill themselves from url.Values as well as from JSON.

NAMING CONVENTION:
  - *Request: Request bodies
  - *DTO:     Response types that differ from the engine types
  - *Response: Small response wrappers

  Engine types that already have the right JSON shape (AnalysisResult,
  AddedProduct, Snapshot) are returned as they are.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/warp/order-engine/engine"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// formRequest is implemented by request types that accept form posts.
type formRequest interface {
	fromForm(v url.Values) error
}

// FlexString accepts a JSON string or number. Quantities arrive both ways
// and the engine owns their validation.
type FlexString string

func (s *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = FlexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", b)
	}
	*s = FlexString(n.String())
	return nil
}

// KeyRequest identifies a client/vendor.
type KeyRequest struct {
	ClientID FlexString `json:"client_id"`
	VendorID FlexString `json:"vendor_id"`
}

func (k *KeyRequest) fromForm(v url.Values) error {
	k.ClientID = FlexString(v.Get("client_id"))
	k.VendorID = FlexString(v.Get("vendor_id"))
	return nil
}

// AnalyzeRequest is the body of POST /api/analyze.
type AnalyzeRequest struct {
	KeyRequest
}

// AddProductRequest is the body of POST /api/products.
type AddProductRequest struct {
	KeyRequest
	Category    string     `json:"category"`
	Description string     `json:"description"`
	Quantity    FlexString `json:"quantity"`
}

func (a *AddProductRequest) fromForm(v url.Values) error {
	_ = a.KeyRequest.fromForm(v)
	a.Category = v.Get("category")
	a.Description = v.Get("description")
	a.Quantity = FlexString(v.Get("quantity"))
	return nil
}

func (a *AddProductRequest) input() engine.AddProductInput {
	return engine.AddProductInput{
		ClientID:    string(a.ClientID),
		VendorID:    string(a.VendorID),
		Category:    a.Category,
		Description: a.Description,
		Quantity:    string(a.Quantity),
	}
}

// SaveOrderRequest is the body of POST /api/orders.
//
// As a form post, lines are parallel repeated fields: material_code,
// slot1 and slot2. Empty slots count as zero.
type SaveOrderRequest struct {
	KeyRequest
	Lines []engine.OrderLine `json:"lines"`
}

func (s *SaveOrderRequest) fromForm(v url.Values) error {
	_ = s.KeyRequest.fromForm(v)
	codes := v["material_code"]
	slot1, slot2 := v["slot1"], v["slot2"]
	s.Lines = make([]engine.OrderLine, 0, len(codes))
	for i, code := range codes {
		a, err := formInt(slot1, i)
		if err != nil {
			return fmt.Errorf("slot1[%d]: %w", i, err)
		}
		b, err := formInt(slot2, i)
		if err != nil {
			return fmt.Errorf("slot2[%d]: %w", i, err)
		}
		s.Lines = append(s.Lines, engine.OrderLine{MaterialCode: code, Slot1: a, Slot2: b})
	}
	return nil
}

func formInt(values []string, i int) (int, error) {
	if i >= len(values) || strings.TrimSpace(values[i]) == "" {
		return 0, nil
	}
	return strconv.Atoi(strings.TrimSpace(values[i]))
}

// ExportRequest is the body of POST /api/export.
type ExportRequest struct {
	KeyRequest
	Format string `json:"format"`
}

func (e *ExportRequest) fromForm(v url.Values) error {
	_ = e.KeyRequest.fromForm(v)
	e.Format = v.Get("format")
	return nil
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// ProductDTO is a catalog entry as listed by category.
type ProductDTO struct {
	Category        string `json:"category"`
	Description     string `json:"description"`
	MaterialCode    string `json:"material_code"`
	Presentation    string `json:"presentation"`
	PackagingFactor int    `json:"packaging_factor"`
	PackagingUnit   string `json:"packaging_unit"`
}

func toProductDTOs(entries []engine.CatalogEntry) []ProductDTO {
	out := make([]ProductDTO, len(entries))
	for i, e := range entries {
		out[i] = ProductDTO{
			Category:        e.Category,
			Description:     e.Description,
			MaterialCode:    e.MaterialCode,
			Presentation:    e.Presentation,
			PackagingFactor: e.PackagingFactor,
			PackagingUnit:   e.PackagingUnit,
		}
	}
	return out
}

// SaveOrderResponse is returned by POST /api/orders.
type SaveOrderResponse struct {
	SnapshotID string `json:"snapshot_id"`
}

// HealthResponse is returned by GET /api/health.
type HealthResponse struct {
	Status  string        `json:"status"`
	Time    time.Time     `json:"time"`
	Formats []string      `json:"formats"`
	Periods *PeriodStatus `json:"periods,omitempty"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Details   any    `json:"details,omitempty"`
	Retryable bool   `json:"retryable"`
}
