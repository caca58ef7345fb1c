/*
ledger.go - Added-products ledger (merge-by-increment)

PURPOSE:
  A representative can add products that are not active this period to
  the running order. Those lines live in one ledger table for the whole
  system, keyed by (client, vendor, category, description).

CRITICAL INVARIANTS:
  1. ONE ROW PER KEY: a second add for the same key increments quantity,
     it never appends a duplicate row
  2. MULTIPLE OF FACTOR: quantity is always a positive multiple of the
     catalog packaging factor
  3. FAILED ADD WRITES NOTHING: every check runs before the ledger is
     rewritten

VALIDATION ORDER (first failure wins):
  1. All five inputs present           -> ValidationError missing_field
  2. Quantity is a positive integer    -> ValidationError invalid_quantity
  3. (category, description) resolves  -> NotFoundError no_matching_product
  4. Quantity % factor == 0            -> ValidationError quantity_not_multiple_of_factor

CONCURRENCY:
  Add is a read-modify-write of the whole table with no lock. Two
  concurrent adds can lose one increment.

SEE ALSO:
  - catalog.go: Source of the denormalized attributes
  - reconcile.go: Lists the ledger for a key
*/
package engine

import (
	"context"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
	"time"
)

// Ledger column names.
const (
	colClient       = "client_id"
	colVendor       = "vendor_id"
	colCategory     = "category"
	colDescription  = "description"
	colMaterial     = "material_code"
	colPresentation = "presentation"
	colUnit         = "packaging_unit"
	colFactor       = "packaging_factor"
	colQuantity     = "quantity"
	colUpdatedAt    = "updated_at"
)

// LedgerSchema is the fixed shape of the added-products table.
var LedgerSchema = Schema{
	Columns: []string{
		colClient, colVendor, colCategory, colDescription, colMaterial,
		colPresentation, colUnit, colFactor, colQuantity, colUpdatedAt,
	},
	Vendor:  colVendor,
	Numeric: []string{colFactor, colQuantity},
}

// AddedProduct is one ledger row.
type AddedProduct struct {
	ClientID        string    `json:"client_id"`
	VendorID        string    `json:"vendor_id"`
	Category        string    `json:"category"`
	Description     string    `json:"description"`
	MaterialCode    string    `json:"material_code"`
	Presentation    string    `json:"presentation"`
	PackagingUnit   string    `json:"packaging_unit"`
	PackagingFactor int       `json:"packaging_factor"`
	Quantity        int       `json:"quantity"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// AddProductInput carries the raw request values. Quantity is text so
// the ledger owns its parsing.
type AddProductInput struct {
	ClientID    string
	VendorID    string
	Category    string
	Description string
	Quantity    string
}

// AddedProducts is the merge-by-increment ledger.
type AddedProducts struct {
	Tables  *TabularStore
	Name    string
	Catalog *Catalog
	Clock   Clock
}

// Add validates the input and merges it into the ledger.
func (l *AddedProducts) Add(ctx context.Context, in AddProductInput) (AddedProduct, error) {
	clientID := NormalizeClient(in.ClientID)
	vendorID := NormalizeVendor(in.VendorID)
	category := strings.TrimSpace(in.Category)
	description := strings.TrimSpace(in.Description)
	rawQty := strings.TrimSpace(in.Quantity)

	for _, f := range []struct{ name, value string }{
		{"client_id", clientID},
		{"vendor_id", vendorID},
		{"category", category},
		{"description", description},
		{"quantity", rawQty},
	} {
		if f.value == "" {
			return AddedProduct{}, missingField(f.name)
		}
	}

	qty, err := strconv.Atoi(rawQty)
	if err != nil || qty <= 0 {
		return AddedProduct{}, &ValidationError{Reason: ReasonInvalidQuantity, Field: "quantity"}
	}

	matches, err := l.Catalog.FindEntries(ctx, category, description)
	if err != nil {
		return AddedProduct{}, err
	}
	if len(matches) != 1 {
		return AddedProduct{}, &NotFoundError{Reason: ReasonNoMatchingProduct, Lookup: category + " / " + description}
	}
	entry := matches[0]
	if entry.PackagingFactor < 1 {
		return AddedProduct{}, &SchemaError{Reason: ReasonInvalidPackagingFactor, Table: l.Catalog.Name, Missing: []string{entry.MaterialCode}}
	}
	if qty%entry.PackagingFactor != 0 {
		return AddedProduct{}, &ValidationError{Reason: ReasonNotMultiple, Field: "quantity", Factor: entry.PackagingFactor}
	}

	t, err := l.Tables.Load(ctx, l.Name, LedgerSchema)
	if err != nil {
		return AddedProduct{}, err
	}
	if missing := t.Missing(LedgerSchema.Columns...); len(missing) > 0 {
		return AddedProduct{}, &SchemaError{Reason: ReasonMissingColumns, Table: l.Name, Missing: missing}
	}

	now := l.Clock.now().UTC()
	stamp := now.Format(time.RFC3339)
	var rec AddedProduct
	row := l.find(t, clientID, vendorID, category, description)
	if row >= 0 {
		rec = addedFromRecord(t.Row(row))
		// The row keeps the factor it was created with.
		if rec.PackagingFactor >= 1 && qty%rec.PackagingFactor != 0 {
			return AddedProduct{}, &ValidationError{Reason: ReasonNotMultiple, Field: "quantity", Factor: rec.PackagingFactor}
		}
		if qty > math.MaxInt-rec.Quantity {
			return AddedProduct{}, &ValidationError{Reason: ReasonInvalidQuantity, Field: "quantity"}
		}
		rec.Quantity += qty
		rec.UpdatedAt = now
		t.Set(row, colQuantity, strconv.Itoa(rec.Quantity))
		t.Set(row, colUpdatedAt, stamp)
	} else {
		rec = AddedProduct{
			ClientID:        clientID,
			VendorID:        vendorID,
			Category:        category,
			Description:     description,
			MaterialCode:    entry.MaterialCode,
			Presentation:    entry.Presentation,
			PackagingUnit:   entry.PackagingUnit,
			PackagingFactor: entry.PackagingFactor,
			Quantity:        qty,
			UpdatedAt:       now,
		}
		t.Append(map[string]string{
			colClient:       rec.ClientID,
			colVendor:       rec.VendorID,
			colCategory:     rec.Category,
			colDescription:  rec.Description,
			colMaterial:     rec.MaterialCode,
			colPresentation: rec.Presentation,
			colUnit:         rec.PackagingUnit,
			colFactor:       strconv.Itoa(rec.PackagingFactor),
			colQuantity:     strconv.Itoa(rec.Quantity),
			colUpdatedAt:    stamp,
		})
	}

	if err := l.Tables.Save(ctx, l.Name, LedgerSchema, t); err != nil {
		return AddedProduct{}, fmt.Errorf("add product: %w", err)
	}
	log.Printf("[Ledger] %s/%s %q x%d -> %d", clientID, vendorID, description, qty, rec.Quantity)
	return rec, nil
}

// ListFor returns the ledger rows for one client/vendor, in ledger order.
func (l *AddedProducts) ListFor(ctx context.Context, clientID, vendorID string) ([]AddedProduct, error) {
	k := NewKey(clientID, vendorID)
	t, err := l.Tables.Load(ctx, l.Name, LedgerSchema)
	if err != nil {
		return nil, err
	}
	out := []AddedProduct{}
	for i := 0; i < t.Len(); i++ {
		r := t.Row(i)
		if NormalizeClient(r.Get(colClient)) == k.ClientID && r.Get(colVendor) == k.VendorID {
			out = append(out, addedFromRecord(r))
		}
	}
	return out, nil
}

func (l *AddedProducts) find(t *Table, clientID, vendorID, category, description string) int {
	for i := 0; i < t.Len(); i++ {
		r := t.Row(i)
		if r.Get(colClient) == clientID && r.Get(colVendor) == vendorID &&
			r.Get(colCategory) == category && r.Get(colDescription) == description {
			return i
		}
	}
	return -1
}

func addedFromRecord(r Record) AddedProduct {
	updated, _ := time.Parse(time.RFC3339, r.Get(colUpdatedAt))
	return AddedProduct{
		ClientID:        r.Get(colClient),
		VendorID:        r.Get(colVendor),
		Category:        r.Get(colCategory),
		Description:     r.Get(colDescription),
		MaterialCode:    r.Get(colMaterial),
		Presentation:    r.Get(colPresentation),
		PackagingUnit:   r.Get(colUnit),
		PackagingFactor: r.Int(colFactor),
		Quantity:        r.Int(colQuantity),
		UpdatedAt:       updated,
	}
}
