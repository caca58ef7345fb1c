/*
reconcile.go - Joins catalog, added products and order snapshot

PURPOSE:
  Analyze builds the one view a representative works from: the catalog
  rows of a client/vendor that are active this month, annotated with the
  saved order quantities, grouped by category, plus the products added by
  hand.

ALGORITHM:
  1. Normalize client and vendor with the same functions the tabular
     store applies to the catalog key columns
  2. Filter the catalog to the key        -> NotFoundError client_not_in_catalog
  3. Resolve the active period pair       -> SchemaError period_column_missing
  4. Keep rows with a nonzero current-period value
  5. Attach the snapshot line by material_code
  6. Group by category (sorted)
  7. Attach the added products for the key, unfiltered by period

KEY INSIGHT:
  A row with history last year but nothing this month is NOT active. The
  comparison column is informational only.

SEE ALSO:
  - period.go: Active period pair
  - snapshot.go, ledger.go: The two mutable stores joined here
*/
package engine

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ANALYSIS RESULT
// =============================================================================

// Header identifies the analysed client/vendor.
type Header struct {
	ClientID   string `json:"client_id"`
	VendorID   string `json:"vendor_id"`
	ClientName string `json:"client_name,omitempty"`
}

// LineItem is one active catalog row with its saved order quantities.
type LineItem struct {
	CatalogEntry
	Current       decimal.Decimal `json:"current"`
	Comparison    decimal.Decimal `json:"comparison"`
	Slot1         int             `json:"slot1"`
	Slot2         int             `json:"slot2"`
	Total         int             `json:"total"`
	HasSavedOrder bool            `json:"has_saved_order"`
}

// CategoryGroup holds the active items of one category in catalog order.
type CategoryGroup struct {
	Category string     `json:"category"`
	Items    []LineItem `json:"items"`
}

// AnalysisResult is the reconciled view of one client/vendor. It is built
// per request and never persisted.
type AnalysisResult struct {
	Header        Header          `json:"header"`
	Periods       ActivePair      `json:"periods"`
	Groups        []CategoryGroup `json:"groups"`
	Categories    []string        `json:"categories"`
	SnapshotID    string          `json:"snapshot_id,omitempty"`
	SavedAt       *time.Time      `json:"saved_at,omitempty"`
	AddedProducts []AddedProduct  `json:"added_products"`
}

// Items returns every line item across groups.
func (r *AnalysisResult) Items() []LineItem {
	var out []LineItem
	for _, g := range r.Groups {
		out = append(out, g.Items...)
	}
	return out
}

// =============================================================================
// RECONCILER
// =============================================================================

// Reconciler runs Analyze over the three stores.
type Reconciler struct {
	Catalog       *Catalog
	AddedProducts *AddedProducts
	Snapshots     *OrderSnapshots
	Clock         Clock
}

// Analyze returns the reconciled view for one client/vendor.
func (r *Reconciler) Analyze(ctx context.Context, clientID, vendorID string) (*AnalysisResult, error) {
	k := NewKey(clientID, vendorID)
	if k.ClientID == "" {
		return nil, missingField("client_id")
	}
	if k.VendorID == "" {
		return nil, missingField("vendor_id")
	}

	view, err := r.Catalog.Load(ctx)
	if err != nil {
		return nil, err
	}
	rows := view.For(k)
	if len(rows) == 0 {
		return nil, &NotFoundError{Reason: ReasonClientNotInCatalog, Lookup: k.String()}
	}

	pair, err := r.Catalog.Periods.ActivePair(r.Clock.now(), view.Columns(), view.Table)
	if err != nil {
		return nil, err
	}

	snap, err := r.Snapshots.Snapshot(ctx, k.ClientID, k.VendorID)
	if err != nil {
		return nil, err
	}
	added, err := r.AddedProducts.ListFor(ctx, k.ClientID, k.VendorID)
	if err != nil {
		return nil, err
	}

	res := &AnalysisResult{
		Header:        Header{ClientID: k.ClientID, VendorID: k.VendorID, ClientName: rows[0].Name},
		Periods:       pair,
		Groups:        []CategoryGroup{},
		Categories:    []string{},
		AddedProducts: added,
	}
	if !snap.Empty() {
		res.SnapshotID = snap.ID
		saved := snap.SavedAt
		res.SavedAt = &saved
	}

	groups := make(map[string][]LineItem)
	for _, e := range rows {
		current := e.Period(pair.CurrentColumn)
		if current.IsZero() {
			continue
		}
		item := LineItem{
			CatalogEntry: e,
			Current:      current,
			Comparison:   e.Period(pair.ComparisonColumn),
		}
		item.Periods = nil
		if line, ok := snap.Lines[e.MaterialCode]; ok {
			item.Slot1, item.Slot2, item.Total = line.Slot1, line.Slot2, line.Total
			item.HasSavedOrder = true
		}
		groups[e.Category] = append(groups[e.Category], item)
	}

	for cat := range groups {
		res.Categories = append(res.Categories, cat)
	}
	sort.Strings(res.Categories)
	for _, cat := range res.Categories {
		res.Groups = append(res.Groups, CategoryGroup{Category: cat, Items: groups[cat]})
	}

	log.Printf("[Analyze] %s: %d active items in %d categories (%s vs %s)",
		k, len(res.Items()), len(res.Categories), pair.CurrentColumn, pair.ComparisonColumn)
	return res, nil
}
