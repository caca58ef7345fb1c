/*
catalog.go - Read-only master product catalog

PURPOSE:
  The catalog is the historical purchase list per client/vendor: one row
  per product line with its packaging attributes and one numeric column
  per historical month. It is never written by this service and is
  reloaded on every call.

REQUIRED COLUMNS:
  client, vendor, category, material, description, packaging factor,
  presentation, packaging unit. A load that lacks any of them fails with
  a missing_columns SchemaError naming them, before any filtering.

DEDUPLICATION:
  The same (category, description) can appear on several rows with
  different historical formatting. Lookups by that pair keep the first
  occurrence; factor, material, presentation and unit are taken as
  invariant per pair.

SEE ALSO:
  - period.go: Which columns are period columns
  - ledger.go: Resolves added products against the catalog
*/
package engine

import (
	"context"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// CatalogColumns maps catalog fields to header names in the source file.
type CatalogColumns struct {
	Client       string `yaml:"client"`
	Vendor       string `yaml:"vendor"`
	Name         string `yaml:"name"`
	Category     string `yaml:"category"`
	Material     string `yaml:"material"`
	Description  string `yaml:"description"`
	Factor       string `yaml:"packaging_factor"`
	Presentation string `yaml:"presentation"`
	Unit         string `yaml:"packaging_unit"`
}

// DefaultCatalogColumns returns the snake_case header names.
func DefaultCatalogColumns() CatalogColumns {
	return CatalogColumns{
		Client:       "client_id",
		Vendor:       "vendor_id",
		Name:         "name",
		Category:     "category",
		Material:     "material_code",
		Description:  "description",
		Factor:       "packaging_factor",
		Presentation: "presentation",
		Unit:         "packaging_unit",
	}
}

// WithDefaults fills empty names from DefaultCatalogColumns.
func (c CatalogColumns) WithDefaults() CatalogColumns {
	d := DefaultCatalogColumns()
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	fill(&c.Client, d.Client)
	fill(&c.Vendor, d.Vendor)
	fill(&c.Name, d.Name)
	fill(&c.Category, d.Category)
	fill(&c.Material, d.Material)
	fill(&c.Description, d.Description)
	fill(&c.Factor, d.Factor)
	fill(&c.Presentation, d.Presentation)
	fill(&c.Unit, d.Unit)
	return c
}

func (c CatalogColumns) required() []string {
	return []string{c.Material, c.Description, c.Presentation, c.Factor, c.Unit, c.Category, c.Client, c.Vendor}
}

// CatalogEntry is one catalog row.
type CatalogEntry struct {
	ClientID        string                     `json:"client_id"`
	VendorID        string                     `json:"vendor_id"`
	Name            string                     `json:"name,omitempty"`
	Category        string                     `json:"category"`
	MaterialCode    string                     `json:"material_code"`
	Description     string                     `json:"description"`
	PackagingFactor int                        `json:"packaging_factor"`
	Presentation    string                     `json:"presentation"`
	PackagingUnit   string                     `json:"packaging_unit"`
	Periods         map[string]decimal.Decimal `json:"periods,omitempty"`
}

// Period returns the value of a period column, zero if absent.
func (e CatalogEntry) Period(column string) decimal.Decimal {
	return e.Periods[column]
}

// Catalog reads the master product list from a tabular store.
type Catalog struct {
	Tables  *TabularStore
	Name    string
	Columns CatalogColumns
	Periods PeriodScheme
}

func (c *Catalog) schema() Schema {
	return Schema{
		Vendor:    c.Columns.Vendor,
		Numeric:   []string{c.Columns.Factor},
		IsNumeric: c.Periods.IsPeriod,
	}
}

// Load reads the catalog and checks its required columns.
func (c *Catalog) Load(ctx context.Context) (*CatalogView, error) {
	t, err := c.Tables.Load(ctx, c.Name, c.schema())
	if err != nil {
		return nil, err
	}
	if missing := t.Missing(c.Columns.required()...); len(missing) > 0 {
		return nil, &SchemaError{Reason: ReasonMissingColumns, Table: c.Name, Missing: missing}
	}

	cols := c.Columns
	periods := c.Periods.Columns(t.Columns)
	entries := make([]CatalogEntry, t.Len())
	for i := range entries {
		r := t.Row(i)
		e := CatalogEntry{
			ClientID:        NormalizeClient(r.Get(cols.Client)),
			VendorID:        r.Get(cols.Vendor),
			Name:            r.Get(cols.Name),
			Category:        r.Get(cols.Category),
			MaterialCode:    r.Get(cols.Material),
			Description:     r.Get(cols.Description),
			PackagingFactor: r.Int(cols.Factor),
			Presentation:    r.Get(cols.Presentation),
			PackagingUnit:   r.Get(cols.Unit),
			Periods:         make(map[string]decimal.Decimal, len(periods)),
		}
		for _, p := range periods {
			e.Periods[p] = r.Decimal(p)
		}
		entries[i] = e
	}
	return &CatalogView{Table: c.Name, entries: entries, columns: t.Columns, periods: periods}, nil
}

// EntriesFor returns the rows for one client/vendor.
func (c *Catalog) EntriesFor(ctx context.Context, clientID, vendorID string) ([]CatalogEntry, error) {
	v, err := c.Load(ctx)
	if err != nil {
		return nil, err
	}
	return v.For(NewKey(clientID, vendorID)), nil
}

// FindEntries returns the deduplicated rows for (category, description).
func (c *Catalog) FindEntries(ctx context.Context, category, description string) ([]CatalogEntry, error) {
	v, err := c.Load(ctx)
	if err != nil {
		return nil, err
	}
	return v.Find(category, description), nil
}

// Categories returns the sorted distinct categories.
func (c *Catalog) Categories(ctx context.Context) ([]string, error) {
	v, err := c.Load(ctx)
	if err != nil {
		return nil, err
	}
	return v.Categories(), nil
}

// PeriodColumns returns the period columns in table order.
func (c *Catalog) PeriodColumns(ctx context.Context) ([]string, error) {
	v, err := c.Load(ctx)
	if err != nil {
		return nil, err
	}
	return v.PeriodColumns(), nil
}

// ProductsByCategory returns one entry per distinct description in the
// category, in first-seen order.
func (c *Catalog) ProductsByCategory(ctx context.Context, category string) ([]CatalogEntry, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		return nil, missingField("category")
	}
	v, err := c.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := v.InCategory(category)
	if len(out) == 0 {
		return nil, &NotFoundError{Reason: ReasonNoProductsForCategory, Lookup: category}
	}
	return out, nil
}

// =============================================================================
// CATALOG VIEW - One loaded copy of the catalog
// =============================================================================

// CatalogView is the catalog as loaded for a single operation.
type CatalogView struct {
	Table   string
	entries []CatalogEntry
	columns []string
	periods []string
}

// Entries returns every row.
func (v *CatalogView) Entries() []CatalogEntry { return v.entries }

// Columns returns the normalized header.
func (v *CatalogView) Columns() []string { return v.columns }

// PeriodColumns returns the period columns in table order.
func (v *CatalogView) PeriodColumns() []string { return v.periods }

// For returns the rows matching the key, in catalog order.
func (v *CatalogView) For(k Key) []CatalogEntry {
	var out []CatalogEntry
	for _, e := range v.entries {
		if e.ClientID == k.ClientID && e.VendorID == k.VendorID {
			out = append(out, e)
		}
	}
	return out
}

// Find returns at most one entry per (category, description): the first.
func (v *CatalogView) Find(category, description string) []CatalogEntry {
	category, description = strings.TrimSpace(category), strings.TrimSpace(description)
	for _, e := range v.entries {
		if e.Category == category && e.Description == description {
			return []CatalogEntry{e}
		}
	}
	return nil
}

// InCategory returns the first entry of each description in the category.
func (v *CatalogView) InCategory(category string) []CatalogEntry {
	seen := make(map[string]bool)
	var out []CatalogEntry
	for _, e := range v.entries {
		if e.Category != category || e.Description == "" || seen[e.Description] {
			continue
		}
		seen[e.Description] = true
		out = append(out, e)
	}
	return out
}

// Categories returns the sorted distinct non-empty categories.
func (v *CatalogView) Categories() []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range v.entries {
		if e.Category != "" && !seen[e.Category] {
			seen[e.Category] = true
			out = append(out, e.Category)
		}
	}
	sort.Strings(out)
	return out
}
