/*
table.go - Tabular store: load, normalize and save flat tables

PURPOSE:
  Every persisted table (catalog, added-products ledger, order snapshots)
  is a flat grid of cells with a header row. This file defines the grid,
  the Backend interface that reads and writes grids by name, and the
  TabularStore that applies normalization exactly once at that boundary.

NORMALIZATION (applied on every Load and every Save):
  1. Header names are trimmed
  2. Every cell is trimmed
  3. The schema's vendor column is zero-padded to VendorWidth
  4. Numeric columns are coerced to canonical decimal text; invalid or
     missing values become "0" and never abort the load
  5. Ragged rows are padded (or cut) to the header width

  Normalization is idempotent: a normalized table normalizes to itself.

ABSENT TABLES:
  A Backend returns ErrTableNotExist for a name with no backing file.
  TabularStore.Load turns that into an empty table with the schema's
  fixed columns.

IMPLEMENTATIONS:
  - engine/store/memory.go: In-memory backend for tests
  - store/flatfile: Delimited text files with atomic replace
  - store/xlsx: Excel workbooks

SEE ALSO:
  - catalog.go, ledger.go, snapshot.go: The three tables built on this
*/
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// TABLE - Header row plus positional rows
// =============================================================================

// Table is an in-memory flat table.
type Table struct {
	Columns []string
	Rows    [][]string

	index map[string]int
}

// NewTable returns an empty table with the given columns.
func NewTable(columns ...string) *Table {
	t := &Table{Columns: append([]string(nil), columns...)}
	t.reindex()
	return t
}

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.Columns))
	for i, c := range t.Columns {
		if _, dup := t.index[c]; !dup {
			t.index[c] = i
		}
	}
}

func (t *Table) col(name string) (int, bool) {
	if t.index == nil {
		t.reindex()
	}
	i, ok := t.index[name]
	return i, ok
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// Has reports whether the table has the named column.
func (t *Table) Has(column string) bool {
	_, ok := t.col(column)
	return ok
}

// Missing returns the columns from want that the table lacks, in order.
func (t *Table) Missing(want ...string) []string {
	var missing []string
	for _, c := range want {
		if !t.Has(c) {
			missing = append(missing, c)
		}
	}
	return missing
}

// Row returns a read view of row i.
func (t *Table) Row(i int) Record {
	return Record{t: t, i: i}
}

// Append adds a row from column values. Unknown columns are ignored and
// absent columns are left empty.
func (t *Table) Append(values map[string]string) {
	row := make([]string, len(t.Columns))
	for c, v := range values {
		if i, ok := t.col(c); ok {
			row[i] = v
		}
	}
	t.Rows = append(t.Rows, row)
}

// Set overwrites one cell. Unknown columns are ignored.
func (t *Table) Set(row int, column, value string) {
	if i, ok := t.col(column); ok {
		t.Rows[row][i] = value
	}
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	c := &Table{
		Columns: append([]string(nil), t.Columns...),
		Rows:    make([][]string, len(t.Rows)),
	}
	for i, r := range t.Rows {
		c.Rows[i] = append([]string(nil), r...)
	}
	c.reindex()
	return c
}

// Record is a read view of one row.
type Record struct {
	t *Table
	i int
}

// Get returns the cell in column, or "" if the column is absent.
func (r Record) Get(column string) string {
	j, ok := r.t.col(column)
	if !ok || j >= len(r.t.Rows[r.i]) {
		return ""
	}
	return r.t.Rows[r.i][j]
}

// Decimal returns the cell parsed as a decimal, zero when unparseable.
func (r Record) Decimal(column string) decimal.Decimal {
	return parseDecimal(r.Get(column))
}

// Int returns the integer part of the cell, zero when unparseable.
func (r Record) Int(column string) int {
	return int(r.Decimal(column).IntPart())
}

// =============================================================================
// SCHEMA - What a caller expects of a table
// =============================================================================

// Schema describes the fixed shape and normalization rules of one table.
type Schema struct {
	// Columns is the column set of an absent table.
	Columns []string

	// Vendor names the column holding vendor ids, if any.
	Vendor string

	// Numeric lists columns coerced to decimal text.
	Numeric []string

	// IsNumeric marks further numeric columns by name (period columns).
	IsNumeric func(column string) bool
}

func (s Schema) numeric(column string) bool {
	for _, c := range s.Numeric {
		if c == column {
			return true
		}
	}
	return s.IsNumeric != nil && s.IsNumeric(column)
}

// Normalize applies the schema's normalization rules in place.
func (s Schema) Normalize(t *Table) {
	for i, c := range t.Columns {
		t.Columns[i] = strings.TrimSpace(c)
	}
	t.reindex()

	numeric := make([]bool, len(t.Columns))
	for i, c := range t.Columns {
		numeric[i] = s.numeric(c)
	}
	vendor := -1
	if s.Vendor != "" {
		if i, ok := t.col(s.Vendor); ok {
			vendor = i
		}
	}

	width := len(t.Columns)
	for r, row := range t.Rows {
		if len(row) != width {
			fixed := make([]string, width)
			copy(fixed, row)
			row = fixed
			t.Rows[r] = row
		}
		for i, v := range row {
			v = strings.TrimSpace(v)
			switch {
			case i == vendor:
				v = NormalizeVendor(v)
			case numeric[i]:
				v = parseDecimal(v).String()
			}
			row[i] = v
		}
	}
}

// parseDecimal is the forgiving numeric parse: anything that is not a
// number is zero.
func parseDecimal(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// =============================================================================
// BACKEND + TABULAR STORE
// =============================================================================

// Backend reads and writes raw tables by name.
type Backend interface {
	// Read returns the named table, or ErrTableNotExist.
	Read(ctx context.Context, name string) (*Table, error)

	// Write replaces the named table in full. Implementations must not
	// leave a partially written table behind on failure.
	Write(ctx context.Context, name string, t *Table) error
}

// TabularStore normalizes tables on their way in and out of a Backend.
type TabularStore struct {
	Backend Backend
}

// NewTabularStore wraps a backend.
func NewTabularStore(b Backend) *TabularStore {
	return &TabularStore{Backend: b}
}

// Load reads and normalizes the named table. An absent table, or one with
// neither header nor rows (a zero-byte file), loads as an empty table with
// schema.Columns.
func (s *TabularStore) Load(ctx context.Context, name string, schema Schema) (*Table, error) {
	t, err := s.Backend.Read(ctx, name)
	if errors.Is(err, ErrTableNotExist) {
		return NewTable(schema.Columns...), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	if len(t.Columns) == 0 && len(t.Rows) == 0 {
		return NewTable(schema.Columns...), nil
	}
	schema.Normalize(t)
	return t, nil
}

// Save normalizes and writes the table, replacing prior content.
func (s *TabularStore) Save(ctx context.Context, name string, schema Schema, t *Table) error {
	out := t.Clone()
	schema.Normalize(out)
	if err := s.Backend.Write(ctx, name, out); err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	return nil
}
