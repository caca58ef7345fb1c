package engine_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/warp/order-engine/engine"
	"github.com/warp/order-engine/engine/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

const (
	catalogName = "catalog.csv"
	ledgerName  = "added_products.csv"
)

// march2025 is the clock every engine test runs at unless it says otherwise.
var march2025 = time.Date(2025, time.March, 15, 10, 30, 0, 0, time.UTC)

var catalogHeader = []string{
	"client_id", "vendor_id", "name", "category", "material_code", "description",
	"packaging_factor", "presentation", "packaging_unit", "Marzo 24", "Marzo 25",
}

// catalogTable builds a catalog with the default headers and the
// Marzo 24 / Marzo 25 period columns.
func catalogTable(rows ...[]string) *engine.Table {
	t := engine.NewTable(catalogHeader...)
	for _, r := range rows {
		t.Rows = append(t.Rows, append([]string(nil), r...))
	}
	return t
}

// row is a catalog row: client, vendor, category, material, description,
// factor, prior value, current value.
func row(client, vendor, category, material, description, factor, prior, current string) []string {
	return []string{client, vendor, "Ferreteria " + client, category, material, description, factor, "Caja", "UN", prior, current}
}

type fixture struct {
	mem        *store.Memory
	catalog    *engine.Catalog
	ledger     *engine.AddedProducts
	snapshots  *engine.OrderSnapshots
	reconciler *engine.Reconciler
}

func newFixture(t *testing.T, catalog *engine.Table) *fixture {
	t.Helper()

	scheme, err := engine.NewPeriodScheme("es-month-yy")
	require.NoError(t, err)

	mem := store.NewMemory()
	if catalog != nil {
		mem.Put(catalogName, catalog)
	}
	tables := engine.NewTabularStore(mem)
	clock := engine.FixedClock(march2025)

	f := &fixture{mem: mem}
	f.catalog = &engine.Catalog{
		Tables:  tables,
		Name:    catalogName,
		Columns: engine.DefaultCatalogColumns(),
		Periods: scheme,
	}
	f.ledger = &engine.AddedProducts{Tables: tables, Name: ledgerName, Catalog: f.catalog, Clock: clock}
	f.snapshots = &engine.OrderSnapshots{Tables: tables, Clock: clock}
	f.reconciler = &engine.Reconciler{
		Catalog:       f.catalog,
		AddedProducts: f.ledger,
		Snapshots:     f.snapshots,
		Clock:         clock,
	}
	return f
}

func requireReason(t *testing.T, err error, sentinel error, reason string) {
	t.Helper()
	require.Error(t, err)
	require.True(t, errors.Is(err, sentinel), "expected %v, got %v", sentinel, err)
	require.Equal(t, reason, engine.ReasonOf(err))
}

func decimalOf(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}
