package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/order-engine/engine"
)

func TestAnalyze_SavedOrderScenario(t *testing.T) {
	// GIVEN: Client 1001, vendor 7 (stored as 007), one Adhesives line M1
	//        with 12 in the current period
	// WHEN: Analyzing, saving slot1=5 for M1, analyzing again
	// THEN: The line shows no saved order first, then has_saved_order with total 5

	f := newFixture(t, catalogTable(
		row("1001", "007", "Adhesives", "M1", "Glue", "6", "0", "12"),
	))
	ctx := context.Background()

	res, err := f.reconciler.Analyze(ctx, "1001", "7")
	require.NoError(t, err)
	require.Len(t, res.Groups, 1)
	assert.Equal(t, "Adhesives", res.Groups[0].Category)
	require.Len(t, res.Groups[0].Items, 1)
	item := res.Groups[0].Items[0]
	assert.Equal(t, "M1", item.MaterialCode)
	assert.True(t, item.Current.Equal(decimalOf(12)))
	assert.False(t, item.HasSavedOrder)
	assert.Empty(t, res.SnapshotID)
	assert.Nil(t, res.SavedAt)

	_, err = f.snapshots.Save(ctx, "1001", "007", []engine.OrderLine{{MaterialCode: "M1", Slot1: 5, Slot2: 0}})
	require.NoError(t, err)

	res, err = f.reconciler.Analyze(ctx, "1001", "7")
	require.NoError(t, err)
	item = res.Groups[0].Items[0]
	assert.True(t, item.HasSavedOrder)
	assert.Equal(t, 5, item.Slot1)
	assert.Equal(t, 5, item.Total)
	assert.NotEmpty(t, res.SnapshotID)
	require.NotNil(t, res.SavedAt)
}

func TestAnalyze_ActiveFilter(t *testing.T) {
	// GIVEN: Rows with current value, with only a prior value, and with junk
	// WHEN: Analyzing
	// THEN: Only nonzero current rows appear, each in exactly one group

	f := newFixture(t, catalogTable(
		row("1001", "7", "Paint", "P1", "Red", "1", "0", "4"),
		row("1001", "7", "Paint", "P2", "Blue", "1", "9", "0"),
		row("1001", "7", "Adhesives", "M1", "Glue", "6", "5", "12"),
		row("1001", "7", "Adhesives", "M2", "Tape", "1", "1", "n/a"),
		row("1001", "7", "Tools", "T1", "Saw", "1", "0", ""),
		row("1002", "7", "Paint", "P3", "Green", "1", "0", "8"),
	))

	res, err := f.reconciler.Analyze(context.Background(), "1001", "7")
	require.NoError(t, err)

	assert.Equal(t, []string{"Adhesives", "Paint"}, res.Categories)
	require.Len(t, res.Groups, 2)
	assert.Equal(t, "Adhesives", res.Groups[0].Category)
	assert.Equal(t, "Paint", res.Groups[1].Category)

	seen := map[string]int{}
	for _, it := range res.Items() {
		seen[it.MaterialCode]++
	}
	assert.Equal(t, map[string]int{"P1": 1, "M1": 1}, seen)

	glue := res.Groups[0].Items[0]
	assert.True(t, glue.Comparison.Equal(decimalOf(5)))
	assert.Equal(t, "Marzo 25", res.Periods.CurrentColumn)
	assert.Equal(t, "Marzo 24", res.Periods.ComparisonColumn)
	assert.Equal(t, "Ferreteria 1001", res.Header.ClientName)
	assert.Equal(t, "007", res.Header.VendorID)
}

func TestAnalyze_ItemsKeepCatalogOrderWithinGroup(t *testing.T) {
	f := newFixture(t, catalogTable(
		row("1001", "7", "Paint", "P9", "Zinc", "1", "0", "1"),
		row("1001", "7", "Paint", "P1", "Acrylic", "1", "0", "1"),
	))

	res, err := f.reconciler.Analyze(context.Background(), "1001", "7")
	require.NoError(t, err)

	items := res.Groups[0].Items
	require.Len(t, items, 2)
	assert.Equal(t, "P9", items[0].MaterialCode)
	assert.Equal(t, "P1", items[1].MaterialCode)
}

func TestAnalyze_NothingActive_EmptyGroups(t *testing.T) {
	f := newFixture(t, catalogTable(
		row("1001", "7", "Paint", "P2", "Blue", "1", "9", "0"),
	))

	res, err := f.reconciler.Analyze(context.Background(), "1001", "7")

	require.NoError(t, err)
	assert.Empty(t, res.Groups)
	assert.Empty(t, res.Categories)
}

func TestAnalyze_AttachesAddedProductsUnfiltered(t *testing.T) {
	// GIVEN: Red has nothing this month but was added by hand
	f := newFixture(t, catalogTable(
		row("1001", "7", "Paint", "P1", "Red", "1", "3", "0"),
		row("1001", "7", "Adhesives", "M1", "Glue", "6", "0", "12"),
	))
	ctx := context.Background()
	_, err := f.ledger.Add(ctx, engine.AddProductInput{
		ClientID: "1001", VendorID: "7", Category: "Paint", Description: "Red", Quantity: "2",
	})
	require.NoError(t, err)

	res, err := f.reconciler.Analyze(ctx, "1001", "007")
	require.NoError(t, err)

	assert.Equal(t, []string{"Adhesives"}, res.Categories)
	require.Len(t, res.AddedProducts, 1)
	assert.Equal(t, "P1", res.AddedProducts[0].MaterialCode)
	assert.Equal(t, 2, res.AddedProducts[0].Quantity)
}

func TestAnalyze_Errors(t *testing.T) {
	catalog := catalogTable(row("1001", "7", "Paint", "P1", "Red", "1", "0", "4"))
	ctx := context.Background()

	t.Run("missing client", func(t *testing.T) {
		f := newFixture(t, catalog)
		_, err := f.reconciler.Analyze(ctx, " ", "7")
		requireReason(t, err, engine.ErrValidation, engine.ReasonMissingField)
	})

	t.Run("client not in catalog", func(t *testing.T) {
		f := newFixture(t, catalog)
		_, err := f.reconciler.Analyze(ctx, "1001", "8")
		requireReason(t, err, engine.ErrNotFound, engine.ReasonClientNotInCatalog)
	})

	t.Run("current period column missing", func(t *testing.T) {
		// The catalog only covers 2024-2025; in March 2027 nothing is inferred.
		f := newFixture(t, catalog)
		f.reconciler.Clock = engine.FixedClock(time.Date(2027, time.March, 1, 0, 0, 0, 0, time.UTC))
		_, err := f.reconciler.Analyze(ctx, "1001", "7")
		requireReason(t, err, engine.ErrSchema, engine.ReasonPeriodColumnMissing)
	})

	t.Run("schema checked before key", func(t *testing.T) {
		tbl := engine.NewTable("client_id", "vendor_id")
		f := newFixture(t, tbl)
		_, err := f.reconciler.Analyze(ctx, "9999", "7")
		requireReason(t, err, engine.ErrSchema, engine.ReasonMissingColumns)
	})
}
