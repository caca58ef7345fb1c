package engine_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/order-engine/engine"
)

func TestOrderSnapshots_SaveThenLoad(t *testing.T) {
	f := newFixture(t, nil)
	f.snapshots.NewID = func() string { return "snap-1" }
	ctx := context.Background()

	id, err := f.snapshots.Save(ctx, "1001", "7", []engine.OrderLine{
		{MaterialCode: "M1", Slot1: 5, Slot2: 0},
		{MaterialCode: " M2 ", Slot1: 2, Slot2: 4},
	})
	require.NoError(t, err)
	assert.Equal(t, "snap-1", id)

	lines, err := f.snapshots.Load(ctx, "1001", "007")
	require.NoError(t, err)
	assert.Equal(t, map[string]engine.SnapshotLine{
		"M1": {Slot1: 5, Slot2: 0, Total: 5},
		"M2": {Slot1: 2, Slot2: 4, Total: 6},
	}, lines)

	snap, err := f.snapshots.Snapshot(ctx, "1001", "7")
	require.NoError(t, err)
	assert.Equal(t, "snap-1", snap.ID)
	assert.True(t, march2025.Equal(snap.SavedAt))
}

func TestOrderSnapshots_SecondSave_Overwrites(t *testing.T) {
	// GIVEN: A saved snapshot with M1 and M2
	// WHEN: Saving again with only M1
	// THEN: M2 is gone, not carried over

	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.snapshots.Save(ctx, "1001", "7", []engine.OrderLine{
		{MaterialCode: "M1", Slot1: 1, Slot2: 1},
		{MaterialCode: "M2", Slot1: 3, Slot2: 0},
	})
	require.NoError(t, err)
	second, err := f.snapshots.Save(ctx, "1001", "7", []engine.OrderLine{
		{MaterialCode: "M1", Slot1: 0, Slot2: 9},
	})
	require.NoError(t, err)

	snap, err := f.snapshots.Snapshot(ctx, "1001", "7")
	require.NoError(t, err)
	assert.Equal(t, second, snap.ID)
	assert.Equal(t, map[string]engine.SnapshotLine{"M1": {Slot1: 0, Slot2: 9, Total: 9}}, snap.Lines)
}

func TestOrderSnapshots_EmptySave_Clears(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.snapshots.Save(ctx, "1001", "7", []engine.OrderLine{{MaterialCode: "M1", Slot1: 1}})
	require.NoError(t, err)
	_, err = f.snapshots.Save(ctx, "1001", "7", nil)
	require.NoError(t, err)

	lines, err := f.snapshots.Load(ctx, "1001", "7")
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestOrderSnapshots_NeverSaved_LoadsEmpty(t *testing.T) {
	f := newFixture(t, nil)

	snap, err := f.snapshots.Snapshot(context.Background(), "1001", "7")

	require.NoError(t, err)
	assert.True(t, snap.Empty())
	assert.NotNil(t, snap.Lines)
	assert.Empty(t, snap.Lines)
}

func TestOrderSnapshots_Validation(t *testing.T) {
	tests := []struct {
		name   string
		client string
		vendor string
		lines  []engine.OrderLine
		reason string
	}{
		{"missing client", "", "7", nil, engine.ReasonMissingField},
		{"missing vendor", "1001", " ", nil, engine.ReasonMissingField},
		{"missing material", "1001", "7", []engine.OrderLine{{MaterialCode: " ", Slot1: 1}}, engine.ReasonMissingField},
		{"negative slot", "1001", "7", []engine.OrderLine{{MaterialCode: "M1", Slot2: -1}}, engine.ReasonInvalidQuantity},
		{"slot above bound", "1001", "7", []engine.OrderLine{{MaterialCode: "M1", Slot1: engine.MaxSlot + 1}}, engine.ReasonInvalidQuantity},
		{"huge slots", "1001", "7", []engine.OrderLine{{MaterialCode: "M1", Slot1: math.MaxInt, Slot2: math.MaxInt}}, engine.ReasonInvalidQuantity},
		{"duplicate material", "1001", "7", []engine.OrderLine{{MaterialCode: "M1"}, {MaterialCode: "M1 "}}, engine.ReasonDuplicateMaterial},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)

			_, err := f.snapshots.Save(context.Background(), tt.client, tt.vendor, tt.lines)

			requireReason(t, err, engine.ErrValidation, tt.reason)
			assert.Empty(t, f.mem.Names())
		})
	}
}

func TestOrderSnapshots_TableName(t *testing.T) {
	s := &engine.OrderSnapshots{}

	assert.Equal(t, "order_snapshots/1001_007.csv", s.TableName(engine.NewKey("1001", "7")))
	assert.Equal(t, "order_snapshots/a~2Fb_007.csv", s.TableName(engine.NewKey("a/b", "7")))
	assert.Equal(t, "order_snapshots/~2E~2E_00A.csv", s.TableName(engine.NewKey("..", " A")))
	assert.NotEqual(t,
		s.TableName(engine.NewKey("a_b", "7")),
		s.TableName(engine.NewKey("a", "b_7")),
	)
}
