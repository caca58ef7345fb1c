package engine

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ORDER SNAPSHOT - Saved order quantities for one client/vendor
// =============================================================================

// Snapshot column names.
const (
	colSlot1      = "slot1"
	colSlot2      = "slot2"
	colTotal      = "total"
	colSavedAt    = "saved_at"
	colSnapshotID = "snapshot_id"
)

// MaxSlot bounds each order slot so slot1 + slot2 always fits an int.
const MaxSlot = 1_000_000_000

// SnapshotSchema is the fixed shape of one snapshot table.
var SnapshotSchema = Schema{
	Columns: []string{colClient, colVendor, colMaterial, colSlot1, colSlot2, colTotal, colSavedAt, colSnapshotID},
	Vendor:  colVendor,
	Numeric: []string{colSlot1, colSlot2, colTotal},
}

// OrderLine is one line of a save request.
type OrderLine struct {
	MaterialCode string `json:"material_code"`
	Slot1        int    `json:"slot1"`
	Slot2        int    `json:"slot2"`
}

// SnapshotLine is a saved line. Total is always Slot1 + Slot2.
type SnapshotLine struct {
	Slot1 int `json:"slot1"`
	Slot2 int `json:"slot2"`
	Total int `json:"total"`
}

// Snapshot is the current saved order of one client/vendor.
type Snapshot struct {
	Key     Key                     `json:"key"`
	ID      string                  `json:"snapshot_id,omitempty"`
	SavedAt time.Time               `json:"saved_at,omitempty"`
	Lines   map[string]SnapshotLine `json:"lines"`
}

// Empty reports whether nothing has been saved for the key.
func (s Snapshot) Empty() bool { return s.ID == "" }

// OrderSnapshots stores one overwrite-on-save table per client/vendor.
//
// Save REPLACES the key's table. Omitting a material from a save drops
// its saved quantities; there is no partial update.
type OrderSnapshots struct {
	Tables *TabularStore
	Dir    string
	Clock  Clock
	NewID  func() string
}

// TableName returns the deterministic table name for a key.
func (s *OrderSnapshots) TableName(k Key) string {
	dir := s.Dir
	if dir == "" {
		dir = "order_snapshots"
	}
	return dir + "/" + escapeName(k.ClientID) + "_" + escapeName(k.VendorID) + ".csv"
}

// Save validates the lines and replaces the key's snapshot.
func (s *OrderSnapshots) Save(ctx context.Context, clientID, vendorID string, lines []OrderLine) (string, error) {
	k := NewKey(clientID, vendorID)
	if k.ClientID == "" {
		return "", missingField("client_id")
	}
	if k.VendorID == "" {
		return "", missingField("vendor_id")
	}

	seen := make(map[string]bool, len(lines))
	for i, ln := range lines {
		code := strings.TrimSpace(ln.MaterialCode)
		if code == "" {
			return "", missingField(fmt.Sprintf("lines[%d].material_code", i))
		}
		if ln.Slot1 < 0 || ln.Slot2 < 0 || ln.Slot1 > MaxSlot || ln.Slot2 > MaxSlot {
			return "", &ValidationError{Reason: ReasonInvalidQuantity, Field: code}
		}
		if seen[code] {
			return "", &ValidationError{Reason: ReasonDuplicateMaterial, Field: code}
		}
		seen[code] = true
	}

	id := s.newID()
	stamp := s.Clock.now().UTC().Format(time.RFC3339)
	t := NewTable(SnapshotSchema.Columns...)
	for _, ln := range lines {
		t.Append(map[string]string{
			colClient:     k.ClientID,
			colVendor:     k.VendorID,
			colMaterial:   strings.TrimSpace(ln.MaterialCode),
			colSlot1:      strconv.Itoa(ln.Slot1),
			colSlot2:      strconv.Itoa(ln.Slot2),
			colTotal:      strconv.Itoa(ln.Slot1 + ln.Slot2),
			colSavedAt:    stamp,
			colSnapshotID: id,
		})
	}

	name := s.TableName(k)
	if err := s.Tables.Save(ctx, name, SnapshotSchema, t); err != nil {
		return "", fmt.Errorf("save order snapshot: %w", err)
	}
	log.Printf("[Snapshot] %s saved %d lines as %s", k, len(lines), id)
	return id, nil
}

// Load returns material_code -> saved line for the key. A key that was
// never saved loads as an empty mapping.
func (s *OrderSnapshots) Load(ctx context.Context, clientID, vendorID string) (map[string]SnapshotLine, error) {
	snap, err := s.Snapshot(ctx, clientID, vendorID)
	if err != nil {
		return nil, err
	}
	return snap.Lines, nil
}

// Snapshot returns the saved lines with the id and time of the save.
func (s *OrderSnapshots) Snapshot(ctx context.Context, clientID, vendorID string) (Snapshot, error) {
	k := NewKey(clientID, vendorID)
	snap := Snapshot{Key: k, Lines: map[string]SnapshotLine{}}
	if k.IsZero() {
		return snap, nil
	}

	t, err := s.Tables.Load(ctx, s.TableName(k), SnapshotSchema)
	if err != nil {
		return Snapshot{}, err
	}
	for i := 0; i < t.Len(); i++ {
		r := t.Row(i)
		code := r.Get(colMaterial)
		if code == "" {
			continue
		}
		slot1, slot2 := r.Int(colSlot1), r.Int(colSlot2)
		snap.Lines[code] = SnapshotLine{Slot1: slot1, Slot2: slot2, Total: slot1 + slot2}
		if snap.ID == "" {
			snap.ID = r.Get(colSnapshotID)
			snap.SavedAt, _ = time.Parse(time.RFC3339, r.Get(colSavedAt))
		}
	}
	return snap, nil
}

func (s *OrderSnapshots) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

// escapeName keeps [A-Za-z0-9-] and hex-escapes everything else, so
// distinct ids never collide and never form a path.
func escapeName(id string) string {
	var b strings.Builder
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "~%02X", c)
		}
	}
	return b.String()
}
