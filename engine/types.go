/*
Package engine provides the catalog/order reconciliation engine.

PURPOSE:
  A sales representative works from a client's historical purchase catalog.
  This package loads that catalog, the ledger of manually added products and
  the per-client order snapshots, and merges them into one consistent view
  for the current reporting period.

KEY CONCEPTS IN THIS FILE (types.go):
  - Key: the (client, vendor) pair every store is partitioned by
  - NormalizeClient / NormalizeVendor: the single place ids are canonicalized
  - Clock: injectable time source for period detection and timestamps

DESIGN PRINCIPLES:
  1. Normalize once: ids and cells are canonicalized at the table boundary
  2. No hidden state: every operation reloads the tables it touches
  3. Typed failures: every error carries a reason code (errors.go)

SEE ALSO:
  - table.go: Tabular store and normalization
  - reconcile.go: The Analyze operation
*/
package engine

import (
	"strconv"
	"strings"
	"time"
)

// VendorWidth is the fixed width vendor ids are zero-padded to.
const VendorWidth = 3

// Key identifies one client/vendor pair.
type Key struct {
	ClientID string `json:"client_id"`
	VendorID string `json:"vendor_id"`
}

// NewKey builds a normalized key.
func NewKey(clientID, vendorID string) Key {
	return Key{ClientID: NormalizeClient(clientID), VendorID: NormalizeVendor(vendorID)}
}

// IsZero reports whether either half of the key is empty.
func (k Key) IsZero() bool {
	return k.ClientID == "" || k.VendorID == ""
}

func (k Key) String() string {
	return k.ClientID + "/" + k.VendorID
}

// NormalizeClient trims surrounding whitespace.
func NormalizeClient(id string) string {
	return strings.TrimSpace(id)
}

// NormalizeVendor trims and zero-pads a vendor id to VendorWidth.
// Digit-only ids are re-padded from their integer value so "7", "07" and
// "0007" all become "007". Spreadsheet floats such as "7.0" count as
// digit-only. Other ids are left-padded with zeros.
// An empty id stays empty.
func NormalizeVendor(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	if whole, frac, ok := strings.Cut(id, "."); ok && isDigits(whole) && strings.Trim(frac, "0") == "" {
		id = whole
	}
	if isDigits(id) {
		if n, err := strconv.ParseUint(id, 10, 64); err == nil {
			id = strconv.FormatUint(n, 10)
		}
	}
	if len(id) < VendorWidth {
		id = strings.Repeat("0", VendorWidth-len(id)) + id
	}
	return id
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// Clock returns the current time. Tests substitute a fixed clock.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}

// FixedClock returns a Clock that always reports t.
func FixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}
