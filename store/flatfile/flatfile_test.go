package flatfile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/warp/order-engine/engine"
)

func newStore(t *testing.T, opts Options) *Store {
	t.Helper()
	s, err := New(t.TempDir(), opts)
	require.NoError(t, err)
	return s
}

func sampleTable() *engine.Table {
	t := engine.NewTable("client_id", "vendor_id", "description", "quantity")
	t.Rows = [][]string{
		{"1001", "007", "Pegamento, 1L", "6"},
		{"1002", "012", `Cinta "doble" faz`, "12"},
	}
	return t
}

func TestStore_Absent_IsTableNotExist(t *testing.T) {
	s := newStore(t, Options{})

	_, err := s.Read(context.Background(), "added_products.csv")

	assert.ErrorIs(t, err, engine.ErrTableNotExist)
}

func TestStore_RoundTrip_NestedName(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, Options{})

	require.NoError(t, s.Write(ctx, "order_snapshots/1001_007.csv", sampleTable()))
	got, err := s.Read(ctx, "order_snapshots/1001_007.csv")

	require.NoError(t, err)
	assert.Equal(t, sampleTable().Columns, got.Columns)
	assert.Equal(t, sampleTable().Rows, got.Rows)
}

func TestStore_Windows1252_Semicolons(t *testing.T) {
	// GIVEN: A catalog exported by a Spanish Excel install
	// WHEN: Reading it with the matching options
	// THEN: Accents decode and ';' splits fields

	ctx := context.Background()
	s := newStore(t, Options{Delimiter: ';', Encoding: "windows-1252"})

	raw, err := charmap.Windows1252.NewEncoder().String("Categoría;Descripción\nAdhesivos;Pegamento único\n")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(s.Root(), "catalog.csv"), []byte(raw), 0o644))

	got, err := s.Read(ctx, "catalog.csv")
	require.NoError(t, err)
	assert.Equal(t, []string{"Categoría", "Descripción"}, got.Columns)
	assert.Equal(t, [][]string{{"Adhesivos", "Pegamento único"}}, got.Rows)

	// Written back in the same encoding, byte for byte.
	require.NoError(t, s.Write(ctx, "catalog.csv", got))
	onDisk, err := os.ReadFile(filepath.Join(s.Root(), "catalog.csv"))
	require.NoError(t, err)
	assert.Equal(t, raw, string(onDisk))
}

func TestStore_UTF8BOM_Stripped(t *testing.T) {
	s := newStore(t, Options{})
	content := "\xEF\xBB\xBFclient_id,vendor_id\n1001,7\n"
	require.NoError(t, os.WriteFile(filepath.Join(s.Root(), "c.csv"), []byte(content), 0o644))

	got, err := s.Read(context.Background(), "c.csv")

	require.NoError(t, err)
	assert.Equal(t, []string{"client_id", "vendor_id"}, got.Columns)
	assert.True(t, got.Has("client_id"))
}

func TestStore_RaggedRows_Kept(t *testing.T) {
	s := newStore(t, Options{})
	content := "a,b,c\n1,2\n1,2,3,4\n"
	require.NoError(t, os.WriteFile(filepath.Join(s.Root(), "r.csv"), []byte(content), 0o644))

	got, err := s.Read(context.Background(), "r.csv")

	require.NoError(t, err)
	assert.Equal(t, [][]string{{"1", "2"}, {"1", "2", "3", "4"}}, got.Rows)
}

func TestStore_EmptyFile_NoColumns(t *testing.T) {
	s := newStore(t, Options{})
	require.NoError(t, os.WriteFile(filepath.Join(s.Root(), "e.csv"), nil, 0o644))

	got, err := s.Read(context.Background(), "e.csv")

	require.NoError(t, err)
	assert.Empty(t, got.Columns)
}

func TestStore_FailedWrite_KeepsPreviousFile(t *testing.T) {
	// GIVEN: A ledger already on disk
	// WHEN: The next write fails just before the rename
	// THEN: The old content is intact and no temp file is left behind

	ctx := context.Background()
	s := newStore(t, Options{})
	require.NoError(t, s.Write(ctx, "added_products.csv", sampleTable()))
	before, err := os.ReadFile(filepath.Join(s.Root(), "added_products.csv"))
	require.NoError(t, err)

	s.beforeRename = func(string) error { return errors.New("disk full") }
	next := engine.NewTable("client_id")
	next.Rows = [][]string{{"9999"}}
	err = s.Write(ctx, "added_products.csv", next)
	require.Error(t, err)

	after, err := os.ReadFile(filepath.Join(s.Root(), "added_products.csv"))
	require.NoError(t, err)
	assert.Equal(t, before, after)

	entries, err := os.ReadDir(s.Root())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "added_products.csv", entries[0].Name())
}

func TestStore_RejectsEscapingNames(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, Options{})

	for _, name := range []string{"", "../x.csv", "a/../../x.csv", "/etc/passwd"} {
		assert.Error(t, s.Write(ctx, name, sampleTable()), "name %q", name)
		_, err := s.Read(ctx, name)
		assert.Error(t, err, "name %q", name)
		assert.NotErrorIs(t, err, engine.ErrTableNotExist)
	}
}

func TestNew_RejectsBadOptions(t *testing.T) {
	_, err := New(t.TempDir(), Options{Encoding: "klingon"})
	assert.Error(t, err)

	_, err = New(t.TempDir(), Options{Delimiter: '"'})
	assert.Error(t, err)

	_, err = New("", Options{})
	assert.Error(t, err)
}

func TestStore_WithTabularStore_NormalizesOnce(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, Options{Delimiter: ';'})
	require.NoError(t, os.WriteFile(filepath.Join(s.Root(), "l.csv"), []byte(" client_id ;vendor_id;quantity\n 1001 ;7;x\n"), 0o644))
	tables := engine.NewTabularStore(s)
	schema := engine.Schema{Vendor: "vendor_id", Numeric: []string{"quantity"}}

	got, err := tables.Load(ctx, "l.csv", schema)

	require.NoError(t, err)
	assert.Equal(t, []string{"client_id", "vendor_id", "quantity"}, got.Columns)
	assert.Equal(t, [][]string{{"1001", "007", "0"}}, got.Rows)
}
