/*
Package flatfile stores tables as delimited text files under a root
directory.

PURPOSE:
  The production backend for the added-products ledger and the order
  snapshots, and for catalogs exported as CSV. Catalog exports from
  European Excel installs use ';' and windows-1252, so both the
  delimiter and the text encoding are configurable.

WRITES ARE ATOMIC:
  Write streams into a temp file in the destination directory, fsyncs
  it and renames it over the target. A failure at any step leaves the
  previous file untouched and removes the temp file.

NAMES:
  Table names are relative slash paths ("order_snapshots/1001_007.csv").
  Absolute names and names containing ".." are rejected.
*/
package flatfile

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/warp/order-engine/engine"
)

// Options configure a Store.
type Options struct {
	// Delimiter separates fields. Zero means ','.
	Delimiter rune

	// Encoding is a WHATWG encoding label ("utf-8", "windows-1252",
	// "iso-8859-1"). Empty means UTF-8.
	Encoding string
}

// Store implements engine.Backend on the local filesystem.
type Store struct {
	root  string
	comma rune
	enc   encoding.Encoding

	// beforeRename runs after the temp file is synced. Tests use it to
	// fail a write at the last moment.
	beforeRename func(tmp string) error
}

// New returns a store rooted at root, creating the directory if needed.
func New(root string, opts Options) (*Store, error) {
	if root == "" {
		return nil, errors.New("flatfile: empty root")
	}
	comma := opts.Delimiter
	if comma == 0 {
		comma = ','
	}
	if comma == '"' || comma == '\r' || comma == '\n' || !utf8.ValidRune(comma) || comma == utf8.RuneError {
		return nil, fmt.Errorf("flatfile: invalid delimiter %q", comma)
	}
	enc, err := Encoding(opts.Encoding)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("flatfile: %w", err)
	}
	return &Store{root: root, comma: comma, enc: enc}, nil
}

// Encoding resolves a WHATWG label. Empty means UTF-8.
func Encoding(label string) (encoding.Encoding, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return unicode.UTF8, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("flatfile: unknown encoding %q", label)
	}
	return enc, nil
}

// Root returns the directory tables are stored under.
func (s *Store) Root() string { return s.root }

// sanitizeName keeps a table name inside the root.
func sanitizeName(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errors.New("empty table name")
	}
	if strings.Contains(name, "..") {
		return "", fmt.Errorf("invalid table name %q: contains '..'", name)
	}
	if strings.HasPrefix(name, "/") || filepath.IsAbs(name) {
		return "", fmt.Errorf("invalid table name %q: absolute", name)
	}
	return filepath.Clean(filepath.FromSlash(name)), nil
}

func (s *Store) pathFor(name string) (string, error) {
	n, err := sanitizeName(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, n), nil
}

// Read parses the named file. A missing file is engine.ErrTableNotExist.
func (s *Store) Read(ctx context.Context, name string) (*engine.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.pathFor(name)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, engine.ErrTableNotExist
	}
	if err != nil {
		return nil, err
	}
	return s.decode(raw)
}

func (s *Store) decode(raw []byte) (*engine.Table, error) {
	// BOMOverride strips a UTF-8 (or UTF-16) BOM and otherwise defers to
	// the configured decoder.
	r := transform.NewReader(bytes.NewReader(raw), unicode.BOMOverride(s.enc.NewDecoder()))
	cr := csv.NewReader(r)
	cr.Comma = s.comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return engine.NewTable(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("parse header: %w", err)
	}
	t := engine.NewTable(header...)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse: %w", err)
		}
		if len(rec) == 1 && rec[0] == "" {
			continue
		}
		t.Rows = append(t.Rows, rec)
	}
	return t, nil
}

// Write replaces the named file with t.
func (s *Store) Write(ctx context.Context, name string, t *engine.Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.pathFor(name)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := s.encode(tmp, t); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if s.beforeRename != nil {
		if err := s.beforeRename(tmp.Name()); err != nil {
			return err
		}
	}
	return os.Rename(tmp.Name(), path)
}

func (s *Store) encode(w io.Writer, t *engine.Table) error {
	tw := transform.NewWriter(w, encoding.ReplaceUnsupported(s.enc.NewEncoder()))
	cw := csv.NewWriter(tw)
	cw.Comma = s.comma

	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	for _, row := range t.Rows {
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return tw.Close()
}
