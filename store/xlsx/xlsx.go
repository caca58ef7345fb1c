// Package xlsx stores tables as Excel workbooks, one table per file.
//
// The catalog usually arrives as the workbook sales exports from its ERP.
// Read takes the first sheet (or the configured one) with the header in
// row 1. Write produces a single-sheet workbook and replaces the target
// through a temp file and rename, like store/flatfile.
package xlsx

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/warp/order-engine/engine"
)

const defaultSheet = "Sheet1"

// Store implements engine.Backend for .xlsx files under a root directory.
type Store struct {
	root  string
	sheet string
}

// New returns a store rooted at root. sheet selects the sheet to read;
// empty means the first sheet of each workbook.
func New(root, sheet string) (*Store, error) {
	if root == "" {
		return nil, errors.New("xlsx: empty root")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("xlsx: %w", err)
	}
	return &Store{root: root, sheet: strings.TrimSpace(sheet)}, nil
}

func (s *Store) pathFor(name string) (string, error) {
	if strings.TrimSpace(name) == "" || strings.Contains(name, "..") || filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("xlsx: invalid table name %q", name)
	}
	return filepath.Join(s.root, filepath.Clean(filepath.FromSlash(name))), nil
}

// Read loads the configured sheet of the named workbook.
func (s *Store) Read(ctx context.Context, name string) (*engine.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.pathFor(name)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, engine.ErrTableNotExist
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := s.sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, fmt.Errorf("workbook %s has no sheet %q", name, sheet)
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return engine.NewTable(), nil
	}
	t := engine.NewTable(rows[0]...)
	for _, r := range rows[1:] {
		if isBlank(r) {
			continue
		}
		t.Rows = append(t.Rows, r)
	}
	return t, nil
}

// Write replaces the named workbook with a single sheet holding t.
func (s *Store) Write(ctx context.Context, name string, t *engine.Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.pathFor(name)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()
	sheet := defaultSheet
	if s.sheet != "" && s.sheet != defaultSheet {
		if err := f.SetSheetName(defaultSheet, s.sheet); err != nil {
			return err
		}
		sheet = s.sheet
	}

	all := append([][]string{t.Columns}, t.Rows...)
	for i, r := range all {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		row := r
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*.xlsx")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := f.Write(tmp); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write workbook: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func isBlank(r []string) bool {
	for _, c := range r {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
