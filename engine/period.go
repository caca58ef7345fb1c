package engine

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// PERIOD - One calendar month of catalog history
// =============================================================================

// Period is a calendar month.
type Period struct {
	Year  int
	Month time.Month
}

// PeriodOf returns the month containing t.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: t.Month()}
}

// AddYears shifts the period by n years.
func (p Period) AddYears(n int) Period {
	return Period{Year: p.Year + n, Month: p.Month}
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// =============================================================================
// PERIOD SCHEME - How period columns are named
// =============================================================================

// PeriodNaming identifies one column naming convention.
type PeriodNaming string

const (
	NamingSpanishMonthYY  PeriodNaming = "es-month-yy"   // "Enero 25"
	NamingEnglishMonthYYY PeriodNaming = "en-month-yyyy" // "January 2025"
	NamingEnglishMonYY    PeriodNaming = "en-mon-yy"     // "Jan-25"
	NamingISOMonth        PeriodNaming = "iso-month"     // "2025-01"
)

// Namings lists the supported conventions.
func Namings() []PeriodNaming {
	return []PeriodNaming{NamingSpanishMonthYY, NamingEnglishMonthYYY, NamingEnglishMonYY, NamingISOMonth}
}

var spanishMonths = [...]string{
	"Enero", "Febrero", "Marzo", "Abril", "Mayo", "Junio",
	"Julio", "Agosto", "Septiembre", "Octubre", "Noviembre", "Diciembre",
}

// PeriodScheme formats and recognizes period columns for one naming
// convention. The convention is fixed at integration time; the scheme
// never guesses between conventions.
type PeriodScheme struct {
	Naming PeriodNaming
}

// NewPeriodScheme validates the naming convention.
func NewPeriodScheme(naming string) (PeriodScheme, error) {
	n := PeriodNaming(strings.TrimSpace(naming))
	for _, known := range Namings() {
		if n == known {
			return PeriodScheme{Naming: n}, nil
		}
	}
	return PeriodScheme{}, fmt.Errorf("unknown period naming %q", naming)
}

// Column returns the column name for p.
func (s PeriodScheme) Column(p Period) string {
	switch s.Naming {
	case NamingSpanishMonthYY:
		return fmt.Sprintf("%s %02d", spanishMonths[p.Month-1], p.Year%100)
	case NamingEnglishMonthYYY:
		return fmt.Sprintf("%s %d", p.Month.String(), p.Year)
	case NamingEnglishMonYY:
		return fmt.Sprintf("%s-%02d", p.Month.String()[:3], p.Year%100)
	case NamingISOMonth:
		return p.String()
	}
	return ""
}

// Parse recognizes a column name. Matching ignores case and surrounding
// whitespace. Two-digit years are read as 20yy.
func (s PeriodScheme) Parse(column string) (Period, bool) {
	column = strings.TrimSpace(column)
	switch s.Naming {
	case NamingSpanishMonthYY:
		name, yy, ok := strings.Cut(column, " ")
		if !ok {
			return Period{}, false
		}
		return monthYear(spanishMonthIndex(name), yy, 2)
	case NamingEnglishMonthYYY:
		name, yyyy, ok := strings.Cut(column, " ")
		if !ok {
			return Period{}, false
		}
		return monthYear(englishMonthIndex(name, false), yyyy, 4)
	case NamingEnglishMonYY:
		name, yy, ok := strings.Cut(column, "-")
		if !ok {
			return Period{}, false
		}
		return monthYear(englishMonthIndex(name, true), yy, 2)
	case NamingISOMonth:
		yyyy, mm, ok := strings.Cut(column, "-")
		if !ok || len(mm) != 2 {
			return Period{}, false
		}
		m, err := strconv.Atoi(mm)
		if err != nil {
			return Period{}, false
		}
		return monthYear(m, yyyy, 4)
	}
	return Period{}, false
}

// IsPeriod reports whether column is a period column. It is the numeric
// predicate handed to the tabular store.
func (s PeriodScheme) IsPeriod(column string) bool {
	_, ok := s.Parse(column)
	return ok
}

// Columns returns the period columns of a table in table order.
func (s PeriodScheme) Columns(columns []string) []string {
	var out []string
	for _, c := range columns {
		if s.IsPeriod(c) {
			out = append(out, c)
		}
	}
	return out
}

// ActivePair is the current-period column and the column it is compared
// against.
type ActivePair struct {
	Current          Period `json:"-"`
	CurrentColumn    string `json:"current"`
	Comparison       Period `json:"-"`
	ComparisonColumn string `json:"comparison"`
}

// ActivePair resolves the columns for the month containing now. The
// comparison is the same month a year earlier, or a year later when the
// earlier column is absent. Anything else is a period_column_missing
// SchemaError.
func (s PeriodScheme) ActivePair(now time.Time, columns []string, table string) (ActivePair, error) {
	present := make(map[Period]string, len(columns))
	for _, c := range columns {
		if p, ok := s.Parse(c); ok {
			if _, dup := present[p]; !dup {
				present[p] = c
			}
		}
	}

	current := PeriodOf(now)
	col, ok := present[current]
	if !ok {
		return ActivePair{}, &SchemaError{Reason: ReasonPeriodColumnMissing, Table: table, Missing: []string{s.Column(current)}}
	}
	pair := ActivePair{Current: current, CurrentColumn: col}

	prior, later := current.AddYears(-1), current.AddYears(1)
	if col, ok := present[prior]; ok {
		pair.Comparison, pair.ComparisonColumn = prior, col
		return pair, nil
	}
	if col, ok := present[later]; ok {
		pair.Comparison, pair.ComparisonColumn = later, col
		return pair, nil
	}
	return ActivePair{}, &SchemaError{
		Reason:  ReasonPeriodColumnMissing,
		Table:   table,
		Missing: []string{s.Column(prior), s.Column(later)},
	}
}

func monthYear(month int, year string, digits int) (Period, bool) {
	if month < 1 || month > 12 || len(year) != digits || !isDigits(year) {
		return Period{}, false
	}
	y, err := strconv.Atoi(year)
	if err != nil {
		return Period{}, false
	}
	if digits == 2 {
		y += 2000
	}
	return Period{Year: y, Month: time.Month(month)}, true
}

func spanishMonthIndex(name string) int {
	for i, m := range spanishMonths {
		if strings.EqualFold(m, name) {
			return i + 1
		}
	}
	return 0
}

func englishMonthIndex(name string, short bool) int {
	for m := time.January; m <= time.December; m++ {
		full := m.String()
		if short {
			full = full[:3]
		}
		if strings.EqualFold(full, name) {
			return int(m)
		}
	}
	return 0
}
