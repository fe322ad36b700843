// Package dataset provides the column-oriented table consumed by the detectors
// and the trust calculator.
package dataset

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Shape errors.
var (
	ErrRaggedColumns   = errors.New("columns have different lengths")
	ErrDuplicateColumn = errors.New("duplicate column name")
)

// Type is the declared type of a column.
type Type int

const (
	Text Type = iota
	Numeric
	Timestamp
)

func (t Type) String() string {
	switch t {
	case Numeric:
		return "numeric"
	case Timestamp:
		return "timestamp"
	default:
		return "text"
	}
}

// Value is a single cell. Valid is false for a missing value.
type Value struct {
	Num   float64
	Str   string
	Time  time.Time
	Valid bool
}

// Float returns a valid numeric cell.
func Float(f float64) Value { return Value{Num: f, Valid: true} }

// String returns a valid text cell.
func String(s string) Value { return Value{Str: s, Valid: true} }

// Time returns a valid timestamp cell.
func Time(t time.Time) Value { return Value{Time: t, Valid: true} }

// Null returns a missing cell.
func Null() Value { return Value{} }

// Column is a named sequence of cells of one declared type.
type Column struct {
	Name   string
	Type   Type
	Values []Value
}

// NumericColumn builds a numeric column. NaN and ±Inf mark a missing value.
func NumericColumn(name string, values ...float64) Column {
	c := Column{Name: name, Type: Numeric, Values: make([]Value, len(values))}
	for i, v := range values {
		if Finite(v) {
			c.Values[i] = Float(v)
		}
	}
	return c
}

// Finite reports whether f is neither NaN nor infinite.
func Finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// TextColumn builds a text column with every cell present.
func TextColumn(name string, values ...string) Column {
	c := Column{Name: name, Type: Text, Values: make([]Value, len(values))}
	for i, v := range values {
		c.Values[i] = String(v)
	}
	return c
}

// TimeColumn builds a timestamp column. The zero time marks a missing value.
func TimeColumn(name string, values ...time.Time) Column {
	c := Column{Name: name, Type: Timestamp, Values: make([]Value, len(values))}
	for i, v := range values {
		if !v.IsZero() {
			c.Values[i] = Time(v)
		}
	}
	return c
}

// Len returns the number of rows in the column.
func (c Column) Len() int { return len(c.Values) }

// MissingCount returns the number of missing cells.
func (c Column) MissingCount() int {
	n := 0
	for _, v := range c.Values {
		if !v.Valid {
			n++
		}
	}
	return n
}

// IsNumeric reports whether the column holds numbers.
func (c Column) IsNumeric() bool { return c.Type == Numeric }

// FloatAt returns the number at row i and whether it is present. A
// non-finite number is never present.
func (c Column) FloatAt(i int) (float64, bool) {
	if i < 0 || i >= len(c.Values) || c.Type != Numeric || !c.Values[i].Valid || !Finite(c.Values[i].Num) {
		return 0, false
	}
	return c.Values[i].Num, true
}

// Floats returns the present finite numbers in row order.
func (c Column) Floats() []float64 {
	if c.Type != Numeric {
		return nil
	}
	out := make([]float64, 0, len(c.Values))
	for _, v := range c.Values {
		if v.Valid && Finite(v.Num) {
			out = append(out, v.Num)
		}
	}
	return out
}

// Dataset is an ordered collection of positionally aligned columns.
// Callers own it; nothing in this module mutates a Dataset.
type Dataset struct {
	Name    string
	Columns []Column
}

// New builds a dataset from columns.
func New(name string, columns ...Column) *Dataset {
	return &Dataset{Name: name, Columns: columns}
}

// Rows returns the row count, taken from the first column.
func (d *Dataset) Rows() int {
	if d == nil || len(d.Columns) == 0 {
		return 0
	}
	return d.Columns[0].Len()
}

// Column returns the named column.
func (d *Dataset) Column(name string) (Column, bool) {
	if d == nil {
		return Column{}, false
	}
	for _, c := range d.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// NumericColumns returns the numeric columns in declaration order.
func (d *Dataset) NumericColumns() []Column {
	if d == nil {
		return nil
	}
	var out []Column
	for _, c := range d.Columns {
		if c.IsNumeric() {
			out = append(out, c)
		}
	}
	return out
}

// Validate checks that column names are unique and all columns share a length.
func (d *Dataset) Validate() error {
	if d == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(d.Columns))
	rows := d.Rows()
	for _, c := range d.Columns {
		if _, ok := seen[c.Name]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateColumn, c.Name)
		}
		seen[c.Name] = struct{}{}
		if c.Len() != rows {
			return fmt.Errorf("%w: %q has %d rows, expected %d", ErrRaggedColumns, c.Name, c.Len(), rows)
		}
	}
	return nil
}
