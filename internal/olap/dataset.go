// Package olap implements the multi-dimensional operations used by the
// dashboard over the project and quality cubes. Every operation is pure: it
// never mutates its input and returns a new Dataset or a derived structure.
package olap

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrInvalidDimension = errors.New("invalid dimension")
	ErrInvalidOperation = errors.New("invalid operation")
)

type Column struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
}

// Row holds one value per column, in column order. Rows are never mutated after
// a Dataset is built, so derived datasets share them.
type Row []Value

type Dataset struct {
	name    string
	columns []Column
	index   map[string]int
	rows    []Row
}

// New validates that every row matches the schema. Null is accepted in any column.
func New(name string, columns []Column, rows []Row) (*Dataset, error) {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		if c.Name == "" {
			return nil, fmt.Errorf("column %d has no name", i)
		}
		if _, dup := index[c.Name]; dup {
			return nil, fmt.Errorf("duplicate column %q", c.Name)
		}
		index[c.Name] = i
	}
	for i, r := range rows {
		if len(r) != len(columns) {
			return nil, fmt.Errorf("row %d has %d values, want %d", i, len(r), len(columns))
		}
		for j, v := range r {
			if !v.IsNull() && v.Kind() != columns[j].Kind {
				return nil, fmt.Errorf("row %d column %q: got %s, want %s", i, columns[j].Name, v.Kind(), columns[j].Kind)
			}
		}
	}
	return &Dataset{
		name:    name,
		columns: append([]Column(nil), columns...),
		index:   index,
		rows:    rows,
	}, nil
}

func (d *Dataset) derive(rows []Row) *Dataset {
	return &Dataset{name: d.name, columns: d.columns, index: d.index, rows: rows}
}

func (d *Dataset) Name() string { return d.name }

func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.rows)
}

func (d *Dataset) Columns() []Column {
	return append([]Column(nil), d.columns...)
}

func (d *Dataset) Column(name string) (Column, bool) {
	i, ok := d.index[name]
	if !ok {
		return Column{}, false
	}
	return d.columns[i], true
}

// Value returns the cell at row i of the named column.
func (d *Dataset) Value(i int, column string) (Value, error) {
	j, err := d.col(column)
	if err != nil {
		return Null(), err
	}
	if i < 0 || i >= len(d.rows) {
		return Null(), fmt.Errorf("row %d out of range [0, %d)", i, len(d.rows))
	}
	return d.rows[i][j], nil
}

// Floats returns the non-null numeric values of a column in row order.
func (d *Dataset) Floats(column string) ([]float64, error) {
	j, err := d.numericCol(column)
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, len(d.rows))
	for _, r := range d.rows {
		if f, ok := r[j].Float(); ok {
			out = append(out, f)
		}
	}
	return out, nil
}

// Sum of the non-null values of a numeric column.
func (d *Dataset) Sum(column string) (float64, error) {
	vals, err := d.Floats(column)
	if err != nil {
		return 0, err
	}
	return AggSum.apply(vals, len(vals)), nil
}

// Distinct returns the sorted distinct non-null values of a column.
func (d *Dataset) Distinct(column string) ([]Value, error) {
	j, err := d.col(column)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []Value
	for _, r := range d.rows {
		v := r[j]
		if v.IsNull() || seen[v.String()] {
			continue
		}
		seen[v.String()] = true
		out = append(out, v)
	}
	sortValues(out)
	return out, nil
}

func (d *Dataset) col(name string) (int, error) {
	j, ok := d.index[name]
	if !ok {
		return 0, fmt.Errorf("%w: column %q not in %s", ErrInvalidDimension, name, d.name)
	}
	return j, nil
}

func (d *Dataset) numericCol(name string) (int, error) {
	j, err := d.col(name)
	if err != nil {
		return 0, err
	}
	if d.columns[j].Kind != KindNumber {
		return 0, fmt.Errorf("%w: column %q is %s, not numeric", ErrInvalidDimension, name, d.columns[j].Kind)
	}
	return j, nil
}

// Records returns each row as a column-name keyed map.
func (d *Dataset) Records() []map[string]Value {
	out := make([]map[string]Value, len(d.rows))
	for i, r := range d.rows {
		m := make(map[string]Value, len(d.columns))
		for j, c := range d.columns {
			m[c.Name] = r[j]
		}
		out[i] = m
	}
	return out
}

func (d *Dataset) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Name    string             `json:"name"`
		Columns []Column           `json:"columns"`
		Rows    []map[string]Value `json:"rows"`
	}{d.name, d.columns, d.Records()})
}
