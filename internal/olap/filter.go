package olap

import (
	"fmt"
	"sort"
	"time"
)

// Slice keeps the rows where dimension equals value. No match yields an empty dataset.
func Slice(d *Dataset, dimension string, value Value) (*Dataset, error) {
	j, err := d.col(dimension)
	if err != nil {
		return nil, err
	}
	rows := make([]Row, 0)
	for _, r := range d.rows {
		if r[j].Equal(value) {
			rows = append(rows, r)
		}
	}
	return d.derive(rows), nil
}

// Dice applies every filter as a conjunction. An empty filter set returns d itself.
func Dice(d *Dataset, filters map[string]Value) (*Dataset, error) {
	if len(filters) == 0 {
		return d, nil
	}

	// Resolve in name order so the reported error is deterministic.
	names := make([]string, 0, len(filters))
	for name := range filters {
		names = append(names, name)
	}
	sort.Strings(names)

	cols := make([]int, len(names))
	vals := make([]Value, len(names))
	for i, name := range names {
		j, err := d.col(name)
		if err != nil {
			return nil, err
		}
		cols[i] = j
		vals[i] = filters[name]
	}

	rows := make([]Row, 0)
	for _, r := range d.rows {
		match := true
		for i, j := range cols {
			if !r[j].Equal(vals[i]) {
				match = false
				break
			}
		}
		if match {
			rows = append(rows, r)
		}
	}
	return d.derive(rows), nil
}

// FilterRange keeps rows whose date column falls in [from, to]. A zero bound is open.
func FilterRange(d *Dataset, dateColumn string, from, to time.Time) (*Dataset, error) {
	j, err := d.col(dateColumn)
	if err != nil {
		return nil, err
	}
	if d.columns[j].Kind != KindDate {
		return nil, fmt.Errorf("%w: column %q is %s, not a date", ErrInvalidDimension, dateColumn, d.columns[j].Kind)
	}
	lo, hasLo := Date(from).Time()
	hi, hasHi := Date(to).Time()

	rows := make([]Row, 0)
	for _, r := range d.rows {
		t, ok := r[j].Time()
		if !ok {
			continue
		}
		if hasLo && t.Before(lo) {
			continue
		}
		if hasHi && t.After(hi) {
			continue
		}
		rows = append(rows, r)
	}
	return d.derive(rows), nil
}

type Validation struct {
	Valid             bool           `json:"valid"`
	MissingDimensions []string       `json:"missing_dimensions"`
	MissingMeasures   []string       `json:"missing_measures"`
	NullCounts        map[string]int `json:"null_counts"`
	RowCount          int            `json:"row_count"`
	ColumnCount       int            `json:"column_count"`
}

// Validate checks that a cube carries the dimensions and numeric measures a caller relies on.
func Validate(d *Dataset, dimensions, measures []string) Validation {
	v := Validation{
		MissingDimensions: []string{},
		MissingMeasures:   []string{},
		NullCounts:        make(map[string]int),
		RowCount:          len(d.rows),
		ColumnCount:       len(d.columns),
	}
	for _, dim := range dimensions {
		if _, ok := d.index[dim]; !ok {
			v.MissingDimensions = append(v.MissingDimensions, dim)
		}
	}
	for _, m := range measures {
		j, ok := d.index[m]
		if !ok || d.columns[j].Kind != KindNumber {
			v.MissingMeasures = append(v.MissingMeasures, m)
			continue
		}
		nulls := 0
		for _, r := range d.rows {
			if r[j].IsNull() {
				nulls++
			}
		}
		v.NullCounts[m] = nulls
	}
	v.Valid = len(v.MissingDimensions) == 0 && len(v.MissingMeasures) == 0
	return v
}

// DropNull keeps the rows whose column is not null.
func DropNull(d *Dataset, column string) (*Dataset, error) {
	j, err := d.col(column)
	if err != nil {
		return nil, err
	}
	rows := make([]Row, 0, len(d.rows))
	for _, r := range d.rows {
		if !r[j].IsNull() {
			rows = append(rows, r)
		}
	}
	return d.derive(rows), nil
}
