package olap

import (
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// NullLabel names the group of rows whose dimension value is null.
const NullLabel = "(none)"

type Aggregator string

const (
	AggSum   Aggregator = "sum"
	AggMean  Aggregator = "mean"
	AggCount Aggregator = "count"
	AggMin   Aggregator = "min"
	AggMax   Aggregator = "max"
)

func ParseAggregator(s string) (Aggregator, error) {
	switch a := Aggregator(strings.ToLower(strings.TrimSpace(s))); a {
	case AggSum, AggMean, AggCount, AggMin, AggMax:
		return a, nil
	case "":
		return AggSum, nil
	case "avg", "average":
		return AggMean, nil
	default:
		return "", fmt.Errorf("%w: unknown aggregator %q", ErrInvalidOperation, s)
	}
}

// apply folds the non-null metric values of a group. rows is the group size
// including rows whose metric is null. Empty inputs yield 0, never NaN.
func (a Aggregator) apply(values []float64, rows int) float64 {
	if a == AggCount {
		return float64(rows)
	}
	if len(values) == 0 {
		return 0
	}
	switch a {
	case AggSum:
		return floats.Sum(values)
	case AggMean:
		return stat.Mean(values, nil)
	case AggMin:
		return floats.Min(values)
	case AggMax:
		return floats.Max(values)
	}
	return 0
}

// metricColumn resolves the metric for an aggregator. Count accepts an empty or
// non-numeric metric; every other aggregator needs a numeric column.
func (d *Dataset) metricColumn(metric string, agg Aggregator) (int, error) {
	if agg == AggCount {
		if metric == "" {
			return -1, nil
		}
		return d.col(metric)
	}
	return d.numericCol(metric)
}

func (d *Dataset) fold(rows []Row, metricIdx int, agg Aggregator) float64 {
	if metricIdx < 0 {
		return agg.apply(nil, len(rows))
	}
	vals := make([]float64, 0, len(rows))
	for _, r := range rows {
		if f, ok := r[metricIdx].Float(); ok {
			vals = append(vals, f)
		}
	}
	return agg.apply(vals, len(rows))
}

type group struct {
	key  Value
	rows []Row
}

// groupBy partitions rows by the value in column j, sorted by key. Rows with a
// null key form one trailing group so totals are conserved.
func groupBy(rows []Row, j int) []group {
	pos := make(map[string]int)
	var groups []group
	var nulls []Row
	for _, r := range rows {
		v := r[j]
		if v.IsNull() {
			nulls = append(nulls, r)
			continue
		}
		k := v.String()
		i, ok := pos[k]
		if !ok {
			i = len(groups)
			pos[k] = i
			groups = append(groups, group{key: v})
		}
		groups[i].rows = append(groups[i].rows, r)
	}
	sort.SliceStable(groups, func(a, b int) bool { return groups[a].key.less(groups[b].key) })
	if len(nulls) > 0 {
		groups = append(groups, group{key: Null(), rows: nulls})
	}
	return groups
}

func (g group) label() string { return GroupLabel(g.key) }

// GroupLabel is the text a grouped key is reported under.
func GroupLabel(v Value) string {
	if v.IsNull() {
		return NullLabel
	}
	return v.String()
}

func sortValues(vs []Value) {
	sort.SliceStable(vs, func(a, b int) bool { return vs[a].less(vs[b]) })
}

// DrillDown groups by dimension, then partitions each group by the finer dimension.
func DrillDown(d *Dataset, dimension, finer string) (map[string]map[string]*Dataset, error) {
	j, err := d.col(dimension)
	if err != nil {
		return nil, err
	}
	k, err := d.col(finer)
	if err != nil {
		return nil, err
	}
	out := make(map[string]map[string]*Dataset)
	for _, g := range groupBy(d.rows, j) {
		inner := make(map[string]*Dataset)
		for _, sub := range groupBy(g.rows, k) {
			inner[sub.label()] = d.derive(sub.rows)
		}
		out[g.label()] = inner
	}
	return out, nil
}

// DrillDownAggregate is DrillDown with each subset folded by agg over metric.
func DrillDownAggregate(d *Dataset, dimension, finer, metric string, agg Aggregator) (map[string]map[string]float64, error) {
	m, err := d.metricColumn(metric, agg)
	if err != nil {
		return nil, err
	}
	subsets, err := DrillDown(d, dimension, finer)
	if err != nil {
		return nil, err
	}
	out := make(map[string]map[string]float64, len(subsets))
	for key, inner := range subsets {
		agg2 := make(map[string]float64, len(inner))
		for fk, sub := range inner {
			agg2[fk] = d.fold(sub.rows, m, agg)
		}
		out[key] = agg2
	}
	return out, nil
}

// AggregateColumnName is the name RollUp gives its aggregate column.
func AggregateColumnName(metric string, agg Aggregator) string {
	if metric == "" {
		return string(agg)
	}
	return metric + "_" + string(agg)
}

// RollUp collapses d to one row per dimension value with columns
// (dimension, <metric>_<agg>, rows).
func RollUp(d *Dataset, dimension, metric string, agg Aggregator) (*Dataset, error) {
	j, err := d.col(dimension)
	if err != nil {
		return nil, err
	}
	m, err := d.metricColumn(metric, agg)
	if err != nil {
		return nil, err
	}
	columns := []Column{
		{Name: dimension, Kind: d.columns[j].Kind},
		{Name: AggregateColumnName(metric, agg), Kind: KindNumber},
		{Name: "rows", Kind: KindNumber},
	}
	groups := groupBy(d.rows, j)
	rows := make([]Row, 0, len(groups))
	for _, g := range groups {
		rows = append(rows, Row{g.key, Number(d.fold(g.rows, m, agg)), Number(float64(len(g.rows)))})
	}
	return New(d.name+"_by_"+dimension, columns, rows)
}

// PivotTable is a dense cross-tab. Cells with no contributing rows hold Fill and
// are marked in Missing.
type PivotTable struct {
	RowDimension    string      `json:"row_dimension"`
	ColumnDimension string      `json:"column_dimension"`
	Metric          string      `json:"metric"`
	Aggregator      Aggregator  `json:"aggregator"`
	Rows            []string    `json:"rows"`
	Columns         []string    `json:"columns"`
	Cells           [][]float64 `json:"cells"`
	Missing         [][]bool    `json:"missing"`
	Fill            float64     `json:"fill"`
}

func (p *PivotTable) Cell(row, column string) (float64, bool) {
	for i, r := range p.Rows {
		if r != row {
			continue
		}
		for j, c := range p.Columns {
			if c == column {
				return p.Cells[i][j], !p.Missing[i][j]
			}
		}
	}
	return p.Fill, false
}

// Pivot cross-tabulates metric by rowDim × colDim. Missing combinations are
// filled with zero.
func Pivot(d *Dataset, rowDim, colDim, metric string, agg Aggregator) (*PivotTable, error) {
	ri, err := d.col(rowDim)
	if err != nil {
		return nil, err
	}
	ci, err := d.col(colDim)
	if err != nil {
		return nil, err
	}
	m, err := d.metricColumn(metric, agg)
	if err != nil {
		return nil, err
	}

	p := &PivotTable{
		RowDimension:    rowDim,
		ColumnDimension: colDim,
		Metric:          metric,
		Aggregator:      agg,
		Rows:            []string{},
		Columns:         []string{},
		Cells:           [][]float64{},
		Missing:         [][]bool{},
	}

	colGroups := groupBy(d.rows, ci)
	colPos := make(map[string]int, len(colGroups))
	for i, g := range colGroups {
		colPos[g.label()] = i
		p.Columns = append(p.Columns, g.label())
	}

	for _, rg := range groupBy(d.rows, ri) {
		cells := make([]float64, len(p.Columns))
		missing := make([]bool, len(p.Columns))
		for i := range missing {
			missing[i] = true
			cells[i] = p.Fill
		}
		for _, cg := range groupBy(rg.rows, ci) {
			i := colPos[cg.label()]
			cells[i] = d.fold(cg.rows, m, agg)
			missing[i] = false
		}
		p.Rows = append(p.Rows, rg.label())
		p.Cells = append(p.Cells, cells)
		p.Missing = append(p.Missing, missing)
	}
	return p, nil
}
