package olap

import (
	"fmt"
	"strings"
	"time"

	"github.com/dss-dashboard/backend/pkg/logger"
	"go.uber.org/zap"
)

type Operation string

const (
	OpSlice     Operation = "slice"
	OpDice      Operation = "dice"
	OpDrillDown Operation = "drilldown"
	OpRollUp    Operation = "rollup"
	OpPivot     Operation = "pivot"
	OpTrend     Operation = "trend"
	OpRange     Operation = "range"
)

func ParseOperation(s string) (Operation, error) {
	op := Operation(strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", "")))
	switch op {
	case OpSlice, OpDice, OpDrillDown, OpRollUp, OpPivot, OpTrend, OpRange:
		return op, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidOperation, s)
}

// Params carries the textual arguments of an aggregation request. Filter values
// are parsed against the kind of the column they target.
type Params struct {
	Dimension       string            `json:"dimension"`
	Value           string            `json:"value"`
	Filters         map[string]string `json:"filters"`
	FinerDimension  string            `json:"finer_dimension"`
	RowDimension    string            `json:"row_dimension"`
	ColumnDimension string            `json:"column_dimension"`
	Metric          string            `json:"metric"`
	Aggregator      string            `json:"aggregator"`
	Periods         int               `json:"periods"`
	From            string            `json:"from"`
	To              string            `json:"to"`
}

// Result holds exactly one populated payload, matching Operation.
type Result struct {
	Operation Operation                     `json:"operation"`
	Dataset   *Dataset                      `json:"dataset,omitempty"`
	Drill     map[string]map[string]float64 `json:"drill,omitempty"`
	Pivot     *PivotTable                   `json:"pivot,omitempty"`
	Trend     *Trend                        `json:"trend,omitempty"`
}

// Aggregate dispatches one operation over d.
func Aggregate(d *Dataset, op Operation, p Params) (*Result, error) {
	res := &Result{Operation: op}
	var err error

	switch op {
	case OpSlice:
		var v Value
		if v, err = parseFor(d, p.Dimension, p.Value); err != nil {
			return nil, err
		}
		res.Dataset, err = Slice(d, p.Dimension, v)
	case OpDice:
		filters := make(map[string]Value, len(p.Filters))
		for dim, raw := range p.Filters {
			v, perr := parseFor(d, dim, raw)
			if perr != nil {
				return nil, perr
			}
			filters[dim] = v
		}
		res.Dataset, err = Dice(d, filters)
	case OpDrillDown:
		agg, aerr := aggregatorFor(p)
		if aerr != nil {
			return nil, aerr
		}
		res.Drill, err = DrillDownAggregate(d, p.Dimension, p.FinerDimension, p.Metric, agg)
	case OpRollUp:
		agg, aerr := aggregatorFor(p)
		if aerr != nil {
			return nil, aerr
		}
		res.Dataset, err = RollUp(d, p.Dimension, p.Metric, agg)
	case OpPivot:
		agg, aerr := aggregatorFor(p)
		if aerr != nil {
			return nil, aerr
		}
		res.Pivot, err = Pivot(d, p.RowDimension, p.ColumnDimension, p.Metric, agg)
	case OpTrend:
		res.Trend, err = MetricTrend(d, p.Dimension, p.Metric, p.Periods)
	case OpRange:
		from, ferr := parseDate(p.From)
		if ferr != nil {
			return nil, ferr
		}
		to, terr := parseDate(p.To)
		if terr != nil {
			return nil, terr
		}
		res.Dataset, err = FilterRange(d, p.Dimension, from, to)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidOperation, op)
	}
	if err != nil {
		return nil, err
	}
	logger.Debug("Aggregation applied",
		zap.String("dataset", d.Name()),
		zap.String("operation", string(op)),
		zap.Int("rows", d.Len()))
	return res, nil
}

// aggregatorFor defaults to count when no metric is named, sum otherwise.
func aggregatorFor(p Params) (Aggregator, error) {
	if p.Aggregator == "" && p.Metric == "" {
		return AggCount, nil
	}
	return ParseAggregator(p.Aggregator)
}

func parseFor(d *Dataset, column, raw string) (Value, error) {
	c, ok := d.Column(column)
	if !ok {
		return Null(), fmt.Errorf("%w: column %q not in %s", ErrInvalidDimension, column, d.name)
	}
	v, err := ParseValue(c.Kind, raw)
	if err != nil {
		return Null(), fmt.Errorf("%w: %v", ErrInvalidOperation, err)
	}
	return v, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q", ErrInvalidOperation, s)
	}
	return t, nil
}
