package olap

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
	DirectionFlat Direction = "flat"
)

// Trend summarises the most recent periods of a metric for sparklines.
type Trend struct {
	Periods   []string  `json:"periods"`
	Values    []float64 `json:"values"`
	Direction Direction `json:"direction"`
	ChangePct float64   `json:"change_pct"`
	Min       float64   `json:"min"`
	Max       float64   `json:"max"`
	Avg       float64   `json:"avg"`
}

// trendThresholdPct is the change below which a series counts as flat.
const trendThresholdPct = 5.0

// MetricTrend sums metric per value of timeColumn and keeps the last periods
// values in time order. Fewer than two periods is always flat.
func MetricTrend(d *Dataset, timeColumn, metric string, periods int) (*Trend, error) {
	if periods <= 0 {
		periods = 6
	}
	dated, err := DropNull(d, timeColumn)
	if err != nil {
		return nil, err
	}
	rolled, err := RollUp(dated, timeColumn, metric, AggSum)
	if err != nil {
		return nil, err
	}

	t := &Trend{Periods: []string{}, Values: []float64{}, Direction: DirectionFlat}
	start := rolled.Len() - periods
	if start < 0 {
		start = 0
	}
	for _, r := range rolled.rows[start:] {
		f, _ := r[1].Float()
		t.Periods = append(t.Periods, r[0].String())
		t.Values = append(t.Values, f)
	}
	if len(t.Values) == 0 {
		return t, nil
	}

	t.Min, t.Max = floats.Min(t.Values), floats.Max(t.Values)
	t.Avg = stat.Mean(t.Values, nil)

	if len(t.Values) < 2 {
		return t, nil
	}
	first := t.Values[0]
	if first == 0 {
		first = 0.01
	}
	last := t.Values[len(t.Values)-1]
	t.ChangePct = (last - first) / math.Abs(first) * 100
	switch {
	case t.ChangePct > trendThresholdPct:
		t.Direction = DirectionUp
	case t.ChangePct < -trendThresholdPct:
		t.Direction = DirectionDown
	}
	return t, nil
}
