// Package kpi computes the six operational indicators shown on the dashboard.
// Every indicator is a pure function of the project and quality tables.
package kpi

import (
	"errors"
	"fmt"
	"math"
)

var ErrInsufficientData = errors.New("insufficient data")

type Name string

const (
	CompletionRate   Name = "completion_rate"
	BudgetEfficiency Name = "budget_efficiency"
	TeamUtilization  Name = "team_utilization"
	DefectDensity    Name = "defect_density"
	ResolutionTime   Name = "avg_resolution_time"
	Satisfaction     Name = "client_satisfaction"
)

// Names lists the indicators in dashboard order.
var Names = []Name{CompletionRate, BudgetEfficiency, TeamUtilization, DefectDensity, ResolutionTime, Satisfaction}

type Band string

const (
	Green  Band = "green"
	Yellow Band = "yellow"
	Red    Band = "red"
)

// Status is the textual reading of a band.
func (b Band) Status() string {
	switch b {
	case Green:
		return "healthy"
	case Yellow:
		return "warning"
	default:
		return "critical"
	}
}

type Breakdown struct {
	Value   float64 `json:"value"`
	Count   int     `json:"count"`
	Defects int     `json:"defects,omitempty"`
}

type Result struct {
	Name      Name                 `json:"name"`
	Label     string               `json:"label"`
	Value     float64              `json:"value"`
	Unit      string               `json:"unit"`
	Band      Band                 `json:"band"`
	Breakdown map[string]Breakdown `json:"breakdown,omitempty"`
	Meta      map[string]float64   `json:"meta,omitempty"`
}

// Set is the outcome of ComputeAll keyed by indicator.
type Set map[Name]Result

func (s Set) Value(n Name) (float64, bool) {
	r, ok := s[n]
	return r.Value, ok
}

type band struct {
	label         string
	unit          string
	green, yellow float64
	lowerIsBetter bool
	// strictGreen makes the green boundary exclusive (value < green).
	strictGreen bool
}

var bands = map[Name]band{
	CompletionRate:   {label: "Project completion rate", unit: "%", green: 80, yellow: 50},
	BudgetEfficiency: {label: "Budget efficiency", unit: "%", green: 30, yellow: 15},
	TeamUtilization:  {label: "Team utilization", unit: "%", green: 70, yellow: 50},
	DefectDensity:    {label: "Defect density", unit: "defects/project", green: 5, yellow: 10, lowerIsBetter: true, strictGreen: true},
	ResolutionTime:   {label: "Mean resolution time", unit: "days", green: 2, yellow: 5, lowerIsBetter: true},
	Satisfaction:     {label: "Client satisfaction index", unit: "index", green: 70, yellow: 50},
}

// Classify maps a value to its band using the thresholds of the indicator.
func Classify(n Name, v float64) Band {
	b, ok := bands[n]
	if !ok {
		return Red
	}
	if b.lowerIsBetter {
		switch {
		case b.strictGreen && v < b.green, !b.strictGreen && v <= b.green:
			return Green
		case v <= b.yellow:
			return Yellow
		default:
			return Red
		}
	}
	switch {
	case v >= b.green:
		return Green
	case v >= b.yellow:
		return Yellow
	default:
		return Red
	}
}

func newResult(n Name, v float64) (Result, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Result{}, fmt.Errorf("%w: %s is not finite", ErrInsufficientData, n)
	}
	b := bands[n]
	return Result{
		Name:  n,
		Label: b.label,
		Value: v,
		Unit:  b.unit,
		Band:  Classify(n, v),
		Meta:  make(map[string]float64),
	}, nil
}
