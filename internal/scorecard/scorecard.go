// Package scorecard rolls key-result progress up into objectives and the four
// balanced-scorecard perspectives. The hierarchy is a fixed template; only the
// current values come from data.
package scorecard

import (
	"math"

	"github.com/dss-dashboard/backend/internal/kpi"
	"github.com/dss-dashboard/backend/internal/olap"
	"github.com/dss-dashboard/backend/internal/storage/models"
	"github.com/dss-dashboard/backend/pkg/logger"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

type Perspective string

const (
	Financial       Perspective = "Financial"
	Customer        Perspective = "Customer"
	InternalProcess Perspective = "Internal Process"
	LearningGrowth  Perspective = "Learning & Growth"
)

var Perspectives = []Perspective{Financial, Customer, InternalProcess, LearningGrowth}

type Direction string

const (
	HigherIsBetter Direction = "higher_is_better"
	LowerIsBetter  Direction = "lower_is_better"
)

type Status string

const (
	OnTrack  Status = "On Track"
	AtRisk   Status = "At Risk"
	OffTrack Status = "Off Track"
)

func StatusOf(progress float64) Status {
	switch {
	case progress >= 90:
		return OnTrack
	case progress >= 70:
		return AtRisk
	default:
		return OffTrack
	}
}

// Input is everything the accessors may read.
type Input struct {
	Projects []models.Project
	Quality  []models.QualityRecord
	KPIs     kpi.Set
	// Manual overrides DefaultManualInputs for key results fed by surveys.
	Manual  map[string]float64
	Quarter string

	projectCube *olap.Dataset
	qualityCube *olap.Dataset
}

type KeyResult struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Target      float64   `json:"target"`
	Current     float64   `json:"current"`
	Unit        string    `json:"unit"`
	Direction   Direction `json:"direction"`
	Source      Source    `json:"source"`
	Available   bool      `json:"available"`
	// Progress is unbounded above so over-achievement shows; Display caps it at 100.
	Progress        float64   `json:"progress"`
	DisplayProgress float64   `json:"display_progress"`
	Status          Status    `json:"status"`
	TrendEstimate   []float64 `json:"trend_estimate"`
}

type Objective struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Owner         string      `json:"owner"`
	Quarter       string      `json:"quarter"`
	Perspective   Perspective `json:"perspective"`
	KeyResults    []KeyResult `json:"key_results"`
	Score         float64     `json:"score"`
	Status        Status      `json:"status"`
	TrendEstimate []float64   `json:"trend_estimate"`
}

type PerspectiveScore struct {
	Perspective    Perspective `json:"perspective"`
	Objectives     []Objective `json:"objectives"`
	Score          float64     `json:"score"`
	Status         Status      `json:"status"`
	KeyResultCount int         `json:"key_result_count"`
}

type Scorecard struct {
	Quarter      string             `json:"quarter"`
	Perspectives []PerspectiveScore `json:"perspectives"`
	Overall      float64            `json:"overall"`
	Status       Status             `json:"status"`
	StrategyMap  []Link             `json:"strategy_map"`
	// TrendIsPlaceholder marks every TrendEstimate as a linear fill, not history.
	TrendIsPlaceholder bool `json:"trend_is_placeholder"`
}

// Progress returns the percentage achieved for one key result.
//
// Higher-is-better: current/target*100.
// Lower-is-better with an upper bound: 100 - current/upper*100.
// Lower-is-better without one: target/current*100, and 100 when current is not positive.
// The result is floored at 0 and never capped.
func Progress(current, target float64, dir Direction, upperBound float64) float64 {
	var p float64
	switch {
	case dir == HigherIsBetter && target == 0:
		if current >= 0 {
			p = 100
		}
	case dir == HigherIsBetter:
		p = current / target * 100
	case upperBound > 0:
		p = 100 - current/upperBound*100
	case current <= 0:
		p = 100
	default:
		p = target / current * 100
	}
	if math.IsNaN(p) || p < 0 {
		return 0
	}
	if math.IsInf(p, 1) {
		return 100
	}
	return p
}

// trendPoints is the width of the placeholder trend window.
const trendPoints = 6

// PlaceholderTrend interpolates linearly from 0 to progress over six points.
// It stands in for historical snapshots, which are not recorded, and must not
// be read as a forecast.
func PlaceholderTrend(progress float64) []float64 {
	out := make([]float64, trendPoints)
	for i := range out {
		out[i] = progress * float64(i) / float64(trendPoints-1)
	}
	return out
}

// mean is zero for an empty perspective rather than NaN.
func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	return stat.Mean(vals, nil)
}

// Build evaluates the template against in.
func Build(in Input) *Scorecard {
	in.projectCube = olap.FromProjects(in.Projects)
	in.qualityCube = olap.FromQuality(in.Quality)

	sc := &Scorecard{
		Quarter:            in.Quarter,
		StrategyMap:        strategyLinks(),
		TrendIsPlaceholder: true,
	}

	var all []float64
	for _, persp := range Perspectives {
		ps := PerspectiveScore{Perspective: persp}
		var flat []float64
		for _, ot := range objectives {
			if ot.perspective != persp {
				continue
			}
			obj := evaluateObjective(ot, &in)
			for _, kr := range obj.KeyResults {
				flat = append(flat, kr.Progress)
			}
			ps.Objectives = append(ps.Objectives, obj)
		}
		// Flattened over key results, so objectives with more key results weigh more.
		ps.Score = mean(flat)
		ps.Status = StatusOf(ps.Score)
		ps.KeyResultCount = len(flat)
		all = append(all, flat...)
		sc.Perspectives = append(sc.Perspectives, ps)
	}
	sc.Overall = mean(all)
	sc.Status = StatusOf(sc.Overall)
	logger.Debug("Scorecard built",
		zap.String("quarter", sc.Quarter),
		zap.Int("key_results", len(all)),
		zap.Float64("overall", sc.Overall),
		zap.String("status", string(sc.Status)))
	return sc
}

func evaluateObjective(ot objectiveTemplate, in *Input) Objective {
	obj := Objective{
		ID:          ot.id,
		Name:        ot.name,
		Owner:       ot.owner,
		Quarter:     in.Quarter,
		Perspective: ot.perspective,
	}
	progress := make([]float64, 0, len(ot.keyResults))
	for _, t := range ot.keyResults {
		kr := KeyResult{
			ID:          t.id,
			Description: t.description,
			Target:      t.target,
			Unit:        t.unit,
			Direction:   t.direction,
			Source:      t.source,
		}
		if v, ok := t.current(in); ok && !math.IsNaN(v) && !math.IsInf(v, 0) {
			kr.Current = v
			kr.Available = true
			kr.Progress = Progress(v, t.target, t.direction, t.upperBound)
		}
		kr.DisplayProgress = math.Min(kr.Progress, 100)
		kr.Status = StatusOf(kr.Progress)
		kr.TrendEstimate = PlaceholderTrend(kr.Progress)
		obj.KeyResults = append(obj.KeyResults, kr)
		progress = append(progress, kr.Progress)
	}
	obj.Score = mean(progress)
	obj.Status = StatusOf(obj.Score)
	obj.TrendEstimate = PlaceholderTrend(obj.Score)
	return obj
}

// PerspectiveScoreOf recomputes a perspective score from its objectives.
func PerspectiveScoreOf(objs []Objective) float64 {
	var flat []float64
	for _, o := range objs {
		for _, kr := range o.KeyResults {
			flat = append(flat, kr.Progress)
		}
	}
	return mean(flat)
}

// Link is one cause-effect edge of the strategy map.
type Link struct {
	From   Perspective `json:"from"`
	To     Perspective `json:"to"`
	Weight int         `json:"weight"`
}

func strategyLinks() []Link {
	return []Link{
		{From: LearningGrowth, To: InternalProcess, Weight: 30},
		{From: InternalProcess, To: Customer, Weight: 25},
		{From: Customer, To: Financial, Weight: 20},
		{From: LearningGrowth, To: Customer, Weight: 10},
	}
}
