// Package evaluation backtests the defect forecast against history: each
// sized past project is forecast from the others and compared with the
// defects it actually recorded.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/dss-dashboard/backend/internal/forecast"
	"github.com/dss-dashboard/backend/internal/storage/models"
	"github.com/dss-dashboard/backend/pkg/logger"
)

type Classification string

const (
	Accurate Classification = "accurate"
	Moderate Classification = "moderate"
	Off      Classification = "off"
)

// Relative error bounds for Accurate and Moderate.
const (
	accurateBound = 0.20
	moderateBound = 0.50
)

func Classify(pctError float64) Classification {
	switch {
	case pctError <= accurateBound:
		return Accurate
	case pctError <= moderateBound:
		return Moderate
	default:
		return Off
	}
}

// Assumptions holds the inputs history does not record. Past projects carry
// no team size, experience or complexity, so one profile is used for all.
type Assumptions struct {
	TeamSize   int
	Experience forecast.Experience
	Complexity forecast.Complexity
}

func DefaultAssumptions() Assumptions {
	return Assumptions{TeamSize: 5, Experience: forecast.Mid, Complexity: forecast.Medium}
}

type Item struct {
	Project        string         `json:"project" yaml:"project"`
	Actual         float64        `json:"actual" yaml:"actual"`
	Predicted      int            `json:"predicted" yaml:"predicted"`
	AbsError       float64        `json:"abs_error" yaml:"abs_error"`
	PctError       float64        `json:"pct_error" yaml:"pct_error"`
	Classification Classification `json:"classification" yaml:"classification"`
}

type Report struct {
	TotalProjects int `json:"total_projects" yaml:"total_projects"`
	Skipped       int `json:"skipped" yaml:"skipped"`

	AccurateCount int `json:"accurate_count" yaml:"accurate_count"`
	ModerateCount int `json:"moderate_count" yaml:"moderate_count"`
	OffCount      int `json:"off_count" yaml:"off_count"`

	MeanAbsError    float64 `json:"mean_abs_error" yaml:"mean_abs_error"`
	MeanPctError    float64 `json:"mean_pct_error" yaml:"mean_pct_error"`
	Bias            float64 `json:"bias" yaml:"bias"`
	AccuratePercent float64 `json:"accurate_percent" yaml:"accurate_percent"`
	ModeratePercent float64 `json:"moderate_percent" yaml:"moderate_percent"`
	OffPercent      float64 `json:"off_percent" yaml:"off_percent"`

	Items []Item `json:"items" yaml:"items"`
}

type Evaluator struct {
	opts        forecast.Options
	assumptions Assumptions
}

func NewEvaluator(opts forecast.Options, assumptions Assumptions) *Evaluator {
	return &Evaluator{
		opts:        opts,
		assumptions: assumptions,
	}
}

// Backtest runs a leave-one-out forecast for every project that has a
// duration, story points and at least one defect. Projects whose forecast
// cannot be made (too long, or too little remaining history) are skipped.
func (e *Evaluator) Backtest(ctx context.Context, projects []models.Project, quality []models.QualityRecord) (*Report, error) {
	totals := make(map[string]float64)
	for _, q := range quality {
		totals[q.ProjectName] += float64(q.DefectCount)
	}

	report := &Report{}
	var absErrs, pctErrs, diffs []float64

	for _, p := range projects {
		actual := totals[p.Name]
		if p.DurationDays <= 0 || p.StoryPoints <= 0 || actual <= 0 {
			continue
		}
		report.TotalProjects++

		item, err := e.evaluateProject(ctx, p, actual, projects, quality)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, forecast.ErrInvalidParameter) || errors.Is(err, forecast.ErrInsufficientHistory) {
				logger.Debug("Skipping project in backtest", zap.String("project", p.Name), zap.Error(err))
				report.Skipped++
				continue
			}
			return nil, fmt.Errorf("failed to backtest %s: %w", p.Name, err)
		}

		switch item.Classification {
		case Accurate:
			report.AccurateCount++
		case Moderate:
			report.ModerateCount++
		case Off:
			report.OffCount++
		}
		absErrs = append(absErrs, item.AbsError)
		pctErrs = append(pctErrs, item.PctError)
		diffs = append(diffs, float64(item.Predicted)-item.Actual)
		report.Items = append(report.Items, item)
	}

	if n := len(report.Items); n > 0 {
		report.MeanAbsError = stat.Mean(absErrs, nil)
		report.MeanPctError = stat.Mean(pctErrs, nil)
		report.Bias = stat.Mean(diffs, nil)
		report.AccuratePercent = float64(report.AccurateCount) / float64(n) * 100
		report.ModeratePercent = float64(report.ModerateCount) / float64(n) * 100
		report.OffPercent = float64(report.OffCount) / float64(n) * 100
	}

	logger.Info("Forecast backtest completed",
		zap.Int("total", report.TotalProjects),
		zap.Int("skipped", report.Skipped),
		zap.Int("accurate", report.AccurateCount),
		zap.Int("moderate", report.ModerateCount),
		zap.Int("off", report.OffCount),
	)

	return report, nil
}

func (e *Evaluator) evaluateProject(ctx context.Context, p models.Project, actual float64, projects []models.Project, quality []models.QualityRecord) (Item, error) {
	restProjects := make([]models.Project, 0, len(projects)-1)
	for _, other := range projects {
		if other.Name != p.Name {
			restProjects = append(restProjects, other)
		}
	}
	restQuality := make([]models.QualityRecord, 0, len(quality))
	for _, q := range quality {
		if q.ProjectName != p.Name {
			restQuality = append(restQuality, q)
		}
	}

	in := forecast.Input{
		StoryPoints:  p.StoryPoints,
		DurationDays: p.DurationDays,
		TeamSize:     e.assumptions.TeamSize,
		Experience:   e.assumptions.Experience,
		Complexity:   e.assumptions.Complexity,
	}
	res, err := forecast.Forecast(ctx, restProjects, restQuality, in, e.opts)
	if err != nil {
		return Item{}, err
	}

	abs := math.Abs(float64(res.Estimate.Total) - actual)
	item := Item{
		Project:   p.Name,
		Actual:    actual,
		Predicted: res.Estimate.Total,
		AbsError:  abs,
		PctError:  abs / actual,
	}
	item.Classification = Classify(item.PctError)
	return item, nil
}

func GenerateReport(report *Report) string {
	return fmt.Sprintf(`
Forecast Backtest Report
========================

Projects evaluated: %d (skipped: %d)

Classifications:
- Accurate (within 20%%): %d (%.1f%%)
- Moderate (within 50%%): %d (%.1f%%)
- Off: %d (%.1f%%)

Errors:
- Mean absolute error: %.2f defects
- Mean relative error: %.1f%%
- Bias (predicted - actual): %+.2f defects
`,
		len(report.Items), report.Skipped,
		report.AccurateCount, report.AccuratePercent,
		report.ModerateCount, report.ModeratePercent,
		report.OffCount, report.OffPercent,
		report.MeanAbsError,
		report.MeanPctError*100,
		report.Bias,
	)
}
