// Package forecast predicts the number of defects a planned project will see
// and when they will surface, using a Rayleigh discovery curve calibrated on
// historical projects.
package forecast

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/dss-dashboard/backend/internal/storage/models"
	"github.com/dss-dashboard/backend/pkg/logger"
	"go.uber.org/zap"
)

// Policies for reconciling the empirical and Monte-Carlo estimates.
const (
	PolicyAverage   = "average"
	PolicyEmpirical = "empirical"
)

type Options struct {
	Trials                int
	MaxTrials             int
	Seed                  uint64
	Workers               int
	DefaultDefectsPerKLOC float64
}

func DefaultOptions() Options {
	return Options{
		Trials:                10000,
		MaxTrials:             1_000_000,
		Workers:               4,
		DefaultDefectsPerKLOC: 8.5,
	}
}

func (o Options) validate() error {
	if o.MaxTrials > 0 && o.Trials > o.MaxTrials {
		return fmt.Errorf("%w: trials %d exceed the limit of %d", ErrInvalidParameter, o.Trials, o.MaxTrials)
	}
	if o.Trials <= 0 {
		return fmt.Errorf("%w: trials must be positive, got %d", ErrInvalidParameter, o.Trials)
	}
	if o.DefaultDefectsPerKLOC <= 0 {
		return fmt.Errorf("%w: default defects per KLOC must be positive", ErrInvalidParameter)
	}
	return nil
}

// Estimate explains how the defect total K was reached.
type Estimate struct {
	Total            int     `json:"total"`
	Empirical        float64 `json:"empirical"`
	MonteCarlo       float64 `json:"monte_carlo"`
	MonteCarloUsed   bool    `json:"monte_carlo_used"`
	Policy           string  `json:"policy"`
	Trials           int     `json:"trials"`
	Seed             uint64  `json:"seed"`
	LOC              int     `json:"loc"`
	DefectsPerKLOC   float64 `json:"defects_per_kloc"`
	ExperienceFactor float64 `json:"experience_factor"`
	ComplexityFactor float64 `json:"complexity_factor"`
	TeamFactor       float64 `json:"team_factor"`
}

type SeverityShare struct {
	Severity models.Severity `json:"severity"`
	Ratio    float64         `json:"ratio"`
	Count    int             `json:"count"`
	Hours    float64         `json:"hours"`
}

type QAPlan struct {
	TotalHours           float64 `json:"total_hours"`
	HoursPerMonth        float64 `json:"hours_per_month"`
	AvailableHours       float64 `json:"available_hours"`
	RecommendedEngineers int     `json:"recommended_engineers"`
	Recommendation       string  `json:"recommendation"`
}

type Risk struct {
	Level           RiskLevel `json:"level"`
	Color           string    `json:"color"`
	DefectsPerMonth float64   `json:"defects_per_month"`
}

type Confidence struct {
	Score         float64 `json:"score"`
	Label         string  `json:"label"`
	DataScore     float64 `json:"data_score"`
	VarianceScore float64 `json:"variance_score"`
}

type Result struct {
	Input       Input           `json:"input"`
	Calibration *Calibration    `json:"calibration"`
	Sigma       float64         `json:"sigma"`
	Estimate    Estimate        `json:"estimate"`
	Curve       *Curve          `json:"curve"`
	Severity    []SeverityShare `json:"severity"`
	QA          QAPlan          `json:"qa"`
	Risk        Risk            `json:"risk"`
	Confidence  Confidence      `json:"confidence"`
}

// Forecast calibrates on history and forecasts in.
func Forecast(ctx context.Context, projects []models.Project, quality []models.QualityRecord, in Input, opts Options) (*Result, error) {
	in, err := in.Normalize()
	if err != nil {
		return nil, err
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}

	cal, err := Calibrate(projects, quality, opts.DefaultDefectsPerKLOC)
	if err != nil {
		return nil, err
	}

	sigma := cal.SigmaBase * experienceSigma[in.Experience] * complexitySigma[in.Complexity]

	est := Estimate{
		Policy:           PolicyEmpirical,
		Trials:           opts.Trials,
		Seed:             opts.Seed,
		LOC:              in.StoryPoints * locPerStoryPoint,
		DefectsPerKLOC:   cal.DefectsPerKLOC,
		ExperienceFactor: experienceDefects[in.Experience],
		ComplexityFactor: complexityDefects[in.Complexity],
		TeamFactor:       TeamFactor(in.TeamSize),
	}
	est.Empirical = float64(est.LOC) / 1000 * est.DefectsPerKLOC * est.ExperienceFactor * est.ComplexityFactor * est.TeamFactor

	k := est.Empirical
	if len(cal.DefectTotals) >= 2 {
		s := Sampler{Trials: opts.Trials, Seed: opts.Seed, Workers: opts.Workers}
		mc, err := s.Mean(ctx, cal.MeanDefects, cal.StdDefects)
		if err != nil {
			return nil, err
		}
		est.MonteCarlo = mc
		est.MonteCarloUsed = true
		est.Policy = PolicyAverage
		k = (est.Empirical + mc) / 2
	}
	est.Total = int(math.Round(k))

	curve, err := BuildCurve(float64(est.Total), sigma, in.DurationDays)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Input:       in,
		Calibration: cal,
		Sigma:       sigma,
		Estimate:    est,
		Curve:       curve,
		Severity:    SplitBySeverity(est.Total),
	}
	res.QA = PlanQA(res.Severity, in.DurationMonths)
	res.Risk = AssessRisk(est.Total, in.DurationMonths)
	res.Confidence = ConfidenceOf(cal)
	logger.Debug("Defect forecast computed",
		zap.Int("history_projects", len(cal.DefectTotals)),
		zap.Float64("sigma", sigma),
		zap.Float64("empirical", est.Empirical),
		zap.Bool("monte_carlo", est.MonteCarloUsed),
		zap.Int("total_defects", est.Total))
	return res, nil
}

// SplitBySeverity distributes total with the historical ratios. Each share is
// rounded on its own, so the counts may differ from total by a few defects.
func SplitBySeverity(total int) []SeverityShare {
	out := make([]SeverityShare, 0, len(models.Severities))
	for _, sev := range models.Severities {
		ratio := severityRatios[sev]
		n := int(math.Round(float64(total) * ratio))
		out = append(out, SeverityShare{
			Severity: sev,
			Ratio:    ratio,
			Count:    n,
			Hours:    float64(n) * severityHours[sev],
		})
	}
	return out
}

// PlanQA sizes the QA effort. At least one engineer is always recommended.
func PlanQA(split []SeverityShare, months float64) QAPlan {
	var hours float64
	for _, s := range split {
		hours += s.Hours
	}
	plan := QAPlan{
		TotalHours:           hours,
		AvailableHours:       months * hoursPerEngineerMonth,
		RecommendedEngineers: 1,
	}
	if months > 0 {
		plan.HoursPerMonth = hours / months
	}
	if plan.AvailableHours > 0 {
		if n := int(math.Ceil(hours / plan.AvailableHours)); n > 1 {
			plan.RecommendedEngineers = n
		}
	}
	plan.Recommendation = fmt.Sprintf("Assign %d QA engineer(s) for %s months. Budget %.0f testing hours in total.",
		plan.RecommendedEngineers, strconv.FormatFloat(months, 'f', -1, 64), hours)
	return plan
}

func AssessRisk(total int, months float64) Risk {
	var rate float64
	if months > 0 {
		rate = float64(total) / months
	}
	level := RiskFor(rate)
	return Risk{Level: level, Color: level.Color(), DefectsPerMonth: rate}
}

// ConfidenceOf scores how much history backs a forecast.
func ConfidenceOf(cal *Calibration) Confidence {
	c := Confidence{DataScore: 0.6}
	switch {
	case cal.ProjectCount >= 100 && cal.QualityRecords >= 1000:
		c.DataScore = 1.0
	case cal.ProjectCount >= 50 && cal.QualityRecords >= 500:
		c.DataScore = 0.8
	}
	if len(cal.DefectTotals) >= 2 {
		c.VarianceScore = math.Max(0, 1-0.5*cal.CV)
	}
	c.Score = (c.DataScore + c.VarianceScore) / 2
	switch {
	case c.Score >= 0.8:
		c.Label = "High"
	case c.Score >= 0.6:
		c.Label = "Medium"
	default:
		c.Label = "Low"
	}
	return c
}
