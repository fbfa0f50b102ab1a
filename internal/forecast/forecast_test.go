package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dss-dashboard/backend/internal/storage/models"
)

// history returns projects of the given duration whose defect totals are totals.
func history(durationDays int, totals ...int) ([]models.Project, []models.QualityRecord) {
	var projects []models.Project
	var quality []models.QualityRecord
	for i, total := range totals {
		name := fmt.Sprintf("hist-%d", i)
		projects = append(projects, models.Project{Name: name, DurationDays: durationDays})
		// split each total across two records to exercise the per-project sum
		quality = append(quality,
			models.QualityRecord{ProjectName: name, Severity: models.SeverityHigh, DefectCount: total / 2},
			models.QualityRecord{ProjectName: name, Severity: models.SeverityLow, DefectCount: total - total/2},
		)
	}
	return projects, quality
}

func scenarioInput() Input {
	return Input{StoryPoints: 100, DurationDays: 180, TeamSize: 8, Experience: Mid, Complexity: Medium}
}

func testOptions() Options {
	o := DefaultOptions()
	o.Seed = 42
	return o
}

func TestForecastScenario(t *testing.T) {
	projects, quality := history(180, 45, 49, 53)
	res, err := Forecast(context.Background(), projects, quality, scenarioInput(), testOptions())
	require.NoError(t, err)

	assert.InDelta(t, 72.0, res.Calibration.SigmaBase, 1e-9)
	assert.InDelta(t, 72.0, res.Sigma, 1e-9)
	assert.False(t, res.Calibration.DefectsPerKLOCEmpirical)
	assert.InDelta(t, 48.875, res.Estimate.Empirical, 1e-9)
	assert.True(t, res.Estimate.MonteCarloUsed)
	assert.InDelta(t, 49.0, res.Estimate.MonteCarlo, 0.3)
	assert.Equal(t, PolicyAverage, res.Estimate.Policy)
	assert.InDelta(t, 49, res.Estimate.Total, 1)

	assert.Equal(t, 72, res.Curve.PeakDay)
	assert.False(t, res.Curve.PeakOutsideWindow)
	assert.Len(t, res.Curve.Points, 181)

	assert.Equal(t, RiskMedium, res.Risk.Level)
	assert.Equal(t, "yellow", res.Risk.Color)
	assert.InDelta(t, float64(res.Estimate.Total)/6, res.Risk.DefectsPerMonth, 1e-9)

	assert.Equal(t, 1, res.QA.RecommendedEngineers)
	assert.InDelta(t, 960.0, res.QA.AvailableHours, 1e-9)
}

func TestForecastSeedIsReproducibleAcrossWorkerCounts(t *testing.T) {
	projects, quality := history(120, 10, 30, 70, 22)
	in := scenarioInput()

	var totals []float64
	for _, workers := range []int{1, 3, 8} {
		o := testOptions()
		o.Trials = 20000
		o.Workers = workers
		res, err := Forecast(context.Background(), projects, quality, in, o)
		require.NoError(t, err)
		totals = append(totals, res.Estimate.MonteCarlo)
	}
	assert.Equal(t, totals[0], totals[1])
	assert.Equal(t, totals[0], totals[2])
}

func TestSingleHistoricalProjectSkipsMonteCarlo(t *testing.T) {
	projects, quality := history(100, 30)
	res, err := Forecast(context.Background(), projects, quality, scenarioInput(), testOptions())
	require.NoError(t, err)
	assert.False(t, res.Estimate.MonteCarloUsed)
	assert.Equal(t, PolicyEmpirical, res.Estimate.Policy)
	assert.Equal(t, int(math.Round(res.Estimate.Empirical)), res.Estimate.Total)
	assert.Equal(t, 0.0, res.Confidence.VarianceScore)
}

func TestEmpiricalDefectsPerKLOC(t *testing.T) {
	projects, quality := history(90, 20, 40)
	projects[0].StoryPoints = 200 // 10 KLOC
	projects[1].StoryPoints = 200
	cal, err := Calibrate(projects, quality, 8.5)
	require.NoError(t, err)
	assert.True(t, cal.DefectsPerKLOCEmpirical)
	assert.InDelta(t, 3.0, cal.DefectsPerKLOC, 1e-9)
}

func TestInsufficientHistory(t *testing.T) {
	_, err := Forecast(context.Background(), nil, nil, scenarioInput(), testOptions())
	assert.ErrorIs(t, err, ErrInsufficientHistory)

	// Durations without quality records do not qualify.
	projects := []models.Project{{Name: "a", DurationDays: 100}}
	_, err = Forecast(context.Background(), projects, nil, scenarioInput(), testOptions())
	assert.ErrorIs(t, err, ErrInsufficientHistory)

	// Neither do quality records for projects with no duration.
	projects = []models.Project{{Name: "a"}}
	quality := []models.QualityRecord{{ProjectName: "a", DefectCount: 3}}
	_, err = Forecast(context.Background(), projects, quality, scenarioInput(), testOptions())
	assert.ErrorIs(t, err, ErrInsufficientHistory)
}

func TestInvalidInput(t *testing.T) {
	projects, quality := history(180, 45, 49, 53)
	tests := []struct {
		name   string
		mutate func(*Input)
	}{
		{"zero story points", func(in *Input) { in.StoryPoints = 0 }},
		{"too many story points", func(in *Input) { in.StoryPoints = maxStoryPoints + 1 }},
		{"zero team", func(in *Input) { in.TeamSize = 0 }},
		{"huge team", func(in *Input) { in.TeamSize = 101 }},
		{"no duration", func(in *Input) { in.DurationDays = 0 }},
		{"too long", func(in *Input) { in.DurationDays = 0; in.DurationMonths = 37 }},
		{"under a month in days", func(in *Input) { in.DurationDays = 29 }},
		{"under a month in months", func(in *Input) { in.DurationDays = 0; in.DurationMonths = 0.5 }},
		{"unknown experience", func(in *Input) { in.Experience = 0 }},
		{"unknown complexity", func(in *Input) { in.Complexity = 9 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := scenarioInput()
			tt.mutate(&in)
			_, err := Forecast(context.Background(), projects, quality, in, testOptions())
			assert.ErrorIs(t, err, ErrInvalidParameter)
		})
	}

	o := testOptions()
	o.Trials = o.MaxTrials + 1
	_, err := Forecast(context.Background(), projects, quality, scenarioInput(), o)
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestDurationMonthsIsConvertedToDays(t *testing.T) {
	in := scenarioInput()
	in.DurationDays = 0
	in.DurationMonths = 4.5
	n, err := in.Normalize()
	require.NoError(t, err)
	assert.Equal(t, 135, n.DurationDays)

	in = scenarioInput()
	in.DurationDays = 30
	n, err = in.Normalize()
	require.NoError(t, err)
	assert.Equal(t, 1.0, n.DurationMonths)
}

func TestParseEnums(t *testing.T) {
	e, err := ParseExperience(" senior ")
	require.NoError(t, err)
	assert.Equal(t, Senior, e)

	for s, want := range map[string]Complexity{"Muy Alta": VeryHigh, "very_high": VeryHigh, "very-high": VeryHigh, "Baja": Low, "media": Medium, "HIGH": High} {
		c, err := ParseComplexity(s)
		require.NoError(t, err, s)
		assert.Equal(t, want, c, s)
	}

	_, err = ParseExperience("guru")
	assert.ErrorIs(t, err, ErrInvalidParameter)
	_, err = ParseComplexity("extreme")
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestInputJSONUsesLabels(t *testing.T) {
	var in Input
	err := json.Unmarshal([]byte(`{"story_points":10,"duration_months":2,"team_size":3,"experience":"Junior","complexity":"Alta"}`), &in)
	require.NoError(t, err)
	assert.Equal(t, Junior, in.Experience)
	assert.Equal(t, High, in.Complexity)

	err = json.Unmarshal([]byte(`{"experience":"wizard"}`), &in)
	assert.ErrorIs(t, err, ErrInvalidParameter)

	b, err := json.Marshal(Input{Experience: Senior, Complexity: VeryHigh})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"complexity":"Very High"`)
}

func TestCurveIntegratesToTotal(t *testing.T) {
	c, err := BuildCurve(100, 20, 400)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, c.Sum(), 5)
}

func TestCurveIsUnimodal(t *testing.T) {
	for _, sigma := range []float64{7.3, 20, 55.5} {
		c, err := BuildCurve(60, sigma, 300)
		require.NoError(t, err)

		peak := 0
		for i, p := range c.Points {
			if p.Density > c.Points[peak].Density {
				peak = i
			}
		}
		assert.InDelta(t, math.Round(sigma), float64(peak), 1, "sigma %v", sigma)
		for i := 1; i <= peak; i++ {
			assert.GreaterOrEqual(t, c.Points[i].Density, c.Points[i-1].Density)
		}
		for i := peak + 1; i < len(c.Points); i++ {
			assert.LessOrEqual(t, c.Points[i].Density, c.Points[i-1].Density)
		}
	}
}

func TestCurveBands(t *testing.T) {
	c, err := BuildCurve(50, 30, 90)
	require.NoError(t, err)
	assert.Equal(t, 0.0, c.Points[0].Density)
	for _, p := range c.Points {
		assert.GreaterOrEqual(t, p.Lower, 0.0)
		assert.LessOrEqual(t, p.Lower, p.Density)
		assert.GreaterOrEqual(t, p.Upper, p.Density)
		assert.InDelta(t, p.Density*1.96*0.15, p.Upper-p.Density, 1e-12)
	}
}

func TestCurvePeakValueIsDensityAtPeakDay(t *testing.T) {
	c, err := BuildCurve(49, 72.4, 180)
	require.NoError(t, err)
	assert.Equal(t, 72, c.PeakDay)
	assert.InDelta(t, RayleighDensity(72, 72.4, 49), c.PeakValue, 1e-12)
	assert.InDelta(t, c.Points[72].Density, c.PeakValue, 1e-12)
}

func TestCurvePeakOutsideWindow(t *testing.T) {
	c, err := BuildCurve(40, 100, 60)
	require.NoError(t, err)
	assert.True(t, c.PeakOutsideWindow)
	assert.Equal(t, 100, c.PeakDay)
	assert.InDelta(t, RayleighDensity(100, 100, 40), c.PeakValue, 1e-12)
	assert.Len(t, c.Points, 61)

	_, err = BuildCurve(40, 0, 60)
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestSeveritySplitStaysCloseToTotal(t *testing.T) {
	for k := 0; k <= 500; k++ {
		split := SplitBySeverity(k)
		require.Len(t, split, 4)
		sum := 0
		for _, s := range split {
			assert.GreaterOrEqual(t, s.Count, 0)
			sum += s.Count
		}
		assert.InDelta(t, k, sum, 4, "k=%d", k)
	}
}

func TestPlanQA(t *testing.T) {
	split := SplitBySeverity(49)
	plan := PlanQA(split, 6)
	assert.InDelta(t, 150.0, plan.TotalHours, 1e-9)
	assert.Equal(t, 1, plan.RecommendedEngineers)
	assert.Equal(t, "Assign 1 QA engineer(s) for 6 months. Budget 150 testing hours in total.", plan.Recommendation)

	plan = PlanQA(SplitBySeverity(2000), 1)
	assert.Equal(t, int(math.Ceil(plan.TotalHours/160)), plan.RecommendedEngineers)
	assert.Greater(t, plan.RecommendedEngineers, 1)

	plan = PlanQA(SplitBySeverity(0), 3)
	assert.Equal(t, 1, plan.RecommendedEngineers)
}

func TestRiskThresholds(t *testing.T) {
	assert.Equal(t, RiskLow, RiskFor(4.99))
	assert.Equal(t, RiskMedium, RiskFor(5))
	assert.Equal(t, RiskMedium, RiskFor(10))
	assert.Equal(t, RiskHigh, RiskFor(10.01))
	assert.Equal(t, "red", RiskHigh.Color())
}

func TestConfidence(t *testing.T) {
	c := ConfidenceOf(&Calibration{ProjectCount: 120, QualityRecords: 1500, DefectTotals: []float64{1, 2}, CV: 0.2})
	assert.InDelta(t, 1.0, c.DataScore, 1e-9)
	assert.InDelta(t, 0.9, c.VarianceScore, 1e-9)
	assert.Equal(t, "High", c.Label)

	c = ConfidenceOf(&Calibration{ProjectCount: 60, QualityRecords: 600, DefectTotals: []float64{1, 2}, CV: 3})
	assert.InDelta(t, 0.8, c.DataScore, 1e-9)
	assert.Equal(t, 0.0, c.VarianceScore)
	assert.Equal(t, "Low", c.Label)

	c = ConfidenceOf(&Calibration{ProjectCount: 3, QualityRecords: 6, DefectTotals: []float64{45, 49, 53}, CV: 4.0 / 49})
	assert.Equal(t, "Medium", c.Label)
}

func TestTeamFactorFloor(t *testing.T) {
	assert.InDelta(t, 1.0, TeamFactor(5), 1e-9)
	assert.InDelta(t, 1.15, TeamFactor(8), 1e-9)
	assert.InDelta(t, 0.8, TeamFactor(1), 1e-9)
}

func TestSamplerClampsNegativeDraws(t *testing.T) {
	m, err := Sampler{Trials: 5000, Seed: 7, Workers: 2}.Mean(context.Background(), -100, 1)
	require.NoError(t, err)
	assert.Equal(t, 0.0, m)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Sampler{Trials: 5000, Seed: 7, Workers: 2}.Mean(ctx, 10, 1)
	assert.ErrorIs(t, err, context.Canceled)
}
