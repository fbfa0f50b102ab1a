package kpi

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dss-dashboard/backend/internal/storage/models"
)

func projectsWithStatus(completed, total int) []models.Project {
	out := make([]models.Project, total)
	for i := range out {
		status := models.StatusInProgress
		if i < completed {
			status = models.StatusCompleted
		}
		out[i] = models.Project{
			ID:         fmt.Sprintf("P%d", i),
			Name:       fmt.Sprintf("proj-%d", i),
			ClientName: fmt.Sprintf("client-%d", i%7),
			Status:     status,
			ActualCost: 100,
			NetGain:    140,
		}
	}
	return out
}

func at(d string) time.Time {
	t, _ := time.Parse("2006-01-02", d)
	return t
}

func ptr(t time.Time) *time.Time { return &t }

func TestCompletionRateScenario(t *testing.T) {
	r, err := CompletionRateOf(projectsWithStatus(412, 475))
	require.NoError(t, err)
	assert.InDelta(t, 86.7, r.Value, 0.05)
	assert.Equal(t, Green, r.Band)
	assert.Equal(t, 412.0, r.Meta["completed"])
}

func TestCompletionRateBounds(t *testing.T) {
	for _, tc := range []struct{ completed, total int }{{0, 3}, {1, 3}, {3, 3}, {5, 9}} {
		r, err := CompletionRateOf(projectsWithStatus(tc.completed, tc.total))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, r.Value, 0.0)
		assert.LessOrEqual(t, r.Value, 100.0)
		assert.Equal(t, tc.completed == tc.total, r.Value == 100)
	}

	_, err := CompletionRateOf(nil)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestBudgetEfficiency(t *testing.T) {
	projects := []models.Project{
		{Name: "a", ActualCost: 100, NetGain: 150}, // 50%
		{Name: "b", ActualCost: 200, NetGain: 250}, // 25%
		{Name: "c", ActualCost: 0, NetGain: 999},   // skipped
	}
	r, err := BudgetEfficiencyOf(projects)
	require.NoError(t, err)
	assert.InDelta(t, 37.5, r.Value, 1e-9)
	assert.Equal(t, Green, r.Band)
	assert.Equal(t, 2.0, r.Meta["projects_analyzed"])
	assert.InDelta(t, 50.0, r.Meta["best_roi"], 1e-9)

	_, err = BudgetEfficiencyOf([]models.Project{{Name: "z"}})
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestTeamUtilization(t *testing.T) {
	r, err := TeamUtilizationOf(projectsWithStatus(0, 20), 10)
	require.NoError(t, err)
	assert.InDelta(t, 70.0, r.Value, 1e-9)
	assert.Equal(t, Green, r.Band)

	_, err = TeamUtilizationOf(projectsWithStatus(0, 2), 0)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestDefectDensityBreakdown(t *testing.T) {
	projects := projectsWithStatus(1, 2)
	quality := []models.QualityRecord{
		{ProjectName: "proj-0", Severity: models.SeverityCritical, DefectCount: 2},
		{ProjectName: "proj-0", Severity: models.SeverityLow, DefectCount: 6},
		{ProjectName: "proj-1", Severity: models.SeverityLow, DefectCount: 4},
	}
	r, err := DefectDensityOf(projects, quality)
	require.NoError(t, err)
	assert.InDelta(t, 6.0, r.Value, 1e-9)
	assert.Equal(t, Yellow, r.Band)
	assert.Equal(t, 2.0, r.Breakdown["critical"].Value)
	assert.Equal(t, 10.0, r.Breakdown["low"].Value)
	assert.Equal(t, 2, r.Breakdown["low"].Count)

	_, err = DefectDensityOf(nil, quality)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestResolutionTime(t *testing.T) {
	quality := []models.QualityRecord{
		{Severity: models.SeverityHigh, DefectCount: 3, DetectionDate: at("2024-01-01"), ResolutionDate: ptr(at("2024-01-03"))},
		{Severity: models.SeverityHigh, DefectCount: 1, DetectionDate: at("2024-01-01"), ResolutionDate: ptr(at("2024-01-05"))},
		{Severity: models.SeverityLow, DefectCount: 2, DetectionDate: at("2024-01-01"), ResolutionDate: ptr(at("2024-01-01"))},
		{Severity: models.SeverityLow, DefectCount: 9, DetectionDate: at("2024-01-01")},
	}
	r, err := ResolutionTimeOf(quality)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, r.Value, 1e-9)
	assert.Equal(t, Green, r.Band)
	assert.Equal(t, Breakdown{Value: 3, Count: 2, Defects: 4}, r.Breakdown["high"])
	assert.Equal(t, Breakdown{Value: 0, Count: 1, Defects: 2}, r.Breakdown["low"])
	assert.Equal(t, 1.0, r.Meta["unresolved_records"])

	_, err = ResolutionTimeOf(quality[3:])
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestSatisfactionScenario(t *testing.T) {
	r, err := SatisfactionOf(7.26, 37.5)
	require.NoError(t, err)
	assert.InDelta(t, 27.4, r.Meta["quality_component"], 0.05)
	assert.InDelta(t, 37.5, r.Meta["budget_component"], 1e-9)
	assert.InDelta(t, 31.4, r.Value, 0.1)
	assert.Equal(t, Red, r.Band)
}

func TestSatisfactionComponentsAreClamped(t *testing.T) {
	r, err := SatisfactionOf(25, 400)
	require.NoError(t, err)
	assert.Equal(t, 0.0, r.Meta["quality_component"])
	assert.Equal(t, 100.0, r.Meta["budget_component"])
	assert.InDelta(t, 40.0, r.Value, 1e-9)
}

func TestClassifyBoundaries(t *testing.T) {
	tests := []struct {
		name Name
		v    float64
		want Band
	}{
		{CompletionRate, 80, Green},
		{CompletionRate, 79.9, Yellow},
		{CompletionRate, 50, Yellow},
		{CompletionRate, 49.9, Red},
		{BudgetEfficiency, 30, Green},
		{BudgetEfficiency, 15, Yellow},
		{BudgetEfficiency, 14.99, Red},
		{TeamUtilization, 69.9, Yellow},
		{DefectDensity, 4.99, Green},
		{DefectDensity, 5, Yellow},
		{DefectDensity, 10, Yellow},
		{DefectDensity, 10.01, Red},
		{ResolutionTime, 2, Green},
		{ResolutionTime, 3, Yellow},
		{ResolutionTime, 5, Yellow},
		{ResolutionTime, 5.5, Red},
		{Satisfaction, 70, Green},
		{Satisfaction, 31.4, Red},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s_%v", tt.name, tt.v), func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.name, tt.v))
		})
	}
}

func TestComputeAllReportsPartialResults(t *testing.T) {
	projects := projectsWithStatus(3, 4)
	set, err := ComputeAll(projects, nil, 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientData)

	assert.Contains(t, set, CompletionRate)
	assert.Contains(t, set, DefectDensity)
	assert.Contains(t, set, Satisfaction)
	assert.NotContains(t, set, ResolutionTime)

	density, _ := set.Value(DefectDensity)
	assert.Equal(t, 0.0, density)
}

func TestComputeAllEmptyTables(t *testing.T) {
	set, err := ComputeAll(nil, nil, 10)
	assert.ErrorIs(t, err, ErrInsufficientData)
	assert.Empty(t, set)
}
