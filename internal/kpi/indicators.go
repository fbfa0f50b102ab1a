package kpi

import (
	"errors"
	"fmt"
	"math"

	"github.com/dss-dashboard/backend/internal/olap"
	"github.com/dss-dashboard/backend/internal/storage/models"
	"github.com/dss-dashboard/backend/pkg/logger"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// CompletionRateOf is completed projects over all projects, in percent.
func CompletionRateOf(projects []models.Project) (Result, error) {
	if len(projects) == 0 {
		return Result{}, fmt.Errorf("%w: %s needs at least one project", ErrInsufficientData, CompletionRate)
	}
	completed := 0
	for _, p := range projects {
		if p.Status == models.StatusCompleted {
			completed++
		}
	}
	r, err := newResult(CompletionRate, float64(completed)/float64(len(projects))*100)
	if err != nil {
		return Result{}, err
	}
	r.Meta["completed"] = float64(completed)
	r.Meta["total"] = float64(len(projects))
	return r, nil
}

// BudgetEfficiencyOf is the mean ROI, in percent, over projects with a positive actual cost.
func BudgetEfficiencyOf(projects []models.Project) (Result, error) {
	var rois []float64
	for _, p := range projects {
		if roi, ok := p.ROI(); ok {
			rois = append(rois, roi*100)
		}
	}
	if len(rois) == 0 {
		return Result{}, fmt.Errorf("%w: %s needs a project with positive actual cost", ErrInsufficientData, BudgetEfficiency)
	}
	r, err := newResult(BudgetEfficiency, stat.Mean(rois, nil))
	if err != nil {
		return Result{}, err
	}
	r.Meta["best_roi"] = floats.Max(rois)
	r.Meta["worst_roi"] = floats.Min(rois)
	r.Meta["projects_analyzed"] = float64(len(rois))
	return r, nil
}

// TeamUtilizationOf is distinct clients over the delivery capacity, in percent.
func TeamUtilizationOf(projects []models.Project, capacity int) (Result, error) {
	if capacity <= 0 {
		return Result{}, fmt.Errorf("%w: %s capacity must be positive, got %d", ErrInsufficientData, TeamUtilization, capacity)
	}
	if len(projects) == 0 {
		return Result{}, fmt.Errorf("%w: %s needs at least one project", ErrInsufficientData, TeamUtilization)
	}
	clients := make(map[string]struct{})
	for _, p := range projects {
		if p.ClientName != "" {
			clients[p.ClientName] = struct{}{}
		}
	}
	r, err := newResult(TeamUtilization, float64(len(clients))/float64(capacity)*100)
	if err != nil {
		return Result{}, err
	}
	r.Meta["unique_clients"] = float64(len(clients))
	r.Meta["capacity"] = float64(capacity)
	return r, nil
}

// DefectDensityOf is total defects over distinct projects, broken down by severity.
func DefectDensityOf(projects []models.Project, quality []models.QualityRecord) (Result, error) {
	names := make(map[string]struct{}, len(projects))
	for _, p := range projects {
		names[p.Name] = struct{}{}
	}
	if len(names) == 0 {
		return Result{}, fmt.Errorf("%w: %s needs at least one project", ErrInsufficientData, DefectDensity)
	}

	cube := olap.FromQuality(quality)
	total, err := cube.Sum("defect_count")
	if err != nil {
		return Result{}, err
	}
	r, err := newResult(DefectDensity, total/float64(len(names)))
	if err != nil {
		return Result{}, err
	}

	bySeverity, err := olap.RollUp(cube, "severity", "defect_count", olap.AggSum)
	if err != nil {
		return Result{}, err
	}
	r.Breakdown = make(map[string]Breakdown, bySeverity.Len())
	for i := 0; i < bySeverity.Len(); i++ {
		sev, _ := bySeverity.Value(i, "severity")
		sum := floatAt(bySeverity, i, olap.AggregateColumnName("defect_count", olap.AggSum))
		rows := floatAt(bySeverity, i, "rows")
		r.Breakdown[olap.GroupLabel(sev)] = Breakdown{Value: sum, Count: int(rows), Defects: int(sum)}
	}
	r.Meta["total_defects"] = total
	r.Meta["total_projects"] = float64(len(names))
	return r, nil
}

// ResolutionTimeOf is the mean days from detection to resolution over resolved
// records, with the mean, record count and defect total per severity.
func ResolutionTimeOf(quality []models.QualityRecord) (Result, error) {
	resolved, err := olap.DropNull(olap.FromQuality(quality), "resolution_days")
	if err != nil {
		return Result{}, err
	}
	if resolved.Len() == 0 {
		return Result{}, fmt.Errorf("%w: %s needs at least one resolved defect record", ErrInsufficientData, ResolutionTime)
	}
	days, err := resolved.Floats("resolution_days")
	if err != nil {
		return Result{}, err
	}
	r, err := newResult(ResolutionTime, stat.Mean(days, nil))
	if err != nil {
		return Result{}, err
	}

	means, err := olap.RollUp(resolved, "severity", "resolution_days", olap.AggMean)
	if err != nil {
		return Result{}, err
	}
	defects, err := olap.RollUp(resolved, "severity", "defect_count", olap.AggSum)
	if err != nil {
		return Result{}, err
	}
	r.Breakdown = make(map[string]Breakdown, means.Len())
	for i := 0; i < means.Len(); i++ {
		sev, _ := means.Value(i, "severity")
		r.Breakdown[olap.GroupLabel(sev)] = Breakdown{
			Value:   floatAt(means, i, olap.AggregateColumnName("resolution_days", olap.AggMean)),
			Count:   int(floatAt(means, i, "rows")),
			Defects: int(floatAt(defects, i, olap.AggregateColumnName("defect_count", olap.AggSum))),
		}
	}
	r.Meta["resolved_records"] = float64(len(days))
	r.Meta["unresolved_records"] = float64(len(quality) - len(days))
	return r, nil
}

// SatisfactionOf blends quality (60%) and budget (40%) into one index:
// 0.6*max(0, 100-density*10) + 0.4*min(avgROI, 100).
func SatisfactionOf(density, avgROI float64) (Result, error) {
	quality := math.Max(0, 100-density*10)
	budget := math.Min(avgROI, 100)
	r, err := newResult(Satisfaction, 0.6*quality+0.4*budget)
	if err != nil {
		return Result{}, err
	}
	r.Meta["quality_component"] = quality
	r.Meta["budget_component"] = budget
	r.Meta["defect_density"] = density
	r.Meta["budget_efficiency"] = avgROI
	return r, nil
}

// ComputeAll returns every indicator it can compute. The error, when non-nil,
// joins one ErrInsufficientData per missing indicator.
func ComputeAll(projects []models.Project, quality []models.QualityRecord, capacity int) (Set, error) {
	set := make(Set, len(Names))
	var errs []error

	add := func(r Result, err error) {
		if err != nil {
			errs = append(errs, err)
			return
		}
		set[r.Name] = r
	}

	add(CompletionRateOf(projects))
	add(BudgetEfficiencyOf(projects))
	add(TeamUtilizationOf(projects, capacity))
	add(DefectDensityOf(projects, quality))
	add(ResolutionTimeOf(quality))

	density, okD := set.Value(DefectDensity)
	roi, okB := set.Value(BudgetEfficiency)
	if okD && okB {
		add(SatisfactionOf(density, roi))
	} else {
		errs = append(errs, fmt.Errorf("%w: %s needs %s and %s", ErrInsufficientData, Satisfaction, DefectDensity, BudgetEfficiency))
	}

	logger.Debug("KPIs computed",
		zap.Int("projects", len(projects)),
		zap.Int("quality_records", len(quality)),
		zap.Int("computed", len(set)),
		zap.Int("missing", len(errs)))
	return set, errors.Join(errs...)
}

func floatAt(d *olap.Dataset, i int, column string) float64 {
	v, err := d.Value(i, column)
	if err != nil {
		return 0
	}
	f, _ := v.Float()
	return f
}
