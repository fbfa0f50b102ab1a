package olap

import (
	"fmt"
	"strings"

	"github.com/dss-dashboard/backend/internal/storage/models"
)

const (
	ProjectsCube = "projects"
	QualityCube  = "quality"
)

var projectColumns = []Column{
	{Name: "project_id", Kind: KindCategory},
	{Name: "project_name", Kind: KindCategory},
	{Name: "client_name", Kind: KindCategory},
	{Name: "status", Kind: KindCategory},
	{Name: "start_date", Kind: KindDate},
	{Name: "end_date", Kind: KindDate},
	{Name: "start_year", Kind: KindCategory},
	{Name: "start_quarter", Kind: KindCategory},
	{Name: "start_month", Kind: KindCategory},
	{Name: "duration_days", Kind: KindNumber},
	{Name: "duration_months", Kind: KindNumber},
	{Name: "estimated_cost", Kind: KindNumber},
	{Name: "actual_cost", Kind: KindNumber},
	{Name: "net_gain", Kind: KindNumber},
	{Name: "roi", Kind: KindNumber},
	{Name: "story_points", Kind: KindNumber},
}

var qualityColumns = []Column{
	{Name: "record_id", Kind: KindCategory},
	{Name: "project_name", Kind: KindCategory},
	{Name: "severity", Kind: KindCategory},
	{Name: "defect_count", Kind: KindNumber},
	{Name: "detection_date", Kind: KindDate},
	{Name: "resolution_date", Kind: KindDate},
	{Name: "detection_month", Kind: KindCategory},
	{Name: "resolution_days", Kind: KindNumber},
}

// FromProjects builds the project cube. roi is null when actual cost is not positive.
func FromProjects(projects []models.Project) *Dataset {
	rows := make([]Row, 0, len(projects))
	for _, p := range projects {
		roi := Null()
		if r, ok := p.ROI(); ok {
			roi = Number(r * 100)
		}
		year, quarter, month := Null(), Null(), Null()
		if !p.StartDate.IsZero() {
			year = Category(fmt.Sprintf("%d", p.StartDate.Year()))
			quarter = Category(fmt.Sprintf("%d-Q%d", p.StartDate.Year(), (int(p.StartDate.Month())-1)/3+1))
			month = Category(p.StartDate.Format("2006-01"))
		}
		storyPoints := Null()
		if p.StoryPoints > 0 {
			storyPoints = Number(float64(p.StoryPoints))
		}
		rows = append(rows, Row{
			Category(p.ID),
			Category(p.Name),
			Category(p.ClientName),
			Category(string(p.Status)),
			Date(p.StartDate),
			Date(p.EndDate),
			year,
			quarter,
			month,
			Number(float64(p.DurationDays)),
			Number(p.DurationMonths()),
			Number(p.EstimatedCost),
			Number(p.ActualCost),
			Number(p.NetGain),
			roi,
			storyPoints,
		})
	}
	return &Dataset{name: ProjectsCube, columns: projectColumns, index: indexOf(projectColumns), rows: rows}
}

// FromQuality builds the defect cube. resolution_days is null for unresolved
// records and for records resolved before detection.
func FromQuality(records []models.QualityRecord) *Dataset {
	rows := make([]Row, 0, len(records))
	for _, q := range records {
		resolved := Null()
		if q.ResolutionDate != nil {
			resolved = Date(*q.ResolutionDate)
		}
		days := Null()
		if d, ok := q.ResolutionDays(); ok {
			days = Number(d)
		}
		month := Null()
		if !q.DetectionDate.IsZero() {
			month = Category(q.DetectionDate.Format("2006-01"))
		}
		rows = append(rows, Row{
			Category(q.ID),
			Category(q.ProjectName),
			Category(strings.ToLower(string(q.Severity))),
			Number(float64(q.DefectCount)),
			Date(q.DetectionDate),
			resolved,
			month,
			days,
		})
	}
	return &Dataset{name: QualityCube, columns: qualityColumns, index: indexOf(qualityColumns), rows: rows}
}

func indexOf(columns []Column) map[string]int {
	m := make(map[string]int, len(columns))
	for i, c := range columns {
		m[c.Name] = i
	}
	return m
}
