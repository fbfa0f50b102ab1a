package models

import "time"

type ProjectStatus string

const (
	StatusPlanned    ProjectStatus = "planned"
	StatusInProgress ProjectStatus = "in-progress"
	StatusCompleted  ProjectStatus = "completed"
	StatusCancelled  ProjectStatus = "cancelled"
)

func (s ProjectStatus) Valid() bool {
	switch s {
	case StatusPlanned, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Severities lists every severity from most to least severe.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// Project is one row of the denormalized project cube.
type Project struct {
	ID            string
	Name          string
	ClientName    string
	Status        ProjectStatus
	StartDate     time.Time
	EndDate       time.Time
	EstimatedEnd  *time.Time
	DurationDays  int
	EstimatedCost float64
	ActualCost    float64
	NetGain       float64
	// StoryPoints is zero when the upstream extract did not record size.
	StoryPoints int
}

// ROI returns (gain-cost)/cost. ok is false when ActualCost is not positive.
func (p Project) ROI() (roi float64, ok bool) {
	if p.ActualCost <= 0 {
		return 0, false
	}
	return (p.NetGain - p.ActualCost) / p.ActualCost, true
}

func (p Project) DurationMonths() float64 {
	return float64(p.DurationDays) / 30.0
}

// QualityRecord is one row of the defect cube. ProjectName joins to Project.Name.
type QualityRecord struct {
	ID             string
	ProjectName    string
	Severity       Severity
	DefectCount    int
	DetectionDate  time.Time
	ResolutionDate *time.Time
}

// ResolutionDays returns whole days between detection and resolution.
// ok is false for unresolved records and for records resolved before detection.
func (q QualityRecord) ResolutionDays() (days float64, ok bool) {
	if q.ResolutionDate == nil {
		return 0, false
	}
	d := q.ResolutionDate.Sub(q.DetectionDate).Hours() / 24
	if d < 0 {
		return 0, false
	}
	return d, true
}

// ForecastRun is the audit record of one forecast request.
type ForecastRun struct {
	ID           string    `json:"id" yaml:"id"`
	UserID       string    `json:"user_id" yaml:"user_id"`
	SnapshotHash string    `json:"snapshot_hash" yaml:"snapshot_hash"`
	StoryPoints  int       `json:"story_points" yaml:"story_points"`
	DurationDays int       `json:"duration_days" yaml:"duration_days"`
	TeamSize     int       `json:"team_size" yaml:"team_size"`
	Experience   string    `json:"experience" yaml:"experience"`
	Complexity   string    `json:"complexity" yaml:"complexity"`
	Trials       int       `json:"trials" yaml:"trials"`
	Seed         uint64    `json:"seed" yaml:"seed"`
	TotalDefects int       `json:"total_defects" yaml:"total_defects"`
	Sigma        float64   `json:"sigma" yaml:"sigma"`
	RiskLevel    string    `json:"risk_level" yaml:"risk_level"`
	Confidence   float64   `json:"confidence" yaml:"confidence"`
	CacheHit     bool      `json:"cache_hit" yaml:"cache_hit"`
	LatencyMS    int       `json:"latency_ms" yaml:"latency_ms"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
}
