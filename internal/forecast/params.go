package forecast

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dss-dashboard/backend/internal/storage/models"
)

var (
	ErrInsufficientHistory = errors.New("insufficient history")
	ErrInvalidParameter    = errors.New("invalid parameter")
)

type Experience int

const (
	Junior Experience = iota + 1
	Mid
	Senior
)

var experienceNames = [...]string{Junior: "Junior", Mid: "Mid", Senior: "Senior"}

// experienceSigma stretches or compresses the discovery curve.
var experienceSigma = [...]float64{Junior: 1.3, Mid: 1.0, Senior: 0.8}

// experienceDefects scales the expected defect volume.
var experienceDefects = [...]float64{Junior: 1.4, Mid: 1.0, Senior: 0.7}

func (e Experience) Valid() bool { return e >= Junior && e <= Senior }

func (e Experience) String() string {
	if !e.Valid() {
		return fmt.Sprintf("Experience(%d)", int(e))
	}
	return experienceNames[e]
}

func ParseExperience(s string) (Experience, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "junior", "jr":
		return Junior, nil
	case "mid", "middle", "semi-senior", "ssr":
		return Mid, nil
	case "senior", "sr":
		return Senior, nil
	}
	return 0, fmt.Errorf("%w: unknown experience level %q", ErrInvalidParameter, s)
}

func (e Experience) MarshalText() ([]byte, error) {
	if !e.Valid() {
		return nil, fmt.Errorf("%w: experience %d", ErrInvalidParameter, int(e))
	}
	return []byte(e.String()), nil
}

func (e *Experience) UnmarshalText(b []byte) error {
	v, err := ParseExperience(string(b))
	if err != nil {
		return err
	}
	*e = v
	return nil
}

type Complexity int

const (
	Low Complexity = iota + 1
	Medium
	High
	VeryHigh
)

var complexityNames = [...]string{Low: "Low", Medium: "Medium", High: "High", VeryHigh: "Very High"}

var complexitySigma = [...]float64{Low: 0.7, Medium: 1.0, High: 1.3, VeryHigh: 1.6}

var complexityDefects = [...]float64{Low: 0.6, Medium: 1.0, High: 1.4, VeryHigh: 1.8}

func (c Complexity) Valid() bool { return c >= Low && c <= VeryHigh }

func (c Complexity) String() string {
	if !c.Valid() {
		return fmt.Sprintf("Complexity(%d)", int(c))
	}
	return complexityNames[c]
}

var separators = strings.NewReplacer("_", " ", "-", " ")

// ParseComplexity accepts the English labels and the Spanish ones used by the
// upstream extract (Baja, Media, Alta, Muy Alta).
func ParseComplexity(s string) (Complexity, error) {
	norm := strings.Join(strings.Fields(strings.ToLower(separators.Replace(s))), " ")
	switch norm {
	case "low", "baja":
		return Low, nil
	case "medium", "media":
		return Medium, nil
	case "high", "alta":
		return High, nil
	case "very high", "veryhigh", "muy alta":
		return VeryHigh, nil
	}
	return 0, fmt.Errorf("%w: unknown technology complexity %q", ErrInvalidParameter, s)
}

func (c Complexity) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: complexity %d", ErrInvalidParameter, int(c))
	}
	return []byte(c.String()), nil
}

func (c *Complexity) UnmarshalText(b []byte) error {
	v, err := ParseComplexity(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

func (r RiskLevel) Color() string {
	switch r {
	case RiskLow:
		return "green"
	case RiskMedium:
		return "yellow"
	default:
		return "red"
	}
}

// RiskFor classifies the expected defect arrival rate.
func RiskFor(defectsPerMonth float64) RiskLevel {
	switch {
	case defectsPerMonth < 5:
		return RiskLow
	case defectsPerMonth <= 10:
		return RiskMedium
	default:
		return RiskHigh
	}
}

const (
	// peakFraction places the historical defect peak at 40% of a project's duration.
	peakFraction          = 0.4
	locPerStoryPoint      = 50
	daysPerMonth          = 30.0
	hoursPerEngineerMonth = 160.0

	teamBaseline    = 5
	teamStep        = 0.05
	teamFactorFloor = 0.1

	// curveCV is the assumed coefficient of variation of the daily density.
	curveCV = 0.15
	z95     = 1.96

	minDurationMonths = 1
	maxDurationMonths = 36
	maxTeamSize       = 100
	maxStoryPoints    = 200_000
)

// severityRatios is the historical share of defects per severity.
var severityRatios = map[models.Severity]float64{
	models.SeverityCritical: 0.10,
	models.SeverityHigh:     0.30,
	models.SeverityMedium:   0.40,
	models.SeverityLow:      0.20,
}

// severityHours is the QA effort per defect, in hours.
var severityHours = map[models.Severity]float64{
	models.SeverityCritical: 8,
	models.SeverityHigh:     4,
	models.SeverityMedium:   2,
	models.SeverityLow:      1,
}

// Input describes the project to forecast. Exactly one of DurationDays or
// DurationMonths is needed; DurationDays wins when both are set.
type Input struct {
	StoryPoints    int        `json:"story_points" yaml:"story_points"`
	DurationDays   int        `json:"duration_days,omitempty" yaml:"duration_days,omitempty"`
	DurationMonths float64    `json:"duration_months,omitempty" yaml:"duration_months,omitempty"`
	TeamSize       int        `json:"team_size" yaml:"team_size"`
	Experience     Experience `json:"experience" yaml:"experience"`
	Complexity     Complexity `json:"complexity" yaml:"complexity"`
}

// Normalize validates in and fills both duration fields.
func (in Input) Normalize() (Input, error) {
	if !in.Experience.Valid() {
		return in, fmt.Errorf("%w: experience level is required", ErrInvalidParameter)
	}
	if !in.Complexity.Valid() {
		return in, fmt.Errorf("%w: technology complexity is required", ErrInvalidParameter)
	}
	if in.StoryPoints <= 0 || in.StoryPoints > maxStoryPoints {
		return in, fmt.Errorf("%w: story points must be in [1, %d], got %d", ErrInvalidParameter, maxStoryPoints, in.StoryPoints)
	}
	if in.TeamSize <= 0 || in.TeamSize > maxTeamSize {
		return in, fmt.Errorf("%w: team size must be in [1, %d], got %d", ErrInvalidParameter, maxTeamSize, in.TeamSize)
	}

	switch {
	case in.DurationDays > 0:
		in.DurationMonths = float64(in.DurationDays) / daysPerMonth
	case in.DurationDays == 0 && in.DurationMonths > 0:
		in.DurationDays = int(in.DurationMonths*daysPerMonth + 0.5)
	default:
		return in, fmt.Errorf("%w: duration must be positive", ErrInvalidParameter)
	}
	if in.DurationMonths < minDurationMonths || in.DurationMonths > maxDurationMonths {
		return in, fmt.Errorf("%w: duration must be between %d and %d months, got %.2f", ErrInvalidParameter, minDurationMonths, maxDurationMonths, in.DurationMonths)
	}
	return in, nil
}

// TeamFactor is 1 + (teamSize-5)*0.05, floored at 0.1.
func TeamFactor(teamSize int) float64 {
	f := 1 + float64(teamSize-teamBaseline)*teamStep
	if f < teamFactorFloor {
		return teamFactorFloor
	}
	return f
}
