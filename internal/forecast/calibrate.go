package forecast

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/dss-dashboard/backend/internal/storage/models"
)

// Calibration summarizes the history a forecast is fitted to.
type Calibration struct {
	// SigmaBase is the mean of duration_days*0.4 over qualifying projects.
	SigmaBase float64 `json:"sigma_base"`
	// Projects counts projects with a known duration and at least one quality record.
	Projects int `json:"projects"`
	// ProjectCount and QualityRecords count the full history and drive confidence.
	ProjectCount   int `json:"project_count"`
	QualityRecords int `json:"quality_records"`

	DefectTotals []float64 `json:"defect_totals"`
	MeanDefects  float64   `json:"mean_defects"`
	StdDefects   float64   `json:"std_defects"`
	// CV is StdDefects/MeanDefects, zero with fewer than two samples.
	CV float64 `json:"cv"`

	DefectsPerKLOC float64 `json:"defects_per_kloc"`
	// DefectsPerKLOCEmpirical is false when the configured default was used.
	DefectsPerKLOCEmpirical bool `json:"defects_per_kloc_empirical"`
}

// Calibrate derives sigma_base and defect statistics from history. It fails
// with ErrInsufficientHistory when no project has both a positive duration and
// quality records.
func Calibrate(projects []models.Project, quality []models.QualityRecord, defaultDPK float64) (*Calibration, error) {
	totals := make(map[string]float64)
	for _, q := range quality {
		totals[q.ProjectName] += float64(q.DefectCount)
	}

	names := make(map[string]struct{}, len(projects))
	c := &Calibration{QualityRecords: len(quality), DefectsPerKLOC: defaultDPK}

	var sigmas []float64
	var sizedDefects, sizedKLOC float64
	seen := make(map[string]struct{})
	for _, p := range projects {
		names[p.Name] = struct{}{}
		if p.DurationDays <= 0 {
			continue
		}
		total, ok := totals[p.Name]
		if !ok {
			continue
		}
		if _, dup := seen[p.Name]; dup {
			continue
		}
		seen[p.Name] = struct{}{}

		sigmas = append(sigmas, float64(p.DurationDays)*peakFraction)
		c.DefectTotals = append(c.DefectTotals, total)
		if p.StoryPoints > 0 {
			sizedDefects += total
			sizedKLOC += float64(p.StoryPoints*locPerStoryPoint) / 1000
		}
	}
	c.ProjectCount = len(names)

	if len(sigmas) == 0 {
		return nil, fmt.Errorf("%w: no project has both a duration and defect records", ErrInsufficientHistory)
	}
	c.Projects = len(sigmas)
	c.SigmaBase = stat.Mean(sigmas, nil)
	sort.Float64s(c.DefectTotals)

	if len(c.DefectTotals) >= 2 {
		c.MeanDefects, c.StdDefects = stat.MeanStdDev(c.DefectTotals, nil)
		if c.MeanDefects > 0 {
			c.CV = c.StdDefects / c.MeanDefects
		}
	} else {
		c.MeanDefects = c.DefectTotals[0]
	}

	if sizedKLOC > 0 {
		c.DefectsPerKLOC = sizedDefects / sizedKLOC
		c.DefectsPerKLOCEmpirical = true
	}
	return c, nil
}
