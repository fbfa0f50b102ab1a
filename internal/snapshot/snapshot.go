// Package snapshot holds an immutable copy of the two source tables together
// with their cubes. Engines read a snapshot; refreshes replace it whole.
package snapshot

import (
	"fmt"
	"time"

	"github.com/dss-dashboard/backend/internal/olap"
	"github.com/dss-dashboard/backend/internal/storage/models"
	"github.com/dss-dashboard/backend/pkg/utils"
)

type Snapshot struct {
	Projects []models.Project
	Quality  []models.QualityRecord
	// Hash identifies the content and keys cached forecasts.
	Hash     string
	LoadedAt time.Time

	projects *olap.Dataset
	quality  *olap.Dataset
}

// New copies the tables so later changes by the caller do not leak in.
func New(projects []models.Project, quality []models.QualityRecord, loadedAt time.Time) (*Snapshot, error) {
	p := append([]models.Project(nil), projects...)
	q := append([]models.QualityRecord(nil), quality...)

	hash, err := utils.HashJSON(p, q)
	if err != nil {
		return nil, fmt.Errorf("failed to hash snapshot: %w", err)
	}

	return &Snapshot{
		Projects: p,
		Quality:  q,
		Hash:     hash,
		LoadedAt: loadedAt,
		projects: olap.FromProjects(p),
		quality:  olap.FromQuality(q),
	}, nil
}

// Cube returns the dataset named by one of the olap cube constants.
func (s *Snapshot) Cube(name string) (*olap.Dataset, error) {
	switch name {
	case olap.ProjectsCube:
		return s.projects, nil
	case olap.QualityCube:
		return s.quality, nil
	}
	return nil, fmt.Errorf("%w: unknown cube %q", olap.ErrInvalidDimension, name)
}
