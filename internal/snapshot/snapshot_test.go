package snapshot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dss-dashboard/backend/internal/olap"
	"github.com/dss-dashboard/backend/internal/storage/models"
)

func TestSnapshotHashTracksContent(t *testing.T) {
	projects := []models.Project{{ID: "P1", Name: "a", Status: models.StatusCompleted}}
	quality := []models.QualityRecord{{ID: "Q1", ProjectName: "a", Severity: models.SeverityLow, DefectCount: 1}}

	a, err := New(projects, quality, time.Now())
	require.NoError(t, err)
	b, err := New(projects, quality, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, a.Hash, b.Hash)

	projects[0].Status = models.StatusCancelled
	c, err := New(projects, quality, time.Now())
	require.NoError(t, err)
	assert.NotEqual(t, a.Hash, c.Hash)

	// the earlier snapshot kept its own copy
	assert.Equal(t, models.StatusCompleted, a.Projects[0].Status)
}

func TestCube(t *testing.T) {
	s, err := New(nil, nil, time.Now())
	require.NoError(t, err)

	d, err := s.Cube(olap.ProjectsCube)
	require.NoError(t, err)
	assert.Equal(t, 0, d.Len())

	_, err = s.Cube("sales")
	assert.ErrorIs(t, err, olap.ErrInvalidDimension)
}
