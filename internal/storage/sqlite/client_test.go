package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dss-dashboard/backend/internal/storage/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(filepath.Join(t.TempDir(), "dss.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	require.NoError(t, c.InitSchema())
	return c
}

func TestProjectsRoundTrip(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	start := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	est := start.AddDate(0, 4, 0)
	in := []models.Project{
		{ID: "P1", Name: "erp-java-core", ClientName: "Acme", Status: models.StatusCompleted, StartDate: start, EndDate: start.AddDate(0, 5, 0), EstimatedEnd: &est, DurationDays: 150, EstimatedCost: 10, ActualCost: 12, NetGain: 30, StoryPoints: 120},
		{ID: "P2", Name: "crm-go-api", Status: models.StatusPlanned},
	}
	require.NoError(t, c.UpsertProjects(ctx, in))

	in[1].Status = models.StatusInProgress
	require.NoError(t, c.UpsertProjects(ctx, in[1:]))

	out, err := c.ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, in[0], out[0])
	assert.Equal(t, models.StatusInProgress, out[1].Status)
	assert.True(t, out[1].StartDate.IsZero())
	assert.Nil(t, out[1].EstimatedEnd)
}

func TestQualityRecordsRoundTrip(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	detected := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	resolved := detected.AddDate(0, 0, 2)
	in := []models.QualityRecord{
		{ID: "Q1", ProjectName: "erp-java-core", Severity: models.SeverityHigh, DefectCount: 4, DetectionDate: detected, ResolutionDate: &resolved},
		{ID: "Q2", ProjectName: "erp-java-core", Severity: models.SeverityLow, DefectCount: 1, DetectionDate: detected},
	}
	require.NoError(t, c.UpsertQualityRecords(ctx, in))

	out, err := c.ListQualityRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestForecastRuns(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	for i, user := range []string{"alice", "bob", "alice"} {
		run := &models.ForecastRun{
			ID:           []string{"r1", "r2", "r3"}[i],
			UserID:       user,
			SnapshotHash: "abc",
			StoryPoints:  100,
			DurationDays: 180,
			TeamSize:     8,
			Experience:   "Mid",
			Complexity:   "Medium",
			Trials:       10000,
			Seed:         1<<63 + uint64(i),
			TotalDefects: 49,
			Sigma:        72,
			RiskLevel:    "Medium",
			Confidence:   0.78,
			CacheHit:     i == 2,
			LatencyMS:    12,
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, c.InsertForecastRun(ctx, run))
	}

	runs, err := c.ListForecastRuns(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "r3", runs[0].ID)
	assert.True(t, runs[0].CacheHit)
	assert.Equal(t, uint64(1<<63+2), runs[0].Seed)

	all, err := c.ListForecastRuns(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
