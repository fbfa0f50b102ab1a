package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dss-dashboard/backend/internal/forecast"
	"github.com/dss-dashboard/backend/internal/kpi"
	"github.com/dss-dashboard/backend/internal/olap"
	"github.com/dss-dashboard/backend/internal/scorecard"
	"github.com/dss-dashboard/backend/internal/storage/models"
)

type fakeStore struct {
	mu       sync.Mutex
	projects []models.Project
	quality  []models.QualityRecord
	runs     []models.ForecastRun
	failLoad error
}

func (f *fakeStore) ListProjects(context.Context) ([]models.Project, error) {
	if f.failLoad != nil {
		return nil, f.failLoad
	}
	return f.projects, nil
}

func (f *fakeStore) ListQualityRecords(context.Context) ([]models.QualityRecord, error) {
	return f.quality, nil
}

func (f *fakeStore) InsertForecastRun(_ context.Context, run *models.ForecastRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, *run)
	return nil
}

func (f *fakeStore) ListForecastRuns(_ context.Context, userID string, limit int) ([]models.ForecastRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ForecastRun
	for _, r := range f.runs {
		if userID == "" || r.UserID == userID {
			out = append(out, r)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// fakeCache stores JSON like the redis cache does.
type fakeCache struct {
	data        map[string][]byte
	invalidated int
	failGet     bool
}

func newFakeCache() *fakeCache { return &fakeCache{data: map[string][]byte{}} }

func (c *fakeCache) GetForecast(_ context.Context, hash string, out interface{}) (bool, error) {
	if c.failGet {
		return false, errors.New("connection refused")
	}
	b, ok := c.data[hash]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, out)
}

func (c *fakeCache) SetForecast(_ context.Context, hash string, value interface{}) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.data[hash] = b
	return nil
}

func (c *fakeCache) InvalidateForecasts(context.Context) error {
	c.invalidated++
	c.data = map[string][]byte{}
	return nil
}

func seedStore() *fakeStore {
	s := &fakeStore{}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, total := range []int{45, 49, 53} {
		name := fmt.Sprintf("erp-java-%d", i)
		s.projects = append(s.projects, models.Project{
			ID: fmt.Sprintf("P%d", i), Name: name, ClientName: "Acme", Status: models.StatusCompleted,
			StartDate: start, DurationDays: 180, EstimatedCost: 100, ActualCost: 100, NetGain: 150,
		})
		s.quality = append(s.quality, models.QualityRecord{
			ID: fmt.Sprintf("Q%d", i), ProjectName: name, Severity: models.SeverityMedium, DefectCount: total,
		})
	}
	return s
}

func newTestService(store *fakeStore, cache Cache) *Service {
	opts := Options{Capacity: 10, Forecast: forecast.DefaultOptions(), Quarter: "Q2 2025"}
	opts.Forecast.Trials = 4000
	return NewService(store, cache, opts)
}

var pm = RequestContext{UserID: "alice", Role: RoleProjectManager}

func scenario() ForecastRequest {
	return ForecastRequest{Input: forecast.Input{StoryPoints: 100, DurationDays: 180, TeamSize: 8, Experience: forecast.Mid, Complexity: forecast.Medium}}
}

func TestOperationsBeforeRefresh(t *testing.T) {
	svc := newTestService(seedStore(), nil)
	_, err := svc.KPIs(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)
	_, err = svc.Forecast(context.Background(), pm, scenario())
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestRefreshKeepsPreviousSnapshotOnFailure(t *testing.T) {
	store := seedStore()
	svc := newTestService(store, nil)
	first, err := svc.Refresh(context.Background())
	require.NoError(t, err)

	store.failLoad = errors.New("disk gone")
	_, err = svc.Refresh(context.Background())
	require.Error(t, err)

	cur, err := svc.Snapshot()
	require.NoError(t, err)
	assert.Same(t, first, cur)
}

func TestRefreshInvalidatesCacheOnChange(t *testing.T) {
	store := seedStore()
	cache := newFakeCache()
	svc := newTestService(store, cache)
	ctx := context.Background()

	_, err := svc.Refresh(ctx)
	require.NoError(t, err)
	_, err = svc.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, cache.invalidated)

	store.projects[0].NetGain = 1
	_, err = svc.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.invalidated)
}

func TestKPIsReportUnavailable(t *testing.T) {
	svc := newTestService(seedStore(), nil)
	_, err := svc.Refresh(context.Background())
	require.NoError(t, err)

	rep, err := svc.KPIs(context.Background())
	require.NoError(t, err)
	assert.Contains(t, rep.KPIs, kpi.CompletionRate)
	assert.NotContains(t, rep.KPIs, kpi.ResolutionTime)
	assert.NotEmpty(t, rep.Unavailable)
}

func TestAggregate(t *testing.T) {
	svc := newTestService(seedStore(), nil)
	_, err := svc.Refresh(context.Background())
	require.NoError(t, err)

	res, err := svc.Aggregate(context.Background(), AggregateRequest{
		Cube:      olap.QualityCube,
		Operation: "roll_up",
		Params:    olap.Params{Dimension: "severity", Metric: "defect_count", Aggregator: "sum"},
	})
	require.NoError(t, err)
	require.NotNil(t, res.Dataset)
	sum, err := res.Dataset.Sum("defect_count_sum")
	require.NoError(t, err)
	assert.Equal(t, 147.0, sum)

	_, err = svc.Aggregate(context.Background(), AggregateRequest{Cube: "nope", Operation: "slice"})
	assert.ErrorIs(t, err, olap.ErrInvalidDimension)
	_, err = svc.Aggregate(context.Background(), AggregateRequest{Cube: olap.QualityCube, Operation: "explode"})
	assert.ErrorIs(t, err, olap.ErrInvalidOperation)
}

func TestScorecard(t *testing.T) {
	svc := newTestService(seedStore(), nil)
	_, err := svc.Refresh(context.Background())
	require.NoError(t, err)

	sc, err := svc.Scorecard(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Q2 2025", sc.Quarter)
	assert.Len(t, sc.Perspectives, len(scorecard.Perspectives))
}

func TestForecastIsCachedAndRecorded(t *testing.T) {
	store := seedStore()
	cache := newFakeCache()
	svc := newTestService(store, cache)
	ctx := context.Background()
	_, err := svc.Refresh(ctx)
	require.NoError(t, err)

	first, err := svc.Forecast(ctx, pm, scenario())
	require.NoError(t, err)
	assert.False(t, first.CacheHit)
	assert.InDelta(t, 49, first.Estimate.Total, 1)
	assert.Equal(t, forecast.RiskMedium, first.Risk.Level)

	second, err := svc.Forecast(ctx, pm, scenario())
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Estimate, second.Estimate)
	assert.NotEqual(t, first.RunID, second.RunID)

	require.Len(t, store.runs, 2)
	assert.Equal(t, "alice", store.runs[0].UserID)
	assert.True(t, store.runs[1].CacheHit)
	assert.Equal(t, first.Estimate.Seed, store.runs[0].Seed)
}

func TestForecastCacheKeyTracksDefaultDefectDensity(t *testing.T) {
	store := seedStore()
	cache := newFakeCache()
	ctx := context.Background()

	before := newTestService(store, cache)
	_, err := before.Refresh(ctx)
	require.NoError(t, err)
	first, err := before.Forecast(ctx, pm, scenario())
	require.NoError(t, err)
	require.False(t, first.Calibration.DefectsPerKLOCEmpirical)

	opts := Options{Capacity: 10, Forecast: forecast.DefaultOptions(), Quarter: "Q2 2025"}
	opts.Forecast.Trials = 4000
	opts.Forecast.DefaultDefectsPerKLOC = 2 * first.Calibration.DefectsPerKLOC
	after := NewService(store, cache, opts)
	_, err = after.Refresh(ctx)
	require.NoError(t, err)

	second, err := after.Forecast(ctx, pm, scenario())
	require.NoError(t, err)
	assert.False(t, second.CacheHit)
	assert.InDelta(t, 2*first.Estimate.Empirical, second.Estimate.Empirical, 1e-9)
	assert.Len(t, cache.data, 2)
}

func TestForecastDerivedSeedIsStableWithoutCache(t *testing.T) {
	svc := newTestService(seedStore(), nil)
	ctx := context.Background()
	_, err := svc.Refresh(ctx)
	require.NoError(t, err)

	a, err := svc.Forecast(ctx, pm, scenario())
	require.NoError(t, err)
	b, err := svc.Forecast(ctx, pm, scenario())
	require.NoError(t, err)
	assert.Equal(t, a.Estimate.Seed, b.Estimate.Seed)
	assert.Equal(t, a.Estimate.MonteCarlo, b.Estimate.MonteCarlo)
}

func TestForecastResampleBypassesCache(t *testing.T) {
	cache := newFakeCache()
	svc := newTestService(seedStore(), cache)
	ctx := context.Background()
	_, err := svc.Refresh(ctx)
	require.NoError(t, err)

	_, err = svc.Forecast(ctx, pm, scenario())
	require.NoError(t, err)

	req := scenario()
	req.Resample = true
	res, err := svc.Forecast(ctx, pm, req)
	require.NoError(t, err)
	assert.False(t, res.CacheHit)
	assert.Len(t, cache.data, 1)
}

func TestForecastExplicitSeedAndCacheFailure(t *testing.T) {
	cache := newFakeCache()
	cache.failGet = true
	svc := newTestService(seedStore(), cache)
	ctx := context.Background()
	_, err := svc.Refresh(ctx)
	require.NoError(t, err)

	seed := uint64(99)
	req := scenario()
	req.Seed = &seed
	res, err := svc.Forecast(ctx, pm, req)
	require.NoError(t, err)
	assert.Equal(t, uint64(99), res.Estimate.Seed)
	assert.False(t, res.CacheHit)
}

func TestForecastErrors(t *testing.T) {
	svc := newTestService(seedStore(), nil)
	ctx := context.Background()
	_, err := svc.Refresh(ctx)
	require.NoError(t, err)

	_, err = svc.Forecast(ctx, RequestContext{UserID: "v", Role: RoleViewer}, scenario())
	assert.ErrorIs(t, err, ErrForbidden)

	req := scenario()
	req.TeamSize = 0
	_, err = svc.Forecast(ctx, pm, req)
	assert.ErrorIs(t, err, forecast.ErrInvalidParameter)

	req = scenario()
	req.Trials = 2_000_000
	_, err = svc.Forecast(ctx, pm, req)
	assert.ErrorIs(t, err, forecast.ErrInvalidParameter)

	empty := newTestService(&fakeStore{}, nil)
	_, err = empty.Refresh(ctx)
	require.NoError(t, err)
	_, err = empty.Forecast(ctx, pm, scenario())
	assert.ErrorIs(t, err, forecast.ErrInsufficientHistory)
}

func TestForecastRunsScope(t *testing.T) {
	store := seedStore()
	svc := newTestService(store, nil)
	ctx := context.Background()
	_, err := svc.Refresh(ctx)
	require.NoError(t, err)

	_, err = svc.Forecast(ctx, pm, scenario())
	require.NoError(t, err)
	_, err = svc.Forecast(ctx, RequestContext{UserID: "root", Role: RoleAdmin}, scenario())
	require.NoError(t, err)

	own, err := svc.ForecastRuns(ctx, pm, 0)
	require.NoError(t, err)
	assert.Len(t, own, 1)

	all, err := svc.ForecastRuns(ctx, RequestContext{UserID: "root", Role: RoleAdmin}, 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = svc.ForecastRuns(ctx, RequestContext{Role: RoleViewer}, 10)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestParseRole(t *testing.T) {
	assert.Equal(t, RoleAdmin, ParseRole(" Admin "))
	assert.Equal(t, RoleProjectManager, ParseRole("pm"))
	assert.Equal(t, RoleViewer, ParseRole(""))
	assert.Equal(t, RoleViewer, ParseRole("superuser"))
}
