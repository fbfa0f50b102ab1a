// Package dashboard serves the decision-support operations over an atomically
// swapped snapshot of the source tables.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dss-dashboard/backend/internal/forecast"
	"github.com/dss-dashboard/backend/internal/kpi"
	"github.com/dss-dashboard/backend/internal/metrics"
	"github.com/dss-dashboard/backend/internal/olap"
	"github.com/dss-dashboard/backend/internal/scorecard"
	"github.com/dss-dashboard/backend/internal/snapshot"
	"github.com/dss-dashboard/backend/internal/storage/models"
	"github.com/dss-dashboard/backend/pkg/logger"
	"github.com/dss-dashboard/backend/pkg/utils"
)

var (
	ErrNotReady  = errors.New("snapshot not loaded")
	ErrForbidden = errors.New("forbidden")
)

type Store interface {
	ListProjects(ctx context.Context) ([]models.Project, error)
	ListQualityRecords(ctx context.Context) ([]models.QualityRecord, error)
	InsertForecastRun(ctx context.Context, run *models.ForecastRun) error
	ListForecastRuns(ctx context.Context, userID string, limit int) ([]models.ForecastRun, error)
}

// Cache stores forecast responses by key. Errors are treated as misses.
type Cache interface {
	GetForecast(ctx context.Context, hash string, out interface{}) (bool, error)
	SetForecast(ctx context.Context, hash string, value interface{}) error
	InvalidateForecasts(ctx context.Context) error
}

type Options struct {
	Capacity     int
	Forecast     forecast.Options
	Quarter      string
	ManualInputs map[string]float64
}

type Service struct {
	store Store
	cache Cache
	opts  Options

	snap      atomic.Pointer[snapshot.Snapshot]
	refreshMu sync.Mutex
	now       func() time.Time
}

// NewService wires the service. cache may be nil.
func NewService(store Store, cache Cache, opts Options) *Service {
	return &Service{
		store: store,
		cache: cache,
		opts:  opts,
		now:   time.Now,
	}
}

func observe(op string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	metrics.RequestTotal.WithLabelValues(op, status).Inc()
}

// Refresh reloads both tables and swaps the snapshot. On failure the
// previous snapshot stays in place.
func (s *Service) Refresh(ctx context.Context) (snap *snapshot.Snapshot, err error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	start := time.Now()
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.SnapshotRefreshes.WithLabelValues(status).Inc()
		observe("refresh", start, err)
	}()

	projects, err := s.store.ListProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load projects: %w", err)
	}
	quality, err := s.store.ListQualityRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load quality records: %w", err)
	}

	snap, err = snapshot.New(projects, quality, s.now())
	if err != nil {
		return nil, err
	}

	prev := s.snap.Swap(snap)
	metrics.SnapshotRows.WithLabelValues("projects").Set(float64(len(projects)))
	metrics.SnapshotRows.WithLabelValues("quality_records").Set(float64(len(quality)))

	if prev != nil && prev.Hash != snap.Hash && s.cache != nil {
		if err := s.cache.InvalidateForecasts(ctx); err != nil {
			logger.Warn("Failed to invalidate forecast cache", zap.Error(err))
		}
	}

	logger.Info("Snapshot refreshed",
		zap.String("hash", snap.Hash),
		zap.Int("projects", len(projects)),
		zap.Int("quality_records", len(quality)),
		zap.Duration("took", time.Since(start)),
	)
	return snap, nil
}

func (s *Service) Snapshot() (*snapshot.Snapshot, error) {
	snap := s.snap.Load()
	if snap == nil {
		return nil, ErrNotReady
	}
	return snap, nil
}

type KPIReport struct {
	SnapshotHash string   `json:"snapshot_hash" yaml:"snapshot_hash"`
	KPIs         kpi.Set  `json:"kpis" yaml:"kpis"`
	Unavailable  []string `json:"unavailable,omitempty" yaml:"unavailable,omitempty"`
}

// KPIs computes every indicator. Indicators without enough data are listed
// in Unavailable rather than failing the report.
func (s *Service) KPIs(ctx context.Context) (*KPIReport, error) {
	start := time.Now()
	snap, err := s.Snapshot()
	if err != nil {
		observe("kpis", start, err)
		return nil, err
	}

	set, err := kpi.ComputeAll(snap.Projects, snap.Quality, s.opts.Capacity)
	report := &KPIReport{SnapshotHash: snap.Hash, KPIs: set}
	if err != nil {
		report.Unavailable = strings.Split(err.Error(), "\n")
		logger.Debug("Some KPIs unavailable", zap.Error(err))
	}
	for name, r := range set {
		metrics.KPIValue.WithLabelValues(string(name)).Set(r.Value)
	}
	observe("kpis", start, nil)
	return report, nil
}

type AggregateRequest struct {
	Cube      string      `json:"cube"`
	Operation string      `json:"operation"`
	Params    olap.Params `json:"params"`
}

func (s *Service) Aggregate(ctx context.Context, req AggregateRequest) (res *olap.Result, err error) {
	start := time.Now()
	defer func() { observe("aggregate", start, err) }()

	snap, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	cube, err := snap.Cube(req.Cube)
	if err != nil {
		return nil, err
	}
	op, err := olap.ParseOperation(req.Operation)
	if err != nil {
		return nil, err
	}
	return olap.Aggregate(cube, op, req.Params)
}

func (s *Service) Scorecard(ctx context.Context) (*scorecard.Scorecard, error) {
	start := time.Now()
	snap, err := s.Snapshot()
	if err != nil {
		observe("scorecard", start, err)
		return nil, err
	}

	// Missing KPIs show up as unavailable key results.
	set, _ := kpi.ComputeAll(snap.Projects, snap.Quality, s.opts.Capacity)
	sc := scorecard.Build(scorecard.Input{
		Projects: snap.Projects,
		Quality:  snap.Quality,
		KPIs:     set,
		Manual:   s.opts.ManualInputs,
		Quarter:  s.opts.Quarter,
	})
	for _, ps := range sc.Perspectives {
		metrics.ScorecardScore.WithLabelValues(string(ps.Perspective)).Set(ps.Score)
	}
	observe("scorecard", start, nil)
	return sc, nil
}

type ForecastRequest struct {
	forecast.Input
	// Trials overrides the configured Monte-Carlo trial count when positive.
	Trials int `json:"trials,omitempty"`
	// Seed pins the Monte-Carlo stream. Without it the seed is the configured
	// one, or one derived from the request when none is configured.
	Seed *uint64 `json:"seed,omitempty"`
	// Resample draws a fresh random seed and bypasses the cache.
	Resample bool `json:"resample,omitempty"`
}

type ForecastResponse struct {
	*forecast.Result
	RunID        string `json:"run_id"`
	SnapshotHash string `json:"snapshot_hash"`
	CacheHit     bool   `json:"cache_hit"`
}

func (s *Service) Forecast(ctx context.Context, rc RequestContext, req ForecastRequest) (resp *ForecastResponse, err error) {
	start := time.Now()
	defer func() { observe("forecast", start, err) }()

	if !rc.CanForecast() {
		return nil, fmt.Errorf("%w: role %q may not run forecasts", ErrForbidden, rc.Role)
	}
	snap, err := s.Snapshot()
	if err != nil {
		return nil, err
	}

	in, err := req.Input.Normalize()
	if err != nil {
		return nil, err
	}
	opts := s.opts.Forecast
	if req.Trials > 0 {
		opts.Trials = req.Trials
	}

	key, seed, err := s.forecastKey(snap, in, opts, req)
	if err != nil {
		return nil, err
	}
	opts.Seed = seed

	resp = &ForecastResponse{SnapshotHash: snap.Hash}
	if s.cache != nil && !req.Resample {
		var cached forecast.Result
		hit, err := s.cache.GetForecast(ctx, key, &cached)
		switch {
		case err != nil:
			logger.Warn("Forecast cache read failed", zap.Error(err))
		case hit:
			resp.Result = &cached
			resp.CacheHit = true
		}
	}
	if resp.CacheHit {
		metrics.CacheHits.WithLabelValues("forecast").Inc()
	} else {
		metrics.CacheMisses.WithLabelValues("forecast").Inc()
		res, err := forecast.Forecast(ctx, snap.Projects, snap.Quality, in, opts)
		if err != nil {
			return nil, err
		}
		resp.Result = res
		if res.Estimate.MonteCarloUsed {
			metrics.MonteCarloTrials.Add(float64(opts.Trials))
		}
		if s.cache != nil && !req.Resample {
			if err := s.cache.SetForecast(ctx, key, res); err != nil {
				logger.Warn("Forecast cache write failed", zap.Error(err))
			}
		}
	}

	metrics.ForecastDefects.Observe(float64(resp.Estimate.Total))
	metrics.ForecastConfidence.Observe(resp.Confidence.Score)
	metrics.ForecastRisk.WithLabelValues(string(resp.Risk.Level)).Inc()

	resp.RunID = uuid.NewString()
	s.recordRun(ctx, rc, resp, time.Since(start))

	logger.Info("Forecast served",
		zap.String("run_id", resp.RunID),
		zap.String("user_id", rc.UserID),
		zap.Int("total_defects", resp.Estimate.Total),
		zap.String("risk", string(resp.Risk.Level)),
		zap.Bool("cache_hit", resp.CacheHit),
	)
	return resp, nil
}

// forecastKey derives the cache key and the seed the run will use.
func (s *Service) forecastKey(snap *snapshot.Snapshot, in forecast.Input, opts forecast.Options, req ForecastRequest) (string, uint64, error) {
	var seed uint64
	switch {
	case req.Resample:
		seed = rand.Uint64()
	case req.Seed != nil:
		seed = *req.Seed
	case opts.Seed != 0:
		seed = opts.Seed
	default:
		h, err := utils.HashJSON(snap.Hash, in, opts.Trials)
		if err != nil {
			return "", 0, err
		}
		seed, err = strconv.ParseUint(h[:16], 16, 64)
		if err != nil {
			return "", 0, fmt.Errorf("failed to derive seed: %w", err)
		}
	}

	// The default density shapes K whenever history has no sized projects.
	key, err := utils.HashJSON(snap.Hash, in, opts.Trials, opts.DefaultDefectsPerKLOC, seed)
	if err != nil {
		return "", 0, err
	}
	return key, seed, nil
}

func (s *Service) recordRun(ctx context.Context, rc RequestContext, resp *ForecastResponse, latency time.Duration) {
	run := &models.ForecastRun{
		ID:           resp.RunID,
		UserID:       rc.UserID,
		SnapshotHash: resp.SnapshotHash,
		StoryPoints:  resp.Input.StoryPoints,
		DurationDays: resp.Input.DurationDays,
		TeamSize:     resp.Input.TeamSize,
		Experience:   resp.Input.Experience.String(),
		Complexity:   resp.Input.Complexity.String(),
		Trials:       resp.Estimate.Trials,
		Seed:         resp.Estimate.Seed,
		TotalDefects: resp.Estimate.Total,
		Sigma:        resp.Sigma,
		RiskLevel:    string(resp.Risk.Level),
		Confidence:   resp.Confidence.Score,
		CacheHit:     resp.CacheHit,
		LatencyMS:    int(latency.Milliseconds()),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.InsertForecastRun(ctx, run); err != nil {
		logger.Error("Failed to record forecast run", zap.String("run_id", run.ID), zap.Error(err))
	}
}

const maxRunsLimit = 500

// ForecastRuns lists recent runs. Admins see every user's runs, others only their own.
func (s *Service) ForecastRuns(ctx context.Context, rc RequestContext, limit int) ([]models.ForecastRun, error) {
	if !rc.CanForecast() {
		return nil, fmt.Errorf("%w: role %q may not view forecast runs", ErrForbidden, rc.Role)
	}
	if limit <= 0 || limit > maxRunsLimit {
		limit = 50
	}
	user := rc.UserID
	if rc.Role == RoleAdmin {
		user = ""
	}
	runs, err := s.store.ListForecastRuns(ctx, user, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list forecast runs: %w", err)
	}
	return runs, nil
}
