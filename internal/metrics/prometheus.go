package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dss_request_duration_seconds",
			Help:    "Dashboard operation duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"operation"},
	)

	RequestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dss_requests_total",
			Help: "Total dashboard operations by outcome",
		},
		[]string{"operation", "status"},
	)

	ForecastDefects = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dss_forecast_total_defects",
			Help:    "Forecast defect totals",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	ForecastConfidence = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dss_forecast_confidence_score",
			Help:    "Forecast confidence scores",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	ForecastRisk = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dss_forecast_risk_total",
			Help: "Forecasts by risk level",
		},
		[]string{"level"},
	)

	MonteCarloTrials = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dss_montecarlo_trials_total",
			Help: "Total Monte-Carlo trials drawn",
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dss_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dss_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	SnapshotRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dss_snapshot_refresh_total",
			Help: "Snapshot reloads by outcome",
		},
		[]string{"status"},
	)

	SnapshotRows = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dss_snapshot_rows",
			Help: "Rows in the current snapshot per table",
		},
		[]string{"table"},
	)

	KPIValue = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dss_kpi_value",
			Help: "Latest computed KPI values",
		},
		[]string{"kpi"},
	)

	ScorecardScore = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dss_scorecard_score",
			Help: "Latest scorecard progress per perspective",
		},
		[]string{"perspective"},
	)
)

var initOnce sync.Once

func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(RequestDuration)
		prometheus.MustRegister(RequestTotal)
		prometheus.MustRegister(ForecastDefects)
		prometheus.MustRegister(ForecastConfidence)
		prometheus.MustRegister(ForecastRisk)
		prometheus.MustRegister(MonteCarloTrials)
		prometheus.MustRegister(CacheHits)
		prometheus.MustRegister(CacheMisses)
		prometheus.MustRegister(SnapshotRefreshes)
		prometheus.MustRegister(SnapshotRows)
		prometheus.MustRegister(KPIValue)
		prometheus.MustRegister(ScorecardScore)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
