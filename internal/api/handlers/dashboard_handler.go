package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/dss-dashboard/backend/internal/dashboard"
	"github.com/dss-dashboard/backend/internal/olap"
	"github.com/dss-dashboard/backend/internal/scorecard"
	"github.com/dss-dashboard/backend/internal/snapshot"
	"github.com/dss-dashboard/backend/internal/storage/models"
)

// Service is the part of dashboard.Service the HTTP layer needs.
type Service interface {
	Refresh(ctx context.Context) (*snapshot.Snapshot, error)
	Snapshot() (*snapshot.Snapshot, error)
	KPIs(ctx context.Context) (*dashboard.KPIReport, error)
	Aggregate(ctx context.Context, req dashboard.AggregateRequest) (*olap.Result, error)
	Scorecard(ctx context.Context) (*scorecard.Scorecard, error)
	Forecast(ctx context.Context, rc dashboard.RequestContext, req dashboard.ForecastRequest) (*dashboard.ForecastResponse, error)
	ForecastRuns(ctx context.Context, rc dashboard.RequestContext, limit int) ([]models.ForecastRun, error)
}

type DashboardHandler struct {
	svc Service
}

func NewDashboardHandler(svc Service) *DashboardHandler {
	return &DashboardHandler{
		svc: svc,
	}
}

func (h *DashboardHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// Ready reports 503 until the first snapshot has loaded.
func (h *DashboardHandler) Ready(c *fiber.Ctx) error {
	snap, err := h.svc.Snapshot()
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "loading",
		})
	}
	return c.JSON(fiber.Map{
		"status":          "ready",
		"snapshot_hash":   snap.Hash,
		"loaded_at":       snap.LoadedAt,
		"projects":        len(snap.Projects),
		"quality_records": len(snap.Quality),
	})
}

func (h *DashboardHandler) KPIs(c *fiber.Ctx) error {
	report, err := h.svc.KPIs(c.UserContext())
	if err != nil {
		return respondError(c, "compute KPIs", err)
	}
	return c.JSON(report)
}

func (h *DashboardHandler) Aggregate(c *fiber.Ctx) error {
	var req dashboard.AggregateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	res, err := h.svc.Aggregate(c.UserContext(), req)
	if err != nil {
		return respondError(c, "aggregate", err)
	}
	return c.JSON(res)
}

func (h *DashboardHandler) Scorecard(c *fiber.Ctx) error {
	sc, err := h.svc.Scorecard(c.UserContext())
	if err != nil {
		return respondError(c, "build scorecard", err)
	}
	return c.JSON(sc)
}

// RefreshSnapshot reloads the source tables immediately.
func (h *DashboardHandler) RefreshSnapshot(c *fiber.Ctx) error {
	snap, err := h.svc.Refresh(c.UserContext())
	if err != nil {
		return respondError(c, "refresh snapshot", err)
	}
	return c.JSON(fiber.Map{
		"snapshot_hash":   snap.Hash,
		"loaded_at":       snap.LoadedAt,
		"projects":        len(snap.Projects),
		"quality_records": len(snap.Quality),
	})
}
