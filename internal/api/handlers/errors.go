package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/dss-dashboard/backend/internal/dashboard"
	"github.com/dss-dashboard/backend/internal/forecast"
	"github.com/dss-dashboard/backend/internal/ingestion"
	"github.com/dss-dashboard/backend/internal/kpi"
	"github.com/dss-dashboard/backend/internal/olap"
	"github.com/dss-dashboard/backend/pkg/logger"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, olap.ErrInvalidDimension),
		errors.Is(err, olap.ErrInvalidOperation),
		errors.Is(err, forecast.ErrInvalidParameter),
		errors.Is(err, ingestion.ErrInvalidRow):
		return fiber.StatusBadRequest
	case errors.Is(err, kpi.ErrInsufficientData),
		errors.Is(err, forecast.ErrInsufficientHistory):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, dashboard.ErrForbidden):
		return fiber.StatusForbidden
	case errors.Is(err, dashboard.ErrNotReady):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError writes err as a JSON error body. Client errors echo the
// message; server errors are logged and answered generically.
func respondError(c *fiber.Ctx, op string, err error) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError && status != fiber.StatusServiceUnavailable {
		logger.Error("Failed to "+op, zap.Error(err))
		return c.Status(status).JSON(fiber.Map{
			"error": "Failed to " + op,
		})
	}
	logger.Debug("Request rejected", zap.String("operation", op), zap.Int("status", status), zap.Error(err))
	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
	})
}
