package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/dss-dashboard/backend/internal/dashboard"
	"github.com/dss-dashboard/backend/internal/middleware/rolegate"
)

type ForecastHandler struct {
	svc Service
}

func NewForecastHandler(svc Service) *ForecastHandler {
	return &ForecastHandler{
		svc: svc,
	}
}

func (h *ForecastHandler) Forecast(c *fiber.Ctx) error {
	var req dashboard.ForecastRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	resp, err := h.svc.Forecast(c.UserContext(), rolegate.From(c), req)
	if err != nil {
		return respondError(c, "run forecast", err)
	}
	return c.JSON(resp)
}

func (h *ForecastHandler) Runs(c *fiber.Ctx) error {
	runs, err := h.svc.ForecastRuns(c.UserContext(), rolegate.From(c), c.QueryInt("limit", 50))
	if err != nil {
		return respondError(c, "list forecast runs", err)
	}
	return c.JSON(fiber.Map{
		"runs": runs,
	})
}
