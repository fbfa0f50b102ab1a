package handlers

import (
	"bytes"

	"github.com/gofiber/fiber/v2"

	"github.com/dss-dashboard/backend/internal/dashboard"
	"github.com/dss-dashboard/backend/internal/export"
	"github.com/dss-dashboard/backend/internal/middleware/rolegate"
	"github.com/dss-dashboard/backend/internal/olap"
)

type ExportHandler struct {
	svc Service
}

func NewExportHandler(svc Service) *ExportHandler {
	return &ExportHandler{
		svc: svc,
	}
}

// Pivot runs a pivot aggregation and returns it as a workbook.
func (h *ExportHandler) Pivot(c *fiber.Ctx) error {
	var req dashboard.AggregateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Operation == "" {
		req.Operation = string(olap.OpPivot)
	}
	if op, err := olap.ParseOperation(req.Operation); err != nil || op != olap.OpPivot {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Only pivot results can be exported",
		})
	}

	res, err := h.svc.Aggregate(c.UserContext(), req)
	if err != nil {
		return respondError(c, "aggregate", err)
	}

	var buf bytes.Buffer
	if err := export.PivotWorkbook(&buf, res.Pivot); err != nil {
		return respondError(c, "export pivot", err)
	}
	return sendWorkbook(c, "pivot.xlsx", buf.Bytes())
}

func (h *ExportHandler) Forecast(c *fiber.Ctx) error {
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

	var buf bytes.Buffer
	if err := export.ForecastWorkbook(&buf, resp.Result); err != nil {
		return respondError(c, "export forecast", err)
	}
	return sendWorkbook(c, "forecast-"+resp.RunID+".xlsx", buf.Bytes())
}

func sendWorkbook(c *fiber.Ctx, filename string, body []byte) error {
	c.Attachment(filename)
	c.Set(fiber.HeaderContentType, export.ContentType)
	return c.Send(body)
}
