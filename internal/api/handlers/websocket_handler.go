package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/dss-dashboard/backend/internal/dashboard"
	"github.com/dss-dashboard/backend/internal/forecast"
	"github.com/dss-dashboard/backend/internal/middleware/rolegate"
	"github.com/dss-dashboard/backend/pkg/logger"
)

const defaultChunkSize = 30

// WebSocketHandler streams forecasts: a summary first, then the curve in
// chunks, then a completion message carrying the run id.
type WebSocketHandler struct {
	svc       Service
	chunkSize int
	timeout   time.Duration
}

func NewWebSocketHandler(svc Service, timeout time.Duration) *WebSocketHandler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WebSocketHandler{
		svc:       svc,
		chunkSize: defaultChunkSize,
		timeout:   timeout,
	}
}

// Upgrade admits websocket upgrades from callers allowed to forecast.
func (h *WebSocketHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	if !rolegate.From(c).CanForecast() {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Insufficient role for this operation",
		})
	}
	return c.Next()
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	rc, ok := c.Locals(rolegate.LocalsKey).(dashboard.RequestContext)
	if !ok {
		rc = dashboard.RequestContext{Role: dashboard.RoleViewer}
	}

	for {
		var msg struct {
			Type    string                    `json:"type"`
			Request dashboard.ForecastRequest `json:"request"`
		}

		err := c.ReadJSON(&msg)
		if err != nil {
			logger.Debug("WebSocket read ended", zap.Error(err))
			break
		}

		if msg.Type != "forecast" {
			continue
		}

		err = h.streamForecast(c, rc, msg.Request)
		if err != nil {
			logger.Error("Failed to stream forecast", zap.Error(err))
			break
		}
	}
}

func (h *WebSocketHandler) streamForecast(c *websocket.Conn, rc dashboard.RequestContext, req dashboard.ForecastRequest) error {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	if err := c.WriteJSON(fiber.Map{"type": "status", "content": "Running forecast..."}); err != nil {
		return err
	}

	resp, err := h.svc.Forecast(ctx, rc, req)
	if err != nil {
		return h.sendError(c, err)
	}

	res := resp.Result
	err = c.WriteJSON(fiber.Map{
		"type":        "summary",
		"input":       res.Input,
		"sigma":       res.Sigma,
		"estimate":    res.Estimate,
		"severity":    res.Severity,
		"qa":          res.QA,
		"risk":        res.Risk,
		"confidence":  res.Confidence,
		"peak_day":    res.Curve.PeakDay,
		"peak_value":  res.Curve.PeakValue,
		"total_days":  len(res.Curve.Points),
		"calibration": res.Calibration,
	})
	if err != nil {
		return err
	}

	for _, chunk := range chunkPoints(res.Curve.Points, h.chunkSize) {
		if err := c.WriteJSON(fiber.Map{"type": "curve", "points": chunk}); err != nil {
			return err
		}
	}

	return c.WriteJSON(fiber.Map{
		"type":          "complete",
		"run_id":        resp.RunID,
		"snapshot_hash": resp.SnapshotHash,
		"cache_hit":     resp.CacheHit,
	})
}

// sendError reports a failed forecast and keeps the connection open.
func (h *WebSocketHandler) sendError(c *websocket.Conn, err error) error {
	status := statusFor(err)
	msg := err.Error()
	if status == fiber.StatusInternalServerError {
		logger.Error("Failed to run forecast", zap.Error(err))
		msg = "Failed to run forecast"
	}
	return c.WriteJSON(fiber.Map{
		"type":   "error",
		"status": status,
		"error":  msg,
	})
}

func chunkPoints(points []forecast.Point, size int) [][]forecast.Point {
	if size <= 0 {
		size = defaultChunkSize
	}
	var out [][]forecast.Point
	for start := 0; start < len(points); start += size {
		end := min(start+size, len(points))
		out = append(out, points[start:end])
	}
	return out
}
