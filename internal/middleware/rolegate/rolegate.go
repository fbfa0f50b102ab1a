// Package rolegate turns the identity headers set by the upstream gateway into
// a dashboard.RequestContext and enforces per-route roles.
package rolegate

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/dss-dashboard/backend/internal/dashboard"
)

const (
	HeaderUserID = "X-User-ID"
	HeaderRole   = "X-User-Role"

	// LocalsKey holds the RequestContext in fiber and websocket locals.
	LocalsKey = "request_context"
)

// Identify stores the caller's RequestContext for later handlers.
func Identify() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(LocalsKey, dashboard.RequestContext{
			UserID: c.Get(HeaderUserID),
			Role:   dashboard.ParseRole(c.Get(HeaderRole)),
		})
		return c.Next()
	}
}

// From returns the RequestContext set by Identify, or an anonymous viewer.
func From(c *fiber.Ctx) dashboard.RequestContext {
	if rc, ok := c.Locals(LocalsKey).(dashboard.RequestContext); ok {
		return rc
	}
	return dashboard.RequestContext{Role: dashboard.RoleViewer}
}

// Require rejects callers whose role is not listed.
func Require(logger *zap.Logger, roles ...dashboard.Role) fiber.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *fiber.Ctx) error {
		rc := From(c)
		for _, r := range roles {
			if rc.Role == r {
				return c.Next()
			}
		}
		logger.Warn("Role denied",
			zap.String("user_id", rc.UserID),
			zap.String("role", string(rc.Role)),
			zap.String("path", c.Path()),
		)
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Insufficient role for this operation",
		})
	}
}
