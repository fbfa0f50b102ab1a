package rolegate

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dss-dashboard/backend/internal/dashboard"
)

func TestRequire(t *testing.T) {
	app := fiber.New()
	app.Use(Identify())
	app.Get("/forecast", Require(nil, dashboard.RoleAdmin, dashboard.RoleProjectManager), func(c *fiber.Ctx) error {
		return c.SendString(From(c).UserID)
	})

	tests := []struct {
		role string
		want int
	}{
		{"admin", 200},
		{"project_manager", 200},
		{"viewer", 403},
		{"", 403},
		{"root", 403},
	}
	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/forecast", nil)
			req.Header.Set(HeaderUserID, "u1")
			req.Header.Set(HeaderRole, tt.role)
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestFromWithoutIdentify(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(string(From(c).Role))
	})
	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	buf := make([]byte, 16)
	n, _ := resp.Body.Read(buf)
	assert.Equal(t, "viewer", string(buf[:n]))
}
