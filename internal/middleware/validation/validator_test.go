package validation

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateValidation(t *testing.T) {
	app := fiber.New()
	app.Use(Middleware(Config{MaxFilters: 2}))
	app.Post("/api/v1/aggregate", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	tests := []struct {
		name        string
		contentType string
		body        string
		want        int
	}{
		{"valid", "application/json", `{"cube":"projects","operation":"slice","params":{"dimension":"status","value":"completed"}}`, 200},
		{"wrong content type", "text/plain", `{}`, 415},
		{"bad json", "application/json", `{`, 400},
		{"missing cube", "application/json", `{"operation":"slice"}`, 400},
		{"bad column", "application/json", `{"cube":"projects","operation":"slice","params":{"dimension":"status; drop"}}`, 400},
		{"control chars", "application/json", `{"cube":"projects","operation":"dice","params":{"filters":{"status":"a\u0000b"}}}`, 400},
		{"too many filters", "application/json", `{"cube":"projects","operation":"dice","params":{"filters":{"a":"1","b":"2","c":"3"}}}`, 400},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/v1/aggregate", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}
