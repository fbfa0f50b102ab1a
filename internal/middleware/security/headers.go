package security

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

type HeadersConfig struct {
	AllowedOrigins []string
	IsDevelopment  bool
}

// HeadersMiddleware sets the hardening headers for the JSON API and lets the
// dashboard UI open websocket streams to the allowed origins.
func HeadersMiddleware(cfg HeadersConfig) fiber.Handler {
	csp := "default-src 'none'; " +
		"connect-src 'self' " + buildConnectSrc(cfg.AllowedOrigins) + "; " +
		"frame-ancestors 'none'; " +
		"base-uri 'none'; " +
		"form-action 'none'"

	return func(c *fiber.Ctx) error {
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("Cache-Control", "no-store")

		if !cfg.IsDevelopment {
			c.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Set("Content-Security-Policy", csp)

		return c.Next()
	}
}

// buildConnectSrc lists each origin and its websocket counterpart.
func buildConnectSrc(origins []string) string {
	srcs := make([]string, 0, 2*len(origins))
	for _, origin := range origins {
		srcs = append(srcs, origin)
		switch {
		case strings.HasPrefix(origin, "https://"):
			srcs = append(srcs, "wss://"+strings.TrimPrefix(origin, "https://"))
		case strings.HasPrefix(origin, "http://"):
			srcs = append(srcs, "ws://"+strings.TrimPrefix(origin, "http://"))
		}
	}
	return strings.Join(srcs, " ")
}
