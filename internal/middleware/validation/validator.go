package validation

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var (
	identifierPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)
	controlPattern    = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f]`)
)

type Config struct {
	MaxFilterValueLength int
	MaxFilters           int
	AllowedContentTypes  []string
	Logger               *zap.Logger
}

// aggregateBody mirrors the fields of an aggregation request that name columns
// or carry free text.
type aggregateBody struct {
	Cube      string `json:"cube"`
	Operation string `json:"operation"`
	Params    struct {
		Dimension       string            `json:"dimension"`
		Value           string            `json:"value"`
		Filters         map[string]string `json:"filters"`
		FinerDimension  string            `json:"finer_dimension"`
		RowDimension    string            `json:"row_dimension"`
		ColumnDimension string            `json:"column_dimension"`
		Metric          string            `json:"metric"`
	} `json:"params"`
}

func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxFilterValueLength == 0 {
		cfg.MaxFilterValueLength = 256
	}
	if cfg.MaxFilters == 0 {
		cfg.MaxFilters = 16
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{"application/json"}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodPost || c.Method() == fiber.MethodPut {
			contentType := c.Get(fiber.HeaderContentType)
			if contentType != "" {
				allowed := false
				for _, allowedType := range cfg.AllowedContentTypes {
					if strings.Contains(contentType, allowedType) {
						allowed = true
						break
					}
				}
				if !allowed {
					return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
						"error": "Unsupported content type",
					})
				}
			}
		}

		if c.Method() == fiber.MethodPost && strings.HasPrefix(c.Path(), "/api/v1/aggregate") {
			var req aggregateBody
			if err := json.Unmarshal(c.Body(), &req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid JSON format",
				})
			}
			if msg := checkAggregate(&req, cfg); msg != "" {
				cfg.Logger.Warn("Rejected aggregation request",
					zap.String("ip", c.IP()),
					zap.String("reason", msg),
				)
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": msg,
				})
			}
		}

		return c.Next()
	}
}

func checkAggregate(req *aggregateBody, cfg Config) string {
	if req.Cube == "" || req.Operation == "" {
		return "cube and operation are required"
	}
	p := req.Params
	for _, name := range []string{p.Dimension, p.FinerDimension, p.RowDimension, p.ColumnDimension, p.Metric} {
		if name != "" && !identifierPattern.MatchString(name) {
			return "Invalid column name"
		}
	}
	if len(p.Filters) > cfg.MaxFilters {
		return "Too many filters"
	}
	if !validText(p.Value, cfg.MaxFilterValueLength) {
		return "Invalid filter value"
	}
	for col, v := range p.Filters {
		if !identifierPattern.MatchString(col) {
			return "Invalid column name"
		}
		if !validText(v, cfg.MaxFilterValueLength) {
			return "Invalid filter value"
		}
	}
	return ""
}

func validText(s string, limit int) bool {
	return len(s) <= limit && !controlPattern.MatchString(s)
}
