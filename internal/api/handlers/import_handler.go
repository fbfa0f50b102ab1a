package handlers

import (
	"context"
	"io"
	"mime/multipart"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/dss-dashboard/backend/internal/ingestion"
	"github.com/dss-dashboard/backend/pkg/logger"
)

type Importer interface {
	Import(ctx context.Context, projects, quality io.Reader) (ingestion.Summary, error)
}

// ImportHandler accepts CSV extracts as multipart files named "projects"
// and "quality", then refreshes the snapshot.
type ImportHandler struct {
	importer Importer
	svc      Service
}

func NewImportHandler(importer Importer, svc Service) *ImportHandler {
	return &ImportHandler{
		importer: importer,
		svc:      svc,
	}
}

func (h *ImportHandler) Upload(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		logger.Error("Failed to parse upload", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid upload",
		})
	}

	projects, closeProjects, err := formFile(form, "projects")
	if err != nil {
		logger.Error("Failed to open uploaded file", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid upload",
		})
	}
	defer closeProjects()

	quality, closeQuality, err := formFile(form, "quality")
	if err != nil {
		logger.Error("Failed to open uploaded file", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid upload",
		})
	}
	defer closeQuality()

	if projects == nil && quality == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "projects or quality file is required",
		})
	}

	summary, err := h.importer.Import(c.UserContext(), projects, quality)
	if err != nil {
		return respondError(c, "import data", err)
	}

	snap, err := h.svc.Refresh(c.UserContext())
	if err != nil {
		return respondError(c, "refresh snapshot", err)
	}

	return c.JSON(fiber.Map{
		"message":         "Data imported successfully",
		"projects":        summary.Projects,
		"quality_records": summary.QualityRecords,
		"snapshot_hash":   snap.Hash,
	})
}

// formFile opens an optional multipart file. A missing field yields a nil reader.
func formFile(form *multipart.Form, field string) (io.Reader, func(), error) {
	files := form.File[field]
	if len(files) == 0 {
		return nil, func() {}, nil
	}
	f, err := files[0].Open()
	if err != nil {
		return nil, func() {}, err
	}
	return f, func() { f.Close() }, nil
}
