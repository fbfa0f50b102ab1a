package ingestion

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dss-dashboard/backend/internal/storage/models"
	"github.com/dss-dashboard/backend/pkg/logger"
)

var ErrInvalidRow = errors.New("invalid row")

// Store receives the imported tables.
type Store interface {
	UpsertProjects(ctx context.Context, projects []models.Project) error
	UpsertQualityRecords(ctx context.Context, records []models.QualityRecord) error
}

type Processor struct {
	store Store
}

func NewProcessor(store Store) *Processor {
	return &Processor{store: store}
}

type Summary struct {
	Projects       int `json:"projects" yaml:"projects"`
	QualityRecords int `json:"quality_records" yaml:"quality_records"`
}

// ImportFiles loads both extracts from disk and writes them to the store.
// Either path may be empty.
func (p *Processor) ImportFiles(ctx context.Context, projectsPath, qualityPath string) (Summary, error) {
	var projects, quality io.Reader
	if projectsPath != "" {
		f, err := os.Open(projectsPath)
		if err != nil {
			return Summary{}, fmt.Errorf("failed to open %s: %w", projectsPath, err)
		}
		defer f.Close()
		projects = f
	}
	if qualityPath != "" {
		f, err := os.Open(qualityPath)
		if err != nil {
			return Summary{}, fmt.Errorf("failed to open %s: %w", qualityPath, err)
		}
		defer f.Close()
		quality = f
	}
	return p.Import(ctx, projects, quality)
}

// Import parses both extracts and writes them to the store. A nil reader
// skips that table.
func (p *Processor) Import(ctx context.Context, projects, quality io.Reader) (Summary, error) {
	var s Summary

	if projects != nil {
		rows, err := ReadProjects(projects)
		if err != nil {
			return s, fmt.Errorf("failed to read projects: %w", err)
		}
		if err := p.store.UpsertProjects(ctx, rows); err != nil {
			return s, fmt.Errorf("failed to store projects: %w", err)
		}
		s.Projects = len(rows)
	}

	if quality != nil {
		rows, err := ReadQuality(quality)
		if err != nil {
			return s, fmt.Errorf("failed to read quality records: %w", err)
		}
		if err := p.store.UpsertQualityRecords(ctx, rows); err != nil {
			return s, fmt.Errorf("failed to store quality records: %w", err)
		}
		s.QualityRecords = len(rows)
	}

	logger.Info("Import completed",
		zap.Int("projects", s.Projects),
		zap.Int("quality_records", s.QualityRecords),
	)
	return s, nil
}

// canonicalHeader maps accepted header spellings, including the upstream
// Spanish extract, to canonical column names.
func canonicalHeader(h string) string {
	switch h {
	case "project_id", "id_proyecto", "record_id", "id_registro":
		return "id"
	case "name", "nombre_proyecto":
		return "project_name"
	case "nombre_cliente":
		return "client_name"
	case "estado":
		return "status"
	case "fecha_inicio":
		return "start_date"
	case "fecha_fin":
		return "end_date"
	case "fecha_fin_estimada":
		return "estimated_end"
	case "duracion_dias":
		return "duration_days"
	case "costo_estimado":
		return "estimated_cost"
	case "costo_total_real":
		return "actual_cost"
	case "ganancia_neta":
		return "net_gain"
	case "puntos_historia":
		return "story_points"
	case "severidad":
		return "severity"
	case "cantidad_defectos_encontrados":
		return "defect_count"
	case "fecha_deteccion":
		return "detection_date"
	case "fecha_resolucion":
		return "resolution_date"
	}
	return h
}

var statusAliases = map[string]models.ProjectStatus{
	"planned":     models.StatusPlanned,
	"planificado": models.StatusPlanned,
	"in-progress": models.StatusInProgress,
	"in progress": models.StatusInProgress,
	"en progreso": models.StatusInProgress,
	"completed":   models.StatusCompleted,
	"completado":  models.StatusCompleted,
	"cancelled":   models.StatusCancelled,
	"canceled":    models.StatusCancelled,
	"cancelado":   models.StatusCancelled,
}

var severityAliases = map[string]models.Severity{
	"critical": models.SeverityCritical,
	"critica":  models.SeverityCritical,
	"crítica":  models.SeverityCritical,
	"high":     models.SeverityHigh,
	"alta":     models.SeverityHigh,
	"medium":   models.SeverityMedium,
	"media":    models.SeverityMedium,
	"low":      models.SeverityLow,
	"baja":     models.SeverityLow,
}

var dateLayouts = []string{"2006-01-02", "2006-01-02 15:04:05", time.RFC3339, "02/01/2006"}

type row struct {
	line   int
	fields map[string]string
}

func (r row) text(col string) string { return strings.TrimSpace(r.fields[col]) }

func (r row) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: line %d: %s", ErrInvalidRow, r.line, fmt.Sprintf(format, args...))
}

func (r row) number(col string) (float64, error) {
	s := r.text(col)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, r.errorf("%s: %v", col, err)
	}
	return v, nil
}

func (r row) integer(col string) (int, error) {
	v, err := r.number(col)
	return int(v), err
}

func (r row) date(col string) (time.Time, error) {
	s := r.text(col)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, r.errorf("%s: unrecognized date %q", col, s)
}

func (r row) datePtr(col string) (*time.Time, error) {
	t, err := r.date(col)
	if err != nil || t.IsZero() {
		return nil, err
	}
	return &t, nil
}

// rowID returns the id column, or a name-based UUID of the raw line so that
// re-importing the same file updates rather than duplicates.
func (r row) rowID(raw []string) string {
	if id := r.text("id"); id != "" {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(strings.Join(raw, "\x1f"))).String()
}

func readRows(src io.Reader, required []string, fn func(r row, raw []string) error) error {
	cr := csv.NewReader(src)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return fmt.Errorf("%w: empty file", ErrInvalidRow)
	}
	if err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}

	cols := make([]string, len(header))
	present := make(map[string]bool)
	for i, h := range header {
		key := canonicalHeader(strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))))
		cols[i] = key
		present[key] = true
	}
	for _, c := range required {
		if !present[c] {
			return fmt.Errorf("%w: missing column %q", ErrInvalidRow, c)
		}
	}

	line := 1
	for {
		raw, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		line++
		if err != nil {
			return fmt.Errorf("failed to read line %d: %w", line, err)
		}
		r := row{line: line, fields: make(map[string]string, len(cols))}
		for i, v := range raw {
			if i < len(cols) {
				r.fields[cols[i]] = v
			}
		}
		if err := fn(r, raw); err != nil {
			return err
		}
	}
}

// ReadProjects parses a project extract. Duration falls back to end minus start.
func ReadProjects(src io.Reader) ([]models.Project, error) {
	var out []models.Project
	err := readRows(src, []string{"project_name", "status"}, func(r row, raw []string) error {
		p := models.Project{
			ID:         r.rowID(raw),
			Name:       r.text("project_name"),
			ClientName: r.text("client_name"),
		}
		if p.Name == "" {
			return r.errorf("project name is empty")
		}
		status, ok := statusAliases[strings.ToLower(r.text("status"))]
		if !ok {
			return r.errorf("unknown status %q", r.text("status"))
		}
		p.Status = status

		var err error
		if p.StartDate, err = r.date("start_date"); err != nil {
			return err
		}
		if p.EndDate, err = r.date("end_date"); err != nil {
			return err
		}
		if p.EstimatedEnd, err = r.datePtr("estimated_end"); err != nil {
			return err
		}
		if p.DurationDays, err = r.integer("duration_days"); err != nil {
			return err
		}
		if p.DurationDays == 0 && !p.StartDate.IsZero() && p.EndDate.After(p.StartDate) {
			p.DurationDays = int(p.EndDate.Sub(p.StartDate).Hours() / 24)
		}
		if p.EstimatedCost, err = r.number("estimated_cost"); err != nil {
			return err
		}
		if p.ActualCost, err = r.number("actual_cost"); err != nil {
			return err
		}
		if p.NetGain, err = r.number("net_gain"); err != nil {
			return err
		}
		if p.StoryPoints, err = r.integer("story_points"); err != nil {
			return err
		}
		if p.DurationDays < 0 || p.StoryPoints < 0 {
			return r.errorf("negative duration or story points")
		}
		out = append(out, p)
		return nil
	})
	return out, err
}

// ReadQuality parses a defect extract.
func ReadQuality(src io.Reader) ([]models.QualityRecord, error) {
	var out []models.QualityRecord
	err := readRows(src, []string{"project_name", "severity", "defect_count"}, func(r row, raw []string) error {
		q := models.QualityRecord{
			ID:          r.rowID(raw),
			ProjectName: r.text("project_name"),
		}
		sev, ok := severityAliases[strings.ToLower(r.text("severity"))]
		if !ok {
			return r.errorf("unknown severity %q", r.text("severity"))
		}
		q.Severity = sev

		var err error
		if q.DefectCount, err = r.integer("defect_count"); err != nil {
			return err
		}
		if q.DefectCount < 0 {
			return r.errorf("negative defect count")
		}
		if q.DetectionDate, err = r.date("detection_date"); err != nil {
			return err
		}
		if q.ResolutionDate, err = r.datePtr("resolution_date"); err != nil {
			return err
		}
		out = append(out, q)
		return nil
	})
	return out, err
}
