package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/dss-dashboard/backend/internal/storage/models"
	"github.com/dss-dashboard/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT UNIQUE NOT NULL,
		client_name TEXT,
		status TEXT NOT NULL,
		start_date INTEGER,
		end_date INTEGER,
		estimated_end INTEGER,
		duration_days INTEGER NOT NULL DEFAULT 0,
		estimated_cost REAL NOT NULL DEFAULT 0,
		actual_cost REAL NOT NULL DEFAULT 0,
		net_gain REAL NOT NULL DEFAULT 0,
		story_points INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_projects_client ON projects(client_name);
	CREATE INDEX IF NOT EXISTS idx_projects_status ON projects(status);

	CREATE TABLE IF NOT EXISTS quality_records (
		id TEXT PRIMARY KEY,
		project_name TEXT NOT NULL,
		severity TEXT NOT NULL,
		defect_count INTEGER NOT NULL,
		detection_date INTEGER,
		resolution_date INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_quality_project ON quality_records(project_name);
	CREATE INDEX IF NOT EXISTS idx_quality_severity ON quality_records(severity);

	CREATE TABLE IF NOT EXISTS forecast_runs (
		id TEXT PRIMARY KEY,
		user_id TEXT,
		snapshot_hash TEXT NOT NULL,
		story_points INTEGER NOT NULL,
		duration_days INTEGER NOT NULL,
		team_size INTEGER NOT NULL,
		experience TEXT NOT NULL,
		complexity TEXT NOT NULL,
		trials INTEGER NOT NULL,
		seed TEXT NOT NULL,
		total_defects INTEGER NOT NULL,
		sigma REAL NOT NULL,
		risk_level TEXT NOT NULL,
		confidence REAL NOT NULL,
		cache_hit INTEGER DEFAULT 0,
		latency_ms INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_user ON forecast_runs(user_id);
	CREATE INDEX IF NOT EXISTS idx_runs_created ON forecast_runs(created_at);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func unixOrNull(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func unixPtrOrNull(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return unixOrNull(*t)
}

func timeOf(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return time.Unix(v.Int64, 0).UTC()
}

func timePtrOf(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}

// UpsertProjects writes projects in one transaction, replacing rows by id.
func (c *Client) UpsertProjects(ctx context.Context, projects []models.Project) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO projects (id, name, client_name, status, start_date, end_date, estimated_end,
			duration_days, estimated_cost, actual_cost, net_gain, story_points)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			client_name = excluded.client_name,
			status = excluded.status,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			estimated_end = excluded.estimated_end,
			duration_days = excluded.duration_days,
			estimated_cost = excluded.estimated_cost,
			actual_cost = excluded.actual_cost,
			net_gain = excluded.net_gain,
			story_points = excluded.story_points
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare project upsert: %w", err)
	}
	defer stmt.Close()

	for _, p := range projects {
		_, err := stmt.ExecContext(ctx,
			p.ID, p.Name, p.ClientName, string(p.Status),
			unixOrNull(p.StartDate), unixOrNull(p.EndDate), unixPtrOrNull(p.EstimatedEnd),
			p.DurationDays, p.EstimatedCost, p.ActualCost, p.NetGain, p.StoryPoints,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert project %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit projects: %w", err)
	}

	logger.Info("Projects upserted", zap.Int("count", len(projects)))
	return nil
}

func (c *Client) ListProjects(ctx context.Context) ([]models.Project, error) {
	query := `
		SELECT id, name, client_name, status, start_date, end_date, estimated_end,
			duration_days, estimated_cost, actual_cost, net_gain, story_points
		FROM projects
		ORDER BY id
	`

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	var projects []models.Project
	for rows.Next() {
		var p models.Project
		var client sql.NullString
		var status string
		var start, end, estEnd sql.NullInt64

		err := rows.Scan(&p.ID, &p.Name, &client, &status, &start, &end, &estEnd,
			&p.DurationDays, &p.EstimatedCost, &p.ActualCost, &p.NetGain, &p.StoryPoints)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		p.ClientName = client.String
		p.Status = models.ProjectStatus(status)
		p.StartDate = timeOf(start)
		p.EndDate = timeOf(end)
		p.EstimatedEnd = timePtrOf(estEnd)
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate projects: %w", err)
	}

	return projects, nil
}

// UpsertQualityRecords writes records in one transaction, replacing rows by id.
func (c *Client) UpsertQualityRecords(ctx context.Context, records []models.QualityRecord) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO quality_records (id, project_name, severity, defect_count, detection_date, resolution_date)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			project_name = excluded.project_name,
			severity = excluded.severity,
			defect_count = excluded.defect_count,
			detection_date = excluded.detection_date,
			resolution_date = excluded.resolution_date
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare quality upsert: %w", err)
	}
	defer stmt.Close()

	for _, q := range records {
		_, err := stmt.ExecContext(ctx,
			q.ID, q.ProjectName, string(q.Severity), q.DefectCount,
			unixOrNull(q.DetectionDate), unixPtrOrNull(q.ResolutionDate),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert quality record %s: %w", q.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit quality records: %w", err)
	}

	logger.Info("Quality records upserted", zap.Int("count", len(records)))
	return nil
}

func (c *Client) ListQualityRecords(ctx context.Context) ([]models.QualityRecord, error) {
	query := `
		SELECT id, project_name, severity, defect_count, detection_date, resolution_date
		FROM quality_records
		ORDER BY id
	`

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query quality records: %w", err)
	}
	defer rows.Close()

	var records []models.QualityRecord
	for rows.Next() {
		var q models.QualityRecord
		var severity string
		var detected, resolved sql.NullInt64

		if err := rows.Scan(&q.ID, &q.ProjectName, &severity, &q.DefectCount, &detected, &resolved); err != nil {
			return nil, fmt.Errorf("failed to scan quality record: %w", err)
		}
		q.Severity = models.Severity(severity)
		q.DetectionDate = timeOf(detected)
		q.ResolutionDate = timePtrOf(resolved)
		records = append(records, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate quality records: %w", err)
	}

	return records, nil
}

func (c *Client) InsertForecastRun(ctx context.Context, run *models.ForecastRun) error {
	query := `
		INSERT INTO forecast_runs (id, user_id, snapshot_hash, story_points, duration_days, team_size,
			experience, complexity, trials, seed, total_defects, sigma, risk_level, confidence,
			cache_hit, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	cacheHit := 0
	if run.CacheHit {
		cacheHit = 1
	}

	// seed is stored as text because SQLite integers are signed 64-bit.
	_, err := c.db.ExecContext(ctx, query,
		run.ID, run.UserID, run.SnapshotHash, run.StoryPoints, run.DurationDays, run.TeamSize,
		run.Experience, run.Complexity, run.Trials, fmt.Sprintf("%d", run.Seed), run.TotalDefects,
		run.Sigma, run.RiskLevel, run.Confidence, cacheHit, run.LatencyMS, run.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert forecast run: %w", err)
	}

	logger.Info("Forecast run recorded",
		zap.String("run_id", run.ID),
		zap.String("user_id", run.UserID),
		zap.Int("total_defects", run.TotalDefects),
		zap.Bool("cache_hit", run.CacheHit),
	)

	return nil
}

// ListForecastRuns returns the most recent runs first. An empty userID lists every user.
func (c *Client) ListForecastRuns(ctx context.Context, userID string, limit int) ([]models.ForecastRun, error) {
	query := `
		SELECT id, user_id, snapshot_hash, story_points, duration_days, team_size, experience, complexity,
			trials, seed, total_defects, sigma, risk_level, confidence, cache_hit, latency_ms, created_at
		FROM forecast_runs
		WHERE (? = '' OR user_id = ?)
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`

	rows, err := c.db.QueryContext(ctx, query, userID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query forecast runs: %w", err)
	}
	defer rows.Close()

	var runs []models.ForecastRun
	for rows.Next() {
		var r models.ForecastRun
		var user sql.NullString
		var seed string
		var cacheHit int
		var latency sql.NullInt64
		var createdAt int64

		err := rows.Scan(&r.ID, &user, &r.SnapshotHash, &r.StoryPoints, &r.DurationDays, &r.TeamSize,
			&r.Experience, &r.Complexity, &r.Trials, &seed, &r.TotalDefects, &r.Sigma, &r.RiskLevel,
			&r.Confidence, &cacheHit, &latency, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan forecast run: %w", err)
		}
		r.UserID = user.String
		if _, err := fmt.Sscan(seed, &r.Seed); err != nil {
			return nil, fmt.Errorf("failed to parse seed of run %s: %w", r.ID, err)
		}
		r.CacheHit = cacheHit == 1
		r.LatencyMS = int(latency.Int64)
		r.CreatedAt = time.Unix(createdAt, 0).UTC()
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate forecast runs: %w", err)
	}

	return runs, nil
}
