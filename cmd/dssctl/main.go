// Command dssctl runs the dashboard operations against the local SQLite store
// and prints the results as YAML or JSON.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dss-dashboard/backend/internal/dashboard"
	"github.com/dss-dashboard/backend/internal/forecast"
	"github.com/dss-dashboard/backend/internal/storage/sqlite"
	"github.com/dss-dashboard/backend/pkg/config"
	appLogger "github.com/dss-dashboard/backend/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:           "dssctl",
	Short:         "Decision support dashboard command line",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var rootArgs struct {
	dbPath   string
	output   string
	logLevel string
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootArgs.dbPath, "db", "", "SQLite database path (defaults to sqlite.path from config)")
	rootCmd.PersistentFlags().StringVarP(&rootArgs.output, "output", "o", "yaml", "Output format: yaml or json")
	rootCmd.PersistentFlags().StringVar(&rootArgs.logLevel, "log-level", "warn", "Log level")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// env holds what every subcommand needs: the loaded config, an open store and
// a service with a loaded snapshot.
type env struct {
	cfg   *config.Config
	store *sqlite.Client
	svc   *dashboard.Service
}

func openEnv(ctx context.Context, loadSnapshot bool) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := appLogger.Init(rootArgs.logLevel, "console", "stderr"); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	path := cfg.SQLite.Path
	if rootArgs.dbPath != "" {
		path = rootArgs.dbPath
	}
	store, err := sqlite.NewClient(path)
	if err != nil {
		return nil, err
	}
	if err := store.InitSchema(); err != nil {
		store.Close()
		return nil, err
	}

	svc := dashboard.NewService(store, nil, dashboard.Options{
		Capacity:     cfg.KPI.Capacity,
		Forecast:     forecastOptions(cfg),
		Quarter:      cfg.Scorecard.Quarter,
		ManualInputs: cfg.Scorecard.ManualInputs,
	})
	if loadSnapshot {
		if _, err := svc.Refresh(ctx); err != nil {
			store.Close()
			return nil, err
		}
	}
	return &env{cfg: cfg, store: store, svc: svc}, nil
}

func forecastOptions(cfg *config.Config) forecast.Options {
	return forecast.Options{
		Trials:                cfg.Forecast.Trials,
		MaxTrials:             cfg.Forecast.MaxTrials,
		Seed:                  cfg.Forecast.Seed,
		Workers:               cfg.Forecast.Workers,
		DefaultDefectsPerKLOC: cfg.Forecast.DefaultDefectsPerKLOC,
	}
}

func (e *env) Close() {
	e.store.Close()
	appLogger.Sync()
}

func encode(w io.Writer, format string, v interface{}) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
