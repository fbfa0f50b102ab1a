package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dss-dashboard/backend/internal/dashboard"
	"github.com/dss-dashboard/backend/internal/evaluation"
	"github.com/dss-dashboard/backend/internal/forecast"
	"github.com/dss-dashboard/backend/internal/ingestion"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load project and quality CSV extracts into the store",
	RunE:  runImport,
}

var importArgs struct {
	projects string
	quality  string
}

var kpisCmd = &cobra.Command{
	Use:   "kpis",
	Short: "Compute the KPI report",
	RunE:  runKPIs,
}

var scorecardCmd = &cobra.Command{
	Use:   "scorecard",
	Short: "Build the balanced scorecard",
	RunE:  runScorecard,
}

var forecastCmd = &cobra.Command{
	Use:   "forecast",
	Short: "Forecast defects for a planned project",
	RunE:  runForecast,
}

var forecastArgs struct {
	storyPoints    int
	durationDays   int
	durationMonths float64
	teamSize       int
	experience     string
	complexity     string
	trials         int
	seed           uint64
	user           string
	role           string
	curve          bool
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded forecast runs",
	RunE:  runRuns,
}

var runsArgs struct {
	limit int
	user  string
	role  string
}

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Forecast each past project from the others and report the error",
	RunE:  runBacktest,
}

var backtestArgs struct {
	trials int
	text   bool
}

func init() {
	importCmd.Flags().StringVar(&importArgs.projects, "projects", "", "Projects CSV file")
	importCmd.Flags().StringVar(&importArgs.quality, "quality", "", "Quality records CSV file")

	f := forecastCmd.Flags()
	f.IntVar(&forecastArgs.storyPoints, "story-points", 0, "Planned size in story points")
	f.IntVar(&forecastArgs.durationDays, "duration-days", 0, "Planned duration in days")
	f.Float64Var(&forecastArgs.durationMonths, "duration-months", 0, "Planned duration in months, used when --duration-days is not set")
	f.IntVar(&forecastArgs.teamSize, "team", 5, "Team size")
	f.StringVar(&forecastArgs.experience, "experience", "mid", "Team experience: junior, mid or senior")
	f.StringVar(&forecastArgs.complexity, "complexity", "medium", "Technology complexity: low, medium, high or very-high")
	f.IntVar(&forecastArgs.trials, "trials", 0, "Monte-Carlo trials (defaults to forecast.trials)")
	f.Uint64Var(&forecastArgs.seed, "seed", 0, "Monte-Carlo seed (0 uses the configured or derived seed)")
	f.StringVar(&forecastArgs.user, "user", "cli", "User recorded with the run")
	f.StringVar(&forecastArgs.role, "role", string(dashboard.RoleAdmin), "Role to run as")
	f.BoolVar(&forecastArgs.curve, "curve", false, "Include the daily curve in the output")

	runsCmd.Flags().IntVar(&runsArgs.limit, "limit", 20, "Maximum runs to list")
	runsCmd.Flags().StringVar(&runsArgs.user, "user", "cli", "User whose runs to list")
	runsCmd.Flags().StringVar(&runsArgs.role, "role", string(dashboard.RoleAdmin), "Role to list as")

	backtestCmd.Flags().IntVar(&backtestArgs.trials, "trials", 2000, "Monte-Carlo trials per project")
	backtestCmd.Flags().BoolVar(&backtestArgs.text, "text", false, "Print a plain-text summary instead of structured output")

	rootCmd.AddCommand(importCmd, kpisCmd, scorecardCmd, forecastCmd, runsCmd, backtestCmd)
}

func runImport(cmd *cobra.Command, argv []string) error {
	if importArgs.projects == "" && importArgs.quality == "" {
		return cmd.Help()
	}
	e, err := openEnv(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer e.Close()

	summary, err := ingestion.NewProcessor(e.store).ImportFiles(cmd.Context(), importArgs.projects, importArgs.quality)
	if err != nil {
		return err
	}
	return encode(cmd.OutOrStdout(), rootArgs.output, summary)
}

func runKPIs(cmd *cobra.Command, argv []string) error {
	e, err := openEnv(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer e.Close()

	report, err := e.svc.KPIs(cmd.Context())
	if err != nil {
		return err
	}
	return encode(cmd.OutOrStdout(), rootArgs.output, report)
}

func runScorecard(cmd *cobra.Command, argv []string) error {
	e, err := openEnv(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer e.Close()

	sc, err := e.svc.Scorecard(cmd.Context())
	if err != nil {
		return err
	}
	return encode(cmd.OutOrStdout(), rootArgs.output, sc)
}

// forecastRequest builds the service request from the forecast flags.
func forecastRequest() (dashboard.ForecastRequest, error) {
	exp, err := forecast.ParseExperience(forecastArgs.experience)
	if err != nil {
		return dashboard.ForecastRequest{}, err
	}
	cx, err := forecast.ParseComplexity(forecastArgs.complexity)
	if err != nil {
		return dashboard.ForecastRequest{}, err
	}
	req := dashboard.ForecastRequest{
		Input: forecast.Input{
			StoryPoints:    forecastArgs.storyPoints,
			DurationDays:   forecastArgs.durationDays,
			DurationMonths: forecastArgs.durationMonths,
			TeamSize:       forecastArgs.teamSize,
			Experience:     exp,
			Complexity:     cx,
		},
		Trials: forecastArgs.trials,
	}
	if forecastArgs.seed != 0 {
		seed := forecastArgs.seed
		req.Seed = &seed
	}
	return req, nil
}

func runForecast(cmd *cobra.Command, argv []string) error {
	req, err := forecastRequest()
	if err != nil {
		return err
	}
	e, err := openEnv(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer e.Close()

	rc := dashboard.RequestContext{UserID: forecastArgs.user, Role: dashboard.ParseRole(forecastArgs.role)}
	resp, err := e.svc.Forecast(cmd.Context(), rc, req)
	if err != nil {
		return err
	}
	if !forecastArgs.curve {
		// The response may be shared with the cache; trim a copy.
		res := *resp.Result
		curve := *res.Curve
		curve.Points = nil
		res.Curve = &curve
		out := *resp
		out.Result = &res
		resp = &out
	}
	return encode(cmd.OutOrStdout(), rootArgs.output, resp)
}

func runRuns(cmd *cobra.Command, argv []string) error {
	e, err := openEnv(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer e.Close()

	rc := dashboard.RequestContext{UserID: runsArgs.user, Role: dashboard.ParseRole(runsArgs.role)}
	runs, err := e.svc.ForecastRuns(cmd.Context(), rc, runsArgs.limit)
	if err != nil {
		return err
	}
	return encode(cmd.OutOrStdout(), rootArgs.output, runs)
}

func runBacktest(cmd *cobra.Command, argv []string) error {
	e, err := openEnv(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer e.Close()

	snap, err := e.svc.Snapshot()
	if err != nil {
		return err
	}
	opts := forecastOptions(e.cfg)
	if backtestArgs.trials > 0 {
		opts.Trials = backtestArgs.trials
	}
	report, err := evaluation.NewEvaluator(opts, evaluation.DefaultAssumptions()).Backtest(cmd.Context(), snap.Projects, snap.Quality)
	if err != nil {
		return err
	}
	if backtestArgs.text {
		_, err := fmt.Fprint(cmd.OutOrStdout(), evaluation.GenerateReport(report))
		return err
	}
	return encode(cmd.OutOrStdout(), rootArgs.output, report)
}
