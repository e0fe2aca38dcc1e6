package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tj/go-naturaldate"

	"github.com/christopherklint97/meetr/internal/calendar"
	"github.com/christopherklint97/meetr/internal/config"
	"github.com/christopherklint97/meetr/internal/draft"
	"github.com/christopherklint97/meetr/internal/filter"
	"github.com/christopherklint97/meetr/internal/msgraph"
	"github.com/christopherklint97/meetr/internal/optout"
	"github.com/christopherklint97/meetr/internal/store"
	"github.com/christopherklint97/meetr/internal/summary"
)

var rootCmd = &cobra.Command{
	Use:   "meetr",
	Short: "Meeting-hour summary and full-hour meeting assistant",
	Long: "meetr totals your meeting hours for today, the next working day and the next two weeks, " +
		"and offers to draft emails asking organizers to move on-the-hour meetings to :05.",
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
	RunE:              runSummary,
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show meeting hours and review full-hour meetings (default)",
	RunE:  runSummary,
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Review upcoming meetings that start on the full hour",
	RunE:  runScan,
}

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Sign in to Microsoft Graph with a device code",
	RunE:  runAuth,
}

var optoutsCmd = &cobra.Command{
	Use:   "optouts",
	Short: "List meetings you asked never to be asked about again",
	RunE:  runOptOuts,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show meeting hours recorded by previous runs",
	RunE:  runHistory,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Scan on a schedule and notify about new full-hour meetings",
	RunE:  runWatch,
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running watch",
	RunE:  runStop,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Open config file in your editor",
	RunE:  runConfig,
}

var logFile *os.File

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug details to the log file")
	for _, c := range []*cobra.Command{rootCmd, summaryCmd, scanCmd} {
		c.Flags().String("date", "", `Reference date, e.g. "next monday" or "2025-01-20"`)
		c.Flags().Bool("no-prompt", false, "Do not ask about full-hour meetings")
	}
	scanCmd.Flags().Bool("list", false, "Only list full-hour meetings")
	authCmd.Flags().Bool("logout", false, "Remove cached tokens")
	historyCmd.Flags().IntP("runs", "n", 5, "Number of runs to show")

	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(optoutsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	err := rootCmd.Execute()
	if logFile != nil {
		logFile.Close()
	}
	if err != nil {
		os.Exit(1)
	}
}

// setupLogging starts a fresh log file in the config directory for every run.
func setupLogging(cmd *cobra.Command, args []string) error {
	verbose, _ := cmd.Flags().GetBool("verbose")
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	var w io.Writer = io.Discard
	if err := config.EnsureConfigDir(); err == nil {
		if path, err := config.LogPath(); err == nil {
			if f, err := os.Create(path); err == nil {
				logFile = f
				w = f
			}
		}
	}

	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	logger.Info("meetr started", "command", cmd.Name(), "time", time.Now().Format("2006-01-02 15:04:05"))
	return nil
}

func loadConfig() (*config.Config, *time.Location, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, nil, err
	}
	return cfg, loc, nil
}

// referenceTime resolves --date against the current time in loc.
func referenceTime(cmd *cobra.Command, loc *time.Location) (time.Time, error) {
	now := time.Now().In(loc)
	expr, _ := cmd.Flags().GetString("date")
	return parseReference(expr, now)
}

func parseReference(expr string, now time.Time) (time.Time, error) {
	if expr == "" {
		return now, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", expr, now.Location()); err == nil {
		return t, nil
	}
	t, err := naturaldate.Parse(expr, now, naturaldate.WithDirection(naturaldate.Future))
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing --date %q: %w", expr, err)
	}
	return t.In(now.Location()), nil
}

func newGraphClient(cfg *config.Config, loc *time.Location, logger *slog.Logger) (*msgraph.Client, *msgraph.Auth, error) {
	tokenPath, err := config.TokenPath()
	if err != nil {
		return nil, nil, err
	}
	auth := msgraph.NewAuth(cfg.Graph.ClientID, cfg.Graph.TenantID, msgraph.NewTokenStore(tokenPath), logger)
	return msgraph.NewClient(auth, loc, logger), auth, nil
}

// newSource picks the calendar source and, when Graph is configured, the
// drafter used for reschedule emails.
func newSource(cfg *config.Config, loc *time.Location, logger *slog.Logger) (calendar.Source, draft.Drafter, error) {
	var graph *msgraph.Client
	if cfg.Graph.ClientID != "" {
		client, _, err := newGraphClient(cfg, loc, logger)
		if err != nil {
			return nil, nil, err
		}
		graph = client
	}

	var drafter draft.Drafter
	if graph != nil {
		drafter = graph
	}

	if cfg.UsesGraph() {
		return graph, drafter, nil
	}
	return calendar.NewICSSource(cfg.Calendar.Source, loc, cfg.Calendar.UserEmail, logger), drafter, nil
}

func loadPatterns(cfg *config.Config, logger *slog.Logger) filter.Patterns {
	path, err := config.ResolveFile(cfg.Files.Ignore)
	if err != nil {
		logger.Warn("resolving ignore file", "error", err)
		return nil
	}
	return filter.LoadPatterns(path, logger)
}

func openOptOuts(cfg *config.Config) (*optout.Store, error) {
	path, err := config.ResolveFile(cfg.Files.OptOut)
	if err != nil {
		return nil, err
	}
	return optout.NewStore(path), nil
}

// openHistory opens the run history. Failures are logged and yield nil so
// that history never blocks a run.
func openHistory(logger *slog.Logger) *store.DB {
	path, err := config.DBPath()
	if err != nil {
		logger.Warn("history database unavailable", "error", err)
		return nil
	}
	db, err := store.Open(path)
	if err != nil {
		logger.Warn("history database unavailable", "error", err)
		return nil
	}
	return db
}

type runEnv struct {
	cfg     *config.Config
	loc     *time.Location
	runner  *summary.Runner
	drafter draft.Drafter
	optouts *optout.Store
	db      *store.DB
	logger  *slog.Logger
}

func newRunEnv() (*runEnv, error) {
	logger := slog.Default()
	cfg, loc, err := loadConfig()
	if err != nil {
		return nil, err
	}

	src, drafter, err := newSource(cfg, loc, logger)
	if err != nil {
		return nil, err
	}

	optouts, err := openOptOuts(cfg)
	if err != nil {
		return nil, err
	}

	patterns := loadPatterns(cfg, logger)
	logger.Info("ignore patterns loaded", "count", len(patterns), "patterns", patterns.Strings())

	return &runEnv{
		cfg: cfg,
		loc: loc,
		runner: &summary.Runner{
			Source:      src,
			Patterns:    patterns,
			MaxCount:    cfg.Scan.MaxCount,
			HorizonDays: cfg.Scan.HorizonDays,
			Logger:      logger,
		},
		drafter: drafter,
		optouts: optouts,
		db:      openHistory(logger),
		logger:  logger,
	}, nil
}

func (e *runEnv) close() {
	if e.db != nil {
		e.db.Close()
	}
}

// snapshot loads the opt-out list and runs one fetch-and-evaluate pass.
func (e *runEnv) snapshot(ctx context.Context, now time.Time) (*summary.Snapshot, error) {
	ignored, err := e.optouts.Load()
	if err != nil {
		e.logger.Warn("loading opt-out list", "error", err)
		ignored = optout.Set{}
	}
	e.logger.Info("opt-out list loaded", "count", len(ignored))
	e.runner.OptOuts = ignored

	snap, err := e.runner.Run(ctx, now)
	if errors.Is(err, msgraph.ErrNotAuthenticated) {
		return nil, fmt.Errorf("%w (run 'meetr auth')", err)
	}
	return snap, err
}

