package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/christopherklint97/meetr/internal/config"
	"github.com/christopherklint97/meetr/internal/draft"
	"github.com/christopherklint97/meetr/internal/fullhour"
	"github.com/christopherklint97/meetr/internal/msgraph"
	"github.com/christopherklint97/meetr/internal/scheduler"
	"github.com/christopherklint97/meetr/internal/store"
	"github.com/christopherklint97/meetr/internal/tui"
)

func runSummary(cmd *cobra.Command, args []string) error {
	env, err := newRunEnv()
	if err != nil {
		return err
	}
	defer env.close()

	now, err := referenceTime(cmd, env.loc)
	if err != nil {
		return err
	}

	snap, err := env.snapshot(cmd.Context(), now)
	if err != nil {
		return err
	}

	fmt.Println(tui.RenderSummary(snap.Report))

	if env.db != nil {
		if err := env.db.InsertSnapshots(store.SnapshotsFromReport(snap.Report)); err != nil {
			env.logger.Warn("recording snapshot", "error", err)
		}
	}

	noPrompt, _ := cmd.Flags().GetBool("no-prompt")
	if noPrompt {
		printCandidates(snap.Scan)
		return nil
	}
	return env.review(snap.Scan.Candidates)
}

func runScan(cmd *cobra.Command, args []string) error {
	env, err := newRunEnv()
	if err != nil {
		return err
	}
	defer env.close()

	now, err := referenceTime(cmd, env.loc)
	if err != nil {
		return err
	}

	snap, err := env.snapshot(cmd.Context(), now)
	if err != nil {
		return err
	}

	list, _ := cmd.Flags().GetBool("list")
	noPrompt, _ := cmd.Flags().GetBool("no-prompt")
	if list || noPrompt {
		printCandidates(snap.Scan)
		return nil
	}
	return env.review(snap.Scan.Candidates)
}

// review runs the reschedule dialog over candidates.
func (e *runEnv) review(candidates []fullhour.Candidate) error {
	if len(candidates) == 0 {
		fmt.Println("No upcoming meetings start on the full hour.")
		return nil
	}

	tplPath, err := config.ResolveFile(e.cfg.Files.Template)
	if err != nil {
		return err
	}
	tpl, err := draft.LoadTemplate(tplPath)
	if err != nil {
		e.logger.Warn("using default email template", "error", err)
	}

	app := tui.NewRescheduleApp(candidates, tpl, &rescheduleActions{
		drafter: e.drafter,
		optouts: e.optouts,
		db:      e.db,
		logger:  e.logger,
	})
	if _, err := tea.NewProgram(app).Run(); err != nil {
		return fmt.Errorf("running TUI: %w", err)
	}

	for _, o := range app.Outcomes() {
		e.logger.Info("full-hour meeting handled",
			"subject", o.Candidate.Entry.Subject,
			"decision", o.Decision.String(),
			"error", o.Err,
		)
	}
	return nil
}

func printCandidates(res fullhour.Result) {
	if len(res.Candidates) == 0 {
		fmt.Println("No upcoming meetings start on the full hour.")
		return
	}
	fmt.Printf("%d meeting(s) start on the full hour:\n\n", len(res.Candidates))
	for _, c := range res.Candidates {
		organizer := c.Entry.OrganizerName
		if organizer == "" {
			organizer = c.Entry.OrganizerEmail
		}
		fmt.Printf("  %s  %-40s  %s\n", draft.FormatStart(c.LocalStart), c.Entry.Subject, organizer)
	}
	if n := res.Skipped[string(fullhour.SkipPreviouslyIgnored)]; n > 0 {
		fmt.Printf("\n%d previously ignored meeting(s) not shown.\n", n)
	}
}

func runAuth(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	tokenPath, err := config.TokenPath()
	if err != nil {
		return err
	}
	tokens := msgraph.NewTokenStore(tokenPath)

	logout, _ := cmd.Flags().GetBool("logout")
	if logout {
		if err := tokens.Clear(); err != nil {
			return err
		}
		fmt.Println("Signed out of Microsoft Graph.")
		return nil
	}

	if cfg.Graph.ClientID == "" {
		return fmt.Errorf("graph.client_id not configured; run 'meetr config' or set MSGRAPH_CLIENT_ID")
	}

	auth := msgraph.NewAuth(cfg.Graph.ClientID, cfg.Graph.TenantID, tokens, nil)
	err = auth.Login(cmd.Context(), func(dc *msgraph.DeviceCodeResponse) {
		if dc.Message != "" {
			fmt.Println(dc.Message)
			return
		}
		fmt.Printf("Open %s and enter the code %s\n", dc.VerificationURI, dc.UserCode)
	})
	if err != nil {
		return fmt.Errorf("signing in: %w", err)
	}

	fmt.Println("Signed in to Microsoft Graph.")
	return nil
}

func runOptOuts(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	s, err := openOptOuts(cfg)
	if err != nil {
		return err
	}

	entries, err := s.List()
	if err != nil {
		return fmt.Errorf("reading opt-out list: %w", err)
	}
	if len(entries) == 0 {
		fmt.Printf("No opted-out meetings (%s).\n", s.Path())
		return nil
	}

	fmt.Printf("%d opted-out meeting(s) in %s:\n\n", len(entries), s.Path())
	for _, e := range entries {
		fmt.Printf("  %s\n", e.ID)
		if e.Note != "" {
			fmt.Printf("    %s\n", e.Note)
		}
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	runs, _ := cmd.Flags().GetInt("runs")

	path, err := config.DBPath()
	if err != nil {
		return err
	}
	db, err := store.Open(path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	snaps, err := db.RecentSnapshots(runs)
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		fmt.Println("No runs recorded yet.")
		return nil
	}

	var last time.Time
	for _, s := range snaps {
		if !s.RunAt.Equal(last) {
			fmt.Printf("\n%s\n", s.RunAt.Local().Format("Mon 2006-01-02 15:04"))
			last = s.RunAt
		}
		fmt.Printf("  %-18s %6.2fh  %3d meeting(s)  %s - %s\n",
			s.Period, s.Hours, s.Count,
			s.From.Local().Format("Jan 02"), s.To.Local().Format("Jan 02"))
	}

	drafts, err := db.RecentDrafts(10)
	if err != nil {
		return err
	}
	if len(drafts) > 0 {
		fmt.Println("\nRecent reschedule drafts:")
		for _, d := range drafts {
			fmt.Printf("  %s  %-40s  %s\n", d.Start.Local().Format("Jan 02 15:04"), d.Subject, d.Organizer)
		}
	}
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	env, err := newRunEnv()
	if err != nil {
		return err
	}
	defer env.close()

	pidPath, err := config.PIDPath()
	if err != nil {
		return err
	}

	job := func(ctx context.Context, now time.Time) ([]fullhour.Candidate, error) {
		snap, err := env.snapshot(ctx, now.In(env.loc))
		if err != nil {
			return nil, err
		}
		if env.db == nil {
			return snap.Scan.Candidates, nil
		}
		if err := env.db.InsertSnapshots(store.SnapshotsFromReport(snap.Report)); err != nil {
			env.logger.Warn("recording snapshot", "error", err)
		}
		var pending []fullhour.Candidate
		for _, c := range snap.Scan.Candidates {
			drafted, err := env.db.HasDraft(c.Entry.StableID, c.LocalStart)
			if err != nil {
				env.logger.Warn("checking draft history", "error", err)
			}
			if !drafted {
				pending = append(pending, c)
			}
		}
		return pending, nil
	}

	var notifier scheduler.Notifier
	if env.cfg.Notifications.Enabled {
		notifier = scheduler.DesktopNotifier{}
	}
	var state scheduler.State
	if env.db != nil {
		state = env.db
	}

	sched, err := scheduler.New(env.cfg.Watch.Cron, job, notifier, state, pidPath, env.logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	fmt.Printf("Watching calendar (schedule %q)\n", env.cfg.Watch.Cron)
	return sched.Run(ctx)
}

func runStop(cmd *cobra.Command, args []string) error {
	pidPath, err := config.PIDPath()
	if err != nil {
		return err
	}
	pid, err := scheduler.ReadPID(pidPath)
	if err != nil {
		return err
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("finding process %d: %w", pid, err)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("sending stop signal: %w", err)
	}

	fmt.Printf("Sent stop signal to meetr (PID %d)\n", pid)
	return nil
}

func runConfig(cmd *cobra.Command, args []string) error {
	configPath, err := config.ConfigPath()
	if err != nil {
		return err
	}

	if _, err := config.WriteDefault(configPath); err != nil {
		return err
	}

	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "vi"
	}

	fmt.Printf("Opening %s with %s...\n", configPath, editor)

	c := exec.Command(editor, configPath)
	c.Stdin, c.Stdout, c.Stderr = os.Stdin, os.Stdout, os.Stderr
	if err := c.Run(); err != nil {
		// If editor fails, just print the path
		fmt.Printf("Could not open editor. Config file is at: %s\n", configPath)
	}
	return nil
}
