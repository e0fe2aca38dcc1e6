package scheduler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gen2brain/beeep"
	"github.com/robfig/cron/v3"

	"github.com/christopherklint97/meetr/internal/fullhour"
)

const notifiedKey = "watch.notified"

// Job performs one scan and returns the current full-hour candidates.
type Job func(ctx context.Context, now time.Time) ([]fullhour.Candidate, error)

// Notifier shows a desktop notification.
type Notifier interface {
	Notify(title, message string) error
}

// DesktopNotifier sends notifications through the OS notification center.
type DesktopNotifier struct{}

func (DesktopNotifier) Notify(title, message string) error {
	return beeep.Notify(title, message, "")
}

// State persists small values between runs.
type State interface {
	GetState(key string) (string, error)
	SetState(key, value string) error
}

type Scheduler struct {
	schedule cron.Schedule
	job      Job
	notifier Notifier
	state    State
	pidPath  string
	logger   *slog.Logger
	now      func() time.Time
}

// New parses spec as a standard five-field cron expression. notifier and
// state may be nil.
func New(spec string, job Job, notifier Notifier, state State, pidPath string, logger *slog.Logger) (*Scheduler, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parsing watch schedule %q: %w", spec, err)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Scheduler{
		schedule: schedule,
		job:      job,
		notifier: notifier,
		state:    state,
		pidPath:  pidPath,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Next returns the first scheduled run strictly after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t)
}

func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.writePID(); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer s.removePID()

	s.logger.Info("watch started", "pid", os.Getpid())

	for {
		nextTick := s.Next(s.now())
		fmt.Printf("Next scan at %s\n", nextTick.Format("Mon 15:04"))

		select {
		case <-ctx.Done():
			fmt.Println("\nWatch stopped.")
			return nil
		case <-time.After(time.Until(nextTick)):
		}

		n, err := s.Tick(ctx, s.now())
		if err != nil {
			s.logger.Error("watch scan failed", "error", err)
			fmt.Printf("Scan failed: %v\n", err)
			continue
		}
		s.logger.Info("watch scan complete", "notified", n)
	}
}

// Tick runs the job once and notifies about candidates not announced
// before. It returns how many candidates were new.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) (int, error) {
	candidates, err := s.job(ctx, now)
	if err != nil {
		return 0, err
	}

	seen := s.loadNotified(now)
	var fresh []fullhour.Candidate
	for _, c := range candidates {
		key := candidateKey(c)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = c.LocalStart
		fresh = append(fresh, c)
	}

	if len(fresh) > 0 && s.notifier != nil {
		if err := s.notifier.Notify("meetr", notificationText(fresh)); err != nil {
			s.logger.Warn("desktop notification failed", "error", err)
		}
	}
	s.saveNotified(seen)
	return len(fresh), nil
}

func notificationText(fresh []fullhour.Candidate) string {
	if len(fresh) == 1 {
		c := fresh[0]
		return fmt.Sprintf("%q starts on the hour (%s). Run 'meetr scan' to ask for :05.",
			c.Entry.Subject, c.LocalStart.Format("Mon 15:04"))
	}
	return fmt.Sprintf("%d upcoming meetings start on the hour. Run 'meetr scan' to review them.", len(fresh))
}

// candidateKey identifies one occurrence. Entries without a stable id fall
// back to subject and start.
func candidateKey(c fullhour.Candidate) string {
	id := c.Entry.StableID
	if id == "" {
		id = c.Entry.Subject
	}
	return id + "|" + c.LocalStart.UTC().Format(time.RFC3339)
}

// loadNotified returns announced keys mapped to their start, dropping
// occurrences that already began.
func (s *Scheduler) loadNotified(now time.Time) map[string]time.Time {
	seen := make(map[string]time.Time)
	if s.state == nil {
		return seen
	}
	raw, err := s.state.GetState(notifiedKey)
	if err != nil {
		s.logger.Warn("loading notified meetings", "error", err)
		return seen
	}
	for _, line := range strings.Split(raw, "\n") {
		i := strings.LastIndex(line, "|")
		if i < 0 {
			continue
		}
		start, err := time.Parse(time.RFC3339, line[i+1:])
		if err != nil || start.Before(now) {
			continue
		}
		seen[line] = start
	}
	return seen
}

func (s *Scheduler) saveNotified(seen map[string]time.Time) {
	if s.state == nil {
		return
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if err := s.state.SetState(notifiedKey, strings.Join(keys, "\n")); err != nil {
		s.logger.Warn("saving notified meetings", "error", err)
	}
}

func (s *Scheduler) writePID() error {
	if err := os.MkdirAll(filepath.Dir(s.pidPath), 0755); err != nil {
		return err
	}
	return os.WriteFile(s.pidPath, []byte(strconv.Itoa(os.Getpid())), 0644)
}

func (s *Scheduler) removePID() {
	os.Remove(s.pidPath)
}

func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("no running watch found")
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file")
	}

	return pid, nil
}
