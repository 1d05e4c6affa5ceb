package reminders

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"dues-backend/internal/duedates"
	"dues-backend/internal/models"
	"dues-backend/internal/reconcile"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const jobTimeout = 4 * time.Minute

type JobInfo struct {
	Name    string    `json:"name"`
	Spec    string    `json:"spec"`
	NextRun time.Time `json:"next_run"`
	PrevRun time.Time `json:"prev_run,omitempty"`
}

// Scheduler runs the automated reminders and the periodic status refresh.
type Scheduler struct {
	cron     *cron.Cron
	db       *gorm.DB
	disp     *Dispatcher
	engine   *reconcile.Engine
	schedule Schedule
	entries  map[cron.EntryID]string
	Now      func() time.Time
}

func NewScheduler(db *gorm.DB, disp *Dispatcher, engine *reconcile.Engine, schedule Schedule) (*Scheduler, error) {
	s := &Scheduler{
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
		db:       db,
		disp:     disp,
		engine:   engine,
		schedule: schedule,
		entries:  map[cron.EntryID]string{},
		Now:      time.Now,
	}

	jobs := []struct {
		name string
		job  Job
		run  func(context.Context) error
	}{
		{"daily_overdue", schedule.DailyOverdue, s.RunDailyOverdue},
		{"weekly_summary", schedule.WeeklySummary, s.RunWeeklySummary},
		{"pending_reminder", schedule.PendingReminder, s.RunPendingReminder},
		{"deadline", schedule.Deadline.Job, s.RunDeadlineCheck},
		{"status_refresh", schedule.StatusRefresh, s.RunStatusRefresh},
	}
	for _, j := range jobs {
		if !j.job.Enabled {
			continue
		}
		name, run := j.name, j.run
		id, err := s.cron.AddFunc(j.job.Spec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
			defer cancel()
			if err := run(ctx); err != nil {
				log.Printf("[ERROR] scheduled job %s: %v", name, err)
			}
		})
		if err != nil {
			return nil, fmt.Errorf("schedule %s: %w", name, err)
		}
		s.entries[id] = name
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	log.Printf("[INFO] reminder scheduler started with %d jobs", len(s.entries))
}

// Stop waits for running jobs or until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		log.Printf("[WARN] reminder scheduler stop: %v", ctx.Err())
	}
}

func (s *Scheduler) Jobs() []JobInfo {
	var out []JobInfo
	for _, e := range s.cron.Entries() {
		name := s.entries[e.ID]
		out = append(out, JobInfo{
			Name:    name,
			Spec:    s.specFor(name),
			NextRun: e.Next,
			PrevRun: e.Prev,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Scheduler) specFor(name string) string {
	return s.schedule.jobs()[name].Spec
}

func (s *Scheduler) RunDailyOverdue(ctx context.Context) error {
	n, err := s.disp.SendSummary(ctx, "Overdue Dues Reminder", models.PaymentOverdue)
	if err == nil && n > 0 {
		log.Printf("[INFO] daily overdue reminder listed %d members", n)
	}
	return err
}

// RunPendingReminder sends on even ISO weeks so a weekly spec fires every
// other week.
func (s *Scheduler) RunPendingReminder(ctx context.Context) error {
	if _, week := s.Now().ISOWeek(); week%2 != 0 {
		return nil
	}
	_, err := s.disp.SendSummary(ctx, "Pending Dues Reminder", models.PaymentPending)
	return err
}

func (s *Scheduler) RunWeeklySummary(ctx context.Context) error {
	stats, err := s.engine.ComputeStats(ctx)
	if err != nil {
		return err
	}
	return s.disp.Notify(ctx, StatsMessage(stats, s.Now()))
}

// RunDeadlineCheck warns when the newest due date is one of the
// configured number of days away.
func (s *Scheduler) RunDeadlineCheck(ctx context.Context) error {
	rec, err := duedates.Latest(s.db.WithContext(ctx))
	if err != nil || rec == nil {
		return err
	}
	days := DaysUntil(s.Now(), rec.DueDate)
	if !containsInt(s.schedule.Deadline.DaysBefore, days) {
		return nil
	}

	unpaid, err := s.disp.Selector().SelectUnpaid(ctx)
	if err != nil {
		return err
	}
	outstanding := decimal.Zero
	for i := range unpaid {
		outstanding = outstanding.Add(unpaid[i].Outstanding())
	}
	return s.disp.Notify(ctx, DeadlineMessage(days, len(unpaid), outstanding))
}

func (s *Scheduler) RunStatusRefresh(ctx context.Context) error {
	res, err := s.engine.RefreshAll(ctx)
	if err != nil {
		return err
	}
	if res.Changed > 0 || len(res.Failures) > 0 {
		log.Printf("[INFO] status refresh: checked=%d changed=%d failures=%d", res.Checked, res.Changed, len(res.Failures))
	}
	return nil
}

// DaysUntil counts calendar days in UTC from now to due.
func DaysUntil(now, due time.Time) int {
	n := now.UTC()
	d := due.UTC()
	from := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
	to := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from).Hours() / 24)
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
