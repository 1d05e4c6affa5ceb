package reminders

import (
	"fmt"
	"os"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

type Job struct {
	Enabled bool   `yaml:"enabled"`
	Spec    string `yaml:"spec"`
}

type DeadlineJob struct {
	Job        `yaml:",inline"`
	DaysBefore []int `yaml:"days_before"`
}

// Schedule lists the automated jobs. Specs use the standard five-field
// cron syntax or descriptors such as @hourly.
type Schedule struct {
	DailyOverdue  Job `yaml:"daily_overdue"`
	WeeklySummary Job `yaml:"weekly_summary"`
	// PendingReminder fires weekly and sends on even ISO weeks only.
	PendingReminder Job         `yaml:"pending_reminder"`
	Deadline        DeadlineJob `yaml:"deadline"`
	StatusRefresh   Job         `yaml:"status_refresh"`
}

func DefaultSchedule() Schedule {
	return Schedule{
		DailyOverdue:    Job{Enabled: true, Spec: "0 9 * * *"},
		WeeklySummary:   Job{Enabled: true, Spec: "0 9 * * 1"},
		PendingReminder: Job{Enabled: true, Spec: "0 9 * * 3"},
		Deadline: DeadlineJob{
			Job:        Job{Enabled: true, Spec: "0 9 * * *"},
			DaysBefore: []int{7, 3, 1},
		},
		StatusRefresh: Job{Enabled: true, Spec: "@hourly"},
	}
}

// LoadSchedule reads a YAML schedule on top of the defaults. An empty
// path returns the defaults.
func LoadSchedule(path string) (Schedule, error) {
	s := DefaultSchedule()
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("read schedule: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse schedule %s: %w", path, err)
	}
	return s, s.Validate()
}

func (s Schedule) Validate() error {
	for name, j := range s.jobs() {
		if !j.Enabled {
			continue
		}
		if _, err := cron.ParseStandard(j.Spec); err != nil {
			return fmt.Errorf("schedule %s: invalid spec %q: %w", name, j.Spec, err)
		}
	}
	for _, d := range s.Deadline.DaysBefore {
		if d < 0 {
			return fmt.Errorf("schedule deadline: days_before must not be negative, got %d", d)
		}
	}
	return nil
}

func (s Schedule) jobs() map[string]Job {
	return map[string]Job{
		"daily_overdue":    s.DailyOverdue,
		"weekly_summary":   s.WeeklySummary,
		"pending_reminder": s.PendingReminder,
		"deadline":         s.Deadline.Job,
		"status_refresh":   s.StatusRefresh,
	}
}
