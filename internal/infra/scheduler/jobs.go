package scheduler

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"

	"github.com/samtaplin/llmneldacoding/internal/domain/trigger"
)

// Job is the scheduling API's job document.
type Job struct {
	Name     string            `json:"name"`
	Schedule string            `json:"schedule"`
	URL      string            `json:"url"`
	Method   string            `json:"method"`
	Headers  map[string]string `json:"headers"`
	Body     string            `json:"body"`
	Enabled  bool              `json:"enabled"`

	RunAt time.Time `json:"-"`
}

// PlanOptions controls job generation.
type PlanOptions struct {
	ServerURL  string
	Hour       int
	OffsetDays int
}

// Plan is the job list derived from a set of events. Total counts two jobs
// per event, including events skipped for a bad date.
type Plan struct {
	Jobs    []Job
	Skipped []Event
	Total   int
}

// BaseDate parses year and MMDD into a calendar date; 0230 and the like fail.
func BaseDate(year, mmdd string) (time.Time, error) {
	if len(mmdd) != 4 {
		return time.Time{}, eris.Errorf("scheduler: mmdd %q is not four digits", mmdd)
	}
	t, err := time.Parse("2006-01-02", fmt.Sprintf("%s-%s-%s", year, mmdd[:2], mmdd[2:]))
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "scheduler: date %s/%s", year, mmdd)
	}
	return t, nil
}

// CronExpression fires once a year at hour:00 on t's day and month.
func CronExpression(t time.Time, hour int) (string, error) {
	expr := fmt.Sprintf("0 %d %d %d *", hour, t.Day(), int(t.Month()))
	if _, err := cron.ParseStandard(expr); err != nil {
		return "", eris.Wrapf(err, "scheduler: cron %q", expr)
	}
	return expr, nil
}

// JobName is Election_<id>_<country>_<pre|post>.
func JobName(e Event, pre bool) string {
	side := "post"
	if pre {
		side = "pre"
	}
	return fmt.Sprintf("Election_%s_%s_%s", orUnknown(e.ElectionID), orUnknown(e.CountryName), side)
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// NewJob builds the job that posts e to the trigger endpoint at t.
func NewJob(e Event, t time.Time, pre bool, opts PlanOptions) (Job, error) {
	schedule, err := CronExpression(t, opts.Hour)
	if err != nil {
		return Job{}, err
	}
	body, err := json.Marshal(trigger.Payload{
		ElectionID:    e.ElectionID,
		CountryName:   e.CountryName,
		ElectionTypes: e.Types,
		Year:          e.Year,
		MMDD:          e.MMDD,
		Pre:           &pre,
	})
	if err != nil {
		return Job{}, eris.Wrap(err, "scheduler: encode webhook body")
	}
	return Job{
		Name:     JobName(e, pre),
		Schedule: schedule,
		URL:      strings.TrimRight(opts.ServerURL, "/") + "/runNelda",
		Method:   "POST",
		Headers:  map[string]string{"Content-Type": "application/json"},
		Body:     string(body),
		Enabled:  true,
		RunAt:    t.Add(time.Duration(opts.Hour) * time.Hour),
	}, nil
}

// PlanJobs creates a pre job OffsetDays before and a post job OffsetDays
// after each event date.
func PlanJobs(events []Event, opts PlanOptions) Plan {
	p := Plan{Total: 2 * len(events)}
	for _, e := range events {
		base, err := BaseDate(e.Year, e.MMDD)
		if err != nil {
			p.Skipped = append(p.Skipped, e)
			continue
		}
		pre, err := NewJob(e, base.AddDate(0, 0, -opts.OffsetDays), true, opts)
		if err != nil {
			p.Skipped = append(p.Skipped, e)
			continue
		}
		post, err := NewJob(e, base.AddDate(0, 0, opts.OffsetDays), false, opts)
		if err != nil {
			p.Skipped = append(p.Skipped, e)
			continue
		}
		p.Jobs = append(p.Jobs, pre, post)
	}
	return p
}
