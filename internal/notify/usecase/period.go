package usecase

import (
	"fmt"
	"strings"
	"time"
)

// weekKey formats an ISO-8601 week identifier, e.g. "2026-W35".
func weekKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

// dayKey formats a calendar-day identifier, e.g. "2026-08-30".
func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// location is the reference time zone all job gating is evaluated in. Gating
// is committee-local, not sender-local, so one fixed zone for everyone.
func (s *Usecase) location() *time.Location {
	name := s.cfg.GetString("jobs.timezone")
	if name == "" {
		name = "Europe/Berlin"
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}

	return loc
}

func (s *Usecase) jobHour() int {
	if v := s.cfg.GetInt("jobs.local_hour"); v > 0 {
		return v
	}
	return 10
}

func (s *Usecase) reminderWeekday() time.Weekday {
	switch strings.ToLower(s.cfg.GetString("jobs.reminder_weekday")) {
	case "sunday":
		return time.Sunday
	case "monday":
		return time.Monday
	case "tuesday":
		return time.Tuesday
	case "wednesday":
		return time.Wednesday
	case "thursday":
		return time.Thursday
	case "friday":
		return time.Friday
	case "saturday":
		return time.Saturday
	default:
		return time.Tuesday
	}
}

func (s *Usecase) digestLookback() time.Duration {
	if v := s.cfg.GetInt("jobs.digest_lookback_hours"); v > 0 {
		return time.Duration(v) * time.Hour
	}
	return 48 * time.Hour
}

// jobNow resolves the effective wall-clock time for a job run. Override is
// only set by manual or test invocations.
func (s *Usecase) jobNow(override *time.Time) time.Time {
	if override != nil {
		return *override
	}
	return s.clock.Now()
}
