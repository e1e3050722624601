package schedule

import (
	"strings"
	"time"

	"github.com/pauljones0/happymapper/internal/models"
)

// Evaluator decides whether time windows are active at an instant. The
// weekday and clock time are read in the instant's own location, so callers
// convert to the venue's time zone first.
//
// Windows are compared as zero-padded "HH:MM" strings. By default a window
// whose end sorts before its start ("22:00"-"02:00") never matches.
// AllowOvernight switches to day-wrap-aware matching where the early-morning
// part of such a window belongs to the previous listed day.
type Evaluator struct {
	AllowOvernight bool
}

// IsActiveNow evaluates frames with the default (non-overnight) rules.
func IsActiveNow(frames []models.TimeWindow, now time.Time) bool {
	return Evaluator{}.IsActiveNow(frames, now)
}

// ActiveDayOfWeek evaluates frames with the default rules.
func ActiveDayOfWeek(frames []models.TimeWindow, now time.Time) []string {
	return Evaluator{}.ActiveDayOfWeek(frames, now)
}

func weekdayName(t time.Time) string {
	return Weekdays[t.Weekday()]
}

func canonicalClock(t time.Time) string {
	return t.Format("15:04")
}

func dayMatches(days []string, day string) bool {
	if len(days) == 0 {
		return true
	}
	for _, d := range days {
		if strings.EqualFold(strings.TrimSpace(d), day) {
			return true
		}
	}
	return false
}

// IsActiveNow reports whether any window matches now.
func (e Evaluator) IsActiveNow(frames []models.TimeWindow, now time.Time) bool {
	day := weekdayName(now)
	clock := canonicalClock(now)
	for _, tw := range frames {
		if e.windowMatches(tw, day, clock, now) {
			return true
		}
	}
	return false
}

func (e Evaluator) windowMatches(tw models.TimeWindow, day, clock string, now time.Time) bool {
	if e.AllowOvernight && tw.StartTime != "" && tw.EndTime != "" && tw.EndTime < tw.StartTime {
		if clock >= tw.StartTime {
			return dayMatches(tw.Days, day)
		}
		if clock <= tw.EndTime {
			return dayMatches(tw.Days, weekdayName(now.AddDate(0, 0, -1)))
		}
		return false
	}
	return dayMatches(tw.Days, day) && clock >= tw.StartTime && clock <= tw.EndTime
}

// ActiveDayOfWeek returns the current weekday if any window's day filter
// matches it, regardless of time of day, and an empty set otherwise.
func (e Evaluator) ActiveDayOfWeek(frames []models.TimeWindow, now time.Time) []string {
	day := weekdayName(now)
	for _, tw := range frames {
		if dayMatches(tw.Days, day) {
			return []string{day}
		}
	}
	return []string{}
}

// Derive computes both activity fields at now.
func (e Evaluator) Derive(frames []models.TimeWindow, now time.Time) models.Derived {
	return models.Derived{
		IsActiveNow:     e.IsActiveNow(frames, now),
		ActiveDayOfWeek: e.ActiveDayOfWeek(frames, now),
	}
}
