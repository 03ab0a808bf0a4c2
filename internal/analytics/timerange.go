package analytics

import (
	"strings"
	"time"
)

const (
	RangeThisWeek     = "THIS_WEEK"
	RangeThisMonth    = "THIS_MONTH"
	RangeLastMonth    = "LAST_MONTH"
	RangeLast3Months  = "LAST_3_MONTHS"
	RangeLast6Months  = "LAST_6_MONTHS"
	RangeLast12Months = "LAST_12_MONTHS"
	RangeThisYear     = "THIS_YEAR"
)

const defaultRangeDays = 30

// dateRange is an inclusive span of calendar days in UTC.
type dateRange struct {
	start time.Time
	end   time.Time
}

func (r dateRange) contains(day time.Time) bool {
	return !day.Before(r.start) && !day.After(r.end)
}

// resolveRange maps a selector to a span ending today. Unknown selectors
// cover the last 30 days.
func resolveRange(selector string, now time.Time) dateRange {
	today := civilDay(now)
	switch strings.ToUpper(strings.TrimSpace(selector)) {
	case RangeThisWeek:
		return dateRange{start: today.AddDate(0, 0, -7), end: today}
	case RangeThisMonth:
		return dateRange{start: firstOfMonth(today), end: today}
	case RangeLastMonth:
		first := firstOfMonth(today)
		return dateRange{start: addMonths(first, -1), end: first.AddDate(0, 0, -1)}
	case RangeLast3Months:
		return dateRange{start: addMonths(today, -3), end: today}
	case RangeLast6Months:
		return dateRange{start: addMonths(today, -6), end: today}
	case RangeLast12Months:
		return dateRange{start: addMonths(today, -12), end: today}
	case RangeThisYear:
		return dateRange{start: time.Date(today.Year(), time.January, 1, 0, 0, 0, 0, time.UTC), end: today}
	default:
		return dateRange{start: today.AddDate(0, 0, -defaultRangeDays), end: today}
	}
}

func civilDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func firstOfMonth(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// addMonths shifts by n months, clamping the day to the target month's length
// (Mar 31 minus one month is Feb 28, not Mar 3).
func addMonths(day time.Time, n int) time.Time {
	first := time.Date(day.Year(), day.Month()+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1).Day()
	d := day.Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, time.UTC)
}

// parseDay accepts "2006-01-02" and timestamps that start with a date.
func parseDay(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if len(s) > 10 && (s[10] == 'T' || s[10] == ' ') {
		s = s[:10]
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
