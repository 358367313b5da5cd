package money

import (
	"fmt"
	"time"
)

// Convention is a day-count convention used for interest accrual.
type Convention string

const (
	Act360    Convention = "ACT_360"
	Act365F   Convention = "ACT_365F"
	ActAct    Convention = "ACT_ACT"
	US30360   Convention = "US_30_360"
	Euro30360 Convention = "EURO_30_360"
)

// ParseConvention validates a day-count convention string.
func ParseConvention(s string) (Convention, error) {
	switch Convention(s) {
	case Act360, Act365F, ActAct, US30360, Euro30360:
		return Convention(s), nil
	}
	return "", fmt.Errorf("invalid day-count convention %q", s)
}

// BaseDays returns the denominator the convention accrues against.
// ACT_ACT callers pass the actual year length; 365 is the fallback.
func (c Convention) BaseDays() int {
	switch c {
	case Act360, US30360, Euro30360:
		return 360
	default:
		return 365
	}
}

// DaysBetween returns the day count from d1 to d2 under the convention.
// ACT conventions count actual calendar days; the 30/360 variants use
// 360*dY + 30*dM + (d2' - d1') with the convention's day-of-month adjustment.
func DaysBetween(d1, d2 time.Time, c Convention) int {
	switch c {
	case US30360:
		return days30360(d1, d2, false)
	case Euro30360:
		return days30360(d1, d2, true)
	default:
		return actualDays(d1, d2)
	}
}

func actualDays(d1, d2 time.Time) int {
	a := time.Date(d1.Year(), d1.Month(), d1.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(d2.Year(), d2.Month(), d2.Day(), 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

func days30360(d1, d2 time.Time, european bool) int {
	y1, m1, day1 := d1.Date()
	y2, m2, day2 := d2.Date()

	if european {
		if day1 > 30 {
			day1 = 30
		}
		if day2 > 30 {
			day2 = 30
		}
	} else {
		if day1 == 31 {
			day1 = 30
		}
		if day2 == 31 && day1 >= 30 {
			day2 = 30
		}
	}

	return 360*(y2-y1) + 30*(int(m2)-int(m1)) + (day2 - day1)
}

// AddMonths advances d by k calendar months, clamping to the last day of the
// target month when the source day does not exist there (e.g. Jan 31 + 1
// month = Feb 28/29).
func AddMonths(d time.Time, k int) time.Time {
	y, m, day := d.Date()
	target := time.Date(y, m+time.Month(k), 1, 0, 0, 0, 0, time.UTC)
	last := daysInMonth(target.Year(), target.Month())
	if day > last {
		day = last
	}
	return time.Date(target.Year(), target.Month(), day, 0, 0, 0, 0, time.UTC)
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ParseDate parses an ISO-8601 calendar date (YYYY-MM-DD) at UTC midnight.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// FormatDate renders a date as ISO-8601 (YYYY-MM-DD).
func FormatDate(t time.Time) string {
	return t.Format("2006-01-02")
}
