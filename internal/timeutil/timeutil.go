// Package timeutil holds the calendar rules shared by sync and view code:
// local day bounds and the midnight-shift rule for exactly-00:00:00 publishes.
package timeutil

import "time"

const DateLayout = "2006-01-02"

// DayBounds returns the [start, end) UTC instants of the local calendar day.
func DayBounds(date time.Time) (time.Time, time.Time) {
	local := date.In(time.Local)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.Local)
	return start.UTC(), start.AddDate(0, 0, 1).UTC()
}

// ParseDate parses a YYYY-MM-DD string in local time.
func ParseDate(raw string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, raw, time.Local)
}

// IsMidnightPublish reports whether the publish instant falls exactly on a
// local midnight. Platforms batch-release at 00:00:00; those articles belong
// to a later reading day.
func IsMidnightPublish(publishedAt time.Time) bool {
	local := publishedAt.In(time.Local)
	return local.Hour() == 0 && local.Minute() == 0 && local.Second() == 0
}

// CalendarDate assigns the reading date for a publish instant, applying the
// midnight shift when the article was published exactly at 00:00:00.
func CalendarDate(publishedAt time.Time, midnight bool, shiftDays int) string {
	local := publishedAt.In(time.Local)
	if midnight && shiftDays > 0 {
		local = local.AddDate(0, 0, shiftDays)
	}
	return local.Format(DateLayout)
}
