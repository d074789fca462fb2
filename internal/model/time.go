package model

import "time"

const (
	// MinuteMs is the span of one minute bar in epoch milliseconds.
	MinuteMs int64 = 60_000
	// HourMs is the span of one hour block in epoch milliseconds.
	HourMs int64 = 3_600_000
)

// DayStart returns midnight UTC of the calendar day containing t.
func DayStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// DayTag formats the UTC date of t as YYYYMMDD. Model sets are valid for
// exactly one tag.
func DayTag(t time.Time) string {
	return t.UTC().Format("20060102")
}

// HourStartMs returns the epoch ms of hour h (0..23) on the UTC day
// containing day.
func HourStartMs(day time.Time, hour int) int64 {
	return DayStart(day).UnixMilli() + int64(hour)*HourMs
}
