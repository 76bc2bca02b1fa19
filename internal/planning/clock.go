package planning

import (
	"fmt"
	"time"
)

const (
	// DateFormat is the calendar day format used in store keys (YYYY-MM-DD).
	DateFormat = "2006-01-02"

	// TimeFormat is the wall-clock format used in timing records (HH:MM).
	TimeFormat = "15:04"
)

// EndOfDay is the last representable minute of a day.
const EndOfDay Clock = 23*60 + 59

// Clock is a same-day wall-clock time in minutes since midnight.
type Clock int

// ParseClock parses an HH:MM string.
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse(TimeFormat, s)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	return Clock(t.Hour()*60 + t.Minute()), nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Add returns c shifted by minutes. ok is false when the result leaves the day.
func (c Clock) Add(minutes int) (Clock, bool) {
	n := int(c) + minutes
	if n < 0 || n > int(EndOfDay) {
		return 0, false
	}
	return Clock(n), true
}

// On places the clock on the calendar day of day, in day's location.
func (c Clock) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, int(c)/60, int(c)%60, 0, 0, day.Location())
}

// Day truncates t to midnight in t's location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DayPart names the part of the day for prompt framing. It is only a hint
// for the model; mode transitions never depend on it.
func DayPart(t time.Time) string {
	switch h := t.Hour(); {
	case h < 12:
		return "morning"
	case h < 17:
		return "afternoon"
	default:
		return "evening"
	}
}
