package reminder

import (
	"fmt"
	"time"
)

const (
	clockLayout = "15:04"
	dayLayout   = "2006-01-02"
)

// Clock is a time of day at minute granularity.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses a 24h "HH:MM" value.
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse(clockLayout, s)
	if err != nil {
		return Clock{}, fmt.Errorf("invalid reminder time %q: %w", s, err)
	}
	return Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// Matches compares hour and minute only.
func (c Clock) Matches(now time.Time) bool {
	return now.Hour() == c.Hour && now.Minute() == c.Minute
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Format12h renders the clock as "9:00 AM".
func (c Clock) Format12h() string {
	return time.Date(2000, 1, 1, c.Hour, c.Minute, 0, 0, time.UTC).Format("3:04 PM")
}

// DayOf returns the local calendar day of t as "YYYY-MM-DD".
func DayOf(t time.Time) string {
	return t.Format(dayLayout)
}

// Status is the dashboard view of a reminder relative to now.
type Status string

const (
	StatusUpcoming Status = "upcoming"
	StatusActive   Status = "active"
	StatusNormal   Status = "normal"
)

// TimeStatus is upcoming 1 to 30 minutes before the reminder time and
// active from the reminder time until 29 minutes after. A malformed
// time is always normal.
func (r *Reminder) TimeStatus(now time.Time) Status {
	c, err := ParseClock(r.Time)
	if err != nil {
		return StatusNormal
	}
	nowMinutes := now.Hour()*60 + now.Minute()
	diff := c.Hour*60 + c.Minute - nowMinutes
	switch {
	case diff > 0 && diff <= 30:
		return StatusUpcoming
	case diff <= 0 && diff > -30:
		return StatusActive
	default:
		return StatusNormal
	}
}
