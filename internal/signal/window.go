package signal

import (
	"fmt"
	"time"
)

// TimeOfDay is an offset from UTC midnight.
type TimeOfDay time.Duration

// ParseTimeOfDay parses "HH:MM" or "HH:MM:SS".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return TimeOfDay(time.Duration(t.Hour())*time.Hour +
				time.Duration(t.Minute())*time.Minute +
				time.Duration(t.Second())*time.Second), nil
		}
	}
	return 0, fmt.Errorf("invalid time of day %q", s)
}

// Of returns the UTC time-of-day of t.
func Of(t time.Time) TimeOfDay {
	t = t.UTC()
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return TimeOfDay(t.Sub(midnight))
}

func (d TimeOfDay) String() string {
	total := time.Duration(d)
	h := total / time.Hour
	m := (total % time.Hour) / time.Minute
	s := (total % time.Minute) / time.Second
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// Window is a closed UTC time-of-day interval [Start, End].
type Window struct {
	Start TimeOfDay
	End   TimeOfDay
}

// ParseWindow parses a start/end pair.
func ParseWindow(start, end string) (Window, error) {
	s, err := ParseTimeOfDay(start)
	if err != nil {
		return Window{}, err
	}
	e, err := ParseTimeOfDay(end)
	if err != nil {
		return Window{}, err
	}
	if e < s {
		return Window{}, fmt.Errorf("window end %s before start %s", end, start)
	}
	return Window{Start: s, End: e}, nil
}

// Contains reports whether t falls in the window, both ends inclusive.
func (w Window) Contains(t time.Time) bool {
	tod := Of(t)
	return tod >= w.Start && tod <= w.End
}

// InAnyWindow reports whether t falls in at least one window.
// An empty window list places no restriction.
func InAnyWindow(t time.Time, windows []Window) bool {
	if len(windows) == 0 {
		return true
	}
	for _, w := range windows {
		if w.Contains(t) {
			return true
		}
	}
	return false
}

// DefaultWindows returns 03:30:00-11:59:59 and 14:15:00-15:30:00 UTC.
func DefaultWindows() []Window {
	return []Window{
		{Start: TimeOfDay(3*time.Hour + 30*time.Minute), End: TimeOfDay(11*time.Hour + 59*time.Minute + 59*time.Second)},
		{Start: TimeOfDay(14*time.Hour + 15*time.Minute), End: TimeOfDay(15*time.Hour + 30*time.Minute)},
	}
}
