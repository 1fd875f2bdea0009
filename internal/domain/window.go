package domain

import "time"

// TimeWindow is an administrator-defined day-set and time range.
// Times are minutes since midnight; a window with StartMinute >= EndMinute is invalid.
type TimeWindow struct {
	ID          string         `json:"id" yaml:"id"`
	Days        []time.Weekday `json:"days" yaml:"days"`
	StartMinute int            `json:"startMinute" yaml:"startMinute"`
	EndMinute   int            `json:"endMinute" yaml:"endMinute"`
}

// Valid reports whether the window has a non-empty forward range.
// Midnight-spanning ranges are not valid.
func (w TimeWindow) Valid() bool {
	return w.StartMinute < w.EndMinute
}

// HasDay reports whether d is in the window's day set.
func (w TimeWindow) HasDay(d time.Weekday) bool {
	for _, day := range w.Days {
		if day == d {
			return true
		}
	}
	return false
}

// MinuteOfDay converts t to minutes since its local midnight.
func MinuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}
