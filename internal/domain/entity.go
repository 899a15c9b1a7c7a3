// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Device represents the connected managed device and its current state.
type Device struct {
	UDID        string    // Unique device identifier
	Name        string    // Display name (e.g. "Ethan's iPhone")
	IsConnected bool      // Currently reachable via the control channel
	IsShifted   bool      // Currently in shifted (focus) mode
	LastSeenAt  time.Time // Last successful detection
}

// StatusText returns a human-readable state description for display.
func (d Device) StatusText() string {
	if !d.IsConnected {
		return "Disconnected"
	}
	if d.IsShifted {
		return "Shifted (Focus Mode)"
	}
	return "Unshifted (Normal Mode)"
}

// ScheduleAction identifies whether a schedule shifts or unshifts.
type ScheduleAction string

const (
	ActionShift   ScheduleAction = "shift"
	ActionUnshift ScheduleAction = "unshift"
)

// DisplayName returns the capitalized action name.
func (a ScheduleAction) DisplayName() string {
	switch a {
	case ActionShift:
		return "Shift"
	case ActionUnshift:
		return "Unshift"
	default:
		return string(a)
	}
}

// Weekday numbering follows the device convention: Sunday=1 .. Saturday=7.
type Weekday int

const (
	Sunday Weekday = iota + 1
	Monday
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
)

var weekdayShort = map[Weekday]string{
	Sunday: "Su", Monday: "Mo", Tuesday: "Tu", Wednesday: "We",
	Thursday: "Th", Friday: "Fr", Saturday: "Sa",
}

// ShortName returns a two-letter day abbreviation.
func (w Weekday) ShortName() string {
	if s, ok := weekdayShort[w]; ok {
		return s
	}
	return "?"
}

// WeekdayOf converts a wall-clock instant to the Sunday=1 numbering.
func WeekdayOf(t time.Time) Weekday {
	return Weekday(int(t.Weekday()) + 1)
}

// TimeOfDay is a wall-clock trigger time with minute granularity.
type TimeOfDay struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%d:%02d", t.Hour, t.Minute)
}

// Schedule is a recurring shift/unshift rule.
type Schedule struct {
	ID      uuid.UUID      `json:"id"`
	Action  ScheduleAction `json:"action"`
	Time    TimeOfDay      `json:"time"`
	Days    []Weekday      `json:"days"`
	Enabled bool           `json:"enabled"`
}

// NewSchedule creates an enabled rule with a fresh ID.
func NewSchedule(action ScheduleAction, at TimeOfDay, days []Weekday) Schedule {
	return Schedule{
		ID:      uuid.New(),
		Action:  action,
		Time:    at,
		Days:    days,
		Enabled: true,
	}
}

// Matches reports whether the rule should fire at the given instant.
// A rule fires when it is enabled, the weekday is selected, and the
// hour and minute match exactly.
func (s Schedule) Matches(now time.Time) bool {
	if !s.Enabled {
		return false
	}
	if !s.OnDay(WeekdayOf(now)) {
		return false
	}
	return now.Hour() == s.Time.Hour && now.Minute() == s.Time.Minute
}

// OnDay reports whether the rule is selected for the given weekday.
func (s Schedule) OnDay(day Weekday) bool {
	for _, d := range s.Days {
		if d == day {
			return true
		}
	}
	return false
}

// DaysString returns a compact description of the selected days.
func (s Schedule) DaysString() string {
	if len(s.Days) == 7 {
		return "Every day"
	}
	days := make([]Weekday, len(s.Days))
	copy(days, s.Days)
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })

	if len(days) == 5 && days[0] == Monday && days[4] == Friday {
		return "Weekdays"
	}
	if len(days) == 2 && days[0] == Sunday && days[1] == Saturday {
		return "Weekends"
	}
	names := make([]string, len(days))
	for i, d := range days {
		names[i] = d.ShortName()
	}
	return strings.Join(names, ", ")
}

// FocusSession is a time-boxed lock that prevents unshifting before it ends.
type FocusSession struct {
	StartedAt time.Time `json:"started_at"`
	EndsAt    time.Time `json:"ends_at"`
}

// Active reports whether the session still holds at the given instant.
func (s FocusSession) Active(now time.Time) bool {
	return now.Before(s.EndsAt)
}

// Remaining returns the time left in the session (never negative).
func (s FocusSession) Remaining(now time.Time) time.Duration {
	if !now.Before(s.EndsAt) {
		return 0
	}
	return s.EndsAt.Sub(now)
}

// RemainingString formats the time left as H:MM:SS or M:SS.
func (s FocusSession) RemainingString(now time.Time) string {
	secs := int(s.Remaining(now).Round(time.Second).Seconds())
	hours := secs / 3600
	minutes := (secs % 3600) / 60
	seconds := secs % 60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}

// InstalledApp is one application record reported by the device.
type InstalledApp struct {
	BundleID string
	Name     string
}

// Snapshot is the orchestrator's read-only view of device state.
type Snapshot struct {
	Device     *Device
	IsShifted  bool
	Processing bool
}

// StateUpdate is published on every snapshot change.
type StateUpdate struct {
	Snapshot Snapshot
	Reason   string // Operation that produced the change (e.g. "shift")
	At       time.Time
}
