package reservation

import (
	"fmt"
	"strings"
	"time"

	reservationDatamodel "github.com/frahmantamala/table-reservation/internal/core/datamodel/reservation"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

// RoundUpToEven maps a party size to the smallest even seat count that fits it.
// It only filters availability search; billing uses the literal guest count.
func RoundUpToEven(n int) int {
	if n%2 == 0 {
		return n
	}
	return n + 1
}

func Overlaps(s1, e1, s2, e2 time.Time) bool {
	return reservationDatamodel.Overlaps(s1, e1, s2, e2)
}

func DateOf(t time.Time) time.Time {
	return reservationDatamodel.DateOf(t)
}

func ParseDate(s string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return d, nil
}

// ParseClock accepts HH:MM and HH:MM:SS and returns the offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	layout := ClockLayout
	if strings.Count(s, ":") == 2 {
		layout = "15:04:05"
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second, nil
}

// Window is a calendar date plus a local [start, end) range on it, resolved to UTC instants.
type Window struct {
	Date  time.Time
	Start time.Time
	End   time.Time
}

// ResolveWindow combines date and HH:MM clocks in loc. The stored date is the
// local calendar day expressed as UTC midnight.
func ResolveWindow(date, start, end string, loc *time.Location) (Window, error) {
	day, err := ParseDate(date, loc)
	if err != nil {
		return Window{}, err
	}
	startOff, err := ParseClock(start)
	if err != nil {
		return Window{}, err
	}
	endOff, err := ParseClock(end)
	if err != nil {
		return Window{}, err
	}
	return WindowOn(day, startOff, endOff), nil
}

// WindowOn builds a Window from a local day and two offsets from its midnight.
func WindowOn(day time.Time, startOff, endOff time.Duration) Window {
	y, m, d := day.Date()
	loc := day.Location()
	return Window{
		Date:  time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		Start: time.Date(y, m, d, 0, 0, 0, 0, loc).Add(startOff).UTC(),
		End:   time.Date(y, m, d, 0, 0, 0, 0, loc).Add(endOff).UTC(),
	}
}
