package model

import (
	"strconv"
	"time"
)

// Window is a trailing reporting range.
type Window string

const (
	Window7D  Window = "7d"
	Window30D Window = "30d"
	Window90D Window = "90d"
	WindowAll Window = "all"
)

// DefaultWindow is used when no period is given.
const DefaultWindow = Window30D

// ParseWindow validates a period string. Empty selects DefaultWindow.
func ParseWindow(s string) (Window, error) {
	switch Window(s) {
	case "":
		return DefaultWindow, nil
	case Window7D, Window30D, Window90D, WindowAll:
		return Window(s), nil
	}
	return "", &ValidationError{Field: "period", Reason: "unknown period " + strconv.Quote(s)}
}

// Days is the number of calendar days covered, or 0 for unbounded.
func (w Window) Days() int {
	switch w {
	case Window7D:
		return 7
	case Window30D:
		return 30
	case Window90D:
		return 90
	}
	return 0
}

// Start returns midnight of the first day in the window, ending on now's
// day inclusive. ok is false for the unbounded window.
func (w Window) Start(now time.Time, loc *time.Location) (start time.Time, ok bool) {
	n := w.Days()
	if n == 0 {
		return time.Time{}, false
	}
	return StartOfDay(now, loc).AddDate(0, 0, -(n - 1)), true
}
