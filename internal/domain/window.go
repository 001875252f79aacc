package domain

// Window is an inclusive interval of minutes-since-midnight during which
// readings count toward aggregation. Readings outside the window are
// excluded entirely, which is different from an in-window reading whose
// value normalizes to zero.
type Window struct {
	Start int // minutes, inclusive
	End   int // minutes, inclusive
}

// DefaultWindow covers 06:00-18:00, the daylight interval the field
// campaign considers valid for sap-flow measurement.
var DefaultWindow = Window{Start: 360, End: 1080}

// Contains reports whether minuteOfDay falls inside the window.
func (w Window) Contains(minuteOfDay int) bool {
	return minuteOfDay >= w.Start && minuteOfDay <= w.End
}

// Valid reports whether the window bounds are sane minute-of-day values.
func (w Window) Valid() bool {
	return w.Start >= 0 && w.End <= 1439 && w.Start <= w.End
}
