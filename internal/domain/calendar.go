package domain

import "time"

// IsLeapYear reports whether year is a Gregorian leap year.
func IsLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// DaysInYear returns 366 for leap years, 365 otherwise.
func DaysInYear(year int) int {
	if IsLeapYear(year) {
		return 366
	}
	return 365
}

// ToMonthDay resolves an ordinal day-of-year (1-366) within year to its
// Gregorian month and day. Returns *InvalidDateError when dayOfYear is
// outside [1, DaysInYear(year)], e.g. 366 in a non-leap year.
func ToMonthDay(year, dayOfYear int) (time.Month, int, error) {
	if dayOfYear < 1 || dayOfYear > DaysInYear(year) {
		return 0, 0, &InvalidDateError{Year: year, DayOfYear: dayOfYear}
	}
	date := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, dayOfYear-1)
	return date.Month(), date.Day(), nil
}
