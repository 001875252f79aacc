// Package aggregate computes multi-resolution sums of normalized
// sap-flow readings: per literal minute-of-day bucket, per day, and per
// month, for every (year, month, sensor) partition.
package aggregate

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// SensorTotals holds the three resolutions for one (year, month, sensor)
// partition. Hourly keys are the literal HORA minute values from the
// source rows (360, 375, ...), not hour buckets, so downstream HH:MM
// formatting is lossless.
type SensorTotals struct {
	Hourly  map[int]map[int]float64 `json:"hourly"` // day-of-year -> minute-of-day -> sum
	Daily   map[int]float64         `json:"daily"`  // day-of-year -> sum
	Monthly float64                 `json:"monthly"`
}

// MonthTotals maps sensor column name to its totals.
type MonthTotals struct {
	Sensors map[string]*SensorTotals `json:"sensors"`
}

// YearTotals maps month number to that month's totals.
type YearTotals struct {
	Months map[time.Month]*MonthTotals `json:"months"`
}

// Result is the full aggregation output. When a cancellation arrived
// mid-run, Truncated is true and Years holds only the fully processed
// year partitions; the structure is never internally inconsistent.
type Result struct {
	Years     map[int]*YearTotals `json:"years"`
	Truncated bool                `json:"truncated,omitempty"`
}

// Empty reports whether the result carries no data at all.
func (r *Result) Empty() bool {
	return len(r.Years) == 0
}

// consistencyEps bounds the float drift tolerated by CheckConsistency.
// Roll-ups sum in ascending key order, so daily and monthly totals are
// bit-reproducible across runs; the epsilon only absorbs accumulation
// error relative to a re-summation in the same order.
const consistencyEps = 1e-9

// CheckConsistency verifies the cross-resolution invariant for every
// (year, month, sensor): monthly == sum of daily sums and each daily
// sum == sum of its minute-bucket sums.
func (r *Result) CheckConsistency() error {
	for _, year := range sortedKeys(r.Years) {
		yt := r.Years[year]
		for _, month := range sortedKeys(yt.Months) {
			mt := yt.Months[month]
			for _, sensor := range sortedKeys(mt.Sensors) {
				st := mt.Sensors[sensor]
				if err := st.checkConsistency(); err != nil {
					return fmt.Errorf("%d/%d %s: %w", year, month, sensor, err)
				}
			}
		}
	}
	return nil
}

func (st *SensorTotals) checkConsistency() error {
	var monthly float64
	for _, day := range sortedKeys(st.Daily) {
		var daily float64
		for _, minute := range sortedKeys(st.Hourly[day]) {
			daily += st.Hourly[day][minute]
		}
		if !closeEnough(daily, st.Daily[day]) {
			return fmt.Errorf("day %d: daily sum %v != minute-bucket sum %v", day, st.Daily[day], daily)
		}
		monthly += st.Daily[day]
	}
	if !closeEnough(monthly, st.Monthly) {
		return fmt.Errorf("monthly sum %v != daily sum %v", st.Monthly, monthly)
	}
	return nil
}

func closeEnough(a, b float64) bool {
	diff := math.Abs(a - b)
	scale := math.Max(math.Abs(a), math.Abs(b))
	return diff <= consistencyEps*math.Max(scale, 1)
}

// sortedKeys returns the map keys in ascending order. Roll-up summation
// iterates these so results are reproducible across runs.
func sortedKeys[K int | time.Month | string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
