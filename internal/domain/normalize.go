package domain

import (
	"math"
	"strconv"
	"strings"
)

// missingTokens are the sentinels the dataloggers emit for a failed or
// absent probe reading. Matching is exact (case-sensitive), plus the
// empty string.
var missingTokens = map[string]struct{}{
	"<NA>": {},
	"nan":  {},
	"NaN":  {},
	"NA":   {},
	"":     {},
}

// Normalizer cleans raw sensor scalars into the well-defined numeric
// domain the aggregator expects: finite, >= 0, never missing. The policy
// is "every anomaly contributes zero" rather than exclusion or
// interpolation, so a day of all-missing readings still reports a
// defined sum of 0.
type Normalizer struct {
	// DecimalComma accepts "," as the decimal separator in addition to
	// ".". Field exports from the Brazilian loggers use comma decimals.
	DecimalComma bool
}

// Value normalizes one raw sensor scalar:
// missing sentinel, unparsable text, negative, NaN or infinite -> 0.
func (n Normalizer) Value(raw string) float64 {
	raw = strings.TrimSpace(raw)
	if _, ok := missingTokens[raw]; ok {
		return 0
	}
	if n.DecimalComma {
		raw = strings.ReplaceAll(raw, ",", ".")
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// Reading normalizes all sensor values of a Reading and resolves its
// day-of-year to a month and day. Returns *InvalidDateError when the
// ordinal day does not exist in the reading's year; the caller drops
// that row and continues.
func (n Normalizer) Reading(r Reading) (NormalizedReading, error) {
	month, day, err := ToMonthDay(r.Year, r.DayOfYear)
	if err != nil {
		return NormalizedReading{}, err
	}

	values := make(map[string]float64, len(r.Values))
	for col, raw := range r.Values {
		values[col] = n.Value(raw)
	}

	return NormalizedReading{
		Year:        r.Year,
		DayOfYear:   r.DayOfYear,
		MinuteOfDay: r.MinuteOfDay,
		Month:       month,
		Day:         day,
		Values:      values,
	}, nil
}

// BatchStats counts the rows a batch normalization dropped and why.
type BatchStats struct {
	InvalidDates  int
	OutsideWindow int
}

// Batch normalizes a slice of readings and applies the active-time
// window. Normalization happens before the window filter; rows with an
// unresolvable date are dropped, rows outside the window are excluded.
func (n Normalizer) Batch(rows []Reading, w Window) ([]NormalizedReading, BatchStats) {
	out := make([]NormalizedReading, 0, len(rows))
	var stats BatchStats
	for _, r := range rows {
		nr, err := n.Reading(r)
		if err != nil {
			stats.InvalidDates++
			continue
		}
		if !w.Contains(nr.MinuteOfDay) {
			stats.OutsideWindow++
			continue
		}
		out = append(out, nr)
	}
	return out, stats
}
