package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizerValue(t *testing.T) {
	n := Normalizer{DecimalComma: true}

	tests := []struct {
		name string
		raw  string
		want float64
	}{
		{"missing NA token", "<NA>", 0},
		{"missing lowercase nan", "nan", 0},
		{"missing NaN", "NaN", 0},
		{"missing NA", "NA", 0},
		{"empty cell", "", 0},
		{"whitespace only", "   ", 0},
		{"negative artifact", "-5", 0},
		{"negative comma decimal", "-0,3", 0},
		{"comma decimal", "3,5", 3.5},
		{"point decimal", "3.5", 3.5},
		{"integer", "12", 12},
		{"zero", "0", 0},
		{"unparsable text", "err", 0},
		{"infinity literal", "+Inf", 0},
		{"scientific notation", "1e2", 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, n.Value(tt.raw))
		})
	}
}

func TestNormalizerValue_PointDecimalsOnly(t *testing.T) {
	n := Normalizer{DecimalComma: false}

	assert.Equal(t, 3.5, n.Value("3.5"))
	// With comma decimals disabled "3,5" is not a number and coerces to 0.
	assert.Equal(t, 0.0, n.Value("3,5"))
}

func TestNormalizerReading(t *testing.T) {
	n := Normalizer{DecimalComma: true}

	t.Run("resolves calendar and cleans values", func(t *testing.T) {
		r := Reading{
			Year:        2020,
			DayOfYear:   152, // May 31 in a leap year
			MinuteOfDay: 720,
			Values:      map[string]string{"SENSOR1": "2,5", "SENSOR2": "<NA>", "SENSOR3": "-1"},
		}
		nr, err := n.Reading(r)
		require.NoError(t, err)

		assert.Equal(t, time.May, nr.Month)
		assert.Equal(t, 31, nr.Day)
		assert.Equal(t, 720, nr.MinuteOfDay)
		assert.Equal(t, 2.5, nr.Values["SENSOR1"])
		assert.Equal(t, 0.0, nr.Values["SENSOR2"])
		assert.Equal(t, 0.0, nr.Values["SENSOR3"])
	})

	t.Run("invalid date surfaces per-row", func(t *testing.T) {
		r := Reading{Year: 2021, DayOfYear: 366, MinuteOfDay: 720}
		_, err := n.Reading(r)

		var dateErr *InvalidDateError
		require.ErrorAs(t, err, &dateErr)
	})
}

func TestNormalizerBatch(t *testing.T) {
	n := Normalizer{DecimalComma: true}
	w := DefaultWindow

	rows := []Reading{
		{Year: 2021, DayOfYear: 10, MinuteOfDay: 360, Values: map[string]string{"SENSOR1": "1"}},
		{Year: 2021, DayOfYear: 10, MinuteOfDay: 359, Values: map[string]string{"SENSOR1": "1"}},  // before window
		{Year: 2021, DayOfYear: 366, MinuteOfDay: 720, Values: map[string]string{"SENSOR1": "1"}}, // bad date
		{Year: 2021, DayOfYear: 10, MinuteOfDay: 1080, Values: map[string]string{"SENSOR1": "2"}},
		{Year: 2021, DayOfYear: 10, MinuteOfDay: 1081, Values: map[string]string{"SENSOR1": "1"}}, // after window
	}

	out, stats := n.Batch(rows, w)

	require.Len(t, out, 2)
	assert.Equal(t, 1, stats.InvalidDates)
	assert.Equal(t, 2, stats.OutsideWindow)
	assert.Equal(t, 360, out[0].MinuteOfDay)
	assert.Equal(t, 1080, out[1].MinuteOfDay)
}
