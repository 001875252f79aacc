package flux_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/sapflow-etl/internal/domain"
	"github.com/couchcryptid/sapflow-etl/internal/flux"
)

// Delgado-Rojas constants, restated here so a drifting implementation
// constant fails the test.
const (
	coeff    = 478.017e-6
	exponent = 1.231
)

func tenAreas(v float64) flux.SapwoodAreaTable {
	areas := make(flux.SapwoodAreaTable, domain.SensorCount)
	for i := range areas {
		areas[i] = v
	}
	return areas
}

func reading(year, doy, minute int, values map[string]float64) domain.NormalizedReading {
	month, day, err := domain.ToMonthDay(year, doy)
	if err != nil {
		panic(err)
	}
	return domain.NormalizedReading{
		Year: year, DayOfYear: doy, MinuteOfDay: minute,
		Month: month, Day: day, Values: values,
	}
}

func TestNewModel_Validation(t *testing.T) {
	t.Run("short sapwood table is fatal", func(t *testing.T) {
		_, err := flux.NewModel(flux.SapwoodAreaTable{0.01, 0.02}, flux.DefaultClones)

		var cfgErr *domain.ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
		assert.Contains(t, err.Error(), "sapwood-area table")
	})

	t.Run("unknown sensor in clone is fatal", func(t *testing.T) {
		clones := []flux.Clone{{Label: "CLONE1", Sensors: []string{"SENSOR99"}}}
		_, err := flux.NewModel(tenAreas(0.01), clones)

		var cfgErr *domain.ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
		assert.Contains(t, err.Error(), "SENSOR99")
	})

	t.Run("empty clone list falls back to default partition", func(t *testing.T) {
		m, err := flux.NewModel(tenAreas(0.01), nil)
		require.NoError(t, err)
		assert.Len(t, m.Clones, 2)
	})
}

func TestCompute_SingleDay(t *testing.T) {
	m, err := flux.NewModel(tenAreas(0.01), flux.DefaultClones)
	require.NoError(t, err)

	// One sensor, one day, samples 0 / 10 / 20 -> x_max = 20.
	readings := []domain.NormalizedReading{
		reading(2021, 10, 360, map[string]float64{"SENSOR1": 0}),
		reading(2021, 10, 420, map[string]float64{"SENSOR1": 10}),
		reading(2021, 10, 480, map[string]float64{"SENSOR1": 20}),
	}

	result := m.Compute(readings)

	sf := result.Years[2021].Months[time.January].Sensors["SENSOR1"]
	require.NotNil(t, sf)

	flowAtMax := coeff * math.Pow(1, exponent) * 0.01 * 1000
	flowAtHalf := coeff * math.Pow(0.5, exponent) * 0.01 * 1000
	// The zero sample contributes exactly 0, the maximum contributes the
	// full power-law term.
	want := 0 + flowAtHalf + flowAtMax
	require.Contains(t, sf.Daily, 10)
	assert.InDelta(t, want, sf.Daily[10], 1e-12)

	require.NotNil(t, sf.Monthly)
	assert.InDelta(t, want, *sf.Monthly, 1e-12)
}

func TestCompute_AllZeroDayIsAbsent(t *testing.T) {
	m, err := flux.NewModel(tenAreas(0.01), flux.DefaultClones)
	require.NoError(t, err)

	readings := []domain.NormalizedReading{
		reading(2021, 10, 360, map[string]float64{"SENSOR1": 0}),
		reading(2021, 10, 420, map[string]float64{"SENSOR1": 0}),
		reading(2021, 11, 360, map[string]float64{"SENSOR1": 5}),
	}

	result := m.Compute(readings)
	sf := result.Years[2021].Months[time.January].Sensors["SENSOR1"]

	// Day 10 had no positive signal: absent, not zero.
	assert.NotContains(t, sf.Daily, 10)
	assert.Contains(t, sf.Daily, 11)

	// Monthly sums only the defined days.
	require.NotNil(t, sf.Monthly)
	assert.Equal(t, sf.Daily[11], *sf.Monthly)
}

func TestCompute_AllAbsentMonthIsNil(t *testing.T) {
	m, err := flux.NewModel(tenAreas(0.01), flux.DefaultClones)
	require.NoError(t, err)

	readings := []domain.NormalizedReading{
		reading(2021, 10, 360, map[string]float64{"SENSOR1": 0}),
		reading(2021, 11, 420, map[string]float64{"SENSOR1": 0}),
	}

	result := m.Compute(readings)
	sf := result.Years[2021].Months[time.January].Sensors["SENSOR1"]

	assert.Empty(t, sf.Daily)
	assert.Nil(t, sf.Monthly)
}

func TestCompute_XMaxIsPerSensorPerDay(t *testing.T) {
	m, err := flux.NewModel(tenAreas(0.01), flux.DefaultClones)
	require.NoError(t, err)

	// SENSOR1 peaks at 20 on day 10 and at 5 on day 11; each day's
	// maximum sample must map to the same normalized flow term.
	readings := []domain.NormalizedReading{
		reading(2021, 10, 360, map[string]float64{"SENSOR1": 20}),
		reading(2021, 11, 360, map[string]float64{"SENSOR1": 5}),
	}

	result := m.Compute(readings)
	sf := result.Years[2021].Months[time.January].Sensors["SENSOR1"]

	flowAtMax := coeff * 0.01 * 1000
	assert.InDelta(t, flowAtMax, sf.Daily[10], 1e-12)
	assert.InDelta(t, flowAtMax, sf.Daily[11], 1e-12)
}

func TestCompute_CloneMeans(t *testing.T) {
	areas := tenAreas(0.01)
	m, err := flux.NewModel(areas, flux.DefaultClones)
	require.NoError(t, err)

	// Only SENSOR1 and SENSOR2 of CLONE1 carry signal; CLONE2 is silent.
	readings := []domain.NormalizedReading{
		reading(2021, 10, 360, map[string]float64{
			"SENSOR1": 10, "SENSOR2": 10, "SENSOR3": 0, "SENSOR4": 0, "SENSOR5": 0,
			"SENSOR6": 0, "SENSOR7": 0, "SENSOR8": 0, "SENSOR9": 0, "SENSOR10": 0,
		}),
	}

	result := m.Compute(readings)
	mf := result.Years[2021].Months[time.January]

	perSensor := coeff * 0.01 * 1000 // single sample at its own maximum

	mean1 := mf.CloneMeans["CLONE1"]
	require.NotNil(t, mean1)
	// Two defined members, divisor is the full clone size of five, times
	// the clone-level 0.44 factor.
	assert.InDelta(t, (2*perSensor)/5*0.44, *mean1, 1e-12)

	mean2, ok := mf.CloneMeans["CLONE2"]
	require.True(t, ok, "silent clone still reported")
	assert.Nil(t, mean2, "all-absent clone mean is absence, not zero")
}

func TestCompute_IgnoresColumnsWithoutArea(t *testing.T) {
	m, err := flux.NewModel(tenAreas(0.01), flux.DefaultClones)
	require.NoError(t, err)

	// TEMP has no sapwood area; it must not borrow SENSOR1's entry 0.
	readings := []domain.NormalizedReading{
		reading(2021, 10, 360, map[string]float64{"SENSOR1": 20, "TEMP": 25.4}),
	}

	result := m.Compute(readings)
	mf := result.Years[2021].Months[time.January]

	assert.NotContains(t, mf.Sensors, "TEMP")

	sf := mf.Sensors["SENSOR1"]
	require.NotNil(t, sf)
	assert.InDelta(t, coeff*0.01*1000, sf.Daily[10], 1e-12)
}

func TestCompute_Empty(t *testing.T) {
	m, err := flux.NewModel(tenAreas(0.01), flux.DefaultClones)
	require.NoError(t, err)

	result := m.Compute(nil)
	assert.Empty(t, result.Years)
}
