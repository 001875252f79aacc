// Package flux converts normalized sap-flow probe signal into a physical
// flow quantity using the Delgado-Rojas empirical model, and averages
// monthly flow across sensor clones.
package flux

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/couchcryptid/sapflow-etl/internal/domain"
)

// Empirical constants of the Delgado-Rojas method. They are properties
// of the calibration, not tunables.
const (
	// delgadoRojasCoeff is the leading coefficient C of the power law.
	delgadoRojasCoeff = 478.017e-6
	// delgadoRojasExponent is the exponent p applied to x/x_max.
	delgadoRojasExponent = 1.231
	// flowScale converts the per-sample term to liters; the calibration
	// expresses sapwood area in m².
	flowScale = 1000
	// cloneMeanFactor converts the per-clone mean to the reporting unit.
	// Applied once at the clone level, never per sensor.
	cloneMeanFactor = 0.44
)

// SapwoodAreaTable lists the per-sensor sapwood cross-section constants,
// one entry per sensor index (entry 0 belongs to SENSOR1). The table
// must cover at least every sensor column present in the data.
type SapwoodAreaTable []float64

// Area returns the constant for the ith sensor column.
func (t SapwoodAreaTable) Area(i int) float64 { return t[i] }

// Clone is an agronomic grouping of sensors whose monthly flows are
// averaged into a single representative value.
type Clone struct {
	Label   string
	Sensors []string
}

// DefaultClones is the fixed partition of the trial: two clones of five
// trees each.
var DefaultClones = []Clone{
	{Label: "CLONE1", Sensors: []string{"SENSOR1", "SENSOR2", "SENSOR3", "SENSOR4", "SENSOR5"}},
	{Label: "CLONE2", Sensors: []string{"SENSOR6", "SENSOR7", "SENSOR8", "SENSOR9", "SENSOR10"}},
}

// SensorFlow holds one sensor's flow sums within a month. A day with no
// positive signal has no defined flow; such days are simply absent from
// Daily, and when every day is absent Monthly is nil. Absence is
// explicit so it can never leak into downstream sums as a numeric zero.
type SensorFlow struct {
	Daily   map[int]float64 `json:"daily"` // day-of-year -> flow sum
	Monthly *float64        `json:"monthly"`
}

// MonthFlow holds per-sensor flow and per-clone monthly means for one
// (year, month). A clone whose members are all absent for the month has
// a nil mean.
type MonthFlow struct {
	Sensors    map[string]*SensorFlow `json:"sensors"`
	CloneMeans map[string]*float64    `json:"clone_means"`
}

// YearFlow maps month to flow totals.
type YearFlow struct {
	Months map[time.Month]*MonthFlow `json:"months"`
}

// Result is the full flux-model output, recomputed on every invocation.
type Result struct {
	Years map[int]*YearFlow `json:"years"`
}

// Model computes Delgado-Rojas flow from normalized readings.
type Model struct {
	Areas  SapwoodAreaTable
	Clones []Clone

	sensorIndex map[string]int // sensor column -> area-table index
}

// NewModel validates the sapwood-area table against the sensor set and
// the clone partition. A table shorter than the sensor set is a fatal
// *domain.ConfigurationError: substituting a default area would be
// physically meaningless.
func NewModel(areas SapwoodAreaTable, clones []Clone) (*Model, error) {
	cols := domain.SensorColumns()
	if len(areas) < len(cols) {
		return nil, &domain.ConfigurationError{
			Reason: fmt.Sprintf("sapwood-area table has %d entries, need %d", len(areas), len(cols)),
		}
	}
	if len(clones) == 0 {
		clones = DefaultClones
	}

	index := make(map[string]int, len(cols))
	for i, col := range cols {
		index[col] = i
	}
	for _, clone := range clones {
		for _, sensor := range clone.Sensors {
			if _, ok := index[sensor]; !ok {
				return nil, &domain.ConfigurationError{
					Reason: fmt.Sprintf("clone %s references unknown sensor %s", clone.Label, sensor),
				}
			}
		}
	}

	return &Model{Areas: areas, Clones: clones, sensorIndex: index}, nil
}

// sampleFlow is the per-sample Delgado-Rojas term.
func sampleFlow(x, xMax, area float64) float64 {
	return delgadoRojasCoeff * math.Pow(x/xMax, delgadoRojasExponent) * area * flowScale
}

// Compute derives per-sensor daily and monthly flow plus clone monthly
// means from windowed, normalized readings. x_max is taken per sensor
// per day over the readings given; a sensor-day with x_max == 0 yields
// no flow value at all for that day.
//
// Monthly flow sums the defined daily flows; absent days contribute
// nothing. That makes an all-absent month itself absent (nil), while a
// month mixing absent and defined days sums only the defined ones.
// Columns outside the sensor set (no sapwood area) are ignored.
func (m *Model) Compute(readings []domain.NormalizedReading) *Result {
	result := &Result{Years: make(map[int]*YearFlow)}

	// Per (year, month, sensor, day): collect minute samples so x_max is
	// known before any per-sample flow is computable.
	type dayKey struct {
		year   int
		month  time.Month
		sensor string
		day    int
	}
	samples := make(map[dayKey][]float64)
	for _, r := range readings {
		for sensor, value := range r.Values {
			// Columns without a sapwood area (TEMP, future sensors) have
			// no defined flow; skipping them beats pricing them with
			// another sensor's area.
			if _, ok := m.sensorIndex[sensor]; !ok {
				continue
			}
			k := dayKey{r.Year, r.Month, sensor, r.DayOfYear}
			samples[k] = append(samples[k], value)
		}
	}

	keys := make([]dayKey, 0, len(samples))
	for k := range samples {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.year != b.year {
			return a.year < b.year
		}
		if a.month != b.month {
			return a.month < b.month
		}
		if a.sensor != b.sensor {
			return a.sensor < b.sensor
		}
		return a.day < b.day
	})

	for _, k := range keys {
		sf := result.sensorFlow(k.year, k.month, k.sensor)

		xMax := 0.0
		for _, x := range samples[k] {
			if x > xMax {
				xMax = x
			}
		}
		if xMax == 0 {
			// No positive signal that day: flow is undefined, the day
			// stays absent from Daily.
			continue
		}

		area := m.Areas.Area(m.sensorIndex[k.sensor])
		var daily float64
		for _, x := range samples[k] {
			daily += sampleFlow(x, xMax, area)
		}
		sf.Daily[k.day] = daily
	}

	result.finish(m.Clones)
	return result
}

// sensorFlow returns (creating as needed) the SensorFlow bucket for a
// (year, month, sensor).
func (r *Result) sensorFlow(year int, month time.Month, sensor string) *SensorFlow {
	yf := r.Years[year]
	if yf == nil {
		yf = &YearFlow{Months: make(map[time.Month]*MonthFlow)}
		r.Years[year] = yf
	}
	mf := yf.Months[month]
	if mf == nil {
		mf = &MonthFlow{
			Sensors:    make(map[string]*SensorFlow),
			CloneMeans: make(map[string]*float64),
		}
		yf.Months[month] = mf
	}
	sf := mf.Sensors[sensor]
	if sf == nil {
		sf = &SensorFlow{Daily: make(map[int]float64)}
		mf.Sensors[sensor] = sf
	}
	return sf
}

// finish rolls daily flows up into monthly sums and clone means.
func (r *Result) finish(clones []Clone) {
	for _, yf := range r.Years {
		for _, mf := range yf.Months {
			for _, sf := range mf.Sensors {
				sf.rollUpMonthly()
			}
			mf.computeCloneMeans(clones)
		}
	}
}

func (sf *SensorFlow) rollUpMonthly() {
	if len(sf.Daily) == 0 {
		sf.Monthly = nil
		return
	}
	days := make([]int, 0, len(sf.Daily))
	for day := range sf.Daily {
		days = append(days, day)
	}
	sort.Ints(days)

	var monthly float64
	for _, day := range days {
		monthly += sf.Daily[day]
	}
	sf.Monthly = &monthly
}

// computeCloneMeans averages member monthly flows. The divisor is the
// full clone size even when some members are absent (they contribute 0
// to the numerator); a clone with no defined member at all gets nil.
func (mf *MonthFlow) computeCloneMeans(clones []Clone) {
	for _, clone := range clones {
		var (
			sum     float64
			defined bool
		)
		for _, sensor := range clone.Sensors {
			sf := mf.Sensors[sensor]
			if sf == nil || sf.Monthly == nil {
				continue
			}
			sum += *sf.Monthly
			defined = true
		}
		if !defined {
			mf.CloneMeans[clone.Label] = nil
			continue
		}
		mean := sum / float64(len(clone.Sensors)) * cloneMeanFactor
		mf.CloneMeans[clone.Label] = &mean
	}
}
