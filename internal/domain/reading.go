package domain

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SensorCount is the number of sensor columns in a logger row. The
// dataloggers in the field write ten sap-flow probes per record.
const SensorCount = 10

// SensorColumns returns the ordered sensor identifiers SENSOR1..SENSOR10.
// Index i corresponds to row i of the sapwood-area table.
func SensorColumns() []string {
	cols := make([]string, SensorCount)
	for i := range cols {
		cols[i] = fmt.Sprintf("SENSOR%d", i+1)
	}
	return cols
}

// RawRow represents the flat JSON structure produced by the collector.
// Every field is string-encoded because the dataloggers emit a mix of
// numeric and sentinel values in the same column.
type RawRow struct {
	Year      string `json:"ANO"`
	DayOfYear string `json:"DIAJ"`
	Minute    string `json:"HORA"` // minutes since midnight, not HHMM
	Temp      string `json:"TEMP,omitempty"`
	Sensor1   string `json:"SENSOR1"`
	Sensor2   string `json:"SENSOR2"`
	Sensor3   string `json:"SENSOR3"`
	Sensor4   string `json:"SENSOR4"`
	Sensor5   string `json:"SENSOR5"`
	Sensor6   string `json:"SENSOR6"`
	Sensor7   string `json:"SENSOR7"`
	Sensor8   string `json:"SENSOR8"`
	Sensor9   string `json:"SENSOR9"`
	Sensor10  string `json:"SENSOR10"`
}

// SensorValues returns the raw sensor fields in column order.
func (r RawRow) SensorValues() []string {
	return []string{
		r.Sensor1, r.Sensor2, r.Sensor3, r.Sensor4, r.Sensor5,
		r.Sensor6, r.Sensor7, r.Sensor8, r.Sensor9, r.Sensor10,
	}
}

// RawEvent represents an unprocessed message from the source topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// Reading is one logger observation with its sensor values still in
// their raw string encoding.
type Reading struct {
	Year        int
	DayOfYear   int
	MinuteOfDay int
	Values      map[string]string // sensor column -> raw scalar
}

// NormalizedReading is a Reading after normalization: every sensor value
// is a finite number >= 0, and the ordinal day has been resolved to a
// Gregorian month and day. Instances are immutable once built.
type NormalizedReading struct {
	Year        int
	DayOfYear   int
	MinuteOfDay int
	Month       time.Month
	Day         int
	Values      map[string]float64
}

// ParseReading converts a RawRow into a Reading. The ANO/DIAJ/HORA
// fields sometimes arrive as floats ("2020.0") depending on the export
// path, so they are parsed as floats and truncated.
func ParseReading(row RawRow) (Reading, error) {
	year, err := parseIntField("ANO", row.Year)
	if err != nil {
		return Reading{}, err
	}
	doy, err := parseIntField("DIAJ", row.DayOfYear)
	if err != nil {
		return Reading{}, err
	}
	minute, err := parseIntField("HORA", row.Minute)
	if err != nil {
		return Reading{}, err
	}
	if minute < 0 || minute > 1439 {
		return Reading{}, fmt.Errorf("parse reading: HORA %d out of range", minute)
	}

	values := make(map[string]string, SensorCount)
	raws := row.SensorValues()
	for i, col := range SensorColumns() {
		values[col] = raws[i]
	}

	return Reading{
		Year:        year,
		DayOfYear:   doy,
		MinuteOfDay: minute,
		Values:      values,
	}, nil
}

func parseIntField(name, raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("parse reading: %s is empty", name)
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
	if err != nil {
		return 0, fmt.Errorf("parse reading: %s %q: %w", name, raw, err)
	}
	return int(v), nil
}

// OutputEvent is the serialized form destined for the sink topic.
type OutputEvent struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}
