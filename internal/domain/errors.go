package domain

import "fmt"

// InvalidDateError reports a day-of-year that does not resolve to a
// calendar date within its year. It is a per-row condition: callers drop
// the offending row and continue the batch.
type InvalidDateError struct {
	Year      int
	DayOfYear int
}

func (e *InvalidDateError) Error() string {
	return fmt.Sprintf("day-of-year %d is not a valid date in %d", e.DayOfYear, e.Year)
}

// ConfigurationError reports a physically meaningless setup, such as a
// sapwood-area table shorter than the sensor set. It is fatal: the
// computation aborts with no partial output.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

// SchemaError reports a raw table whose column layout cannot be mapped
// onto the expected ANO/DIAJ/HORA + sensor schema. Raised only by the
// ingestion boundary; the core assumes a validated schema.
type SchemaError struct {
	Reason string
}

func (e *SchemaError) Error() string {
	return "schema error: " + e.Reason
}
