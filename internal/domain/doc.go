// Package domain models sap-flow datalogger readings and the pure
// transforms that prepare them for aggregation.
//
// # Data Source
//
// Readings come from field dataloggers attached to thermal-dissipation
// sap-flow probes in a eucalyptus clone trial. The loggers write one row
// per sampling interval; the upstream collector publishes each row as
// flat JSON to the Kafka source topic (or the rows arrive as a .dat/.csv/
// .xlsx export handled by the ingest package).
//
// # Row Conventions
//
// Fixed columns:
//
//	ANO   4-digit year.
//	DIAJ  Julian day-of-year, 1-366 (366 only in leap years).
//	HORA  minutes since midnight, 0-1439. Despite the name this is NOT
//	      an HHMM clock value; 360 means 06:00, 1080 means 18:00.
//	TEMP  optional ambient-temperature column some logger firmwares add.
//
// Sensor columns:
//
//	SENSOR1..SENSOR10, raw probe signal. Values are string-encoded and
//	inconsistent: decimal comma ("3,5") or decimal point, missing
//	sentinels "<NA>", "nan", "NaN", "NA" or an empty cell, and spurious
//	negatives from probe drift. The normalizer maps every anomaly to
//	zero contribution (see [Normalizer]); it never raises.
//
// Integer fields occasionally round-trip through a float export path
// and arrive as "2020.0"; [ParseReading] tolerates that.
//
// # Active Window
//
// Only readings between 06:00 and 18:00 inclusive (minutes 360-1080)
// count toward aggregation. A reading outside the window is excluded,
// which is deliberately distinct from an in-window reading whose value
// normalizes to zero.
//
// # Clones
//
// The trial groups probes into two fixed clones of five trees each:
// CLONE1 = SENSOR1..SENSOR5, CLONE2 = SENSOR6..SENSOR10. Clone grouping
// matters only to the flux model and the reporting layer; the
// aggregator is group-agnostic.
package domain
