// Package ingest reads raw datalogger exports (.dat, .csv, .xlsx) and
// maps their loose column layouts onto the fixed ANO/DIAJ/HORA + sensor
// schema the core expects. All format sniffing and column heuristics
// live here; the domain packages never branch on table shape.
package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/couchcryptid/sapflow-etl/internal/domain"
)

// fixedColumns precede the sensor block in every export.
var fixedColumns = []string{"ANO", "DIAJ", "HORA"}

// Load parses raw file bytes and returns their rows as raw Readings.
// The format is chosen by ext: .csv and .dat are comma-separated, .xlsx
// is read via excelize. Unknown extensions are a *domain.SchemaError.
func Load(data []byte, ext string) ([]domain.Reading, error) {
	var (
		cells [][]string
		err   error
	)
	switch strings.ToLower(ext) {
	case ".csv", ".dat":
		cells, err = readCSV(bytes.NewReader(data))
	case ".xlsx":
		cells, err = readXLSX(bytes.NewReader(data))
	default:
		return nil, &domain.SchemaError{Reason: fmt.Sprintf("unsupported file format %q, use .dat, .csv or .xlsx", ext)}
	}
	if err != nil {
		return nil, err
	}
	return mapRows(cells)
}

func readCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // logger exports vary in trailing columns
	cells, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return cells, nil
}

func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only handle

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &domain.SchemaError{Reason: "xlsx workbook has no sheets"}
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read xlsx sheet %s: %w", sheets[0], err)
	}
	return rows, nil
}

// mapRows applies the logger-export heuristics:
//
//   - the first column is a record index written by the logger; drop it
//   - a leading header row (non-numeric ANO cell) is skipped
//   - 13 data columns = ANO DIAJ HORA SENSOR1..10
//   - 14 data columns = the firmware variant with TEMP after HORA
//   - extra trailing columns are truncated, fewer than 13 is fatal
func mapRows(cells [][]string) ([]domain.Reading, error) {
	if len(cells) == 0 {
		return nil, nil
	}

	sensorCols := domain.SensorColumns()
	want := len(fixedColumns) + len(sensorCols)

	start := 0
	if isHeaderRow(cells[0]) {
		start = 1
	}

	readings := make([]domain.Reading, 0, len(cells)-start)
	for i := start; i < len(cells); i++ {
		row := cells[i]
		if len(row) == 0 {
			continue
		}
		row = row[1:] // drop the record-index column

		if len(row) < want {
			return nil, &domain.SchemaError{
				Reason: fmt.Sprintf("row %d has %d columns, need at least %d", i+1, len(row), want),
			}
		}

		hasTemp := len(row) > want // TEMP sits between HORA and SENSOR1
		sensorStart := len(fixedColumns)
		if hasTemp {
			sensorStart++
		}

		reading, err := buildReading(row, sensorStart, sensorCols)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		readings = append(readings, reading)
	}
	return readings, nil
}

func buildReading(row []string, sensorStart int, sensorCols []string) (domain.Reading, error) {
	year, err := parseOrdinal("ANO", row[0])
	if err != nil {
		return domain.Reading{}, err
	}
	doy, err := parseOrdinal("DIAJ", row[1])
	if err != nil {
		return domain.Reading{}, err
	}
	minute, err := parseOrdinal("HORA", row[2])
	if err != nil {
		return domain.Reading{}, err
	}

	values := make(map[string]string, len(sensorCols))
	for i, col := range sensorCols {
		idx := sensorStart + i
		if idx < len(row) {
			values[col] = row[idx]
		} else {
			values[col] = ""
		}
	}

	return domain.Reading{
		Year:        year,
		DayOfYear:   doy,
		MinuteOfDay: minute,
		Values:      values,
	}, nil
}

// parseOrdinal parses an integer field, tolerating the float round-trip
// some export paths add ("2020.0").
func parseOrdinal(name, raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	v, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
	if err != nil {
		return 0, &domain.SchemaError{Reason: fmt.Sprintf("%s value %q is not numeric", name, raw)}
	}
	return int(v), nil
}

// isHeaderRow detects a header by checking whether the ANO position
// (second cell, after the record index) parses as a number.
func isHeaderRow(row []string) bool {
	if len(row) < 2 {
		return false
	}
	_, err := strconv.ParseFloat(strings.TrimSpace(strings.ReplaceAll(row[1], ",", ".")), 64)
	return err != nil
}
