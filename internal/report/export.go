package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/couchcryptid/sapflow-etl/internal/aggregate"
	"github.com/couchcryptid/sapflow-etl/internal/flux"
)

// csvHeader is shared by the CSV and XLSX exports. One record per
// sensor-day, with the sensor's monthly total repeated for convenience.
var csvHeader = []string{"year", "month", "sensor", "day_of_year", "daily_sum", "monthly_sum"}

// WriteCSV exports daily and monthly sums, one row per sensor-day, in
// ascending (year, month, sensor, day) order.
func WriteCSV(w io.Writer, result *aggregate.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	err := eachDailyRow(result, func(rec []string) error {
		return cw.Write(rec)
	})
	if err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX exports the same rows as WriteCSV into a workbook with one
// sheet per year.
func WriteXLSX(w io.Writer, result *aggregate.Result) error {
	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck // in-memory workbook

	for i, year := range sortedInts(result.Years) {
		sheet := strconv.Itoa(year)
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
				return fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("add sheet %s: %w", sheet, err)
		}

		if err := writeYearSheet(f, sheet, year, result.Years[year]); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func writeYearSheet(f *excelize.File, sheet string, year int, yt *aggregate.YearTotals) error {
	row := 1
	if err := setRow(f, sheet, row, csvHeader); err != nil {
		return err
	}
	for _, month := range sortedMonths(yt.Months) {
		mt := yt.Months[month]
		for _, sensor := range sortedStrings(mt.Sensors) {
			st := mt.Sensors[sensor]
			for _, day := range sortedInts(st.Daily) {
				row++
				rec := []string{
					strconv.Itoa(year),
					strconv.Itoa(int(month)),
					sensor,
					strconv.Itoa(day),
					formatSum(st.Daily[day]),
					formatSum(st.Monthly),
				}
				if err := setRow(f, sheet, row, rec); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	anyVals := make([]any, len(values))
	for i, v := range values {
		anyVals[i] = v
	}
	if err := f.SetSheetRow(sheet, cell, &anyVals); err != nil {
		return fmt.Errorf("set row %d on sheet %s: %w", row, sheet, err)
	}
	return nil
}

// WriteFlowCSV exports per-sensor daily flow, monthly flow, and clone
// means. Absent values (no positive signal) export as empty cells, not
// zeros, so spreadsheets cannot silently sum them.
func WriteFlowCSV(w io.Writer, flow *flux.Result) error {
	cw := csv.NewWriter(w)
	header := []string{"year", "month", "scope", "day_of_year", "flow"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write flow csv header: %w", err)
	}

	for _, year := range sortedInts(flow.Years) {
		yf := flow.Years[year]
		for _, month := range sortedMonths(yf.Months) {
			mf := yf.Months[month]
			for _, sensor := range sortedStrings(mf.Sensors) {
				sf := mf.Sensors[sensor]
				for _, day := range sortedInts(sf.Daily) {
					rec := []string{
						strconv.Itoa(year), strconv.Itoa(int(month)), sensor,
						strconv.Itoa(day), formatSum(sf.Daily[day]),
					}
					if err := cw.Write(rec); err != nil {
						return fmt.Errorf("write flow csv: %w", err)
					}
				}
				rec := []string{
					strconv.Itoa(year), strconv.Itoa(int(month)), sensor,
					"", formatMaybe(sf.Monthly),
				}
				if err := cw.Write(rec); err != nil {
					return fmt.Errorf("write flow csv: %w", err)
				}
			}
			for _, label := range sortedStrings(mf.CloneMeans) {
				rec := []string{
					strconv.Itoa(year), strconv.Itoa(int(month)), label,
					"", formatMaybe(mf.CloneMeans[label]),
				}
				if err := cw.Write(rec); err != nil {
					return fmt.Errorf("write flow csv: %w", err)
				}
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatSum(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatMaybe(v *float64) string {
	if v == nil {
		return ""
	}
	return formatSum(*v)
}

// eachDailyRow visits sensor-day records in ascending key order.
func eachDailyRow(result *aggregate.Result, fn func([]string) error) error {
	for _, year := range sortedInts(result.Years) {
		yt := result.Years[year]
		for _, month := range sortedMonths(yt.Months) {
			mt := yt.Months[month]
			for _, sensor := range sortedStrings(mt.Sensors) {
				st := mt.Sensors[sensor]
				for _, day := range sortedInts(st.Daily) {
					rec := []string{
						strconv.Itoa(year),
						strconv.Itoa(int(month)),
						sensor,
						strconv.Itoa(day),
						formatSum(st.Daily[day]),
						formatSum(st.Monthly),
					}
					if err := fn(rec); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}
