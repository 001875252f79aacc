// Package report renders aggregation and flux results for consumers:
// plain-text summaries mirroring the field dashboard's clone/year/month
// drill-down, CSV and XLSX exports, and the JSON snapshot published to
// the Kafka sink. The core only guarantees literal minute keys; turning
// them into HH:MM labels happens here.
package report

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/couchcryptid/sapflow-etl/internal/aggregate"
	"github.com/couchcryptid/sapflow-etl/internal/flux"
)

// MinutesToHHMM formats minutes-since-midnight as a 24h clock label,
// e.g. 360 -> "06:00".
func MinutesToHHMM(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// Snapshot is the JSON document published to the sink topic and written
// by the CLI's -json output. Flow is nil unless flux conversion ran.
type Snapshot struct {
	GeneratedAt time.Time         `json:"generated_at"`
	Readings    int               `json:"readings"`
	Truncated   bool              `json:"truncated,omitempty"`
	Aggregates  *aggregate.Result `json:"aggregates"`
	Flow        *flux.Result      `json:"flow,omitempty"`
}

// WriteSummary renders the dashboard-style drill-down: clone -> year ->
// month -> sensor, with monthly, daily and per-minute sums in sorted
// order. Sensors outside any clone are not shown, matching the original
// display.
func WriteSummary(w io.Writer, result *aggregate.Result, flow *flux.Result, clones []flux.Clone) error {
	if len(clones) == 0 {
		clones = flux.DefaultClones
	}
	bw := &errWriter{w: w}

	for _, clone := range clones {
		bw.printf("=== %s ===\n", clone.Label)
		for _, year := range sortedInts(result.Years) {
			bw.printf("Year %d\n", year)
			yt := result.Years[year]
			for _, month := range sortedMonths(yt.Months) {
				bw.printf("  Month %d\n", int(month))
				mt := yt.Months[month]
				for _, sensor := range clone.Sensors {
					st, ok := mt.Sensors[sensor]
					if !ok {
						continue
					}
					writeSensor(bw, sensor, st)
				}
				writeCloneMean(bw, flow, year, month, clone.Label)
			}
		}
		bw.printf("\n")
	}
	if result.Truncated {
		bw.printf("WARNING: aggregation was cancelled before completing; totals above are partial\n")
	}
	return bw.err
}

func writeSensor(bw *errWriter, sensor string, st *aggregate.SensorTotals) {
	bw.printf("    %s  month total %.2f\n", sensor, st.Monthly)

	days := make([]int, 0, len(st.Daily))
	for day := range st.Daily {
		days = append(days, day)
	}
	sort.Ints(days)
	for _, day := range days {
		bw.printf("      day %d: %.2f\n", day, st.Daily[day])
		minutes := make([]int, 0, len(st.Hourly[day]))
		for m := range st.Hourly[day] {
			minutes = append(minutes, m)
		}
		sort.Ints(minutes)
		for _, m := range minutes {
			bw.printf("        %s  %.2f\n", MinutesToHHMM(m), st.Hourly[day][m])
		}
	}
}

func writeCloneMean(bw *errWriter, flow *flux.Result, year int, month time.Month, label string) {
	if flow == nil {
		return
	}
	yf := flow.Years[year]
	if yf == nil {
		return
	}
	mf := yf.Months[month]
	if mf == nil {
		return
	}
	mean, ok := mf.CloneMeans[label]
	if !ok {
		return
	}
	if mean == nil {
		bw.printf("    %s mean flow: no signal\n", label)
		return
	}
	bw.printf("    %s mean flow: %.4f\n", label, *mean)
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}

func sortedInts[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

func sortedMonths[V any](m map[time.Month]V) []time.Month {
	keys := make([]time.Month, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func sortedStrings[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
