package aggregate

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/sapflow-etl/internal/domain"
)

// Aggregate partitions readings by year, computes each year's totals,
// and merges them into a Result. Year partitions are independent, so
// they run in parallel. Cancellation is honored between year partitions:
// the returned Result then contains only the completed years and has
// Truncated set. An empty input yields an empty Result, not an error.
//
// Readings are assumed normalized and window-filtered; the aggregator
// itself is group-agnostic and sums whatever sensor columns appear.
func Aggregate(ctx context.Context, readings []domain.NormalizedReading) *Result {
	result := &Result{Years: make(map[int]*YearTotals)}
	if len(readings) == 0 {
		return result
	}

	byYear := make(map[int][]domain.NormalizedReading)
	for _, r := range readings {
		byYear[r.Year] = append(byYear[r.Year], r)
	}

	var (
		mu        sync.Mutex
		truncated bool
	)
	g := new(errgroup.Group)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for year, rows := range byYear {
		g.Go(func() error {
			if ctx.Err() != nil {
				mu.Lock()
				truncated = true
				mu.Unlock()
				return nil
			}
			yt := aggregateYear(rows)
			mu.Lock()
			result.Years[year] = yt
			mu.Unlock()
			return nil
		})
	}
	g.Wait() //nolint:errcheck // workers never return errors

	result.Truncated = truncated
	return result
}

// aggregateYear builds one year's totals: group by month, then sensor,
// then accumulate minute buckets and roll them up in ascending key order.
func aggregateYear(rows []domain.NormalizedReading) *YearTotals {
	yt := &YearTotals{Months: make(map[time.Month]*MonthTotals)}

	for _, r := range rows {
		mt := yt.Months[r.Month]
		if mt == nil {
			mt = &MonthTotals{Sensors: make(map[string]*SensorTotals)}
			yt.Months[r.Month] = mt
		}
		for sensor, value := range r.Values {
			st := mt.Sensors[sensor]
			if st == nil {
				st = &SensorTotals{
					Hourly: make(map[int]map[int]float64),
					Daily:  make(map[int]float64),
				}
				mt.Sensors[sensor] = st
			}
			day := st.Hourly[r.DayOfYear]
			if day == nil {
				day = make(map[int]float64)
				st.Hourly[r.DayOfYear] = day
			}
			day[r.MinuteOfDay] += value
		}
	}

	// Roll minute buckets up into daily and monthly sums. Iterating
	// sorted keys keeps float accumulation order fixed across runs.
	for _, mt := range yt.Months {
		for _, st := range mt.Sensors {
			st.rollUp()
		}
	}
	return yt
}

func (st *SensorTotals) rollUp() {
	days := make([]int, 0, len(st.Hourly))
	for day := range st.Hourly {
		days = append(days, day)
	}
	sort.Ints(days)

	st.Monthly = 0
	for _, day := range days {
		minutes := make([]int, 0, len(st.Hourly[day]))
		for m := range st.Hourly[day] {
			minutes = append(minutes, m)
		}
		sort.Ints(minutes)

		var daily float64
		for _, m := range minutes {
			daily += st.Hourly[day][m]
		}
		st.Daily[day] = daily
		st.Monthly += daily
	}
}
