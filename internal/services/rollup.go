package services

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/vigilo/vigilo/internal/database"
)

// RollupCalculator computes one statistics row from a set of raw monitor
// events. Compute is pure; callers own persistence.
type RollupCalculator struct{}

// NewRollupCalculator creates a new rollup calculator
func NewRollupCalculator() *RollupCalculator {
	return &RollupCalculator{}
}

// Compute aggregates the given events into a rollup for the period.
// Count, success and failure are simple tallies. The descriptive
// statistics cover only events carrying a numeric value and stay nil when
// no such event exists.
func (c *RollupCalculator) Compute(events []database.MonitorEvent, monitorID, serviceID uint, granularity database.Granularity, periodStart time.Time) database.MonitorRollup {
	rollup := database.MonitorRollup{
		MonitorID:   monitorID,
		ServiceID:   serviceID,
		Granularity: granularity,
		PeriodStart: periodStart,
	}

	values := make([]float64, 0, len(events))
	for _, event := range events {
		rollup.Count++
		if event.Success {
			rollup.SuccessCount++
		} else {
			rollup.FailureCount++
		}
		if event.Value != nil {
			values = append(values, *event.Value)
		}
	}

	if rollup.Count > 0 {
		uptime := round2(float64(rollup.SuccessCount) / float64(rollup.Count) * 100)
		rollup.UptimePercent = &uptime
	}

	rollup.SampleCount = len(values)
	if len(values) == 0 {
		return rollup
	}

	sort.Float64s(values)
	rollup.MinValue = ptr(values[0])
	rollup.MaxValue = ptr(values[len(values)-1])
	rollup.Mean = ptr(stat.Mean(values, nil))
	rollup.Median = ptr(percentile(values, 50))
	rollup.P80 = ptr(percentile(values, 80))
	rollup.P90 = ptr(percentile(values, 90))
	rollup.P95 = ptr(percentile(values, 95))
	rollup.StdDev = ptr(stat.PopStdDev(values, nil))

	return rollup
}

// Merge combines finer-grained rollups into one coarser rollup without
// going back to raw events, which may already have aged out of retention.
// Tallies, min, max, mean and the population standard deviation merge
// exactly; median and the percentiles are sample-count-weighted means of
// the inputs since the raw values are gone.
func (c *RollupCalculator) Merge(rollups []database.MonitorRollup, monitorID, serviceID uint, granularity database.Granularity, periodStart time.Time) database.MonitorRollup {
	merged := database.MonitorRollup{
		MonitorID:   monitorID,
		ServiceID:   serviceID,
		Granularity: granularity,
		PeriodStart: periodStart,
	}

	var sum, sumSq, median, p80, p90, p95 float64
	for _, r := range rollups {
		merged.Count += r.Count
		merged.SuccessCount += r.SuccessCount
		merged.FailureCount += r.FailureCount

		if r.SampleCount == 0 || r.Mean == nil {
			continue
		}
		merged.SampleCount += r.SampleCount
		n := float64(r.SampleCount)

		if r.MinValue != nil && (merged.MinValue == nil || *r.MinValue < *merged.MinValue) {
			merged.MinValue = ptr(*r.MinValue)
		}
		if r.MaxValue != nil && (merged.MaxValue == nil || *r.MaxValue > *merged.MaxValue) {
			merged.MaxValue = ptr(*r.MaxValue)
		}

		sum += n * *r.Mean
		sd := 0.0
		if r.StdDev != nil {
			sd = *r.StdDev
		}
		sumSq += n * (sd*sd + *r.Mean**r.Mean)
		if r.Median != nil {
			median += n * *r.Median
		}
		if r.P80 != nil {
			p80 += n * *r.P80
		}
		if r.P90 != nil {
			p90 += n * *r.P90
		}
		if r.P95 != nil {
			p95 += n * *r.P95
		}
	}

	if merged.Count > 0 {
		uptime := round2(float64(merged.SuccessCount) / float64(merged.Count) * 100)
		merged.UptimePercent = &uptime
	}
	if merged.SampleCount == 0 {
		return merged
	}

	total := float64(merged.SampleCount)
	mean := sum / total
	merged.Mean = ptr(mean)
	merged.Median = ptr(median / total)
	merged.P80 = ptr(p80 / total)
	merged.P90 = ptr(p90 / total)
	merged.P95 = ptr(p95 / total)
	merged.StdDev = ptr(math.Sqrt(math.Max(0, sumSq/total-mean*mean)))

	return merged
}

// percentile returns the k-th percentile of sorted values using linear
// interpolation at index k*(n-1) between the floor and ceil neighbors.
func percentile(sorted []float64, k float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := k / 100 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	weight := rank - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func ptr(v float64) *float64 {
	return &v
}
