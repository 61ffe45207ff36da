package jobs

import (
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/vigilo/vigilo/internal/database"
	"github.com/vigilo/vigilo/internal/services"
)

// RollupAggregationJob upserts rollups tier by tier: the just-completed
// hour and the daily tier come from raw events, the weekly
// (Monday-anchored) and monthly tiers are merged from the daily rows.
// Merging from dailies keeps the coarse tiers stable after the raw
// events behind them have aged out of retention.
type RollupAggregationJob struct {
	db   *gorm.DB
	calc *services.RollupCalculator
}

// NewRollupAggregationJob creates a rollup aggregation job
func NewRollupAggregationJob(db *gorm.DB, calc *services.RollupCalculator) *RollupAggregationJob {
	return &RollupAggregationJob{db: db, calc: calc}
}

// Run executes one aggregation pass over every monitor and returns the
// number of rollup rows upserted
func (j *RollupAggregationJob) Run(now time.Time) (int, error) {
	monitors, err := database.ListMonitors(j.db)
	if err != nil {
		return 0, err
	}

	upserted := 0
	for i := range monitors {
		n, err := j.aggregateMonitor(&monitors[i], now.UTC())
		if err != nil {
			log.Printf("Rollup aggregation failed for monitor %d: %v", monitors[i].ID, err)
			continue
		}
		upserted += n
	}
	return upserted, nil
}

func (j *RollupAggregationJob) aggregateMonitor(monitor *database.Monitor, now time.Time) (int, error) {
	upserted := 0

	// Hourly: the just-completed hour, only if events exist
	hourStart := now.Truncate(time.Hour).Add(-time.Hour)
	n, err := j.rollupFromEvents(monitor, database.GranularityHourly, hourStart, hourStart.Add(time.Hour))
	if err != nil {
		return upserted, err
	}
	upserted += n

	// Daily: yesterday, gated on that day's hourly rollups
	dayStart := truncateDay(now).AddDate(0, 0, -1)
	dayEnd := dayStart.AddDate(0, 0, 1)
	ok, err := j.tierExists(monitor, database.GranularityHourly, dayStart, dayEnd)
	if err != nil {
		return upserted, err
	}
	if ok {
		n, err := j.rollupFromEvents(monitor, database.GranularityDaily, dayStart, dayEnd)
		if err != nil {
			return upserted, err
		}
		upserted += n
	}

	// Weekly: the Monday-anchored week containing yesterday, merged from
	// that week's dailies
	weekStart := mondayOf(dayStart)
	n, err = j.rollupFromDailies(monitor, database.GranularityWeekly, weekStart, weekStart.AddDate(0, 0, 7))
	if err != nil {
		return upserted, err
	}
	upserted += n

	// Monthly: the month containing yesterday, merged from its dailies
	monthStart := time.Date(dayStart.Year(), dayStart.Month(), 1, 0, 0, 0, 0, time.UTC)
	n, err = j.rollupFromDailies(monitor, database.GranularityMonthly, monthStart, monthStart.AddDate(0, 1, 0))
	if err != nil {
		return upserted, err
	}
	upserted += n

	return upserted, nil
}

// rollupFromEvents computes and upserts one rollup from the raw events in
// [from, to). Periods with no events are skipped, not zero-filled.
func (j *RollupAggregationJob) rollupFromEvents(monitor *database.Monitor, granularity database.Granularity, from, to time.Time) (int, error) {
	events, err := database.GetEventsInRange(j.db, monitor.ID, from, to)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}
	rollup := j.calc.Compute(events, monitor.ID, monitor.ServiceID, granularity, from)
	if err := database.UpsertRollup(j.db, &rollup); err != nil {
		return 0, err
	}
	return 1, nil
}

// rollupFromDailies merges the daily rollups with period start in
// [from, to) into one coarser rollup. Periods without any daily are
// skipped, so a coarse tier never appears before its finer tier.
func (j *RollupAggregationJob) rollupFromDailies(monitor *database.Monitor, granularity database.Granularity, from, to time.Time) (int, error) {
	dailies, err := database.GetRollupsInRange(j.db, monitor.ID, database.GranularityDaily, from, to)
	if err != nil {
		return 0, err
	}
	if len(dailies) == 0 {
		return 0, nil
	}
	rollup := j.calc.Merge(dailies, monitor.ID, monitor.ServiceID, granularity, from)
	if err := database.UpsertRollup(j.db, &rollup); err != nil {
		return 0, err
	}
	return 1, nil
}

func (j *RollupAggregationJob) tierExists(monitor *database.Monitor, granularity database.Granularity, from, to time.Time) (bool, error) {
	count, err := database.CountRollupsInRange(j.db, monitor.ID, granularity, from, to)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// mondayOf returns the Monday starting the week containing t
func mondayOf(t time.Time) time.Time {
	day := truncateDay(t)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// Start begins the periodic rollup aggregation
func (j *RollupAggregationJob) Start(interval time.Duration, stop <-chan struct{}) {
	startLoop("Rollup aggregation", interval, stop, func() error {
		_, err := j.Run(time.Now())
		return err
	})
}
