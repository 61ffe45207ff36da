package jobs

import (
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/vigilo/vigilo/internal/database"
	"github.com/vigilo/vigilo/internal/services"
)

func recordEventAt(t *testing.T, db *gorm.DB, monitorID uint, value float64, success bool, at time.Time) {
	t.Helper()
	event := &database.MonitorEvent{
		MonitorID: monitorID,
		EventType: database.EventTypeMetric,
		Success:   success,
		Value:     &value,
		CreatedAt: at,
	}
	if err := db.Create(event).Error; err != nil {
		t.Fatalf("failed to create event: %v", err)
	}
}

func TestRollupAggregation_HourlyFromEvents(t *testing.T) {
	db := setupTestDB(t)
	_, monitor := createServiceWithMonitor(t, db, database.ServiceStateUp, database.MonitorTypeMetric)

	now := time.Date(2026, 8, 31, 15, 30, 0, 0, time.UTC)
	hourStart := time.Date(2026, 8, 31, 14, 0, 0, 0, time.UTC)

	recordEventAt(t, db, monitor.ID, 10, true, hourStart.Add(5*time.Minute))
	recordEventAt(t, db, monitor.ID, 20, true, hourStart.Add(25*time.Minute))
	recordEventAt(t, db, monitor.ID, 30, false, hourStart.Add(55*time.Minute))
	// Outside the just-completed hour
	recordEventAt(t, db, monitor.ID, 999, true, now.Add(-5*time.Minute))

	job := NewRollupAggregationJob(db, services.NewRollupCalculator())
	upserted, err := job.Run(now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if upserted != 1 {
		t.Fatalf("expected 1 rollup upserted, got %d", upserted)
	}

	rollups, err := database.GetRollupsInRange(db, monitor.ID, database.GranularityHourly, hourStart, hourStart.Add(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rollups) != 1 {
		t.Fatalf("expected 1 hourly rollup, got %d", len(rollups))
	}
	rollup := rollups[0]
	if rollup.Count != 3 || rollup.SuccessCount != 2 {
		t.Errorf("unexpected tallies: count=%d success=%d", rollup.Count, rollup.SuccessCount)
	}
	if rollup.Mean == nil || *rollup.Mean != 20 {
		t.Errorf("expected mean 20, got %v", rollup.Mean)
	}
}

func TestRollupAggregation_EmptyHourSkipped(t *testing.T) {
	db := setupTestDB(t)
	createServiceWithMonitor(t, db, database.ServiceStateUp, database.MonitorTypeMetric)

	job := NewRollupAggregationJob(db, services.NewRollupCalculator())
	upserted, err := job.Run(time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if upserted != 0 {
		t.Errorf("expected no rollups for an empty period, got %d", upserted)
	}
}

func TestRollupAggregation_DailyGatedOnHourlies(t *testing.T) {
	db := setupTestDB(t)
	_, monitor := createServiceWithMonitor(t, db, database.ServiceStateUp, database.MonitorTypeMetric)

	now := time.Date(2026, 8, 31, 3, 0, 0, 0, time.UTC)
	yesterday := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)

	// Events exist for yesterday, but no hourly rollups do
	recordEventAt(t, db, monitor.ID, 10, true, yesterday.Add(10*time.Hour))

	job := NewRollupAggregationJob(db, services.NewRollupCalculator())
	if _, err := job.Run(now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	count, _ := database.CountRollupsInRange(db, monitor.ID, database.GranularityDaily, yesterday, yesterday.AddDate(0, 0, 1))
	if count != 0 {
		t.Fatal("daily rollup must not be built before that day's hourlies exist")
	}

	// Seed one hourly rollup for yesterday; the gate opens
	hourly := database.MonitorRollup{
		MonitorID:   monitor.ID,
		ServiceID:   monitor.ServiceID,
		Granularity: database.GranularityHourly,
		PeriodStart: yesterday.Add(10 * time.Hour),
		Count:       1,
	}
	if err := database.UpsertRollup(db, &hourly); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := job.Run(now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	count, _ = database.CountRollupsInRange(db, monitor.ID, database.GranularityDaily, yesterday, yesterday.AddDate(0, 0, 1))
	if count != 1 {
		t.Errorf("expected 1 daily rollup once hourlies exist, got %d", count)
	}
}

func TestRollupAggregation_RepeatedRunsUpsertSameRow(t *testing.T) {
	db := setupTestDB(t)
	_, monitor := createServiceWithMonitor(t, db, database.ServiceStateUp, database.MonitorTypeMetric)

	now := time.Date(2026, 8, 31, 15, 30, 0, 0, time.UTC)
	hourStart := time.Date(2026, 8, 31, 14, 0, 0, 0, time.UTC)
	recordEventAt(t, db, monitor.ID, 10, true, hourStart.Add(5*time.Minute))

	job := NewRollupAggregationJob(db, services.NewRollupCalculator())
	if _, err := job.Run(now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := job.Run(now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var count int64
	db.Model(&database.MonitorRollup{}).
		Where("monitor_id = ? AND granularity = ?", monitor.ID, database.GranularityHourly).
		Count(&count)
	if count != 1 {
		t.Errorf("expected repeated runs to keep a single hourly row, got %d", count)
	}
}

func seedDailyRollup(t *testing.T, db *gorm.DB, monitor *database.Monitor, day time.Time, value float64) {
	t.Helper()
	rollup := database.MonitorRollup{
		MonitorID:    monitor.ID,
		ServiceID:    monitor.ServiceID,
		Granularity:  database.GranularityDaily,
		PeriodStart:  day,
		Count:        1,
		SuccessCount: 1,
		SampleCount:  1,
		MinValue:     &value,
		MaxValue:     &value,
		Mean:         &value,
		Median:       &value,
	}
	if err := database.UpsertRollup(db, &rollup); err != nil {
		t.Fatalf("failed to seed daily rollup: %v", err)
	}
}

func TestRollupAggregation_WeeklyMergedFromDailies(t *testing.T) {
	db := setupTestDB(t)
	_, monitor := createServiceWithMonitor(t, db, database.ServiceStateUp, database.MonitorTypeMetric)

	// 2026-08-17 is a Monday
	weekStart := time.Date(2026, 8, 17, 0, 0, 0, 0, time.UTC)
	seedDailyRollup(t, db, monitor, weekStart, 10)
	seedDailyRollup(t, db, monitor, weekStart.AddDate(0, 0, 3), 20)

	job := NewRollupAggregationJob(db, services.NewRollupCalculator())
	if _, err := job.Run(time.Date(2026, 8, 22, 3, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	weeklies, err := database.GetRollupsInRange(db, monitor.ID, database.GranularityWeekly, weekStart, weekStart.AddDate(0, 0, 7))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(weeklies) != 1 {
		t.Fatalf("expected 1 weekly rollup, got %d", len(weeklies))
	}
	if weeklies[0].Count != 2 || weeklies[0].Mean == nil || *weeklies[0].Mean != 15 {
		t.Errorf("unexpected weekly rollup: count=%d mean=%v", weeklies[0].Count, weeklies[0].Mean)
	}
}

func TestRollupAggregation_MonthlyKeepsExpiredEarlyDays(t *testing.T) {
	db := setupTestDB(t)
	_, monitor := createServiceWithMonitor(t, db, database.ServiceStateUp, database.MonitorTypeMetric)

	// The raw events behind the early-month daily are long past event
	// retention; only its rollup row remains.
	seedDailyRollup(t, db, monitor, time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC), 10)
	seedDailyRollup(t, db, monitor, time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC), 20)

	monthStart := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	job := NewRollupAggregationJob(db, services.NewRollupCalculator())

	now := time.Date(2026, 8, 22, 3, 0, 0, 0, time.UTC)
	for pass := 0; pass < 2; pass++ {
		if _, err := job.Run(now.Add(time.Duration(pass) * time.Hour)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		monthlies, err := database.GetRollupsInRange(db, monitor.ID, database.GranularityMonthly, monthStart, monthStart.AddDate(0, 1, 0))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(monthlies) != 1 {
			t.Fatalf("pass %d: expected 1 monthly rollup, got %d", pass, len(monthlies))
		}
		monthly := monthlies[0]
		if monthly.Count != 2 {
			t.Errorf("pass %d: expected both days counted, got %d", pass, monthly.Count)
		}
		if monthly.MinValue == nil || *monthly.MinValue != 10 {
			t.Errorf("pass %d: early-month minimum lost, got %v", pass, monthly.MinValue)
		}
		if monthly.Mean == nil || *monthly.Mean != 15 {
			t.Errorf("pass %d: expected mean 15, got %v", pass, monthly.Mean)
		}
	}
}

func TestMondayOf(t *testing.T) {
	tests := []struct {
		day  time.Time
		want time.Time
	}{
		// 2026-08-31 is a Monday
		{time.Date(2026, 8, 31, 13, 0, 0, 0, time.UTC), time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)},
		{time.Date(2026, 9, 6, 0, 0, 0, 0, time.UTC), time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)},
		{time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		if got := mondayOf(tt.day); !got.Equal(tt.want) {
			t.Errorf("mondayOf(%v): expected %v, got %v", tt.day, tt.want, got)
		}
	}
}
