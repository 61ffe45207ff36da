package database

import (
	"testing"
	"time"
)

func TestUpsertRollup_ReplacesOnSameKey(t *testing.T) {
	db := setupTestDB(t)
	monitor := createTestMonitor(t, db, "rollup")
	period := time.Date(2026, 8, 31, 14, 0, 0, 0, time.UTC)

	first := MonitorRollup{
		MonitorID:   monitor.ID,
		ServiceID:   monitor.ServiceID,
		Granularity: GranularityHourly,
		PeriodStart: period,
		Count:       3,
	}
	if err := UpsertRollup(db, &first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second := MonitorRollup{
		MonitorID:   monitor.ID,
		ServiceID:   monitor.ServiceID,
		Granularity: GranularityHourly,
		PeriodStart: period,
		Count:       7,
	}
	if err := UpsertRollup(db, &second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var rollups []MonitorRollup
	db.Where("monitor_id = ?", monitor.ID).Find(&rollups)
	if len(rollups) != 1 {
		t.Fatalf("expected a single row per key, got %d", len(rollups))
	}
	if rollups[0].Count != 7 {
		t.Errorf("expected the later write to win, got count %d", rollups[0].Count)
	}
}

func TestUpsertRollup_DistinctKeysCoexist(t *testing.T) {
	db := setupTestDB(t)
	monitor := createTestMonitor(t, db, "rollup-keys")
	period := time.Date(2026, 8, 31, 14, 0, 0, 0, time.UTC)

	for _, g := range []Granularity{GranularityHourly, GranularityDaily} {
		rollup := MonitorRollup{
			MonitorID:   monitor.ID,
			ServiceID:   monitor.ServiceID,
			Granularity: g,
			PeriodStart: period,
			Count:       1,
		}
		if err := UpsertRollup(db, &rollup); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	var count int64
	db.Model(&MonitorRollup{}).Where("monitor_id = ?", monitor.ID).Count(&count)
	if count != 2 {
		t.Errorf("expected 2 rows for distinct granularities, got %d", count)
	}
}

func TestCountAndGetRollupsInRange(t *testing.T) {
	db := setupTestDB(t)
	monitor := createTestMonitor(t, db, "rollup-range")
	dayStart := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)

	for _, hour := range []int{0, 5, 23} {
		UpsertRollup(db, &MonitorRollup{
			MonitorID:   monitor.ID,
			ServiceID:   monitor.ServiceID,
			Granularity: GranularityHourly,
			PeriodStart: dayStart.Add(time.Duration(hour) * time.Hour),
			Count:       1,
		})
	}
	// Next day, outside the range
	UpsertRollup(db, &MonitorRollup{
		MonitorID:   monitor.ID,
		ServiceID:   monitor.ServiceID,
		Granularity: GranularityHourly,
		PeriodStart: dayStart.AddDate(0, 0, 1),
		Count:       1,
	})

	count, err := CountRollupsInRange(db, monitor.ID, GranularityHourly, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 rollups in the day, got %d", count)
	}

	rollups, err := GetRollupsInRange(db, monitor.ID, GranularityHourly, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rollups) != 3 {
		t.Fatalf("expected 3 rollups, got %d", len(rollups))
	}
	if !rollups[0].PeriodStart.Before(rollups[2].PeriodStart) {
		t.Error("expected rollups ordered oldest first")
	}
}
