package services

import (
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/vigilo/vigilo/internal/database"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

func floatPtr(v float64) *float64 {
	return &v
}

func createMetricMonitor(t *testing.T, db *gorm.DB, strategy database.ThresholdStrategy, count int) *database.Monitor {
	t.Helper()
	service := &database.Service{Name: "api", Severity: database.SeverityMedium}
	if err := db.Create(service).Error; err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	monitor := &database.Monitor{
		ServiceID:      service.ID,
		Name:           "latency",
		Type:           database.MonitorTypeMetric,
		Token:          "token-" + string(strategy),
		MaxValue:       floatPtr(100),
		Strategy:       strategy,
		ThresholdCount: count,
		WindowSeconds:  300,
	}
	if err := db.Create(monitor).Error; err != nil {
		t.Fatalf("failed to create monitor: %v", err)
	}
	return monitor
}

func recordMetricEvent(t *testing.T, db *gorm.DB, monitorID uint, value float64, outOfRange bool, at time.Time) {
	t.Helper()
	event := &database.MonitorEvent{
		MonitorID:    monitorID,
		EventType:    database.EventTypeMetric,
		Success:      !outOfRange,
		Value:        &value,
		IsOutOfRange: outOfRange,
		CreatedAt:    at,
	}
	if err := db.Create(event).Error; err != nil {
		t.Fatalf("failed to create event: %v", err)
	}
}

func TestEvaluate_Immediate(t *testing.T) {
	db := setupTestDB(t)
	evaluator := NewThresholdEvaluator(db)
	monitor := createMetricMonitor(t, db, database.StrategyImmediate, 1)

	tests := []struct {
		name   string
		value  float64
		breach bool
	}{
		{"in range", 50, false},
		{"at bound", 100, false},
		{"above max", 100.1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			breach, err := evaluator.Evaluate(monitor, tt.value, time.Now())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if breach != tt.breach {
				t.Errorf("value %v: expected breach=%v, got %v", tt.value, tt.breach, breach)
			}
		})
	}
}

func TestEvaluate_EmptyStrategyDefaultsToImmediate(t *testing.T) {
	db := setupTestDB(t)
	evaluator := NewThresholdEvaluator(db)
	monitor := createMetricMonitor(t, db, "", 1)

	breach, err := evaluator.Evaluate(monitor, 150, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !breach {
		t.Error("expected out-of-range value to breach with empty strategy")
	}
}

func TestEvaluate_ConsecutiveCount(t *testing.T) {
	db := setupTestDB(t)
	evaluator := NewThresholdEvaluator(db)
	monitor := createMetricMonitor(t, db, database.StrategyConsecutiveCount, 3)
	now := time.Now()

	// No history yet: a single breach must not alert
	breach, err := evaluator.Evaluate(monitor, 150, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if breach {
		t.Error("expected no breach with insufficient history")
	}

	// Two prior out-of-range readings plus the current one make three
	recordMetricEvent(t, db, monitor.ID, 120, true, now.Add(-2*time.Minute))
	recordMetricEvent(t, db, monitor.ID, 130, true, now.Add(-time.Minute))

	breach, err = evaluator.Evaluate(monitor, 150, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !breach {
		t.Error("expected breach after three consecutive out-of-range values")
	}
}

func TestEvaluate_ConsecutiveCountBrokenStreak(t *testing.T) {
	db := setupTestDB(t)
	evaluator := NewThresholdEvaluator(db)
	monitor := createMetricMonitor(t, db, database.StrategyConsecutiveCount, 3)
	now := time.Now()

	// The most recent prior event is in range, breaking the streak
	recordMetricEvent(t, db, monitor.ID, 120, true, now.Add(-2*time.Minute))
	recordMetricEvent(t, db, monitor.ID, 50, false, now.Add(-time.Minute))

	breach, err := evaluator.Evaluate(monitor, 150, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if breach {
		t.Error("expected no breach when the streak is broken")
	}
}

func TestEvaluate_ConsecutiveCountIgnoresUnvaluedEvents(t *testing.T) {
	db := setupTestDB(t)
	evaluator := NewThresholdEvaluator(db)
	monitor := createMetricMonitor(t, db, database.StrategyConsecutiveCount, 3)
	now := time.Now()

	// A state change slipped between two out-of-range readings; it is
	// not a reading and must not reset the streak
	recordMetricEvent(t, db, monitor.ID, 120, true, now.Add(-3*time.Minute))
	db.Create(&database.MonitorEvent{
		MonitorID: monitor.ID,
		EventType: database.EventTypeStateChange,
		Success:   true,
		CreatedAt: now.Add(-2 * time.Minute),
	})
	recordMetricEvent(t, db, monitor.ID, 130, true, now.Add(-time.Minute))

	breach, err := evaluator.Evaluate(monitor, 150, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !breach {
		t.Error("expected breach: only valued readings count toward the streak")
	}
}

func TestEvaluate_ConsecutiveCountInRangeValueNeverBreaches(t *testing.T) {
	db := setupTestDB(t)
	evaluator := NewThresholdEvaluator(db)
	monitor := createMetricMonitor(t, db, database.StrategyConsecutiveCount, 2)
	now := time.Now()

	recordMetricEvent(t, db, monitor.ID, 120, true, now.Add(-time.Minute))

	breach, err := evaluator.Evaluate(monitor, 50, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if breach {
		t.Error("an in-range value must never breach regardless of history")
	}
}

func TestEvaluate_TimeDurationAverage(t *testing.T) {
	db := setupTestDB(t)
	evaluator := NewThresholdEvaluator(db)
	monitor := createMetricMonitor(t, db, database.StrategyTimeDurationAverage, 1)
	monitor.WindowSeconds = 600
	now := time.Now()

	// Window holds 90 and 95; with the current 105 the mean is ~96.7
	recordMetricEvent(t, db, monitor.ID, 90, false, now.Add(-5*time.Minute))
	recordMetricEvent(t, db, monitor.ID, 95, false, now.Add(-3*time.Minute))

	breach, err := evaluator.Evaluate(monitor, 105, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if breach {
		t.Error("expected no breach: windowed average is within range")
	}

	// A large spike drags the average over the bound
	breach, err = evaluator.Evaluate(monitor, 400, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !breach {
		t.Error("expected breach: windowed average exceeds max")
	}
}

func TestEvaluate_TimeDurationAverageIgnoresEventsOutsideWindow(t *testing.T) {
	db := setupTestDB(t)
	evaluator := NewThresholdEvaluator(db)
	monitor := createMetricMonitor(t, db, database.StrategyTimeDurationAverage, 1)
	monitor.WindowSeconds = 60
	now := time.Now()

	// Far outside the 60s window; must not drag the average up
	recordMetricEvent(t, db, monitor.ID, 10000, true, now.Add(-time.Hour))

	breach, err := evaluator.Evaluate(monitor, 50, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if breach {
		t.Error("events outside the window must not affect the average")
	}
}

func TestEvaluate_SampleCountAverage(t *testing.T) {
	db := setupTestDB(t)
	evaluator := NewThresholdEvaluator(db)
	monitor := createMetricMonitor(t, db, database.StrategySampleCountAverage, 3)
	now := time.Now()

	recordMetricEvent(t, db, monitor.ID, 80, false, now.Add(-2*time.Minute))
	recordMetricEvent(t, db, monitor.ID, 90, false, now.Add(-time.Minute))

	// mean(80, 90, 100) = 90: in range
	breach, err := evaluator.Evaluate(monitor, 100, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if breach {
		t.Error("expected no breach: sample average within range")
	}

	// mean(80, 90, 200) = 123.3: out of range
	breach, err = evaluator.Evaluate(monitor, 200, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !breach {
		t.Error("expected breach: sample average exceeds max")
	}
}

func TestEvaluate_SampleCountAverageNoHistory(t *testing.T) {
	db := setupTestDB(t)
	evaluator := NewThresholdEvaluator(db)
	monitor := createMetricMonitor(t, db, database.StrategySampleCountAverage, 5)

	// With no prior samples the current value stands alone
	breach, err := evaluator.Evaluate(monitor, 500, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !breach {
		t.Error("expected breach: lone sample exceeds max")
	}
}

func TestEvaluate_UnknownStrategy(t *testing.T) {
	db := setupTestDB(t)
	evaluator := NewThresholdEvaluator(db)
	monitor := createMetricMonitor(t, db, "percentile_of_doom", 1)

	_, err := evaluator.Evaluate(monitor, 50, time.Now())
	if err == nil {
		t.Error("expected error for unknown strategy")
	}
}

func TestEvaluate_MinBound(t *testing.T) {
	db := setupTestDB(t)
	evaluator := NewThresholdEvaluator(db)

	service := &database.Service{Name: "disk", Severity: database.SeverityMedium}
	db.Create(service)
	monitor := &database.Monitor{
		ServiceID: service.ID,
		Type:      database.MonitorTypeMetric,
		Token:     "token-min",
		MinValue:  floatPtr(10),
		Strategy:  database.StrategyImmediate,
	}
	db.Create(monitor)

	breach, err := evaluator.Evaluate(monitor, 5, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !breach {
		t.Error("expected breach below min bound")
	}
}
