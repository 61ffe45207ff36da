package services

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/stat"
	"gorm.io/gorm"

	"github.com/vigilo/vigilo/internal/database"
)

// ThresholdEvaluator decides whether a newly observed metric value is an
// alert-worthy breach under the monitor's configured strategy. Evaluation
// is a pure function of the current value and the exact lookback window;
// it never mutates state.
type ThresholdEvaluator struct {
	db *gorm.DB
}

// NewThresholdEvaluator creates a new threshold evaluator
func NewThresholdEvaluator(db *gorm.DB) *ThresholdEvaluator {
	return &ThresholdEvaluator{db: db}
}

// Evaluate returns true if the observed value constitutes a breach for
// the monitor at the given instant.
func (e *ThresholdEvaluator) Evaluate(monitor *database.Monitor, value float64, now time.Time) (bool, error) {
	switch monitor.Strategy {
	case database.StrategyImmediate, "":
		return monitor.IsOutOfRange(value), nil
	case database.StrategyConsecutiveCount:
		return e.evaluateConsecutive(monitor, value)
	case database.StrategyTimeDurationAverage:
		return e.evaluateTimeAverage(monitor, value, now)
	case database.StrategySampleCountAverage:
		return e.evaluateSampleAverage(monitor, value)
	default:
		return false, fmt.Errorf("unknown threshold strategy: %s", monitor.Strategy)
	}
}

// evaluateConsecutive breaches only when the current value and the N-1
// most recent prior readings are all out of range. Only valued events
// count as readings; state bookkeeping in the stream does not break a
// streak. Insufficient history fails closed to "no breach".
func (e *ThresholdEvaluator) evaluateConsecutive(monitor *database.Monitor, value float64) (bool, error) {
	if !monitor.IsOutOfRange(value) {
		return false, nil
	}
	needed := monitor.ThresholdCount - 1
	if needed <= 0 {
		return true, nil
	}

	events, err := database.GetRecentValuedEvents(e.db, monitor.ID, needed)
	if err != nil {
		return false, err
	}
	if len(events) < needed {
		return false, nil
	}
	for _, event := range events {
		if !event.IsOutOfRange {
			return false, nil
		}
	}
	return true, nil
}

// evaluateTimeAverage averages all valued events in [now-W, now] together
// with the current value and breaches when the average is out of range.
func (e *ThresholdEvaluator) evaluateTimeAverage(monitor *database.Monitor, value float64, now time.Time) (bool, error) {
	since := now.Add(-time.Duration(monitor.WindowSeconds) * time.Second)
	events, err := database.GetValuedEventsSince(e.db, monitor.ID, since)
	if err != nil {
		return false, err
	}

	values := make([]float64, 0, len(events)+1)
	for _, event := range events {
		if event.Value != nil {
			values = append(values, *event.Value)
		}
	}
	values = append(values, value)
	return monitor.IsOutOfRange(stat.Mean(values, nil)), nil
}

// evaluateSampleAverage averages the N-1 most recent valued events
// together with the current value. With zero prior samples this degrades
// to evaluating the current value alone.
func (e *ThresholdEvaluator) evaluateSampleAverage(monitor *database.Monitor, value float64) (bool, error) {
	needed := monitor.ThresholdCount - 1
	var events []database.MonitorEvent
	if needed > 0 {
		var err error
		events, err = database.GetRecentValuedEvents(e.db, monitor.ID, needed)
		if err != nil {
			return false, err
		}
	}

	values := make([]float64, 0, len(events)+1)
	for _, event := range events {
		if event.Value != nil {
			values = append(values, *event.Value)
		}
	}
	values = append(values, value)
	return monitor.IsOutOfRange(stat.Mean(values, nil)), nil
}
