package jobs

import (
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/vigilo/vigilo/internal/database"
)

// MetricRetentionJob deletes raw metric readings older than each metric
// monitor's own configured retention window. Retention is per-monitor,
// not global: a noisy gauge can keep a short window while others keep the
// default.
type MetricRetentionJob struct {
	db *gorm.DB
}

// NewMetricRetentionJob creates a metric retention job
func NewMetricRetentionJob(db *gorm.DB) *MetricRetentionJob {
	return &MetricRetentionJob{db: db}
}

// Run executes one sweep and returns the total readings deleted
func (j *MetricRetentionJob) Run(now time.Time) (int64, error) {
	monitors, err := database.GetMonitorsByType(j.db, database.MonitorTypeMetric)
	if err != nil {
		return 0, err
	}

	var total int64
	for i := range monitors {
		monitor := &monitors[i]
		if monitor.RetentionSeconds <= 0 {
			continue
		}
		cutoff := now.Add(-time.Duration(monitor.RetentionSeconds) * time.Second)
		n, err := database.DeleteMetricEventsOlderThan(j.db, monitor.ID, cutoff)
		if err != nil {
			log.Printf("Metric retention failed for monitor %d: %v", monitor.ID, err)
			continue
		}
		total += n
	}
	return total, nil
}

// Start begins the periodic metric retention sweep
func (j *MetricRetentionJob) Start(interval time.Duration, stop <-chan struct{}) {
	startLoop("Metric retention", interval, stop, func() error {
		_, err := j.Run(time.Now())
		return err
	})
}
