package jobs

import (
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/vigilo/vigilo/internal/database"
)

// Retention thresholds. Monthly rollups are kept forever.
const (
	eventRetention        = 7 * 24 * time.Hour
	hourlyRollupRetention = 30 * 24 * time.Hour
	dailyRollupRetention  = 365 * 24 * time.Hour
	weeklyRollupRetention = 2 * 365 * 24 * time.Hour
)

// EventRetentionJob sweeps aged raw events and rollups. Deletes are
// threshold-based so overlapping passes are harmless.
type EventRetentionJob struct {
	db *gorm.DB
}

// NewEventRetentionJob creates an event retention job
func NewEventRetentionJob(db *gorm.DB) *EventRetentionJob {
	return &EventRetentionJob{db: db}
}

// Run executes one retention sweep and returns the total rows deleted
func (j *EventRetentionJob) Run(now time.Time) (int64, error) {
	var total int64

	n, err := database.DeleteEventsOlderThan(j.db, now.Add(-eventRetention))
	if err != nil {
		return total, err
	}
	total += n

	sweeps := []struct {
		granularity database.Granularity
		retention   time.Duration
	}{
		{database.GranularityHourly, hourlyRollupRetention},
		{database.GranularityDaily, dailyRollupRetention},
		{database.GranularityWeekly, weeklyRollupRetention},
	}
	for _, sweep := range sweeps {
		n, err := database.DeleteRollupsOlderThan(j.db, sweep.granularity, now.Add(-sweep.retention))
		if err != nil {
			return total, err
		}
		total += n
	}

	// Housekeeping: spent pairing secrets have no further use
	n, err = database.DeleteExpiredPairingSecrets(j.db, now)
	if err != nil {
		return total, err
	}
	total += n

	if total > 0 {
		log.Printf("Retention sweep removed %d rows", total)
	}
	return total, nil
}

// Start begins the periodic retention sweep
func (j *EventRetentionJob) Start(interval time.Duration, stop <-chan struct{}) {
	startLoop("Event retention", interval, stop, func() error {
		_, err := j.Run(time.Now())
		return err
	})
}
