// Package jobs contains the background tasks that drive the engine:
// heartbeat-miss detection, active health checks, maintenance resume,
// alert dispatch, rollup aggregation, two retention sweeps and the peer
// heartbeat. Each task loops independently on its own ticker and shares
// nothing with the others but the database.
package jobs

import (
	"log"
	"time"
)

// Default task intervals
const (
	HeartbeatMonitorInterval  = 10 * time.Second
	HealthCheckInterval       = 10 * time.Second
	MaintenanceResumeInterval = 60 * time.Second
	AlertDispatchInterval     = 5 * time.Second
	RollupAggregationInterval = time.Hour
	EventRetentionInterval    = time.Hour
	MetricRetentionInterval   = time.Hour
	PeerHeartbeatInterval     = 10 * time.Second
)

// startLoop runs one pass per tick until stop is closed. Pass errors are
// logged and swallowed so no task failure can terminate the process.
func startLoop(name string, interval time.Duration, stop <-chan struct{}, pass func() error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := pass(); err != nil {
				log.Printf("%s job error: %v", name, err)
			}
		case <-stop:
			log.Printf("%s job stopped", name)
			return
		}
	}
}
