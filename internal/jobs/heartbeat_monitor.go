package jobs

import (
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/vigilo/vigilo/internal/database"
	"github.com/vigilo/vigilo/internal/services"
)

// HeartbeatMonitor transitions services down when a heartbeat monitor has
// not checked in within its interval plus grace period
type HeartbeatMonitor struct {
	db           *gorm.DB
	stateMachine *services.StateMachine
}

// NewHeartbeatMonitor creates a heartbeat monitor job
func NewHeartbeatMonitor(db *gorm.DB, stateMachine *services.StateMachine) *HeartbeatMonitor {
	return &HeartbeatMonitor{db: db, stateMachine: stateMachine}
}

// Run executes one pass and returns the number of services transitioned down
func (j *HeartbeatMonitor) Run(now time.Time) (int, error) {
	monitors, err := database.GetMonitorsByType(j.db, database.MonitorTypeHeartbeat)
	if err != nil {
		return 0, err
	}

	transitioned := 0
	for i := range monitors {
		monitor := &monitors[i]
		if !now.After(monitor.CheckInDeadline()) {
			continue
		}

		service, err := database.GetServiceByID(j.db, monitor.ServiceID)
		if err != nil {
			log.Printf("Failed to load service %d for monitor %d: %v", monitor.ServiceID, monitor.ID, err)
			continue
		}
		if service == nil || service.IsPaused() || service.State == database.ServiceStateDown {
			continue
		}

		reason := fmt.Sprintf("Heartbeat missed: no check-in within %ds (+%ds grace)",
			monitor.IntervalSeconds, monitor.GracePeriodSeconds)
		alert, err := j.stateMachine.TransitionToDown(service, database.AlertTypeMissedHeartbeat, reason)
		if err != nil {
			log.Printf("Failed to transition service %d down: %v", service.ID, err)
			continue
		}
		transitioned++
		if alert != nil {
			log.Printf("Raised missed-heartbeat alert %d for service %d", alert.ID, service.ID)
		}
	}
	return transitioned, nil
}

// Start begins the periodic heartbeat-miss detection
func (j *HeartbeatMonitor) Start(interval time.Duration, stop <-chan struct{}) {
	startLoop("Heartbeat monitor", interval, stop, func() error {
		_, err := j.Run(time.Now())
		return err
	})
}
