package jobs

import (
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/vigilo/vigilo/internal/database"
	"github.com/vigilo/vigilo/internal/services"
)

// MaintenanceResumeJob resumes paused services whose auto-resume window
// has elapsed
type MaintenanceResumeJob struct {
	db           *gorm.DB
	stateMachine *services.StateMachine
}

// NewMaintenanceResumeJob creates a maintenance resume job
func NewMaintenanceResumeJob(db *gorm.DB, stateMachine *services.StateMachine) *MaintenanceResumeJob {
	return &MaintenanceResumeJob{db: db, stateMachine: stateMachine}
}

// Run executes one pass and returns the number of services resumed
func (j *MaintenanceResumeJob) Run(now time.Time) (int, error) {
	services, err := database.GetPausedServicesDueForResume(j.db, now)
	if err != nil {
		return 0, err
	}

	resumed := 0
	for i := range services {
		service := &services[i]
		if err := j.stateMachine.Resume(service); err != nil {
			log.Printf("Failed to resume service %d: %v", service.ID, err)
			continue
		}
		resumed++
	}
	return resumed, nil
}

// Start begins the periodic maintenance resume sweep
func (j *MaintenanceResumeJob) Start(interval time.Duration, stop <-chan struct{}) {
	startLoop("Maintenance resume", interval, stop, func() error {
		_, err := j.Run(time.Now())
		return err
	})
}
