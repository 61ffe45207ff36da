package jobs

import (
	"log"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/vigilo/vigilo/internal/database"
	"github.com/vigilo/vigilo/internal/peers"
	"github.com/vigilo/vigilo/internal/services"
)

// AlertDispatchJob drains pending alerts through the dispatcher and
// tracks a dispatch-health flag across passes. When the flag flips, all
// peers are notified with a fail or recover webhook so a paired instance
// can surface that this one is struggling to deliver alerts.
type AlertDispatchJob struct {
	db         *gorm.DB
	dispatcher *services.Dispatcher
	peerClient *peers.Client

	mu      sync.Mutex
	healthy bool
}

// NewAlertDispatchJob creates an alert dispatch job
func NewAlertDispatchJob(db *gorm.DB, dispatcher *services.Dispatcher, peerClient *peers.Client) *AlertDispatchJob {
	return &AlertDispatchJob{
		db:         db,
		dispatcher: dispatcher,
		peerClient: peerClient,
		healthy:    true,
	}
}

// Healthy reports the current dispatch-health flag
func (j *AlertDispatchJob) Healthy() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.healthy
}

// Run executes one dispatch pass and returns the number of alerts that
// were fully dispatched
func (j *AlertDispatchJob) Run() (int, error) {
	alerts, err := database.GetUndispatchedAlerts(j.db)
	if err != nil {
		return 0, err
	}
	if len(alerts) == 0 {
		return 0, nil
	}

	dispatched := 0
	passOK := true
	for i := range alerts {
		ok, err := j.dispatcher.Dispatch(&alerts[i])
		if err != nil {
			log.Printf("Failed to dispatch alert %d: %v", alerts[i].ID, err)
			passOK = false
			continue
		}
		if ok {
			dispatched++
		} else {
			passOK = false
		}
	}

	j.updateHealth(passOK)
	return dispatched, nil
}

// updateHealth flips the health flag and notifies peers on transitions
func (j *AlertDispatchJob) updateHealth(passOK bool) {
	j.mu.Lock()
	changed := j.healthy != passOK
	j.healthy = passOK
	j.mu.Unlock()

	if !changed {
		return
	}

	action := peers.ActionRecover
	if !passOK {
		action = peers.ActionFail
	}
	log.Printf("Alert dispatch health changed, notifying peers: %s", action)

	allPeers, err := database.ListPeers(j.db)
	if err != nil {
		log.Printf("Failed to list peers for dispatch-health notification: %v", err)
		return
	}
	for i := range allPeers {
		if err := j.peerClient.NotifyDispatchHealth(&allPeers[i], action); err != nil {
			log.Printf("Failed to notify peer %s of dispatch health: %v", allPeers[i].Name, err)
		}
	}
}

// Start begins the periodic alert dispatch drain
func (j *AlertDispatchJob) Start(interval time.Duration, stop <-chan struct{}) {
	startLoop("Alert dispatch", interval, stop, func() error {
		_, err := j.Run()
		return err
	})
}
