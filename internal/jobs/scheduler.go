package jobs

import (
	"log"

	"gorm.io/gorm"

	"github.com/vigilo/vigilo/internal/httpx"
	"github.com/vigilo/vigilo/internal/peers"
	"github.com/vigilo/vigilo/internal/services"
)

// Scheduler owns the lifecycle of all background tasks. Each task runs in
// its own goroutine until the shared stop channel closes; there is no
// in-process coordination between tasks beyond that signal.
type Scheduler struct {
	heartbeat   *HeartbeatMonitor
	healthCheck *HealthCheckJob
	resume      *MaintenanceResumeJob
	dispatch    *AlertDispatchJob
	rollup      *RollupAggregationJob
	retention   *EventRetentionJob
	metricSweep *MetricRetentionJob
	peerPing    *PeerHeartbeatJob
}

// NewScheduler wires all background tasks
func NewScheduler(db *gorm.DB, stateMachine *services.StateMachine, dispatcher *services.Dispatcher, clients *httpx.Factory, peerClient *peers.Client) *Scheduler {
	return &Scheduler{
		heartbeat:   NewHeartbeatMonitor(db, stateMachine),
		healthCheck: NewHealthCheckJob(db, stateMachine, clients),
		resume:      NewMaintenanceResumeJob(db, stateMachine),
		dispatch:    NewAlertDispatchJob(db, dispatcher, peerClient),
		rollup:      NewRollupAggregationJob(db, services.NewRollupCalculator()),
		retention:   NewEventRetentionJob(db),
		metricSweep: NewMetricRetentionJob(db),
		peerPing:    NewPeerHeartbeatJob(db, peerClient),
	}
}

// StartAll launches every task on its default interval
func (s *Scheduler) StartAll(stop <-chan struct{}) {
	go s.heartbeat.Start(HeartbeatMonitorInterval, stop)
	go s.healthCheck.Start(HealthCheckInterval, stop)
	go s.resume.Start(MaintenanceResumeInterval, stop)
	go s.dispatch.Start(AlertDispatchInterval, stop)
	go s.rollup.Start(RollupAggregationInterval, stop)
	go s.retention.Start(EventRetentionInterval, stop)
	go s.metricSweep.Start(MetricRetentionInterval, stop)
	go s.peerPing.Start(PeerHeartbeatInterval, stop)
	log.Println("All background tasks started")
}
