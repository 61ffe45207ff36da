package jobs

import (
	"log"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/vigilo/vigilo/internal/database"
	"github.com/vigilo/vigilo/internal/peers"
)

// PeerHeartbeatJob pushes liveness pings to paired instances. Each peer
// has its own heartbeat interval, tracked in a per-peer last-sent map
// independent of the task's tick, so a 10s tick can serve peers
// configured for 30s or 300s alike. Failures are logged, never retried
// within the pass.
type PeerHeartbeatJob struct {
	db     *gorm.DB
	client *peers.Client

	mu       sync.Mutex
	lastSent map[uint]time.Time
}

// NewPeerHeartbeatJob creates a peer heartbeat job
func NewPeerHeartbeatJob(db *gorm.DB, client *peers.Client) *PeerHeartbeatJob {
	return &PeerHeartbeatJob{
		db:       db,
		client:   client,
		lastSent: make(map[uint]time.Time),
	}
}

// Run executes one pass and returns the number of heartbeats attempted
func (j *PeerHeartbeatJob) Run(now time.Time) (int, error) {
	allPeers, err := database.ListPeers(j.db)
	if err != nil {
		return 0, err
	}

	sent := 0
	for i := range allPeers {
		peer := &allPeers[i]
		if !j.due(peer, now) {
			continue
		}
		j.markSent(peer.ID, now)
		sent++
		if err := j.client.Heartbeat(peer); err != nil {
			log.Printf("Heartbeat to peer %s failed: %v", peer.Name, err)
		}
	}
	return sent, nil
}

func (j *PeerHeartbeatJob) due(peer *database.Peer, now time.Time) bool {
	interval := time.Duration(peer.HeartbeatIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	j.mu.Lock()
	last, ok := j.lastSent[peer.ID]
	j.mu.Unlock()
	if !ok {
		return true
	}
	return !now.Before(last.Add(interval))
}

func (j *PeerHeartbeatJob) markSent(peerID uint, at time.Time) {
	j.mu.Lock()
	j.lastSent[peerID] = at
	j.mu.Unlock()
}

// Start begins the periodic peer heartbeat pushes
func (j *PeerHeartbeatJob) Start(interval time.Duration, stop <-chan struct{}) {
	startLoop("Peer heartbeat", interval, stop, func() error {
		_, err := j.Run(time.Now())
		return err
	})
}
