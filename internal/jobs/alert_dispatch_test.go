package jobs

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/vigilo/vigilo/internal/channels"
	"github.com/vigilo/vigilo/internal/database"
	"github.com/vigilo/vigilo/internal/httpx"
	"github.com/vigilo/vigilo/internal/peers"
	"github.com/vigilo/vigilo/internal/services"
)

// switchChannel is a registry channel whose outcome can be flipped
type switchChannel struct {
	mu      sync.Mutex
	succeed bool
}

func (c *switchChannel) ChannelType() string         { return "switch" }
func (c *switchChannel) IsEnabled() bool             { return true }
func (c *switchChannel) ValidateConfiguration() bool { return true }
func (c *switchChannel) SendAlert(alert *database.Alert, service *database.Service) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.succeed
}

func (c *switchChannel) set(succeed bool) {
	c.mu.Lock()
	c.succeed = succeed
	c.mu.Unlock()
}

func newDispatchJob(db *gorm.DB, channel channels.NotificationChannel) *AlertDispatchJob {
	registry := channels.NewRegistry()
	registry.Register(channel)
	dispatcher := services.NewDispatcher(db, registry, nil, nil)
	return NewAlertDispatchJob(db, dispatcher, peers.NewClient(httpx.NewFactory(nil)))
}

func createDownServiceWithAlert(t *testing.T, db *gorm.DB) *database.Alert {
	t.Helper()
	service := &database.Service{Name: "api", State: database.ServiceStateDown, Severity: database.SeverityHigh}
	if err := db.Create(service).Error; err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	alert := &database.Alert{
		ServiceID: service.ID,
		Type:      database.AlertTypeFailure,
		Severity:  database.SeverityHigh,
		Reason:    "down",
	}
	if err := db.Create(alert).Error; err != nil {
		t.Fatalf("failed to create alert: %v", err)
	}
	return alert
}

func TestAlertDispatch_DrainsPendingAlerts(t *testing.T) {
	db := setupTestDB(t)
	alert := createDownServiceWithAlert(t, db)

	job := newDispatchJob(db, &switchChannel{succeed: true})
	dispatched, err := job.Run()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dispatched != 1 {
		t.Fatalf("expected 1 alert dispatched, got %d", dispatched)
	}
	if !job.Healthy() {
		t.Error("expected healthy after a clean pass")
	}

	var updated database.Alert
	db.First(&updated, alert.ID)
	if updated.DispatchedAt == nil {
		t.Error("expected dispatched_at set")
	}
}

func TestAlertDispatch_FailureFlipsHealthAndRetriesNextPass(t *testing.T) {
	db := setupTestDB(t)
	createDownServiceWithAlert(t, db)

	channel := &switchChannel{succeed: false}
	job := newDispatchJob(db, channel)

	if _, err := job.Run(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Healthy() {
		t.Error("expected unhealthy after a failed pass")
	}

	// The channel recovers; the same alert goes out on the next pass
	channel.set(true)
	dispatched, err := job.Run()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dispatched != 1 {
		t.Errorf("expected the pending alert retried and dispatched, got %d", dispatched)
	}
	if !job.Healthy() {
		t.Error("expected health restored")
	}
}

func TestAlertDispatch_EmptyPassKeepsHealthUnchanged(t *testing.T) {
	db := setupTestDB(t)
	createDownServiceWithAlert(t, db)

	channel := &switchChannel{succeed: false}
	job := newDispatchJob(db, channel)

	if _, err := job.Run(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Healthy() {
		t.Fatal("expected unhealthy")
	}

	// Mark the alert dispatched out of band so nothing is pending
	db.Model(&database.Alert{}).Where("dispatched_at IS NULL").Update("dispatched_at", time.Now())

	if _, err := job.Run(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Healthy() {
		t.Error("an empty pass must not flip the health flag")
	}
}

func TestAlertDispatch_HealthChangeNotifiesPeers(t *testing.T) {
	db := setupTestDB(t)
	createDownServiceWithAlert(t, db)

	var mu sync.Mutex
	var actions []string
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		json.NewDecoder(r.Body).Decode(&payload)
		mu.Lock()
		actions = append(actions, payload["action"])
		mu.Unlock()
	}))
	defer remote.Close()

	peerService := &database.Service{Name: "Peer: other", Severity: database.SeverityHigh}
	db.Create(peerService)
	db.Create(&database.Peer{
		Name:           "other",
		URL:            remote.URL,
		HeartbeatToken: "hb",
		WebhookToken:   "wh",
		ServiceID:      peerService.ID,
		PairedAt:       time.Now(),
	})

	channel := &switchChannel{succeed: false}
	job := newDispatchJob(db, channel)

	if _, err := job.Run(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	channel.set(true)
	if _, err := job.Run(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(actions) != 2 || actions[0] != peers.ActionFail || actions[1] != peers.ActionRecover {
		t.Errorf("expected [fail recover] pushed to the peer, got %v", actions)
	}
}
