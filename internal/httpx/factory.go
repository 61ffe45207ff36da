// Package httpx hands out HTTP clients by logical name so timeout policy
// stays configurable in one place. Callers request "HealthCheck",
// "PeerHeartbeat" or "PeerNotification" instead of constructing clients.
package httpx

import (
	"net/http"
	"sync"
	"time"
)

// Logical client names
const (
	ClientHealthCheck      = "HealthCheck"
	ClientPeerHeartbeat    = "PeerHeartbeat"
	ClientPeerNotification = "PeerNotification"
	ClientNotification     = "Notification"
)

const defaultTimeout = 30 * time.Second

// Factory builds and caches named HTTP clients
type Factory struct {
	mu       sync.Mutex
	timeouts map[string]time.Duration
	clients  map[string]*http.Client
}

// NewFactory creates a factory with per-name timeouts. Names without an
// entry get the default 30s timeout.
func NewFactory(timeouts map[string]time.Duration) *Factory {
	if timeouts == nil {
		timeouts = make(map[string]time.Duration)
	}
	return &Factory{
		timeouts: timeouts,
		clients:  make(map[string]*http.Client),
	}
}

// Client returns the cached client for a logical name, creating it on
// first use
func (f *Factory) Client(name string) *http.Client {
	f.mu.Lock()
	defer f.mu.Unlock()

	if client, ok := f.clients[name]; ok {
		return client
	}
	timeout, ok := f.timeouts[name]
	if !ok || timeout <= 0 {
		timeout = defaultTimeout
	}
	client := &http.Client{Timeout: timeout}
	f.clients[name] = client
	return client
}
