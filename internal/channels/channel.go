// Package channels defines the notification transport contract and the
// built-in transports. New channel types are added by implementing
// NotificationChannel; the dispatcher never branches on a type enum.
package channels

import (
	"sync"

	"github.com/vigilo/vigilo/internal/database"
)

// Channel type identifiers
const (
	TypeSlack   = "slack"
	TypeWebhook = "webhook"
)

// NotificationChannel is the capability contract every transport
// satisfies. SendAlert reports delivery success; a false return counts as
// a failure and leaves the alert pending for the next dispatch pass.
type NotificationChannel interface {
	ChannelType() string
	IsEnabled() bool
	SendAlert(alert *database.Alert, service *database.Service) bool
	ValidateConfiguration() bool
}

// Registry holds globally registered channels used as the dispatch
// fallback for deployments without contact-scoped channels.
type Registry struct {
	mu       sync.RWMutex
	channels []NotificationChannel
}

// NewRegistry creates an empty channel registry
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a channel to the registry
func (r *Registry) Register(channel NotificationChannel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels = append(r.channels, channel)
}

// Channels returns a snapshot of the registered channels
func (r *Registry) Channels() []NotificationChannel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]NotificationChannel, len(r.channels))
	copy(out, r.channels)
	return out
}
