package services

// EventPublisher receives domain events for real-time UI push. The hub
// implements it; a nil publisher is tolerated everywhere so the engine
// can run headless in tests.
type EventPublisher interface {
	Publish(eventType string, payload interface{})
}

// Domain event types published by the engine
const (
	EventServiceStateChanged = "service_state_changed"
	EventAlertRaised         = "alert_raised"
	EventAlertDispatched     = "alert_dispatched"
)
