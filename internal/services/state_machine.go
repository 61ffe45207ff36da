package services

import (
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/vigilo/vigilo/internal/database"
)

// StateMachine governs service availability transitions and raises alerts
// on down and recovery transitions. All state changes go through it; the
// service row and any alert are persisted in one transaction.
type StateMachine struct {
	db        *gorm.DB
	publisher EventPublisher
}

// NewStateMachine creates a new state machine
func NewStateMachine(db *gorm.DB, publisher EventPublisher) *StateMachine {
	return &StateMachine{db: db, publisher: publisher}
}

// TransitionToUp moves a service to up. It is a no-op when the service is
// paused or already up. A recovery alert is raised only when the service
// was down, and is suppressed (computed but not persisted) while a mute
// window is active.
func (m *StateMachine) TransitionToUp(service *database.Service, reason string) (*database.Alert, error) {
	if service.IsPaused() || service.State == database.ServiceStateUp {
		return nil, nil
	}

	wasDown := service.State == database.ServiceStateDown
	service.PreviousState = service.State
	service.State = database.ServiceStateUp

	var alert *database.Alert
	if wasDown {
		alert = &database.Alert{
			ServiceID: service.ID,
			Type:      database.AlertTypeRecovery,
			Severity:  service.Severity,
			Reason:    reason,
		}
	}

	created, err := m.persistTransition(service, alert, reason)
	if err != nil {
		return nil, err
	}

	log.Printf("Service %d (%s) transitioned %s -> up: %s",
		service.ID, service.Name, service.PreviousState, reason)
	m.publish(EventServiceStateChanged, service)
	if created != nil {
		m.publish(EventAlertRaised, created)
	}
	return created, nil
}

// TransitionToDown moves a service to down. It is a no-op when the
// service is paused or already down. An alert of the given type is always
// attempted; an active mute window suppresses it while the transition
// itself still happens.
func (m *StateMachine) TransitionToDown(service *database.Service, alertType database.AlertType, reason string) (*database.Alert, error) {
	if service.IsPaused() || service.State == database.ServiceStateDown {
		return nil, nil
	}

	service.PreviousState = service.State
	service.State = database.ServiceStateDown

	alert := &database.Alert{
		ServiceID: service.ID,
		Type:      alertType,
		Severity:  service.Severity,
		Reason:    reason,
	}

	created, err := m.persistTransition(service, alert, reason)
	if err != nil {
		return nil, err
	}

	log.Printf("Service %d (%s) transitioned %s -> down: %s",
		service.ID, service.Name, service.PreviousState, reason)
	m.publish(EventServiceStateChanged, service)
	if created != nil {
		m.publish(EventAlertRaised, created)
	}
	return created, nil
}

// Pause moves a service to paused unconditionally; pausing an already
// paused service simply refreshes the window.
func (m *StateMachine) Pause(service *database.Service, until *time.Time, autoResume bool) error {
	service.PreviousState = service.State
	service.State = database.ServiceStatePaused
	service.PausedUntil = until
	service.AutoResume = autoResume

	if err := m.saveWithStateChange(service, "Paused for maintenance"); err != nil {
		return err
	}
	log.Printf("Service %d (%s) paused", service.ID, service.Name)
	m.publish(EventServiceStateChanged, service)
	return nil
}

// Resume moves a paused service back to unknown. The pre-pause state is
// deliberately not restored: a resumed service must re-earn up through a
// fresh successful check.
func (m *StateMachine) Resume(service *database.Service) error {
	if !service.IsPaused() {
		return nil
	}

	service.PreviousState = service.State
	service.State = database.ServiceStateUnknown
	service.PausedUntil = nil
	service.AutoResume = false

	if err := m.saveWithStateChange(service, "Resumed from maintenance"); err != nil {
		return err
	}
	log.Printf("Service %d (%s) resumed", service.ID, service.Name)
	m.publish(EventServiceStateChanged, service)
	return nil
}

// persistTransition saves the service, the state-change events and,
// unless muted, the alert in one transaction. Returns the alert that was
// actually persisted.
func (m *StateMachine) persistTransition(service *database.Service, alert *database.Alert, reason string) (*database.Alert, error) {
	muted := false
	if alert != nil {
		window, err := database.GetActiveMuteWindow(m.db, service.ID, time.Now())
		if err != nil {
			return nil, err
		}
		if window != nil {
			muted = true
			log.Printf("Alert %s for service %d suppressed by mute window %d",
				alert.Type, service.ID, window.ID)
		}
	}

	err := m.db.Transaction(func(tx *gorm.DB) error {
		if err := database.SaveService(tx, service); err != nil {
			return err
		}
		if err := recordStateChange(tx, service, reason); err != nil {
			return err
		}
		if alert != nil && !muted {
			return database.CreateAlert(tx, alert)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if alert == nil || muted {
		return nil, nil
	}
	return alert, nil
}

// saveWithStateChange persists a pause or resume together with its
// state-change events
func (m *StateMachine) saveWithStateChange(service *database.Service, reason string) error {
	return m.db.Transaction(func(tx *gorm.DB) error {
		if err := database.SaveService(tx, service); err != nil {
			return err
		}
		return recordStateChange(tx, service, reason)
	})
}

// recordStateChange appends a state_change event to every monitor of the
// service so the transition shows up in each monitor's event stream.
// Success reflects whether the new state counts against availability.
func recordStateChange(tx *gorm.DB, service *database.Service, reason string) error {
	monitors, err := database.GetMonitorsByServiceID(tx, service.ID)
	if err != nil {
		return err
	}
	message := fmt.Sprintf("State changed from %s to %s: %s", service.PreviousState, service.State, reason)
	for i := range monitors {
		event := &database.MonitorEvent{
			MonitorID: monitors[i].ID,
			EventType: database.EventTypeStateChange,
			Success:   service.State != database.ServiceStateDown,
			Message:   message,
		}
		if err := database.CreateMonitorEvent(tx, event); err != nil {
			return err
		}
	}
	return nil
}

func (m *StateMachine) publish(eventType string, payload interface{}) {
	if m.publisher != nil {
		m.publisher.Publish(eventType, payload)
	}
}
