package services

import (
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/vigilo/vigilo/internal/channels"
	"github.com/vigilo/vigilo/internal/database"
	"github.com/vigilo/vigilo/internal/httpx"
)

// Dispatcher fans an alert out to every notification channel resolved for
// its service. An alert is marked dispatched only when every attempted
// channel succeeded; otherwise it stays pending and the whole set is
// retried on the next pass, which may resend to channels that already
// succeeded.
type Dispatcher struct {
	db        *gorm.DB
	registry  *channels.Registry
	clients   *httpx.Factory
	publisher EventPublisher
}

// NewDispatcher creates a notification dispatcher
func NewDispatcher(db *gorm.DB, registry *channels.Registry, clients *httpx.Factory, publisher EventPublisher) *Dispatcher {
	return &Dispatcher{
		db:        db,
		registry:  registry,
		clients:   clients,
		publisher: publisher,
	}
}

// Dispatch resolves channels for the alert's service and sends to each of
// them independently. Returns true when the alert was marked dispatched.
func (d *Dispatcher) Dispatch(alert *database.Alert) (bool, error) {
	service, err := database.GetServiceByID(d.db, alert.ServiceID)
	if err != nil {
		return false, err
	}
	if service == nil {
		// Service deleted since the alert was raised; nothing to deliver.
		log.Printf("Skipping alert %d: service %d no longer exists", alert.ID, alert.ServiceID)
		return false, nil
	}

	resolved, err := d.resolveChannels(service)
	if err != nil {
		return false, err
	}
	if len(resolved) == 0 {
		log.Printf("No notification channels resolved for service %d, alert %d stays pending",
			service.ID, alert.ID)
		return false, nil
	}

	allOK := true
	for _, channel := range resolved {
		if !d.send(channel, alert, service) {
			allOK = false
		}
	}
	if !allOK {
		return false, nil
	}

	if err := database.MarkAlertDispatched(d.db, alert, time.Now()); err != nil {
		return false, err
	}
	if d.publisher != nil {
		d.publisher.Publish(EventAlertDispatched, alert)
	}
	return true, nil
}

// resolveChannels collects enabled channels across the service's
// contacts, falling back to the default contact and finally to the
// globally registered channels.
func (d *Dispatcher) resolveChannels(service *database.Service) ([]channels.NotificationChannel, error) {
	contacts, err := database.GetContactsForService(d.db, service.ID)
	if err != nil {
		return nil, err
	}
	if len(contacts) == 0 {
		fallback, err := database.GetDefaultContact(d.db)
		if err != nil {
			return nil, err
		}
		if fallback != nil {
			contacts = []database.Contact{*fallback}
		}
	}

	var resolved []channels.NotificationChannel
	for _, contact := range contacts {
		for i := range contact.Channels {
			cc := contact.Channels[i]
			if !cc.Enabled {
				continue
			}
			channel, ok := channels.FromContactChannel(&cc, d.clients)
			if !ok {
				log.Printf("Unknown channel type %q on contact %d", cc.ChannelType, contact.ID)
				continue
			}
			resolved = append(resolved, channel)
		}
	}

	if len(resolved) == 0 && d.registry != nil {
		for _, channel := range d.registry.Channels() {
			if channel.IsEnabled() {
				resolved = append(resolved, channel)
			}
		}
	}
	return resolved, nil
}

// send delivers to one channel, containing panics so a misbehaving
// transport cannot stop delivery to the others.
func (d *Dispatcher) send(channel channels.NotificationChannel, alert *database.Alert, service *database.Service) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Channel %s panicked sending alert %d: %v", channel.ChannelType(), alert.ID, r)
			ok = false
		}
	}()
	return channel.SendAlert(alert, service)
}
