package database

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// GetMonitorByID returns a monitor by primary key, or nil if it does not exist
func GetMonitorByID(db *gorm.DB, id uint) (*Monitor, error) {
	var monitor Monitor
	err := db.First(&monitor, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &monitor, nil
}

// GetMonitorByToken looks up a monitor by its check-in token
func GetMonitorByToken(db *gorm.DB, token string) (*Monitor, error) {
	var monitor Monitor
	err := db.Where("token = ?", token).First(&monitor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &monitor, nil
}

// GetMonitorsByType returns all monitors of the given type
func GetMonitorsByType(db *gorm.DB, monitorType MonitorType) ([]Monitor, error) {
	var monitors []Monitor
	if err := db.Where("type = ?", monitorType).Find(&monitors).Error; err != nil {
		return nil, err
	}
	return monitors, nil
}

// GetMonitorsByServiceID returns every monitor attached to a service
func GetMonitorsByServiceID(db *gorm.DB, serviceID uint) ([]Monitor, error) {
	var monitors []Monitor
	if err := db.Where("service_id = ?", serviceID).Find(&monitors).Error; err != nil {
		return nil, err
	}
	return monitors, nil
}

// ListMonitors returns every monitor
func ListMonitors(db *gorm.DB) ([]Monitor, error) {
	var monitors []Monitor
	if err := db.Find(&monitors).Error; err != nil {
		return nil, err
	}
	return monitors, nil
}

// TouchCheckIn records a check-in time on the monitor
func TouchCheckIn(db *gorm.DB, monitor *Monitor, at time.Time) error {
	monitor.LastCheckIn = &at
	return db.Model(monitor).Update("last_check_in", at).Error
}

// CreateMonitorEvent appends an immutable event row
func CreateMonitorEvent(db *gorm.DB, event *MonitorEvent) error {
	return db.Create(event).Error
}

// GetRecentEvents returns up to limit most recent events for a monitor,
// newest first
func GetRecentEvents(db *gorm.DB, monitorID uint, limit int) ([]MonitorEvent, error) {
	var events []MonitorEvent
	err := db.Where("monitor_id = ?", monitorID).
		Order("created_at desc, id desc").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

// GetRecentValuedEvents returns up to limit most recent events carrying a
// numeric value, newest first
func GetRecentValuedEvents(db *gorm.DB, monitorID uint, limit int) ([]MonitorEvent, error) {
	var events []MonitorEvent
	err := db.Where("monitor_id = ? AND value IS NOT NULL", monitorID).
		Order("created_at desc, id desc").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

// GetValuedEventsSince returns events carrying a value created at or after
// the given instant, oldest first
func GetValuedEventsSince(db *gorm.DB, monitorID uint, since time.Time) ([]MonitorEvent, error) {
	var events []MonitorEvent
	err := db.Where("monitor_id = ? AND value IS NOT NULL AND created_at >= ?", monitorID, since).
		Order("created_at asc, id asc").
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

// GetEventsInRange returns all events for a monitor in [from, to), oldest first
func GetEventsInRange(db *gorm.DB, monitorID uint, from, to time.Time) ([]MonitorEvent, error) {
	var events []MonitorEvent
	err := db.Where("monitor_id = ? AND created_at >= ? AND created_at < ?", monitorID, from, to).
		Order("created_at asc, id asc").
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

// DeleteEventsOlderThan removes events created before the cutoff.
// Returns the number of rows deleted.
func DeleteEventsOlderThan(db *gorm.DB, cutoff time.Time) (int64, error) {
	result := db.Where("created_at < ?", cutoff).Delete(&MonitorEvent{})
	return result.RowsAffected, result.Error
}

// DeleteMetricEventsOlderThan removes metric-ingest events for one monitor
// created before the cutoff. Used by the per-monitor metric retention sweep.
func DeleteMetricEventsOlderThan(db *gorm.DB, monitorID uint, cutoff time.Time) (int64, error) {
	result := db.Where("monitor_id = ? AND event_type = ? AND created_at < ?",
		monitorID, EventTypeMetric, cutoff).Delete(&MonitorEvent{})
	return result.RowsAffected, result.Error
}
