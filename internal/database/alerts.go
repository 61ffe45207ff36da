package database

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// CreateAlert persists a new alert
func CreateAlert(db *gorm.DB, alert *Alert) error {
	return db.Create(alert).Error
}

// GetAlertByID returns an alert by primary key, or nil if it does not exist
func GetAlertByID(db *gorm.DB, id uint) (*Alert, error) {
	var alert Alert
	err := db.First(&alert, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &alert, nil
}

// GetUndispatchedAlerts returns alerts the dispatcher has not yet fully
// delivered, oldest first
func GetUndispatchedAlerts(db *gorm.DB) ([]Alert, error) {
	var alerts []Alert
	err := db.Where("dispatched_at IS NULL").
		Order("created_at asc, id asc").
		Find(&alerts).Error
	if err != nil {
		return nil, err
	}
	return alerts, nil
}

// MarkAlertDispatched stamps the dispatch time on an alert
func MarkAlertDispatched(db *gorm.DB, alert *Alert, at time.Time) error {
	alert.DispatchedAt = &at
	return db.Model(alert).Update("dispatched_at", at).Error
}

// AcknowledgeAlert stamps the acknowledgement time on an alert
func AcknowledgeAlert(db *gorm.DB, alert *Alert, at time.Time) error {
	alert.AcknowledgedAt = &at
	return db.Model(alert).Update("acknowledged_at", at).Error
}

// GetContactsForService returns the contacts linked to a service
func GetContactsForService(db *gorm.DB, serviceID uint) ([]Contact, error) {
	var service Service
	err := db.Preload("Contacts.Channels").First(&service, serviceID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return service.Contacts, nil
}

// GetDefaultContact returns the designated default contact, or nil if none
func GetDefaultContact(db *gorm.DB) (*Contact, error) {
	var contact Contact
	err := db.Preload("Channels").Where("is_default = ?", true).First(&contact).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &contact, nil
}
