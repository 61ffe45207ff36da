package database

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// GetServiceByID returns a service by primary key, or nil if it does not exist
func GetServiceByID(db *gorm.DB, id uint) (*Service, error) {
	var service Service
	err := db.First(&service, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &service, nil
}

// SaveService persists all fields of a service
func SaveService(db *gorm.DB, service *Service) error {
	return db.Save(service).Error
}

// GetPausedServicesDueForResume returns paused services with auto-resume
// enabled whose pause window has elapsed
func GetPausedServicesDueForResume(db *gorm.DB, now time.Time) ([]Service, error) {
	var services []Service
	err := db.Where("state = ? AND auto_resume = ? AND paused_until IS NOT NULL AND paused_until <= ?",
		ServiceStatePaused, true, now).
		Find(&services).Error
	if err != nil {
		return nil, err
	}
	return services, nil
}

// GetActiveMuteWindow returns a mute window covering the given instant for
// the service, or nil if alerts are not muted
func GetActiveMuteWindow(db *gorm.DB, serviceID uint, at time.Time) (*MuteWindow, error) {
	var window MuteWindow
	err := db.Where("service_id = ? AND starts_at <= ? AND ends_at > ?", serviceID, at, at).
		First(&window).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &window, nil
}

// ListDependencyEdges returns every service dependency edge
func ListDependencyEdges(db *gorm.DB) ([]ServiceDependency, error) {
	var edges []ServiceDependency
	if err := db.Find(&edges).Error; err != nil {
		return nil, err
	}
	return edges, nil
}

// CreateDependencyEdge persists a dependency edge. Callers must run the
// cycle check first; this function does not re-verify it.
func CreateDependencyEdge(db *gorm.DB, edge *ServiceDependency) error {
	return db.Create(edge).Error
}

// DeleteDependencyEdge removes a dependency edge
func DeleteDependencyEdge(db *gorm.DB, dependentID, dependencyID uint) error {
	return db.Where("dependent_service_id = ? AND dependency_service_id = ?",
		dependentID, dependencyID).
		Delete(&ServiceDependency{}).Error
}
