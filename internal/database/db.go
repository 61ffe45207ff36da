package database

import (
	"fmt"
	"log"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB is the global database instance
var DB *gorm.DB

// Connect establishes a connection to the PostgreSQL database
func Connect(dsn string, logLevel logger.LogLevel) error {
	var err error

	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Println("Database connection established")
	return nil
}

// AutoMigrate runs database migrations
func AutoMigrate() error {
	return Migrate(DB)
}

// Migrate runs migrations against the given database handle.
// Split out from AutoMigrate so tests can migrate an in-memory database.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&Service{},
		&Monitor{},
		&MonitorEvent{},
		&MonitorRollup{},
		&Alert{},
		&MuteWindow{},
		&Peer{},
		&PairingSecret{},
		&Contact{},
		&ContactChannel{},
		&ServiceDependency{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// InitializeDefaults creates default records if they don't exist
func InitializeDefaults() error {
	var count int64
	DB.Model(&Contact{}).Where("is_default = ?", true).Count(&count)
	if count == 0 {
		defaultContact := &Contact{
			Name:      "Default",
			IsDefault: true,
		}
		if err := DB.Create(defaultContact).Error; err != nil {
			return fmt.Errorf("failed to create default contact: %w", err)
		}
		log.Println("Created default contact")
	}
	return nil
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}

// Close closes the database connection
func Close() error {
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
