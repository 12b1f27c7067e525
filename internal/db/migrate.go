package db

import (
	"errors"

	"github.com/livemerce/pointsledger/internal/models"
	"gorm.io/gorm"
)

// Migrate creates or updates the schema for all ledger tables.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("db: nil connection")
	}
	return conn.AutoMigrate(
		&models.PointBalance{},
		&models.PointTransaction{},
		&models.PointsConfig{},
		&models.PointsEvent{},
		&models.Order{},
		&models.Admin{},
	)
}
