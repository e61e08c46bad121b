package db

import (
	"fmt"

	"github.com/intellirate/gateway/internal/models"
	"gorm.io/gorm"
)

// Migrate applies schema migrations for all gateway tables.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	return conn.AutoMigrate(
		&models.RequestRecord{},
		&models.RateLimitOverride{},
	)
}
