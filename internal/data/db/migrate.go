package db

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&types.EngineSnapshot{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
