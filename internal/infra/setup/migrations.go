package setup

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"presence-chat/internal/domain"
)

// MigrateDB 迁移用户表和消息表
func MigrateDB(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("cannot migrate database with nil DB connection")
	}
	if err := db.AutoMigrate(&domain.User{}, &domain.Message{}); err != nil {
		logrus.Errorf("Failed to auto-migrate tables: %v", err)
		return fmt.Errorf("failed to auto-migrate tables: %w", err)
	}
	logrus.Info("Database migration completed successfully")
	return nil
}
