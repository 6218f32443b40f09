package gormpersistence_test

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"presence-chat/internal/domain"
)

// newTestDB 为每个测试创建独立的内存 SQLite 数据库
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.User{}, &domain.Message{}))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func seedUser(t *testing.T, db *gorm.DB, username string, online bool, lastActivity *time.Time) {
	t.Helper()
	user := &domain.User{
		Username:     username,
		Password:     "hash",
		Email:        username + "@example.com",
		Online:       online,
		LastActivity: lastActivity,
	}
	require.NoError(t, db.Create(user).Error)
}

func ago(d time.Duration) *time.Time {
	t := time.Now().UTC().Add(-d)
	return &t
}
