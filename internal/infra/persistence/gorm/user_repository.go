package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"presence-chat/internal/domain"
	"presence-chat/internal/repository"
)

// GormUserRepository 是 UserRepository 接口的 GORM 实现
type GormUserRepository struct {
	db *gorm.DB
}

// NewGormUserRepository 创建 GormUserRepository 实例
func NewGormUserRepository(db *gorm.DB) *GormUserRepository {
	if db == nil {
		panic("database connection cannot be nil for GormUserRepository")
	}
	return &GormUserRepository{db: db}
}

// FindByUsername 实现根据用户名查找用户
func (r *GormUserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	var user domain.User
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrUserNotFound
		}
		return nil, fmt.Errorf("gorm: find user by username '%s': %w", username, err)
	}
	return &user, nil
}

// FindByEmail 实现根据邮箱查找用户
func (r *GormUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrUserNotFound
		}
		return nil, fmt.Errorf("gorm: find user by email '%s': %w", email, err)
	}
	return &user, nil
}

// Create 插入新用户，用户名或邮箱冲突时返回 repository.ErrDuplicateEntry
func (r *GormUserRepository) Create(ctx context.Context, user *domain.User) error {
	if user.LastActivity != nil {
		t := user.LastActivity.UTC()
		user.LastActivity = &t
	}
	err := r.db.WithContext(ctx).Create(user).Error
	if err != nil {
		if isDuplicateEntryError(err) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: create user (username: %s): %w", user.Username, err)
	}
	return nil
}
