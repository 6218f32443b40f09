package repository

import (
	"context"

	"presence-chat/internal/domain"
)

// UserRepository 定义了用户数据的存储和检索操作。
type UserRepository interface {
	// FindByUsername 根据用户名查找用户。
	// 如果用户不存在，返回 ErrUserNotFound。
	FindByUsername(ctx context.Context, username string) (*domain.User, error)

	// FindByEmail 根据邮箱查找用户，不存在时返回 ErrUserNotFound。
	FindByEmail(ctx context.Context, email string) (*domain.User, error)

	// Create 创建新用户。用户名或邮箱冲突时返回 ErrDuplicateEntry。
	Create(ctx context.Context, user *domain.User) error
}
