package gormpersistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"presence-chat/internal/domain"
	"presence-chat/internal/repository"
)

// presenceColumns 是在线状态读取时唯一会查询的列，凭证字段不会被读出
var presenceColumns = []string{"username", "online", "last_activity"}

// GormPresenceRepository 在 users 表上读写在线状态字段
type GormPresenceRepository struct {
	db *gorm.DB
}

// NewGormPresenceRepository 创建 GormPresenceRepository 实例
func NewGormPresenceRepository(db *gorm.DB) *GormPresenceRepository {
	if db == nil {
		panic("database connection cannot be nil for GormPresenceRepository")
	}
	return &GormPresenceRepository{db: db}
}

func (r *GormPresenceRepository) users(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&domain.User{})
}

// Get 返回用户的在线状态
func (r *GormPresenceRepository) Get(ctx context.Context, identity string) (*domain.UserPresence, error) {
	var user domain.User
	err := r.users(ctx).Select(presenceColumns).Where("username = ?", identity).Take(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrUserNotFound
		}
		return nil, fmt.Errorf("gorm: get presence of '%s': %w", identity, err)
	}
	p := user.Presence()
	return &p, nil
}

// SetOnline 设置 online=true 并刷新 last_activity
func (r *GormPresenceRepository) SetOnline(ctx context.Context, identity string, now time.Time) error {
	result := r.users(ctx).Where("username = ?", identity).
		Updates(map[string]interface{}{"online": true, "last_activity": now.UTC()})
	if result.Error != nil {
		return fmt.Errorf("gorm: set online '%s': %w", identity, result.Error)
	}
	if result.RowsAffected == 0 {
		return r.ensureExists(ctx, identity)
	}
	return nil
}

// SetOffline 设置 online=false，不修改 last_activity
func (r *GormPresenceRepository) SetOffline(ctx context.Context, identity string) error {
	result := r.users(ctx).Where("username = ?", identity).Update("online", false)
	if result.Error != nil {
		return fmt.Errorf("gorm: set offline '%s': %w", identity, result.Error)
	}
	if result.RowsAffected == 0 {
		return r.ensureExists(ctx, identity)
	}
	return nil
}

// ListOnline 按用户名升序返回所有在线用户
func (r *GormPresenceRepository) ListOnline(ctx context.Context) ([]domain.UserPresence, error) {
	var users []domain.User
	err := r.users(ctx).Select(presenceColumns).Where("online = ?", true).Order("username ASC").Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list online users: %w", err)
	}
	return toPresence(users), nil
}

// ListIdleOnline 返回在线但 last_activity 早于 cutoff (或为空) 的用户
func (r *GormPresenceRepository) ListIdleOnline(ctx context.Context, cutoff time.Time) ([]domain.UserPresence, error) {
	var users []domain.User
	err := r.users(ctx).Select(presenceColumns).
		Where("online = ? AND (last_activity IS NULL OR last_activity < ?)", true, cutoff.UTC()).
		Order("username ASC").Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list idle users: %w", err)
	}
	return toPresence(users), nil
}

// DemoteIfIdle 条件更新：只有在写入时仍满足空闲条件才降级。
// 这是存储层的 compare-and-set，其他实例刚刷新的活跃时间不会被覆盖。
func (r *GormPresenceRepository) DemoteIfIdle(ctx context.Context, identity string, cutoff time.Time) (bool, error) {
	result := r.users(ctx).
		Where("username = ? AND online = ? AND (last_activity IS NULL OR last_activity < ?)", identity, true, cutoff.UTC()).
		Update("online", false)
	if result.Error != nil {
		return false, fmt.Errorf("gorm: demote idle user '%s': %w", identity, result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *GormPresenceRepository) ensureExists(ctx context.Context, identity string) error {
	var count int64
	if err := r.users(ctx).Where("username = ?", identity).Count(&count).Error; err != nil {
		return fmt.Errorf("gorm: check user '%s': %w", identity, err)
	}
	if count == 0 {
		return repository.ErrUserNotFound
	}
	return nil
}

func toPresence(users []domain.User) []domain.UserPresence {
	out := make([]domain.UserPresence, 0, len(users))
	for i := range users {
		out = append(out, users[i].Presence())
	}
	return out
}
