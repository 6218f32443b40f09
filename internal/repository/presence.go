package repository

import (
	"context"
	"time"

	"presence-chat/internal/domain"
)

// PresenceRepository 定义了用户在线状态字段的读写。
// 实现只读写 username/online/last_activity，不暴露凭证字段。
type PresenceRepository interface {
	// Get 返回指定身份的在线状态；不存在时返回 ErrUserNotFound。
	Get(ctx context.Context, identity string) (*domain.UserPresence, error)

	// SetOnline 设置 online=true, last_activity=now。
	SetOnline(ctx context.Context, identity string, now time.Time) error

	// SetOffline 设置 online=false，保留 last_activity。
	SetOffline(ctx context.Context, identity string) error

	// ListOnline 按身份排序返回所有在线用户。
	ListOnline(ctx context.Context) ([]domain.UserPresence, error)

	// ListIdleOnline 返回在线但最后活动早于 cutoff 的用户 (清扫候选)。
	ListIdleOnline(ctx context.Context, cutoff time.Time) ([]domain.UserPresence, error)

	// DemoteIfIdle 仅当用户仍在线且最后活动仍早于 cutoff 时才将其设为离线。
	// 返回是否真的发生了降级。
	DemoteIfIdle(ctx context.Context, identity string, cutoff time.Time) (bool, error)
}
