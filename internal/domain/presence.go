package domain

import "time"

// UserPresence 是在线状态的只读视图。
// 不变量: Online 为 true 时 LastActivity 一定已设置。
type UserPresence struct {
	Identity     string     `json:"identity"`
	Online       bool       `json:"online"`
	LastActivity *time.Time `json:"last_activity"`
}

// IdleSince 判断在 now 时刻该用户是否已经超过 threshold 没有活动。
// 没有任何活动记录的用户视为空闲。
func (p UserPresence) IdleSince(now time.Time, threshold time.Duration) bool {
	if p.LastActivity == nil {
		return true
	}
	return now.Sub(*p.LastActivity) > threshold
}

// PresenceChange 描述一次上线/下线状态切换。
type PresenceChange struct {
	Identity string    `json:"identity"`
	Online   bool      `json:"online"`
	At       time.Time `json:"at"`
}
