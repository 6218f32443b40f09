// Package domain 定义了聊天服务使用的核心数据结构 (数据库模型与只读视图)。
package domain

import "time"

// User 表示应用程序中的用户。
// 在线状态 (Online, LastActivity) 是用户记录上的一组字段，由 PresenceService 独占写入。
type User struct {
	ID           uint       `gorm:"primaryKey"`
	Username     string     `gorm:"type:varchar(191);uniqueIndex:idx_username;not null"` // 用户身份标识
	Password     string     `gorm:"type:text;not null" json:"-"`                          // bcrypt 哈希，永不序列化
	Email        string     `gorm:"type:varchar(191);uniqueIndex:idx_email"`
	Age          int        `gorm:"not null;default:0"`
	Online       bool       `gorm:"index;not null;default:false"`
	LastActivity *time.Time `gorm:"index"`
	CreatedAt    time.Time  `gorm:"autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime"`
}

// Presence 返回用户记录中的在线状态字段，不包含任何凭证信息。
func (u *User) Presence() UserPresence {
	return UserPresence{
		Identity:     u.Username,
		Online:       u.Online,
		LastActivity: u.LastActivity,
	}
}
