package domain

import "time"

// Message 表示两个用户之间的一条私聊消息。创建后不可修改 (只追加)。
type Message struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	Sender    string    `gorm:"type:varchar(191);index:idx_pair_time,priority:1;not null" json:"sender"`
	Receiver  string    `gorm:"type:varchar(191);index:idx_pair_time,priority:2;not null" json:"receiver"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	Timestamp time.Time `gorm:"precision:3;index:idx_pair_time,priority:3;not null" json:"timestamp"`
}

// MessageTime 把时间规范化为存储精度 (UTC, 毫秒)，保证写入和读出的时间戳完全一致。
func MessageTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
