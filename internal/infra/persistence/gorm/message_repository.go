package gormpersistence

import (
	"context"
	"fmt"
	"iter"

	"gorm.io/gorm"

	"presence-chat/internal/domain"
)

// GormMessageRepository 是 MessageRepository 接口的 GORM 实现
type GormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository 创建 GormMessageRepository 实例
func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	if db == nil {
		panic("database connection cannot be nil for GormMessageRepository")
	}
	return &GormMessageRepository{db: db}
}

// Append 插入一条消息
func (r *GormMessageRepository) Append(ctx context.Context, msg *domain.Message) error {
	msg.Timestamp = domain.MessageTime(msg.Timestamp)
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("gorm: append message %s->%s: %w", msg.Sender, msg.Receiver, err)
	}
	return nil
}

// Between 逐行扫描 a 与 b 之间的双向消息，按 (timestamp, id) 升序。
// 不分页；调用方提前结束 range 时会关闭游标。
func (r *GormMessageRepository) Between(ctx context.Context, a, b string) iter.Seq2[domain.Message, error] {
	return func(yield func(domain.Message, error) bool) {
		rows, err := r.db.WithContext(ctx).Model(&domain.Message{}).
			Where("(sender = ? AND receiver = ?) OR (sender = ? AND receiver = ?)", a, b, b, a).
			Order("timestamp ASC, id ASC").
			Rows()
		if err != nil {
			yield(domain.Message{}, fmt.Errorf("gorm: query history %s<->%s: %w", a, b, err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var msg domain.Message
			if err := r.db.ScanRows(rows, &msg); err != nil {
				yield(domain.Message{}, fmt.Errorf("gorm: scan history row: %w", err))
				return
			}
			msg.Timestamp = msg.Timestamp.UTC()
			if !yield(msg, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(domain.Message{}, fmt.Errorf("gorm: iterate history %s<->%s: %w", a, b, err))
		}
	}
}
