package repository

import (
	"context"
	"iter"

	"presence-chat/internal/domain"
)

// MessageRepository 定义了聊天记录的追加与查询。
type MessageRepository interface {
	// Append 持久化一条消息，成功后 msg.ID 被填充。
	Append(ctx context.Context, msg *domain.Message) error

	// Between 按时间升序流式返回 a 与 b 之间 (双向) 的所有消息。
	// 每次 range 都会重新查询。
	Between(ctx context.Context, a, b string) iter.Seq2[domain.Message, error]
}
