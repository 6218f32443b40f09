package service

import (
	"context"
	"iter"
	"time"

	"presence-chat/internal/domain"
	"presence-chat/internal/repository"

	"github.com/sirupsen/logrus"
)

// MessageLog 负责聊天消息的持久化和历史查询。
type MessageLog struct {
	repo    repository.MessageRepository
	timeout time.Duration
}

// NewMessageLog 创建 MessageLog 实例。timeout <= 0 时使用 DefaultStoreTimeout。
func NewMessageLog(repo repository.MessageRepository, timeout time.Duration) *MessageLog {
	if repo == nil {
		panic("MessageRepository cannot be nil for MessageLog")
	}
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	return &MessageLog{repo: repo, timeout: timeout}
}

// Append 持久化一条消息。时间戳统一为 UTC 毫秒精度，保证读回时完全一致。
// 失败时返回 ErrPersistence 或 ErrStoreTimeout，由调用方决定是否继续投递。
func (l *MessageLog) Append(ctx context.Context, sender, receiver, content string, now time.Time) (domain.Message, error) {
	msg := domain.Message{
		Sender:    sender,
		Receiver:  receiver,
		Content:   content,
		Timestamp: domain.MessageTime(now),
	}
	err := callStore(ctx, l.timeout, "messages.append", func(ctx context.Context) error {
		return l.repo.Append(ctx, &msg)
	})
	if err != nil {
		logrus.WithFields(logrus.Fields{"sender": sender, "receiver": receiver}).WithError(err).Error("Failed to append message")
		return msg, err
	}
	return msg, nil
}

// History 返回 a 与 b 之间双向的全部消息，按时间升序。
// 返回的序列是惰性的，每次 range 都会重新查询。
func (l *MessageLog) History(ctx context.Context, a, b string) iter.Seq2[domain.Message, error] {
	return func(yield func(domain.Message, error) bool) {
		for msg, err := range l.repo.Between(ctx, a, b) {
			if err != nil {
				yield(domain.Message{}, mapRepoError("messages.history", err))
				return
			}
			if !yield(msg, nil) {
				return
			}
		}
	}
}

// CollectHistory 把 History 读成切片，供 HTTP 接口使用。
func (l *MessageLog) CollectHistory(ctx context.Context, a, b string) ([]domain.Message, error) {
	out := make([]domain.Message, 0)
	for msg, err := range l.History(ctx, a, b) {
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, nil
}
